package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clara-assistant/clara/internal/adapters/metrics"
)

// askCmd runs a single text query through the assistant
func askCmd() *cobra.Command {
	var showTimings bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask Clara a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rt := buildRuntime(pool, metrics.NewRecorder())
			defer rt.mcpPool.Close()

			query := strings.Join(args, " ")
			state, err := rt.orchestrator.Run(ctx, query, nil)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			fmt.Println(state.Response)

			if showTimings {
				fmt.Println()
				fmt.Printf("intent=%s agent=%s iterations=%d\n", state.Intent, state.AgentCode, state.IterationCount)
				for _, t := range state.Timings {
					fmt.Printf("  %-14s %dms\n", t.Stage, t.DurationMs)
				}
				for _, r := range state.ToolResults {
					fmt.Printf("  tool %s success=%t via=%s %dms\n", r.ToolName, r.Success, r.Via, r.DurationMs)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTimings, "timings", false, "print stage timings and tool calls")
	return cmd
}
