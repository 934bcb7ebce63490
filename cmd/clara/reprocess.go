package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clara-assistant/clara/internal/adapters/postgres"
	"github.com/clara-assistant/clara/internal/conversation"
)

// reprocessCmd re-runs event extraction over stored conversation messages
func reprocessCmd() *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-run event extraction over stored messages",
		Long: `Re-run event extraction over stored WhatsApp messages.

By default only unprocessed messages are scanned. With --all, every
stored message is re-examined, which is useful after extraction
improvements.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			processor := conversation.NewProcessor(
				postgres.NewMessageRepository(pool),
				postgres.NewEventRepository(pool),
				postgres.NewTransactionManager(pool),
				postgres.NewAuditRepository(pool),
			)

			result, err := processor.Reprocess(ctx, all, limit)
			if err != nil {
				return fmt.Errorf("reprocess failed: %w", err)
			}

			fmt.Printf("Scanned:   %d messages\n", result.Scanned)
			fmt.Printf("Extracted: %d events\n", result.Extracted)
			fmt.Printf("Failed:    %d messages\n", result.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "re-examine every stored message, not only unprocessed ones")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum number of messages to scan")
	return cmd
}
