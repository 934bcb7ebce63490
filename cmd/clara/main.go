package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clara-assistant/clara/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clara",
		Short: "Clara - Personal Coordination Assistant",
		Long: `Clara is a self-hosted personal coordination assistant.
It answers questions about your agenda, ingests WhatsApp conversations,
and drives calendar, email and scheduling tools over text and voice.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real environments set variables directly.
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		askCmd(),
		reprocessCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Println()

			fmt.Println("STT (Speech Recognition):")
			fmt.Printf("  URL:    %s\n", cfg.STT.URL)
			fmt.Printf("  Model:  %s\n", cfg.STT.Model)
			fmt.Printf("  Status: %s\n", boolStatus(cfg.IsSTTConfigured()))
			fmt.Println()

			fmt.Println("TTS (Text-to-Speech):")
			fmt.Printf("  URL:    %s\n", cfg.TTS.URL)
			fmt.Printf("  Model:  %s\n", cfg.TTS.Model)
			fmt.Printf("  Voice:  %s\n", cfg.TTS.Voice)
			fmt.Printf("  Status: %s\n", boolStatus(cfg.IsTTSConfigured()))
			fmt.Println()

			fmt.Println("Embedding:")
			fmt.Printf("  URL:        %s\n", cfg.Embedding.URL)
			fmt.Printf("  Model:      %s\n", cfg.Embedding.Model)
			fmt.Printf("  Dimensions: %d\n", cfg.Embedding.Dimensions)
			fmt.Printf("  Cache:      %d entries, %dh TTL\n", cfg.Embedding.CacheSize, cfg.Embedding.CacheTTLHours)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Println()

			fmt.Println("Integrations:")
			fmt.Printf("  WhatsApp (Twilio): %s\n", boolStatus(cfg.IsWhatsAppConfigured()))
			fmt.Printf("  Mail (IMAP/SMTP):  %s\n", boolStatus(cfg.IsMailConfigured()))
			fmt.Printf("  Calendly:          %s\n", boolStatus(cfg.IsCalendlyConfigured()))
			fmt.Printf("  MCP servers:       %d\n", len(cfg.MCP.Servers))
			fmt.Println()

			fmt.Println("Policy:")
			fmt.Printf("  Working hours: %02d:00-%02d:00\n", cfg.Policy.WorkStartHour, cfg.Policy.WorkEndHour)
			fmt.Printf("  Lookahead:     %d days\n", cfg.Policy.MaxLookaheadDays)
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  CLARA_LLM_URL, CLARA_LLM_API_KEY, CLARA_LLM_MODEL")
			fmt.Println("  CLARA_STT_URL, CLARA_TTS_URL, CLARA_TTS_VOICE")
			fmt.Println("  CLARA_EMBEDDING_URL, CLARA_EMBEDDING_MODEL")
			fmt.Println("  CLARA_POSTGRES_URL, CLARA_SERVER_HOST, CLARA_SERVER_PORT")
			fmt.Println("  CLARA_TWILIO_ACCOUNT_SID, CLARA_TWILIO_AUTH_TOKEN, CLARA_WHATSAPP_FROM")
			fmt.Println("  CLARA_IMAP_ADDR, CLARA_SMTP_ADDR, CLARA_CALENDLY_TOKEN")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Clara %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
