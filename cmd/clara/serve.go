package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clara-assistant/clara/internal/adapters/http"
	"github.com/clara-assistant/clara/internal/adapters/http/handlers"
	"github.com/clara-assistant/clara/internal/adapters/metrics"
	"github.com/clara-assistant/clara/internal/adapters/tracing"
	"github.com/clara-assistant/clara/internal/adapters/webhook"
	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/voice"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Clara HTTP API server.

The server exposes the text assistant, the voice websocket, the event
review queue, and the WhatsApp/Calendly webhooks.

Required configuration:
  - PostgreSQL database (CLARA_POSTGRES_URL)
  - LLM endpoint (CLARA_LLM_URL)

Optional:
  - STT/TTS via speaches (CLARA_STT_URL, CLARA_TTS_URL)
  - Twilio WhatsApp (CLARA_TWILIO_ACCOUNT_SID, CLARA_TWILIO_AUTH_TOKEN)
  - Calendly (CLARA_CALENDLY_TOKEN, CLARA_CALENDLY_SIGNING_KEY)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context) error {
	log.Println("Starting Clara API server...")
	log.Printf("  HTTP: http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("  LLM:  %s", cfg.LLM.URL)
	if cfg.IsSTTConfigured() {
		log.Printf("  STT:  %s", cfg.STT.URL)
	}
	if cfg.IsTTSConfigured() {
		log.Printf("  TTS:  %s", cfg.TTS.URL)
	}
	log.Println()

	shutdownTracer, err := tracing.InitTracer("clara-api")
	if err != nil {
		log.Printf("Warning: failed to initialize tracing: %v", err)
	} else {
		defer func() {
			if err := shutdownTracer(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	log.Println("Connecting to PostgreSQL...")
	pool, err := initDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("Database connection established")

	recorder := metrics.NewRecorder()
	rt := buildRuntime(pool, recorder)
	if len(cfg.MCP.Servers) > 0 {
		valCtx, valCancel := context.WithTimeout(ctx, 15*time.Second)
		rt.mcpPool.ValidateRoutes(valCtx, rt.toolRoutes)
		valCancel()
	}
	defer func() {
		rt.ingestor.Wait()
		if err := rt.mcpPool.Close(); err != nil {
			log.Printf("Warning: failed to close MCP pool: %v", err)
		}
	}()

	var transcriber ports.Transcriber
	if cfg.IsSTTConfigured() {
		transcriber = voice.NewWhisper(cfg.STT.URL, cfg.STT.Model)
		log.Println("Transcriber initialized")
	}
	var synthesizer ports.Synthesizer
	if cfg.IsTTSConfigured() {
		synthesizer = voice.NewKokoro(cfg.TTS.URL, cfg.TTS.Model, cfg.TTS.Voice)
		log.Println("Synthesizer initialized")
	}

	var twilio handlers.TwilioValidator
	if cfg.WhatsApp.AuthToken != "" {
		twilio = webhook.NewTwilioValidator(cfg.WhatsApp.AuthToken)
		log.Println("Twilio signature validation enabled")
	} else {
		log.Println("Twilio auth token not set - WhatsApp webhook signatures are NOT validated")
	}
	var calendly handlers.CalendlyValidator
	if cfg.Calendly.WebhookSigningKey != "" {
		calendly = webhook.NewCalendlyValidator(cfg.Calendly.WebhookSigningKey)
		log.Println("Calendly signature validation enabled")
	}

	cfg.Version = version
	server := http.NewServer(
		cfg,
		pool,
		rt.orchestrator,
		rt.executor,
		rt.ingestor,
		rt.eventRepo,
		rt.txManager,
		rt.auditRepo,
		recorder,
		transcriber,
		synthesizer,
		twilio,
		calendly,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		log.Println("Server stopped")
		return nil
	}
}
