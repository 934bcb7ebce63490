package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clara-assistant/clara/internal/adapters/http/handlers"
	"github.com/clara-assistant/clara/internal/adapters/http/middleware"
	"github.com/clara-assistant/clara/internal/adapters/metrics"
	"github.com/clara-assistant/clara/internal/agent"
	"github.com/clara-assistant/clara/internal/config"
	"github.com/clara-assistant/clara/internal/conversation"
	"github.com/clara-assistant/clara/internal/ports"
)

type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server

	db           *pgxpool.Pool
	orchestrator *agent.Orchestrator
	executor     ports.ToolExecutor
	ingestor     *conversation.Ingestor
	eventRepo    ports.EventRepository
	txManager    ports.TransactionManager
	auditRepo    ports.AuditRepository
	recorder     *metrics.Recorder
	transcriber  ports.Transcriber
	synthesizer  ports.Synthesizer
	twilio       handlers.TwilioValidator
	calendly     handlers.CalendlyValidator
}

func NewServer(
	cfg *config.Config,
	db *pgxpool.Pool,
	orchestrator *agent.Orchestrator,
	executor ports.ToolExecutor,
	ingestor *conversation.Ingestor,
	eventRepo ports.EventRepository,
	txManager ports.TransactionManager,
	auditRepo ports.AuditRepository,
	recorder *metrics.Recorder,
	transcriber ports.Transcriber,
	synthesizer ports.Synthesizer,
	twilio handlers.TwilioValidator,
	calendly handlers.CalendlyValidator,
) *Server {
	s := &Server{
		config:       cfg,
		db:           db,
		orchestrator: orchestrator,
		executor:     executor,
		ingestor:     ingestor,
		eventRepo:    eventRepo,
		txManager:    txManager,
		auditRepo:    auditRepo,
		recorder:     recorder,
		transcriber:  transcriber,
		synthesizer:  synthesizer,
		twilio:       twilio,
		calendly:     calendly,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.pinger(), s.config.Version)
	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	if s.recorder != nil {
		metricsHandler := handlers.NewMetricsHandler(s.recorder)
		r.Get("/metrics/summary", metricsHandler.Summary)
	}

	webhookHandler := handlers.NewWebhookHandler(s.ingestor, s.eventRepo, s.twilio, s.calendly)
	webhookHandler.PublicURL = s.config.Server.PublicURL
	r.Post("/whatsapp/webhook", webhookHandler.WhatsApp)
	r.Post("/calendly/webhook", webhookHandler.Calendly)

	if s.transcriber != nil && s.synthesizer != nil {
		voiceHandler := handlers.NewVoiceHandler(s.transcriber, s.synthesizer, s.orchestrator, s.recorder, s.config.Server.CORSOrigins)
		r.Get("/voice", voiceHandler.Serve)
	}

	assistantHandler := handlers.NewAssistantHandler(s.orchestrator, s.executor)
	r.Post("/text", assistantHandler.Text)
	r.Get("/tools", assistantHandler.Tools)
	r.Post("/email/send", assistantHandler.EmailSend)

	eventsHandler := handlers.NewEventsHandler(s.eventRepo, s.txManager, s.auditRepo)
	r.Get("/events", eventsHandler.List)
	r.Post("/events/suggest", eventsHandler.Suggest)
	r.Get("/events/{id}", eventsHandler.Get)
	r.Post("/events/{id}/approve", eventsHandler.Approve)
	r.Post("/events/{id}/reject", eventsHandler.Reject)
	r.Get("/calendar", eventsHandler.Calendar)

	s.router = r
}

func (s *Server) pinger() handlers.Pinger {
	if s.db == nil {
		return nil
	}
	return s.db
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for WebSocket streaming
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
