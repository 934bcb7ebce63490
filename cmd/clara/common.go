package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clara-assistant/clara/internal/adapters/embedding"
	"github.com/clara-assistant/clara/internal/adapters/mcp"
	"github.com/clara-assistant/clara/internal/adapters/postgres"
	"github.com/clara-assistant/clara/internal/agent"
	"github.com/clara-assistant/clara/internal/config"
	"github.com/clara-assistant/clara/internal/conversation"
	"github.com/clara-assistant/clara/internal/llm"
	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/rag"
	"github.com/clara-assistant/clara/internal/toolexec"
	"github.com/clara-assistant/clara/internal/tools"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfg *config.Config
)

// initDB initializes a database connection pool for CLI commands
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.PostgresURL == "" {
		return nil, fmt.Errorf("PostgreSQL connection required. Set CLARA_POSTGRES_URL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Force UTC timezone to prevent timezone-related issues with TIMESTAMP columns
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

// runtime bundles the assistant components shared by serve and ask.
type runtime struct {
	orchestrator *agent.Orchestrator
	executor     ports.ToolExecutor
	ingestor     *conversation.Ingestor
	mcpPool      *mcp.Pool
	eventRepo    *postgres.EventRepository
	messageRepo  *postgres.MessageRepository
	auditRepo    *postgres.AuditRepository
	txManager    *postgres.TransactionManager
	toolRoutes   map[string]mcp.ToolRoute
	recorder     ports.MetricsRecorder
}

// buildRuntime wires repositories, tools and the orchestrator on top of
// an open database pool.
func buildRuntime(pool *pgxpool.Pool, recorder ports.MetricsRecorder) *runtime {
	chunkRepo := postgres.NewChunkRepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	txManager := postgres.NewTransactionManager(pool)

	embedClient := embedding.NewClient(
		cfg.Embedding.URL,
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
	)
	embedder := embedding.NewCachedEmbedder(
		embedClient,
		cfg.Embedding.CacheSize,
		time.Duration(cfg.Embedding.CacheTTLHours)*time.Hour,
		recorder,
	)

	llmClient := llm.NewClient(
		cfg.LLM.URL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.MaxTokens,
		cfg.LLM.Temperature,
	)
	model := llm.NewModel(llmClient)

	retriever := rag.NewRetriever(embedder, chunkRepo, cfg.RAG.TopK, cfg.RAG.MinSimilarity)
	mcpPool := mcp.NewPool(mcpServerConfigs())

	registry := tools.NewRegistry()
	registry.MustRegister(
		tools.NewListAgendaEventsTool(eventRepo),
		tools.NewCreateCalendarEventTool(eventRepo),
		tools.NewConfirmAgendaEventTool(eventRepo),
		tools.NewExtractURLsTool(),
		tools.NewScrapeWebContentTool(),
		tools.NewScrapeNewsForEventsTool(),
	)
	if cfg.IsMailConfigured() {
		mail := tools.MailConfig{
			IMAPAddr: cfg.Mail.IMAPAddr,
			SMTPAddr: cfg.Mail.SMTPAddr,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}
		registry.MustRegister(
			tools.NewSearchEmailTool(mail),
			tools.NewReadEmailTool(mail),
			tools.NewSendEmailTool(mail),
		)
	}
	if cfg.IsWhatsAppConfigured() {
		registry.MustRegister(tools.NewSendWhatsAppTool(tools.WhatsAppConfig{
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			FromNumber: cfg.WhatsApp.FromNumber,
			BaseURL:    cfg.WhatsApp.BaseURL,
		}))
	}
	if cfg.IsCalendlyConfigured() {
		calendly := tools.CalendlyConfig{
			Token:   cfg.Calendly.Token,
			UserURI: cfg.Calendly.UserURI,
		}
		registry.MustRegister(
			tools.NewGetSchedulingLinksTool(calendly),
			tools.NewListCalendlyEventsTool(calendly),
			tools.NewCreateCalendlyEventTool(calendly),
			tools.NewIngestCalendlyEventsTool(calendly, eventRepo),
		)
	}

	executor := toolexec.New(registry, mcpPool, recorder, auditRepo)
	if len(cfg.MCP.Routes) > 0 {
		executor.SetRoutes(configuredToolRoutes())
	}
	if cfg.MockMode {
		executor.MockAll(context.Background())
		log.Println("Mock mode enabled: every tool call returns a deterministic stub")
	}

	orchestrator := agent.NewOrchestrator(
		agent.NewIntentClassifier(model),
		retriever,
		agent.NewConflictChecker(eventRepo),
		agent.NewPolicy(agent.PolicyConfig{
			WorkStartHour:    cfg.Policy.WorkStartHour,
			WorkEndHour:      cfg.Policy.WorkEndHour,
			MaxLookaheadDays: cfg.Policy.MaxLookaheadDays,
		}),
		model,
		executor,
		recorder,
	)

	return &runtime{
		orchestrator: orchestrator,
		executor:     executor,
		ingestor:     conversation.NewIngestor(messageRepo, eventRepo, executor, txManager, auditRepo),
		mcpPool:      mcpPool,
		eventRepo:    eventRepo,
		messageRepo:  messageRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		toolRoutes:   executor.Routes(),
		recorder:     recorder,
	}
}

// configuredToolRoutes converts the config routing table into the
// executor's form, defaulting the remote name to the tool name.
func configuredToolRoutes() map[string]mcp.ToolRoute {
	routes := make(map[string]mcp.ToolRoute, len(cfg.MCP.Routes))
	for tool, rc := range cfg.MCP.Routes {
		remote := rc.RemoteTool
		if remote == "" {
			remote = tool
		}
		routes[tool] = mcp.ToolRoute{Server: rc.Server, RemoteTool: remote}
	}
	return routes
}

// mcpServerConfigs converts the config entries into pool configs.
func mcpServerConfigs() []*mcp.ServerConfig {
	configs := make([]*mcp.ServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		configs = append(configs, &mcp.ServerConfig{
			Name:        s.Name,
			Transport:   s.Transport,
			Command:     s.Command,
			Args:        s.Args,
			Env:         s.Env,
			URL:         s.URL,
			APIKey:      s.APIKey,
			CallTimeout: time.Duration(s.CallTimeoutSeconds) * time.Second,
		})
	}
	return configs
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// boolStatus returns a status string for a boolean
func boolStatus(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
