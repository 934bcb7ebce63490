package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/adapters/mcp"
	"github.com/clara-assistant/clara/internal/adapters/tracing"
	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/tools"
)

// Executor is the single entry point for tool calls. Routing order:
// mock table, MCP route, local registry. Errors never escape as Go
// errors; every call returns an envelope.
type Executor struct {
	registry *tools.Registry
	pool     *mcp.Pool
	metrics  ports.MetricsRecorder
	audit    ports.AuditRepository
	ids      *id.Generator
	routes   map[string]mcp.ToolRoute

	// mocks short-circuits named tools with canned results, used in
	// development and when mock_mode is set.
	mocks map[string]any
}

func New(registry *tools.Registry, pool *mcp.Pool, metrics ports.MetricsRecorder, audit ports.AuditRepository) *Executor {
	return &Executor{
		registry: registry,
		pool:     pool,
		metrics:  metrics,
		audit:    audit,
		ids:      id.New(),
		routes:   mcp.DefaultToolRoutes(),
		mocks:    make(map[string]any),
	}
}

// SetRoutes replaces the built-in routing table with a configured one.
// Call before serving; the table is immutable afterwards.
func (e *Executor) SetRoutes(routes map[string]mcp.ToolRoute) {
	if len(routes) > 0 {
		e.routes = routes
	}
}

// Routes returns the active tool routing table.
func (e *Executor) Routes() map[string]mcp.ToolRoute {
	return e.routes
}

// Mock installs a canned result for a tool name.
func (e *Executor) Mock(name string, result any) {
	e.mocks[name] = result
}

// MockAll installs a deterministic stub for every known tool, forcing
// via=mock on each call.
func (e *Executor) MockAll(ctx context.Context) {
	for _, d := range e.List(ctx) {
		e.mocks[d.Name] = map[string]any{
			"mock": true,
			"tool": d.Name,
		}
	}
}

// List returns every tool the LLM may call: local registry tools plus
// the MCP-routed names.
func (e *Executor) List(ctx context.Context) []models.ToolDescriptor {
	descriptors := e.registry.Descriptors()
	for name := range e.routes {
		if _, local := e.registry.Get(name); local {
			continue
		}
		descriptors = append(descriptors, models.ToolDescriptor{
			Name:        name,
			Description: "Remote tool served over MCP",
			Schema:      map[string]any{"type": "object"},
		})
	}
	return descriptors
}

func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) *models.ToolResult {
	ctx, span := tracing.StartSpan(ctx, "tool."+name)
	defer span.End()

	start := time.Now()
	result := e.execute(ctx, name, args)
	result.ToolName = name
	result.DurationMs = time.Since(start).Milliseconds()

	if e.metrics != nil {
		e.metrics.RecordTool(name, float64(result.DurationMs), result.Success)
	}
	e.recordAudit(ctx, name, args, result)

	if result.Success {
		log.Printf("[Executor.Execute] tool completed: name=%s, via=%s, duration=%dms", name, result.Via, result.DurationMs)
	} else {
		log.Printf("[Executor.Execute] tool failed: name=%s, via=%s, kind=%s, error=%s", name, result.Via, result.ErrorKind, result.ErrorMessage)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, name string, args map[string]any) *models.ToolResult {
	if canned, ok := e.mocks[name]; ok {
		return &models.ToolResult{
			Success: true,
			Result:  canned,
			Via:     models.ViaMock,
		}
	}

	if route, ok := e.routes[name]; ok && e.pool != nil {
		result := e.executeMCP(ctx, route, args)
		// Only transport-level failures fall back to a local tool; an
		// error the server itself reported is final.
		if result.Success || result.ErrorKind != domain.KindTransport {
			return result
		}
		if _, local := e.registry.Get(name); !local {
			return result
		}
		log.Printf("[Executor.execute] MCP transport failed, falling back to local: tool=%s", name)
	}

	return e.executeLocal(ctx, name, args)
}

func (e *Executor) executeMCP(ctx context.Context, route mcp.ToolRoute, args map[string]any) *models.ToolResult {
	client, err := e.pool.Get(ctx, route.Server)
	if err != nil {
		return failure(domain.Classify(err), err.Error(), models.ViaMCP)
	}

	callResult, err := client.CallTool(ctx, route.RemoteTool, args)
	if err != nil {
		return failure(domain.KindTransport, err.Error(), models.ViaMCP)
	}

	text := flattenContent(callResult.Content)
	if callResult.IsError {
		return failure(domain.KindApplication, text, models.ViaMCP)
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		// Not JSON, keep the raw text as the result
		parsed = text
	}

	return &models.ToolResult{
		Success:       true,
		Result:        parsed,
		FormattedText: text,
		Via:           models.ViaMCP,
	}
}

func (e *Executor) executeLocal(ctx context.Context, name string, args map[string]any) *models.ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		return failure(domain.KindApplication,
			fmt.Sprintf("%s: %s", domain.ErrToolNotFound.Error(), name), models.ViaLocal)
	}

	value, err := tool.Execute(ctx, args)
	if err != nil {
		return failure(domain.Classify(err), err.Error(), models.ViaLocal)
	}

	return &models.ToolResult{
		Success:       true,
		Result:        value,
		FormattedText: formatResult(value),
		Via:           models.ViaLocal,
	}
}

func (e *Executor) recordAudit(ctx context.Context, name string, args map[string]any, result *models.ToolResult) {
	if e.audit == nil {
		return
	}
	rec := &models.AuditRecord{
		ID:     e.ids.GenerateAuditID(),
		Action: "tool:" + name,
		Actor:  "agent",
		Payload: map[string]any{
			"args":        args,
			"success":     result.Success,
			"via":         string(result.Via),
			"duration_ms": result.DurationMs,
		},
		CreatedAt: time.Now(),
	}
	if !result.Success {
		rec.ErrorKind = string(result.ErrorKind)
	}
	if err := e.audit.Record(ctx, rec); err != nil {
		log.Printf("[Executor.recordAudit] audit write failed: tool=%s, error=%v", name, err)
	}
}

func failure(kind domain.Kind, message string, via models.ToolVia) *models.ToolResult {
	return &models.ToolResult{
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: message,
		Via:          via,
	}
}

func flattenContent(items []mcp.ContentItem) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) == 1 {
		return items[0].Text
	}
	var text string
	for i, item := range items {
		if i > 0 {
			text += "\n"
		}
		text += item.Text
	}
	return text
}

// formatResult prefers a tool-provided formatted_text field, falling
// back to compact JSON.
func formatResult(value any) string {
	type formatted interface{ FormattedString() string }
	if f, ok := value.(formatted); ok {
		return f.FormattedString()
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	// Surface formatted_text when the result carries one
	var probe struct {
		FormattedText string `json:"formatted_text"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.FormattedText != "" {
		return probe.FormattedText
	}
	return string(data)
}
