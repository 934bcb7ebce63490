package agent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/adapters/tracing"
	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/rag"
)

const (
	// MaxIterations bounds the reason-act loop per request.
	MaxIterations = 5
	// RequestDeadline bounds the whole orchestration.
	RequestDeadline = 30 * time.Second
	// maxConcurrentTools caps parallel tool execution in one iteration.
	maxConcurrentTools = 4
)

// ContextRetriever supplies grounding chunks for the prompt.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, opts rag.Options) ([]*models.ScoredChunk, error)
}

// ConflictFinder reports existing events that collide with the query's
// time window.
type ConflictFinder interface {
	Check(ctx context.Context, query string) ([]*models.ExtractedEvent, error)
}

// RunOptions tunes one orchestration request.
type RunOptions struct {
	// TopK overrides the retrieval depth. Negative keeps the configured
	// default; zero retrieves no context.
	TopK int
	// MinSimilarity drops retrieved chunks scoring below it.
	MinSimilarity float64
	// Confirmed marks that the user explicitly confirmed a destructive
	// action for this request.
	Confirmed bool
	// OnEvent observes orchestration progress. May be nil.
	OnEvent ports.AgentEventFunc
}

// DefaultRunOptions keeps the configured retrieval depth and requires
// confirmation for destructive tools.
func DefaultRunOptions() RunOptions {
	return RunOptions{TopK: -1}
}

// Orchestrator drives one request through the stage graph:
// intent, rag, conflict_check, policy, then the specialist reason-act
// loop, and finally the humanised response.
type Orchestrator struct {
	classifier *IntentClassifier
	retriever  ContextRetriever
	conflicts  ConflictFinder
	policy     *Policy
	model      ports.ChatModel
	executor   ports.ToolExecutor
	humaniser  *Humaniser
	metrics    ports.MetricsRecorder
	ids        *id.Generator
	now        func() time.Time
}

func NewOrchestrator(
	classifier *IntentClassifier,
	retriever ContextRetriever,
	conflicts ConflictFinder,
	policy *Policy,
	model ports.ChatModel,
	executor ports.ToolExecutor,
	metrics ports.MetricsRecorder,
) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		conflicts:  conflicts,
		policy:     policy,
		model:      model,
		executor:   executor,
		humaniser:  NewHumaniser(),
		metrics:    metrics,
		ids:        id.New(),
		now:        time.Now,
	}
}

// Run processes one user query with default options.
func (o *Orchestrator) Run(ctx context.Context, query string, history []models.ChatTurn) (*models.AgentState, error) {
	return o.RunWithOptions(ctx, query, history, DefaultRunOptions())
}

// RunStreaming processes one query while forwarding progress events to
// onEvent, used by the voice channel.
func (o *Orchestrator) RunStreaming(ctx context.Context, query string, history []models.ChatTurn, onEvent ports.AgentEventFunc) (*models.AgentState, error) {
	opts := DefaultRunOptions()
	opts.OnEvent = onEvent
	return o.RunWithOptions(ctx, query, history, opts)
}

// RunWithOptions processes one user query and returns the completed
// state. Partial stage failures degrade (no context, no conflicts)
// instead of aborting; only the model being unreachable fails the
// request.
func (o *Orchestrator) RunWithOptions(ctx context.Context, query string, history []models.ChatTurn, opts RunOptions) (*models.AgentState, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestDeadline)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "orchestrator.run")
	defer span.End()

	state := &models.AgentState{
		RequestID:   o.ids.GenerateRequestID(),
		UserQuery:   query,
		ChatHistory: history,
		StartedAt:   time.Now(),
	}
	o.emit(opts, "agent_processing_started", map[string]any{"request_id": state.RequestID})

	o.stage(state, "intent", func() {
		state.Intent = o.classifier.Classify(ctx, query)
		state.AgentCode = models.AgentForIntent(state.Intent)
	})
	log.Printf("[Orchestrator.Run] intent classified: request_id=%s, intent=%s, agent=%s",
		state.RequestID, state.Intent, state.AgentCode)

	o.stage(state, "rag", func() {
		o.emit(opts, "agent_rag_started", nil)
		log.Printf("[Orchestrator.Run] agent_rag_started: request_id=%s", state.RequestID)
		chunks, err := o.retriever.Retrieve(ctx, query, rag.Options{
			TopK:          opts.TopK,
			MinSimilarity: opts.MinSimilarity,
		})
		if err != nil {
			log.Printf("[Orchestrator.Run] retrieval degraded: request_id=%s, error=%v", state.RequestID, err)
			return
		}
		state.RAGContext, state.Citations = rag.AssembleContext(chunks)
		o.emit(opts, "agent_rag_completed", map[string]any{"chunks": len(chunks)})
		log.Printf("[Orchestrator.Run] agent_rag_completed: request_id=%s, chunks=%d", state.RequestID, len(chunks))
	})

	o.stage(state, "conflict_check", func() {
		conflicts, err := o.conflicts.Check(ctx, query)
		if err != nil {
			log.Printf("[Orchestrator.Run] conflict check degraded: request_id=%s, error=%v", state.RequestID, err)
			return
		}
		state.Conflicts = conflicts
	})

	var refused bool
	o.stage(state, "policy", func() {
		if err := o.checkPolicy(query); err != nil {
			state.PolicyRefusal = RefusalMessage(err)
			refused = true
		}
	})
	if refused {
		state.Response = state.PolicyRefusal
		o.emit(opts, "agent_response_ready", map[string]any{"iterations": 0, "refused": true})
		o.finish(state, true)
		return state, nil
	}

	var loopErr error
	o.stage(state, "agent", func() {
		loopErr = o.reasonActLoop(ctx, state, opts)
	})
	if loopErr != nil {
		o.emit(opts, "agent_error", map[string]any{"error": loopErr.Error()})
		o.finish(state, false)
		return state, loopErr
	}

	o.stage(state, "response", func() {
		state.Response = o.humaniser.Humanise(state.Response, state.ToolResults)
	})
	o.emit(opts, "agent_response_ready", map[string]any{
		"iterations": state.IterationCount,
		"tools":      len(state.ToolResults),
	})
	log.Printf("[Orchestrator.Run] agent_response_ready: request_id=%s, iterations=%d, tools=%d",
		state.RequestID, state.IterationCount, len(state.ToolResults))

	o.finish(state, true)
	return state, nil
}

var creationPattern = regexp.MustCompile(`(?i)\b(agenda|agéndame|crea|créame|reserva|resérvame|añade|apunta|schedule|book|create|add)\b`)

// checkPolicy gates event creation requests: working hours and horizon
// apply only when the user is asking to put something on the calendar.
func (o *Orchestrator) checkPolicy(query string) error {
	if o.policy == nil || !creationPattern.MatchString(query) {
		return nil
	}
	finder, ok := o.conflicts.(*ConflictChecker)
	if !ok {
		return nil
	}
	from, to, found := finder.ProposedWindow(query)
	if !found {
		return nil
	}
	return o.policy.CheckEvent(&models.ExtractedEvent{StartAt: &from, EndAt: &to})
}

// checkToolCalls refuses destructive tool calls the user has not
// confirmed, before anything executes.
func (o *Orchestrator) checkToolCalls(calls []ports.ToolInvocation, opts RunOptions) error {
	if o.policy == nil {
		return nil
	}
	for _, call := range calls {
		if err := o.policy.CheckTool(call.Name, opts.Confirmed); err != nil {
			return err
		}
	}
	return nil
}

// reasonActLoop runs the specialist until it answers without tools or
// the iteration budget runs out.
func (o *Orchestrator) reasonActLoop(ctx context.Context, state *models.AgentState, opts RunOptions) error {
	available := toolsFor(state.AgentCode, o.executor.List(ctx))
	names := make([]string, 0, len(available))
	for _, d := range available {
		names = append(names, d.Name)
	}
	o.emit(opts, "agent_tools_available", map[string]any{"agent": string(state.AgentCode), "tools": names})
	log.Printf("[Orchestrator.reasonActLoop] agent_tools_available: request_id=%s, agent=%s, tools=%v",
		state.RequestID, state.AgentCode, names)

	convo := make([]models.ChatTurn, 0, len(state.ChatHistory)+2)
	convo = append(convo, models.ChatTurn{Role: "system", Content: o.systemPrompt(state)})
	convo = append(convo, state.ChatHistory...)
	userText := state.UserQuery

	for i := 1; i <= MaxIterations; i++ {
		state.IterationCount = i
		o.emit(opts, "agent_iteration_started", map[string]any{"iteration": i})
		log.Printf("[Orchestrator.reasonActLoop] agent_iteration_started: request_id=%s, iteration=%d",
			state.RequestID, i)

		decision, err := o.model.ChatWithTools(ctx, convo, userText, available)
		if err != nil {
			return fmt.Errorf("model call failed on iteration %d: %w", i, err)
		}
		if decision.Reasoning != "" {
			o.emit(opts, "agent_llm_reasoning", map[string]any{"reasoning": truncate(decision.Reasoning, 200)})
			log.Printf("[Orchestrator.reasonActLoop] agent_llm_reasoning: request_id=%s, reasoning=%q",
				state.RequestID, truncate(decision.Reasoning, 200))
		}

		if len(decision.ToolCalls) == 0 {
			state.Response = decision.Content
			return nil
		}

		if err := o.checkToolCalls(decision.ToolCalls, opts); err != nil {
			state.PolicyRefusal = RefusalMessage(err)
			state.Response = state.PolicyRefusal
			log.Printf("[Orchestrator.reasonActLoop] destructive tool refused: request_id=%s, error=%v",
				state.RequestID, err)
			return nil
		}

		results := o.executeToolCalls(ctx, state, opts, decision.ToolCalls)
		state.ToolResults = append(state.ToolResults, results...)

		convo = append(convo, models.ChatTurn{Role: "user", Content: userText})
		if decision.Content != "" {
			convo = append(convo, models.ChatTurn{Role: "assistant", Content: decision.Content})
		}
		for _, result := range results {
			convo = append(convo, models.ChatTurn{Role: "tool", Content: renderToolResult(result)})
		}
		userText = "Responde al usuario usando los resultados de las herramientas."
	}

	// Budget exhausted: answer from what the tools returned rather than
	// failing the request.
	log.Printf("[Orchestrator.reasonActLoop] iteration budget exhausted: request_id=%s", state.RequestID)
	if formatted := lastFormattedText(state.ToolResults); formatted != "" {
		state.Response = formatted
		return nil
	}
	return domain.Errorf(domain.KindInternal, "%w after %d iterations", domain.ErrMaxIterations, MaxIterations)
}

// executeToolCalls runs one iteration's calls concurrently, preserving
// call order in the returned slice.
func (o *Orchestrator) executeToolCalls(ctx context.Context, state *models.AgentState, opts RunOptions, calls []ports.ToolInvocation) []*models.ToolResult {
	results := make([]*models.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTools)
	for i, call := range calls {
		g.Go(func() error {
			o.emit(opts, "agent_tool_executing", map[string]any{"tool": call.Name})
			log.Printf("[Orchestrator.executeToolCalls] agent_tool_executing: request_id=%s, tool=%s",
				state.RequestID, call.Name)
			results[i] = o.executor.Execute(gctx, call.Name, call.Arguments)
			o.emit(opts, "agent_tool_completed", map[string]any{
				"tool":        call.Name,
				"success":     results[i].Success,
				"duration_ms": results[i].DurationMs,
			})
			log.Printf("[Orchestrator.executeToolCalls] agent_tool_completed: request_id=%s, tool=%s, success=%t, duration=%dms",
				state.RequestID, call.Name, results[i].Success, results[i].DurationMs)
			return nil
		})
	}
	// Workers never return errors; failures live in the result envelopes.
	_ = g.Wait()
	return results
}

func (o *Orchestrator) systemPrompt(state *models.AgentState) string {
	var b strings.Builder
	b.WriteString(promptFor(state.AgentCode))

	// The model cannot resolve "mañana" or "el viernes" without knowing
	// when now is.
	b.WriteString("\n\nCurrent date and time: ")
	b.WriteString(o.now().Format("Monday, 2 January 2006, 15:04"))
	b.WriteString(".")

	if state.RAGContext != "" {
		b.WriteString("\n\nRelevant context:\n")
		b.WriteString(state.RAGContext)
	}
	if len(state.Conflicts) > 0 {
		b.WriteString("\n\nExisting events that may conflict:\n")
		for _, ev := range state.Conflicts {
			b.WriteString("- " + ev.Title)
			if ev.StartAt != nil {
				b.WriteString(" (" + FormatEventTime(*ev.StartAt, ev.EndAt) + ")")
			}
			b.WriteString("\n")
		}
		b.WriteString("Mention conflicts to the user before proposing new events.")
	}
	return b.String()
}

func (o *Orchestrator) emit(opts RunOptions, name string, payload map[string]any) {
	if opts.OnEvent != nil {
		opts.OnEvent(name, payload)
	}
}

func (o *Orchestrator) stage(state *models.AgentState, name string, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	state.Timings = append(state.Timings, models.StageTiming{
		Stage:      name,
		DurationMs: elapsed.Milliseconds(),
	})
	if o.metrics != nil {
		o.metrics.RecordStage(name, float64(elapsed.Milliseconds()))
	}
}

func (o *Orchestrator) finish(state *models.AgentState, success bool) {
	if o.metrics != nil {
		o.metrics.RecordRequest(float64(time.Since(state.StartedAt).Milliseconds()), success)
	}
}

func renderToolResult(result *models.ToolResult) string {
	if !result.Success {
		return fmt.Sprintf("%s failed: %s", result.ToolName, result.ErrorMessage)
	}
	if result.FormattedText != "" {
		return fmt.Sprintf("%s: %s", result.ToolName, result.FormattedText)
	}
	return fmt.Sprintf("%s: %v", result.ToolName, result.Result)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
