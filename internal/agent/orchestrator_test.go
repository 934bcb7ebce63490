package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/rag"
)

type fakeRetriever struct {
	chunks []*models.ScoredChunk
	opts   []rag.Options
	err    error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts rag.Options) ([]*models.ScoredChunk, error) {
	f.opts = append(f.opts, opts)
	return f.chunks, f.err
}

type fakeExecutor struct {
	mu          sync.Mutex
	results     map[string]*models.ToolResult
	descriptors []models.ToolDescriptor
	executed    []string
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args map[string]any) *models.ToolResult {
	f.mu.Lock()
	f.executed = append(f.executed, name)
	f.mu.Unlock()
	if r, ok := f.results[name]; ok {
		copied := *r
		copied.ToolName = name
		return &copied
	}
	return &models.ToolResult{Success: true, ToolName: name, FormattedText: "ok"}
}

func (f *fakeExecutor) List(ctx context.Context) []models.ToolDescriptor {
	return f.descriptors
}

func agendaDescriptor() models.ToolDescriptor {
	return models.ToolDescriptor{Name: "list_agenda_events", Description: "agenda", Schema: map[string]any{"type": "object"}}
}

func newTestOrchestrator(model *fakeChatModel, exec *fakeExecutor, finder ConflictFinder) *Orchestrator {
	if finder == nil {
		finder = fixedChecker(&fakeEventRepo{})
	}
	return NewOrchestrator(
		NewIntentClassifier(nil),
		&fakeRetriever{},
		finder,
		NewPolicy(DefaultPolicyConfig()),
		model,
		exec,
		nil,
	)
}

func TestRun_DirectAnswer(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{
		{Content: "tienes la agenda libre mañana"},
	}}
	exec := &fakeExecutor{descriptors: []models.ToolDescriptor{agendaDescriptor()}}
	o := newTestOrchestrator(model, exec, nil)

	state, err := o.Run(context.Background(), "qué tengo mañana", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Intent != models.IntentCalendar {
		t.Errorf("expected calendar intent, got %s", state.Intent)
	}
	if state.Response != "Tienes la agenda libre mañana." {
		t.Errorf("unexpected response %q", state.Response)
	}
	if state.IterationCount != 1 {
		t.Errorf("expected 1 iteration, got %d", state.IterationCount)
	}
	if len(exec.executed) != 0 {
		t.Errorf("no tools should run, got %v", exec.executed)
	}
}

func TestRun_ToolThenAnswer(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{
		{ToolCalls: []ports.ToolInvocation{{Name: "list_agenda_events", Arguments: map[string]any{"days": float64(1)}}}},
		{Content: "mañana tienes dentista a las 10"},
	}}
	exec := &fakeExecutor{
		descriptors: []models.ToolDescriptor{agendaDescriptor()},
		results: map[string]*models.ToolResult{
			"list_agenda_events": {Success: true, FormattedText: "Agenda:\n- Dentista a las 10:00"},
		},
	}
	o := newTestOrchestrator(model, exec, nil)

	state, err := o.Run(context.Background(), "qué tengo mañana", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.IterationCount != 2 {
		t.Errorf("expected 2 iterations, got %d", state.IterationCount)
	}
	if len(state.ToolResults) != 1 || state.ToolResults[0].ToolName != "list_agenda_events" {
		t.Errorf("unexpected tool results %v", state.ToolResults)
	}
	if !strings.Contains(state.Response, "dentista") && !strings.Contains(state.Response, "Dentista") {
		t.Errorf("unexpected response %q", state.Response)
	}
}

func TestRun_IterationBudgetFallsBackToToolOutput(t *testing.T) {
	// The model insists on calling tools forever.
	call := &ports.ChatDecision{ToolCalls: []ports.ToolInvocation{{Name: "list_agenda_events"}}}
	model := &fakeChatModel{decisions: []*ports.ChatDecision{call, call, call, call, call, call}}
	formatted := "Agenda:\n- Reunión con María a las 10:00\n- Dentista a las 16:30"
	exec := &fakeExecutor{
		descriptors: []models.ToolDescriptor{agendaDescriptor()},
		results: map[string]*models.ToolResult{
			"list_agenda_events": {Success: true, FormattedText: formatted},
		},
	}
	o := newTestOrchestrator(model, exec, nil)

	state, err := o.Run(context.Background(), "qué tengo mañana", nil)
	if err != nil {
		t.Fatalf("expected graceful fallback, got %v", err)
	}
	if state.IterationCount != MaxIterations {
		t.Errorf("expected %d iterations, got %d", MaxIterations, state.IterationCount)
	}
	if !strings.Contains(state.Response, "Reunión con María") {
		t.Errorf("expected tool output as response, got %q", state.Response)
	}
}

func TestRun_PolicyRefusalShortCircuits(t *testing.T) {
	model := &fakeChatModel{}
	exec := &fakeExecutor{}
	checker := fixedChecker(&fakeEventRepo{})
	o := newTestOrchestrator(model, exec, checker)
	o.policy.now = checker.now

	state, err := o.Run(context.Background(), "agenda una cena mañana a las 23", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.PolicyRefusal == "" {
		t.Fatal("expected a policy refusal")
	}
	if state.Response != state.PolicyRefusal {
		t.Errorf("refusal should be the response, got %q", state.Response)
	}
	if len(exec.executed) != 0 {
		t.Errorf("no tools should run after refusal, got %v", exec.executed)
	}
	if state.IterationCount != 0 {
		t.Errorf("agent loop should not start, got %d iterations", state.IterationCount)
	}
}

func TestRun_RetrievalFailureDegrades(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{{Content: "hola"}}}
	o := NewOrchestrator(
		NewIntentClassifier(nil),
		&fakeRetriever{err: context.DeadlineExceeded},
		fixedChecker(&fakeEventRepo{}),
		NewPolicy(DefaultPolicyConfig()),
		model,
		&fakeExecutor{},
		nil,
	)

	state, err := o.Run(context.Background(), "qué tengo hoy", nil)
	if err != nil {
		t.Fatalf("retrieval failure should degrade, got %v", err)
	}
	if state.RAGContext != "" {
		t.Errorf("expected empty context, got %q", state.RAGContext)
	}
	if state.Response == "" {
		t.Error("expected a response despite degraded retrieval")
	}
}

func TestRun_StageTimingsRecorded(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{{Content: "listo"}}}
	o := newTestOrchestrator(model, &fakeExecutor{}, nil)

	state, err := o.Run(context.Background(), "hola, qué tengo hoy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"intent", "rag", "conflict_check", "policy", "agent", "response"}
	if len(state.Timings) != len(want) {
		t.Fatalf("expected %d stages, got %d: %v", len(want), len(state.Timings), state.Timings)
	}
	for i, stage := range want {
		if state.Timings[i].Stage != stage {
			t.Errorf("stage %d = %s, want %s", i, state.Timings[i].Stage, stage)
		}
	}
}

func TestRun_DestructiveToolRequiresConfirmation(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{
		{ToolCalls: []ports.ToolInvocation{{Name: "send_email", Arguments: map[string]any{"to": "maria@example.com"}}}},
	}}
	exec := &fakeExecutor{descriptors: []models.ToolDescriptor{
		{Name: "send_email", Description: "email", Schema: map[string]any{"type": "object"}},
	}}
	o := newTestOrchestrator(model, exec, nil)

	state, err := o.Run(context.Background(), "manda un email a María diciendo que llego tarde", nil)
	if err != nil {
		t.Fatalf("refusal should not be an error: %v", err)
	}
	if state.PolicyRefusal == "" {
		t.Fatal("expected a refusal for an unconfirmed destructive tool")
	}
	if !strings.Contains(state.Response, "confirmación") {
		t.Errorf("refusal should name the missing confirmation, got %q", state.Response)
	}
	if len(exec.executed) != 0 {
		t.Errorf("send_email must not run without confirmation, got %v", exec.executed)
	}
}

func TestRun_ConfirmedDestructiveToolExecutes(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{
		{ToolCalls: []ports.ToolInvocation{{Name: "send_email", Arguments: map[string]any{"to": "maria@example.com"}}}},
		{Content: "email enviado"},
	}}
	exec := &fakeExecutor{descriptors: []models.ToolDescriptor{
		{Name: "send_email", Description: "email", Schema: map[string]any{"type": "object"}},
	}}
	o := newTestOrchestrator(model, exec, nil)

	opts := DefaultRunOptions()
	opts.Confirmed = true
	state, err := o.RunWithOptions(context.Background(), "manda un email a María diciendo que llego tarde", nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.PolicyRefusal != "" {
		t.Errorf("confirmed request must not be refused, got %q", state.PolicyRefusal)
	}
	if len(exec.executed) != 1 || exec.executed[0] != "send_email" {
		t.Errorf("expected send_email to run, got %v", exec.executed)
	}
}

func TestRunStreaming_EmitsProgressEvents(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{
		{ToolCalls: []ports.ToolInvocation{{Name: "list_agenda_events"}}},
		{Content: "mañana tienes dentista"},
	}}
	exec := &fakeExecutor{descriptors: []models.ToolDescriptor{agendaDescriptor()}}
	o := newTestOrchestrator(model, exec, nil)

	var mu sync.Mutex
	var names []string
	_, err := o.RunStreaming(context.Background(), "qué tengo mañana", nil, func(name string, payload map[string]any) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if names[0] != "agent_processing_started" {
		t.Errorf("first event = %s, want agent_processing_started", names[0])
	}
	if names[len(names)-1] != "agent_response_ready" {
		t.Errorf("last event = %s, want agent_response_ready", names[len(names)-1])
	}
	for _, want := range []string{
		"agent_rag_started", "agent_rag_completed", "agent_tools_available",
		"agent_iteration_started", "agent_tool_executing", "agent_tool_completed",
	} {
		var found bool
		for _, name := range names {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing event %s in %v", want, names)
		}
	}
}

func TestRun_RetrievalOptionsPropagate(t *testing.T) {
	model := &fakeChatModel{decisions: []*ports.ChatDecision{{Content: "listo"}}}
	retriever := &fakeRetriever{}
	o := NewOrchestrator(
		NewIntentClassifier(nil),
		retriever,
		fixedChecker(&fakeEventRepo{}),
		NewPolicy(DefaultPolicyConfig()),
		model,
		&fakeExecutor{},
		nil,
	)

	opts := DefaultRunOptions()
	opts.TopK = 3
	opts.MinSimilarity = 0.6
	if _, err := o.RunWithOptions(context.Background(), "qué tengo mañana", nil, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(retriever.opts) != 1 {
		t.Fatalf("expected one retrieval, got %d", len(retriever.opts))
	}
	if got := retriever.opts[0]; got.TopK != 3 || got.MinSimilarity != 0.6 {
		t.Errorf("retrieval options = %+v", got)
	}
}

func TestSystemPrompt_IncludesCurrentDate(t *testing.T) {
	o := newTestOrchestrator(&fakeChatModel{}, &fakeExecutor{}, nil)
	o.now = func() time.Time {
		return time.Date(2026, time.March, 13, 9, 30, 0, 0, time.UTC)
	}

	prompt := o.systemPrompt(&models.AgentState{AgentCode: models.AgentGeneral})
	if !strings.Contains(prompt, "Friday, 13 March 2026, 09:30") {
		t.Errorf("prompt missing current date:\n%s", prompt)
	}
}

func TestToolsFor(t *testing.T) {
	available := []models.ToolDescriptor{
		{Name: "list_agenda_events"},
		{Name: "send_email"},
		{Name: "send_whatsapp"},
		{Name: "get_scheduling_links"},
	}

	email := toolsFor(models.AgentEmail, available)
	if len(email) != 1 || email[0].Name != "send_email" {
		t.Errorf("email agent should only see email tools, got %v", email)
	}

	general := toolsFor(models.AgentGeneral, available)
	if len(general) != len(available) {
		t.Errorf("general agent should see everything, got %v", general)
	}
}

func TestRenderToolResult(t *testing.T) {
	ok := &models.ToolResult{Success: true, ToolName: "list_agenda_events", FormattedText: "Agenda: libre"}
	if got := renderToolResult(ok); got != "list_agenda_events: Agenda: libre" {
		t.Errorf("unexpected render %q", got)
	}

	failed := &models.ToolResult{Success: false, ToolName: "send_email", ErrorMessage: "smtp down"}
	if got := renderToolResult(failed); !strings.Contains(got, "failed") {
		t.Errorf("unexpected render %q", got)
	}
}

func TestExecuteToolCalls_PreservesOrder(t *testing.T) {
	exec := &fakeExecutor{
		results: map[string]*models.ToolResult{
			"a": {Success: true, FormattedText: "first"},
			"b": {Success: true, FormattedText: "second"},
		},
	}
	o := newTestOrchestrator(&fakeChatModel{}, exec, nil)

	state := &models.AgentState{RequestID: "req_test", StartedAt: time.Now()}
	results := o.executeToolCalls(context.Background(), state, DefaultRunOptions(), []ports.ToolInvocation{
		{Name: "a"}, {Name: "b"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].FormattedText != "first" || results[1].FormattedText != "second" {
		t.Errorf("order not preserved: %v", results)
	}
}
