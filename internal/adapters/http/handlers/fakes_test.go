package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

type fakeEventRepo struct {
	mu        sync.Mutex
	extracted map[string]*models.ExtractedEvent
	calendar  map[string]*models.CalendarEvent
	listErr   error
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		extracted: make(map[string]*models.ExtractedEvent),
		calendar:  make(map[string]*models.CalendarEvent),
	}
}

func (f *fakeEventRepo) InsertExtracted(ctx context.Context, ev *models.ExtractedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted[ev.ID] = ev
	return nil
}

func (f *fakeEventRepo) GetExtracted(ctx context.Context, id string) (*models.ExtractedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.extracted[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return ev, nil
}

func (f *fakeEventRepo) ListExtracted(ctx context.Context, statuses []models.EventStatus, limit int) ([]*models.ExtractedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.ExtractedEvent
	for _, ev := range f.extracted {
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if ev.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventRepo) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.extracted[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	return ev.Transition(status)
}

func (f *fakeEventRepo) FindOverlapping(ctx context.Context, from, to time.Time) ([]*models.ExtractedEvent, error) {
	return nil, nil
}

func (f *fakeEventRepo) UpsertCalendar(ctx context.Context, ev *models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendar[ev.Provider+":"+ev.ProviderEventID] = ev
	return nil
}

func (f *fakeEventRepo) ListCalendar(ctx context.Context, from, to time.Time) ([]*models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CalendarEvent
	for _, ev := range f.calendar {
		if ev.StartAt.Before(to) && ev.EndAt.After(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*models.ConversationMessage
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]*models.ConversationMessage)}
}

func (f *fakeMessageRepo) Insert(ctx context.Context, msg *models.ConversationMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[msg.MessageSID]; ok {
		return false, nil
	}
	f.messages[msg.MessageSID] = msg
	return true, nil
}

func (f *fakeMessageRepo) GetBySID(ctx context.Context, sid string) (*models.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[sid]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return msg, nil
}

func (f *fakeMessageRepo) LastN(ctx context.Context, conversationID string, n int) ([]*models.ConversationMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) MarkProcessed(ctx context.Context, sid string, eventExtracted bool, linkedEventID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[sid]; ok {
		msg.Processed = true
		msg.EventExtracted = eventExtracted
		msg.LinkedEventID = linkedEventID
	}
	return nil
}

func (f *fakeMessageRepo) ListUnprocessed(ctx context.Context, limit int) ([]*models.ConversationMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) ListAll(ctx context.Context, limit int) ([]*models.ConversationMessage, error) {
	return nil, nil
}

type fakeTxManager struct {
	mu     sync.Mutex
	calls  int
	active bool
}

func (f *fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.active = true
	f.mu.Unlock()

	err := fn(ctx)

	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	return err
}

func (f *fakeTxManager) isActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	txm     *fakeTxManager
	records []*models.AuditRecord
	inTx    int
}

func (f *fakeAuditRepo) Record(ctx context.Context, rec *models.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	if f.txm != nil && f.txm.isActive() {
		f.inTx++
	}
	return nil
}

func (f *fakeAuditRepo) ListRecent(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

type fakeExecutor struct {
	mu          sync.Mutex
	executed    []string
	results     map[string]*models.ToolResult
	descriptors []models.ToolDescriptor
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args map[string]any) *models.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, name)
	if r, ok := f.results[name]; ok {
		copied := *r
		copied.ToolName = name
		return &copied
	}
	return &models.ToolResult{Success: true, ToolName: name, Via: models.ViaLocal}
}

func (f *fakeExecutor) List(ctx context.Context) []models.ToolDescriptor {
	return f.descriptors
}

type fakeModel struct {
	mu        sync.Mutex
	decisions []*ports.ChatDecision
	err       error
}

func (f *fakeModel) Chat(ctx context.Context, history []models.ChatTurn, userText string) (string, error) {
	return "", f.err
}

func (f *fakeModel) ChatWithTools(ctx context.Context, history []models.ChatTurn, userText string, tools []models.ToolDescriptor) (*ports.ChatDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.decisions) == 0 {
		return &ports.ChatDecision{Content: "done"}, nil
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d, nil
}
