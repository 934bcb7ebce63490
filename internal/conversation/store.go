package conversation

import (
	"context"
	"log"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// eventStore commits an extracted event, its message link and its audit
// entry together. Without the pairing a crash between the writes leaves
// an event nobody can trace, or a processed message with no event.
type eventStore struct {
	messages ports.MessageRepository
	events   ports.EventRepository
	txm      ports.TransactionManager
	audit    ports.AuditRepository
	ids      *id.Generator
}

func newEventStore(messages ports.MessageRepository, events ports.EventRepository, txm ports.TransactionManager, audit ports.AuditRepository) *eventStore {
	return &eventStore{
		messages: messages,
		events:   events,
		txm:      txm,
		audit:    audit,
		ids:      id.New(),
	}
}

// store persists the event, marks its source message processed and
// records the audit entry in one transaction when a manager is wired.
func (s *eventStore) store(ctx context.Context, msg *models.ConversationMessage, event *models.ExtractedEvent) error {
	write := func(ctx context.Context) error {
		if err := s.events.InsertExtracted(ctx, event); err != nil {
			return err
		}
		if err := s.messages.MarkProcessed(ctx, msg.MessageSID, true, &event.ID); err != nil {
			return err
		}
		return s.recordAudit(ctx, event)
	}
	if s.txm == nil {
		return write(ctx)
	}
	return s.txm.WithTransaction(ctx, write)
}

func (s *eventStore) recordAudit(ctx context.Context, event *models.ExtractedEvent) error {
	if s.audit == nil {
		return nil
	}
	rec := &models.AuditRecord{
		ID:     s.ids.GenerateAuditID(),
		Action: "event_extracted",
		Actor:  "agent",
		Payload: map[string]any{
			"event_id":   event.ID,
			"title":      event.Title,
			"source":     event.Source,
			"confidence": event.Confidence,
		},
		CreatedAt: time.Now(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		return err
	}
	log.Printf("[eventStore.store] audit recorded: event_id=%s, action=%s", event.ID, rec.Action)
	return nil
}
