package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

const (
	// contextMessages is how many prior messages inform processing.
	contextMessages = 10
	// processTimeout bounds the async work for one message.
	processTimeout = 30 * time.Second
)

// Ingestor accepts webhook messages and processes them asynchronously.
// Insert is the idempotency gate: a redelivered MessageSID is dropped
// before any processing starts. Processing is serialized per
// conversation so context reads see a consistent history.
type Ingestor struct {
	messages  ports.MessageRepository
	extractor *Extractor
	store     *eventStore
	executor  ports.ToolExecutor

	// Reply controls whether extracted events are announced back over
	// the messenger.
	Reply bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

func NewIngestor(messages ports.MessageRepository, events ports.EventRepository, executor ports.ToolExecutor, txm ports.TransactionManager, audit ports.AuditRepository) *Ingestor {
	return &Ingestor{
		messages:  messages,
		extractor: NewExtractor(),
		store:     newEventStore(messages, events, txm, audit),
		executor:  executor,
		Reply:     true,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Ingest stores the message and schedules processing. It returns
// whether the message was new; duplicates are acknowledged without
// side effects.
func (in *Ingestor) Ingest(ctx context.Context, msg *models.ConversationMessage) (bool, error) {
	if strings.TrimSpace(msg.Body) == "" {
		return false, fmt.Errorf("message %s has no body", msg.MessageSID)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	inserted, err := in.messages.Insert(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("message insert failed: %w", err)
	}
	if !inserted {
		log.Printf("[Ingestor.Ingest] duplicate delivery ignored: sid=%s", msg.MessageSID)
		return false, nil
	}

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		in.process(ctx, msg)
	}()
	return true, nil
}

// Wait blocks until all in-flight processing finishes. Used on
// shutdown and by tests.
func (in *Ingestor) Wait() {
	in.wg.Wait()
}

func (in *Ingestor) process(ctx context.Context, msg *models.ConversationMessage) {
	lock := in.conversationLock(msg.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	history, err := in.messages.LastN(ctx, msg.ConversationID, contextMessages)
	if err != nil {
		log.Printf("[Ingestor.process] context read failed: sid=%s, error=%v", msg.MessageSID, err)
		history = nil
	}

	event := in.extractor.ExtractFromThread(history, msg)
	if event == nil {
		if err := in.messages.MarkProcessed(ctx, msg.MessageSID, false, nil); err != nil {
			log.Printf("[Ingestor.process] mark failed: sid=%s, error=%v", msg.MessageSID, err)
		}
		return
	}

	if err := in.store.store(ctx, msg, event); err != nil {
		log.Printf("[Ingestor.process] event store failed: sid=%s, error=%v", msg.MessageSID, err)
		return
	}
	log.Printf("[Ingestor.process] event extracted: sid=%s, event_id=%s, title=%q, confidence=%.2f",
		msg.MessageSID, event.ID, event.Title, event.Confidence)

	if in.Reply && in.executor != nil {
		in.announce(ctx, msg, event)
	}
}

// announce suggests the extracted event back to the sender.
func (in *Ingestor) announce(ctx context.Context, msg *models.ConversationMessage, event *models.ExtractedEvent) {
	body := fmt.Sprintf("He detectado un posible evento: %q", event.Title)
	if event.StartAt != nil {
		body += fmt.Sprintf(" el %s", event.StartAt.Format("02/01 15:04"))
	}
	body += ". Responde 'confirmar' para añadirlo a la agenda."

	result := in.executor.Execute(ctx, "send_whatsapp", map[string]any{
		"to":   msg.From,
		"body": body,
	})
	if !result.Success {
		log.Printf("[Ingestor.announce] reply failed: sid=%s, error=%s", msg.MessageSID, result.ErrorMessage)
	}
}

func (in *Ingestor) conversationLock(conversationID string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	lock, ok := in.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		in.locks[conversationID] = lock
	}
	return lock
}
