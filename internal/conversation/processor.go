package conversation

import (
	"context"
	"fmt"
	"log"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// BatchResult summarises one reprocessing run.
type BatchResult struct {
	Scanned   int `json:"scanned"`
	Extracted int `json:"extracted"`
	Failed    int `json:"failed"`
}

// Processor re-runs extraction over stored messages, used after
// extractor improvements or to drain a backlog. Extraction anchors on
// each message's original ReceivedAt, so old messages resolve to the
// days they meant, not to today.
type Processor struct {
	messages  ports.MessageRepository
	extractor *Extractor
	store     *eventStore
}

func NewProcessor(messages ports.MessageRepository, events ports.EventRepository, txm ports.TransactionManager, audit ports.AuditRepository) *Processor {
	return &Processor{
		messages:  messages,
		extractor: NewExtractor(),
		store:     newEventStore(messages, events, txm, audit),
	}
}

// Reprocess scans stored messages and extracts events from them. With
// all=false only unprocessed messages are scanned; with all=true every
// stored message is re-evaluated.
func (p *Processor) Reprocess(ctx context.Context, all bool, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = 500
	}

	list, err := p.list(ctx, all, limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Scanned: len(list)}
	for _, msg := range list {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		event := p.extractor.Extract(msg)
		if event == nil {
			if err := p.messages.MarkProcessed(ctx, msg.MessageSID, false, nil); err != nil {
				result.Failed++
				log.Printf("[Processor.Reprocess] mark failed: sid=%s, error=%v", msg.MessageSID, err)
			}
			continue
		}

		if err := p.store.store(ctx, msg, event); err != nil {
			result.Failed++
			log.Printf("[Processor.Reprocess] event store failed: sid=%s, error=%v", msg.MessageSID, err)
			continue
		}
		result.Extracted++
	}

	log.Printf("[Processor.Reprocess] batch done: scanned=%d, extracted=%d, failed=%d",
		result.Scanned, result.Extracted, result.Failed)
	return result, nil
}

func (p *Processor) list(ctx context.Context, all bool, limit int) ([]*models.ConversationMessage, error) {
	if all {
		list, err := p.messages.ListAll(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("listing messages failed: %w", err)
		}
		return list, nil
	}
	list, err := p.messages.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed messages failed: %w", err)
	}
	return list, nil
}
