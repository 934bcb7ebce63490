package ports

import (
	"context"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
)

// ChunkRepository persists semantic memory chunks and serves
// similarity search over their embeddings.
type ChunkRepository interface {
	Insert(ctx context.Context, chunk *models.SemanticChunk) error
	GetByID(ctx context.Context, chunkID string) (*models.SemanticChunk, error)
	// SearchSimilar returns the topK nearest chunks by cosine similarity,
	// optionally restricted to sources with the given prefix.
	SearchSimilar(ctx context.Context, embedding []float32, topK int, sourcePrefix string) ([]*models.ScoredChunk, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// MessageRepository stores inbound conversation messages.
type MessageRepository interface {
	// Insert stores a message; a duplicate MessageSID is a no-op and
	// returns inserted=false.
	Insert(ctx context.Context, msg *models.ConversationMessage) (inserted bool, err error)
	GetBySID(ctx context.Context, sid string) (*models.ConversationMessage, error)
	// LastN returns the most recent n messages of a conversation in
	// chronological order.
	LastN(ctx context.Context, conversationID string, n int) ([]*models.ConversationMessage, error)
	MarkProcessed(ctx context.Context, sid string, eventExtracted bool, linkedEventID *string) error
	ListUnprocessed(ctx context.Context, limit int) ([]*models.ConversationMessage, error)
	ListAll(ctx context.Context, limit int) ([]*models.ConversationMessage, error)
}

// EventRepository stores extracted candidate events and their
// provider-materialised counterparts.
type EventRepository interface {
	InsertExtracted(ctx context.Context, ev *models.ExtractedEvent) error
	GetExtracted(ctx context.Context, id string) (*models.ExtractedEvent, error)
	ListExtracted(ctx context.Context, statuses []models.EventStatus, limit int) ([]*models.ExtractedEvent, error)
	UpdateStatus(ctx context.Context, id string, status models.EventStatus) error
	// FindOverlapping returns extracted events intersecting [from, to)
	// that are not rejected.
	FindOverlapping(ctx context.Context, from, to time.Time) ([]*models.ExtractedEvent, error)

	UpsertCalendar(ctx context.Context, ev *models.CalendarEvent) error
	ListCalendar(ctx context.Context, from, to time.Time) ([]*models.CalendarEvent, error)
}

// AuditRepository appends to the action audit trail.
type AuditRepository interface {
	Record(ctx context.Context, rec *models.AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]*models.AuditRecord, error)
}

// TransactionManager scopes a function to one database transaction.
// Repository calls made with the inner context share the transaction;
// an error or panic rolls everything back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
