package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// MessageRepository stores inbound conversation messages. message_sid is
// the primary key, which makes webhook retries idempotent.
type MessageRepository struct {
	BaseRepository
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{BaseRepository: NewBaseRepository(pool)}
}

// Insert stores the message. A duplicate message_sid is swallowed by
// ON CONFLICT DO NOTHING and reported as inserted=false.
func (r *MessageRepository) Insert(ctx context.Context, msg *models.ConversationMessage) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO clara_messages (
			message_sid, conversation_id, from_addr, to_addr, body,
			received_at, processed, event_extracted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_sid) DO NOTHING`

	tag, err := r.conn(ctx).Exec(ctx, query,
		msg.MessageSID,
		msg.ConversationID,
		msg.From,
		msg.To,
		msg.Body,
		msg.ReceivedAt,
		msg.Processed,
		msg.EventExtracted,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepository) GetBySID(ctx context.Context, sid string) (*models.ConversationMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectMessageColumns + ` WHERE message_sid = $1`

	msg, err := scanMessage(r.conn(ctx).QueryRow(ctx, query, sid))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// LastN returns the newest n messages of the conversation in
// chronological order.
func (r *MessageRepository) LastN(ctx context.Context, conversationID string, n int) ([]*models.ConversationMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if n <= 0 {
		n = 10
	}

	query := `
		SELECT * FROM (` +
		selectMessageColumns + `
			WHERE conversation_id = $1
			ORDER BY received_at DESC
			LIMIT $2
		) recent
		ORDER BY received_at ASC`

	return r.queryMessages(ctx, query, conversationID, n)
}

func (r *MessageRepository) MarkProcessed(ctx context.Context, sid string, eventExtracted bool, linkedEventID *string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE clara_messages
		SET processed = TRUE,
			event_extracted = $2,
			linked_event_id = $3,
			processed_at = $4
		WHERE message_sid = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, sid, eventExtracted, linkedEventID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.ConversationMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := selectMessageColumns + `
		WHERE processed = FALSE
		ORDER BY received_at ASC
		LIMIT $1`

	return r.queryMessages(ctx, query, limit)
}

func (r *MessageRepository) ListAll(ctx context.Context, limit int) ([]*models.ConversationMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}

	query := selectMessageColumns + `
		ORDER BY received_at ASC
		LIMIT $1`

	return r.queryMessages(ctx, query, limit)
}

const selectMessageColumns = `
		SELECT message_sid, conversation_id, from_addr, to_addr, body,
			   received_at, processed, event_extracted, linked_event_id, processed_at
		FROM clara_messages`

type rowLike interface {
	Scan(dest ...any) error
}

func scanMessage(row rowLike) (*models.ConversationMessage, error) {
	var msg models.ConversationMessage
	if err := row.Scan(
		&msg.MessageSID,
		&msg.ConversationID,
		&msg.From,
		&msg.To,
		&msg.Body,
		&msg.ReceivedAt,
		&msg.Processed,
		&msg.EventExtracted,
		&msg.LinkedEventID,
		&msg.ProcessedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*models.ConversationMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ConversationMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
