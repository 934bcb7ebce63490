package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// EventRepository stores extracted candidate events in
// clara_extracted_events and provider-synced rows in
// clara_calendar_events.
type EventRepository struct {
	BaseRepository
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *EventRepository) InsertExtracted(ctx context.Context, ev *models.ExtractedEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	attendees, err := marshalJSONField(&ev.Attendees)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clara_extracted_events (
			id, source, title, start_at, end_at, timezone, location,
			attendees, status, confidence, relevance_score, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.conn(ctx).Exec(ctx, query,
		ev.ID,
		ev.Source,
		ev.Title,
		ev.StartAt,
		ev.EndAt,
		nullString(ev.Timezone),
		nullString(ev.Location),
		attendees,
		string(ev.Status),
		ev.Confidence,
		ev.RelevanceScore,
		ev.CreatedAt,
		ev.UpdatedAt,
	)
	return err
}

func (r *EventRepository) GetExtracted(ctx context.Context, id string) (*models.ExtractedEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectExtractedColumns + ` WHERE id = $1`

	ev, err := scanExtracted(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (r *EventRepository) ListExtracted(ctx context.Context, statuses []models.EventStatus, limit int) ([]*models.ExtractedEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := selectExtractedColumns
	args := []interface{}{}

	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, s := range statuses {
			strs[i] = string(s)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, strs)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return r.queryExtracted(ctx, query, args...)
}

// UpdateStatus validates the transition against the current row inside
// the statement itself; a zero-row update on an existing id means the
// transition was illegal.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status models.EventStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	current, err := r.GetExtracted(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(status) {
		return domain.Errorf(domain.KindApplication, "%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
	}

	query := `
		UPDATE clara_extracted_events
		SET status = $2, updated_at = $3
		WHERE id = $1`

	_, err = r.conn(ctx).Exec(ctx, query, id, string(status), time.Now())
	return err
}

// FindOverlapping returns non-rejected extracted events whose span
// intersects [from, to). Events without a start never match.
func (r *EventRepository) FindOverlapping(ctx context.Context, from, to time.Time) ([]*models.ExtractedEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectExtractedColumns + `
		WHERE status != 'rejected'
		  AND start_at IS NOT NULL
		  AND start_at < $2
		  AND COALESCE(end_at, start_at + INTERVAL '1 hour') > $1
		ORDER BY start_at ASC`

	return r.queryExtracted(ctx, query, from, to)
}

func (r *EventRepository) UpsertCalendar(ctx context.Context, ev *models.CalendarEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO clara_calendar_events (
			id, provider, provider_event_id, calendar_id, title,
			start_at, end_at, status, extracted_id, last_sync_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider, provider_event_id) DO UPDATE SET
			calendar_id = EXCLUDED.calendar_id,
			title = EXCLUDED.title,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			status = EXCLUDED.status,
			last_sync_at = EXCLUDED.last_sync_at`

	_, err := r.conn(ctx).Exec(ctx, query,
		ev.ID,
		ev.Provider,
		ev.ProviderEventID,
		ev.CalendarID,
		ev.Title,
		ev.StartAt,
		ev.EndAt,
		ev.Status,
		ev.ExtractedID,
		nullTime(ev.LastSyncAt),
	)
	return err
}

func (r *EventRepository) ListCalendar(ctx context.Context, from, to time.Time) ([]*models.CalendarEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, provider, provider_event_id, calendar_id, title,
			   start_at, end_at, status, extracted_id, last_sync_at
		FROM clara_calendar_events
		WHERE start_at < $2 AND end_at > $1
		ORDER BY start_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		var ev models.CalendarEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Provider,
			&ev.ProviderEventID,
			&ev.CalendarID,
			&ev.Title,
			&ev.StartAt,
			&ev.EndAt,
			&ev.Status,
			&ev.ExtractedID,
			&ev.LastSyncAt,
		); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

const selectExtractedColumns = `
		SELECT id, source, title, start_at, end_at, timezone, location,
			   attendees, status, confidence, relevance_score, created_at, updated_at
		FROM clara_extracted_events`

func scanExtracted(row rowLike) (*models.ExtractedEvent, error) {
	var ev models.ExtractedEvent
	var timezone, location sql.NullString
	var status string
	var attendees []byte
	if err := row.Scan(
		&ev.ID,
		&ev.Source,
		&ev.Title,
		&ev.StartAt,
		&ev.EndAt,
		&timezone,
		&location,
		&attendees,
		&status,
		&ev.Confidence,
		&ev.RelevanceScore,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ev.Timezone = getString(timezone)
	ev.Location = getString(location)
	ev.Status = models.EventStatus(status)
	list, err := unmarshalJSONSlice[string](attendees)
	if err != nil {
		return nil, err
	}
	ev.Attendees = list
	return &ev, nil
}

func (r *EventRepository) queryExtracted(ctx context.Context, query string, args ...any) ([]*models.ExtractedEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ExtractedEvent
	for rows.Next() {
		ev, err := scanExtracted(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
