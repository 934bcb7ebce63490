package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clara-assistant/clara/internal/domain/models"
)

// AuditRepository appends to the clara_audit_log trail. Records are
// never updated or deleted.
type AuditRepository struct {
	BaseRepository
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *AuditRepository) Record(ctx context.Context, rec *models.AuditRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	payload, err := marshalJSONField(&rec.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clara_audit_log (id, action, actor, payload, error_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.conn(ctx).Exec(ctx, query,
		rec.ID,
		rec.Action,
		rec.Actor,
		payload,
		nullString(rec.ErrorKind),
		rec.CreatedAt,
	)
	return err
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, action, actor, payload, error_kind, created_at
		FROM clara_audit_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var payload []byte
		var errorKind *string
		if err := rows.Scan(
			&rec.ID,
			&rec.Action,
			&rec.Actor,
			&payload,
			&errorKind,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := unmarshalJSONField(payload, &rec.Payload); err != nil {
			return nil, err
		}
		if errorKind != nil {
			rec.ErrorKind = *errorKind
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
