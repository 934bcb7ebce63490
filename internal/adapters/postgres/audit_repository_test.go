package postgres

import (
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/clara-assistant/clara/internal/domain/models"
)

func TestAuditRepository_Record(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &AuditRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	rec := &models.AuditRecord{
		ID:     "aud_001",
		Action: "tool:send_whatsapp",
		Actor:  "agent",
		Payload: map[string]any{
			"to":      "whatsapp:+34600000001",
			"success": true,
		},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO clara_audit_log").
		WithArgs(rec.ID, rec.Action, rec.Actor, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.Record(ctx, rec); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAuditRepository_ListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &AuditRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	kind := "TRANSPORT"
	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "action", "actor", "payload", "error_kind", "created_at"}).
		AddRow("aud_002", "tool:search_emails", "agent", []byte(`{"query":"factura"}`), &kind, now).
		AddRow("aud_001", "tool:list_agenda_events", "agent", []byte(`{}`), nil, now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, action, actor, payload, error_kind, created_at").
		WithArgs(10).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	records, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ErrorKind != "TRANSPORT" {
		t.Errorf("expected error kind on first record, got %q", records[0].ErrorKind)
	}
	if records[1].ErrorKind != "" {
		t.Errorf("expected empty error kind, got %q", records[1].ErrorKind)
	}
	if records[0].Payload["query"] != "factura" {
		t.Errorf("payload not decoded: %+v", records[0].Payload)
	}
}
