package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
)

func testMessage(sid string) *models.ConversationMessage {
	return &models.ConversationMessage{
		MessageSID:     sid,
		ConversationID: "whatsapp:+34600000001",
		From:           "whatsapp:+34600000001",
		To:             "whatsapp:+34600000002",
		Body:           "mensaje de prueba",
		ReceivedAt:     time.Now(),
	}
}

func TestTransactionManager_Commit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	msgRepo := NewMessageRepository(pool)

	msg := testMessage("SM_tx_commit1")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		_, err := msgRepo.Insert(txCtx, msg)
		return err
	})

	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	retrieved, err := msgRepo.GetBySID(context.Background(), msg.MessageSID)
	if err != nil {
		t.Fatalf("GetBySID failed: %v", err)
	}
	if retrieved.MessageSID != msg.MessageSID {
		t.Error("message should be committed")
	}
}

func TestTransactionManager_Rollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	msgRepo := NewMessageRepository(pool)

	msg := testMessage("SM_tx_rollback1")
	testErr := errors.New("test error")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if _, err := msgRepo.Insert(txCtx, msg); err != nil {
			return err
		}
		return testErr
	})

	if err != testErr {
		t.Fatalf("expected test error, got %v", err)
	}

	_, err = msgRepo.GetBySID(context.Background(), msg.MessageSID)
	if err == nil {
		t.Error("message should have been rolled back")
	}
}

func TestTransactionManager_NestedTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	msgRepo := NewMessageRepository(pool)

	msg1 := testMessage("SM_tx_nested1")
	msg2 := testMessage("SM_tx_nested2")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if _, err := msgRepo.Insert(txCtx, msg1); err != nil {
			return err
		}

		// Nested transaction should reuse the outer one
		return txMgr.WithTransaction(txCtx, func(nestedCtx context.Context) error {
			_, err := msgRepo.Insert(nestedCtx, msg2)
			return err
		})
	})

	if err != nil {
		t.Fatalf("Nested transaction failed: %v", err)
	}

	if _, err := msgRepo.GetBySID(context.Background(), msg1.MessageSID); err != nil {
		t.Error("first message should be committed")
	}
	if _, err := msgRepo.GetBySID(context.Background(), msg2.MessageSID); err != nil {
		t.Error("second message should be committed")
	}
}

func TestTransactionManager_NestedRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	msgRepo := NewMessageRepository(pool)

	msg1 := testMessage("SM_tx_nested_rb1")
	msg2 := testMessage("SM_tx_nested_rb2")
	testErr := errors.New("nested error")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if _, err := msgRepo.Insert(txCtx, msg1); err != nil {
			return err
		}

		return txMgr.WithTransaction(txCtx, func(nestedCtx context.Context) error {
			if _, err := msgRepo.Insert(nestedCtx, msg2); err != nil {
				return err
			}
			return testErr
		})
	})

	if err != testErr {
		t.Fatalf("expected test error, got %v", err)
	}

	if _, err := msgRepo.GetBySID(context.Background(), msg1.MessageSID); err == nil {
		t.Error("first message should be rolled back")
	}
	if _, err := msgRepo.GetBySID(context.Background(), msg2.MessageSID); err == nil {
		t.Error("second message should be rolled back")
	}
}

func TestTransactionManager_GetTx_NoTransaction(t *testing.T) {
	ctx := context.Background()

	tx := GetTx(ctx)
	if tx != nil {
		t.Error("expected nil transaction in empty context")
	}
}

func TestTransactionManager_GetTx_WithTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if GetTx(txCtx) == nil {
			t.Error("expected transaction in transaction context")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}
