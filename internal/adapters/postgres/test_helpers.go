package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

// setupMockContext creates a context with the mock as a transaction
// This allows the BaseRepository.conn() method to return the mock
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey, mock)
}

// setupTestDB connects to the integration test database, cleaning test
// rows before and after. Tests skip when no database is reachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := getTestDatabaseURL()
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cleanupTestData(t, pool)

	t.Cleanup(func() {
		cleanupTestData(t, pool)
		pool.Close()
	})

	return pool
}

func getTestDatabaseURL() string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgUser := os.Getenv("PGUSER")
	pgDatabase := os.Getenv("PGDATABASE")

	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgUser == "" {
		pgUser = "postgres"
	}
	if pgDatabase == "" {
		pgDatabase = "clara_test"
	}

	// Unix socket connections put the directory in the host parameter
	if len(pgHost) > 0 && pgHost[0] == '/' {
		return fmt.Sprintf("postgres://%s@:%s/%s?host=%s&sslmode=disable",
			pgUser, pgPort, pgDatabase, pgHost)
	}

	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
		pgUser, pgHost, pgPort, pgDatabase)
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	tables := []string{
		"clara_audit_log",
		"clara_calendar_events",
		"clara_extracted_events",
		"clara_messages",
		"clara_chunks",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE TRUE"); err != nil {
			t.Logf("cleanup %s: %v", table, err)
		}
	}
}
