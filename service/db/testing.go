package db

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestStore wraps a Store with test cleanup functionality.
type TestStore struct {
	*Store
	pool *pgxpool.Pool
}

// NewTestStore connects to TEST_DATABASE_URL and applies the schema. The test
// is skipped when the variable is unset or the database is unreachable.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping database test (TEST_DATABASE_URL is not set)")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}

	store := NewStore(pool, nil)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	ts := &TestStore{Store: store, pool: pool}
	ts.Cleanup(t)
	t.Cleanup(func() {
		ts.Cleanup(t)
		pool.Close()
	})
	return ts
}

// Cleanup removes all data from test tables.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()

	_, err := ts.pool.Exec(context.Background(), "TRUNCATE TABLE summaries, wallet_cursors, wallet_backfills")
	if err != nil {
		t.Fatalf("failed to cleanup test database: %v", err)
	}
}
