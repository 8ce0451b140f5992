package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
)

//go:embed schema.sql
var schema string

// Store persists summaries and per-wallet sync cursors in Postgres.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListSummariesParams contains filter and pagination parameters.
type ListSummariesParams struct {
	Wallet   string
	Currency string // empty = all currencies
	Limit    int32
	Offset   int32
}

const upsertSummary = `
INSERT INTO summaries (wallet, signature, block_time, direction, currency, body)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (wallet, signature) DO UPDATE SET
    block_time = EXCLUDED.block_time,
    direction  = EXCLUDED.direction,
    currency   = EXCLUDED.currency,
    body       = EXCLUDED.body,
    updated_at = now()`

// UpsertSummaries writes summaries for wallet in one transaction. Rewriting
// an existing signature replaces it, so a retried sync is harmless.
func (s *Store) UpsertSummaries(ctx context.Context, wallet string, summaries []ledger.Summary) (err error) {
	if len(summaries) == 0 {
		return nil
	}
	defer s.observe("upsert", "summaries", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, sum := range summaries {
		body, err := json.Marshal(sum)
		if err != nil {
			return fmt.Errorf("failed to encode summary %s: %w", sum.ID, err)
		}
		batch.Queue(upsertSummary, wallet, sum.ID, sum.Time(), string(sum.Direction), sum.Currency, body)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert summaries: %w", err)
	}
	return tx.Commit(ctx)
}

// ListSummaries returns a wallet's stored summaries, newest first.
func (s *Store) ListSummaries(ctx context.Context, params ListSummariesParams) (_ []ledger.Summary, err error) {
	defer s.observe("list", "summaries", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT body FROM summaries
		WHERE wallet = $1 AND ($2 = '' OR currency = $2)
		ORDER BY block_time DESC, signature DESC
		LIMIT $3 OFFSET $4`,
		params.Wallet, params.Currency, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	summaries := make([]ledger.Summary, 0, len(bodies))
	for _, body := range bodies {
		var sum ledger.Summary
		if err := json.Unmarshal(body, &sum); err != nil {
			return nil, fmt.Errorf("failed to decode stored summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// CountSummaries counts a wallet's stored summaries.
func (s *Store) CountSummaries(ctx context.Context, wallet string) (n int64, err error) {
	defer s.observe("count", "summaries", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM summaries WHERE wallet = $1`, wallet).Scan(&n)
	return n, err
}

// GetCursor returns the newest synced signature for wallet, or "" if the
// wallet has never been synced.
func (s *Store) GetCursor(ctx context.Context, wallet string) (sig string, err error) {
	defer s.observe("get", "wallet_cursors", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `SELECT signature FROM wallet_cursors WHERE wallet = $1`, wallet).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return sig, err
}

// SetCursor records signature as the newest synced signature for wallet.
func (s *Store) SetCursor(ctx context.Context, wallet, signature string) (err error) {
	defer s.observe("upsert", "wallet_cursors", time.Now(), &err)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wallet_cursors (wallet, signature) VALUES ($1, $2)
		ON CONFLICT (wallet) DO UPDATE SET signature = EXCLUDED.signature, updated_at = now()`,
		wallet, signature,
	)
	return err
}

// GetBackfill returns the wallet's pending backfill span. before is "" when
// nothing is pending.
func (s *Store) GetBackfill(ctx context.Context, wallet string) (before, until string, err error) {
	defer s.observe("get", "wallet_backfills", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `SELECT before_sig, until_sig FROM wallet_backfills WHERE wallet = $1`, wallet).Scan(&before, &until)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", nil
	}
	return before, until, err
}

// SetBackfill records the wallet's pending backfill span. An empty before
// clears it.
func (s *Store) SetBackfill(ctx context.Context, wallet, before, until string) (err error) {
	if before == "" {
		defer s.observe("delete", "wallet_backfills", time.Now(), &err)
		_, err = s.pool.Exec(ctx, `DELETE FROM wallet_backfills WHERE wallet = $1`, wallet)
		return err
	}
	defer s.observe("upsert", "wallet_backfills", time.Now(), &err)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wallet_backfills (wallet, before_sig, until_sig) VALUES ($1, $2, $3)
		ON CONFLICT (wallet) DO UPDATE SET
		    before_sig = EXCLUDED.before_sig,
		    until_sig  = EXCLUDED.until_sig,
		    updated_at = now()`,
		wallet, before, until,
	)
	return err
}

// DeleteWallet drops a wallet's summaries, cursor and backfill so the next
// sync starts over.
func (s *Store) DeleteWallet(ctx context.Context, wallet string) (err error) {
	defer s.observe("delete", "summaries", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM summaries WHERE wallet = $1`, wallet); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wallet_cursors WHERE wallet = $1`, wallet); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wallet_backfills WHERE wallet = $1`, wallet); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) observe(op, table string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), *err)
	}
}
