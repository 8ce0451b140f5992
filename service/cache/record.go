package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
)

// ErrCorruptEntry is returned when a cached blob does not decode as a record.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// DefaultFetchTimeout bounds a single chain fetch made to fill a miss.
const DefaultFetchTimeout = 30 * time.Second

// RecordFetcher loads a record from the chain. *solana.Client satisfies it.
type RecordFetcher interface {
	GetRawRecord(ctx context.Context, signature string) (*ledger.RawRecord, error)
}

// Key is the store key for a signature.
func Key(signature string) string {
	return "transaction-" + signature
}

// RecordCache is a read-through cache of raw records with at most one
// in-flight fetch per signature.
//
// A fetch runs detached from the context of the caller that started it.
// Callers whose context ends stop waiting, but the fetch continues for
// everyone else and the store is only written once a complete record has
// been fetched and encoded.
type RecordCache struct {
	store        Store
	fetcher      RecordFetcher
	group        singleflight.Group
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures a RecordCache.
type Option func(*RecordCache)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *RecordCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// NewRecordCache creates a RecordCache. m may be nil.
func NewRecordCache(store Store, fetcher RecordFetcher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *RecordCache {
	c := &RecordCache{
		store:        store,
		fetcher:      fetcher,
		fetchTimeout: DefaultFetchTimeout,
		metrics:      m,
		logger:       logger.With("component", "record_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the record for signature, fetching and storing it on a miss.
// Every caller gets its own decoded copy.
func (c *RecordCache) Get(ctx context.Context, signature string) (*ledger.RawRecord, error) {
	key := Key(signature)

	blob, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.recordLookup("error")
		return nil, fmt.Errorf("cache lookup %s: %w", signature, err)
	}
	if ok {
		rec, err := decode(blob)
		if err != nil {
			c.recordLookup("corrupt")
			c.logger.ErrorContext(ctx, "corrupt cache entry", "signature", signature, "error", err)
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, signature, err)
		}
		c.recordLookup("hit")
		return rec, nil
	}
	c.recordLookup("miss")

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(signature, func() (interface{}, error) {
		// A flight that finished between our miss and DoChan has already
		// written the entry.
		if blob, ok, err := c.store.Get(detached, key); err == nil && ok {
			return blob, nil
		}
		return c.fetch(detached, signature)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared && c.metrics != nil {
			c.metrics.RecordCacheFetchShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		rec, err := decode(res.Val.([]byte))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, signature, err)
		}
		return rec, nil
	}
}

// fetch loads the record from the chain and writes it through. It returns
// the encoded blob so each waiter decodes a private copy.
func (c *RecordCache) fetch(ctx context.Context, signature string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	rec, err := c.fetcher.GetRawRecord(ctx, signature)
	if err != nil {
		c.recordFetch("error", start)
		return nil, err
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		c.recordFetch("error", start)
		return nil, fmt.Errorf("encode %s: %w", signature, err)
	}
	c.recordFetch("success", start)

	if err := c.store.Set(ctx, Key(signature), blob); err != nil {
		// The record is still good; the next lookup simply refetches.
		c.logger.WarnContext(ctx, "failed to write cache entry",
			"signature", signature,
			"error", err,
		)
	}
	return blob, nil
}

func decode(blob []byte) (*ledger.RawRecord, error) {
	var rec ledger.RawRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, err
	}
	if rec.Signature == "" {
		return nil, errors.New("record has no signature")
	}
	return &rec, nil
}

func (c *RecordCache) recordLookup(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(result)
	}
}

func (c *RecordCache) recordFetch(status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCacheFetch(status, time.Since(start).Seconds())
	}
}
