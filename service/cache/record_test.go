package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/ledgerlens/service/ledger"
)

// fakeFetcher counts calls and optionally blocks until release is closed.
type fakeFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error

	mu         sync.Mutex
	ctxErrSeen error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{started: make(chan struct{}, 16)}
}

func (f *fakeFetcher) GetRawRecord(ctx context.Context, signature string) (*ledger.RawRecord, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ctxErrSeen = ctx.Err()
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	bt := int64(1671446877)
	return &ledger.RawRecord{
		Signature:    signature,
		BlockTime:    &bt,
		Fee:          5000,
		Instructions: ledger.Instructions{ledger.NativeTransfer{Source: "a", Destination: "b", Lamports: 1}},
	}, nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte) error { return errors.New("connection refused") }

// staleMissStore answers its first lookup with a miss taken before any write,
// and holds that answer until release is closed.
type staleMissStore struct {
	*MemoryStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *staleMissStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.calls.Add(1) == 1 {
		blob, ok, err := s.MemoryStore.Get(ctx, key)
		close(s.entered)
		<-s.release
		return blob, ok, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func newTestCache(store Store, fetcher RecordFetcher) *RecordCache {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecordCache(store, fetcher, nil, logger)
}

func TestRecordCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fetcher := newFakeFetcher()
	c := newTestCache(store, fetcher)

	first, err := c.Get(ctx, "sig1")
	require.NoError(t, err)
	assert.Equal(t, "sig1", first.Signature)

	second, err := c.Get(ctx, "sig1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int32(1), fetcher.calls.Load())
	_, ok, _ := store.Get(ctx, "transaction-sig1")
	assert.True(t, ok)
}

func TestRecordCache_CallersGetPrivateCopies(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(NewMemoryStore(), newFakeFetcher())

	first, err := c.Get(ctx, "sig1")
	require.NoError(t, err)
	first.Fee = 1

	second, err := c.Get(ctx, "sig1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), second.Fee)
}

func TestRecordCache_ConcurrentRequestsShareOneFetch(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	fetcher.release = make(chan struct{})
	c := newTestCache(NewMemoryStore(), fetcher)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*ledger.RawRecord, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(ctx, "shared")
		}(i)
	}

	<-fetcher.started
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	// Late arrivals find the stored entry, so the fetch count is exact.
	assert.Equal(t, int32(1), fetcher.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].Signature)
	}
}

func TestRecordCache_MissRacingFinishedFetchDoesNotRefetch(t *testing.T) {
	ctx := context.Background()
	store := &staleMissStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	fetcher := newFakeFetcher()
	c := newTestCache(store, fetcher)

	type result struct {
		rec *ledger.RawRecord
		err error
	}
	late := make(chan result, 1)
	go func() {
		rec, err := c.Get(ctx, "raced")
		late <- result{rec, err}
	}()
	<-store.entered

	// The first caller's flight completes and is forgotten while the late
	// caller still holds its miss.
	first, err := c.Get(ctx, "raced")
	require.NoError(t, err)
	assert.Equal(t, "raced", first.Signature)

	close(store.release)
	got := <-late
	require.NoError(t, got.err)
	assert.Equal(t, first, got.rec)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestRecordCache_FailedFetchWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fetcher := newFakeFetcher()
	fetcher.err = errors.New("node unreachable")
	c := newTestCache(store, fetcher)

	_, err := c.Get(ctx, "sig1")
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())

	_, err = c.Get(ctx, "sig1")
	require.Error(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load(), "failures are not cached")
}

func TestRecordCache_CallerCancelDoesNotAbortFetch(t *testing.T) {
	store := NewMemoryStore()
	fetcher := newFakeFetcher()
	fetcher.release = make(chan struct{})
	c := newTestCache(store, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "slow")
		done <- err
	}()

	<-fetcher.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, store.Len())

	close(fetcher.release)
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.NoError(t, fetcher.ctxErrSeen)
}

func TestRecordCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key("bad"), []byte("{not json")))
	require.NoError(t, store.Set(ctx, Key("empty"), []byte(`{}`)))
	fetcher := newFakeFetcher()
	c := newTestCache(store, fetcher)

	_, err := c.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorruptEntry)

	_, err = c.Get(ctx, "empty")
	assert.ErrorIs(t, err, ErrCorruptEntry)

	assert.Zero(t, fetcher.calls.Load())
}

func TestRecordCache_StoreErrorPropagates(t *testing.T) {
	fetcher := newFakeFetcher()
	c := newTestCache(failingStore{}, fetcher)

	_, err := c.Get(context.Background(), "sig1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, fetcher.calls.Load())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "transaction-abc", Key("abc"))
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	store, err := NewRedisStore(ctx, redisURL, "ledgerlens-test:", time.Minute)
	require.NoError(t, err)
	defer store.Close()

	key := Key(time.Now().Format(time.RFC3339Nano))

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, key, []byte("blob")))

	v, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("blob"), v)
}
