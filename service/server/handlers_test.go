package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/ledgerlens/service/config"
	"github.com/brojonat/ledgerlens/service/db"
	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "5FHwkrdxntdK24hgQU8qgBjn35Y1zwhz1GZwCkP2UJnM"
	usdcMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type summarizeCall struct {
	wallet string
	limit  int
	before string
	until  string
	opts   ledger.Options
}

type fakeSummarizer struct {
	mu     sync.Mutex
	calls  []summarizeCall
	result *history.BatchResult
	err    error
}

func (f *fakeSummarizer) SummarizeWallet(ctx context.Context, wallet string, limit int, before, until string, opts ledger.Options) (*history.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, summarizeCall{wallet, limit, before, until, opts})
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &history.BatchResult{Wallet: wallet}, nil
	}
	return f.result, nil
}

func (f *fakeSummarizer) lastCall(t *testing.T) summarizeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeStore struct {
	params    db.ListSummariesParams
	summaries []ledger.Summary
	total     int64
	err       error
}

func (f *fakeStore) ListSummaries(ctx context.Context, params db.ListSummariesParams) ([]ledger.Summary, error) {
	f.params = params
	return f.summaries, f.err
}

func (f *fakeStore) CountSummaries(ctx context.Context, wallet string) (int64, error) {
	return f.total, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		SignatureLimit:      100,
		DefaultSyncInterval: 5 * time.Minute,
		MinSyncInterval:     time.Minute,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(cfg *config.Config, summarizer WalletSummarizer, store SummaryStore, scheduler temporal.Scheduler) http.Handler {
	srv := New(":0", cfg, summarizer, store, scheduler, ledger.DefaultCurrencyTable(), nil, testLogger())
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

func summary(id string, date time.Time, dir ledger.Direction, amount uint64, currency string) ledger.Summary {
	return ledger.Summary{
		ID:        id,
		Date:      date.UnixMilli(),
		Status:    true,
		Direction: dir,
		Amount:    amount,
		Currency:  currency,
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
	w := do(t, h, http.MethodOptions, "/api/v1/wallets/"+testWallet+"/schedule", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), receiptKeyHeader)
}

func TestRequestID(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)

	t.Run("echoes caller id", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/health", "", requestIDHeader, "abc-123")
		assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	})

	t.Run("generates id when absent", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/health", "")
		_, err := uuid.Parse(w.Header().Get(requestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/health", "", requestIDHeader, strings.Repeat("x", 200))
		_, err := uuid.Parse(w.Header().Get(requestIDHeader))
		assert.NoError(t, err)
	})
}

func TestListCurrencies(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
	w := do(t, h, http.MethodGet, "/api/v1/currencies", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Currencies []ledger.Currency `json:"currencies"`
		Count      int               `json:"count"`
	}](t, w)
	assert.Equal(t, len(ledger.DefaultCurrencies), resp.Count)
	require.NotEmpty(t, resp.Currencies)
	assert.Equal(t, "SOL", resp.Currencies[0].Symbol)
}

func TestGetSummaries(t *testing.T) {
	day := time.Date(2022, 12, 19, 10, 0, 0, 0, time.UTC)
	s1 := summary("sig1", day, ledger.DirectionSent, 1500000, usdcMint)

	t.Run("success", func(t *testing.T) {
		fake := &fakeSummarizer{result: &history.BatchResult{
			Wallet: testWallet,
			Outcomes: []ledger.Outcome{
				ledger.Summarized(&s1),
				ledger.Skipped("sig2", ledger.SkipUnsupported),
				ledger.Failed("sig3", errors.New("node unreachable")),
			},
		}}
		h := newTestHandler(testConfig(), fake, nil, nil)

		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Wallet    string           `json:"wallet"`
			Summaries []ledger.Summary `json:"summaries"`
			Skipped   []map[string]any `json:"skipped"`
			Failed    []map[string]any `json:"failed"`
			Count     int              `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, testWallet, resp.Wallet)
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Summaries, 1)
		assert.Equal(t, s1, resp.Summaries[0])
		require.Len(t, resp.Skipped, 1)
		assert.Equal(t, "sig2", resp.Skipped[0]["signature"])
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, "node unreachable", resp.Failed[0]["error"])

		call := fake.lastCall(t)
		assert.Equal(t, testWallet, call.wallet)
		assert.Equal(t, 100, call.limit)
		assert.False(t, call.opts.EnableReceipts)
	})

	t.Run("empty wallet renders empty lists", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			fmt.Sprintf(`{"wallet":%q,"summaries":[],"skipped":[],"failed":[],"count":0}`, testWallet),
			w.Body.String())
	})

	t.Run("passes paging parameters", func(t *testing.T) {
		fake := &fakeSummarizer{}
		h := newTestHandler(testConfig(), fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries?limit=25&before=abc&until=def", "")
		require.Equal(t, http.StatusOK, w.Code)

		call := fake.lastCall(t)
		assert.Equal(t, 25, call.limit)
		assert.Equal(t, "abc", call.before)
		assert.Equal(t, "def", call.until)
	})

	t.Run("caller error is bad request", func(t *testing.T) {
		fake := &fakeSummarizer{err: fmt.Errorf("%w: nothing", history.ErrEmptySignatureList)}
		h := newTestHandler(testConfig(), fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("listing failure is bad gateway", func(t *testing.T) {
		fake := &fakeSummarizer{err: errors.New("failed to list signatures: connection refused")}
		h := newTestHandler(testConfig(), fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "failed to list wallet transactions", errorMessage(t, w))
	})
}

func TestGetSummaries_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		address   string
		query     string
		wantError string
	}{
		{"sql injection", "abc;drop", "", "suspicious pattern"},
		{"control character", "abc\x01def", "", "control characters"},
		{"non base58", "0OIl", "", "base58"},
		{"too long", strings.Repeat("1", 101), "", "too long"},
		{"not a public key", "1111", "", "not a valid public key"},
		{"limit not integer", testWallet, "limit=abc", "must be an integer"},
		{"limit zero", testWallet, "limit=0", "at least 1"},
		{"limit too large", testWallet, "limit=1001", "cannot exceed 1000"},
		{"bad before", testWallet, "before=0abc", "invalid before"},
		{"long until", testWallet, "until=" + strings.Repeat("1", 101), "until too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSummarizer{}
			h := newTestHandler(testConfig(), fake, nil, nil)

			target := "/api/v1/wallets/" + url.PathEscape(tt.address) + "/summaries"
			if tt.query != "" {
				target += "?" + tt.query
			}
			w := do(t, h, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, errorMessage(t, w), tt.wantError)
			assert.Empty(t, fake.calls, "summarizer must not run on invalid input")
		})
	}
}

func TestGetSummaries_ReceiptKey(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	t.Run("ignored when receipts disabled", func(t *testing.T) {
		fake := &fakeSummarizer{}
		h := newTestHandler(testConfig(), fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "", receiptKeyHeader, "garbage")
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, fake.lastCall(t).opts.EnableReceipts)
	})

	t.Run("enabled with valid key", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReceiptsEnabled = true
		fake := &fakeSummarizer{}
		h := newTestHandler(cfg, fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "", receiptKeyHeader, key.String())
		require.Equal(t, http.StatusOK, w.Code)

		opts := fake.lastCall(t).opts
		assert.True(t, opts.EnableReceipts)
		assert.Equal(t, []byte(key), opts.SecretKey)
	})

	t.Run("enabled without key", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReceiptsEnabled = true
		fake := &fakeSummarizer{}
		h := newTestHandler(cfg, fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, fake.lastCall(t).opts.EnableReceipts)
	})

	t.Run("enabled with invalid key", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReceiptsEnabled = true
		fake := &fakeSummarizer{}
		h := newTestHandler(cfg, fake, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/summaries", "", receiptKeyHeader, "not-a-key")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMessage(t, w), receiptKeyHeader)
		assert.Empty(t, fake.calls)
	})
}

func TestGetDays(t *testing.T) {
	day1 := time.Date(2022, 12, 19, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2022, 12, 20, 9, 0, 0, 0, time.UTC)
	a := summary("a", day1, ledger.DirectionSent, 1000, usdcMint)
	b := summary("b", day1.Add(time.Hour), ledger.DirectionReceived, 500, usdcMint)
	c := summary("c", day2, ledger.DirectionSent, 7, ledger.NativeMint)

	newFake := func() *fakeSummarizer {
		return &fakeSummarizer{result: &history.BatchResult{
			Wallet:   testWallet,
			Outcomes: []ledger.Outcome{ledger.Summarized(&c), ledger.Summarized(&b), ledger.Summarized(&a)},
		}}
	}

	t.Run("newest first by default", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[daysResponse](t, w)
		require.Len(t, resp.Days, 2)
		assert.Equal(t, "2022-12-20", resp.Days[0].IsoDate)
		assert.Equal(t, uint64(7), resp.Days[0].TotalSpending)
		assert.Equal(t, "0.000000007 SOL", resp.Days[0].TotalSpendingDisplay)
		assert.Equal(t, "2022-12-19", resp.Days[1].IsoDate)
		assert.Equal(t, uint64(1000), resp.Days[1].TotalSpending)
		assert.Equal(t, "0.001 USDC", resp.Days[1].TotalSpendingDisplay)
		require.Len(t, resp.Days[1].Transactions, 2)
		assert.Equal(t, "b", resp.Days[1].Transactions[0].ID)
	})

	t.Run("oldest first", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?order=oldest", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[daysResponse](t, w)
		require.Len(t, resp.Days, 2)
		assert.Equal(t, "2022-12-19", resp.Days[0].IsoDate)
		assert.Equal(t, "a", resp.Days[0].Transactions[0].ID)
	})

	t.Run("currency by symbol", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?currency=usdc", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[daysResponse](t, w)
		require.Len(t, resp.Days, 1)
		assert.Equal(t, "2022-12-19", resp.Days[0].IsoDate)
	})

	t.Run("currency by native mint", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?currency=native", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[daysResponse](t, w)
		require.Len(t, resp.Days, 1)
		assert.Equal(t, "c", resp.Days[0].Transactions[0].ID)
	})

	t.Run("query matches date", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?q=2022-12-20", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[daysResponse](t, w)
		require.Len(t, resp.Days, 1)
		assert.Equal(t, "2022-12-20", resp.Days[0].IsoDate)
	})

	t.Run("no matches renders empty list", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?q=nothing-like-this", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"days":[]`)
	})

	t.Run("invalid order", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?order=sideways", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid currency", func(t *testing.T) {
		h := newTestHandler(testConfig(), newFake(), nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/days?currency=FOO", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMessage(t, w), "invalid currency")
	})
}

func TestGetHistory(t *testing.T) {
	day := time.Date(2022, 12, 19, 10, 0, 0, 0, time.UTC)

	t.Run("disabled without store", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/history", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("defaults", func(t *testing.T) {
		store := &fakeStore{
			summaries: []ledger.Summary{summary("a", day, ledger.DirectionSent, 1, usdcMint)},
			total:     42,
		}
		h := newTestHandler(testConfig(), &fakeSummarizer{}, store, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/history", "")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, db.ListSummariesParams{Wallet: testWallet, Limit: 100}, store.params)

		resp := decode[map[string]any](t, w)
		assert.EqualValues(t, 1, resp["count"])
		assert.EqualValues(t, 42, resp["total"])
		assert.EqualValues(t, 100, resp["limit"])
		assert.EqualValues(t, 0, resp["offset"])
	})

	t.Run("filters and paging", func(t *testing.T) {
		store := &fakeStore{}
		h := newTestHandler(testConfig(), &fakeSummarizer{}, store, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/history?currency=USDC&limit=10&offset=20", "")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, db.ListSummariesParams{
			Wallet:   testWallet,
			Currency: usdcMint,
			Limit:    10,
			Offset:   20,
		}, store.params)
		assert.Contains(t, w.Body.String(), `"summaries":[]`)
	})

	t.Run("negative offset", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, &fakeStore{}, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/history?offset=-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "offset cannot be negative", errorMessage(t, w))
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, &fakeStore{err: errors.New("db down")}, nil)
		w := do(t, h, http.MethodGet, "/api/v1/wallets/"+testWallet+"/history", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal server error", errorMessage(t, w))
	})
}

func TestStartSync(t *testing.T) {
	t.Run("disabled without scheduler", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, nil)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no body", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", "")
		require.Equal(t, http.StatusAccepted, w.Code)

		resp := decode[map[string]string](t, w)
		assert.Equal(t, testWallet, resp["wallet"])
		assert.NotEmpty(t, resp["workflow_id"])
		assert.Equal(t, []temporal.SyncWalletInput{{Wallet: testWallet}}, scheduler.Syncs())
	})

	t.Run("with limit", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", `{"limit": 50}`)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []temporal.SyncWalletInput{{Wallet: testWallet, Limit: 50}}, scheduler.Syncs())
	})

	t.Run("invalid json", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", `{"limit":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, scheduler.Syncs())
	})

	t.Run("limit out of range", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", `{"limit": 5000}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		body := `{"limit": 1, "pad": "` + strings.Repeat("x", maxRequestBodySize) + `"}`
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMessage(t, w), "too large")
	})

	t.Run("scheduler failure", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		scheduler.SetSyncError(errors.New("temporal unavailable"))
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPost, "/api/v1/wallets/"+testWallet+"/sync", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSchedule(t *testing.T) {
	target := "/api/v1/wallets/" + testWallet + "/schedule"

	t.Run("upsert with default interval", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPut, target, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5m0s", decode[map[string]string](t, w)["interval"])

		interval, ok := scheduler.GetScheduleInterval(testWallet)
		require.True(t, ok)
		assert.Equal(t, 5*time.Minute, interval)
	})

	t.Run("upsert with explicit interval", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPut, target, `{"interval": "10m"}`)
		require.Equal(t, http.StatusOK, w.Code)

		interval, ok := scheduler.GetScheduleInterval(testWallet)
		require.True(t, ok)
		assert.Equal(t, 10*time.Minute, interval)
	})

	invalid := []struct {
		name      string
		body      string
		wantError string
	}{
		{"below minimum", `{"interval": "10s"}`, "at least 1m0s"},
		{"above maximum", `{"interval": "48h"}`, "cannot exceed"},
		{"negative", `{"interval": "-5m"}`, "must be positive"},
		{"unparseable", `{"interval": "often"}`, "invalid interval"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			scheduler := temporal.NewMockScheduler()
			h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
			w := do(t, h, http.MethodPut, target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, errorMessage(t, w), tt.wantError)
			_, ok := scheduler.GetScheduleInterval(testWallet)
			assert.False(t, ok)
		})
	}

	t.Run("upsert failure", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		scheduler.SetUpsertError(errors.New("boom"))
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodPut, target, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("delete existing", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, target, "").Code)

		w := do(t, h, http.MethodDelete, target, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		_, ok := scheduler.GetScheduleInterval(testWallet)
		assert.False(t, ok)
	})

	t.Run("delete missing", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, temporal.NewMockScheduler())
		w := do(t, h, http.MethodDelete, target, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "schedule not found", errorMessage(t, w))
	})

	t.Run("delete failure", func(t *testing.T) {
		scheduler := temporal.NewMockScheduler()
		scheduler.SetDeleteError(errors.New("boom"))
		h := newTestHandler(testConfig(), &fakeSummarizer{}, nil, scheduler)
		w := do(t, h, http.MethodDelete, target, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
