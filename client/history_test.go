package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "5FHwkrdxntdK24hgQU8qgBjn35Y1zwhz1GZwCkP2UJnM"

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))
}

func TestCurrencies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/currencies", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"currencies": ledger.DefaultCurrencies,
			"count":      len(ledger.DefaultCurrencies),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	currencies, err := client.Currencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultCurrencies, currencies)
}

func TestSummaries_Success(t *testing.T) {
	memo := "coffee"
	want := ledger.Summary{
		ID:        "sig1",
		Date:      1671444000000,
		Status:    true,
		Direction: ledger.DirectionSent,
		Amount:    1500000,
		Currency:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Memo:      &memo,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/summaries", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "older", r.URL.Query().Get("before"))
		assert.Empty(t, r.URL.Query().Get("until"))
		assert.Equal(t, "secret", r.Header.Get(ReceiptKeyHeader))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"wallet": "` + testWallet + `",
			"summaries": [{"id":"sig1","date":1671444000000,"status":true,"network_fee":0,"direction":"sent","amount":1500000,"currency":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","memo":"coffee"}],
			"skipped": [{"signature":"sig2","kind":"skipped","reason":"self-transfer"}],
			"failed": [{"signature":"sig3","kind":"failed","error":"node unreachable"}],
			"count": 1
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	resp, err := client.Summaries(context.Background(), testWallet, SummariesParams{
		Limit:      25,
		Before:     "older",
		ReceiptKey: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, testWallet, resp.Wallet)
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, want, resp.Summaries[0])
	assert.Equal(t, []OutcomeInfo{{Signature: "sig2", Kind: "skipped", Reason: "self-transfer"}}, resp.Skipped)
	assert.Equal(t, []OutcomeInfo{{Signature: "sig3", Kind: "failed", Error: "node unreachable"}}, resp.Failed)
}

func TestSummaries_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "failed to list wallet transactions"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Summaries(context.Background(), testWallet, SummariesParams{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "failed to list wallet transactions", apiErr.Message)
}

func TestSummaries_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Summaries(context.Background(), testWallet, SummariesParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "504")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestDays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/days", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "USDC", q.Get("currency"))
		assert.Equal(t, "coffee", q.Get("q"))
		assert.Equal(t, "oldest", q.Get("order"))
		assert.Empty(t, r.Header.Get(ReceiptKeyHeader))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet": testWallet,
			"days": []ledger.DayBucket{{
				IsoDate:       "2022-12-19",
				TotalSpending: 1500000,
				Transactions:  []ledger.Summary{{ID: "sig1", Direction: ledger.DirectionSent, Amount: 1500000}},
			}},
			"failed": []interface{}{},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	resp, err := client.Days(context.Background(), testWallet, DaysParams{
		Currency: "USDC",
		Query:    "coffee",
		Order:    "oldest",
	})
	require.NoError(t, err)
	require.Len(t, resp.Days, 1)
	assert.Equal(t, "2022-12-19", resp.Days[0].IsoDate)
	assert.Equal(t, uint64(1500000), resp.Days[0].TotalSpending)
	assert.Empty(t, resp.Failed)
}

func TestHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/history", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.False(t, r.URL.Query().Has("currency"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet":    testWallet,
			"summaries": []ledger.Summary{{ID: "a"}, {ID: "b"}},
			"count":     2,
			"total":     22,
			"limit":     10,
			"offset":    20,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	page, err := client.History(context.Background(), testWallet, HistoryParams{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, int64(22), page.Total)
	require.Len(t, page.Summaries, 2)
	assert.Equal(t, "b", page.Summaries[1].ID)
}

func TestStartSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/sync", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 50, body["limit"])

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"wallet":      testWallet,
			"workflow_id": "sync-wallet-" + testWallet + "-1",
			"run_id":      "run-1",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	handle, err := client.StartSync(context.Background(), testWallet, 50)
	require.NoError(t, err)
	assert.Equal(t, "run-1", handle.RunID)
	assert.Equal(t, "sync-wallet-"+testWallet+"-1", handle.WorkflowID)
}

func TestUpsertSchedule(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		wantBody map[string]string
	}{
		{"explicit", 10 * time.Minute, map[string]string{"interval": "10m0s"}},
		{"server default", 0, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "PUT", r.Method)
				assert.Equal(t, "/api/v1/wallets/"+testWallet+"/schedule", r.URL.Path)

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantBody, body)

				json.NewEncoder(w).Encode(map[string]string{"wallet": testWallet, "interval": "5m0s"})
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			assert.NoError(t, client.UpsertSchedule(context.Background(), testWallet, tt.interval))
		})
	}
}

func TestDeleteSchedule(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "DELETE", r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, nil)
		assert.NoError(t, client.DeleteSchedule(context.Background(), testWallet))
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "schedule not found"})
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, nil)
		err := client.DeleteSchedule(context.Background(), testWallet)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}

func TestRequest_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Currencies(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
