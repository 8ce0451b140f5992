package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "5FHwkrdxntdK24hgQU8qgBjn35Y1zwhz1GZwCkP2UJnM"

// runApp runs the CLI with args and returns what it wrote to stdout and stderr.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"ledgerlens", "--no-color"}, args...))
	return stdout.String(), stderr.String(), err
}

func summariesServer(t *testing.T) *httptest.Server {
	t.Helper()
	memo := "coffee"
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/summaries", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet": testWallet,
			"summaries": []ledger.Summary{{
				ID:        "sig1",
				Date:      1671444000000,
				Status:    true,
				Direction: ledger.DirectionSent,
				Amount:    1500000,
				Currency:  usdcMint,
				Memo:      &memo,
			}},
			"skipped": []map[string]string{{"signature": "sig2", "kind": "skipped", "reason": "self-transfer"}},
			"failed":  []interface{}{},
			"count":   1,
		})
	}))
}

func TestSummariesCommand_Table(t *testing.T) {
	server := summariesServer(t)
	defer server.Close()

	stdout, stderr, err := runApp(t, "--server-url", server.URL, "api", "summaries", "--limit", "5", testWallet)
	require.NoError(t, err)

	assert.Contains(t, stdout, "DIRECTION")
	assert.Contains(t, stdout, "1.5 USDC")
	assert.Contains(t, stdout, "coffee")
	assert.Contains(t, stdout, "2022-12-19T10:00:00Z")
	assert.Contains(t, stderr, "Skipped (1)")
	assert.Contains(t, stderr, "self-transfer")
	assert.Contains(t, stderr, "Total: 1 summaries")
	assert.NotContains(t, stderr, "Failed")
}

func TestSummariesCommand_JSON(t *testing.T) {
	server := summariesServer(t)
	defer server.Close()

	stdout, _, err := runApp(t, "--server-url", server.URL, "--json", "api", "summaries", "-n", "5", testWallet)
	require.NoError(t, err)

	var resp struct {
		Wallet    string           `json:"wallet"`
		Summaries []ledger.Summary `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, testWallet, resp.Wallet)
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, uint64(1500000), resp.Summaries[0].Amount)
}

func TestSummariesCommand_JQ(t *testing.T) {
	server := summariesServer(t)
	defer server.Close()

	stdout, _, err := runApp(t, "--server-url", server.URL, "--jq", ".summaries[].id", "api", "summaries", "--limit", "5", testWallet)
	require.NoError(t, err)
	assert.Equal(t, `"sig1"`, strings.TrimSpace(stdout))
}

func TestSummariesCommand_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid address format: not a valid public key"})
	}))
	defer server.Close()

	_, _, err := runApp(t, "--server-url", server.URL, "api", "summaries", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid public key")
}

func TestSummariesCommand_MissingWallet(t *testing.T) {
	_, _, err := runApp(t, "api", "summaries")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet address is required")
}

func TestDaysCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/"+testWallet+"/days", r.URL.Path)
		assert.Equal(t, "USDC", r.URL.Query().Get("currency"))
		assert.Equal(t, "newest", r.URL.Query().Get("order"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallet": testWallet,
			"days": []ledger.DayBucket{{
				IsoDate:       "2022-12-19",
				TotalSpending: 1500000,
				Transactions: []ledger.Summary{{
					ID: "sig1", Date: 1671444000000, Status: true,
					Direction: ledger.DirectionSent, Amount: 1500000, Currency: usdcMint,
				}},
			}},
			"failed": []map[string]string{{"signature": "sig9", "kind": "failed", "error": "node unreachable"}},
		})
	}))
	defer server.Close()

	stdout, stderr, err := runApp(t, "--server-url", server.URL, "api", "days", "--currency", "USDC", testWallet)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2022-12-19")
	assert.Contains(t, stdout, "1 transactions, spent 1.5 USDC")
	assert.Contains(t, stderr, "Failed (1)")
	assert.Contains(t, stderr, "node unreachable")
}

func TestCurrenciesCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"currencies": ledger.DefaultCurrencyTable().Currencies(),
			"count":      len(ledger.DefaultCurrencies),
		})
	}))
	defer server.Close()

	stdout, _, err := runApp(t, "--server-url", server.URL, "--jq", "[.[].symbol] | join(\",\")", "api", "currencies")
	require.NoError(t, err)
	assert.Equal(t, `"SOL,USDC,USDH,USDT,WSOL"`, strings.TrimSpace(stdout))
}
