package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/ledgerlens/service/ledger"
)

// ReceiptKeyHeader carries the base58 secret key used for receipt lookups.
const ReceiptKeyHeader = "X-Receipt-Key"

// OutcomeInfo describes a signature that did not produce a summary.
type OutcomeInfo struct {
	Signature string `json:"signature"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummariesParams selects the signatures to summarize. Zero values use the
// server defaults.
type SummariesParams struct {
	Limit      int
	Before     string
	Until      string
	ReceiptKey string
}

// SummariesResponse is a live summarization of a wallet.
type SummariesResponse struct {
	Wallet    string           `json:"wallet"`
	Summaries []ledger.Summary `json:"summaries"`
	Skipped   []OutcomeInfo    `json:"skipped"`
	Failed    []OutcomeInfo    `json:"failed"`
	Count     int              `json:"count"`
}

// DaysParams filters and orders day buckets.
type DaysParams struct {
	Currency   string // symbol or mint
	Query      string
	Order      string // "newest" (default) or "oldest"
	Limit      int
	ReceiptKey string
}

// DaysResponse is a wallet's summaries grouped per UTC day.
type DaysResponse struct {
	Wallet string             `json:"wallet"`
	Days   []ledger.DayBucket `json:"days"`
	Failed []OutcomeInfo      `json:"failed"`
}

// HistoryParams pages through stored summaries.
type HistoryParams struct {
	Currency string
	Limit    int
	Offset   int
}

// HistoryPage is one page of stored summaries.
type HistoryPage struct {
	Wallet    string           `json:"wallet"`
	Summaries []ledger.Summary `json:"summaries"`
	Count     int              `json:"count"`
	Total     int64            `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

// SyncHandle identifies a started sync workflow.
type SyncHandle struct {
	Wallet     string `json:"wallet"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Currencies lists the currencies the server can display.
func (c *Client) Currencies(ctx context.Context) ([]ledger.Currency, error) {
	var resp struct {
		Currencies []ledger.Currency `json:"currencies"`
	}
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/api/v1/currencies",
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Currencies, nil
}

// Summaries lists and summarizes a wallet's recent transactions.
func (c *Client) Summaries(ctx context.Context, address string, params SummariesParams) (*SummariesResponse, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Before != "" {
		query.Set("before", params.Before)
	}
	if params.Until != "" {
		query.Set("until", params.Until)
	}

	var resp SummariesResponse
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       walletPath(address, "summaries"),
		query:      query,
		header:     receiptHeader(params.ReceiptKey),
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("summaries retrieved", "address", address, "count", resp.Count, "failed", len(resp.Failed))
	return &resp, nil
}

// Days summarizes a wallet's recent transactions grouped per UTC day.
func (c *Client) Days(ctx context.Context, address string, params DaysParams) (*DaysResponse, error) {
	query := url.Values{}
	if params.Currency != "" {
		query.Set("currency", params.Currency)
	}
	if params.Query != "" {
		query.Set("q", params.Query)
	}
	if params.Order != "" {
		query.Set("order", params.Order)
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}

	var resp DaysResponse
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       walletPath(address, "days"),
		query:      query,
		header:     receiptHeader(params.ReceiptKey),
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// History pages through the summaries stored by previous syncs.
func (c *Client) History(ctx context.Context, address string, params HistoryParams) (*HistoryPage, error) {
	query := url.Values{}
	if params.Currency != "" {
		query.Set("currency", params.Currency)
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		query.Set("offset", strconv.Itoa(params.Offset))
	}

	var page HistoryPage
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       walletPath(address, "history"),
		query:      query,
		wantStatus: http.StatusOK,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// StartSync starts an on-demand sync. limit 0 uses the worker default.
func (c *Client) StartSync(ctx context.Context, address string, limit int) (*SyncHandle, error) {
	var handle SyncHandle
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       walletPath(address, "sync"),
		body:       map[string]int{"limit": limit},
		wantStatus: http.StatusAccepted,
	}, &handle)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sync started", "address", address, "workflow_id", handle.WorkflowID)
	return &handle, nil
}

// UpsertSchedule creates or updates the wallet's periodic sync. interval 0
// uses the server default.
func (c *Client) UpsertSchedule(ctx context.Context, address string, interval time.Duration) error {
	body := map[string]string{}
	if interval > 0 {
		body["interval"] = interval.String()
	}
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       walletPath(address, "schedule"),
		body:       body,
		wantStatus: http.StatusOK,
	}, nil)
	if err != nil {
		return err
	}

	c.logger.Debug("schedule upserted", "address", address, "interval", interval)
	return nil
}

// DeleteSchedule removes the wallet's periodic sync.
func (c *Client) DeleteSchedule(ctx context.Context, address string) error {
	err := c.do(ctx, request{
		method:     http.MethodDelete,
		path:       walletPath(address, "schedule"),
		wantStatus: http.StatusNoContent,
	}, nil)
	if err != nil {
		return err
	}

	c.logger.Debug("schedule deleted", "address", address)
	return nil
}

func receiptHeader(key string) http.Header {
	if key == "" {
		return nil
	}
	h := http.Header{}
	h.Set(ReceiptKeyHeader, key)
	return h
}
