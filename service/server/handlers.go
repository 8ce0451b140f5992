package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/ledgerlens/service/config"
	"github.com/brojonat/ledgerlens/service/db"
	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxSignatureLength = 100     // signatures are 87-88 chars
	maxPageLimit       = 1000
	defaultPageLimit   = 100
	maxSyncInterval    = 24 * time.Hour

	receiptKeyHeader = "X-Receipt-Key"
)

var (
	// Valid base58 characters (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleListCurrencies returns the known currencies.
// GET /api/v1/currencies
func handleListCurrencies(currencies CurrencyTable) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list := currencies.Currencies()
		writeJSON(w, map[string]interface{}{
			"currencies": list,
			"count":      len(list),
		}, http.StatusOK)
	})
}

// summariesResponse is the JSON response for a live summarization.
type summariesResponse struct {
	Wallet    string           `json:"wallet"`
	Summaries []ledger.Summary `json:"summaries"`
	Skipped   []ledger.Outcome `json:"skipped"`
	Failed    []ledger.Outcome `json:"failed"`
	Count     int              `json:"count"`
}

// handleGetSummaries returns a handler that lists and summarizes a wallet's
// most recent transactions straight from the node.
// GET /api/v1/wallets/{address}/summaries?limit=N&before=SIG&until=SIG
func handleGetSummaries(summarizer WalletSummarizer, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		page, err := parseSignaturePage(r, cfg.SignatureLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		opts, err := receiptOptions(r, cfg)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		batch, ok := summarizeWallet(w, r, summarizer, address, page, opts, logger)
		if !ok {
			return
		}

		summaries := batch.Summaries()
		writeJSON(w, summariesResponse{
			Wallet:    address,
			Summaries: nonNil(summaries),
			Skipped:   nonNil(batch.Skipped()),
			Failed:    nonNil(batch.Failures()),
			Count:     len(summaries),
		}, http.StatusOK)
	})
}

// daysResponse is the JSON response for day-bucketed summaries.
type daysResponse struct {
	Wallet string             `json:"wallet"`
	Days   []ledger.DayBucket `json:"days"`
	Failed []ledger.Outcome   `json:"failed"`
}

// handleGetDays returns a handler that summarizes a wallet's recent
// transactions and groups them per UTC day.
// GET /api/v1/wallets/{address}/days?currency=SYM|MINT&q=TEXT&order=newest|oldest&limit=N
func handleGetDays(summarizer WalletSummarizer, currencies CurrencyTable, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		mint, err := resolveCurrency(currencies, query.Get("currency"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		less, err := parseOrder(query.Get("order"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		search := query.Get("q")
		if len(search) > 200 {
			writeError(w, "q too long: maximum length is 200 characters", http.StatusBadRequest)
			return
		}

		page, err := parseSignaturePage(r, cfg.SignatureLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts, err := receiptOptions(r, cfg)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		batch, ok := summarizeWallet(w, r, summarizer, address, page, opts, logger)
		if !ok {
			return
		}

		days := ledger.GroupByDay(batch.Summaries(), ledger.GroupOptions{
			Currency:   mint,
			Query:      search,
			Less:       less,
			Currencies: currencies,
		})
		writeJSON(w, daysResponse{
			Wallet: address,
			Days:   nonNil(days),
			Failed: nonNil(batch.Failures()),
		}, http.StatusOK)
	})
}

// handleGetHistory returns a handler that pages through stored summaries.
// GET /api/v1/wallets/{address}/history?currency=SYM|MINT&limit=N&offset=N
func handleGetHistory(store SummaryStore, currencies CurrencyTable, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		mint, err := resolveCurrency(currencies, query.Get("currency"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, err := parseLimit(query.Get("limit"), defaultPageLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		offset := 0
		if offsetStr := query.Get("offset"); offsetStr != "" {
			if _, err := fmt.Sscanf(offsetStr, "%d", &offset); err != nil {
				writeError(w, "invalid offset parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if offset < 0 {
				writeError(w, "offset cannot be negative", http.StatusBadRequest)
				return
			}
		}

		summaries, err := store.ListSummaries(r.Context(), db.ListSummariesParams{
			Wallet:   address,
			Currency: mint,
			Limit:    int32(limit),
			Offset:   int32(offset),
		})
		if err != nil {
			logger.Error("failed to list summaries", "wallet", address, "error", err, "request_id", requestID(r))
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		total, err := store.CountSummaries(r.Context(), address)
		if err != nil {
			logger.Error("failed to count summaries", "wallet", address, "error", err, "request_id", requestID(r))
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("summaries listed", "wallet", address, "count", len(summaries))
		writeJSON(w, map[string]interface{}{
			"wallet":    address,
			"summaries": nonNil(summaries),
			"count":     len(summaries),
			"total":     total,
			"limit":     limit,
			"offset":    offset,
		}, http.StatusOK)
	})
}

// handleStartSync returns a handler that starts an on-demand sync.
// POST /api/v1/wallets/{address}/sync  body: {"limit": N} (optional)
func handleStartSync(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Limit int `json:"limit"`
		}
		if ok := decodeOptionalBody(w, r, &req, logger); !ok {
			return
		}
		if req.Limit < 0 || req.Limit > maxPageLimit {
			writeError(w, fmt.Sprintf("limit must be between 0 and %d", maxPageLimit), http.StatusBadRequest)
			return
		}

		handle, err := scheduler.StartSync(r.Context(), address, req.Limit)
		if err != nil {
			logger.Error("failed to start sync", "wallet", address, "error", err, "request_id", requestID(r))
			writeError(w, "failed to start sync", http.StatusInternalServerError)
			return
		}

		logger.Info("sync started", "wallet", address, "workflow_id", handle.WorkflowID)
		writeJSON(w, map[string]interface{}{
			"wallet":      address,
			"workflow_id": handle.WorkflowID,
			"run_id":      handle.RunID,
		}, http.StatusAccepted)
	})
}

// handleUpsertSchedule returns a handler that creates or updates a wallet's
// periodic sync schedule.
// PUT /api/v1/wallets/{address}/schedule  body: {"interval": "5m"} (optional)
func handleUpsertSchedule(scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Interval string `json:"interval"`
		}
		if ok := decodeOptionalBody(w, r, &req, logger); !ok {
			return
		}

		interval := cfg.DefaultSyncInterval
		if req.Interval != "" {
			parsed, err := time.ParseDuration(req.Interval)
			if err != nil {
				logger.Debug("invalid sync interval", "interval", req.Interval, "error", err)
				writeError(w, "invalid interval: must be a duration like 30s or 5m", http.StatusBadRequest)
				return
			}
			interval = parsed
		}
		if err := validateSyncInterval(interval, cfg.MinSyncInterval); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := scheduler.UpsertWalletSchedule(r.Context(), address, interval); err != nil {
			logger.Error("failed to upsert schedule", "wallet", address, "error", err, "request_id", requestID(r))
			writeError(w, "failed to upsert schedule", http.StatusInternalServerError)
			return
		}

		logger.Info("sync schedule upserted", "wallet", address, "interval", interval)
		writeJSON(w, map[string]interface{}{
			"wallet":   address,
			"interval": interval.String(),
		}, http.StatusOK)
	})
}

// handleDeleteSchedule returns a handler that removes a wallet's sync schedule.
// DELETE /api/v1/wallets/{address}/schedule
func handleDeleteSchedule(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateWallet(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := scheduler.DeleteWalletSchedule(r.Context(), address); err != nil {
			if errors.Is(err, temporal.ErrScheduleNotFound) {
				writeError(w, "schedule not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete schedule", "wallet", address, "error", err, "request_id", requestID(r))
			writeError(w, "failed to delete schedule", http.StatusInternalServerError)
			return
		}

		logger.Info("sync schedule deleted", "wallet", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// signaturePage is the listing window of a live summarization.
type signaturePage struct {
	limit  int
	before string
	until  string
}

func parseSignaturePage(r *http.Request, defaultLimit int) (signaturePage, error) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"), defaultLimit)
	if err != nil {
		return signaturePage{}, err
	}
	page := signaturePage{
		limit:  limit,
		before: query.Get("before"),
		until:  query.Get("until"),
	}
	if err := validateSignature("before", page.before); err != nil {
		return signaturePage{}, err
	}
	if err := validateSignature("until", page.until); err != nil {
		return signaturePage{}, err
	}
	return page, nil
}

// summarizeWallet runs the summarizer and writes the error response itself
// when it fails. Caller errors are 400s; a failed listing is a 502.
func summarizeWallet(w http.ResponseWriter, r *http.Request, summarizer WalletSummarizer, address string, page signaturePage, opts ledger.Options, logger *slog.Logger) (*history.BatchResult, bool) {
	batch, err := summarizer.SummarizeWallet(r.Context(), address, page.limit, page.before, page.until, opts)
	if err != nil {
		if errors.Is(err, history.ErrInvalidWallet) || errors.Is(err, history.ErrEmptySignatureList) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		logger.Error("failed to summarize wallet", "wallet", address, "error", err, "request_id", requestID(r))
		writeError(w, "failed to list wallet transactions", http.StatusBadGateway)
		return nil, false
	}
	logger.Debug("wallet summarized",
		"wallet", address,
		"summarized", batch.Count(ledger.OutcomeSummarized),
		"skipped", batch.Count(ledger.OutcomeSkipped),
		"failed", batch.Count(ledger.OutcomeFailed),
	)
	return batch, true
}

// receiptOptions reads the X-Receipt-Key header. The header is ignored when
// receipts are disabled.
func receiptOptions(r *http.Request, cfg *config.Config) (ledger.Options, error) {
	raw := r.Header.Get(receiptKeyHeader)
	if raw == "" || !cfg.ReceiptsEnabled {
		return ledger.Options{}, nil
	}
	key, err := solanago.PrivateKeyFromBase58(raw)
	if err != nil || len(key) != 64 {
		return ledger.Options{}, errorf("invalid %s: must be a base58 secret key", receiptKeyHeader)
	}
	return ledger.Options{EnableReceipts: true, SecretKey: key}, nil
}

// resolveCurrency accepts a symbol from the currency table or a raw mint.
func resolveCurrency(currencies CurrencyTable, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if c, ok := currencies.BySymbol(value); ok {
		return c.Mint, nil
	}
	if value == ledger.NativeMint {
		return value, nil
	}
	if err := validateAddress(value); err != nil {
		return "", errorf("invalid currency: must be a known symbol or a mint address")
	}
	return value, nil
}

func parseOrder(order string) (ledger.Less, error) {
	switch order {
	case "", "newest":
		return ledger.NewestFirst, nil
	case "oldest":
		return ledger.OldestFirst, nil
	default:
		return nil, errorf("invalid order: must be 'newest' or 'oldest'")
	}
}

func parseLimit(limitStr string, defaultLimit int) (int, error) {
	if limitStr == "" {
		return defaultLimit, nil
	}
	var limit int
	if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil {
		return 0, errorf("invalid limit parameter: must be an integer")
	}
	if limit < 1 {
		return 0, errorf("limit must be at least 1")
	}
	if limit > maxPageLimit {
		return 0, errorf("limit cannot exceed %d", maxPageLimit)
	}
	return limit, nil
}

// decodeOptionalBody decodes a JSON body if there is one. It writes the
// error response itself and reports whether the handler should continue.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	logger.Debug("failed to decode request body", "error", err)
	if strings.Contains(err.Error(), "http: request body too large") {
		writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
		return false
	}
	writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
	return false
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	lowerAddr := strings.ToLower(address)
	sqlPatterns := []string{"drop ", "delete ", "insert ", "update ", "select ", "--", "/*", "*/", ";"}
	for _, pattern := range sqlPatterns {
		if strings.Contains(lowerAddr, pattern) {
			return errorf("invalid characters in address: suspicious pattern detected")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validateWallet is validateAddress plus a public key decode.
func validateWallet(address string) error {
	if err := validateAddress(address); err != nil {
		return err
	}
	if err := history.ValidateWallet(address); err != nil {
		return errorf("invalid address format: not a valid public key")
	}
	return nil
}

// validateSignature checks an optional transaction signature parameter.
func validateSignature(name, sig string) error {
	if sig == "" {
		return nil
	}
	if len(sig) > maxSignatureLength {
		return errorf("%s too long: maximum length is %d characters", name, maxSignatureLength)
	}
	if !validAddressRegex.MatchString(sig) {
		return errorf("invalid %s: must contain only valid base58 characters", name)
	}
	return nil
}

// validateSyncInterval validates a sync interval for reasonable bounds.
func validateSyncInterval(interval, minInterval time.Duration) error {
	if interval <= 0 {
		return errorf("interval must be positive")
	}
	if interval < minInterval {
		return errorf("interval must be at least %v", minInterval)
	}
	if interval > maxSyncInterval {
		return errorf("interval cannot exceed %v", maxSyncInterval)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
