package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ledgerlens/service/config"
	"github.com/brojonat/ledgerlens/service/db"
	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
	"github.com/brojonat/ledgerlens/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WalletSummarizer lists and summarizes a wallet's recent transactions.
type WalletSummarizer interface {
	SummarizeWallet(ctx context.Context, wallet string, limit int, before, until string, opts ledger.Options) (*history.BatchResult, error)
}

// SummaryStore reads persisted summaries.
type SummaryStore interface {
	ListSummaries(ctx context.Context, params db.ListSummariesParams) ([]ledger.Summary, error)
	CountSummaries(ctx context.Context, wallet string) (int64, error)
}

// CurrencyTable is the read side of the currency table.
type CurrencyTable interface {
	ledger.CurrencyResolver
	Currencies() []ledger.Currency
	BySymbol(symbol string) (ledger.Currency, bool)
}

// Server represents the HTTP API.
type Server struct {
	addr       string
	cfg        *config.Config
	summarizer WalletSummarizer
	store      SummaryStore
	scheduler  temporal.Scheduler
	currencies CurrencyTable
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The store is optional - if nil, the history endpoint won't be available.
// The scheduler is optional - if nil, the sync and schedule endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(
	addr string,
	cfg *config.Config,
	summarizer WalletSummarizer,
	store SummaryStore,
	scheduler temporal.Scheduler,
	currencies CurrencyTable,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		cfg:        cfg,
		summarizer: summarizer,
		store:      store,
		scheduler:  scheduler,
		currencies: currencies,
		metrics:    m,
		logger:     logger.With("component", "server"),
	}
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/currencies", "currencies", handleListCurrencies(s.currencies))
	route("GET /api/v1/wallets/{address}/summaries", "summaries", handleGetSummaries(s.summarizer, s.cfg, s.logger))
	route("GET /api/v1/wallets/{address}/days", "days", handleGetDays(s.summarizer, s.currencies, s.cfg, s.logger))

	if s.store != nil {
		route("GET /api/v1/wallets/{address}/history", "history", handleGetHistory(s.store, s.currencies, s.logger))
	} else {
		s.logger.Warn("summary store not configured, history endpoint disabled")
	}

	if s.scheduler != nil {
		route("POST /api/v1/wallets/{address}/sync", "sync", handleStartSync(s.scheduler, s.logger))
		route("PUT /api/v1/wallets/{address}/schedule", "schedule_upsert", handleUpsertSchedule(s.scheduler, s.cfg, s.logger))
		route("DELETE /api/v1/wallets/{address}/schedule", "schedule_delete", handleDeleteSchedule(s.scheduler, s.logger))
	} else {
		s.logger.Warn("scheduler not configured, sync endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(requestIDMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // summarizing a page may take a while on a slow node
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+receiptKeyHeader+", "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
