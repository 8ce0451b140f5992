// Package pipeline assembles the summarization stack shared by the API
// server, the sync worker and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ledgerlens/service/cache"
	"github.com/brojonat/ledgerlens/service/config"
	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
	"github.com/brojonat/ledgerlens/service/receipts"
	"github.com/brojonat/ledgerlens/service/solana"
)

// CachePrefix namespaces record keys in a shared Redis.
const CachePrefix = "ledgerlens:"

// Settings is the subset of configuration the pipeline needs.
type Settings struct {
	RPCURLs          []string
	RPCMaxAttempts   int
	RPCRateLimit     float64
	RedisURL         string
	CacheTTL         time.Duration
	FetchConcurrency int
	FetchQueueSize   int
	FetchTimeout     time.Duration
	ReceiptsEnabled  bool
	ReceiptsURL      string
	ReceiptTimeout   time.Duration
}

// SettingsFromConfig copies the pipeline settings out of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		RPCURLs:          cfg.SolanaRPCURLs,
		RPCMaxAttempts:   cfg.RPCMaxAttempts,
		RPCRateLimit:     cfg.RPCRateLimit,
		RedisURL:         cfg.RedisURL,
		CacheTTL:         cfg.CacheTTL,
		FetchConcurrency: cfg.FetchConcurrency,
		FetchQueueSize:   cfg.FetchQueueSize,
		FetchTimeout:     cfg.FetchTimeout,
		ReceiptsEnabled:  cfg.ReceiptsEnabled,
		ReceiptsURL:      cfg.ReceiptsURL,
		ReceiptTimeout:   cfg.ReceiptTimeout,
	}
}

// Pipeline holds the wired components. Close releases the pool and the
// cache connection.
type Pipeline struct {
	Endpoint   string
	Solana     *solana.Client
	Store      cache.Store
	Records    *cache.RecordCache
	Currencies *ledger.CurrencyTable
	Summarizer *ledger.Summarizer
	History    *history.Service

	closers []func() error
}

// New builds the pipeline. One RPC endpoint is picked at random from
// s.RPCURLs; an empty RedisURL keeps records in process memory.
func New(ctx context.Context, s Settings, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := solana.SelectRandomEndpoint(s.RPCURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to select rpc endpoint: %w", err)
	}
	p := &Pipeline{Endpoint: endpoint}

	p.Solana = solana.NewClient(
		solana.NewRPCClient(endpoint),
		solana.EndpointLabel(endpoint),
		m,
		logger.With("component", "solana"),
		solana.WithMaxAttempts(s.RPCMaxAttempts),
		solana.WithRateLimit(s.RPCRateLimit),
	)

	if s.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, s.RedisURL, CachePrefix, s.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open record cache: %w", err)
		}
		p.Store = store
		p.closers = append(p.closers, store.Close)
		logger.Info("record cache backed by redis")
	} else {
		p.Store = cache.NewMemoryStore()
		logger.Info("record cache kept in memory")
	}

	p.Records = cache.NewRecordCache(p.Store, p.Solana, m, logger, cache.WithFetchTimeout(s.FetchTimeout))
	p.Currencies = ledger.DefaultCurrencyTable()

	var opts []ledger.SummarizerOption
	if s.ReceiptsEnabled {
		finder := receipts.NewClient(s.ReceiptsURL, &http.Client{Timeout: s.ReceiptTimeout}, m, logger)
		opts = append(opts, ledger.WithReceipts(finder, s.ReceiptTimeout))
		logger.Info("receipt correlation enabled", "url", s.ReceiptsURL)
	}
	p.Summarizer = ledger.NewSummarizer(p.Currencies, logger, opts...)

	p.History = history.NewService(p.Records, p.Solana, p.Summarizer, m, logger,
		history.WithConcurrency(s.FetchConcurrency, s.FetchQueueSize))
	p.closers = append(p.closers, func() error {
		p.History.Close()
		return nil
	})

	return p, nil
}

// Close releases resources in reverse order of acquisition.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
