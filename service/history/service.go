// Package history summarizes batches of a wallet's transactions.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
)

var (
	// ErrInvalidWallet is returned for a wallet that is not a valid public key.
	ErrInvalidWallet = errors.New("invalid wallet address")
	// ErrEmptySignatureList is returned when there is nothing to summarize.
	ErrEmptySignatureList = errors.New("empty signature list")

	errNotProcessed = errors.New("not processed")
)

// Defaults for the fetch pool.
const (
	DefaultConcurrency = 8
	DefaultQueueSize   = 256
)

// RecordSource returns the raw record for a signature. *cache.RecordCache satisfies it.
type RecordSource interface {
	Get(ctx context.Context, signature string) (*ledger.RawRecord, error)
}

// SignatureLister lists a wallet's signatures newest first. *solana.Client satisfies it.
type SignatureLister interface {
	ListSignatures(ctx context.Context, wallet string, limit int, before, until string) ([]string, error)
}

// Service fans record fetches out over a fixed-size worker pool and
// summarizes each record as it arrives.
type Service struct {
	records    RecordSource
	lister     SignatureLister
	summarizer *ledger.Summarizer
	pool       pond.Pool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	concurrency int
	queueSize   int
}

// WithConcurrency sizes the fetch pool.
func WithConcurrency(workers, queueSize int) Option {
	return func(c *serviceConfig) {
		if workers > 0 {
			c.concurrency = workers
		}
		if queueSize > 0 {
			c.queueSize = queueSize
		}
	}
}

// NewService creates a Service. Call Close to release the pool.
func NewService(records RecordSource, lister SignatureLister, summarizer *ledger.Summarizer, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	cfg := serviceConfig{concurrency: DefaultConcurrency, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		records:    records,
		lister:     lister,
		summarizer: summarizer,
		pool:       pond.NewPool(cfg.concurrency, pond.WithQueueSize(cfg.queueSize)),
		metrics:    m,
		logger:     logger.With("component", "history"),
	}
}

// Close stops the pool after running tasks finish.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// ValidateWallet returns ErrInvalidWallet unless wallet is a base58 public key.
func ValidateWallet(wallet string) error {
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
	}
	return nil
}

// SummarizeWallet lists up to limit of the wallet's signatures between
// before and until (both optional, exclusive) and summarizes them. A wallet
// with no transactions yields an empty result, not an error.
func (s *Service) SummarizeWallet(ctx context.Context, wallet string, limit int, before, until string, opts ledger.Options) (*BatchResult, error) {
	if err := ValidateWallet(wallet); err != nil {
		return nil, err
	}
	signatures, err := s.lister.ListSignatures(ctx, wallet, limit, before, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	if len(signatures) == 0 {
		return &BatchResult{Wallet: wallet}, nil
	}
	return s.SummarizeSignatures(ctx, wallet, signatures, opts)
}

// SummarizeSignatures produces one outcome per distinct signature, in input
// order. Fetch failures become failed outcomes; they never abort the batch.
func (s *Service) SummarizeSignatures(ctx context.Context, wallet string, signatures []string, opts ledger.Options) (*BatchResult, error) {
	if err := ValidateWallet(wallet); err != nil {
		return nil, err
	}
	signatures = dedupe(signatures)
	if len(signatures) == 0 {
		return nil, ErrEmptySignatureList
	}

	start := time.Now()
	outcomes := make([]ledger.Outcome, len(signatures))

	// Wait can return on cancellation while tasks are still running, so
	// writes after the batch is sealed are dropped.
	var mu sync.Mutex
	sealed := false
	set := func(i int, o ledger.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if !sealed {
			outcomes[i] = o
		}
	}

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, sig := range signatures {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			rec, err := s.records.Get(groupCtx, sig)
			if err != nil {
				s.logger.WarnContext(groupCtx, "failed to fetch transaction",
					"signature", sig,
					"error", err,
				)
				set(i, ledger.Failed(sig, err))
				return
			}
			set(i, s.summarizer.Summarize(groupCtx, rec, wallet, opts))
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.WarnContext(ctx, "summarization group encountered error",
			"wallet", wallet,
			"error", err,
		)
	}

	mu.Lock()
	sealed = true
	outcomes = slices.Clone(outcomes)
	mu.Unlock()

	// Tasks skipped by cancellation leave zero outcomes behind.
	for i, o := range outcomes {
		if o.Kind == "" {
			cause := ctx.Err()
			if cause == nil {
				cause = errNotProcessed
			}
			outcomes[i] = ledger.Failed(signatures[i], cause)
		}
	}

	result := &BatchResult{Wallet: wallet, Outcomes: outcomes}
	s.record(result, time.Since(start))

	s.logger.InfoContext(ctx, "summarized batch",
		"wallet", wallet,
		"signatures", len(signatures),
		"summarized", result.Count(ledger.OutcomeSummarized),
		"skipped", result.Count(ledger.OutcomeSkipped),
		"failed", result.Count(ledger.OutcomeFailed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) record(result *BatchResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	for _, o := range result.Outcomes {
		s.metrics.RecordSummaryOutcome(string(o.Kind), string(o.Reason))
	}
	status := "success"
	if result.Count(ledger.OutcomeFailed) > 0 {
		status = "partial"
	}
	s.metrics.RecordBatch(status, len(result.Outcomes), elapsed.Seconds())
}

func dedupe(signatures []string) []string {
	seen := make(map[string]struct{}, len(signatures))
	out := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		if sig == "" {
			continue
		}
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, sig)
	}
	return out
}
