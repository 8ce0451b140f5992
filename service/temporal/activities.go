package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
	natspkg "github.com/brojonat/ledgerlens/service/nats"
)

// SyncWalletInput contains the input parameters for syncing a wallet.
type SyncWalletInput struct {
	Wallet string `json:"wallet"`
	Limit  int    `json:"limit"` // max signatures per sync; 0 = DefaultSyncLimit
}

// SyncWalletResult contains the result of syncing a wallet.
type SyncWalletResult struct {
	Wallet         string    `json:"wallet"`
	SyncTime       time.Time `json:"sync_time"`
	SignatureCount int       `json:"signature_count"`
	Summarized     int       `json:"summarized"`
	Skipped        int       `json:"skipped"`
	Failed         []string  `json:"failed,omitempty"`
	Published      int       `json:"published"`
	PreviousCursor string    `json:"previous_cursor,omitempty"`
	Cursor         string    `json:"cursor,omitempty"`
	WindowFull     bool      `json:"window_full"` // listing stopped at MaxSyncPages
	Backfill       *Backfill `json:"backfill,omitempty"` // span still pending after this sync
	Error          *string   `json:"error,omitempty"`
}

// GetSyncCursorInput contains parameters for the GetSyncCursor activity.
type GetSyncCursorInput struct {
	Wallet string `json:"wallet"`
}

// Backfill is a span a full window skipped: signatures older than Before and
// newer than Until. An empty Until reaches back to the wallet's first signature.
type Backfill struct {
	Before string `json:"before"`
	Until  string `json:"until,omitempty"`
}

// GetSyncCursorResult holds the newest already-synced signature, if any, and
// the pending backfill span.
type GetSyncCursorResult struct {
	Cursor   string    `json:"cursor"`
	Backfill *Backfill `json:"backfill,omitempty"`
}

// ListSignaturesInput contains parameters for the ListSignatures activity.
type ListSignaturesInput struct {
	Wallet string `json:"wallet"`
	Limit  int    `json:"limit"`
	Before string `json:"before,omitempty"`
	Until  string `json:"until,omitempty"`
}

// ListSignaturesResult lists signatures newest first.
type ListSignaturesResult struct {
	Signatures []string `json:"signatures"`
}

// SummarizeSignaturesInput contains parameters for the SummarizeSignatures activity.
type SummarizeSignaturesInput struct {
	Wallet     string   `json:"wallet"`
	Signatures []string `json:"signatures"`
}

// SummarizeSignaturesResult carries the summaries plus the signatures that
// could not be fetched and must be retried by a later sync.
type SummarizeSignaturesResult struct {
	Summaries []ledger.Summary `json:"summaries"`
	Skipped   int              `json:"skipped"`
	Failed    []string         `json:"failed,omitempty"`
}

// StoreSummariesInput contains parameters for the StoreSummaries activity.
type StoreSummariesInput struct {
	Wallet    string           `json:"wallet"`
	Summaries []ledger.Summary `json:"summaries"`
	Cursor    string           `json:"cursor,omitempty"` // written after the summaries; empty = unchanged
	Backfill  *Backfill        `json:"backfill,omitempty"` // nil = unchanged, empty Before = cleared
}

// StoreSummariesResult contains the result of storing summaries.
type StoreSummariesResult struct {
	Stored int `json:"stored"`
}

// PublishSummariesInput contains parameters for the PublishSummaries activity.
type PublishSummariesInput struct {
	Wallet    string           `json:"wallet"`
	Summaries []ledger.Summary `json:"summaries"`
}

// PublishSummariesResult contains the number of events published.
type PublishSummariesResult struct {
	Published int `json:"published"`
}

// ReportSyncInput describes a finished sync for metrics.
type ReportSyncInput struct {
	Wallet          string  `json:"wallet"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	GetCursor(ctx context.Context, wallet string) (string, error)
	SetCursor(ctx context.Context, wallet, signature string) error
	GetBackfill(ctx context.Context, wallet string) (before, until string, err error)
	SetBackfill(ctx context.Context, wallet, before, until string) error
	UpsertSummaries(ctx context.Context, wallet string, summaries []ledger.Summary) error
}

// SignatureLister lists a wallet's signatures newest first.
type SignatureLister interface {
	ListSignatures(ctx context.Context, wallet string, limit int, before, until string) ([]string, error)
}

// BatchSummarizer summarizes a batch of signatures for a wallet.
type BatchSummarizer interface {
	SummarizeSignatures(ctx context.Context, wallet string, signatures []string, opts ledger.Options) (*history.BatchResult, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishSummaryBatch(ctx context.Context, events []*natspkg.SummaryEvent) (int, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store      StoreInterface
	lister     SignatureLister
	summarizer BatchSummarizer
	publisher  PublisherInterface
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and metrics may be nil.
func NewActivities(
	store StoreInterface,
	lister SignatureLister,
	summarizer BatchSummarizer,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:      store,
		lister:     lister,
		summarizer: summarizer,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}
}

func (a *Activities) observe(activity string, start time.Time, err *error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds(), *err)
	}
}

// GetSyncCursor returns the newest signature stored by the previous sync.
func (a *Activities) GetSyncCursor(ctx context.Context, input GetSyncCursorInput) (_ *GetSyncCursorResult, err error) {
	defer a.observe("GetSyncCursor", time.Now(), &err)

	cursor, err := a.store.GetCursor(ctx, input.Wallet)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to get sync cursor",
			"wallet", input.Wallet,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	result := &GetSyncCursorResult{Cursor: cursor}

	before, until, err := a.store.GetBackfill(ctx, input.Wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get backfill: %w", err)
	}
	if before != "" {
		result.Backfill = &Backfill{Before: before, Until: until}
	}
	return result, nil
}

// ListSignatures lists signatures newer than the cursor.
func (a *Activities) ListSignatures(ctx context.Context, input ListSignaturesInput) (_ *ListSignaturesResult, err error) {
	defer a.observe("ListSignatures", time.Now(), &err)

	sigs, err := a.lister.ListSignatures(ctx, input.Wallet, input.Limit, input.Before, input.Until)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list signatures",
			"wallet", input.Wallet,
			"until", input.Until,
			"error", err,
		)
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}

	a.logger.InfoContext(ctx, "listed signatures",
		"wallet", input.Wallet,
		"count", len(sigs),
	)
	return &ListSignaturesResult{Signatures: sigs}, nil
}

// SummarizeSignatures summarizes a batch. Per-signature fetch failures are
// reported in Failed rather than failing the activity.
func (a *Activities) SummarizeSignatures(ctx context.Context, input SummarizeSignaturesInput) (_ *SummarizeSignaturesResult, err error) {
	defer a.observe("SummarizeSignatures", time.Now(), &err)

	batch, err := a.summarizer.SummarizeSignatures(ctx, input.Wallet, input.Signatures, ledger.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize signatures: %w", err)
	}

	result := &SummarizeSignaturesResult{
		Summaries: batch.Summaries(),
		Skipped:   len(batch.Skipped()),
	}
	for _, o := range batch.Failures() {
		result.Failed = append(result.Failed, o.Signature)
	}

	a.logger.InfoContext(ctx, "summarized signatures",
		"wallet", input.Wallet,
		"summarized", len(result.Summaries),
		"skipped", result.Skipped,
		"failed", len(result.Failed),
	)
	return result, nil
}

// StoreSummaries upserts summaries, then records the backfill span, then
// advances the cursor. A crash in between only means the next sync rewrites
// the same rows.
func (a *Activities) StoreSummaries(ctx context.Context, input StoreSummariesInput) (_ *StoreSummariesResult, err error) {
	defer a.observe("StoreSummaries", time.Now(), &err)

	if err := a.store.UpsertSummaries(ctx, input.Wallet, input.Summaries); err != nil {
		a.logger.ErrorContext(ctx, "failed to store summaries",
			"wallet", input.Wallet,
			"count", len(input.Summaries),
			"error", err,
		)
		return nil, fmt.Errorf("failed to store summaries: %w", err)
	}
	if b := input.Backfill; b != nil {
		if err := a.store.SetBackfill(ctx, input.Wallet, b.Before, b.Until); err != nil {
			return nil, fmt.Errorf("failed to set backfill: %w", err)
		}
	}
	if input.Cursor != "" {
		if err := a.store.SetCursor(ctx, input.Wallet, input.Cursor); err != nil {
			return nil, fmt.Errorf("failed to set sync cursor: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "stored summaries",
		"wallet", input.Wallet,
		"count", len(input.Summaries),
		"cursor", input.Cursor,
	)
	return &StoreSummariesResult{Stored: len(input.Summaries)}, nil
}

// PublishSummaries publishes summary events. It does nothing without a publisher.
func (a *Activities) PublishSummaries(ctx context.Context, input PublishSummariesInput) (_ *PublishSummariesResult, err error) {
	defer a.observe("PublishSummaries", time.Now(), &err)

	if a.publisher == nil || len(input.Summaries) == 0 {
		return &PublishSummariesResult{}, nil
	}

	n, err := a.publisher.PublishSummaryBatch(ctx, natspkg.NewSummaryEvents(input.Wallet, input.Summaries))
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to publish some summaries",
			"wallet", input.Wallet,
			"published", n,
			"total", len(input.Summaries),
			"error", err,
		)
		return nil, fmt.Errorf("published %d of %d summaries: %w", n, len(input.Summaries), err)
	}
	return &PublishSummariesResult{Published: n}, nil
}

// ReportSync records workflow-level metrics.
func (a *Activities) ReportSync(ctx context.Context, input ReportSyncInput) error {
	if a.metrics != nil {
		a.metrics.RecordWorkflowDuration(input.Status, input.DurationSeconds)
	}
	return nil
}
