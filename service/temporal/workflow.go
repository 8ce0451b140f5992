package temporal

import (
	"fmt"
	"slices"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// DefaultSyncLimit is the page size used when the input leaves it unset.
	DefaultSyncLimit = 100

	// MaxSyncPages bounds how far back one sync pages. Whatever lies beyond
	// is recorded as a backfill span for later syncs.
	MaxSyncPages = 10
)

var a *Activities // for type-safe activity invocation

// SyncWalletWorkflow brings a wallet's stored history up to date. It is
// triggered by a per-wallet schedule or started on demand.
//
// Steps:
//  1. read the cursor and any backfill span left by earlier syncs
//  2. page through the backfill span, or else through signatures newer
//     than the cursor
//  3. summarize them (fetch failures are kept for the next sync)
//  4. store the summaries, then shrink the backfill or advance the cursor
//  5. publish the summaries to NATS (best effort)
func SyncWalletWorkflow(ctx workflow.Context, input SyncWalletInput) (*SyncWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SyncWalletWorkflow started", "wallet", input.Wallet)

	start := workflow.Now(ctx)
	result := &SyncWalletResult{
		Wallet:   input.Wallet,
		SyncTime: start,
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	actx := workflow.WithActivityOptions(ctx, activityOptions)

	err := syncWallet(actx, input, result)

	status := "success"
	switch {
	case err != nil:
		status = "error"
		errMsg := err.Error()
		result.Error = &errMsg
	case len(result.Failed) > 0:
		status = "partial"
	}

	rctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporalsdk.RetryPolicy{MaximumAttempts: 1},
	})
	report := ReportSyncInput{
		Wallet:          input.Wallet,
		Status:          status,
		DurationSeconds: workflow.Now(ctx).Sub(start).Seconds(),
	}
	if rerr := workflow.ExecuteActivity(rctx, a.ReportSync, report).Get(rctx, nil); rerr != nil {
		logger.Warn("failed to report sync", "wallet", input.Wallet, "error", rerr)
	}

	if err != nil {
		return result, err
	}

	logger.Info("SyncWalletWorkflow completed successfully",
		"wallet", input.Wallet,
		"signatures", result.SignatureCount,
		"summarized", result.Summarized,
		"failed", len(result.Failed),
		"cursor", result.Cursor,
	)
	return result, nil
}

func syncWallet(ctx workflow.Context, input SyncWalletInput, result *SyncWalletResult) error {
	logger := workflow.GetLogger(ctx)

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSyncLimit
	}

	var cursorResult *GetSyncCursorResult
	err := workflow.ExecuteActivity(ctx, a.GetSyncCursor, GetSyncCursorInput{Wallet: input.Wallet}).Get(ctx, &cursorResult)
	if err != nil {
		return fmt.Errorf("failed to get sync cursor: %w", err)
	}
	result.PreviousCursor = cursorResult.Cursor
	result.Cursor = cursorResult.Cursor
	result.Backfill = cursorResult.Backfill

	// A pending backfill is drained before the head moves again.
	gap := cursorResult.Backfill
	before, until := "", cursorResult.Cursor
	if gap != nil {
		before, until = gap.Before, gap.Until
		logger.Info("backfilling skipped signatures", "wallet", input.Wallet, "before", gap.Before, "until", gap.Until)
	}

	signatures, full, err := listWindow(ctx, input.Wallet, limit, before, until)
	if err != nil {
		return err
	}
	result.SignatureCount = len(signatures)
	result.WindowFull = full
	if full {
		logger.Warn("sync page limit reached, older signatures deferred",
			"wallet", input.Wallet,
			"pages", MaxSyncPages,
		)
	}

	storeInput := StoreSummariesInput{Wallet: input.Wallet}
	var sumResult *SummarizeSignaturesResult
	if len(signatures) == 0 {
		logger.Info("no new signatures", "wallet", input.Wallet)
		if gap == nil {
			return nil
		}
		sumResult = &SummarizeSignaturesResult{}
	} else {
		err = workflow.ExecuteActivity(ctx, a.SummarizeSignatures, SummarizeSignaturesInput{
			Wallet:     input.Wallet,
			Signatures: signatures,
		}).Get(ctx, &sumResult)
		if err != nil {
			return fmt.Errorf("failed to summarize signatures: %w", err)
		}
	}
	result.Summarized = len(sumResult.Summaries)
	result.Skipped = sumResult.Skipped
	result.Failed = sumResult.Failed
	storeInput.Summaries = sumResult.Summaries

	if gap != nil {
		remaining := shrinkBackfill(*gap, signatures, sumResult.Failed, full)
		storeInput.Backfill = &remaining
	} else {
		next := advanceCursor(signatures, sumResult.Failed, cursorResult.Cursor)
		if next != cursorResult.Cursor {
			storeInput.Cursor = next
		}
		// The first sync of a wallet only takes the newest window.
		if full && cursorResult.Cursor != "" {
			storeInput.Backfill = &Backfill{Before: signatures[len(signatures)-1], Until: cursorResult.Cursor}
		}
	}

	if len(storeInput.Summaries) > 0 || storeInput.Cursor != "" || storeInput.Backfill != nil {
		var storeResult *StoreSummariesResult
		if err := workflow.ExecuteActivity(ctx, a.StoreSummaries, storeInput).Get(ctx, &storeResult); err != nil {
			return fmt.Errorf("failed to store summaries: %w", err)
		}
	}
	if storeInput.Cursor != "" {
		result.Cursor = storeInput.Cursor
	}
	if b := storeInput.Backfill; b != nil {
		result.Backfill = nil
		if b.Before != "" {
			result.Backfill = b
		}
	}

	if len(sumResult.Summaries) > 0 {
		var pubResult *PublishSummariesResult
		err := workflow.ExecuteActivity(ctx, a.PublishSummaries, PublishSummariesInput{
			Wallet:    input.Wallet,
			Summaries: sumResult.Summaries,
		}).Get(ctx, &pubResult)
		if err != nil {
			// Summaries are stored; subscribers can catch up from the API.
			logger.Warn("failed to publish summaries", "wallet", input.Wallet, "error", err)
		} else {
			result.Published = pubResult.Published
		}
	}
	return nil
}

// listWindow pages newest first through signatures older than before and
// newer than until. full reports that it stopped at MaxSyncPages.
func listWindow(ctx workflow.Context, wallet string, limit int, before, until string) (signatures []string, full bool, err error) {
	for page := 0; ; page++ {
		var listResult *ListSignaturesResult
		listInput := ListSignaturesInput{
			Wallet: wallet,
			Limit:  limit,
			Before: before,
			Until:  until,
		}
		if err := workflow.ExecuteActivity(ctx, a.ListSignatures, listInput).Get(ctx, &listResult); err != nil {
			return nil, false, fmt.Errorf("failed to list signatures: %w", err)
		}
		signatures = append(signatures, listResult.Signatures...)

		if len(listResult.Signatures) < limit {
			return signatures, false, nil
		}
		if page+1 >= MaxSyncPages {
			return signatures, true, nil
		}
		before = listResult.Signatures[len(listResult.Signatures)-1]
	}
}

// shrinkBackfill returns what is left of gap after one pass over signatures
// (newest first). A failed signature stays inside the span; an empty Before
// means the span is drained.
func shrinkBackfill(gap Backfill, signatures, failed []string, full bool) Backfill {
	for i, sig := range signatures {
		if !slices.Contains(failed, sig) {
			continue
		}
		if i == 0 {
			return gap
		}
		return Backfill{Before: signatures[i-1], Until: gap.Until}
	}
	if full {
		return Backfill{Before: signatures[len(signatures)-1], Until: gap.Until}
	}
	return Backfill{}
}

// advanceCursor returns the newest signature the next sync may start after.
// signatures are newest first. The cursor never moves past a failed
// signature, so failures are listed again next time.
func advanceCursor(signatures, failed []string, prev string) string {
	if len(signatures) == 0 {
		return prev
	}
	oldestFailed := -1
	for i, sig := range signatures {
		if slices.Contains(failed, sig) {
			oldestFailed = i
		}
	}
	switch {
	case oldestFailed == -1:
		return signatures[0]
	case oldestFailed == len(signatures)-1:
		return prev
	default:
		return signatures[oldestFailed+1]
	}
}
