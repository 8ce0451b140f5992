package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultReceiptTimeout bounds a single receipt lookup.
const DefaultReceiptTimeout = 5 * time.Second

// ReceiptFinder correlates a memo and approximate payment time with a merchant receipt.
// A nil receipt with a nil error means no receipt was found.
type ReceiptFinder interface {
	FindReceipt(ctx context.Context, secretKey []byte, memo string, approxTimeMs int64) (*Receipt, error)
}

// Options are per-call summarization switches.
type Options struct {
	EnableReceipts bool
	SecretKey      []byte
}

// Summarizer turns raw records into summaries for a wallet.
// It is safe for concurrent use.
type Summarizer struct {
	currencies     CurrencyResolver
	receipts       ReceiptFinder
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithReceipts sets the receipt correlator and its per-call timeout.
func WithReceipts(finder ReceiptFinder, timeout time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		s.receipts = finder
		if timeout > 0 {
			s.receiptTimeout = timeout
		}
	}
}

// NewSummarizer creates a Summarizer. If logger is nil, slog.Default is used.
func NewSummarizer(currencies CurrencyResolver, logger *slog.Logger, opts ...SummarizerOption) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Summarizer{
		currencies:     currencies,
		receiptTimeout: DefaultReceiptTimeout,
		logger:         logger.With("component", "summarizer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize produces the outcome for rec seen from wallet. It never returns a
// failed outcome: records with nothing to show are skipped with a reason.
func (s *Summarizer) Summarize(ctx context.Context, rec *RawRecord, wallet string, opts Options) Outcome {
	summary, err := s.summarize(ctx, rec, wallet, opts)
	if err != nil {
		reason, ok := ReasonOf(err)
		if !ok {
			reason = SkipMalformedRecord
		}
		s.logger.DebugContext(ctx, "skipping transaction",
			"signature", rec.Signature,
			"wallet", wallet,
			"reason", reason,
			"detail", err.Error(),
		)
		return Skipped(rec.Signature, reason)
	}
	return Summarized(summary)
}

func (s *Summarizer) summarize(ctx context.Context, rec *RawRecord, wallet string, opts Options) (*Summary, error) {
	if rec.BlockTime == nil {
		return nil, skipf(SkipMalformedRecord, "missing block time")
	}

	class, err := Classify(rec)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ID:         rec.Signature,
		Date:       *rec.BlockTime * 1000,
		Status:     rec.Err == nil,
		NetworkFee: rec.Fee,
	}

	switch class.Path {
	case PathAccountCreate:
		create := class.Governing.(AccountCreate)
		summary.Direction = DirectionNone
		summary.Amount = create.Lamports
		summary.Currency = NativeMint
		// Informational only, so there is no memo or receipt to attach.
		return summary, nil
	case PathNative:
		if err := s.nativePath(summary, class.Governing.(NativeTransfer), wallet); err != nil {
			return nil, err
		}
	case PathToken:
		if err := s.tokenPath(summary, rec, wallet); err != nil {
			return nil, err
		}
	}

	summary.Memo = ExtractMemo(rec.Instructions)
	if opts.EnableReceipts && len(opts.SecretKey) > 0 && summary.Memo != nil && s.receipts != nil {
		summary.Receipt = s.findReceipt(ctx, opts.SecretKey, *summary.Memo, summary.Date)
	}
	return summary, nil
}

func (s *Summarizer) nativePath(summary *Summary, transfer NativeTransfer, wallet string) error {
	switch wallet {
	case transfer.Source:
		summary.Direction = DirectionSent
		summary.CounterParty = transfer.Destination
	case transfer.Destination:
		summary.Direction = DirectionReceived
		summary.CounterParty = transfer.Source
	default:
		return skipf(SkipUnsupported, "wallet is not a party to the native transfer")
	}
	if transfer.Lamports == 0 {
		return skipf(SkipNoValueMoved, "zero lamports")
	}
	summary.Amount = transfer.Lamports
	summary.Currency = NativeMint
	summary.From = transfer.Source
	summary.To = transfer.Destination
	return nil
}

func (s *Summarizer) tokenPath(summary *Summary, rec *RawRecord, wallet string) error {
	diff, err := ResolveBalances(rec, wallet)
	if err != nil {
		return err
	}
	currency, err := s.currencies.Resolve(diff.Mint)
	if err != nil {
		if errors.Is(err, ErrUnknownCurrency) {
			return skipf(SkipUnknownCurrency, "mint %s", diff.Mint)
		}
		return err
	}

	summary.Direction = diff.Direction
	summary.Amount = diff.Amount
	summary.Currency = currency.Mint
	summary.CounterParty = diff.CounterParty
	if diff.Direction == DirectionSent {
		summary.From, summary.To = wallet, diff.CounterParty
	} else {
		summary.From, summary.To = diff.CounterParty, wallet
	}
	return nil
}

// findReceipt never fails the summary: misses, errors and timeouts all leave it nil.
func (s *Summarizer) findReceipt(ctx context.Context, secretKey []byte, memo string, dateMs int64) *Receipt {
	ctx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()

	receipt, err := s.receipts.FindReceipt(ctx, secretKey, memo, dateMs)
	if err != nil {
		s.logger.WarnContext(ctx, "receipt lookup failed",
			"memo", memo,
			"timeout", s.receiptTimeout,
			"error", err,
		)
		return nil
	}
	return receipt
}
