package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
)

var (
	// ErrRecordNotFound means the node has no transaction for the signature.
	ErrRecordNotFound = errors.New("transaction not found")
	// ErrInvalidSignature means the signature is not valid base58 of the right length.
	ErrInvalidSignature = errors.New("invalid transaction signature")
	// ErrInvalidAddress means the wallet address is not a valid public key.
	ErrInvalidAddress = errors.New("invalid wallet address")
)

// legacyParseError is what solana-go reports when a legacy transaction is
// decoded with versioned-transaction options.
const legacyParseError = "expects '\"' or 'n', but found '{'"

// BackoffFunc returns how long to wait before retry number attempt (0-based).
type BackoffFunc func(attempt int, rateLimited bool) time.Duration

// DefaultBackoff waits 1s, 2s, 4s... and twice that when rate limited.
func DefaultBackoff(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return time.Duration(2<<uint(attempt)) * time.Second
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Client fetches signatures and transaction records from a Solana node.
type Client struct {
	rpc         RPCClient
	swaps       SwapDetector
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // metrics label, e.g. the RPC host
	maxAttempts int
	backoff     BackoffFunc
	limiter     *rate.Limiter // nil = unlimited
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxAttempts bounds the attempts per RPC call. Values below 1 are ignored.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff replaces DefaultBackoff.
func WithBackoff(fn BackoffFunc) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// WithRateLimit caps outgoing RPC calls at rps per second. Public mainnet
// endpoints tolerate 1-2; premium endpoints far more. rps <= 0 disables the cap.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithSwapDetector replaces the default DexSwapDetector.
func WithSwapDetector(d SwapDetector) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.swaps = d
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is only used for metrics labeling.
// If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		rpc:         rpcClient,
		swaps:       DexSwapDetector{},
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		maxAttempts: 3,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListSignatures returns up to limit signatures involving wallet, newest first.
// before and until are optional signature bounds, both exclusive.
func (c *Client) ListSignatures(ctx context.Context, wallet string, limit int, before, until string) ([]string, error) {
	pubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, wallet)
	}

	opts := &rpc.GetSignaturesForAddressOpts{}
	if limit > 0 {
		opts.Limit = &limit
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("%w: before %s", ErrInvalidSignature, before)
		}
		opts.Before = sig
	}
	if until != "" {
		sig, err := solana.SignatureFromBase58(until)
		if err != nil {
			return nil, fmt.Errorf("%w: until %s", ErrInvalidSignature, until)
		}
		opts.Until = sig
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", wallet,
		"limit", limit,
		"before", before,
		"until", until,
	)

	var result []*rpc.TransactionSignature
	err = c.retry(ctx, "GetSignaturesForAddress", wallet, func() error {
		var callErr error
		result, callErr = c.rpc.GetSignaturesForAddress(ctx, pubkey, opts)
		return callErr
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", wallet,
			"error", err,
		)
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(result)))
	}

	signatures := make([]string, 0, len(result))
	for _, s := range result {
		signatures = append(signatures, s.Signature.String())
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", wallet,
		"count", len(signatures),
	)
	return signatures, nil
}

// GetRawRecord fetches one transaction and decodes it into a ledger.RawRecord.
// It returns ErrRecordNotFound when the node does not know the signature.
func (c *Client) GetRawRecord(ctx context.Context, signature string) (*ledger.RawRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, signature)
	}

	legacy := false
	var result *rpc.GetTransactionResult
	err = c.retry(ctx, "GetTransaction", signature, func() error {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		if legacy {
			opts.MaxSupportedTransactionVersion = nil
		}
		var callErr error
		result, callErr = c.rpc.GetTransaction(ctx, sig, opts)
		if callErr != nil && !legacy && strings.Contains(callErr.Error(), legacyParseError) {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", signature,
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			legacy = true
			result, callErr = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
		}
		return callErr
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && result == nil) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, signature)
	}
	if err != nil {
		return nil, err
	}

	rec, err := DecodeRecord(signature, result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", signature, err)
	}
	rec.SwapDetected = c.swaps.IsSwap(result)
	return rec, nil
}

// retry runs call up to maxAttempts times, backing off between attempts.
// Not-found and context errors are returned immediately.
func (c *Client) retry(ctx context.Context, method, subject string, call func() error) error {
	var err error
	for attempt := range c.maxAttempts {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		start := time.Now()
		err = call()
		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
		}

		if err == nil || errors.Is(err, rpc.ErrNotFound) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		rateLimited := strings.Contains(err.Error(), "429")
		backoff := c.backoff(attempt, rateLimited)
		reason := "timeout_or_error"
		if rateLimited {
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
		c.logger.WarnContext(ctx, "rpc call failed, sleeping before retry",
			"method", method,
			"subject", subject,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)

		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, c.maxAttempts, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
