package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/ledgerlens/service/ledger"
)

const (
	alice = "5FHwkrdxntdK24hgQU8qgBjn35Y1zwhz1GZwCkP2UJnM"
	bob   = "DfVRG9zxKnc4A8ztEmm3MwZ8dmUQ8sAnRoNK7Ue4CpQY"
)

type fakeRecords struct {
	mu       sync.Mutex
	records  map[string]*ledger.RawRecord
	errs     map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeRecords) Get(ctx context.Context, signature string) (*ledger.RawRecord, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[signature]; ok {
		return nil, err
	}
	rec, ok := f.records[signature]
	if !ok {
		return nil, errors.New("transaction not found")
	}
	return rec, nil
}

type fakeLister struct {
	signatures []string
	err        error
	gotLimit   int
	gotUntil   string
}

func (f *fakeLister) ListSignatures(ctx context.Context, wallet string, limit int, before, until string) ([]string, error) {
	f.gotLimit = limit
	f.gotUntil = until
	return f.signatures, f.err
}

func transfer(sig, from, to string, lamports uint64) *ledger.RawRecord {
	bt := time.Date(2022, 12, 19, 10, 47, 57, 0, time.UTC).Unix()
	return &ledger.RawRecord{
		Signature: sig,
		BlockTime: &bt,
		Fee:       5000,
		Instructions: ledger.Instructions{
			ledger.NativeTransfer{ProgramID: "11111111111111111111111111111111", Source: from, Destination: to, Lamports: lamports},
		},
	}
}

func newTestService(records RecordSource, lister SignatureLister, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	summarizer := ledger.NewSummarizer(ledger.DefaultCurrencyTable(), logger)
	svc := NewService(records, lister, summarizer, nil, logger, opts...)
	return svc
}

func TestSummarizeSignatures_MixedOutcomes(t *testing.T) {
	records := &fakeRecords{
		records: map[string]*ledger.RawRecord{
			"paid":  transfer("paid", alice, bob, 50000),
			"self":  transfer("self", alice, alice, 50000),
			"empty": transfer("empty", alice, bob, 0),
		},
		errs: map[string]error{"broken": errors.New("node unreachable")},
	}
	svc := newTestService(records, &fakeLister{})
	defer svc.Close()

	result, err := svc.SummarizeSignatures(context.Background(), alice, []string{"paid", "broken", "self", "empty"}, ledger.Options{})

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)

	assert.Equal(t, ledger.OutcomeSummarized, result.Outcomes[0].Kind)
	assert.Equal(t, ledger.OutcomeFailed, result.Outcomes[1].Kind)
	assert.Equal(t, "broken", result.Outcomes[1].Signature)
	assert.ErrorContains(t, result.Outcomes[1].Err, "node unreachable")
	assert.Equal(t, ledger.OutcomeSkipped, result.Outcomes[2].Kind)
	assert.Equal(t, ledger.SkipSelfTransfer, result.Outcomes[2].Reason)
	assert.Equal(t, ledger.SkipNoValueMoved, result.Outcomes[3].Reason)

	summaries := result.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "paid", summaries[0].ID)
	assert.Equal(t, ledger.DirectionSent, summaries[0].Direction)

	assert.Len(t, result.Failures(), 1)
	assert.Len(t, result.Skipped(), 2)
	assert.Equal(t, 1, result.Count(ledger.OutcomeSummarized))
}

func TestSummarizeSignatures_PreservesOrderAndDedupes(t *testing.T) {
	records := &fakeRecords{records: map[string]*ledger.RawRecord{}, delay: time.Millisecond}
	var sigs []string
	for _, s := range []string{"a", "b", "c", "d", "e", "f"} {
		records.records[s] = transfer(s, bob, alice, 10)
		sigs = append(sigs, s)
	}
	sigs = append(sigs, "c", "")
	svc := newTestService(records, &fakeLister{})
	defer svc.Close()

	result, err := svc.SummarizeSignatures(context.Background(), alice, sigs, ledger.Options{})

	require.NoError(t, err)
	var got []string
	for _, o := range result.Outcomes {
		got = append(got, o.Signature)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestSummarizeSignatures_BoundedConcurrency(t *testing.T) {
	records := &fakeRecords{records: map[string]*ledger.RawRecord{}, delay: 10 * time.Millisecond}
	var sigs []string
	for i := range 20 {
		sig := string(rune('a' + i))
		records.records[sig] = transfer(sig, bob, alice, 10)
		sigs = append(sigs, sig)
	}
	svc := newTestService(records, &fakeLister{}, WithConcurrency(3, 64))
	defer svc.Close()

	result, err := svc.SummarizeSignatures(context.Background(), alice, sigs, ledger.Options{})

	require.NoError(t, err)
	assert.Equal(t, 20, result.Count(ledger.OutcomeSummarized))
	assert.LessOrEqual(t, records.peak.Load(), int32(3))
}

func TestSummarizeSignatures_CallerErrors(t *testing.T) {
	svc := newTestService(&fakeRecords{}, &fakeLister{})
	defer svc.Close()

	_, err := svc.SummarizeSignatures(context.Background(), "not a wallet", []string{"a"}, ledger.Options{})
	assert.ErrorIs(t, err, ErrInvalidWallet)

	_, err = svc.SummarizeSignatures(context.Background(), alice, nil, ledger.Options{})
	assert.ErrorIs(t, err, ErrEmptySignatureList)

	_, err = svc.SummarizeSignatures(context.Background(), alice, []string{"", ""}, ledger.Options{})
	assert.ErrorIs(t, err, ErrEmptySignatureList)
}

func TestSummarizeSignatures_CancelledContext(t *testing.T) {
	records := &fakeRecords{records: map[string]*ledger.RawRecord{"a": transfer("a", bob, alice, 1)}}
	svc := newTestService(records, &fakeLister{})
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.SummarizeSignatures(ctx, alice, []string{"a", "b"}, ledger.Options{})

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	for _, o := range result.Outcomes {
		assert.Equal(t, ledger.OutcomeFailed, o.Kind)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestSummarizeWallet(t *testing.T) {
	records := &fakeRecords{records: map[string]*ledger.RawRecord{
		"new": transfer("new", bob, alice, 20),
		"old": transfer("old", alice, bob, 10),
	}}
	lister := &fakeLister{signatures: []string{"new", "old"}}
	svc := newTestService(records, lister)
	defer svc.Close()

	result, err := svc.SummarizeWallet(context.Background(), alice, 50, "", "cursor", ledger.Options{})

	require.NoError(t, err)
	assert.Equal(t, 50, lister.gotLimit)
	assert.Equal(t, "cursor", lister.gotUntil)
	summaries := result.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, ledger.DirectionReceived, summaries[0].Direction)
	assert.Equal(t, ledger.DirectionSent, summaries[1].Direction)
}

func TestSummarizeWallet_NoTransactions(t *testing.T) {
	svc := newTestService(&fakeRecords{}, &fakeLister{})
	defer svc.Close()

	result, err := svc.SummarizeWallet(context.Background(), alice, 10, "", "", ledger.Options{})

	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.Empty(t, result.Summaries())
}

func TestSummarizeWallet_ListFailure(t *testing.T) {
	svc := newTestService(&fakeRecords{}, &fakeLister{err: errors.New("429 Too Many Requests")})
	defer svc.Close()

	_, err := svc.SummarizeWallet(context.Background(), alice, 10, "", "", ledger.Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list signatures")
}

func TestBatchResultJSON(t *testing.T) {
	result := &BatchResult{
		Wallet: alice,
		Outcomes: []ledger.Outcome{
			ledger.Skipped("s", ledger.SkipSelfTransfer),
			ledger.Failed("f", errors.New("boom")),
		},
	}

	blob, err := json.Marshal(result)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"wallet": "`+alice+`",
		"outcomes": [
			{"signature": "s", "kind": "skipped", "reason": "self-transfer"},
			{"signature": "f", "kind": "failed", "error": "boom"}
		]
	}`, string(blob))
}
