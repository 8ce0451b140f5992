package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SkipReason explains why a record produced no summary.
type SkipReason string

const (
	SkipSelfTransfer      SkipReason = "self-transfer"
	SkipNoValueMoved      SkipReason = "no-value-moved"
	SkipAmbiguousBalances SkipReason = "ambiguous-balances"
	SkipUnknownCurrency   SkipReason = "unknown-currency"
	SkipMalformedRecord   SkipReason = "malformed-record"
	SkipUnsupported       SkipReason = "unsupported"
)

// SkipError is returned by the classifier and resolvers for records that are
// valid but have nothing to show.
type SkipError struct {
	Reason SkipReason
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func skipf(reason SkipReason, format string, args ...any) error {
	return &SkipError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the skip reason from err, if any.
func ReasonOf(err error) (SkipReason, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

// OutcomeKind is the top-level result of summarizing one record.
type OutcomeKind string

const (
	OutcomeSummarized OutcomeKind = "summarized"
	OutcomeSkipped    OutcomeKind = "skipped"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome lets callers tell "nothing to show" apart from "something broke".
type Outcome struct {
	Signature string
	Kind      OutcomeKind
	Summary   *Summary
	Reason    SkipReason
	Err       error
}

// MarshalJSON renders Err as its message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	wire := struct {
		Signature string      `json:"signature"`
		Kind      OutcomeKind `json:"kind"`
		Summary   *Summary    `json:"summary,omitempty"`
		Reason    SkipReason  `json:"reason,omitempty"`
		Error     string      `json:"error,omitempty"`
	}{
		Signature: o.Signature,
		Kind:      o.Kind,
		Summary:   o.Summary,
		Reason:    o.Reason,
	}
	if o.Err != nil {
		wire.Error = o.Err.Error()
	}
	return json.Marshal(wire)
}

func Summarized(s *Summary) Outcome {
	return Outcome{Signature: s.ID, Kind: OutcomeSummarized, Summary: s}
}

func Skipped(signature string, reason SkipReason) Outcome {
	return Outcome{Signature: signature, Kind: OutcomeSkipped, Reason: reason}
}

func Failed(signature string, err error) Outcome {
	return Outcome{Signature: signature, Kind: OutcomeFailed, Err: err}
}
