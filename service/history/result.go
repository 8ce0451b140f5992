package history

import (
	"github.com/brojonat/ledgerlens/service/ledger"
)

// BatchResult holds one outcome per requested signature, in request order.
// Partial success is normal: callers inspect Failures rather than a single error.
type BatchResult struct {
	Wallet   string           `json:"wallet"`
	Outcomes []ledger.Outcome `json:"outcomes"`
}

// Summaries returns the produced summaries in request order.
func (r *BatchResult) Summaries() []ledger.Summary {
	out := make([]ledger.Summary, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Kind == ledger.OutcomeSummarized && o.Summary != nil {
			out = append(out, *o.Summary)
		}
	}
	return out
}

// Failures returns the failed outcomes.
func (r *BatchResult) Failures() []ledger.Outcome {
	return r.filter(ledger.OutcomeFailed)
}

// Skipped returns the skipped outcomes.
func (r *BatchResult) Skipped() []ledger.Outcome {
	return r.filter(ledger.OutcomeSkipped)
}

// Count returns how many outcomes have kind.
func (r *BatchResult) Count(kind ledger.OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func (r *BatchResult) filter(kind ledger.OutcomeKind) []ledger.Outcome {
	var out []ledger.Outcome
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}
