package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/ledgerlens/service/ledger"
)

// SummaryEvent is published to "summaries.{wallet}" for every newly synced summary.
type SummaryEvent struct {
	Wallet      string         `json:"wallet"`
	Summary     ledger.Summary `json:"summary"`
	PublishedAt time.Time      `json:"published_at"`
}

// NewSummaryEvents wraps a sync's summaries for publishing, keeping their order.
func NewSummaryEvents(wallet string, summaries []ledger.Summary) []*SummaryEvent {
	now := time.Now().UTC()
	events := make([]*SummaryEvent, len(summaries))
	for i, s := range summaries {
		events[i] = &SummaryEvent{Wallet: wallet, Summary: s, PublishedAt: now}
	}
	return events
}

// Subject returns the subject events for wallet are published on.
func Subject(wallet string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, wallet)
}
