package temporal

import (
	"context"
	"errors"
	"time"
)

// ErrScheduleNotFound is returned when deleting a wallet that has no schedule.
var ErrScheduleNotFound = errors.New("schedule not found")

// SyncHandle identifies a started sync workflow run.
type SyncHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Scheduler manages wallet sync schedules and on-demand syncs.
// Each wallet gets its own schedule that triggers SyncWalletWorkflow.
type Scheduler interface {
	// UpsertWalletSchedule creates the wallet's schedule or updates its interval.
	UpsertWalletSchedule(ctx context.Context, wallet string, interval time.Duration) error

	// DeleteWalletSchedule stops syncing the wallet.
	DeleteWalletSchedule(ctx context.Context, wallet string) error

	// StartSync starts a one-off sync and returns without waiting for it.
	StartSync(ctx context.Context, wallet string, limit int) (*SyncHandle, error)
}

// ScheduleIDPrefix prefixes every wallet schedule ID.
const ScheduleIDPrefix = "sync-wallet-"

// scheduleID returns the Temporal schedule ID for a wallet.
func scheduleID(wallet string) string {
	return ScheduleIDPrefix + wallet
}
