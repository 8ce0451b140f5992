package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	syncs     []SyncWalletInput
	upsertErr error
	deleteErr error
	syncErr   error
}

var _ Scheduler = (*MockScheduler)(nil)

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// UpsertWalletSchedule creates or updates a schedule.
func (m *MockScheduler) UpsertWalletSchedule(ctx context.Context, wallet string, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.schedules[scheduleID(wallet)] = interval
	return nil
}

// DeleteWalletSchedule removes a schedule, failing with ErrScheduleNotFound if absent.
func (m *MockScheduler) DeleteWalletSchedule(ctx context.Context, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	id := scheduleID(wallet)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	delete(m.schedules, id)
	return nil
}

// StartSync records the requested sync.
func (m *MockScheduler) StartSync(ctx context.Context, wallet string, limit int) (*SyncHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncErr != nil {
		return nil, m.syncErr
	}
	m.syncs = append(m.syncs, SyncWalletInput{Wallet: wallet, Limit: limit})
	return &SyncHandle{
		WorkflowID: fmt.Sprintf("sync-wallet-%s-%d", wallet, len(m.syncs)),
		RunID:      "mock-run",
	}, nil
}

// SetUpsertError makes UpsertWalletSchedule return an error.
func (m *MockScheduler) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetDeleteError makes DeleteWalletSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetSyncError makes StartSync return an error.
func (m *MockScheduler) SetSyncError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncErr = err
}

// GetScheduleInterval returns the interval for a wallet's schedule.
func (m *MockScheduler) GetScheduleInterval(wallet string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval, exists := m.schedules[scheduleID(wallet)]
	return interval, exists
}

// Syncs returns the syncs started so far.
func (m *MockScheduler) Syncs() []SyncWalletInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SyncWalletInput(nil), m.syncs...)
}
