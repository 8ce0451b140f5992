package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) syncAction(wallet string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        ScheduleIDPrefix + wallet,
		Workflow:  SyncWalletWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{SyncWalletInput{Wallet: wallet}},
	}
}

// CreateWalletSchedule creates a schedule that syncs wallet every interval.
func (c *Client) CreateWalletSchedule(ctx context.Context, wallet string, interval time.Duration) error {
	id := scheduleID(wallet)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action:  c.syncAction(wallet),
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Memo: map[string]interface{}{
			"wallet":     wallet,
			"created_by": "ledgerlens",
		},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to create schedule",
			"wallet", wallet,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "wallet schedule created",
		"wallet", wallet,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertWalletSchedule creates the schedule, or updates the interval of an
// existing one.
func (c *Client) UpsertWalletSchedule(ctx context.Context, wallet string, interval time.Duration) error {
	id := scheduleID(wallet)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.DebugContext(ctx, "schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateWalletSchedule(ctx, wallet, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			return &client.ScheduleUpdate{Schedule: &input.Description.Schedule}, nil
		},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to update schedule",
			"wallet", wallet,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "wallet schedule updated",
		"wallet", wallet,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteWalletSchedule deletes the wallet's schedule. It returns
// ErrScheduleNotFound if there is none.
func (c *Client) DeleteWalletSchedule(ctx context.Context, wallet string) error {
	id := scheduleID(wallet)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
		}
		c.logger.ErrorContext(ctx, "failed to delete schedule",
			"wallet", wallet,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "wallet schedule deleted",
		"wallet", wallet,
		"schedule_id", id,
	)
	return nil
}

// StartSync starts SyncWalletWorkflow for wallet under a fresh workflow ID.
func (c *Client) StartSync(ctx context.Context, wallet string, limit int) (*SyncHandle, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s%s-%s", ScheduleIDPrefix, wallet, uuid.NewString()),
		TaskQueue: c.taskQueue,
	}, SyncWalletWorkflow, SyncWalletInput{Wallet: wallet, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to start sync workflow: %w", err)
	}

	c.logger.InfoContext(ctx, "sync workflow started",
		"wallet", wallet,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return &SyncHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// GetSyncResult blocks until the sync run finishes and returns its result.
func (c *Client) GetSyncResult(ctx context.Context, handle *SyncHandle) (*SyncWalletResult, error) {
	var result SyncWalletResult
	if err := c.client.GetWorkflow(ctx, handle.WorkflowID, handle.RunID).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("sync workflow %s failed: %w", handle.WorkflowID, err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
