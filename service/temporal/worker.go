package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/brojonat/ledgerlens/service/metrics"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	Store      StoreInterface
	Lister     SignatureLister
	Summarizer BatchSummarizer
	Publisher  PublisherInterface // optional
	Metrics    *metrics.Metrics   // optional
	Logger     *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker connects to Temporal and registers the sync workflow and its activities.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(SyncWalletWorkflow)

	activities := NewActivities(
		config.Store,
		config.Lister,
		config.Summarizer,
		config.Publisher,
		config.Metrics,
		logger,
	)
	w.RegisterActivity(activities.GetSyncCursor)
	w.RegisterActivity(activities.ListSignatures)
	w.RegisterActivity(activities.SummarizeSignatures)
	w.RegisterActivity(activities.StoreSummaries)
	w.RegisterActivity(activities.PublishSummaries)
	w.RegisterActivity(activities.ReportSync)

	logger.Info("registered workflow and activities",
		"workflow", "SyncWalletWorkflow",
		"activities", []string{"GetSyncCursor", "ListSignatures", "SummarizeSignatures", "StoreSummaries", "PublishSummaries", "ReportSync"},
	)

	return &Worker{client: c, worker: w, logger: logger}, nil
}

// Start begins processing workflows and activities.
// It blocks until the process is interrupted or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(worker.InterruptCh()); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
}
