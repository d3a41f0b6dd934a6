package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filevault/internal/observability/metrics"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

// WelcomeQueueName labels welcome jobs in metrics and logs.
const WelcomeQueueName = "welcome"

var errUnknownUser = errors.New("user not found")

// WelcomeWorkerConfig wires the welcome consumer to its collaborators.
type WelcomeWorkerConfig struct {
	Store   storage.Repository
	Queue   queue.Queue
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// WelcomeWorker consumes registration jobs and greets new accounts in the
// log stream. It stands in for the outbound email integration.
type WelcomeWorker struct {
	store   storage.Repository
	queue   queue.Queue
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewWelcomeWorker validates the configuration and returns a worker.
func NewWelcomeWorker(cfg WelcomeWorkerConfig) (*WelcomeWorker, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WelcomeWorker{
		store:   cfg.Store,
		queue:   cfg.Queue,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Run consumes jobs until the context is cancelled.
func (w *WelcomeWorker) Run(ctx context.Context) error {
	sub := w.queue.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-sub.Jobs():
			if !ok {
				return nil
			}
			w.handle(ctx, job)
		}
	}
}

func (w *WelcomeWorker) handle(ctx context.Context, job queue.Job) {
	if w.metrics != nil {
		w.metrics.JobStarted(WelcomeQueueName)
	}
	if err := w.Process(ctx, job); err != nil {
		w.logger.Error("welcome job failed", "userID", job.UserID, "error", err)
		if w.metrics != nil {
			w.metrics.JobFailed(WelcomeQueueName)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.JobCompleted(WelcomeQueueName)
	}
}

// Process resolves the user and emits the greeting.
func (w *WelcomeWorker) Process(ctx context.Context, job queue.Job) error {
	if job.UserID == "" {
		return errMissingUserID
	}
	user, ok, err := w.store.GetUser(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return errUnknownUser
	}
	w.logger.Info(fmt.Sprintf("Welcome %s!", user.Email), "userID", user.ID)
	return nil
}
