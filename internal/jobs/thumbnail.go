// Package jobs hosts the background consumers fed by the job queue:
// thumbnail derivative generation and welcome greetings.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filevault/internal/content"
	"filevault/internal/models"
	"filevault/internal/observability/metrics"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

// ThumbnailQueueName labels thumbnail jobs in metrics and logs.
const ThumbnailQueueName = "thumbnails"

var (
	errMissingFileID = errors.New("missing fileId")
	errMissingUserID = errors.New("missing userId")
	errFileNotFound  = errors.New("file not found")
	errNotAnImage    = errors.New("file is not an image")
)

// ThumbnailWorkerConfig wires the derivative worker to its collaborators.
type ThumbnailWorkerConfig struct {
	Store   storage.Repository
	Content *content.Store
	Queue   queue.Queue
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Widths  []int
}

// ThumbnailWorker consumes thumbnail jobs and writes resized derivatives
// next to the original blob. Jobs replay after crashes, so derivative writes
// are idempotent overwrites.
type ThumbnailWorker struct {
	store   storage.Repository
	content *content.Store
	queue   queue.Queue
	logger  *slog.Logger
	metrics *metrics.Recorder
	widths  []int
}

// NewThumbnailWorker validates the configuration and returns a worker.
func NewThumbnailWorker(cfg ThumbnailWorkerConfig) (*ThumbnailWorker, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Content == nil {
		return nil, errors.New("content store is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	widths := cfg.Widths
	if len(widths) == 0 {
		widths = Widths
	}
	return &ThumbnailWorker{
		store:   cfg.Store,
		content: cfg.Content,
		queue:   cfg.Queue,
		logger:  logger,
		metrics: cfg.Metrics,
		widths:  widths,
	}, nil
}

// Run consumes jobs until the context is cancelled.
func (w *ThumbnailWorker) Run(ctx context.Context) error {
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

func (w *ThumbnailWorker) handle(ctx context.Context, job queue.Job) {
	if w.metrics != nil {
		w.metrics.JobStarted(ThumbnailQueueName)
	}
	if err := w.Process(ctx, job); err != nil {
		w.logger.Error("thumbnail job failed",
			"fileID", job.FileID,
			"userID", job.UserID,
			"error", err)
		if w.metrics != nil {
			w.metrics.JobFailed(ThumbnailQueueName)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.JobCompleted(ThumbnailQueueName)
	}
}

// Process generates the configured derivative widths for one job. A width
// failing does not abort the remaining widths; the job fails only when the
// payload, the record, or the original bytes are unusable.
func (w *ThumbnailWorker) Process(ctx context.Context, job queue.Job) error {
	if job.FileID == "" {
		return errMissingFileID
	}
	if job.UserID == "" {
		return errMissingUserID
	}

	file, ok, err := w.store.GetFile(ctx, job.FileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}
	if !ok || file.UserID != job.UserID {
		return errFileNotFound
	}
	if file.Type != models.FileTypeImage {
		return errNotAnImage
	}

	original, err := w.content.ReadFile(file.LocalPath)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	generated := 0
	for _, width := range w.widths {
		resized, err := Resize(original, width)
		if err != nil {
			w.logger.Warn("derivative generation failed",
				"fileID", file.ID,
				"width", width,
				"error", err)
			if w.metrics != nil {
				w.metrics.ObserveDerivative("failed")
			}
			continue
		}
		if err := w.content.WriteDerivative(file.LocalPath, width, resized); err != nil {
			w.logger.Warn("derivative write failed",
				"fileID", file.ID,
				"width", width,
				"error", err)
			if w.metrics != nil {
				w.metrics.ObserveDerivative("failed")
			}
			continue
		}
		if w.metrics != nil {
			w.metrics.ObserveDerivative("ok")
		}
		generated++
	}
	w.logger.Info("thumbnails generated",
		"fileID", file.ID,
		"widths", len(w.widths),
		"generated", generated)
	return nil
}
