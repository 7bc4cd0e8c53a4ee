package bulksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/partsline/catalog/internal/jobs"
	"github.com/partsline/catalog/jobs"
)

const metricsJobName = "bulk_sync"

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Service *Service
	Engine  *Engine
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
	// Retrier guards the status transitions; defaults to the engine's.
	Retrier *Retrier
	// Remove deletes the processed upload; defaults to os.Remove.
	Remove func(path string) error
}

// JobHandler runs queued bulk sync jobs.
type JobHandler struct {
	service *Service
	engine  *Engine
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	retrier *Retrier
	remove  func(string) error
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(cfg JobConfig) *JobHandler {
	remove := cfg.Remove
	if remove == nil {
		remove = os.Remove
	}
	retrier := cfg.Retrier
	if retrier == nil && cfg.Engine != nil {
		retrier = cfg.Engine.retrier
	}
	if retrier == nil {
		retrier = NewRetrier(cfg.Logger)
	}
	return &JobHandler{
		service: cfg.Service,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		retrier: retrier,
		remove:  remove,
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (h *JobHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.BulkSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bulksync: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == 0 {
		return fmt.Errorf("bulksync: job id missing: %w", asynq.SkipRetry)
	}
	err := h.Process(ctx, payload.JobID, payload.FilePath)
	if errors.Is(err, ErrJobNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Process runs one job to a terminal state. Once the job is claimed its upload is
// removed in the background whatever the outcome. A path other than the job's own
// upload is read but never removed.
func (h *JobHandler) Process(ctx context.Context, jobID int64, path string) error {
	if h == nil || h.service == nil || h.engine == nil {
		return fmt.Errorf("bulksync job not configured")
	}
	job, err := h.service.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if path == "" {
		path = job.FilePath
	}
	upload := ""
	if path == job.FilePath {
		upload = path
	}
	if job.Status.Terminal() {
		h.cleanup(upload)
		return nil
	}

	log := h.log().With(slog.Int64("job_id", job.ID), slog.String("mode", string(job.Mode)))
	// The job record must reach a terminal state even when the worker is shutting down.
	finalCtx := context.WithoutCancel(ctx)

	claimErr := h.retrier.Do(ctx, "mark job processing", func(ctx context.Context) error {
		return h.service.MarkProcessing(ctx, job.ID)
	})
	if claimErr != nil {
		if errors.Is(claimErr, ErrInvalidStatus) {
			// another worker owns the job and its file
			current, loadErr := h.service.Get(ctx, job.ID)
			if loadErr == nil && (current.Status == StatusProcessing || current.Status.Terminal()) {
				return nil
			}
		}
		h.fail(finalCtx, log, job.ID, "claim job: "+claimErr.Error())
		h.cleanup(upload)
		return claimErr
	}
	defer h.cleanup(upload)

	tracker := h.metrics.Track(metricsJobName)
	log.Info("bulk sync started", slog.String("file", job.Filename))

	res, runErr := h.engine.Run(ctx, path, job.Mode)
	if runErr != nil {
		h.fail(finalCtx, log, job.ID, runErr.Error())
		log.Error("bulk sync failed", slog.Any("error", runErr))
		return tracker.End(runErr)
	}
	err = h.retrier.Do(finalCtx, "mark job completed", func(ctx context.Context) error {
		return h.service.MarkCompleted(ctx, job.ID, res)
	})
	if err != nil {
		log.Error("mark job completed", slog.Any("error", err))
		h.fail(finalCtx, log, job.ID, "record result: "+err.Error())
		return tracker.End(err)
	}
	h.metrics.AddRows(string(job.Mode), jobmetrics.OutcomeInserted, res.Inserted)
	h.metrics.AddRows(string(job.Mode), jobmetrics.OutcomeSkipped, res.Skipped)
	h.metrics.AddRows(string(job.Mode), jobmetrics.OutcomeError, res.ErrorsCount)
	log.Info("bulk sync completed",
		slog.Int("total_rows", res.TotalRows),
		slog.Int("inserted", res.Inserted),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.ErrorsCount))
	return tracker.End(nil)
}

func (h *JobHandler) fail(ctx context.Context, log *slog.Logger, id int64, msg string) {
	err := h.retrier.Do(ctx, "mark job failed", func(ctx context.Context) error {
		return h.service.MarkFailed(ctx, id, msg)
	})
	if err != nil {
		log.Error("mark job failed", slog.Any("error", err))
	}
}

func (h *JobHandler) cleanup(path string) {
	if path == "" {
		return
	}
	go func() {
		if err := h.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.log().Warn("remove upload", slog.String("file", path), slog.Any("error", err))
		}
	}()
}

func (h *JobHandler) log() *slog.Logger {
	if h.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.logger
}
