package bulksync

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// RepositoryPort abstracts job persistence.
type RepositoryPort interface {
	InsertJob(ctx context.Context, req CreateRequest) (Job, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id int64, res Result, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, msg string, finishedAt time.Time) error
}

// Service orchestrates job creation, polling and status transitions.
type Service struct {
	repo   RepositoryPort
	cache  *StatusCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache *StatusCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create persists a PENDING job.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Job, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Job{}, err
	}
	req.Mode = mode
	if err := req.Validate(); err != nil {
		return Job{}, err
	}
	return s.repo.InsertJob(ctx, req)
}

// Get loads a job, serving finished jobs from the status cache when possible.
func (s *Service) Get(ctx context.Context, id int64) (Job, error) {
	if job, ok, err := s.cache.Get(ctx, id); err != nil {
		s.warn("status cache read failed", id, err)
	} else if ok {
		return job, nil
	}
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if err := s.cache.Put(ctx, job); err != nil {
		s.warn("status cache write failed", id, err)
	}
	return job, nil
}

// MarkProcessing transitions a pending job and stamps its start time.
func (s *Service) MarkProcessing(ctx context.Context, id int64) error {
	return s.repo.MarkProcessing(ctx, id, s.now())
}

// MarkCompleted stores the run totals.
func (s *Service) MarkCompleted(ctx context.Context, id int64, res Result) error {
	return s.repo.MarkCompleted(ctx, id, res, s.now())
}

// MarkFailed records the top-level failure message.
func (s *Service) MarkFailed(ctx context.Context, id int64, errMessage string) error {
	errMessage = strings.TrimSpace(errMessage)
	if errMessage == "" {
		errMessage = "unknown error"
	}
	return s.repo.MarkFailed(ctx, id, errMessage, s.now())
}

func (s *Service) warn(msg string, id int64, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Int64("job_id", id), slog.Any("error", err))
	}
}
