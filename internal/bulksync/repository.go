package bulksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists bulk_sync_jobs rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, status, mode, filename, file_path, user_id, total_rows, inserted, skipped, errors_count,
errors, COALESCE(error_message, ''), started_at, finished_at, created_at`

// InsertJob stores a new PENDING job.
func (r *Repository) InsertJob(ctx context.Context, req CreateRequest) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("bulksync: repository not initialised")
	}
	const insert = `INSERT INTO bulk_sync_jobs (status, mode, filename, file_path, user_id)
VALUES ('PENDING', $1, $2, $3, $4)
RETURNING ` + jobColumns
	return scanJob(r.pool.QueryRow(ctx, insert, string(req.Mode), req.Filename, req.FilePath, req.UserID))
}

// GetJob loads a job by id.
func (r *Repository) GetJob(ctx context.Context, id int64) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("bulksync: repository not initialised")
	}
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM bulk_sync_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// MarkProcessing transitions a pending job to processing.
func (r *Repository) MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("bulksync: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE bulk_sync_jobs
SET status = 'PROCESSING', started_at = $2
WHERE id = $1 AND status = 'PENDING'`, id, startedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkCompleted stores the totals of a successful run.
func (r *Repository) MarkCompleted(ctx context.Context, id int64, res Result, finishedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("bulksync: repository not initialised")
	}
	errs := res.Errors
	if errs == nil {
		errs = []RowError{}
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE bulk_sync_jobs
SET status = 'COMPLETED', total_rows = $2, inserted = $3, skipped = $4, errors_count = $5, errors = $6, finished_at = $7
WHERE id = $1 AND status = 'PROCESSING'`, id, res.TotalRows, res.Inserted, res.Skipped, res.ErrorsCount, payload, finishedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkFailed captures the error message and switches a non-terminal job to failed.
func (r *Repository) MarkFailed(ctx context.Context, id int64, msg string, finishedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("bulksync: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE bulk_sync_jobs
SET status = 'FAILED', error_message = $2, finished_at = $3
WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`, id, truncateError(msg), finishedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func scanJob(row interface{ Scan(dest ...any) error }) (Job, error) {
	var (
		job    Job
		status string
		mode   string
		errs   []byte
	)
	if err := row.Scan(&job.ID, &status, &mode, &job.Filename, &job.FilePath, &job.UserID, &job.TotalRows,
		&job.Inserted, &job.Skipped, &job.ErrorsCount, &errs, &job.ErrorMessage, &job.StartedAt,
		&job.FinishedAt, &job.CreatedAt); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	job.Mode = Mode(mode)
	job.Errors = []RowError{}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &job.Errors); err != nil {
			return Job{}, fmt.Errorf("bulksync: decode job errors: %w", err)
		}
	}
	return job, nil
}

func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 2000 {
		return msg[:2000]
	}
	return msg
}
