package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/partsline/catalog/jobs"
)

// JobsCLI wraps manual management helpers for the bulk sync queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address or URL.
// Enqueued tasks may run for up to jobTimeout.
func NewJobsCLI(redisAddr string, jobTimeout time.Duration) (*JobsCLI, error) {
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	client, err := jobs.NewClient(opts, jobTimeout)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Enqueue submits an existing job record for processing.
func (c *JobsCLI) Enqueue(ctx context.Context, jobID int64, path string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if jobID <= 0 {
		return nil, errors.New("jobs cli: job id must be positive")
	}
	return c.client.EnqueueBulkSync(ctx, jobs.BulkSyncPayload{JobID: jobID, FilePath: path})
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
		stats.Processed = info.Processed
		stats.Failed = info.Failed
	}
	return stats, nil
}

// ListArchived returns bulk sync tasks the worker gave up on.
func (c *JobsCLI) ListArchived(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// RenderStats prints stats in a fixed two-column layout.
func RenderStats(w io.Writer, stats QueueStats, archived []*asynq.TaskInfo) {
	if w == nil {
		w = os.Stdout
	}
	_, _ = fmt.Fprintf(w, "queue      %s\n", stats.Queue)
	_, _ = fmt.Fprintf(w, "pending    %d\n", stats.Pending)
	_, _ = fmt.Fprintf(w, "active     %d\n", stats.Active)
	_, _ = fmt.Fprintf(w, "scheduled  %d\n", stats.Scheduled)
	_, _ = fmt.Fprintf(w, "retry      %d\n", stats.Retry)
	_, _ = fmt.Fprintf(w, "archived   %d\n", stats.Archived)
	_, _ = fmt.Fprintf(w, "processed  %d (today)\n", stats.Processed)
	_, _ = fmt.Fprintf(w, "failed     %d (today)\n", stats.Failed)
	for _, task := range archived {
		_, _ = fmt.Fprintf(w, "  archived %s %s: %s\n", task.ID, task.Type, task.LastErr)
	}
}
