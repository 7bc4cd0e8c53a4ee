package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue bulk sync work is submitted to.
	QueueDefault = "default"
	// TaskBulkSync runs one bulk catalog synchronisation job.
	TaskBulkSync = "catalog:bulk_sync"
	// TaskSweepUploads removes stale uploaded workbooks.
	TaskSweepUploads = "catalog:sweep_uploads"
)

// BulkSyncPayload identifies the job record and the workbook it processes.
type BulkSyncPayload struct {
	JobID    int64  `json:"job_id"`
	FilePath string `json:"file_path"`
}

// NewBulkSyncTask constructs the asynq task for payload.
func NewBulkSyncTask(payload BulkSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkSync, data), nil
}

// NewSweepUploadsTask constructs the periodic upload sweep task.
func NewSweepUploadsTask() *asynq.Task {
	return asynq.NewTask(TaskSweepUploads, nil)
}

// RedisOpt builds queue connection options from a host:port pair or a redis:// URL,
// the same forms the status cache accepts.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	addr = strings.TrimSpace(addr)
	if !strings.Contains(addr, "://") {
		if addr == "" {
			return asynq.RedisClientOpt{}, fmt.Errorf("jobs: empty redis address")
		}
		return asynq.RedisClientOpt{Addr: addr}, nil
	}
	conn, err := asynq.ParseRedisURI(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("jobs: parse redis uri: %w", err)
	}
	opt, ok := conn.(asynq.RedisClientOpt)
	if !ok {
		return asynq.RedisClientOpt{}, fmt.Errorf("jobs: unsupported redis uri scheme in %q", addr)
	}
	return opt, nil
}
