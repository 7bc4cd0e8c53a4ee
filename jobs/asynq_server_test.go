package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(inspector QueueInspector) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealthReportsQueueDepth(t *testing.T) {
	rec := serveHealth(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Active: 1, Archived: 2}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Active: 1, Archived: 2}, body)
}

func TestHealthUnavailableWhenRedisDown(t *testing.T) {
	rec := serveHealth(stubInspector{err: errors.New("redis: connection refused")})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBulkSyncTaskPayload(t *testing.T) {
	task, err := NewBulkSyncTask(BulkSyncPayload{JobID: 7, FilePath: "/data/bulk-sync/a.xlsx"})
	require.NoError(t, err)
	require.Equal(t, TaskBulkSync, task.Type())
	require.JSONEq(t, `{"job_id":7,"file_path":"/data/bulk-sync/a.xlsx"}`, string(task.Payload()))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

func TestEnqueueWithoutClient(t *testing.T) {
	var c *Client
	_, err := c.EnqueueBulkSync(context.Background(), BulkSyncPayload{JobID: 1})
	require.Error(t, err)
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", opt.Addr)

	opt, err = RedisOpt("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 2, opt.DB)

	_, err = RedisOpt("")
	require.Error(t, err)
	_, err = RedisOpt("memcached://cache:11211")
	require.Error(t, err)
}

func optionValues(opts []asynq.Option) map[asynq.OptionType]interface{} {
	values := make(map[asynq.OptionType]interface{}, len(opts))
	for _, o := range opts {
		values[o.Type()] = o.Value()
	}
	return values
}

func TestBulkSyncOptionsSetExplicitTimeout(t *testing.T) {
	values := optionValues(bulkSyncOptions(6 * time.Hour))
	require.Equal(t, 6*time.Hour, values[asynq.TimeoutOpt])
	require.Equal(t, 0, values[asynq.MaxRetryOpt])
	require.Equal(t, QueueDefault, values[asynq.QueueOpt])

	values = optionValues(bulkSyncOptions(0))
	require.Equal(t, DefaultJobTimeout, values[asynq.TimeoutOpt])
}

func TestClientEnqueueCarriesJobTimeout(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: srv.Addr()}, 3*time.Hour)
	require.NoError(t, err)
	defer client.Close()

	info, err := client.EnqueueBulkSync(context.Background(), BulkSyncPayload{JobID: 9, FilePath: "/tmp/lista.xlsx"})
	require.NoError(t, err)
	require.Equal(t, 3*time.Hour, info.Timeout)
	require.Equal(t, 0, info.MaxRetry)
	require.Equal(t, QueueDefault, info.Queue)
}
