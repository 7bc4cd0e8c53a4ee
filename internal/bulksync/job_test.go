package bulksync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/partsline/catalog/jobs"
)

type jobFixture struct {
	repo    *memoryRepo
	store   *memStore
	sleeper *noSleep
	service *Service
	handler *JobHandler
	removed chan string
}

// flakyRepo fails status transitions with queued errors before delegating.
type flakyRepo struct {
	*memoryRepo
	mu             sync.Mutex
	processingErrs []error
	completedErrs  []error
}

func (r *flakyRepo) pop(errs *[]error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (r *flakyRepo) MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error {
	if err := r.pop(&r.processingErrs); err != nil {
		return err
	}
	return r.memoryRepo.MarkProcessing(ctx, id, startedAt)
}

func (r *flakyRepo) MarkCompleted(ctx context.Context, id int64, res Result, finishedAt time.Time) error {
	if err := r.pop(&r.completedErrs); err != nil {
		return err
	}
	return r.memoryRepo.MarkCompleted(ctx, id, res, finishedAt)
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	repo := newMemoryRepo()
	return newJobFixtureWith(t, repo, repo)
}

func newJobFixtureWith(t *testing.T, repo *memoryRepo, port RepositoryPort) *jobFixture {
	t.Helper()
	fx := &jobFixture{
		repo:    repo,
		store:   newMemStore(),
		sleeper: &noSleep{},
		removed: make(chan string, 4),
	}
	fx.service = NewService(port, nil, nil)
	fx.handler = NewJobHandler(JobConfig{
		Service: fx.service,
		Engine:  newTestEngine(fx.store, fx.sleeper, Config{}),
		Remove: func(path string) error {
			fx.removed <- path
			return nil
		},
	})
	return fx
}

func (fx *jobFixture) create(t *testing.T, mode Mode, path string) Job {
	t.Helper()
	job, err := fx.service.Create(context.Background(), CreateRequest{Mode: mode, Filename: "lista.xlsx", FilePath: path})
	require.NoError(t, err)
	return job
}

func (fx *jobFixture) expectRemoved(t *testing.T, path string) {
	t.Helper()
	select {
	case got := <-fx.removed:
		require.Equal(t, path, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("upload %s was not removed", path)
	}
}

func TestJobProcessCompletes(t *testing.T) {
	fx := newJobFixture(t)
	path := writeWorkbook(t, testSheet{name: "Lista", rows: [][]interface{}{
		priceHeader,
		{"A1", 100, 80},
		{"", 50, 40},
	}})
	job := fx.create(t, ModeUpsert, path)

	require.NoError(t, fx.handler.Process(context.Background(), job.ID, path))
	fx.expectRemoved(t, path)

	got := fx.repo.job(job.ID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 2, got.TotalRows)
	require.Equal(t, 1, got.Inserted)
	require.Equal(t, 1, got.Skipped)
	require.Equal(t, 1, got.ErrorsCount)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	require.Empty(t, got.ErrorMessage)
}

func TestJobProcessRecordsFatalFailure(t *testing.T) {
	fx := newJobFixture(t)
	path := writeWorkbook(t, testSheet{name: "Lista", rows: [][]interface{}{
		{"Código Interno"},
		{"A1"},
	}})
	job := fx.create(t, ModeUpsert, path)

	err := fx.handler.Process(context.Background(), job.ID, path)
	require.Error(t, err)
	fx.expectRemoved(t, path)

	got := fx.repo.job(job.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "missing required columns")
	require.NotNil(t, got.FinishedAt)
	require.Zero(t, fx.store.writes)
}

func TestJobProcessUnreadableWorkbook(t *testing.T) {
	fx := newJobFixture(t)
	job := fx.create(t, ModeUpsert, "/nonexistent/lista.xlsx")

	require.Error(t, fx.handler.Process(context.Background(), job.ID, ""))
	require.Equal(t, StatusFailed, fx.repo.job(job.ID).Status)
	fx.expectRemoved(t, "/nonexistent/lista.xlsx")
}

func TestJobProcessSkipsFinishedJob(t *testing.T) {
	fx := newJobFixture(t)
	job := fx.create(t, ModeUpsert, "/tmp/done.xlsx")
	require.NoError(t, fx.service.MarkFailed(context.Background(), job.ID, "enqueue failed"))

	require.NoError(t, fx.handler.Process(context.Background(), job.ID, "/tmp/done.xlsx"))
	fx.expectRemoved(t, "/tmp/done.xlsx")
	require.Equal(t, "enqueue failed", fx.repo.job(job.ID).ErrorMessage)
}

func (fx *jobFixture) expectKept(t *testing.T) {
	t.Helper()
	select {
	case path := <-fx.removed:
		t.Fatalf("upload %s was removed", path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestJobProcessKeepsForeignFileOfFinishedJob(t *testing.T) {
	fx := newJobFixture(t)
	job := fx.create(t, ModeUpsert, "/tmp/done.xlsx")
	require.NoError(t, fx.service.MarkFailed(context.Background(), job.ID, "enqueue failed"))

	require.NoError(t, fx.handler.Process(context.Background(), job.ID, "/home/ops/lista.xlsx"))
	fx.expectKept(t)
}

func TestJobProcessRetriesTransientClaim(t *testing.T) {
	repo := &flakyRepo{memoryRepo: newMemoryRepo(), processingErrs: []error{errors.New("read tcp: connection reset by peer")}}
	fx := newJobFixtureWith(t, repo.memoryRepo, repo)
	path := writeWorkbook(t, testSheet{name: "Lista", rows: [][]interface{}{priceHeader, {"A1", 100, 80}}})
	job := fx.create(t, ModeUpsert, path)

	require.NoError(t, fx.handler.Process(context.Background(), job.ID, path))
	fx.expectRemoved(t, path)
	require.Equal(t, StatusCompleted, fx.repo.job(job.ID).Status)
	require.Equal(t, []time.Duration{2 * time.Second}, fx.sleeper.recorded())
}

func TestJobProcessFailsJobThatCannotBeClaimed(t *testing.T) {
	repo := &flakyRepo{memoryRepo: newMemoryRepo(), processingErrs: []error{errors.New("permission denied for table bulk_sync_jobs")}}
	fx := newJobFixtureWith(t, repo.memoryRepo, repo)
	job := fx.create(t, ModeUpsert, "/tmp/lista.xlsx")

	err := fx.handler.Process(context.Background(), job.ID, "/tmp/lista.xlsx")
	require.Error(t, err)
	fx.expectRemoved(t, "/tmp/lista.xlsx")

	got := fx.repo.job(job.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "permission denied")
	require.NotNil(t, got.FinishedAt)
	require.Zero(t, fx.store.writes)
}

func TestJobProcessFailsJobWhenResultNotRecorded(t *testing.T) {
	repo := &flakyRepo{memoryRepo: newMemoryRepo(), completedErrs: []error{errors.New("value too long for type character varying")}}
	fx := newJobFixtureWith(t, repo.memoryRepo, repo)
	path := writeWorkbook(t, testSheet{name: "Lista", rows: [][]interface{}{priceHeader, {"A1", 100, 80}}})
	job := fx.create(t, ModeUpsert, path)

	err := fx.handler.Process(context.Background(), job.ID, path)
	require.Error(t, err)
	fx.expectRemoved(t, path)

	got := fx.repo.job(job.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "record result")
	require.NotNil(t, got.FinishedAt)
}

func TestJobProcessLeavesClaimedJobAlone(t *testing.T) {
	fx := newJobFixture(t)
	job := fx.create(t, ModeUpsert, "/tmp/busy.xlsx")
	require.NoError(t, fx.service.MarkProcessing(context.Background(), job.ID))

	require.NoError(t, fx.handler.Process(context.Background(), job.ID, "/tmp/busy.xlsx"))
	fx.expectKept(t)
	require.Equal(t, StatusProcessing, fx.repo.job(job.ID).Status)
}

func TestJobHandleRejectsBadPayloads(t *testing.T) {
	fx := newJobFixture(t)

	err := fx.handler.Handle(context.Background(), asynq.NewTask(jobs.TaskBulkSync, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = fx.handler.Handle(context.Background(), asynq.NewTask(jobs.TaskBulkSync, []byte(`{"file_path":"/tmp/x.xlsx"}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	task, err := jobs.NewBulkSyncTask(jobs.BulkSyncPayload{JobID: 404, FilePath: "/tmp/x.xlsx"})
	require.NoError(t, err)
	err = fx.handler.Handle(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
	require.True(t, errors.Is(err, ErrJobNotFound))
}

func TestJobHandleRunsTask(t *testing.T) {
	fx := newJobFixture(t)
	fx.store.seed(active("A1", 10))
	path := writeWorkbook(t, testSheet{name: "Bajas", rows: [][]interface{}{{"Código Interno"}, {"A1"}}})
	job := fx.create(t, ModeDelete, path)

	task, err := jobs.NewBulkSyncTask(jobs.BulkSyncPayload{JobID: job.ID, FilePath: path})
	require.NoError(t, err)
	require.NoError(t, fx.handler.Handle(context.Background(), task))
	fx.expectRemoved(t, path)

	require.Equal(t, StatusCompleted, fx.repo.job(job.ID).Status)
	p, _ := fx.store.product("A1")
	require.False(t, p.IsActive)
}
