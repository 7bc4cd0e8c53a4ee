package bulksync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusCacheStoresOnlyTerminalJobs(t *testing.T) {
	cache, mr := newTestCache(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, Job{ID: 1, Status: StatusProcessing}))
	_, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("bulksync:job:1"))

	job := Job{ID: 2, Status: StatusCompleted, Mode: ModeDelete, Inserted: 4, Errors: []RowError{{Sheet: "Bajas", Row: 7, Code: ReasonMissingCode}}}
	require.NoError(t, cache.Put(ctx, job))
	require.Equal(t, 10*time.Minute, mr.TTL("bulksync:job:2"))

	got, ok, err := cache.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, job.Inserted, got.Inserted)
	require.Equal(t, job.Errors, got.Errors)
	require.Equal(t, ModeDelete, got.Mode)
}

func TestStatusCacheDisabled(t *testing.T) {
	var cache *StatusCache
	_, ok, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, NewStatusCache(nil, time.Minute).Put(context.Background(), Job{ID: 1, Status: StatusFailed}))
}
