package bulksync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "bulksync:job:"

// StatusCache keeps snapshots of finished jobs in Redis so polling clients do not hit
// Postgres once a job can no longer change.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache instantiates the cache helper. A nil client disables caching.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

// Get returns the cached job, reporting false on a miss.
func (c *StatusCache) Get(ctx context.Context, id int64) (Job, bool, error) {
	if c == nil || c.client == nil {
		return Job{}, false, nil
	}
	payload, err := c.client.Get(ctx, statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Put stores job when it is terminal; other states are ignored.
func (c *StatusCache) Put(ctx context.Context, job Job) error {
	if c == nil || c.client == nil || !job.Status.Terminal() {
		return nil
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKey(job.ID), raw, c.ttl).Err()
}

func statusKey(id int64) string {
	return statusKeyPrefix + strconv.FormatInt(id, 10)
}
