package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCancelFlags stores cancellation requests as expiring redis keys, one
// per job. A TTL well past the task timeout keeps abandoned flags from
// accumulating.
type RedisCancelFlags struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCancelFlags(rdb *redis.Client) *RedisCancelFlags {
	return &RedisCancelFlags{rdb: rdb, ttl: 24 * time.Hour}
}

func cancelKey(jobID string) string { return "ingest:cancel:" + jobID }

func (f *RedisCancelFlags) Set(ctx context.Context, jobID string) error {
	return f.rdb.Set(ctx, cancelKey(jobID), "1", f.ttl).Err()
}

func (f *RedisCancelFlags) IsSet(ctx context.Context, jobID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
