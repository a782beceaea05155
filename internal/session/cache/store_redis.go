package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"idsync/internal/session"
	"idsync/pkg/platform/sentinel"
)

// Redis key prefix for cached validation results. Shares the instance with
// the event ledger but a distinct keyspace.
const resultKeyPrefix = "session-result:"

// RedisCache is the production ResultCache. Values are the JSON-serialized
// RPC response so cached and freshly computed responses cannot drift.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (session.Result, error) {
	raw, err := c.client.Get(ctx, resultKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Result{}, sentinel.ErrNotFound
	}
	if err != nil {
		return session.Result{}, fmt.Errorf("session cache get: %w", err)
	}

	var result session.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry is treated as a miss; the validator recomputes and
		// overwrites it.
		return session.Result{}, sentinel.ErrNotFound
	}
	return result, nil
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, result session.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	if err := c.client.Set(ctx, resultKeyPrefix+fingerprint, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("session cache set: %w", err)
	}
	return nil
}
