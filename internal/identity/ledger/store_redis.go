package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var seenDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "idsync_event_seen_check_duration_ms",
	Help:    "Latency of processed-event marker checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for processed-event markers.
	processedEventKeyPrefix = "processed-event:"
)

// RedisLedger is a Redis-backed processed-event ledger. This is the
// production implementation for distributed deployments where multiple
// instances share dedup state.
type RedisLedger struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedis constructs a Redis-backed ledger with the given marker retention.
func NewRedis(client redis.Cmdable, retention time.Duration) *RedisLedger {
	return &RedisLedger{client: client, retention: retention}
}

// Seen checks for a live marker. A missing key means not seen (either never
// applied or the retention window elapsed).
func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	start := time.Now()
	defer func() {
		seenDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	key := processedEventKeyPrefix + eventID
	_, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger seen check: %w", err)
	}
	return true, nil
}

// Mark writes the marker with TTL. Uses SET with expiry for an atomic
// set-with-expiry; the value is a simple sentinel, key existence is what
// matters.
func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	key := processedEventKeyPrefix + eventID
	if err := l.client.Set(ctx, key, "1", l.retention).Err(); err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}
