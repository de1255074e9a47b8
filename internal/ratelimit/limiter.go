// Package ratelimit implements the per-provider sliding-window rate
// limiter (spec §4.4) on top of Redis INCR/EXPIRE minute buckets, adapting
// the in-memory sliding-window shape of the teacher's
// internal/services/chat_rate_limiter.go into a distributed version: the
// teacher's []time.Time timestamp slice per key becomes a single
// (provider, minute_bucket) counter key with a TTL, since the spec only
// needs counting within the current minute, not individual timestamps.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// DefaultPerMinute is the default sends/minute/provider cap (spec §4.4).
const DefaultPerMinute = 10

// Limiter is the Rate Limiter component (C4). It also gates enqueue-side
// duplicate suppression via CheckKey(email, type, window).
type Limiter struct {
	redis  *redis.Client
	clock  clock.Clock
	logger *logrus.Logger

	// fallback is used when Redis is not configured (local dev/tests):
	// a process-local minute-bucket map guarded by the same semantics.
	fallback *localBuckets
}

func New(client *redis.Client, clk clock.Clock, logger *logrus.Logger) *Limiter {
	return &Limiter{
		redis:    client,
		clock:    clk,
		logger:   logger,
		fallback: newLocalBuckets(clk),
	}
}

func minuteBucket(t time.Time) string {
	return t.UTC().Format("200601021504")
}

// CheckAndIncrement admits one send for provider if the current minute
// bucket's counter is below maxPerMinute, incrementing it atomically.
// Unlike the quota ledger, this counter is never refunded on failure —
// it reflects attempted sends (spec §5: "Rate-limit admission").
func (l *Limiter) CheckAndIncrement(ctx context.Context, provider domain.Provider, maxPerMinute int) (bool, error) {
	key := fmt.Sprintf("emailrl:%s:%s", provider, minuteBucket(l.clock.Now()))

	if l.redis == nil {
		return l.fallback.checkAndIncrement(key, maxPerMinute), nil
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		l.redis.Expire(ctx, key, 90*time.Second)
	}
	if int(count) > maxPerMinute {
		return false, nil
	}
	return true, nil
}

// CheckKey implements the (email, type, window) gating used by the
// Enqueue API for duplicate-suppression style admission checks outside
// the provider rate limit.
func (l *Limiter) CheckKey(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucketKey := fmt.Sprintf("emailrl:custom:%s", key)

	if l.redis == nil {
		return l.fallback.checkAndIncrementWindow(bucketKey, limit, window), nil
	}

	count, err := l.redis.Incr(ctx, bucketKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr custom: %w", err)
	}
	if count == 1 {
		l.redis.Expire(ctx, bucketKey, window)
	}
	return int(count) <= limit, nil
}

// localBuckets is the in-process fallback when Redis is unconfigured,
// keyed identically to the Redis path so tests can run without Redis.
type localBuckets struct {
	clock   clock.Clock
	mu      sync.Mutex
	counts  map[string]int
	expires map[string]time.Time
}

func newLocalBuckets(clk clock.Clock) *localBuckets {
	return &localBuckets{clock: clk, counts: make(map[string]int), expires: make(map[string]time.Time)}
}

func (b *localBuckets) checkAndIncrement(key string, max int) bool {
	return b.checkAndIncrementWindow(key, max, 90*time.Second)
}

func (b *localBuckets) checkAndIncrementWindow(key string, limit int, window time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if exp, ok := b.expires[key]; ok && now.After(exp) {
		delete(b.counts, key)
		delete(b.expires, key)
	}
	if _, ok := b.expires[key]; !ok {
		b.expires[key] = now.Add(window)
	}
	b.counts[key]++
	return b.counts[key] <= limit
}
