package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/config"
)

// RedisConnection wraps a pooled Redis client shared by the rate
// limiter (minute-bucket counters) and the worker's distributed
// processing lock. Adapted from the
// teacher's chat-session RedisCache: the connection/pool/health-check
// plumbing is kept, the chat-specific session/message caching methods
// are replaced with the generic lock primitive this domain needs.
type RedisConnection struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisConnection opens a pooled Redis client from config. A nil
// *RedisConnection (not an error) is returned when Redis is
// unconfigured (empty Host) — callers fall back to in-process behavior,
// matching internal/ratelimit.Limiter's fallback path.
func NewRedisConnection(cfg config.RedisConfig, logger *logrus.Logger) (*RedisConnection, error) {
	if cfg.Host == "" {
		logger.Info("Redis not configured, components will use in-process fallbacks")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Host,
		"port": cfg.Port,
	}).Info("Redis connection initialized successfully")

	return &RedisConnection{client: client, logger: logger}, nil
}

// Client returns the underlying *redis.Client for components (rate
// limiter, worker lock) that need direct access.
func (c *RedisConnection) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *RedisConnection) Close() error {
	if c.client != nil {
		c.logger.Info("Closing Redis connection")
		return c.client.Close()
	}
	return nil
}

// IsHealthy checks if Redis is reachable.
func (c *RedisConnection) IsHealthy(ctx context.Context) bool {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Error("Redis health check failed")
		return false
	}
	return true
}

// Lock is a held distributed lock returned by AcquireLock. Release is a
// no-op if the lock already expired or was released.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock attempts to set key to a unique token with NX+TTL
// semantics (SET key token NX PX ttl), the standard single-instance
// Redis mutual-exclusion primitive. Returns ok=false if another holder
// already has the lock.
func (c *RedisConnection) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.New().String()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: c.client, key: key, token: token}, true, nil
}

// releaseScript only deletes the key if it still holds our token, so a
// lock that already expired and was re-acquired by another holder is
// never deleted out from under them.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Release deletes the lock iff it's still held by this caller's token.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

// Extend refreshes the lock's TTL iff it's still held by this caller's
// token, so a lock that has already passed to a second holder is never
// extended.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil {
		return nil
	}
	const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`
	ms := ttl.Milliseconds()
	if err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, ms).Err(); err != nil {
		return fmt.Errorf("redis: extend lock: %w", err)
	}
	return nil
}
