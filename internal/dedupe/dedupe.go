// Package dedupe provides the de-duplicators used to drop callbacks Lark delivers more than once.
package dedupe

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Deduplicator records event ids and reports the ones it has already seen.
type Deduplicator interface {
	// Seen records key and reports whether it was already recorded.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget releases key so that a redelivery of a failed event is processed again.
	Forget(ctx context.Context, key string) error
	Close() error
}

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// New returns the Deduplicator of the named backend.
func New(backend string, ttl time.Duration, redisURL string) (Deduplicator, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(ttl), nil
	case BackendRedis:
		return NewRedis(redisURL, ttl)
	case BackendNone, "":
		return None{}, nil
	default:
		return nil, errors.Errorf("unsupported de-duplication backend: %s", backend)
	}
}

// Memory is an in-process Deduplicator. Keys expire after the configured TTL.
type Memory struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemory starts a Memory de-duplicator. Close stops its expiry loop.
func NewMemory(ttl time.Duration) *Memory {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &Memory{cache: cache}
}

// Seen implements Deduplicator.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	_, found := m.cache.GetOrSet(key, struct{}{})
	return found, nil
}

// Forget implements Deduplicator.
func (m *Memory) Forget(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Close implements Deduplicator.
func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}

// Redis is a Deduplicator shared by every replica connected to the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to the Redis designated by url, e.g. redis://localhost:6379/0.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis URL")
	}
	return &Redis{
		client: redis.NewClient(opts),
		ttl:    ttl,
		prefix: "lark-ai-bridge:event:",
	}, nil
}

// Seen implements Deduplicator.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	created, err := r.client.SetNX(ctx, r.prefix+key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to record event id")
	}
	return !created, nil
}

// Forget implements Deduplicator.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "failed to release event id")
	}
	return nil
}

// Close implements Deduplicator.
func (r *Redis) Close() error {
	return r.client.Close()
}

// None never reports duplicates.
type None struct{}

// Seen implements Deduplicator.
func (None) Seen(context.Context, string) (bool, error) { return false, nil }

// Forget implements Deduplicator.
func (None) Forget(context.Context, string) error { return nil }

// Close implements Deduplicator.
func (None) Close() error { return nil }
