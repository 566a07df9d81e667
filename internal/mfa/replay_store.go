package mfa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/traderguard/authcore/internal/breaker"
)

// MemoryReplayStore is an in-process ReplayStore for tests and
// single-instance deployments.
type MemoryReplayStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{seen: make(map[string]time.Time)}
}

func key(userID string, step int64) string { return fmt.Sprintf("%s:%d", userID, step) }

func (m *MemoryReplayStore) SeenRecently(ctx context.Context, userID string, step int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.seen[key(userID, step)]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(m.seen, key(userID, step))
		return false, nil
	}
	return true, nil
}

func (m *MemoryReplayStore) MarkSeen(ctx context.Context, userID string, step int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key(userID, step)] = time.Now().Add(ttl)
	return nil
}

// RedisReplayStore implements ReplayStore against Redis with a real TTL,
// used in production so replay defence survives across instances.
type RedisReplayStore struct {
	client   *redis.Client
	breakers *breaker.Facade
}

func NewRedisReplayStore(client *redis.Client, breakers *breaker.Facade) *RedisReplayStore {
	return &RedisReplayStore{client: client, breakers: breakers}
}

func (r *RedisReplayStore) SeenRecently(ctx context.Context, userID string, step int64) (bool, error) {
	n, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (int64, error) {
		return r.client.Exists(ctx, "mfa:replay:"+key(userID, step)).Result()
	})
	return n > 0, err
}

func (r *RedisReplayStore) MarkSeen(ctx context.Context, userID string, step int64, ttl time.Duration) error {
	_, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.client.Set(ctx, "mfa:replay:"+key(userID, step), "1", ttl).Err()
	})
	return err
}
