package summarize

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	Logger "github.com/hsh0702/boardsum/utils/log"
)

// CooldownStore tracks per-model backoff windows after quota failures. A
// cooled down model is skipped until its window expires. The store is a
// best-effort backoff, not a hard quota ledger: implementations may lose
// entries (process restart, redis eviction) and callers must tolerate an
// occasional extra attempt against a still-limited model.
type CooldownStore interface {
	// Until reports the expiry of the model's cooldown window, if any.
	Until(model string) (time.Time, bool)
	Set(model string, until time.Time)
	Clear(model string)
}

// MemoryCooldowns is the default store: a process-wide locked map.
type MemoryCooldowns struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{entries: make(map[string]time.Time)}
}

func (m *MemoryCooldowns) Until(model string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[model]
	return until, ok
}

func (m *MemoryCooldowns) Set(model string, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[model] = until
}

func (m *MemoryCooldowns) Clear(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, model)
}

// RedisCooldowns shares cooldown state across worker instances through a
// redis key with TTL. Redis failures only degrade to "not cooled down";
// summarization must never fail because the backoff store is unreachable.
type RedisCooldowns struct {
	inner     *redis.Client
	keyPrefix string
}

var ctx = context.Background()

func NewRedisCooldowns() (*RedisCooldowns, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisCooldowns{
		inner:     redisClient,
		keyPrefix: "model_cooldown__",
	}, nil
}

func (r *RedisCooldowns) Until(model string) (time.Time, bool) {
	val, err := r.inner.Get(ctx, r.keyPrefix+model).Result()
	if err != nil {
		if err != redis.Nil {
			Logger.Log.Warn("fail to read cooldown from redis: ", err)
		}
		return time.Time{}, false
	}
	until, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false
	}
	return until, true
}

func (r *RedisCooldowns) Set(model string, until time.Time) {
	ttl := time.Until(until)
	if ttl <= 0 {
		return
	}
	if err := r.inner.Set(ctx, r.keyPrefix+model, until.Format(time.RFC3339), ttl).Err(); err != nil {
		Logger.Log.Warn("fail to write cooldown to redis: ", err)
	}
}

func (r *RedisCooldowns) Clear(model string) {
	if err := r.inner.Del(ctx, r.keyPrefix+model).Err(); err != nil {
		Logger.Log.Warn("fail to clear cooldown in redis: ", err)
	}
}
