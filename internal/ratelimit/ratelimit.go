// Package ratelimit limits how many events one key may produce per minute,
// either across processes through Redis or within the current process.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Redis is a GCRA limiter shared by every process using the same Redis.
type Redis struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

func NewRedis(client redis.UniversalClient, prefix string, perMinute int) *Redis {
	return &Redis{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
		prefix:  prefix,
	}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return false, 0, errors.Wrapf(err, "[ratelimit.Redis.Allow] %s", key)
	}
	return res.Allowed > 0, res.RetryAfter, nil
}

// Memory keeps one token bucket per key in process.
type Memory struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
	nowFunc   func() time.Time
}

type MemoryOption func(*Memory)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.nowFunc = now
	}
}

func NewMemory(perMinute int, options ...MemoryOption) *Memory {
	m := &Memory{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	limiter, ok := m.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.perMinute)), m.perMinute)
		m.limiters[key] = limiter
	}
	m.mu.Unlock()

	now := m.nowFunc()
	r := limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}
