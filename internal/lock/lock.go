package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enrollment-reconciler/internal/config"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunKey guards the batch job against overlapping runs.
const RunKey = "reconciler:run"

// ErrHeld is returned when another process owns the lock.
var ErrHeld = errors.New("lock held by another run")

// Locker obtains a named lock. The returned release func is always non-nil on success.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Redis is a Locker backed by redislock.
type Redis struct {
	client *redislock.Client
	rdb    *redis.Client
}

// NewRedis connects to cfg.Addr and pings it. Callers fall back to Nop when it fails.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Redis{client: redislock.New(rdb), rdb: rdb}, nil
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l, err := r.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Nop always succeeds. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Obtain(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// FromConfig returns a Redis locker when an address is configured and
// reachable, Nop otherwise. The close func releases the client.
func FromConfig(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (Locker, func() error) {
	if cfg.Addr == "" {
		return Nop{}, func() error { return nil }
	}
	r, err := NewRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable, running without cross-process lock", zap.Error(err))
		return Nop{}, func() error { return nil }
	}
	return r, r.Close
}
