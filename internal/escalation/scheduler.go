package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const sweepLockKey = "attest:escalation:sweep"

// Locker elects a single sweep owner across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SET NX. The TTL covers a crashed owner;
// sweeps are idempotent so an expired lock causing a double run is safe.
type RedisLocker struct {
	client goredis.Cmdable
}

func NewRedisLocker(client goredis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// LocalLocker is the single-instance fallback when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// Scheduler runs the sweep on a fixed interval under the sweep lock.
type Scheduler struct {
	engine   *Engine
	locker   Locker
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(engine *Engine, locker Locker, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{engine: engine, locker: locker, interval: interval, logger: logger}
}

// Run blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	acquired, err := s.locker.Acquire(ctx, sweepLockKey, s.interval)
	if err != nil {
		s.logger.Warn("sweep lock acquisition failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, sweepLockKey); err != nil {
			s.logger.Warn("sweep lock release failed", "error", err)
		}
	}()

	if err := s.engine.Sweep(ctx); err != nil {
		s.logger.Error("escalation sweep failed", "error", err)
	}
}
