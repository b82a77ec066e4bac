package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/distributed"

	"go.uber.org/zap"
)

// LocalAdmissionGuard serializes admissions inside one process. A buffered
// channel is used instead of sync.Mutex so waiting honours ctx.
type LocalAdmissionGuard struct {
	sem chan struct{}
}

func NewLocalAdmissionGuard() *LocalAdmissionGuard {
	return &LocalAdmissionGuard{sem: make(chan struct{}, 1)}
}

func (g *LocalAdmissionGuard) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisAdmissionGuard serializes admissions across every controller that
// shares the same docker host and redis.
type RedisAdmissionGuard struct {
	locks  *distributed.LockManager
	key    string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.SugaredLogger
}

func NewRedisAdmissionGuard(locks *distributed.LockManager, key string, ttl, wait time.Duration, logger *zap.SugaredLogger) *RedisAdmissionGuard {
	return &RedisAdmissionGuard{
		locks:  locks,
		key:    key,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (g *RedisAdmissionGuard) Acquire(ctx context.Context) (func(), error) {
	lock := g.locks.AcquireLock(g.key, g.ttl)
	if err := lock.LockWithTimeout(ctx, g.wait); err != nil {
		return nil, fmt.Errorf("admission lock %q: %w", g.key, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.ttl)
		defer cancel()
		if err := lock.Unlock(ctx); err != nil {
			g.logger.Warnw("failed to release admission lock", "key", g.key, "error", err)
		}
	}, nil
}

var (
	_ ports.AdmissionGuard = (*LocalAdmissionGuard)(nil)
	_ ports.AdmissionGuard = (*RedisAdmissionGuard)(nil)
)
