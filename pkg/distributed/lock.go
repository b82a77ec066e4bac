package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout = errors.New("lock acquisition timeout")
	ErrNotHeld     = errors.New("lock was not held by this instance")
)

// Deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Extends the TTL only while the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`)

// DistributedLock is a single-holder lock on a redis key. A lock value is
// single use: create a new one for every critical section.
type DistributedLock struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration

	pollInterval time.Duration

	mu        sync.Mutex
	held      bool
	stopRenew chan struct{}
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:       client,
		key:          key,
		value:        generateLockValue(),
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
	}
}

func generateLockValue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LockWithTimeout polls until the lock is acquired, timeout elapses or ctx
// is done.
func (l *DistributedLock) LockWithTimeout(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// TryLock attempts to acquire the lock without blocking
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	l.held = true
	l.stopRenew = make(chan struct{})
	go l.renew(l.stopRenew)
	return true, nil
}

// Unlock releases the lock
func (l *DistributedLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return ErrNotHeld
	}
	l.held = false
	close(l.stopRenew)
	l.mu.Unlock()

	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// renew extends the TTL at half-life until stopped or ownership is lost.
func (l *DistributedLock) renew(stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				return
			}
		case <-stop:
			return
		}
	}
}

// IsLocked checks if the lock key is currently held by anyone
func (l *DistributedLock) IsLocked(ctx context.Context) (bool, error) {
	exists, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// LockManager hands out locks under a common key prefix
type LockManager struct {
	client redis.Cmdable
	prefix string
}

// NewLockManager creates a new lock manager
func NewLockManager(client redis.Cmdable, prefix string) *LockManager {
	return &LockManager{
		client: client,
		prefix: prefix,
	}
}

// AcquireLock returns a fresh, not yet acquired lock for key.
func (lm *LockManager) AcquireLock(key string, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(lm.client, lm.prefix+key, ttl)
}
