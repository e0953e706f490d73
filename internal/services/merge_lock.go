package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tcmclinic/internal/logging"

	"github.com/google/uuid"
)

// KeyedLocker serialises work per identity key
type KeyedLocker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex for single-instance deployments
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process keyed locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires key, waiting for the current holder if any
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// RedisLocker is a distributed keyed lock built on SET NX with a token-checked release
type RedisLocker struct {
	redis      *RedisService
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker creates a Redis-backed locker. ttl bounds how long a crashed
// holder can block other instances.
func NewRedisLocker(redis *RedisService, ttl time.Duration) *RedisLocker {
	return &RedisLocker{redis: redis, ttl: ttl, retryDelay: 50 * time.Millisecond}
}

// Lock polls until the lock is acquired or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "tcmclinic:merge-lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.redis.AcquireLock(ctx, lockKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire merge lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := l.redis.ReleaseLock(releaseCtx, lockKey, token); err != nil {
			logging.L().Warnf("⚠️ Failed to release merge lock %s: %v", lockKey, err)
		}
	}, nil
}
