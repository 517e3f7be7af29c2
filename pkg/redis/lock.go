package redis

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/bynight/pkg/metrics"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

type lockStore interface {
	setNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	compareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Lock is a held import lock.
type Lock struct {
	store lockStore
	key   string
	value string
}

// Locker serializes imports of the same source across workers.
type Locker struct {
	store      lockStore
	logger     ectologger.Logger
	keyPrefix  string
	maxBackoff time.Duration
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	return newLocker(client, client.logger, keyPrefix)
}

func newLocker(store lockStore, logger ectologger.Logger, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "bynight:lock:"
	}
	return &Locker{
		store:      store,
		logger:     logger,
		keyPrefix:  keyPrefix,
		maxBackoff: 500 * time.Millisecond,
	}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	value := uuid.New().String()

	ok, err := l.store.setNX(ctx, lockKey, value, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
	return &Lock{store: l.store, key: lockKey, value: value}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until timeout.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}

		metrics.LockWaitsTotal.WithLabelValues(key).Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > l.maxBackoff {
				backoff = l.maxBackoff
			}
		}
	}
}

func (lock *Lock) Release(ctx context.Context) error {
	ok, err := lock.store.compareAndDelete(ctx, lock.key, lock.value)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock runs fn while holding key, waiting up to wait for a concurrent holder to finish.
func (l *Locker) WithLock(ctx context.Context, key string, ttl, wait time.Duration, fn func() error) error {
	lock, err := l.TryAcquire(ctx, key, ttl, wait)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			l.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock: %s", key)
		}
	}()

	return fn()
}
