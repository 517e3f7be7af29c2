package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (s *memoryStore) setNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = value
	return true, nil
}

func (s *memoryStore) compareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] != value {
		return false, nil
	}
	delete(s.keys, key)
	return true, nil
}

func testLocker(store lockStore) *Locker {
	l := newLocker(store, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), "")
	l.maxBackoff = 20 * time.Millisecond
	return l
}

func TestAcquireRelease(t *testing.T) {
	store := newMemoryStore()
	locker := testLocker(store)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import:opendata", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, store.keys, "bynight:lock:import:opendata")

	_, err = locker.Acquire(ctx, "import:opendata", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestTryAcquireTimesOut(t *testing.T) {
	locker := testLocker(newMemoryStore())
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "import:opendata", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, "import:opendata", time.Minute, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestWithLockWaitsForHolder(t *testing.T) {
	locker := testLocker(newMemoryStore())
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import:opendata", time.Minute)
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = lock.Release(ctx)
	}()

	ran := false
	err = locker.WithLock(ctx, "import:opendata", time.Minute, time.Second, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	_, err = locker.Acquire(ctx, "import:opendata", time.Minute)
	assert.NoError(t, err, "lock is released after fn")
}

func TestWithLockPropagatesErrors(t *testing.T) {
	store := newMemoryStore()
	locker := testLocker(store)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", time.Minute, time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.keys)

	store.err = errors.New("connection refused")
	err = locker.WithLock(context.Background(), "k", time.Minute, time.Second, func() error { return nil })
	assert.EqualError(t, err, "connection refused")
}
