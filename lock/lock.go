// Package lock serializes vault operations that touch the same record.
//
// The in-memory Locker is enough for a single process. RedisLocker extends
// the guarantee across replicas that share a store.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker provides keyed mutual exclusion.
type Locker interface {
	// Acquire blocks until key is held or ctx is done. A positive ttl
	// bounds how long a lock outlives a crashed holder; lockers that cannot
	// observe a crash may ignore it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	// TryAcquire returns acquired=false instead of waiting when key is held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Memory is an in-process Locker. Each key owns a one-slot semaphore.
// A holder in the same process cannot vanish without releasing, so ttl is
// ignored and a lock is held until its release func runs.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]chan struct{})}
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

// Acquire implements Locker.
func (m *Memory) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	s := m.slot(key)
	select {
	case s <- struct{}{}:
		return m.release(s), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock: acquire %s: %w", key, ctx.Err())
	}
}

// TryAcquire implements Locker.
func (m *Memory) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	s := m.slot(key)
	select {
	case s <- struct{}{}:
		return m.release(s), true, nil
	default:
		return nil, false, nil
	}
}

func (m *Memory) release(s chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-s })
	}
}
