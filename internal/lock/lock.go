// Package lock provides per-automation run locks. A held lock means another
// run of the same automation is in flight; callers skip rather than wait.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrHeld = errors.New("lock held")

// Release frees a lock. Calling it more than once is a no-op.
type Release func()

// Locker acquires non-blocking locks by key.
type Locker interface {
	TryLock(ctx context.Context, key string) (Release, error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: map[string]struct{}{}}
}

func (m *Memory) TryLock(ctx context.Context, key string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
