// Package hold provides keyed exclusive holds. A hold on one key never waits
// behind a hold on another key, so unrelated positions proceed in parallel.
package hold

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"paperTrader/internal/ports"

	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds how long Acquire waits when no timeout is configured.
const DefaultTimeout = 5 * time.Second

type entry struct {
	sem  *semaphore.Weighted
	refs int // holders plus waiters
}

// Manager hands out exclusive holds per key.
type Manager struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a Manager whose acquisitions give up after timeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// PositionKey is the hold key of a single position.
func PositionKey(id int64) string {
	return "position:" + strconv.FormatInt(id, 10)
}

// PairKey is the hold key of a (strategy, instrument) pair, used while opening.
func PairKey(strategyID, instrument string) string {
	return "pair:" + strategyID + "/" + instrument
}

// Acquire blocks until the hold on key is obtained, the manager timeout
// elapses or ctx is done. The returned release func must be called exactly once.
//
// A timeout is reported as ports.ErrContention wrapping ports.ErrHoldTimeout.
// Cancellation of ctx by the caller is reported as ports.ErrContextCanceled
// or ports.ErrTimeout.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	e := m.ref(key)

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		m.unref(key, e)
		switch {
		case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
			return nil, fmt.Errorf("hold %s: %w: %w", key, ports.ErrContextCanceled, ctx.Err())
		case ctx.Err() != nil:
			return nil, fmt.Errorf("hold %s: %w: %w", key, ports.ErrTimeout, ctx.Err())
		default:
			return nil, fmt.Errorf("hold %s after %s: %w: %w", key, m.timeout, ports.ErrContention, ports.ErrHoldTimeout)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.unref(key, e)
		})
	}, nil
}

// Do runs fn while holding key.
func (m *Manager) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of keys currently held or awaited.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
