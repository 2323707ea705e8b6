// Package pathlock hands out in-process advisory locks on canonical
// paths. An execution locks the sorted union of every path it will
// touch before its first mutation; a later execution overlapping that
// set queues behind it FIFO. Sorted acquisition order rules out
// deadlock between executions with intersecting path sets.
package pathlock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrLocked indicates a non-blocking acquire found a path already held.
var ErrLocked = errors.New("path is locked")

// waiter is closed when its owner becomes the holder of a path.
type waiter chan struct{}

// Manager tracks the holder and FIFO waiters for each locked path.
// The zero map state means no path is held. A Manager serializes
// executions within one process; concurrent processes are already
// excluded by the journal's store-level directory lock.
type Manager struct {
	mu    sync.Mutex
	paths map[string][]waiter
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{paths: make(map[string][]waiter)}
}

// Acquire locks every given path, waiting behind current holders in
// FIFO order. Paths are deduplicated and locked in sorted order. On
// success the returned release function frees the whole set; it is
// safe to call more than once. On context cancellation any paths
// already held are released and the context error is returned.
func (m *Manager) Acquire(ctx context.Context, paths ...string) (func(), error) {
	want := normalize(paths)

	var held []string
	for _, p := range want {
		if err := m.acquireOne(ctx, p); err != nil {
			m.releaseAll(held)
			return nil, err
		}
		held = append(held, p)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.releaseAll(held) })
	}, nil
}

// TryAcquire locks every given path without waiting. If any path is
// already held or queued on, nothing is taken and ErrLocked is
// returned.
func (m *Manager) TryAcquire(paths ...string) (func(), error) {
	want := normalize(paths)

	m.mu.Lock()
	for _, p := range want {
		if len(m.paths[p]) > 0 {
			m.mu.Unlock()
			return nil, ErrLocked
		}
	}
	for _, p := range want {
		m.paths[p] = []waiter{make(waiter)}
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.releaseAll(want) })
	}, nil
}

// QueueLen reports how many goroutines hold or wait on a path. Zero
// means the path is free.
func (m *Manager) QueueLen(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths[path])
}

// acquireOne joins the queue for one path and waits until promoted to
// holder. The holder is always the queue head; joining an empty queue
// grants the lock immediately.
func (m *Manager) acquireOne(ctx context.Context, path string) error {
	w := make(waiter)

	m.mu.Lock()
	q := m.paths[path]
	m.paths[path] = append(q, w)
	if len(q) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		m.abandon(path, w)
		return ctx.Err()
	}
}

// abandon removes a waiter that gave up on a path. If the waiter was
// promoted to holder concurrently with cancellation, the path is
// released so the next waiter is not stranded.
func (m *Manager) abandon(path string, w waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.paths[path]
	for i := range q {
		if q[i] == w {
			if i == 0 {
				m.releaseLocked(path)
				return
			}
			m.paths[path] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// releaseAll frees a set of held paths in reverse order.
func (m *Manager) releaseAll(held []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(held) - 1; i >= 0; i-- {
		m.releaseLocked(held[i])
	}
}

// releaseLocked pops the holder of a path and promotes the next
// waiter. Callers must hold m.mu.
func (m *Manager) releaseLocked(path string) {
	q := m.paths[path]
	if len(q) == 0 {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		delete(m.paths, path)
		return
	}
	m.paths[path] = q
	close(q[0])
}

// normalize sorts and deduplicates a path set.
func normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
