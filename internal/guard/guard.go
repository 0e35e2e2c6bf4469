package guard

import (
	"errors"
	"sync"
)

// ErrBusy is surfaced to callers when a guarded operation is already in
// flight. It means "not started", not that the operation failed.
var ErrBusy = errors.New("operation already in progress")

// Guard is a single-flight lock keyed by operation class. Acquiring an
// already-held key fails fast; callers never queue.
type Guard interface {
	TryAcquire(key string) bool
	Release(key string)
}

// MemoryGuard is the in-process guard implementation.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryGuard creates an empty guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]bool)}
}

// TryAcquire atomically checks and sets the lock for key.
func (g *MemoryGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return false
	}
	g.held[key] = true
	return true
}

// Release frees the lock. Releasing an unheld key is a no-op.
func (g *MemoryGuard) Release(key string) {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
}
