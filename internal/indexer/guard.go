package indexer

import (
	"context"
	"sync"
)

// InitGuard runs a bootstrap function at most once per process. A failed
// bootstrap may be retried; a successful one is never repeated.
type InitGuard struct {
	mu   sync.Mutex
	done bool
}

// Do runs fn unless a previous call already succeeded.
func (g *InitGuard) Do(ctx context.Context, fn func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	g.done = true
	return nil
}

// Done reports whether bootstrap has completed.
func (g *InitGuard) Done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
