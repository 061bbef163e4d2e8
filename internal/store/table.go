package store

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/models"
)

var (
	// ErrInvalidEntity is returned for nil entities, empty ids and unknown types.
	ErrInvalidEntity = errors.New("store: invalid entity")
)

// Change describes one commit.
type Change struct {
	Version  uint64
	Entities map[models.Kind][]string
}

// Touched reports whether the commit wrote the given record.
func (c Change) Touched(kind models.Kind, id string) bool {
	for _, changed := range c.Entities[kind] {
		if changed == id {
			return true
		}
	}
	return false
}

// Table is the normalized entity cache. Writers are serialized and every
// commit swaps in a new immutable snapshot with a single pointer store, so
// readers never observe a partially applied write.
type Table struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	listenersMu  sync.RWMutex
	listeners    map[int64]func(Change)
	nextListener int64

	logger *zap.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		listeners: make(map[int64]func(Change)),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.current.Store(emptySnapshot())
	return t
}

// Snapshot returns the latest committed snapshot.
func (t *Table) Snapshot() *Snapshot {
	return t.current.Load()
}

// Update runs fn against the latest snapshot while holding the writer lock and
// commits the staged state if fn succeeds. Reads inside fn always observe the
// most recent commit.
func (t *Table) Update(fn func(b *Builder) error) (*Snapshot, error) {
	t.mu.Lock()
	base := t.current.Load()
	b := newBuilder(base)
	if err := fn(b); err != nil {
		t.mu.Unlock()
		return base, err
	}
	if !b.dirty() {
		t.mu.Unlock()
		return base, nil
	}
	b.next.version = base.version + 1
	t.current.Store(b.next)
	change := b.change()
	t.mu.Unlock()

	t.logger.Debug("table commit",
		zap.Uint64("version", change.Version),
		zap.Int("kinds", len(change.Entities)))
	t.publish(change)
	return b.next, nil
}

// Upsert inserts or merges a single entity.
func (t *Table) Upsert(entity models.Entity) error {
	_, err := t.Update(func(b *Builder) error {
		return b.Upsert(entity)
	})
	return err
}

// UpsertMany merges a batch and commits it once. Invalid entries are skipped
// and reported through the returned error after the valid ones are committed.
func (t *Table) UpsertMany(entities ...models.Entity) error {
	var errs []error
	_, err := t.Update(func(b *Builder) error {
		for _, entity := range entities {
			if err := b.Upsert(entity); err != nil {
				errs = append(errs, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Put replaces a slot without merging.
func (t *Table) Put(entity models.Entity) error {
	_, err := t.Update(func(b *Builder) error {
		return b.Put(entity)
	})
	return err
}

// Remove deletes a slot and reports whether it existed.
func (t *Table) Remove(kind models.Kind, id string) bool {
	removed := false
	_, _ = t.Update(func(b *Builder) error {
		removed = b.Remove(kind, id)
		return nil
	})
	return removed
}

// Subscribe registers fn to be called after every commit. The returned
// function removes the subscription.
func (t *Table) Subscribe(fn func(Change)) func() {
	t.listenersMu.Lock()
	t.nextListener++
	id := t.nextListener
	t.listeners[id] = fn
	t.listenersMu.Unlock()

	return func() {
		t.listenersMu.Lock()
		delete(t.listeners, id)
		t.listenersMu.Unlock()
	}
}

func (t *Table) publish(change Change) {
	t.listenersMu.RLock()
	listeners := make([]func(Change), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (b *Builder) change() Change {
	entities := make(map[models.Kind][]string, len(b.changed))
	for kind, ids := range b.changed {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		entities[kind] = list
	}
	return Change{Version: b.next.version, Entities: entities}
}
