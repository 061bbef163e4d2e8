package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/models"
)

// Page is a previously derived list of references, such as one feed page.
type Page struct {
	Refs      []models.ContentRef `json:"refs"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// PageCache keeps derived pages for a fixed validity window. Pages older
// than the window are treated as absent so callers re-derive them. Redis,
// when configured, mirrors the pages across processes.
type PageCache struct {
	mu     sync.RWMutex
	pages  map[string]Page
	ttl    time.Duration
	clock  func() time.Time
	remote *Cache
	logger *zap.Logger
}

// NewPageCache creates a page cache. remote may be nil.
func NewPageCache(ttl time.Duration, remote *Cache, logger *zap.Logger) *PageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageCache{
		pages:  make(map[string]Page),
		ttl:    ttl,
		clock:  time.Now,
		remote: remote,
		logger: logger,
	}
}

// PageKey derives the cache key of a page from its parameters.
func PageKey(parts ...string) string {
	return "page:" + HashKey(parts...)
}

// Get returns the page when it is still fresh.
func (p *PageCache) Get(ctx context.Context, key string) (Page, bool) {
	p.mu.RLock()
	page, ok := p.pages[key]
	p.mu.RUnlock()

	if !ok && p.remote != nil {
		if err := p.remote.GetJSON(ctx, key, &page); err == nil {
			ok = true
			p.mu.Lock()
			p.pages[key] = page
			p.mu.Unlock()
		} else if !errors.Is(err, ErrMiss) {
			p.logger.Debug("page cache remote read failed", zap.String("key", key), zap.Error(err))
		}
	}
	if !ok || !p.fresh(page) {
		return Page{}, false
	}
	return page, true
}

// Put stores refs as a freshly fetched page.
func (p *PageCache) Put(ctx context.Context, key string, refs []models.ContentRef) Page {
	page := Page{Refs: append([]models.ContentRef(nil), refs...), FetchedAt: p.clock()}
	p.mu.Lock()
	p.pages[key] = page
	p.mu.Unlock()

	if p.remote != nil {
		if err := p.remote.SetJSON(ctx, key, page, p.ttl); err != nil {
			p.logger.Debug("page cache remote write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return page
}

// Invalidate forces the next Get of key to miss.
func (p *PageCache) Invalidate(ctx context.Context, key string) {
	p.mu.Lock()
	delete(p.pages, key)
	p.mu.Unlock()
	if p.remote != nil {
		_ = p.remote.Delete(ctx, key)
	}
}

func (p *PageCache) fresh(page Page) bool {
	if p.ttl <= 0 {
		return false
	}
	return p.clock().Sub(page.FetchedAt) < p.ttl
}
