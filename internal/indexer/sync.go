package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/cache"
	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
	"github.com/ideaflow/ideaflow/pkg/logging"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

// ErrNoFetcher is returned when sync runs without a fetch collaborator.
var ErrNoFetcher = errors.New("indexer: fetcher is required")

// Sync keeps the entity table filled from the fetch collaborators.
type Sync struct {
	config   config.SyncConfig
	pageSize int
	table    *store.Table
	fetcher  collab.Fetcher
	lineage  collab.LineageSource
	pages    *cache.PageCache
	guard    *InitGuard
	ingest   *Ingestor
	logger   *zap.Logger
}

// Options wires the collaborators of a Sync. Lineage and Pages are optional.
type Options struct {
	Config   config.SyncConfig
	PageSize int
	Table    *store.Table
	Fetcher  collab.Fetcher
	Lineage  collab.LineageSource
	Pages    *cache.PageCache
	Guard    *InitGuard
	Logger   *zap.Logger
}

// NewSync creates a new sync manager
func NewSync(opts Options) (*Sync, error) {
	if opts.Table == nil {
		return nil, fmt.Errorf("indexer: table is required")
	}
	if opts.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("indexer")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	guard := opts.Guard
	if guard == nil {
		guard = &InitGuard{}
	}
	pages := opts.Pages
	if pages == nil {
		pages = cache.NewPageCache(0, nil, logger)
	}

	return &Sync{
		config:   opts.Config,
		pageSize: pageSize,
		table:    opts.Table,
		fetcher:  opts.Fetcher,
		lineage:  opts.Lineage,
		pages:    pages,
		guard:    guard,
		ingest:   NewIngestor(opts.Table, logger),
		logger:   logger,
	}, nil
}

// Bootstrap loads the first feed page once per process.
func (s *Sync) Bootstrap(ctx context.Context) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		s.logger.Info("Bootstrapping entity table")
		_, err := s.RefreshFeed(ctx, collab.FeedPage{Limit: s.pageSize})
		return err
	})
}

// Run refreshes the first feed page every interval until ctx is done.
func (s *Sync) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		s.logger.Error("Bootstrap failed", zap.Error(err))
	}
	if s.config.Disabled {
		s.logger.Info("Periodic sync disabled")
		return nil
	}

	interval := s.config.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.logger.Info("Starting sync loop", zap.Duration("interval", interval))

	for {
		if !s.wait(ctx, interval) {
			return ctx.Err()
		}
		if _, err := s.RefreshFeed(ctx, collab.FeedPage{Limit: s.pageSize}); err != nil {
			s.logger.Error("Failed to refresh feed", zap.Error(err))
		}
	}
}

// wait waits for the specified duration or until context is cancelled.
// It reports whether the full duration elapsed.
func (s *Sync) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func feedKey(page collab.FeedPage) string {
	return cache.PageKey("feed", strconv.Itoa(page.Offset), strconv.Itoa(page.Limit))
}

// Feed returns the refs of a feed page, refetching when the cached page is
// stale or refresh is set.
func (s *Sync) Feed(ctx context.Context, page collab.FeedPage, refresh bool) ([]models.ContentRef, error) {
	if page.Limit <= 0 {
		page.Limit = s.pageSize
	}
	key := feedKey(page)
	if refresh {
		s.pages.Invalidate(ctx, key)
	} else if cached, ok := s.pages.Get(ctx, key); ok {
		return cached.Refs, nil
	}
	return s.RefreshFeed(ctx, page)
}

// RefreshFeed fetches a feed page, merges it and records the page order.
// Lineage backfill and ratings prefetch follow in the same call; their
// failures are logged only.
func (s *Sync) RefreshFeed(ctx context.Context, page collab.FeedPage) ([]models.ContentRef, error) {
	result, err := s.fetcher.FetchFeed(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed page %d+%d: %w", page.Offset, page.Limit, err)
	}
	n, err := s.ingest.Feed(ctx, result)
	if err != nil && n == 0 {
		return nil, err
	}
	s.pages.Put(ctx, feedKey(page), result.Refs)

	s.logger.Debug("Refreshed feed page",
		zap.Int("offset", page.Offset),
		zap.Int("limit", page.Limit),
		zap.Int("entities", n))

	if s.config.PrefetchRating {
		for _, idea := range result.Ideas {
			s.prefetchRatings(ctx, idea.ID)
		}
	}
	if s.lineage != nil && s.config.BackfillDepth > 0 {
		for _, ref := range result.Refs {
			if err := s.Backfill(ctx, ref, s.config.BackfillDepth); err != nil {
				s.logger.Debug("Lineage backfill failed", zap.String("ref", ref.Key()), zap.Error(err))
			}
		}
	}
	return result.Refs, nil
}

func (s *Sync) prefetchRatings(ctx context.Context, ideaID string) {
	ratings, err := s.fetcher.FetchRatings(ctx, ideaID)
	if err != nil {
		s.logger.Debug("Ratings prefetch failed", zap.String("idea_id", ideaID), zap.Error(err))
		return
	}
	if len(ratings) == 0 {
		return
	}
	if _, err := s.ingest.Entities(ctx, "ratings", models.Idea{ID: ideaID, Ratings: ratings}); err != nil {
		s.logger.Debug("Ratings merge failed", zap.String("idea_id", ideaID), zap.Error(err))
	}
}

// Load fetches a single entity when it is missing from the table.
func (s *Sync) Load(ctx context.Context, kind models.Kind, id string) error {
	if _, ok := s.table.Snapshot().Get(kind, id); ok {
		return nil
	}
	entity, err := s.fetch(ctx, kind, id)
	if err != nil {
		return err
	}
	_, err = s.ingest.Entities(ctx, "load", entity)
	return err
}

func (s *Sync) fetch(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	switch kind {
	case models.KindUser:
		return s.fetcher.FetchUser(ctx, id)
	case models.KindPost:
		return s.fetcher.FetchPost(ctx, id)
	case models.KindIdea:
		return s.fetcher.FetchIdea(ctx, id)
	case models.KindTopic:
		return s.fetcher.FetchTopic(ctx, id)
	case models.KindCommunity:
		return s.fetcher.FetchCommunity(ctx, id)
	}
	return nil, fmt.Errorf("cannot fetch %s %q", kind, id)
}

// LoadMemberships merges the memberships of userID.
func (s *Sync) LoadMemberships(ctx context.Context, userID string) error {
	memberships, err := s.fetcher.FetchMemberships(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch memberships of %s: %w", userID, err)
	}
	entities := make([]models.Entity, 0, len(memberships))
	for _, m := range memberships {
		entities = append(entities, m)
	}
	_, err = s.ingest.Entities(ctx, "memberships", entities...)
	return err
}

// Reconcile replaces the cached post or idea with the authoritative copy.
// Use it after a failed confirmation to drop the optimistic state.
func (s *Sync) Reconcile(ctx context.Context, ref models.ContentRef) error {
	var entity models.Entity
	var err error
	switch ref.Type {
	case models.ContentPost:
		entity, err = s.fetcher.FetchPost(ctx, ref.ID)
	case models.ContentIdea:
		entity, err = s.fetcher.FetchIdea(ctx, ref.ID)
	default:
		return fmt.Errorf("cannot reconcile %q", ref.Key())
	}
	if errors.Is(err, collab.ErrNotFound) {
		kind := models.KindPost
		if ref.Type == models.ContentIdea {
			kind = models.KindIdea
		}
		s.table.Remove(kind, ref.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", ref.Key(), err)
	}
	if err := s.table.Put(normalize(entity)); err != nil {
		return err
	}
	telemetry.RecordMerge(ctx, "reconcile", 1)
	return nil
}
