package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/models"
)

// SeenStore tracks which items each viewer has already seen. Entries are
// ContentRef keys ("post:p1", "idea:i1"), so a post and an idea sharing an id
// are tracked apart.
type SeenStore struct {
	mu     sync.RWMutex
	seen   map[string]models.IDSet
	remote *Cache
	logger *zap.Logger
}

// NewSeenStore creates a seen store. remote may be nil.
func NewSeenStore(remote *Cache, logger *zap.Logger) *SeenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeenStore{seen: make(map[string]models.IDSet), remote: remote, logger: logger}
}

func seenKey(viewerID string) string {
	return "seen:" + viewerID
}

// Seen returns the ref keys viewerID has seen. Anonymous viewers have seen nothing.
func (s *SeenStore) Seen(ctx context.Context, viewerID string) models.IDSet {
	if viewerID == "" {
		return models.NewIDSet()
	}
	s.mu.RLock()
	set, ok := s.seen[viewerID]
	s.mu.RUnlock()
	if ok {
		return set
	}

	set = models.NewIDSet()
	if s.remote != nil {
		members, err := s.remote.Members(ctx, seenKey(viewerID))
		if err != nil {
			s.logger.Debug("seen set remote read failed", zap.String("viewer_id", viewerID), zap.Error(err))
		} else {
			set = models.NewIDSet(members...)
		}
	}

	s.mu.Lock()
	if existing, ok := s.seen[viewerID]; ok {
		set = existing.Union(set)
	}
	s.seen[viewerID] = set
	s.mu.Unlock()
	return set
}

// MarkSeen adds refs to the viewer's seen set and returns the new set.
func (s *SeenStore) MarkSeen(ctx context.Context, viewerID string, refs ...models.ContentRef) models.IDSet {
	if viewerID == "" {
		return models.NewIDSet()
	}
	// Warm the local set from the remote store before adding to it.
	s.Seen(ctx, viewerID)

	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.Key())
	}

	s.mu.Lock()
	current := s.seen[viewerID]
	for _, key := range keys {
		current = current.With(key)
	}
	s.seen[viewerID] = current
	s.mu.Unlock()

	if s.remote != nil && len(keys) > 0 {
		if err := s.remote.AddMembers(ctx, seenKey(viewerID), keys...); err != nil {
			s.logger.Debug("seen set remote write failed", zap.String("viewer_id", viewerID), zap.Error(err))
		}
	}
	return current
}
