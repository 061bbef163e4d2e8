package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

// Backfill walks lineage outward from ref up to depth hops, merging the
// related stubs and linking them on both ends. Items already visited in
// this walk are not fetched again.
func (s *Sync) Backfill(ctx context.Context, ref models.ContentRef, depth int) error {
	if s.lineage == nil {
		return fmt.Errorf("indexer: no lineage source")
	}
	visited := map[string]bool{ref.Key(): true}
	frontier := []models.ContentRef{ref}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []models.ContentRef
		for _, current := range frontier {
			result, err := s.lineage.Lineage(ctx, current)
			if err != nil {
				if level == 0 {
					return fmt.Errorf("failed to load lineage of %s: %w", current.Key(), err)
				}
				s.logger.Debug("Lineage lookup failed", zap.String("ref", current.Key()), zap.Error(err))
				continue
			}
			merged, err := s.mergeLineage(current, result)
			if err != nil {
				return err
			}
			telemetry.RecordMerge(ctx, "lineage", merged)

			for _, stub := range append(result.Parents, result.Children...) {
				if visited[stub.Ref.Key()] {
					continue
				}
				visited[stub.Ref.Key()] = true
				next = append(next, stub.Ref)
			}
		}
		frontier = next
	}
	return nil
}

func (s *Sync) mergeLineage(ref models.ContentRef, result collab.LineageResult) (int, error) {
	merged := 0
	_, err := s.table.Update(func(b *store.Builder) error {
		for _, stub := range append(result.Parents, result.Children...) {
			entity := stub.Entity()
			if entity == nil {
				continue
			}
			// A stub only fills an empty slot. Its excerpt would otherwise
			// replace the full content of a known item.
			if _, known := b.Snapshot().Get(entity.Kind(), entity.EntityID()); known {
				continue
			}
			if err := b.Upsert(entity); err != nil {
				return err
			}
			merged++
		}
		for _, parent := range result.Parents {
			if err := link(b, parent.Ref, ref); err != nil {
				return err
			}
		}
		for _, child := range result.Children {
			if err := link(b, ref, child.Ref); err != nil {
				return err
			}
		}
		return nil
	})
	return merged, err
}

// link records that child was derived from parent on both records. Posts
// cannot derive from ideas; such pairs are ignored.
func link(b *store.Builder, parent, child models.ContentRef) error {
	snap := b.Snapshot()
	switch {
	case parent.Type == models.ContentPost && child.Type == models.ContentPost:
		if p, ok := snap.Post(parent.ID); ok && !contains(p.DerivedPosts, child.ID) {
			p.DerivedPosts = append(append([]string(nil), p.DerivedPosts...), child.ID)
			if err := b.Put(p); err != nil {
				return err
			}
		}
		if c, ok := snap.Post(child.ID); ok && !contains(c.SourcePosts, parent.ID) {
			c.SourcePosts = append(append([]string(nil), c.SourcePosts...), parent.ID)
			return b.Put(c)
		}
	case parent.Type == models.ContentPost && child.Type == models.ContentIdea:
		if p, ok := snap.Post(parent.ID); ok && !contains(p.DerivedIdeas, child.ID) {
			p.DerivedIdeas = append(append([]string(nil), p.DerivedIdeas...), child.ID)
			if err := b.Put(p); err != nil {
				return err
			}
		}
		if c, ok := snap.Idea(child.ID); ok && !contains(c.SourcePosts, parent.ID) {
			c.SourcePosts = append(append([]string(nil), c.SourcePosts...), parent.ID)
			return b.Put(c)
		}
	case parent.Type == models.ContentIdea && child.Type == models.ContentIdea:
		if p, ok := snap.Idea(parent.ID); ok && !contains(p.DerivedIdeas, child.ID) {
			p.DerivedIdeas = append(append([]string(nil), p.DerivedIdeas...), child.ID)
			if err := b.Put(p); err != nil {
				return err
			}
		}
		if c, ok := snap.Idea(child.ID); ok && !contains(c.SourceIdeas, parent.ID) {
			c.SourceIdeas = append(append([]string(nil), c.SourceIdeas...), parent.ID)
			return b.Put(c)
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
