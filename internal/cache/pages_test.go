package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaflow/ideaflow/internal/models"
)

func TestPageCache_FreshnessWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pages := NewPageCache(5*time.Minute, nil, nil)
	pages.clock = func() time.Time { return now }
	ctx := context.Background()
	key := PageKey("feed", "0", "20")

	_, ok := pages.Get(ctx, key)
	assert.False(t, ok)

	refs := []models.ContentRef{models.PostRef("p2"), models.IdeaRef("i1")}
	pages.Put(ctx, key, refs)
	refs[0] = models.PostRef("mutated")

	page, ok := pages.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []models.ContentRef{models.PostRef("p2"), models.IdeaRef("i1")}, page.Refs)

	now = now.Add(4 * time.Minute)
	_, ok = pages.Get(ctx, key)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = pages.Get(ctx, key)
	assert.False(t, ok, "pages expire at the end of the window")

	pages.Put(ctx, key, refs)
	pages.Invalidate(ctx, key)
	_, ok = pages.Get(ctx, key)
	assert.False(t, ok)
}

func TestPageCache_ZeroTTLNeverServes(t *testing.T) {
	pages := NewPageCache(0, nil, nil)
	ctx := context.Background()
	pages.Put(ctx, "k", []models.ContentRef{models.PostRef("p1")})
	_, ok := pages.Get(ctx, "k")
	assert.False(t, ok)
}

func TestSeenStore(t *testing.T) {
	seen := NewSeenStore(nil, nil)
	ctx := context.Background()

	assert.True(t, seen.Seen(ctx, "u1").IsEmpty())
	set := seen.MarkSeen(ctx, "u1", models.PostRef("p1"), models.IdeaRef("i1"), models.PostRef("p1"))
	assert.Equal(t, []string{"idea:i1", "post:p1"}, set.Slice())
	assert.Equal(t, []string{"idea:i1", "post:p1"}, seen.Seen(ctx, "u1").Slice())
	assert.True(t, seen.Seen(ctx, "u2").IsEmpty())
	assert.True(t, seen.MarkSeen(ctx, "", models.PostRef("p1")).IsEmpty())

	set = seen.MarkSeen(ctx, "u1")
	assert.Equal(t, []string{"idea:i1", "post:p1"}, set.Slice(), "marking nothing keeps the set")
}

func TestSeenStore_KindsSharingAnID(t *testing.T) {
	seen := NewSeenStore(nil, nil)
	ctx := context.Background()

	set := seen.MarkSeen(ctx, "u1", models.PostRef("x"))
	assert.True(t, set.Has(models.PostRef("x").Key()))
	assert.False(t, set.Has(models.IdeaRef("x").Key()), "idea x stays unseen")
}
