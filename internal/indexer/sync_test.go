package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/cache"
	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/db"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	feed       collab.FeedResult
	feedErr    error
	feedCalls  int
	posts      map[string]models.Post
	ideas      map[string]models.Idea
	ratings    map[string][]models.Rating
	membership []models.CommunityMembership
}

func (f *fakeFetcher) FetchUser(ctx context.Context, id string) (models.User, error) {
	return models.User{}, collab.ErrNotFound
}

func (f *fakeFetcher) FetchPost(ctx context.Context, id string) (models.Post, error) {
	post, ok := f.posts[id]
	if !ok {
		return models.Post{}, collab.ErrNotFound
	}
	return post, nil
}

func (f *fakeFetcher) FetchIdea(ctx context.Context, id string) (models.Idea, error) {
	idea, ok := f.ideas[id]
	if !ok {
		return models.Idea{}, collab.ErrNotFound
	}
	return idea, nil
}

func (f *fakeFetcher) FetchTopic(ctx context.Context, id string) (models.DiscussionTopic, error) {
	return models.DiscussionTopic{}, collab.ErrNotFound
}

func (f *fakeFetcher) FetchCommunity(ctx context.Context, id string) (models.Community, error) {
	return models.Community{}, collab.ErrNotFound
}

func (f *fakeFetcher) FetchFeed(ctx context.Context, page collab.FeedPage) (collab.FeedResult, error) {
	f.feedCalls++
	return f.feed, f.feedErr
}

func (f *fakeFetcher) FetchRatings(ctx context.Context, ideaID string) ([]models.Rating, error) {
	return f.ratings[ideaID], nil
}

func (f *fakeFetcher) FetchMemberships(ctx context.Context, userID string) ([]models.CommunityMembership, error) {
	return f.membership, nil
}

type fakeLineage map[string]collab.LineageResult

func (f fakeLineage) Lineage(ctx context.Context, ref models.ContentRef) (collab.LineageResult, error) {
	result, ok := f[ref.Key()]
	if !ok {
		return collab.LineageResult{}, collab.ErrNotFound
	}
	return result, nil
}

func newTestSync(t *testing.T, fetcher *fakeFetcher, lineage collab.LineageSource, cfg config.SyncConfig) (*Sync, *store.Table) {
	t.Helper()
	table := store.New()
	s, err := NewSync(Options{
		Config:   cfg,
		PageSize: 10,
		Table:    table,
		Fetcher:  fetcher,
		Lineage:  lineage,
		Pages:    cache.NewPageCache(time.Minute, nil, nil),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return s, table
}

func feedFixture() collab.FeedResult {
	return collab.FeedResult{
		Posts: []models.Post{{
			ID:        "p1",
			Content:   "Markets need charging",
			Author:    &models.User{ID: "u1", DisplayName: "Ada"},
			CreatedAt: base,
		}},
		Ideas: []models.Idea{{
			ID:          "i1",
			Title:       "Solar kiosks",
			CreatorIDs:  []string{"u1"},
			Tags:        []string{"#Energy"},
			SourcePosts: []string{"p1"},
			Status:      models.IdeaPublished,
			CreatedAt:   base.Add(time.Hour),
		}},
		Refs: []models.ContentRef{models.IdeaRef("i1"), models.PostRef("p1")},
	}
}

func TestNewSync_RequiresCollaborators(t *testing.T) {
	_, err := NewSync(Options{Table: store.New()})
	assert.True(t, errors.Is(err, ErrNoFetcher))

	_, err = NewSync(Options{Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestInitGuard(t *testing.T) {
	var guard InitGuard
	ctx := context.Background()
	calls := 0

	err := guard.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("upstream down")
	})
	require.Error(t, err)
	assert.False(t, guard.Done())

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Do(ctx, func(context.Context) error {
			calls++
			return nil
		}))
	}
	assert.True(t, guard.Done())
	assert.Equal(t, 2, calls)
}

func TestSync_BootstrapOnce(t *testing.T) {
	fetcher := &fakeFetcher{feed: feedFixture()}
	s, table := newTestSync(t, fetcher, nil, config.SyncConfig{})
	ctx := context.Background()

	require.NoError(t, s.Bootstrap(ctx))
	require.NoError(t, s.Bootstrap(ctx))
	assert.Equal(t, 1, fetcher.feedCalls)

	snap := table.Snapshot()
	idea, ok := snap.Idea("i1")
	require.True(t, ok)
	assert.Equal(t, []string{"energy"}, idea.Tags)
	user, ok := snap.User("u1")
	require.True(t, ok)
	assert.Equal(t, "Ada", user.DisplayName)
}

func TestSync_FeedUsesFreshPage(t *testing.T) {
	fetcher := &fakeFetcher{feed: feedFixture()}
	s, _ := newTestSync(t, fetcher, nil, config.SyncConfig{})
	ctx := context.Background()

	refs, err := s.Feed(ctx, collab.FeedPage{}, false)
	require.NoError(t, err)
	assert.Equal(t, fetcher.feed.Refs, refs)

	_, err = s.Feed(ctx, collab.FeedPage{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.feedCalls)

	_, err = s.Feed(ctx, collab.FeedPage{}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.feedCalls)
}

func TestSync_FailedRefreshDropsCachedPage(t *testing.T) {
	fetcher := &fakeFetcher{feed: feedFixture()}
	s, _ := newTestSync(t, fetcher, nil, config.SyncConfig{})
	ctx := context.Background()

	_, err := s.Feed(ctx, collab.FeedPage{}, false)
	require.NoError(t, err)

	fetcher.feedErr = errors.New("timeout")
	_, err = s.Feed(ctx, collab.FeedPage{}, true)
	require.Error(t, err)

	_, err = s.Feed(ctx, collab.FeedPage{}, false)
	require.Error(t, err, "the stale page is not served after a refresh")
	assert.Equal(t, 3, fetcher.feedCalls)
}

func TestSync_FeedErrorIsReturned(t *testing.T) {
	fetcher := &fakeFetcher{feedErr: errors.New("timeout")}
	s, _ := newTestSync(t, fetcher, nil, config.SyncConfig{})

	_, err := s.Feed(context.Background(), collab.FeedPage{}, false)
	assert.Error(t, err)
}

func TestSync_PrefetchRatings(t *testing.T) {
	fetcher := &fakeFetcher{
		feed:    feedFixture(),
		ratings: map[string][]models.Rating{"i1": {{UserID: "u2", CriterionID: "impact", Score: 4}}},
	}
	s, table := newTestSync(t, fetcher, nil, config.SyncConfig{PrefetchRating: true})

	_, err := s.RefreshFeed(context.Background(), collab.FeedPage{Limit: 10})
	require.NoError(t, err)

	idea, ok := table.Snapshot().Idea("i1")
	require.True(t, ok)
	require.Len(t, idea.Ratings, 1)
	assert.Equal(t, "Solar kiosks", idea.Title, "ratings merge keeps the rest of the idea")
}

func TestSync_BackfillLinksBothEnds(t *testing.T) {
	lineage := fakeLineage{
		"idea:i1": {
			Parents: []collab.Stub{{
				Ref:     models.PostRef("p1"),
				Excerpt: "Markets need charging",
				Authors: []models.User{{ID: "u1", DisplayName: "Ada"}},
			}},
			Children: []collab.Stub{{
				Ref:     models.IdeaRef("i2"),
				Title:   "Kiosk network",
				Authors: []models.User{{ID: "u3", DisplayName: "Lin"}},
			}},
		},
		"idea:i2": {
			Parents: []collab.Stub{{Ref: models.IdeaRef("i1"), Title: "Solar kiosks"}},
		},
	}
	s, table := newTestSync(t, &fakeFetcher{}, lineage, config.SyncConfig{})
	require.NoError(t, table.Upsert(models.Idea{ID: "i1", Title: "Solar kiosks", CreatorIDs: []string{"u1"}}))

	require.NoError(t, s.Backfill(context.Background(), models.IdeaRef("i1"), 2))

	snap := table.Snapshot()
	i1, _ := snap.Idea("i1")
	assert.Equal(t, []string{"p1"}, i1.SourcePosts)
	assert.Equal(t, []string{"i2"}, i1.DerivedIdeas)
	assert.Equal(t, "Solar kiosks", i1.Title)

	p1, ok := snap.Post("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"i1"}, p1.DerivedIdeas)
	assert.Equal(t, "u1", p1.AuthorID)

	i2, ok := snap.Idea("i2")
	require.True(t, ok)
	assert.Equal(t, []string{"i1"}, i2.SourceIdeas)
	lin, ok := snap.User("u3")
	require.True(t, ok)
	assert.Equal(t, "Lin", lin.DisplayName)
}

func TestSync_BackfillKeepsFullContent(t *testing.T) {
	database, err := db.New(&config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"}, "error")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	repo := db.NewRepository(database.DB)

	content := strings.Repeat("Charging stalls should share solar panels. ", 6)
	summary := strings.Repeat("Kiosks rent batteries charged by rooftop solar. ", 4)
	require.NoError(t, repo.Seed(context.Background(),
		models.Post{ID: "p1", Content: content, Author: &models.User{ID: "u1", DisplayName: "Ada"}, CreatedAt: base},
		models.Idea{
			ID:          "i1",
			Title:       "Solar kiosks",
			Summary:     summary,
			CreatorIDs:  []string{"u1"},
			SourcePosts: []string{"p1"},
			Status:      models.IdeaPublished,
			CreatedAt:   base.Add(time.Hour),
		},
	))

	table := store.New()
	s, err := NewSync(Options{
		Config:  config.SyncConfig{BackfillDepth: 3},
		Table:   table,
		Fetcher: repo,
		Lineage: repo,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := s.RefreshFeed(context.Background(), collab.FeedPage{Limit: 10})
		require.NoError(t, err)
	}

	snap := table.Snapshot()
	post, ok := snap.Post("p1")
	require.True(t, ok)
	assert.Equal(t, content, post.Content)
	assert.Equal(t, []string{"i1"}, post.DerivedIdeas)

	idea, ok := snap.Idea("i1")
	require.True(t, ok)
	assert.Equal(t, summary, idea.Summary)
	assert.Equal(t, []string{"p1"}, idea.SourcePosts)
}

func TestSync_BackfillStubFillsUnknownSlot(t *testing.T) {
	lineage := fakeLineage{
		"post:p1": {Children: []collab.Stub{{Ref: models.IdeaRef("i5"), Title: "Kiosk rental", Excerpt: "Rent batt…"}}},
	}
	s, table := newTestSync(t, &fakeFetcher{}, lineage, config.SyncConfig{})
	require.NoError(t, table.Upsert(models.Post{ID: "p1", Content: "Full content stays", AuthorID: "u1"}))

	require.NoError(t, s.Backfill(context.Background(), models.PostRef("p1"), 1))

	idea, ok := table.Snapshot().Idea("i5")
	require.True(t, ok)
	assert.Equal(t, "Rent batt…", idea.Summary)
	assert.Equal(t, []string{"p1"}, idea.SourcePosts)
	post, _ := table.Snapshot().Post("p1")
	assert.Equal(t, "Full content stays", post.Content)
}

func TestSync_BackfillUnknownRoot(t *testing.T) {
	s, _ := newTestSync(t, &fakeFetcher{}, fakeLineage{}, config.SyncConfig{})
	err := s.Backfill(context.Background(), models.PostRef("nope"), 1)
	assert.True(t, errors.Is(err, collab.ErrNotFound))
}

func TestSync_ReconcileReplacesOptimisticState(t *testing.T) {
	fetcher := &fakeFetcher{
		posts: map[string]models.Post{"p1": {ID: "p1", Content: "hi", AuthorID: "u1", Supporters: models.NewIDSet()}},
	}
	s, table := newTestSync(t, fetcher, nil, config.SyncConfig{})
	ctx := context.Background()
	require.NoError(t, table.Upsert(models.Post{ID: "p1", AuthorID: "u1", Supporters: models.NewIDSet("u9")}))
	require.NoError(t, table.Upsert(models.Post{ID: "p9", AuthorID: "u1"}))

	require.NoError(t, s.Reconcile(ctx, models.PostRef("p1")))
	post, _ := table.Snapshot().Post("p1")
	assert.True(t, post.Supporters.IsEmpty())

	require.NoError(t, s.Reconcile(ctx, models.PostRef("p9")))
	_, ok := table.Snapshot().Post("p9")
	assert.False(t, ok, "items the collaborator no longer knows are dropped")
}

func TestSync_LoadAndMemberships(t *testing.T) {
	fetcher := &fakeFetcher{
		ideas:      map[string]models.Idea{"i7": {ID: "i7", Title: "Seven"}},
		membership: []models.CommunityMembership{{UserID: "u1", CommunityID: "c1", Role: "mod"}},
	}
	s, table := newTestSync(t, fetcher, nil, config.SyncConfig{})
	ctx := context.Background()

	require.NoError(t, s.Load(ctx, models.KindIdea, "i7"))
	_, ok := table.Snapshot().Idea("i7")
	assert.True(t, ok)
	assert.True(t, errors.Is(s.Load(ctx, models.KindPost, "nope"), collab.ErrNotFound))

	require.NoError(t, s.LoadMemberships(ctx, "u1"))
	membership, ok := table.Snapshot().Membership("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, models.RoleModerator, membership.Role)
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		expected string
	}{
		{"owner", "owner", models.RoleOwner},
		{"admin", "admin", models.RoleModerator},
		{"mod", "mod", models.RoleModerator},
		{"moderator mixed case", " Moderator ", models.RoleModerator},
		{"member", "member", models.RoleMember},
		{"unknown", "guest", models.RoleMember},
		{"empty", "", models.RoleMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeRole(tt.role)
			if result != tt.expected {
				t.Errorf("normalizeRole(%q) = %q, want %q", tt.role, result, tt.expected)
			}
		})
	}
}
