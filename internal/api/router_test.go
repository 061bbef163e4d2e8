package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/auth"
	"github.com/ideaflow/ideaflow/internal/cache"
	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/db"
	"github.com/ideaflow/ideaflow/internal/indexer"
	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/mutation"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *gin.Engine
	router   *Router
	table    *store.Table
	repo     *db.Repository
	service  *mutation.Service
	sessions *auth.SessionValidator
}

func newFixture(t *testing.T, withSync bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	database, err := db.New(&config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"}, "error")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	repo := db.NewRepository(database.DB)
	require.NoError(t, repo.Seed(ctx,
		models.User{ID: "u1", DisplayName: "Ada", Registered: true, CreatedAt: base},
		models.Post{
			ID:        "p1",
			Content:   "Markets need phone charging",
			Author:    &models.User{ID: "u2", DisplayName: "Grace", CreatedAt: base},
			CreatedAt: base,
		},
		models.Idea{
			ID:          "i1",
			Title:       "Solar kiosks",
			Summary:     "Charge phones in markets",
			CreatorIDs:  []string{"u1"},
			SourcePosts: []string{"p1"},
			Status:      models.IdeaPublished,
			CreatedAt:   base.Add(time.Minute),
		},
		models.Community{ID: "c1", Name: "Energy", CreatedAt: base},
	))

	table := store.New()
	dispatcher := notify.NewDispatcher(zap.NewNop())
	service, err := mutation.NewService(mutation.Config{
		Table:    table,
		Mutator:  repo,
		Notifier: dispatcher,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	analyzer, err := lineage.NewAnalyzer(16, zap.NewNop())
	require.NoError(t, err)
	sessions, err := auth.NewSessionValidator(auth.Config{SigningSecret: []byte("test-secret"), Issuer: "ideaflow-test"})
	require.NoError(t, err)

	deps := Dependencies{
		Table:      table,
		Service:    service,
		Analyzer:   analyzer,
		Seen:       cache.NewSeenStore(nil, zap.NewNop()),
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Health:     map[string]HealthChecker{"database": database},
		Logger:     zap.NewNop(),
	}
	if withSync {
		deps.Sync, err = indexer.NewSync(indexer.Options{
			Table:   table,
			Fetcher: repo,
			Lineage: repo,
			Pages:   cache.NewPageCache(time.Minute, nil, zap.NewNop()),
			Logger:  zap.NewNop(),
		})
		require.NoError(t, err)
	} else {
		result, err := repo.FetchFeed(ctx, collab.FeedPage{Limit: 20})
		require.NoError(t, err)
		_, err = indexer.NewIngestor(table, zap.NewNop()).Feed(ctx, result)
		require.NoError(t, err)
	}

	router, err := NewRouter(deps)
	require.NoError(t, err)
	engine := NewEngine(config.ServerConfig{})
	router.SetupRoutes(engine)
	t.Cleanup(service.Wait)

	return &fixture{engine: engine, router: router, table: table, repo: repo, service: service, sessions: sessions}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := f.sessions.Issue(userID, "")
	require.NoError(t, err)
	return token
}

func (f *fixture) call(t *testing.T, token, method string, params interface{}) JSONRPCResponse {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// decode re-encodes a result into dst.
func decode(t *testing.T, resp JSONRPCResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestRouter_RegistersEveryMethod(t *testing.T) {
	f := newFixture(t, false)
	methods := []string{
		"get_current_user", "get_user", "get_post", "get_idea", "get_topic", "get_community",
		"list_communities", "list_ideas", "list_posts", "list_topics", "get_feed", "get_contributions", "get_home_stats", "search",
		"list_chains", "get_chain_context",
		"toggle_support", "rate_idea", "add_reply", "toggle_reply_like", "create_post",
		"create_idea", "create_topic", "add_topic_post", "toggle_topic_upvote", "mark_answer",
		"toggle_membership", "report_content", "mark_seen", "reconcile",
	}
	for _, method := range methods {
		if !f.router.handler.Has("ideaflow." + method) {
			t.Errorf("method ideaflow.%s not registered", method)
		}
	}
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	assert.ErrorIs(t, err, errMissingTable)
	_, err = NewRouter(Dependencies{Table: store.New()})
	assert.ErrorIs(t, err, errMissingService)
}

func TestHandle_ProtocolErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{`, ErrParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ideaflow.get_home_stats"}`, ErrInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"ideaflow.nope"}`, ErrMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"ideaflow.get_post","params":[1]}`, ErrInvalidParams},
		{"missing id", `{"jsonrpc":"2.0","id":1,"method":"ideaflow.get_post","params":{}}`, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			f.engine.ServeHTTP(rec, req)

			var resp JSONRPCResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			if resp.Error.Code != tt.code {
				t.Errorf("code = %d, want %d", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestQueries_ReadFromTable(t *testing.T) {
	f := newFixture(t, false)

	var post models.Post
	decode(t, f.call(t, "", "ideaflow.get_post", map[string]string{"id": "p1"}), &post)
	assert.Equal(t, "Markets need phone charging", post.Content)
	require.NotNil(t, post.Author)
	assert.Equal(t, "Grace", post.Author.DisplayName)

	resp := f.call(t, "", "ideaflow.get_post", map[string]string{"id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrNotFound, resp.Error.Code)

	var stats struct {
		TotalIdeas int `json:"totalIdeas"`
		TotalPosts int `json:"totalPosts"`
	}
	decode(t, f.call(t, "", "ideaflow.get_home_stats", nil), &stats)
	assert.Equal(t, 1, stats.TotalIdeas)
	assert.Equal(t, 1, stats.TotalPosts)

	var results struct {
		Ideas []models.Idea `json:"ideas"`
	}
	decode(t, f.call(t, "", "ideaflow.search", map[string]string{"query": "solar MARKETS"}), &results)
	require.Len(t, results.Ideas, 1)
	assert.Equal(t, "i1", results.Ideas[0].ID)
}

func TestQueries_FeedPaging(t *testing.T) {
	f := newFixture(t, false)

	var items []struct {
		Ref models.ContentRef `json:"ref"`
	}
	decode(t, f.call(t, "", "ideaflow.get_feed", map[string]int{"limit": 1}), &items)
	require.Len(t, items, 1)
	assert.Equal(t, models.IdeaRef("i1"), items[0].Ref)

	decode(t, f.call(t, "", "ideaflow.get_feed", map[string]int{"offset": 5}), &items)
	assert.Empty(t, items)
}

func TestQueries_LoadMissingThroughSync(t *testing.T) {
	f := newFixture(t, true)
	_, ok := f.table.Snapshot().Community("c1")
	require.False(t, ok)

	var community communityResult
	decode(t, f.call(t, "", "ideaflow.get_community", map[string]string{"id": "c1"}), &community)
	assert.Equal(t, "Energy", community.Name)

	_, ok = f.table.Snapshot().Community("c1")
	assert.True(t, ok)
}

func TestQueries_ChainsAndContext(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u1")

	listChains := func() []chainView {
		var chains []chainView
		decode(t, f.call(t, token, "ideaflow.list_chains", nil), &chains)
		require.Len(t, chains, 1)
		require.NotNil(t, chains[0].Relevant)
		return chains
	}
	markSeen := func(refs ...models.ContentRef) {
		decode(t, f.call(t, token, "ideaflow.mark_seen", map[string]interface{}{"refs": refs}), &struct{}{})
	}

	chains := listChains()
	assert.Equal(t, models.PostRef("p1"), chains[0].Root)
	assert.True(t, chains[0].HasUnseen)
	assert.Equal(t, models.IdeaRef("i1"), chains[0].Relevant.Ref, "the newest unseen node is opened")

	// A post sharing the idea's id does not mark the idea seen.
	markSeen(models.PostRef("p1"), models.PostRef("i1"))
	chains = listChains()
	assert.True(t, chains[0].HasUnseen)
	assert.Equal(t, models.IdeaRef("i1"), chains[0].Relevant.Ref)

	markSeen(models.IdeaRef("i1"))
	chains = listChains()
	assert.False(t, chains[0].HasUnseen)
	assert.Equal(t, models.PostRef("p1"), chains[0].Relevant.Ref, "ties on support fall back to the earliest node")

	var chainCtx lineage.ChainContext
	decode(t, f.call(t, token, "ideaflow.get_chain_context", map[string]string{"type": "idea", "id": "i1"}), &chainCtx)
	assert.True(t, chainCtx.IsInChain)
	assert.Equal(t, lineage.PositionLatest, chainCtx.Position)
	assert.Equal(t, 1, chainCtx.NodesBefore)
}

func TestMutations_MarkSeenRejectsBadRefs(t *testing.T) {
	f := newFixture(t, false)
	resp := f.call(t, f.token(t, "u1"), "ideaflow.mark_seen", map[string]interface{}{
		"refs": []map[string]string{{"type": "topic", "id": "t1"}},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)
}

func TestQueries_ListPostsAndCommunities(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.repo.Seed(ctx,
		models.CommunityMembership{UserID: "u1", CommunityID: "c1", Role: "member", JoinedAt: base},
	))
	token := f.token(t, "u1")

	var posts []models.Post
	decode(t, f.call(t, "", "ideaflow.get_post", map[string]string{"id": "p1"}), &struct{}{})
	decode(t, f.call(t, "", "ideaflow.list_posts", map[string]string{"authorId": "u2"}), &posts)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)

	resp := f.call(t, "", "ideaflow.list_posts", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)

	var communities []models.Community
	decode(t, f.call(t, token, "ideaflow.list_communities", nil), &communities)
	require.Len(t, communities, 1)
	assert.Equal(t, "Energy", communities[0].Name)

	decode(t, f.call(t, "", "ideaflow.list_communities", map[string]string{"userId": "u2"}), &communities)
	assert.Empty(t, communities)
}

func TestQueries_CommunityLoadsMembership(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.repo.Seed(context.Background(),
		models.CommunityMembership{UserID: "u1", CommunityID: "c1", Role: "member", JoinedAt: base},
	))

	var community communityResult
	decode(t, f.call(t, f.token(t, "u1"), "ideaflow.get_community", map[string]string{"id": "c1"}), &community)
	require.NotNil(t, community.Membership)
	assert.Equal(t, "u1", community.Membership.UserID)
}

func TestMutations_Reconcile(t *testing.T) {
	f := newFixture(t, true)
	decode(t, f.call(t, "", "ideaflow.get_post", map[string]string{"id": "p1"}), &struct{}{})
	require.NoError(t, f.table.Upsert(models.Post{ID: "p1", Content: "optimistic edit"}))

	var result struct {
		Present bool `json:"present"`
	}
	decode(t, f.call(t, "", "ideaflow.reconcile", map[string]string{"type": "post", "id": "p1"}), &result)
	assert.True(t, result.Present)
	post, ok := f.table.Snapshot().Post("p1")
	require.True(t, ok)
	assert.Equal(t, "Markets need phone charging", post.Content)

	require.NoError(t, f.table.Upsert(models.Idea{ID: "i7", Title: "never confirmed"}))
	decode(t, f.call(t, "", "ideaflow.reconcile", map[string]string{"type": "idea", "id": "i7"}), &result)
	assert.False(t, result.Present)
	_, ok = f.table.Snapshot().Idea("i7")
	assert.False(t, ok)
}

func TestMutations_ReconcileNeedsSync(t *testing.T) {
	f := newFixture(t, false)
	resp := f.call(t, "", "ideaflow.reconcile", map[string]string{"type": "post", "id": "p1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrServerError, resp.Error.Code)
}

func TestMutations_RequireSession(t *testing.T) {
	f := newFixture(t, false)

	resp := f.call(t, "", "ideaflow.toggle_support", map[string]string{"type": "post", "id": "p1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrUnauthenticated, resp.Error.Code)
	assert.Equal(t, "mutation.toggle_support.missing_actor", resp.Error.Data)

	resp = f.call(t, "", "ideaflow.mark_seen", map[string]interface{}{"refs": []models.ContentRef{models.PostRef("p1")}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrUnauthenticated, resp.Error.Code)
}

func TestMutations_InvalidToken(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMutations_ToggleSupportConfirms(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u1")

	var state mutation.SupportState
	decode(t, f.call(t, token, "ideaflow.toggle_support", map[string]string{"type": "post", "id": "p1"}), &state)
	assert.True(t, state.Supporting)

	post, _ := f.table.Snapshot().Post("p1")
	assert.True(t, post.Supporters.Has("u1"))

	f.service.Wait()
	stored, err := f.repo.FetchPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, stored.Supporters.Has("u1"))
}

func TestMutations_CreateIdeaAndTopic(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u1")

	var idea models.Idea
	decode(t, f.call(t, token, "ideaflow.create_idea", map[string]interface{}{
		"title":       "Shared batteries",
		"summary":     "Swap packs between stalls",
		"sourceIdeas": []string{"i1"},
	}), &idea)
	assert.Equal(t, "Shared batteries", idea.Title)
	assert.Equal(t, []string{"u1"}, idea.CreatorIDs)

	f.service.Wait()

	var ideas []models.Idea
	decode(t, f.call(t, token, "ideaflow.list_ideas", map[string]string{"authorId": "u1"}), &ideas)
	assert.Len(t, ideas, 2)

	var topic models.DiscussionTopic
	decode(t, f.call(t, token, "ideaflow.create_topic", map[string]string{
		"ideaId":  "i1",
		"title":   "Where do we start?",
		"type":    "question",
		"content": "Pick a market",
	}), &topic)
	assert.Equal(t, models.TopicQuestion, topic.Type)

	f.service.Wait()
	var topics []models.DiscussionTopic
	decode(t, f.call(t, "", "ideaflow.list_topics", map[string]string{"ideaId": "i1"}), &topics)
	assert.Len(t, topics, 1)
}

func TestMutations_ValidationMapsToInvalidParams(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u1")

	resp := f.call(t, token, "ideaflow.add_reply", map[string]string{"postId": "p1", "content": "   "})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)

	resp = f.call(t, token, "ideaflow.toggle_membership", map[string]string{"communityId": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrNotFound, resp.Error.Code)
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/health", "/.well-known/healthcheck.json"} {
		rec := httptest.NewRecorder()
		f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "OK", body["status"])
		assert.Equal(t, "ideaflow-api", body["service"])
	}
}

func TestAtomFeed(t *testing.T) {
	f := newFixture(t, false)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed.atom", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/atom+xml")
	assert.Contains(t, rec.Body.String(), "Solar kiosks")
	assert.Contains(t, rec.Body.String(), "Markets need phone charging")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"first line\nsecond", 80, "first line"},
		{"abcdefgh", 3, "abc…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestChangeEvent(t *testing.T) {
	event := changeEvent(store.Change{
		Version:  3,
		Entities: map[models.Kind][]string{models.KindPost: {"p1"}},
	})
	assert.Equal(t, notify.TypeEntityChanged, event.Type)
	assert.Equal(t, []string{"post:p1"}, event.EntityIDs)
}
