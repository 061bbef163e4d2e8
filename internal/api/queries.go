package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/selectors"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

type idParams struct {
	ID string `json:"id"`
}

type refParams struct {
	Type models.ContentType `json:"type"`
	ID   string             `json:"id"`
}

func (p refParams) ref() (models.ContentRef, error) {
	if !p.Type.Valid() || p.ID == "" {
		return models.ContentRef{}, NewError(ErrInvalidParams, "type must be post or idea and id is required")
	}
	return models.ContentRef{Type: p.Type, ID: p.ID}, nil
}

func bindID(params json.RawMessage) (string, error) {
	var p idParams
	if err := bind(params, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", NewError(ErrInvalidParams, "id is required")
	}
	return p.ID, nil
}

// ensure loads kind/id through the sync layer when the table lacks it.
// Lookup failures other than not-found are logged and the cached state is
// served.
func (r *Router) ensure(ctx context.Context, kind models.Kind, id string) {
	if r.sync == nil {
		return
	}
	if _, ok := r.table.Snapshot().Get(kind, id); ok {
		return
	}
	if err := r.sync.Load(ctx, kind, id); err != nil && !errors.Is(err, collab.ErrNotFound) {
		r.logger.Warn("on-demand load failed",
			zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
}

func (r *Router) getCurrentUser(c *gin.Context, _ json.RawMessage) (interface{}, error) {
	user, ok := selectors.CurrentUser(r.table.Snapshot(), actorID(c))
	if !ok {
		return nil, nil
	}
	return user, nil
}

func (r *Router) getUser(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := bindID(params)
	if err != nil {
		return nil, err
	}
	r.ensure(c.Request.Context(), models.KindUser, id)
	user, ok := selectors.UserByID(r.table.Snapshot(), id)
	if !ok {
		return nil, notFound("user", id)
	}
	return user, nil
}

func (r *Router) getPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := bindID(params)
	if err != nil {
		return nil, err
	}
	r.ensure(c.Request.Context(), models.KindPost, id)
	post, ok := selectors.PostByID(r.table.Snapshot(), id)
	if !ok || post.Hidden() {
		return nil, notFound("post", id)
	}
	return post, nil
}

func (r *Router) getIdea(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := bindID(params)
	if err != nil {
		return nil, err
	}
	r.ensure(c.Request.Context(), models.KindIdea, id)
	idea, ok := selectors.IdeaByID(r.table.Snapshot(), id)
	if !ok {
		return nil, notFound("idea", id)
	}
	if idea.Status == models.IdeaDraft && !idea.IsCreator(actorID(c)) {
		return nil, notFound("idea", id)
	}
	return idea, nil
}

func (r *Router) getTopic(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := bindID(params)
	if err != nil {
		return nil, err
	}
	r.ensure(c.Request.Context(), models.KindTopic, id)
	topic, ok := selectors.TopicByID(r.table.Snapshot(), id)
	if !ok {
		return nil, notFound("topic", id)
	}
	return topic, nil
}

type communityResult struct {
	models.Community
	Membership *models.CommunityMembership `json:"membership,omitempty"`
}

func (r *Router) getCommunity(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := bindID(params)
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindCommunity, id)
	snap := r.table.Snapshot()
	community, ok := selectors.CommunityByID(snap, id)
	if !ok {
		return nil, notFound("community", id)
	}

	result := communityResult{Community: community}
	if actor := actorID(c); actor != "" {
		membership, ok := selectors.MembershipFor(snap, actor, id)
		if !ok && r.loadMemberships(ctx, actor) {
			membership, ok = selectors.MembershipFor(r.table.Snapshot(), actor, id)
		}
		if ok {
			result.Membership = &membership
		}
	}
	return result, nil
}

// loadMemberships merges userID's memberships through the sync layer and
// reports whether the table may have changed.
func (r *Router) loadMemberships(ctx context.Context, userID string) bool {
	if r.sync == nil {
		return false
	}
	if err := r.sync.LoadMemberships(ctx, userID); err != nil {
		r.logger.Warn("membership load failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

func (r *Router) listCommunities(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p userParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	userID := p.UserID
	if userID == "" {
		userID = actorID(c)
	}
	if userID == "" {
		return nil, NewError(ErrInvalidParams, "userId is required")
	}
	ctx := c.Request.Context()
	if r.loadMemberships(ctx, userID) {
		for _, membership := range r.table.Snapshot().Memberships() {
			if membership.UserID == userID {
				r.ensure(ctx, models.KindCommunity, membership.CommunityID)
			}
		}
	}
	communities := selectors.CommunitiesForUser(r.table.Snapshot(), userID)
	if communities == nil {
		communities = []models.Community{}
	}
	return communities, nil
}

type listIdeasParams struct {
	AuthorID string `json:"authorId"`
	Drafts   bool   `json:"drafts"`
}

func (r *Router) listIdeas(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p listIdeasParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	snap := r.table.Snapshot()
	var ideas []models.Idea
	switch {
	case p.Drafts:
		actor := actorID(c)
		if actor == "" {
			return nil, NewError(ErrUnauthenticated, "sign in to list drafts")
		}
		ideas = selectors.DraftIdeas(snap, actor)
	case p.AuthorID != "":
		ideas = selectors.IdeasByAuthor(snap, p.AuthorID)
	default:
		ideas = selectors.PublishedIdeas(snap)
	}
	if ideas == nil {
		ideas = []models.Idea{}
	}
	return ideas, nil
}

type listPostsParams struct {
	AuthorID string `json:"authorId"`
}

func (r *Router) listPosts(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p listPostsParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.AuthorID == "" {
		return nil, NewError(ErrInvalidParams, "authorId is required")
	}
	posts := []models.Post{}
	for _, post := range selectors.PostsByAuthor(r.table.Snapshot(), p.AuthorID) {
		if !post.Hidden() {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

type listTopicsParams struct {
	IdeaID string `json:"ideaId"`
}

func (r *Router) listTopics(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p listTopicsParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.IdeaID == "" {
		return nil, NewError(ErrInvalidParams, "ideaId is required")
	}
	topics := selectors.TopicsForIdea(r.table.Snapshot(), p.IdeaID)
	if topics == nil {
		topics = []models.DiscussionTopic{}
	}
	return topics, nil
}

type feedParams struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Refresh bool `json:"refresh"`
}

func (p feedParams) page() collab.FeedPage {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return collab.FeedPage{Offset: offset, Limit: limit}
}

// feed returns one page of the combined feed. With a sync layer the page
// order comes from upstream; otherwise the local table is paged.
func (r *Router) feed(ctx context.Context, page collab.FeedPage, refresh bool) ([]selectors.FeedItem, error) {
	if r.sync != nil {
		refs, err := r.sync.Feed(ctx, page, refresh)
		if err != nil {
			return nil, err
		}
		if refs == nil {
			refs = []models.ContentRef{}
		}
		return selectors.Feed(r.table.Snapshot(), refs), nil
	}

	items := selectors.Feed(r.table.Snapshot(), nil)
	if page.Offset >= len(items) {
		return []selectors.FeedItem{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end], nil
}

func (r *Router) getFeed(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p feedParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	return r.feed(c.Request.Context(), p.page(), p.Refresh)
}

type userParams struct {
	UserID string `json:"userId"`
}

func (r *Router) getContributions(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p userParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	userID := p.UserID
	if userID == "" {
		userID = actorID(c)
	}
	if userID == "" {
		return nil, NewError(ErrInvalidParams, "userId is required")
	}
	return selectors.ContributionsFor(r.table.Snapshot(), userID), nil
}

func (r *Router) getHomeStats(_ *gin.Context, _ json.RawMessage) (interface{}, error) {
	return selectors.Stats(r.table.Snapshot()), nil
}

type searchParams struct {
	Query string `json:"query"`
}

func (r *Router) search(_ *gin.Context, params json.RawMessage) (interface{}, error) {
	var p searchParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	return selectors.Search(r.table.Snapshot(), p.Query), nil
}

type listChainsParams struct {
	// Refs restricts the chains to those reached from these items.
	Refs []models.ContentRef `json:"refs"`
}

// chainView is a ranked chain plus the node to open it at for the viewer.
type chainView struct {
	lineage.ContentChain
	Relevant *lineage.ChainNode `json:"relevant,omitempty"`
}

func (r *Router) listChains(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p listChainsParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	snap := r.table.Snapshot()
	seen := r.seen.Seen(ctx, actorID(c))

	var chains []lineage.ContentChain
	if len(p.Refs) > 0 {
		chains = r.analyzer.ChainsFor(snap, p.Refs, seen)
	} else {
		chains = r.analyzer.Chains(snap, seen)
	}
	views := make([]chainView, 0, len(chains))
	for _, chain := range chains {
		view := chainView{ContentChain: chain}
		if node, ok := lineage.PickRelevantNode(chain, seen); ok {
			view.Relevant = &node
		}
		views = append(views, view)
	}
	return views, nil
}

func (r *Router) getChainContext(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p refParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ref, err := p.ref()
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	seen := r.seen.Seen(ctx, actorID(c))
	return r.analyzer.ContextFor(r.table.Snapshot(), ref, seen), nil
}
