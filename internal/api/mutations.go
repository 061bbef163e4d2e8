package api

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/mutation"
)

// Mutation handlers pass the session actor through unchanged; the service
// rejects anonymous calls. Targets missing from the table are loaded first
// so the optimistic change has something to apply to.

func (r *Router) toggleSupport(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p refParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ref, err := p.ref()
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, kindOf(ref), ref.ID)
	return r.service.ToggleSupport(ctx, actorID(c), ref)
}

func kindOf(ref models.ContentRef) models.Kind {
	if ref.Type == models.ContentIdea {
		return models.KindIdea
	}
	return models.KindPost
}

type rateIdeaParams struct {
	IdeaID      string `json:"ideaId"`
	CriterionID string `json:"criterionId"`
	Score       int    `json:"score"`
}

func (r *Router) rateIdea(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p rateIdeaParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindIdea, p.IdeaID)
	return r.service.RateIdea(ctx, actorID(c), p.IdeaID, p.CriterionID, p.Score)
}

type replyParams struct {
	PostID  string `json:"postId"`
	ReplyID string `json:"replyId"`
	Content string `json:"content"`
}

func (r *Router) addReply(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p replyParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindPost, p.PostID)
	return r.service.AddReply(ctx, actorID(c), p.PostID, p.Content)
}

func (r *Router) toggleReplyLike(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p replyParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindPost, p.PostID)
	return r.service.ToggleReplyLike(ctx, actorID(c), p.PostID, p.ReplyID)
}

type createPostParams struct {
	Content     string   `json:"content"`
	SourcePosts []string `json:"sourcePosts"`
}

func (r *Router) createPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p createPostParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	for _, id := range p.SourcePosts {
		r.ensure(ctx, models.KindPost, id)
	}
	return r.service.CreatePost(ctx, actorID(c), p.Content, p.SourcePosts)
}

func (r *Router) createIdea(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var draft mutation.IdeaDraft
	if err := bind(params, &draft); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	for _, id := range draft.SourcePosts {
		r.ensure(ctx, models.KindPost, id)
	}
	for _, id := range draft.SourceIdeas {
		r.ensure(ctx, models.KindIdea, id)
	}
	return r.service.CreateIdea(ctx, actorID(c), draft)
}

type createTopicParams struct {
	IdeaID  string           `json:"ideaId"`
	Title   string           `json:"title"`
	Type    models.TopicType `json:"type"`
	Content string           `json:"content"`
}

func (r *Router) createTopic(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p createTopicParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindIdea, p.IdeaID)
	return r.service.CreateTopic(ctx, actorID(c), p.IdeaID, p.Title, p.Type, p.Content)
}

type topicPostParams struct {
	TopicID string `json:"topicId"`
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

func (r *Router) addTopicPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p topicPostParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindTopic, p.TopicID)
	return r.service.AddTopicPost(ctx, actorID(c), p.TopicID, p.Content)
}

func (r *Router) toggleTopicUpvote(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p topicPostParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindTopic, p.TopicID)
	return r.service.ToggleTopicPostUpvote(ctx, actorID(c), p.TopicID, p.PostID)
}

func (r *Router) markAnswer(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p topicPostParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindTopic, p.TopicID)
	return r.service.MarkAnswer(ctx, actorID(c), p.TopicID, p.PostID)
}

type communityParams struct {
	CommunityID string `json:"communityId"`
}

func (r *Router) toggleMembership(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p communityParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, models.KindCommunity, p.CommunityID)
	return r.service.ToggleMembership(ctx, actorID(c), p.CommunityID)
}

type reportParams struct {
	Type   models.ContentType `json:"type"`
	ID     string             `json:"id"`
	Reason string             `json:"reason"`
}

func (r *Router) reportContent(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p reportParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ref, err := refParams{Type: p.Type, ID: p.ID}.ref()
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	r.ensure(ctx, kindOf(ref), ref.ID)
	if err := r.service.ReportContent(ctx, actorID(c), ref, p.Reason); err != nil {
		return nil, err
	}
	return gin.H{"reported": true}, nil
}

type markSeenParams struct {
	Refs []models.ContentRef `json:"refs"`
}

func (r *Router) markSeen(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p markSeenParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	actor := actorID(c)
	if actor == "" {
		return nil, NewError(ErrUnauthenticated, "sign in to track seen items")
	}
	for _, ref := range p.Refs {
		if !ref.Type.Valid() || ref.ID == "" {
			return nil, NewError(ErrInvalidParams, fmt.Sprintf("invalid ref %q", ref.Key()))
		}
	}
	seen := r.seen.MarkSeen(c.Request.Context(), actor, p.Refs...)
	return gin.H{"seen": seen.Len()}, nil
}

// reconcile replaces a cached post or idea with the authoritative copy,
// dropping optimistic state a failed confirmation left behind.
func (r *Router) reconcile(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p refParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	ref, err := p.ref()
	if err != nil {
		return nil, err
	}
	if r.sync == nil {
		return nil, NewError(ErrServerError, "reconcile needs an upstream source")
	}
	if err := r.sync.Reconcile(c.Request.Context(), ref); err != nil {
		return nil, err
	}
	kind := models.KindPost
	if ref.Type == models.ContentIdea {
		kind = models.KindIdea
	}
	_, present := r.table.Snapshot().Get(kind, ref.ID)
	return gin.H{"ref": ref, "present": present}, nil
}
