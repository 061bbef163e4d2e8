// Package remote implements the collaborator contracts over JSON-RPC.
package remote

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/pkg/config"
	"github.com/ideaflow/ideaflow/pkg/logging"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

const methodPrefix = "ideaflow."

// Client talks to an upstream ideaflow service.
type Client struct {
	rpc    *RPCClient
	logger *zap.Logger
}

var (
	_ collab.Fetcher       = (*Client)(nil)
	_ collab.Mutator       = (*Client)(nil)
	_ collab.LineageSource = (*Client)(nil)
)

// New creates a new remote client
func New(cfg *config.RemoteConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote_url is required")
	}

	logger := logging.WithComponent("remote-client")
	client := &Client{
		rpc:    NewRPCClient(cfg.URL, cfg.Timeout, logger),
		logger: logger,
	}

	logger.Info("Remote client initialized", zap.String("url", cfg.URL))
	return client, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	ctx, span := telemetry.StartSpan(ctx, "remote."+method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", methodPrefix+method))

	err := c.rpc.Call(ctx, methodPrefix+method, params, result)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeNotFound {
		return fmt.Errorf("%s: %w", method, collab.ErrNotFound)
	}
	return err
}

type idParams struct {
	ID string `json:"id"`
}

func (c *Client) FetchUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := c.call(ctx, "fetch_user", idParams{ID: id}, &user)
	return user, err
}

func (c *Client) FetchPost(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	err := c.call(ctx, "fetch_post", idParams{ID: id}, &post)
	return post, err
}

func (c *Client) FetchIdea(ctx context.Context, id string) (models.Idea, error) {
	var idea models.Idea
	err := c.call(ctx, "fetch_idea", idParams{ID: id}, &idea)
	return idea, err
}

func (c *Client) FetchTopic(ctx context.Context, id string) (models.DiscussionTopic, error) {
	var topic models.DiscussionTopic
	err := c.call(ctx, "fetch_topic", idParams{ID: id}, &topic)
	return topic, err
}

func (c *Client) FetchCommunity(ctx context.Context, id string) (models.Community, error) {
	var community models.Community
	err := c.call(ctx, "fetch_community", idParams{ID: id}, &community)
	return community, err
}

func (c *Client) FetchFeed(ctx context.Context, page collab.FeedPage) (collab.FeedResult, error) {
	var result collab.FeedResult
	err := c.call(ctx, "fetch_feed", page, &result)
	return result, err
}

func (c *Client) FetchRatings(ctx context.Context, ideaID string) ([]models.Rating, error) {
	var ratings []models.Rating
	err := c.call(ctx, "fetch_ratings", idParams{ID: ideaID}, &ratings)
	return ratings, err
}

func (c *Client) FetchMemberships(ctx context.Context, userID string) ([]models.CommunityMembership, error) {
	var memberships []models.CommunityMembership
	err := c.call(ctx, "fetch_memberships", idParams{ID: userID}, &memberships)
	return memberships, err
}

// Lineage returns the parents and children of ref.
func (c *Client) Lineage(ctx context.Context, ref models.ContentRef) (collab.LineageResult, error) {
	var result collab.LineageResult
	err := c.call(ctx, "lineage", ref, &result)
	return result, err
}

func (c *Client) ToggleSupport(ctx context.Context, intent collab.SupportIntent) error {
	return c.call(ctx, "confirm_support", intent, nil)
}

func (c *Client) RateIdea(ctx context.Context, intent collab.RatingIntent) ([]models.Rating, error) {
	var ratings []models.Rating
	err := c.call(ctx, "confirm_rating", intent, &ratings)
	return ratings, err
}

func (c *Client) AddReply(ctx context.Context, intent collab.ReplyIntent) (models.Reply, error) {
	var reply models.Reply
	err := c.call(ctx, "confirm_reply", intent, &reply)
	return reply, err
}

func (c *Client) ToggleReplyLike(ctx context.Context, intent collab.ReplyLikeIntent) error {
	return c.call(ctx, "confirm_reply_like", intent, nil)
}

func (c *Client) CreatePost(ctx context.Context, intent collab.CreatePostIntent) (models.Post, error) {
	var post models.Post
	err := c.call(ctx, "confirm_post", intent, &post)
	return post, err
}

func (c *Client) CreateIdea(ctx context.Context, intent collab.CreateIdeaIntent) (models.Idea, error) {
	var idea models.Idea
	err := c.call(ctx, "confirm_idea", intent, &idea)
	return idea, err
}

func (c *Client) CreateTopic(ctx context.Context, intent collab.CreateTopicIntent) (models.DiscussionTopic, error) {
	var topic models.DiscussionTopic
	err := c.call(ctx, "confirm_topic", intent, &topic)
	return topic, err
}

func (c *Client) AddTopicPost(ctx context.Context, intent collab.TopicPostIntent) (models.DiscussionPost, error) {
	var post models.DiscussionPost
	err := c.call(ctx, "confirm_topic_post", intent, &post)
	return post, err
}

func (c *Client) ToggleTopicPostUpvote(ctx context.Context, intent collab.TopicUpvoteIntent) error {
	return c.call(ctx, "confirm_topic_upvote", intent, nil)
}

func (c *Client) MarkAnswer(ctx context.Context, intent collab.AnswerIntent) error {
	return c.call(ctx, "confirm_answer", intent, nil)
}

func (c *Client) ToggleMembership(ctx context.Context, intent collab.MembershipIntent) error {
	return c.call(ctx, "confirm_membership", intent, nil)
}

func (c *Client) ReportContent(ctx context.Context, intent collab.ReportIntent) error {
	return c.call(ctx, "confirm_report", intent, nil)
}
