// Package collab declares the collaborators the core talks to: fetchers that
// return full or partial entities, mutators that confirm optimistic changes,
// and the lineage source used to backfill inspiration links.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/ideaflow/ideaflow/internal/models"
)

// ErrNotFound is returned by collaborators for unknown ids.
var ErrNotFound = errors.New("collab: not found")

// FeedPage selects a window of the upstream feed.
type FeedPage struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// FeedResult is one page of the upstream feed. Refs carries the page order.
type FeedResult struct {
	Posts  []models.Post            `json:"posts"`
	Ideas  []models.Idea            `json:"ideas"`
	Refs   []models.ContentRef      `json:"refs"`
	Users  []models.User            `json:"users,omitempty"`
	Topics []models.DiscussionTopic `json:"topics,omitempty"`
}

// Fetcher loads entities. Returned records may be partial; missing
// relationship arrays are tolerated by the merge path.
type Fetcher interface {
	FetchUser(ctx context.Context, id string) (models.User, error)
	FetchPost(ctx context.Context, id string) (models.Post, error)
	FetchIdea(ctx context.Context, id string) (models.Idea, error)
	FetchTopic(ctx context.Context, id string) (models.DiscussionTopic, error)
	FetchCommunity(ctx context.Context, id string) (models.Community, error)
	FetchFeed(ctx context.Context, page FeedPage) (FeedResult, error)
	FetchRatings(ctx context.Context, ideaID string) ([]models.Rating, error)
	FetchMemberships(ctx context.Context, userID string) ([]models.CommunityMembership, error)
}

// Mutator confirms optimistic changes. Each intent carries the state the
// actor saw before the local change so the collaborator can decide add or
// remove without racing.
type Mutator interface {
	ToggleSupport(ctx context.Context, intent SupportIntent) error
	RateIdea(ctx context.Context, intent RatingIntent) ([]models.Rating, error)
	AddReply(ctx context.Context, intent ReplyIntent) (models.Reply, error)
	ToggleReplyLike(ctx context.Context, intent ReplyLikeIntent) error
	CreatePost(ctx context.Context, intent CreatePostIntent) (models.Post, error)
	CreateIdea(ctx context.Context, intent CreateIdeaIntent) (models.Idea, error)
	CreateTopic(ctx context.Context, intent CreateTopicIntent) (models.DiscussionTopic, error)
	AddTopicPost(ctx context.Context, intent TopicPostIntent) (models.DiscussionPost, error)
	ToggleTopicPostUpvote(ctx context.Context, intent TopicUpvoteIntent) error
	MarkAnswer(ctx context.Context, intent AnswerIntent) error
	ToggleMembership(ctx context.Context, intent MembershipIntent) error
	ReportContent(ctx context.Context, intent ReportIntent) error
}

// LineageSource reports the known parents and children of an item.
type LineageSource interface {
	Lineage(ctx context.Context, ref models.ContentRef) (LineageResult, error)
}

// Stub is the minimal record a lineage lookup returns for a related item.
type Stub struct {
	Ref       models.ContentRef `json:"ref"`
	Title     string            `json:"title,omitempty"`
	Excerpt   string            `json:"excerpt,omitempty"`
	Authors   []models.User     `json:"authors,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Entity upgrades the stub into a partial post or idea. The excerpt becomes
// the post content or idea summary, so it is only meant for items the cache
// does not hold yet.
func (s Stub) Entity() models.Entity {
	switch s.Ref.Type {
	case models.ContentPost:
		post := models.Post{ID: s.Ref.ID, Content: s.Excerpt, CreatedAt: s.CreatedAt}
		if len(s.Authors) > 0 {
			author := s.Authors[0]
			post.Author = &author
		}
		return post
	case models.ContentIdea:
		return models.Idea{
			ID:        s.Ref.ID,
			Title:     s.Title,
			Summary:   s.Excerpt,
			Creators:  append([]models.User(nil), s.Authors...),
			CreatedAt: s.CreatedAt,
		}
	}
	return nil
}

// LineageResult lists the backward and forward neighbours of an item.
type LineageResult struct {
	Parents  []Stub `json:"parents"`
	Children []Stub `json:"children"`
}
