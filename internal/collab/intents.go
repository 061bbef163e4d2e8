package collab

import "github.com/ideaflow/ideaflow/internal/models"

type SupportIntent struct {
	ActorID       string            `json:"actorId"`
	Target        models.ContentRef `json:"target"`
	WasSupporting bool              `json:"wasSupporting"`
}

// RatingIntent carries the previous score, nil when the actor had not rated
// the criterion yet.
type RatingIntent struct {
	ActorID       string `json:"actorId"`
	IdeaID        string `json:"ideaId"`
	CriterionID   string `json:"criterionId"`
	Score         int    `json:"score"`
	PreviousScore *int   `json:"previousScore,omitempty"`
}

type ReplyIntent struct {
	ActorID string       `json:"actorId"`
	PostID  string       `json:"postId"`
	Reply   models.Reply `json:"reply"`
}

type ReplyLikeIntent struct {
	ActorID  string `json:"actorId"`
	PostID   string `json:"postId"`
	ReplyID  string `json:"replyId"`
	WasLiked bool   `json:"wasLiked"`
}

type CreatePostIntent struct {
	ActorID string      `json:"actorId"`
	Post    models.Post `json:"post"`
}

type CreateIdeaIntent struct {
	ActorID string      `json:"actorId"`
	Idea    models.Idea `json:"idea"`
}

type CreateTopicIntent struct {
	ActorID string                 `json:"actorId"`
	Topic   models.DiscussionTopic `json:"topic"`
}

type TopicPostIntent struct {
	ActorID string                `json:"actorId"`
	TopicID string                `json:"topicId"`
	Post    models.DiscussionPost `json:"post"`
}

type TopicUpvoteIntent struct {
	ActorID    string `json:"actorId"`
	TopicID    string `json:"topicId"`
	PostID     string `json:"postId"`
	WasUpvoted bool   `json:"wasUpvoted"`
}

// AnswerIntent marks PostID as the accepted answer. An empty PostID clears it.
type AnswerIntent struct {
	ActorID          string `json:"actorId"`
	TopicID          string `json:"topicId"`
	PostID           string `json:"postId"`
	PreviousAnswerID string `json:"previousAnswerId,omitempty"`
}

type MembershipIntent struct {
	ActorID     string `json:"actorId"`
	CommunityID string `json:"communityId"`
	WasMember   bool   `json:"wasMember"`
}

type ReportIntent struct {
	ActorID string            `json:"actorId"`
	Target  models.ContentRef `json:"target"`
	Reason  string            `json:"reason"`
}
