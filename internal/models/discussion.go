package models

import "time"

// TopicType classifies a discussion topic.
type TopicType string

const (
	TopicGeneral    TopicType = "general"
	TopicQuestion   TopicType = "question"
	TopicSuggestion TopicType = "suggestion"
	TopicTechnical  TopicType = "technical"
)

// Valid reports whether t is a known topic type.
func (t TopicType) Valid() bool {
	switch t {
	case TopicGeneral, TopicQuestion, TopicSuggestion, TopicTechnical:
		return true
	}
	return false
}

// DiscussionTopic is a thread attached to an idea. At most one post is the
// accepted answer, recorded in AcceptedPostID.
type DiscussionTopic struct {
	ID             string           `json:"id"`
	IdeaID         string           `json:"ideaId,omitempty"`
	Title          string           `json:"title,omitempty"`
	Type           TopicType        `json:"type,omitempty"`
	AuthorID       string           `json:"authorId,omitempty"`
	Author         *User            `json:"author,omitempty"`
	Posts          []DiscussionPost `json:"posts,omitempty"`
	AcceptedPostID string           `json:"acceptedPostId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func (DiscussionTopic) Kind() Kind { return KindTopic }

func (t DiscussionTopic) EntityID() string { return t.ID }

// PostIndex returns the index of the post with the given id, or -1.
func (t DiscussionTopic) PostIndex(postID string) int {
	for i, post := range t.Posts {
		if post.ID == postID {
			return i
		}
	}
	return -1
}

// DiscussionPost is an entry embedded in a topic.
type DiscussionPost struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *User     `json:"author,omitempty"`
	Content   string    `json:"content"`
	Upvotes   IDSet     `json:"upvotes"`
	CreatedAt time.Time `json:"createdAt"`
}
