package models

import "time"

// Post is short-form content.
type Post struct {
	ID           string      `json:"id"`
	Content      string      `json:"content,omitempty"`
	AuthorID     string      `json:"authorId,omitempty"`
	Author       *User       `json:"author,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	Supporters   IDSet       `json:"supporters"`
	Replies      []Reply     `json:"replies,omitempty"`
	SourcePosts  []string    `json:"sourcePosts,omitempty"`
	DerivedIdeas []string    `json:"derivedIdeas,omitempty"`
	DerivedPosts []string    `json:"derivedPosts,omitempty"`
	Moderation   *Moderation `json:"moderation,omitempty"`
}

func (Post) Kind() Kind { return KindPost }

func (p Post) EntityID() string { return p.ID }

// Ref returns the lineage reference of the post.
func (p Post) Ref() ContentRef { return PostRef(p.ID) }

// Hidden reports whether moderation removed the post from listings.
func (p Post) Hidden() bool {
	return p.Moderation != nil && p.Moderation.Hidden
}

// HasReplyFrom reports whether userID wrote any reply on the post.
func (p Post) HasReplyFrom(userID string) bool {
	for _, reply := range p.Replies {
		if reply.AuthorID == userID {
			return true
		}
	}
	return false
}

// Reply is a reply record embedded in a post.
type Reply struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *User     `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Likes     IDSet     `json:"likes"`
}

// Moderation carries externally applied moderation state.
type Moderation struct {
	Hidden  bool   `json:"hidden"`
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason,omitempty"`
}
