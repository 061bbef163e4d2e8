package models

import "fmt"

// Kind identifies an entity slice of the cache.
type Kind string

const (
	KindUser       Kind = "user"
	KindPost       Kind = "post"
	KindIdea       Kind = "idea"
	KindTopic      Kind = "topic"
	KindCommunity  Kind = "community"
	KindMembership Kind = "membership"
)

// Entity is implemented by every record the cache can hold.
type Entity interface {
	Kind() Kind
	EntityID() string
}

// ContentType distinguishes the two lineage-bearing kinds.
type ContentType string

const (
	ContentPost ContentType = "post"
	ContentIdea ContentType = "idea"
)

// Valid reports whether t names a known content type.
func (t ContentType) Valid() bool {
	return t == ContentPost || t == ContentIdea
}

// ContentRef points at a post or an idea.
type ContentRef struct {
	Type ContentType `json:"type"`
	ID   string      `json:"id"`
}

// PostRef returns a reference to the post with the given id.
func PostRef(id string) ContentRef {
	return ContentRef{Type: ContentPost, ID: id}
}

// IdeaRef returns a reference to the idea with the given id.
func IdeaRef(id string) ContentRef {
	return ContentRef{Type: ContentIdea, ID: id}
}

// Key returns the "type:id" form used for visited sets and map keys.
func (r ContentRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// IsZero reports whether the reference is unset.
func (r ContentRef) IsZero() bool {
	return r.ID == ""
}
