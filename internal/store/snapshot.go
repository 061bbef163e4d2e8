package store

import (
	"sort"

	"github.com/ideaflow/ideaflow/internal/models"
)

// Snapshot is an immutable view of the entity table. A snapshot is never
// modified after it has been committed; writers build a new one.
type Snapshot struct {
	version     uint64
	users       map[string]models.User
	posts       map[string]models.Post
	ideas       map[string]models.Idea
	topics      map[string]models.DiscussionTopic
	communities map[string]models.Community
	memberships map[string]models.CommunityMembership
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		users:       map[string]models.User{},
		posts:       map[string]models.Post{},
		ideas:       map[string]models.Idea{},
		topics:      map[string]models.DiscussionTopic{},
		communities: map[string]models.Community{},
		memberships: map[string]models.CommunityMembership{},
	}
}

// Version increases by one on every commit.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Get returns the record of the given kind and id.
func (s *Snapshot) Get(kind models.Kind, id string) (models.Entity, bool) {
	switch kind {
	case models.KindUser:
		v, ok := s.users[id]
		return v, ok
	case models.KindPost:
		v, ok := s.posts[id]
		return v, ok
	case models.KindIdea:
		v, ok := s.ideas[id]
		return v, ok
	case models.KindTopic:
		v, ok := s.topics[id]
		return v, ok
	case models.KindCommunity:
		v, ok := s.communities[id]
		return v, ok
	case models.KindMembership:
		v, ok := s.memberships[id]
		return v, ok
	}
	return nil, false
}

func (s *Snapshot) User(id string) (models.User, bool) {
	v, ok := s.users[id]
	return v, ok
}

func (s *Snapshot) Post(id string) (models.Post, bool) {
	v, ok := s.posts[id]
	return v, ok
}

func (s *Snapshot) Idea(id string) (models.Idea, bool) {
	v, ok := s.ideas[id]
	return v, ok
}

func (s *Snapshot) Topic(id string) (models.DiscussionTopic, bool) {
	v, ok := s.topics[id]
	return v, ok
}

func (s *Snapshot) Community(id string) (models.Community, bool) {
	v, ok := s.communities[id]
	return v, ok
}

func (s *Snapshot) Membership(userID, communityID string) (models.CommunityMembership, bool) {
	v, ok := s.memberships[models.MembershipKey(userID, communityID)]
	return v, ok
}

// Users returns all users ordered by id.
func (s *Snapshot) Users() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, v := range s.users {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Posts returns all posts ordered by id.
func (s *Snapshot) Posts() []models.Post {
	out := make([]models.Post, 0, len(s.posts))
	for _, v := range s.posts {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ideas returns all ideas ordered by id.
func (s *Snapshot) Ideas() []models.Idea {
	out := make([]models.Idea, 0, len(s.ideas))
	for _, v := range s.ideas {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Topics returns all discussion topics ordered by id.
func (s *Snapshot) Topics() []models.DiscussionTopic {
	out := make([]models.DiscussionTopic, 0, len(s.topics))
	for _, v := range s.topics {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Communities returns all communities ordered by id.
func (s *Snapshot) Communities() []models.Community {
	out := make([]models.Community, 0, len(s.communities))
	for _, v := range s.communities {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Memberships returns all memberships ordered by key.
func (s *Snapshot) Memberships() []models.CommunityMembership {
	out := make([]models.CommunityMembership, 0, len(s.memberships))
	for _, v := range s.memberships {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

// Counts reports the number of records per kind.
func (s *Snapshot) Counts() map[models.Kind]int {
	return map[models.Kind]int{
		models.KindUser:       len(s.users),
		models.KindPost:       len(s.posts),
		models.KindIdea:       len(s.ideas),
		models.KindTopic:      len(s.topics),
		models.KindCommunity:  len(s.communities),
		models.KindMembership: len(s.memberships),
	}
}
