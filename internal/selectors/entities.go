// Package selectors computes read-only views over a store snapshot. Every
// function is pure: it never writes to the snapshot and returns fresh slices.
package selectors

import (
	"sort"

	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
)

// CurrentUser resolves the session user. An empty id means nobody is signed in.
func CurrentUser(s *store.Snapshot, userID string) (models.User, bool) {
	if userID == "" {
		return models.User{}, false
	}
	return s.User(userID)
}

func UserByID(s *store.Snapshot, id string) (models.User, bool) {
	return s.User(id)
}

// PostByID returns the post with its author and reply authors resolved.
func PostByID(s *store.Snapshot, id string) (models.Post, bool) {
	post, ok := s.Post(id)
	if !ok {
		return models.Post{}, false
	}
	return HydratePost(s, post), true
}

// IdeaByID returns the idea with its creators resolved.
func IdeaByID(s *store.Snapshot, id string) (models.Idea, bool) {
	idea, ok := s.Idea(id)
	if !ok {
		return models.Idea{}, false
	}
	return HydrateIdea(s, idea), true
}

func TopicByID(s *store.Snapshot, id string) (models.DiscussionTopic, bool) {
	topic, ok := s.Topic(id)
	if !ok {
		return models.DiscussionTopic{}, false
	}
	return HydrateTopic(s, topic), true
}

func CommunityByID(s *store.Snapshot, id string) (models.Community, bool) {
	return s.Community(id)
}

func MembershipFor(s *store.Snapshot, userID, communityID string) (models.CommunityMembership, bool) {
	return s.Membership(userID, communityID)
}

// HydratePost fills embedded author pointers from the user table. The input
// is copied; the stored record keeps ids only.
func HydratePost(s *store.Snapshot, post models.Post) models.Post {
	post.Author = lookupUser(s, post.AuthorID)
	if len(post.Replies) > 0 {
		replies := make([]models.Reply, len(post.Replies))
		for i, reply := range post.Replies {
			reply.Author = lookupUser(s, reply.AuthorID)
			replies[i] = reply
		}
		post.Replies = replies
	}
	return post
}

func HydrateIdea(s *store.Snapshot, idea models.Idea) models.Idea {
	if len(idea.CreatorIDs) == 0 {
		return idea
	}
	creators := make([]models.User, 0, len(idea.CreatorIDs))
	for _, id := range idea.CreatorIDs {
		if user, ok := s.User(id); ok {
			creators = append(creators, user)
		}
	}
	idea.Creators = creators
	return idea
}

func HydrateTopic(s *store.Snapshot, topic models.DiscussionTopic) models.DiscussionTopic {
	topic.Author = lookupUser(s, topic.AuthorID)
	if len(topic.Posts) > 0 {
		posts := make([]models.DiscussionPost, len(topic.Posts))
		for i, post := range topic.Posts {
			post.Author = lookupUser(s, post.AuthorID)
			posts[i] = post
		}
		topic.Posts = posts
	}
	return topic
}

func lookupUser(s *store.Snapshot, id string) *models.User {
	if id == "" {
		return nil
	}
	user, ok := s.User(id)
	if !ok {
		return nil
	}
	return &user
}

// PublishedIdeas returns published and featured ideas, newest first.
func PublishedIdeas(s *store.Snapshot) []models.Idea {
	return filterIdeas(s, func(i models.Idea) bool { return i.Published() })
}

// DraftIdeas returns the drafts co-authored by userID, newest first.
func DraftIdeas(s *store.Snapshot, userID string) []models.Idea {
	return filterIdeas(s, func(i models.Idea) bool {
		return i.Status == models.IdeaDraft && i.IsCreator(userID)
	})
}

// IdeasByAuthor returns every idea userID co-authored, newest first.
func IdeasByAuthor(s *store.Snapshot, userID string) []models.Idea {
	return filterIdeas(s, func(i models.Idea) bool { return i.IsCreator(userID) })
}

// PostsByAuthor returns the posts written by userID, newest first.
func PostsByAuthor(s *store.Snapshot, userID string) []models.Post {
	var out []models.Post
	for _, post := range s.Posts() {
		if post.AuthorID == userID {
			out = append(out, post)
		}
	}
	sortPosts(out)
	return out
}

// TopicsForIdea returns the discussion topics attached to ideaID, oldest first.
func TopicsForIdea(s *store.Snapshot, ideaID string) []models.DiscussionTopic {
	var out []models.DiscussionTopic
	for _, topic := range s.Topics() {
		if topic.IdeaID == ideaID {
			out = append(out, topic)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CommunitiesForUser returns the communities userID belongs to, by name.
func CommunitiesForUser(s *store.Snapshot, userID string) []models.Community {
	var out []models.Community
	for _, membership := range s.Memberships() {
		if membership.UserID != userID {
			continue
		}
		if community, ok := s.Community(membership.CommunityID); ok {
			out = append(out, community)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func filterIdeas(s *store.Snapshot, keep func(models.Idea) bool) []models.Idea {
	var out []models.Idea
	for _, idea := range s.Ideas() {
		if keep(idea) {
			out = append(out, idea)
		}
	}
	sortIdeas(out)
	return out
}

// Snapshot listings are ordered by id, so stable sorts give deterministic ties.
func sortIdeas(ideas []models.Idea) {
	sort.SliceStable(ideas, func(i, j int) bool {
		return ideas[i].CreatedAt.After(ideas[j].CreatedAt)
	})
}

func sortPosts(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
