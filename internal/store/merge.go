package store

import (
	"time"

	"github.com/ideaflow/ideaflow/internal/models"
)

// Merge rules shared by every kind: scalar fields take the incoming value when
// it is set, relationship arrays take the incoming value only when it is
// non-empty. A partial payload therefore never erases a known relationship.

func pick[T comparable](incoming, existing T) T {
	var zero T
	if incoming != zero {
		return incoming
	}
	return existing
}

func pickTime(incoming, existing time.Time) time.Time {
	if !incoming.IsZero() {
		return incoming
	}
	return existing
}

func pickSlice[T any](incoming, existing []T) []T {
	if len(incoming) > 0 {
		return incoming
	}
	return existing
}

func pickSet(incoming, existing models.IDSet) models.IDSet {
	if !incoming.IsEmpty() {
		return incoming
	}
	return existing
}

func pickPtr[T any](incoming, existing *T) *T {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergeUser(existing, incoming models.User) models.User {
	return models.User{
		ID:          existing.ID,
		DisplayName: pick(incoming.DisplayName, existing.DisplayName),
		Bio:         pick(incoming.Bio, existing.Bio),
		AvatarURL:   pick(incoming.AvatarURL, existing.AvatarURL),
		Location:    pick(incoming.Location, existing.Location),
		Registered:  existing.Registered || incoming.Registered,
		CreatedAt:   pickTime(incoming.CreatedAt, existing.CreatedAt),
	}
}

func mergePost(existing, incoming models.Post) models.Post {
	return models.Post{
		ID:           existing.ID,
		Content:      pick(incoming.Content, existing.Content),
		AuthorID:     pick(incoming.AuthorID, existing.AuthorID),
		CreatedAt:    pickTime(incoming.CreatedAt, existing.CreatedAt),
		Supporters:   pickSet(incoming.Supporters, existing.Supporters),
		Replies:      pickSlice(incoming.Replies, existing.Replies),
		SourcePosts:  pickSlice(incoming.SourcePosts, existing.SourcePosts),
		DerivedIdeas: pickSlice(incoming.DerivedIdeas, existing.DerivedIdeas),
		DerivedPosts: pickSlice(incoming.DerivedPosts, existing.DerivedPosts),
		Moderation:   pickPtr(incoming.Moderation, existing.Moderation),
	}
}

func mergeIdea(existing, incoming models.Idea) models.Idea {
	return models.Idea{
		ID:             existing.ID,
		Title:          pick(incoming.Title, existing.Title),
		Summary:        pick(incoming.Summary, existing.Summary),
		Description:    pick(incoming.Description, existing.Description),
		CreatorIDs:     pickSlice(incoming.CreatorIDs, existing.CreatorIDs),
		Supporters:     pickSet(incoming.Supporters, existing.Supporters),
		Ratings:        pickSlice(incoming.Ratings, existing.Ratings),
		RatingCriteria: pickSlice(incoming.RatingCriteria, existing.RatingCriteria),
		Tags:           pickSlice(incoming.Tags, existing.Tags),
		Status:         pick(incoming.Status, existing.Status),
		SourceIdeas:    pickSlice(incoming.SourceIdeas, existing.SourceIdeas),
		SourcePosts:    pickSlice(incoming.SourcePosts, existing.SourcePosts),
		DerivedIdeas:   pickSlice(incoming.DerivedIdeas, existing.DerivedIdeas),
		DiscussionIDs:  pickSlice(incoming.DiscussionIDs, existing.DiscussionIDs),
		CreatedAt:      pickTime(incoming.CreatedAt, existing.CreatedAt),
		UpdatedAt:      pickTime(incoming.UpdatedAt, existing.UpdatedAt),
	}
}

func mergeTopic(existing, incoming models.DiscussionTopic) models.DiscussionTopic {
	return models.DiscussionTopic{
		ID:             existing.ID,
		IdeaID:         pick(incoming.IdeaID, existing.IdeaID),
		Title:          pick(incoming.Title, existing.Title),
		Type:           pick(incoming.Type, existing.Type),
		AuthorID:       pick(incoming.AuthorID, existing.AuthorID),
		Posts:          pickSlice(incoming.Posts, existing.Posts),
		AcceptedPostID: pick(incoming.AcceptedPostID, existing.AcceptedPostID),
		CreatedAt:      pickTime(incoming.CreatedAt, existing.CreatedAt),
	}
}

func mergeCommunity(existing, incoming models.Community) models.Community {
	return models.Community{
		ID:          existing.ID,
		Name:        pick(incoming.Name, existing.Name),
		Description: pick(incoming.Description, existing.Description),
		CreatorID:   pick(incoming.CreatorID, existing.CreatorID),
		Tags:        pickSlice(incoming.Tags, existing.Tags),
		MemberCount: pick(incoming.MemberCount, existing.MemberCount),
		CreatedAt:   pickTime(incoming.CreatedAt, existing.CreatedAt),
	}
}

func mergeMembership(existing, incoming models.CommunityMembership) models.CommunityMembership {
	return models.CommunityMembership{
		UserID:      existing.UserID,
		CommunityID: existing.CommunityID,
		Role:        pick(incoming.Role, existing.Role),
		JoinedAt:    pickTime(incoming.JoinedAt, existing.JoinedAt),
	}
}
