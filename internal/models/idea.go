package models

import "time"

// IdeaStatus is the publication state of an idea.
type IdeaStatus string

const (
	IdeaDraft     IdeaStatus = "draft"
	IdeaPublished IdeaStatus = "published"
	IdeaFeatured  IdeaStatus = "featured"
)

// Idea is structured, possibly co-authored content.
type Idea struct {
	ID             string            `json:"id"`
	Title          string            `json:"title,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Description    string            `json:"description,omitempty"`
	CreatorIDs     []string          `json:"creatorIds,omitempty"`
	Creators       []User            `json:"creators,omitempty"`
	Supporters     IDSet             `json:"supporters"`
	Ratings        []Rating          `json:"ratings,omitempty"`
	RatingCriteria []RatingCriterion `json:"ratingCriteria,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Status         IdeaStatus        `json:"status,omitempty"`
	SourceIdeas    []string          `json:"sourceIdeas,omitempty"`
	SourcePosts    []string          `json:"sourcePosts,omitempty"`
	DerivedIdeas   []string          `json:"derivedIdeas,omitempty"`
	DiscussionIDs  []string          `json:"discussionIds,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (Idea) Kind() Kind { return KindIdea }

func (i Idea) EntityID() string { return i.ID }

// Ref returns the lineage reference of the idea.
func (i Idea) Ref() ContentRef { return IdeaRef(i.ID) }

// IsCreator reports whether userID co-authored the idea.
func (i Idea) IsCreator(userID string) bool {
	for _, id := range i.CreatorIDs {
		if id == userID {
			return true
		}
	}
	for _, creator := range i.Creators {
		if creator.ID == userID {
			return true
		}
	}
	return false
}

// HasRatingFrom reports whether userID rated the idea on any criterion.
func (i Idea) HasRatingFrom(userID string) bool {
	for _, rating := range i.Ratings {
		if rating.UserID == userID {
			return true
		}
	}
	return false
}

// Published reports whether the idea is visible outside its creators.
func (i Idea) Published() bool {
	return i.Status == IdeaPublished || i.Status == IdeaFeatured
}

// Rating is one user's score on one criterion.
type Rating struct {
	UserID      string    `json:"userId"`
	CriterionID string    `json:"criterionId"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RatingCriterion is one entry of an idea's scoring rubric.
type RatingCriterion struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MaxScore    int    `json:"maxScore"`
}
