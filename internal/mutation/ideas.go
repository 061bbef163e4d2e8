package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
)

// RateIdea records the actor's score on one criterion, replacing an earlier
// score on the same criterion. The canonical rating list returned by the
// mutator replaces the local one.
func (s *Service) RateIdea(ctx context.Context, actorID, ideaID, criterionID string, score int) (models.Idea, error) {
	if err := requireActor(opRateIdea, actorID); err != nil {
		return models.Idea{}, err
	}
	if criterionID == "" {
		return models.Idea{}, newServiceError(opRateIdea, reasonInvalid, fmt.Errorf("%w: criterion is required", ErrInvalidInput))
	}

	var updated models.Idea
	var previous *int
	_, err := s.table.Update(func(b *store.Builder) error {
		idea, ok := b.Snapshot().Idea(ideaID)
		if !ok {
			return ErrNotFound
		}
		if err := validateScore(idea, criterionID, score); err != nil {
			return err
		}

		ratings := make([]models.Rating, 0, len(idea.Ratings)+1)
		for _, rating := range idea.Ratings {
			if rating.UserID == actorID && rating.CriterionID == criterionID {
				prev := rating.Score
				previous = &prev
				continue
			}
			ratings = append(ratings, rating)
		}
		ratings = append(ratings, models.Rating{
			UserID:      actorID,
			CriterionID: criterionID,
			Score:       score,
			CreatedAt:   s.now(),
		})
		idea.Ratings = ratings
		updated = idea
		return b.Put(idea)
	})
	if err != nil {
		return models.Idea{}, classify(opRateIdea, err)
	}

	intent := collab.RatingIntent{
		ActorID:       actorID,
		IdeaID:        ideaID,
		CriterionID:   criterionID,
		Score:         score,
		PreviousScore: previous,
	}
	s.dispatch(ctx, confirmation{
		operation:  opRateIdea,
		actorID:    actorID,
		kind:       notify.TypeRating,
		userFacing: true,
		entityIDs:  []string{ideaID},
		run: func(ctx context.Context) error {
			ratings, err := s.mutator.RateIdea(ctx, intent)
			if err != nil {
				return err
			}
			if len(ratings) == 0 {
				return nil
			}
			return s.writeBack(opRateIdea, func(b *store.Builder) error {
				if _, ok := b.Snapshot().Idea(ideaID); !ok {
					return nil
				}
				return b.Upsert(models.Idea{ID: ideaID, Ratings: ratings})
			})
		},
	})
	return updated, nil
}

func validateScore(idea models.Idea, criterionID string, score int) error {
	if score < 1 {
		return fmt.Errorf("%w: score must be positive", ErrInvalidInput)
	}
	if len(idea.RatingCriteria) == 0 {
		return nil
	}
	for _, criterion := range idea.RatingCriteria {
		if criterion.ID != criterionID {
			continue
		}
		if criterion.MaxScore > 0 && score > criterion.MaxScore {
			return fmt.Errorf("%w: score %d exceeds %d", ErrInvalidInput, score, criterion.MaxScore)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown criterion %s", ErrInvalidInput, criterionID)
}

// IdeaDraft is the input of CreateIdea.
type IdeaDraft struct {
	Title          string                   `json:"title"`
	Summary        string                   `json:"summary"`
	Description    string                   `json:"description"`
	Tags           []string                 `json:"tags"`
	Status         models.IdeaStatus        `json:"status"`
	CoCreators     []string                 `json:"coCreators"`
	SourceIdeas    []string                 `json:"sourceIdeas"`
	SourcePosts    []string                 `json:"sourcePosts"`
	RatingCriteria []models.RatingCriterion `json:"ratingCriteria"`
}

// CreateIdea publishes or drafts an idea co-authored by the actor. Source
// posts and ideas record the new idea among their derived ideas.
func (s *Service) CreateIdea(ctx context.Context, actorID string, draft IdeaDraft) (models.Idea, error) {
	if err := requireActor(opCreateIdea, actorID); err != nil {
		return models.Idea{}, err
	}
	title := s.sanitize(draft.Title)
	if title == "" {
		return models.Idea{}, newServiceError(opCreateIdea, reasonInvalid, fmt.Errorf("%w: title is required", ErrInvalidInput))
	}
	status := draft.Status
	switch status {
	case "":
		status = models.IdeaPublished
	case models.IdeaDraft, models.IdeaPublished, models.IdeaFeatured:
	default:
		return models.Idea{}, newServiceError(opCreateIdea, reasonInvalid, fmt.Errorf("%w: status %q", ErrInvalidInput, status))
	}
	id, err := s.newID(opCreateIdea)
	if err != nil {
		return models.Idea{}, err
	}

	now := s.now()
	creators := []string{actorID}
	for _, coCreator := range draft.CoCreators {
		creators = appendUnique(creators, strings.TrimSpace(coCreator))
	}
	idea := models.Idea{
		ID:             id,
		Title:          title,
		Summary:        s.sanitize(draft.Summary),
		Description:    s.sanitize(draft.Description),
		CreatorIDs:     creators,
		Supporters:     models.NewIDSet(),
		RatingCriteria: draft.RatingCriteria,
		Tags:           models.NormalizeTags(draft.Tags),
		Status:         status,
		SourceIdeas:    dedupe(draft.SourceIdeas),
		SourcePosts:    dedupe(draft.SourcePosts),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = s.table.Update(func(b *store.Builder) error {
		if err := linkIdeaSources(b, idea, ""); err != nil {
			return err
		}
		return b.Put(idea)
	})
	if err != nil {
		return models.Idea{}, classify(opCreateIdea, err)
	}

	intent := collab.CreateIdeaIntent{ActorID: actorID, Idea: idea}
	s.dispatch(ctx, confirmation{
		operation:  opCreateIdea,
		actorID:    actorID,
		kind:       notify.TypeIdea,
		userFacing: true,
		entityIDs:  []string{idea.ID},
		run: func(ctx context.Context) error {
			canonical, err := s.mutator.CreateIdea(ctx, intent)
			if err != nil {
				return err
			}
			if canonical.ID == "" {
				return nil
			}
			return s.writeBack(opCreateIdea, func(b *store.Builder) error {
				if canonical.ID != idea.ID {
					b.Remove(models.KindIdea, idea.ID)
					renamed := idea
					renamed.ID = canonical.ID
					if err := linkIdeaSources(b, renamed, idea.ID); err != nil {
						return err
					}
				}
				return b.Upsert(canonical)
			})
		},
	})
	return idea, nil
}

// linkIdeaSources adds idea to the derived ideas of each of its sources,
// replacing previousID when the idea was re-keyed.
func linkIdeaSources(b *store.Builder, idea models.Idea, previousID string) error {
	snap := b.Snapshot()
	for _, sourceID := range idea.SourceIdeas {
		source, ok := snap.Idea(sourceID)
		if !ok {
			if previousID != "" {
				continue
			}
			return fmt.Errorf("%w: source idea %s", ErrNotFound, sourceID)
		}
		source.DerivedIdeas = appendUnique(renameID(source.DerivedIdeas, previousID, idea.ID), idea.ID)
		if err := b.Put(source); err != nil {
			return err
		}
	}
	for _, sourceID := range idea.SourcePosts {
		source, ok := snap.Post(sourceID)
		if !ok {
			if previousID != "" {
				continue
			}
			return fmt.Errorf("%w: source post %s", ErrNotFound, sourceID)
		}
		source.DerivedIdeas = appendUnique(renameID(source.DerivedIdeas, previousID, idea.ID), idea.ID)
		if err := b.Put(source); err != nil {
			return err
		}
	}
	return nil
}
