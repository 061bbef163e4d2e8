package mutation

import (
	"context"
	"fmt"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
)

// CreateTopic opens a discussion topic on an idea. A non-empty content
// becomes the opening post of the topic.
func (s *Service) CreateTopic(ctx context.Context, actorID, ideaID, title string, topicType models.TopicType, content string) (models.DiscussionTopic, error) {
	if err := requireActor(opCreateTopic, actorID); err != nil {
		return models.DiscussionTopic{}, err
	}
	title = s.sanitize(title)
	if title == "" {
		return models.DiscussionTopic{}, newServiceError(opCreateTopic, reasonInvalid, fmt.Errorf("%w: title is required", ErrInvalidInput))
	}
	if topicType == "" {
		topicType = models.TopicGeneral
	}
	if !topicType.Valid() {
		return models.DiscussionTopic{}, newServiceError(opCreateTopic, reasonInvalid, fmt.Errorf("%w: topic type %q", ErrInvalidInput, topicType))
	}
	id, err := s.newID(opCreateTopic)
	if err != nil {
		return models.DiscussionTopic{}, err
	}

	now := s.now()
	topic := models.DiscussionTopic{
		ID:        id,
		IdeaID:    ideaID,
		Title:     title,
		Type:      topicType,
		AuthorID:  actorID,
		CreatedAt: now,
	}
	if content = s.sanitize(content); content != "" {
		postID, err := s.newID(opCreateTopic)
		if err != nil {
			return models.DiscussionTopic{}, err
		}
		topic.Posts = []models.DiscussionPost{{
			ID:        postID,
			AuthorID:  actorID,
			Content:   content,
			Upvotes:   models.NewIDSet(),
			CreatedAt: now,
		}}
	}

	_, err = s.table.Update(func(b *store.Builder) error {
		idea, ok := b.Snapshot().Idea(ideaID)
		if !ok {
			return ErrNotFound
		}
		idea.DiscussionIDs = appendUnique(idea.DiscussionIDs, topic.ID)
		if err := b.Put(idea); err != nil {
			return err
		}
		return b.Put(topic)
	})
	if err != nil {
		return models.DiscussionTopic{}, classify(opCreateTopic, err)
	}

	intent := collab.CreateTopicIntent{ActorID: actorID, Topic: topic}
	s.dispatch(ctx, confirmation{
		operation:  opCreateTopic,
		actorID:    actorID,
		kind:       notify.TypeTopic,
		userFacing: true,
		entityIDs:  []string{ideaID, topic.ID},
		run: func(ctx context.Context) error {
			canonical, err := s.mutator.CreateTopic(ctx, intent)
			if err != nil {
				return err
			}
			if canonical.ID == "" {
				return nil
			}
			return s.writeBack(opCreateTopic, func(b *store.Builder) error {
				if canonical.ID != topic.ID {
					b.Remove(models.KindTopic, topic.ID)
					if idea, ok := b.Snapshot().Idea(ideaID); ok {
						idea.DiscussionIDs = renameID(idea.DiscussionIDs, topic.ID, canonical.ID)
						if err := b.Put(idea); err != nil {
							return err
						}
					}
				}
				return b.Upsert(canonical)
			})
		},
	})
	return topic, nil
}

// AddTopicPost appends a post to a discussion topic.
func (s *Service) AddTopicPost(ctx context.Context, actorID, topicID, content string) (models.DiscussionPost, error) {
	if err := requireActor(opAddTopicPost, actorID); err != nil {
		return models.DiscussionPost{}, err
	}
	content = s.sanitize(content)
	if content == "" {
		return models.DiscussionPost{}, newServiceError(opAddTopicPost, reasonInvalid, fmt.Errorf("%w: empty post", ErrInvalidInput))
	}
	id, err := s.newID(opAddTopicPost)
	if err != nil {
		return models.DiscussionPost{}, err
	}

	post := models.DiscussionPost{
		ID:        id,
		AuthorID:  actorID,
		Content:   content,
		Upvotes:   models.NewIDSet(),
		CreatedAt: s.now(),
	}
	_, err = s.table.Update(func(b *store.Builder) error {
		topic, ok := b.Snapshot().Topic(topicID)
		if !ok {
			return ErrNotFound
		}
		topic.Posts = append(append([]models.DiscussionPost(nil), topic.Posts...), post)
		return b.Put(topic)
	})
	if err != nil {
		return models.DiscussionPost{}, classify(opAddTopicPost, err)
	}

	intent := collab.TopicPostIntent{ActorID: actorID, TopicID: topicID, Post: post}
	s.dispatch(ctx, confirmation{
		operation:  opAddTopicPost,
		actorID:    actorID,
		kind:       notify.TypeTopicPost,
		userFacing: true,
		entityIDs:  []string{topicID, post.ID},
		run: func(ctx context.Context) error {
			canonical, err := s.mutator.AddTopicPost(ctx, intent)
			if err != nil {
				return err
			}
			if canonical.ID == "" {
				return nil
			}
			return s.writeBack(opAddTopicPost, func(b *store.Builder) error {
				topic, ok := b.Snapshot().Topic(topicID)
				if !ok {
					return nil
				}
				posts := make([]models.DiscussionPost, 0, len(topic.Posts))
				replaced := false
				for _, p := range topic.Posts {
					if p.ID == post.ID || p.ID == canonical.ID {
						if !replaced {
							posts = append(posts, canonical)
							replaced = true
						}
						continue
					}
					posts = append(posts, p)
				}
				if !replaced {
					posts = append(posts, canonical)
				}
				if topic.AcceptedPostID == post.ID {
					topic.AcceptedPostID = canonical.ID
				}
				return b.Upsert(models.DiscussionTopic{ID: topicID, Posts: posts, AcceptedPostID: topic.AcceptedPostID})
			})
		},
	})
	return post, nil
}

// ToggleTopicPostUpvote flips the actor's upvote on a discussion post.
func (s *Service) ToggleTopicPostUpvote(ctx context.Context, actorID, topicID, postID string) (models.DiscussionPost, error) {
	if err := requireActor(opToggleUpvote, actorID); err != nil {
		return models.DiscussionPost{}, err
	}

	var post models.DiscussionPost
	var wasUpvoted bool
	_, err := s.table.Update(func(b *store.Builder) error {
		topic, ok := b.Snapshot().Topic(topicID)
		if !ok {
			return ErrNotFound
		}
		index := topic.PostIndex(postID)
		if index < 0 {
			return fmt.Errorf("%w: discussion post %s", ErrNotFound, postID)
		}
		posts := append([]models.DiscussionPost(nil), topic.Posts...)
		wasUpvoted = posts[index].Upvotes.Has(actorID)
		posts[index].Upvotes = posts[index].Upvotes.Toggle(actorID)
		post = posts[index]
		topic.Posts = posts
		return b.Put(topic)
	})
	if err != nil {
		return models.DiscussionPost{}, classify(opToggleUpvote, err)
	}

	intent := collab.TopicUpvoteIntent{ActorID: actorID, TopicID: topicID, PostID: postID, WasUpvoted: wasUpvoted}
	s.dispatch(ctx, confirmation{
		operation: opToggleUpvote,
		actorID:   actorID,
		kind:      notify.TypeTopicUpvote,
		entityIDs: []string{topicID, postID},
		run: func(ctx context.Context) error {
			return s.mutator.ToggleTopicPostUpvote(ctx, intent)
		},
	})
	return post, nil
}

// MarkAnswer sets the accepted answer of a topic. An empty postID clears it.
// Only the topic author or a creator of the idea may decide.
func (s *Service) MarkAnswer(ctx context.Context, actorID, topicID, postID string) (models.DiscussionTopic, error) {
	if err := requireActor(opMarkAnswer, actorID); err != nil {
		return models.DiscussionTopic{}, err
	}

	var updated models.DiscussionTopic
	var previous string
	_, err := s.table.Update(func(b *store.Builder) error {
		snap := b.Snapshot()
		topic, ok := snap.Topic(topicID)
		if !ok {
			return ErrNotFound
		}
		idea, _ := snap.Idea(topic.IdeaID)
		if topic.AuthorID != actorID && !idea.IsCreator(actorID) {
			return ErrForbidden
		}
		if postID != "" && topic.PostIndex(postID) < 0 {
			return fmt.Errorf("%w: discussion post %s", ErrNotFound, postID)
		}
		previous = topic.AcceptedPostID
		topic.AcceptedPostID = postID
		updated = topic
		return b.Put(topic)
	})
	if err != nil {
		return models.DiscussionTopic{}, classify(opMarkAnswer, err)
	}

	intent := collab.AnswerIntent{ActorID: actorID, TopicID: topicID, PostID: postID, PreviousAnswerID: previous}
	s.dispatch(ctx, confirmation{
		operation: opMarkAnswer,
		actorID:   actorID,
		kind:      notify.TypeAnswer,
		entityIDs: []string{topicID},
		run: func(ctx context.Context) error {
			return s.mutator.MarkAnswer(ctx, intent)
		},
	})
	return updated, nil
}
