package mutation

import (
	"context"
	"fmt"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
)

// SupportState is the outcome of a support toggle.
type SupportState struct {
	Ref        models.ContentRef `json:"ref"`
	Supporting bool              `json:"supporting"`
	Supporters models.IDSet      `json:"supporters"`
}

// ToggleSupport flips the actor's support of a post or idea. The new state is
// derived from set membership, so two calls restore the original set.
func (s *Service) ToggleSupport(ctx context.Context, actorID string, ref models.ContentRef) (SupportState, error) {
	if err := requireActor(opToggleSupport, actorID); err != nil {
		return SupportState{}, err
	}

	var state SupportState
	var wasSupporting bool
	_, err := s.table.Update(func(b *store.Builder) error {
		snap := b.Snapshot()
		switch ref.Type {
		case models.ContentPost:
			post, ok := snap.Post(ref.ID)
			if !ok {
				return ErrNotFound
			}
			wasSupporting = post.Supporters.Has(actorID)
			post.Supporters = post.Supporters.Toggle(actorID)
			state = SupportState{Ref: ref, Supporting: !wasSupporting, Supporters: post.Supporters}
			return b.Put(post)
		case models.ContentIdea:
			idea, ok := snap.Idea(ref.ID)
			if !ok {
				return ErrNotFound
			}
			wasSupporting = idea.Supporters.Has(actorID)
			idea.Supporters = idea.Supporters.Toggle(actorID)
			state = SupportState{Ref: ref, Supporting: !wasSupporting, Supporters: idea.Supporters}
			return b.Put(idea)
		}
		return fmt.Errorf("%w: content type %q", ErrInvalidInput, ref.Type)
	})
	if err != nil {
		return SupportState{}, classify(opToggleSupport, err)
	}

	intent := collab.SupportIntent{ActorID: actorID, Target: ref, WasSupporting: wasSupporting}
	s.dispatch(ctx, confirmation{
		operation: opToggleSupport,
		actorID:   actorID,
		kind:      notify.TypeSupport,
		entityIDs: []string{ref.Key()},
		run: func(ctx context.Context) error {
			return s.mutator.ToggleSupport(ctx, intent)
		},
	})
	return state, nil
}

// AddReply appends a reply to a post.
func (s *Service) AddReply(ctx context.Context, actorID, postID, content string) (models.Reply, error) {
	if err := requireActor(opAddReply, actorID); err != nil {
		return models.Reply{}, err
	}
	content = s.sanitize(content)
	if content == "" {
		return models.Reply{}, newServiceError(opAddReply, reasonInvalid, fmt.Errorf("%w: empty reply", ErrInvalidInput))
	}
	id, err := s.newID(opAddReply)
	if err != nil {
		return models.Reply{}, err
	}

	reply := models.Reply{
		ID:        id,
		AuthorID:  actorID,
		Content:   content,
		CreatedAt: s.now(),
		Likes:     models.NewIDSet(),
	}
	_, err = s.table.Update(func(b *store.Builder) error {
		post, ok := b.Snapshot().Post(postID)
		if !ok {
			return ErrNotFound
		}
		post.Replies = append(append([]models.Reply(nil), post.Replies...), reply)
		return b.Put(post)
	})
	if err != nil {
		return models.Reply{}, classify(opAddReply, err)
	}

	intent := collab.ReplyIntent{ActorID: actorID, PostID: postID, Reply: reply}
	s.dispatch(ctx, confirmation{
		operation:  opAddReply,
		actorID:    actorID,
		kind:       notify.TypeReply,
		userFacing: true,
		entityIDs:  []string{postID, reply.ID},
		run: func(ctx context.Context) error {
			canonical, err := s.mutator.AddReply(ctx, intent)
			if err != nil {
				return err
			}
			if canonical.ID == "" {
				return nil
			}
			return s.writeBack(opAddReply, func(b *store.Builder) error {
				post, ok := b.Snapshot().Post(postID)
				if !ok {
					return nil
				}
				post.Replies = replaceReply(post.Replies, reply.ID, canonical)
				return b.Upsert(models.Post{ID: postID, Replies: post.Replies})
			})
		},
	})
	return reply, nil
}

// replaceReply swaps the optimistic reply for the canonical one, keeping its
// position. The canonical reply is appended if the optimistic one is gone.
func replaceReply(replies []models.Reply, optimisticID string, canonical models.Reply) []models.Reply {
	out := make([]models.Reply, 0, len(replies)+1)
	replaced := false
	for _, r := range replies {
		switch {
		case r.ID == optimisticID || r.ID == canonical.ID:
			if !replaced {
				out = append(out, canonical)
				replaced = true
			}
		default:
			out = append(out, r)
		}
	}
	if !replaced {
		out = append(out, canonical)
	}
	return out
}

// ToggleReplyLike flips the actor's like on a reply.
func (s *Service) ToggleReplyLike(ctx context.Context, actorID, postID, replyID string) (models.Reply, error) {
	if err := requireActor(opToggleReplyLike, actorID); err != nil {
		return models.Reply{}, err
	}

	var reply models.Reply
	var wasLiked bool
	_, err := s.table.Update(func(b *store.Builder) error {
		post, ok := b.Snapshot().Post(postID)
		if !ok {
			return ErrNotFound
		}
		replies := append([]models.Reply(nil), post.Replies...)
		for i := range replies {
			if replies[i].ID != replyID {
				continue
			}
			wasLiked = replies[i].Likes.Has(actorID)
			replies[i].Likes = replies[i].Likes.Toggle(actorID)
			reply = replies[i]
			post.Replies = replies
			return b.Put(post)
		}
		return fmt.Errorf("%w: reply %s", ErrNotFound, replyID)
	})
	if err != nil {
		return models.Reply{}, classify(opToggleReplyLike, err)
	}

	intent := collab.ReplyLikeIntent{ActorID: actorID, PostID: postID, ReplyID: replyID, WasLiked: wasLiked}
	s.dispatch(ctx, confirmation{
		operation: opToggleReplyLike,
		actorID:   actorID,
		kind:      notify.TypeReplyLike,
		entityIDs: []string{postID, replyID},
		run: func(ctx context.Context) error {
			return s.mutator.ToggleReplyLike(ctx, intent)
		},
	})
	return reply, nil
}

// CreatePost publishes a post written in response to the given source posts.
// Each source records the new post among its derived posts.
func (s *Service) CreatePost(ctx context.Context, actorID, content string, sourcePosts []string) (models.Post, error) {
	if err := requireActor(opCreatePost, actorID); err != nil {
		return models.Post{}, err
	}
	content = s.sanitize(content)
	if content == "" {
		return models.Post{}, newServiceError(opCreatePost, reasonInvalid, fmt.Errorf("%w: empty post", ErrInvalidInput))
	}
	id, err := s.newID(opCreatePost)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:          id,
		Content:     content,
		AuthorID:    actorID,
		CreatedAt:   s.now(),
		Supporters:  models.NewIDSet(),
		SourcePosts: dedupe(sourcePosts),
	}
	_, err = s.table.Update(func(b *store.Builder) error {
		for _, sourceID := range post.SourcePosts {
			source, ok := b.Snapshot().Post(sourceID)
			if !ok {
				return fmt.Errorf("%w: source post %s", ErrNotFound, sourceID)
			}
			source.DerivedPosts = appendUnique(source.DerivedPosts, post.ID)
			if err := b.Put(source); err != nil {
				return err
			}
		}
		return b.Put(post)
	})
	if err != nil {
		return models.Post{}, classify(opCreatePost, err)
	}

	intent := collab.CreatePostIntent{ActorID: actorID, Post: post}
	s.dispatch(ctx, confirmation{
		operation:  opCreatePost,
		actorID:    actorID,
		kind:       notify.TypePost,
		userFacing: true,
		entityIDs:  []string{post.ID},
		run: func(ctx context.Context) error {
			canonical, err := s.mutator.CreatePost(ctx, intent)
			if err != nil {
				return err
			}
			if canonical.ID == "" {
				return nil
			}
			return s.writeBack(opCreatePost, func(b *store.Builder) error {
				if canonical.ID != post.ID {
					b.Remove(models.KindPost, post.ID)
					for _, sourceID := range post.SourcePosts {
						if source, ok := b.Snapshot().Post(sourceID); ok {
							source.DerivedPosts = renameID(source.DerivedPosts, post.ID, canonical.ID)
							if err := b.Put(source); err != nil {
								return err
							}
						}
					}
				}
				return b.Upsert(canonical)
			})
		},
	})
	return post, nil
}

// ReportContent flags a post or idea for moderation. Posts are flagged
// locally right away; the moderation decision itself belongs upstream.
func (s *Service) ReportContent(ctx context.Context, actorID string, ref models.ContentRef, reason string) error {
	if err := requireActor(opReportContent, actorID); err != nil {
		return err
	}
	reason = s.sanitize(reason)
	if reason == "" {
		return newServiceError(opReportContent, reasonInvalid, fmt.Errorf("%w: reason is required", ErrInvalidInput))
	}

	_, err := s.table.Update(func(b *store.Builder) error {
		snap := b.Snapshot()
		switch ref.Type {
		case models.ContentPost:
			post, ok := snap.Post(ref.ID)
			if !ok {
				return ErrNotFound
			}
			moderation := models.Moderation{Flagged: true, Reason: reason}
			if post.Moderation != nil {
				moderation.Hidden = post.Moderation.Hidden
			}
			post.Moderation = &moderation
			return b.Put(post)
		case models.ContentIdea:
			if _, ok := snap.Idea(ref.ID); !ok {
				return ErrNotFound
			}
			return nil
		}
		return fmt.Errorf("%w: content type %q", ErrInvalidInput, ref.Type)
	})
	if err != nil {
		return classify(opReportContent, err)
	}

	intent := collab.ReportIntent{ActorID: actorID, Target: ref, Reason: reason}
	s.dispatch(ctx, confirmation{
		operation:  opReportContent,
		actorID:    actorID,
		kind:       notify.TypeReport,
		userFacing: true,
		entityIDs:  []string{ref.Key()},
		run: func(ctx context.Context) error {
			return s.mutator.ReportContent(ctx, intent)
		},
	})
	return nil
}

func dedupe(ids []string) []string {
	var out []string
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(append([]string(nil), ids...), id)
}

func renameID(ids []string, from, to string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == from {
			id = to
		}
		out = appendUnique(out, id)
	}
	return out
}
