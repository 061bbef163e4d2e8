package store

import (
	"fmt"

	"github.com/ideaflow/ideaflow/internal/models"
)

// Builder stages writes against the latest snapshot. Maps are copied on the
// first write to their kind, so the base snapshot is never touched.
type Builder struct {
	next    *Snapshot
	copied  map[models.Kind]bool
	changed map[models.Kind]map[string]struct{}
}

func newBuilder(base *Snapshot) *Builder {
	next := *base
	return &Builder{
		next:    &next,
		copied:  make(map[models.Kind]bool),
		changed: make(map[models.Kind]map[string]struct{}),
	}
}

// Snapshot exposes the staged state for reads inside an update.
func (b *Builder) Snapshot() *Snapshot {
	return b.next
}

// Upsert inserts the entity or merges it into the existing record.
func (b *Builder) Upsert(entity models.Entity) error {
	return b.write(entity, true)
}

// Put replaces the slot without merging.
func (b *Builder) Put(entity models.Entity) error {
	return b.write(entity, false)
}

// Remove deletes a slot. References held by other records are left as is.
func (b *Builder) Remove(kind models.Kind, id string) bool {
	if _, ok := b.next.Get(kind, id); !ok {
		return false
	}
	b.own(kind)
	switch kind {
	case models.KindUser:
		delete(b.next.users, id)
	case models.KindPost:
		delete(b.next.posts, id)
	case models.KindIdea:
		delete(b.next.ideas, id)
	case models.KindTopic:
		delete(b.next.topics, id)
	case models.KindCommunity:
		delete(b.next.communities, id)
	case models.KindMembership:
		delete(b.next.memberships, id)
	}
	b.touch(kind, id)
	return true
}

func (b *Builder) write(entity models.Entity, merge bool) error {
	if entity == nil || entity.EntityID() == "" {
		return ErrInvalidEntity
	}

	switch v := entity.(type) {
	case models.User:
		b.own(models.KindUser)
		if existing, ok := b.next.users[v.ID]; ok && merge {
			v = mergeUser(existing, v)
		}
		b.next.users[v.ID] = v
	case models.Post:
		post, users := normalizePost(v)
		b.registerUsers(users)
		b.own(models.KindPost)
		if existing, ok := b.next.posts[post.ID]; ok && merge {
			post = mergePost(existing, post)
		}
		b.next.posts[post.ID] = post
	case models.Idea:
		idea, users := normalizeIdea(v)
		b.registerUsers(users)
		b.own(models.KindIdea)
		if existing, ok := b.next.ideas[idea.ID]; ok && merge {
			idea = mergeIdea(existing, idea)
		}
		b.next.ideas[idea.ID] = idea
	case models.DiscussionTopic:
		topic, users := normalizeTopic(v)
		b.registerUsers(users)
		b.own(models.KindTopic)
		if existing, ok := b.next.topics[topic.ID]; ok && merge {
			topic = mergeTopic(existing, topic)
		}
		b.next.topics[topic.ID] = topic
	case models.Community:
		b.own(models.KindCommunity)
		if existing, ok := b.next.communities[v.ID]; ok && merge {
			v = mergeCommunity(existing, v)
		}
		b.next.communities[v.ID] = v
	case models.CommunityMembership:
		if v.UserID == "" || v.CommunityID == "" {
			return ErrInvalidEntity
		}
		b.registerUsers([]models.User{{ID: v.UserID}})
		b.own(models.KindMembership)
		key := v.EntityID()
		if existing, ok := b.next.memberships[key]; ok && merge {
			v = mergeMembership(existing, v)
		}
		b.next.memberships[key] = v
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEntity, entity)
	}

	b.touch(entity.Kind(), entity.EntityID())
	return nil
}

// registerUsers inserts users that are not known yet. An existing record is
// never replaced by an embedded copy, which may be stale; only a bare id stub
// is filled in from it.
func (b *Builder) registerUsers(users []models.User) {
	for _, user := range users {
		if user.ID == "" {
			continue
		}
		existing, ok := b.next.users[user.ID]
		if ok && !isStub(existing) {
			continue
		}
		if ok {
			if isStub(user) {
				continue
			}
			user = mergeUser(existing, user)
		}
		b.own(models.KindUser)
		b.next.users[user.ID] = user
		b.touch(models.KindUser, user.ID)
	}
}

func isStub(user models.User) bool {
	return user == models.User{ID: user.ID}
}

func (b *Builder) own(kind models.Kind) {
	if b.copied[kind] {
		return
	}
	b.copied[kind] = true
	switch kind {
	case models.KindUser:
		b.next.users = cloneMap(b.next.users)
	case models.KindPost:
		b.next.posts = cloneMap(b.next.posts)
	case models.KindIdea:
		b.next.ideas = cloneMap(b.next.ideas)
	case models.KindTopic:
		b.next.topics = cloneMap(b.next.topics)
	case models.KindCommunity:
		b.next.communities = cloneMap(b.next.communities)
	case models.KindMembership:
		b.next.memberships = cloneMap(b.next.memberships)
	}
}

func (b *Builder) touch(kind models.Kind, id string) {
	ids, ok := b.changed[kind]
	if !ok {
		ids = make(map[string]struct{})
		b.changed[kind] = ids
	}
	ids[id] = struct{}{}
}

func (b *Builder) dirty() bool {
	return len(b.changed) > 0
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
