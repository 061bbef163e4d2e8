package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
	excerptLength    = 140
)

// Repository is the system of record behind the collaborator contracts.
type Repository struct {
	db    *gorm.DB
	clock func() time.Time
}

var (
	_ collab.Fetcher       = (*Repository)(nil)
	_ collab.Mutator       = (*Repository)(nil)
	_ collab.LineageSource = (*Repository)(nil)
)

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) now() time.Time {
	return r.clock()
}

func first[T any](tx *gorm.DB, id string) (T, error) {
	var rec T
	if err := tx.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, fmt.Errorf("%T %q: %w", rec, id, collab.ErrNotFound)
		}
		return rec, err
	}
	return rec, nil
}

func usersByID(tx *gorm.DB, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var records []UserRecord
	if err := tx.Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	for _, rec := range records {
		users[rec.ID] = rec.toModel()
	}
	return users, nil
}

func userRef(users map[string]models.User, id string) *models.User {
	if id == "" {
		return nil
	}
	user, ok := users[id]
	if !ok {
		user = models.User{ID: id}
	}
	return &user
}

// ensureUser creates a bare user row the first time an id is seen.
func ensureUser(tx *gorm.DB, id string, at time.Time) error {
	if id == "" {
		return fmt.Errorf("user id is required")
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserRecord{ID: id, CreatedAt: at}).Error
}

func appendUnique(values datatypes.JSONSlice[string], id string) datatypes.JSONSlice[string] {
	for _, v := range values {
		if v == id {
			return values
		}
	}
	return append(values, id)
}

func removeValue(values datatypes.JSONSlice[string], id string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(values))
	for _, v := range values {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// toggle adds id when it was absent before the actor's change and removes it
// otherwise, so replays of the same intent are idempotent.
func toggle(values datatypes.JSONSlice[string], id string, wasPresent bool) datatypes.JSONSlice[string] {
	if wasPresent {
		return removeValue(values, id)
	}
	return appendUnique(values, id)
}

func excerpt(content string) string {
	if utf8.RuneCountInString(content) <= excerptLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:excerptLength]) + "…"
}

// Fetcher

func (r *Repository) FetchUser(ctx context.Context, id string) (models.User, error) {
	rec, err := first[UserRecord](r.db.WithContext(ctx), id)
	if err != nil {
		return models.User{}, err
	}
	return rec.toModel(), nil
}

func (r *Repository) FetchPost(ctx context.Context, id string) (models.Post, error) {
	return loadPost(r.db.WithContext(ctx), id)
}

func loadPost(tx *gorm.DB, id string) (models.Post, error) {
	rec, err := first[PostRecord](tx, id)
	if err != nil {
		return models.Post{}, err
	}
	var replies []ReplyRecord
	if err := tx.Where("post_id = ?", id).Order("created_at ASC").Find(&replies).Error; err != nil {
		return models.Post{}, err
	}

	authorIDs := []string{rec.AuthorID}
	for _, reply := range replies {
		authorIDs = append(authorIDs, reply.AuthorID)
	}
	users, err := usersByID(tx, authorIDs)
	if err != nil {
		return models.Post{}, err
	}

	post := rec.toModel()
	post.Author = userRef(users, rec.AuthorID)
	post.Replies = make([]models.Reply, 0, len(replies))
	for _, reply := range replies {
		m := reply.toModel()
		m.Author = userRef(users, reply.AuthorID)
		post.Replies = append(post.Replies, m)
	}
	return post, nil
}

func (r *Repository) FetchIdea(ctx context.Context, id string) (models.Idea, error) {
	return loadIdea(r.db.WithContext(ctx), id)
}

func loadIdea(tx *gorm.DB, id string) (models.Idea, error) {
	rec, err := first[IdeaRecord](tx, id)
	if err != nil {
		return models.Idea{}, err
	}
	ratings, err := loadRatings(tx, id)
	if err != nil {
		return models.Idea{}, err
	}
	users, err := usersByID(tx, rec.CreatorIDs)
	if err != nil {
		return models.Idea{}, err
	}

	idea := rec.toModel()
	idea.Ratings = ratings
	for _, creatorID := range rec.CreatorIDs {
		idea.Creators = append(idea.Creators, *userRef(users, creatorID))
	}
	return idea, nil
}

func loadRatings(tx *gorm.DB, ideaID string) ([]models.Rating, error) {
	var records []RatingRecord
	if err := tx.Where("idea_id = ?", ideaID).
		Order("created_at ASC").Order("user_id ASC").Order("criterion_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	ratings := make([]models.Rating, 0, len(records))
	for _, rec := range records {
		ratings = append(ratings, rec.toModel())
	}
	return ratings, nil
}

func (r *Repository) FetchTopic(ctx context.Context, id string) (models.DiscussionTopic, error) {
	return loadTopic(r.db.WithContext(ctx), id)
}

func loadTopic(tx *gorm.DB, id string) (models.DiscussionTopic, error) {
	rec, err := first[TopicRecord](tx, id)
	if err != nil {
		return models.DiscussionTopic{}, err
	}
	var posts []TopicPostRecord
	if err := tx.Where("topic_id = ?", id).Order("created_at ASC").Order("id ASC").Find(&posts).Error; err != nil {
		return models.DiscussionTopic{}, err
	}

	authorIDs := []string{rec.AuthorID}
	for _, post := range posts {
		authorIDs = append(authorIDs, post.AuthorID)
	}
	users, err := usersByID(tx, authorIDs)
	if err != nil {
		return models.DiscussionTopic{}, err
	}

	topic := rec.toModel()
	topic.Author = userRef(users, rec.AuthorID)
	topic.Posts = make([]models.DiscussionPost, 0, len(posts))
	for _, post := range posts {
		m := post.toModel()
		m.Author = userRef(users, post.AuthorID)
		topic.Posts = append(topic.Posts, m)
	}
	return topic, nil
}

func (r *Repository) FetchCommunity(ctx context.Context, id string) (models.Community, error) {
	rec, err := first[CommunityRecord](r.db.WithContext(ctx), id)
	if err != nil {
		return models.Community{}, err
	}
	return rec.toModel(), nil
}

// FetchFeed returns visible posts and published ideas, newest first.
func (r *Repository) FetchFeed(ctx context.Context, page collab.FeedPage) (collab.FeedResult, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	window := offset + limit
	tx := r.db.WithContext(ctx)

	var posts []PostRecord
	if err := tx.Where("is_hidden = ?", false).Order("created_at DESC").Limit(window).Find(&posts).Error; err != nil {
		return collab.FeedResult{}, fmt.Errorf("failed to load feed posts: %w", err)
	}
	var ideas []IdeaRecord
	if err := tx.Where("status <> ?", string(models.IdeaDraft)).Order("created_at DESC").Limit(window).Find(&ideas).Error; err != nil {
		return collab.FeedResult{}, fmt.Errorf("failed to load feed ideas: %w", err)
	}

	type entry struct {
		ref       models.ContentRef
		createdAt time.Time
		post      *PostRecord
		idea      *IdeaRecord
	}
	entries := make([]entry, 0, len(posts)+len(ideas))
	for i := range posts {
		entries = append(entries, entry{ref: models.PostRef(posts[i].ID), createdAt: posts[i].CreatedAt, post: &posts[i]})
	}
	for i := range ideas {
		entries = append(entries, entry{ref: models.IdeaRef(ideas[i].ID), createdAt: ideas[i].CreatedAt, idea: &ideas[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].createdAt.Equal(entries[j].createdAt) {
			return entries[i].createdAt.After(entries[j].createdAt)
		}
		return entries[i].ref.Key() < entries[j].ref.Key()
	})
	if offset >= len(entries) {
		return collab.FeedResult{}, nil
	}
	entries = entries[offset:min(len(entries), window)]

	var authorIDs []string
	for _, e := range entries {
		if e.post != nil {
			authorIDs = append(authorIDs, e.post.AuthorID)
		} else {
			authorIDs = append(authorIDs, e.idea.CreatorIDs...)
		}
	}
	users, err := usersByID(tx, authorIDs)
	if err != nil {
		return collab.FeedResult{}, err
	}

	var result collab.FeedResult
	for _, e := range entries {
		result.Refs = append(result.Refs, e.ref)
		if e.post != nil {
			post := e.post.toModel()
			post.Author = userRef(users, post.AuthorID)
			result.Posts = append(result.Posts, post)
			continue
		}
		idea := e.idea.toModel()
		for _, creatorID := range idea.CreatorIDs {
			idea.Creators = append(idea.Creators, *userRef(users, creatorID))
		}
		result.Ideas = append(result.Ideas, idea)
	}
	for _, user := range users {
		result.Users = append(result.Users, user)
	}
	sort.Slice(result.Users, func(i, j int) bool { return result.Users[i].ID < result.Users[j].ID })
	return result, nil
}

func (r *Repository) FetchRatings(ctx context.Context, ideaID string) ([]models.Rating, error) {
	tx := r.db.WithContext(ctx)
	if _, err := first[IdeaRecord](tx, ideaID); err != nil {
		return nil, err
	}
	return loadRatings(tx, ideaID)
}

func (r *Repository) FetchMemberships(ctx context.Context, userID string) ([]models.CommunityMembership, error) {
	var records []MembershipRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("joined_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	memberships := make([]models.CommunityMembership, 0, len(records))
	for _, rec := range records {
		memberships = append(memberships, rec.toModel())
	}
	return memberships, nil
}

// Lineage returns stubs for the sources and derivatives of ref. Links to
// rows that no longer exist are skipped.
func (r *Repository) Lineage(ctx context.Context, ref models.ContentRef) (collab.LineageResult, error) {
	tx := r.db.WithContext(ctx)
	var parentPosts, parentIdeas, childPosts, childIdeas []string

	switch ref.Type {
	case models.ContentPost:
		rec, err := first[PostRecord](tx, ref.ID)
		if err != nil {
			return collab.LineageResult{}, err
		}
		parentPosts = rec.SourcePosts
		childPosts = rec.DerivedPosts
		childIdeas = rec.DerivedIdeas
	case models.ContentIdea:
		rec, err := first[IdeaRecord](tx, ref.ID)
		if err != nil {
			return collab.LineageResult{}, err
		}
		parentIdeas = rec.SourceIdeas
		parentPosts = rec.SourcePosts
		childIdeas = rec.DerivedIdeas
	default:
		return collab.LineageResult{}, fmt.Errorf("unknown content type %q", ref.Type)
	}

	parents, err := loadStubs(tx, parentPosts, parentIdeas)
	if err != nil {
		return collab.LineageResult{}, err
	}
	children, err := loadStubs(tx, childPosts, childIdeas)
	if err != nil {
		return collab.LineageResult{}, err
	}
	return collab.LineageResult{Parents: parents, Children: children}, nil
}

func loadStubs(tx *gorm.DB, postIDs, ideaIDs []string) ([]collab.Stub, error) {
	stubs := make([]collab.Stub, 0, len(postIDs)+len(ideaIDs))
	var posts []PostRecord
	if len(postIDs) > 0 {
		if err := tx.Where("id IN ?", postIDs).Find(&posts).Error; err != nil {
			return nil, err
		}
	}
	var ideas []IdeaRecord
	if len(ideaIDs) > 0 {
		if err := tx.Where("id IN ?", ideaIDs).Find(&ideas).Error; err != nil {
			return nil, err
		}
	}

	var authorIDs []string
	for _, post := range posts {
		authorIDs = append(authorIDs, post.AuthorID)
	}
	for _, idea := range ideas {
		authorIDs = append(authorIDs, idea.CreatorIDs...)
	}
	users, err := usersByID(tx, authorIDs)
	if err != nil {
		return nil, err
	}

	postsByID := make(map[string]PostRecord, len(posts))
	for _, post := range posts {
		postsByID[post.ID] = post
	}
	for _, id := range postIDs {
		post, ok := postsByID[id]
		if !ok {
			continue
		}
		stubs = append(stubs, collab.Stub{
			Ref:       models.PostRef(id),
			Excerpt:   excerpt(post.Content),
			Authors:   []models.User{*userRef(users, post.AuthorID)},
			CreatedAt: post.CreatedAt,
		})
	}

	ideasByID := make(map[string]IdeaRecord, len(ideas))
	for _, idea := range ideas {
		ideasByID[idea.ID] = idea
	}
	for _, id := range ideaIDs {
		idea, ok := ideasByID[id]
		if !ok {
			continue
		}
		stub := collab.Stub{
			Ref:       models.IdeaRef(id),
			Title:     idea.Title,
			Excerpt:   excerpt(idea.Summary),
			CreatedAt: idea.CreatedAt,
		}
		for _, creatorID := range idea.CreatorIDs {
			stub.Authors = append(stub.Authors, *userRef(users, creatorID))
		}
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

// Mutator

func (r *Repository) ToggleSupport(ctx context.Context, intent collab.SupportIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch intent.Target.Type {
		case models.ContentPost:
			rec, err := first[PostRecord](tx, intent.Target.ID)
			if err != nil {
				return err
			}
			supporters := toggle(rec.Supporters, intent.ActorID, intent.WasSupporting)
			return tx.Model(&rec).Update("supporters", supporters).Error
		case models.ContentIdea:
			rec, err := first[IdeaRecord](tx, intent.Target.ID)
			if err != nil {
				return err
			}
			supporters := toggle(rec.Supporters, intent.ActorID, intent.WasSupporting)
			return tx.Model(&rec).Updates(map[string]interface{}{
				"supporters": supporters,
				"updated_at": r.now(),
			}).Error
		default:
			return fmt.Errorf("unknown content type %q", intent.Target.Type)
		}
	})
}

// RateIdea records the score and returns every rating of the idea.
func (r *Repository) RateIdea(ctx context.Context, intent collab.RatingIntent) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[IdeaRecord](tx, intent.IdeaID); err != nil {
			return err
		}
		if err := ensureUser(tx, intent.ActorID, r.now()); err != nil {
			return err
		}
		rec := RatingRecord{
			IdeaID:      intent.IdeaID,
			UserID:      intent.ActorID,
			CriterionID: intent.CriterionID,
			Score:       intent.Score,
			CreatedAt:   r.now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idea_id"}, {Name: "user_id"}, {Name: "criterion_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "created_at"}),
		}).Create(&rec).Error; err != nil {
			return err
		}
		var err error
		ratings, err = loadRatings(tx, intent.IdeaID)
		return err
	})
	return ratings, err
}

func (r *Repository) AddReply(ctx context.Context, intent collab.ReplyIntent) (models.Reply, error) {
	var reply models.Reply
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[PostRecord](tx, intent.PostID); err != nil {
			return err
		}
		if intent.Reply.ID == "" {
			return fmt.Errorf("reply id is required")
		}
		now := r.now()
		if err := ensureUser(tx, intent.ActorID, now); err != nil {
			return err
		}
		rec := ReplyRecord{
			ID:        intent.Reply.ID,
			PostID:    intent.PostID,
			AuthorID:  intent.ActorID,
			Content:   intent.Reply.Content,
			Likes:     datatypes.JSONSlice[string]{},
			CreatedAt: now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		users, err := usersByID(tx, []string{intent.ActorID})
		if err != nil {
			return err
		}
		reply = rec.toModel()
		reply.Author = userRef(users, intent.ActorID)
		return nil
	})
	return reply, err
}

func (r *Repository) ToggleReplyLike(ctx context.Context, intent collab.ReplyLikeIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec ReplyRecord
		if err := tx.First(&rec, "id = ? AND post_id = ?", intent.ReplyID, intent.PostID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reply %q: %w", intent.ReplyID, collab.ErrNotFound)
			}
			return err
		}
		likes := toggle(rec.Likes, intent.ActorID, intent.WasLiked)
		return tx.Model(&rec).Update("likes", likes).Error
	})
}

// CreatePost stores the post and links it from each source post.
func (r *Repository) CreatePost(ctx context.Context, intent collab.CreatePostIntent) (models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if intent.Post.ID == "" {
			return fmt.Errorf("post id is required")
		}
		now := r.now()
		if err := ensureUser(tx, intent.ActorID, now); err != nil {
			return err
		}
		rec := PostRecord{
			ID:          intent.Post.ID,
			Content:     intent.Post.Content,
			AuthorID:    intent.ActorID,
			CreatedAt:   now,
			Supporters:  datatypes.JSONSlice[string]{},
			SourcePosts: datatypes.JSONSlice[string](intent.Post.SourcePosts),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, sourceID := range intent.Post.SourcePosts {
			source, err := first[PostRecord](tx, sourceID)
			if err != nil {
				return err
			}
			if err := tx.Model(&source).Update("derived_posts", appendUnique(source.DerivedPosts, rec.ID)).Error; err != nil {
				return err
			}
		}
		var err error
		post, err = loadPost(tx, rec.ID)
		return err
	})
	return post, err
}

// CreateIdea stores the idea and links it from its source ideas and posts.
func (r *Repository) CreateIdea(ctx context.Context, intent collab.CreateIdeaIntent) (models.Idea, error) {
	var idea models.Idea
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		in := intent.Idea
		if in.ID == "" {
			return fmt.Errorf("idea id is required")
		}
		now := r.now()
		creators := in.CreatorIDs
		if len(creators) == 0 {
			creators = []string{intent.ActorID}
		}
		for _, creatorID := range creators {
			if err := ensureUser(tx, creatorID, now); err != nil {
				return err
			}
		}
		status := in.Status
		if status == "" {
			status = models.IdeaPublished
		}
		rec := IdeaRecord{
			ID:             in.ID,
			Title:          in.Title,
			Summary:        in.Summary,
			Description:    in.Description,
			CreatorIDs:     datatypes.JSONSlice[string](creators),
			Supporters:     datatypes.JSONSlice[string]{},
			RatingCriteria: datatypes.JSONSlice[models.RatingCriterion](in.RatingCriteria),
			Tags:           datatypes.JSONSlice[string](models.NormalizeTags(in.Tags)),
			Status:         string(status),
			SourceIdeas:    datatypes.JSONSlice[string](in.SourceIdeas),
			SourcePosts:    datatypes.JSONSlice[string](in.SourcePosts),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, sourceID := range in.SourceIdeas {
			source, err := first[IdeaRecord](tx, sourceID)
			if err != nil {
				return err
			}
			if err := tx.Model(&source).Update("derived_ideas", appendUnique(source.DerivedIdeas, rec.ID)).Error; err != nil {
				return err
			}
		}
		for _, sourceID := range in.SourcePosts {
			source, err := first[PostRecord](tx, sourceID)
			if err != nil {
				return err
			}
			if err := tx.Model(&source).Update("derived_ideas", appendUnique(source.DerivedIdeas, rec.ID)).Error; err != nil {
				return err
			}
		}
		var err error
		idea, err = loadIdea(tx, rec.ID)
		return err
	})
	return idea, err
}

// CreateTopic stores the topic with its opening posts and lists it on the idea.
func (r *Repository) CreateTopic(ctx context.Context, intent collab.CreateTopicIntent) (models.DiscussionTopic, error) {
	var topic models.DiscussionTopic
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		in := intent.Topic
		if in.ID == "" {
			return fmt.Errorf("topic id is required")
		}
		idea, err := first[IdeaRecord](tx, in.IdeaID)
		if err != nil {
			return err
		}
		now := r.now()
		if err := ensureUser(tx, intent.ActorID, now); err != nil {
			return err
		}
		topicType := in.Type
		if topicType == "" {
			topicType = models.TopicGeneral
		}
		rec := TopicRecord{
			ID:        in.ID,
			IdeaID:    in.IdeaID,
			Title:     in.Title,
			Type:      string(topicType),
			AuthorID:  intent.ActorID,
			CreatedAt: now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, post := range in.Posts {
			if err := tx.Create(&TopicPostRecord{
				ID:        post.ID,
				TopicID:   rec.ID,
				AuthorID:  intent.ActorID,
				Content:   post.Content,
				Upvotes:   datatypes.JSONSlice[string]{},
				CreatedAt: now,
			}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&idea).Updates(map[string]interface{}{
			"discussion_ids": appendUnique(idea.DiscussionIDs, rec.ID),
			"updated_at":     now,
		}).Error; err != nil {
			return err
		}
		topic, err = loadTopic(tx, rec.ID)
		return err
	})
	return topic, err
}

func (r *Repository) AddTopicPost(ctx context.Context, intent collab.TopicPostIntent) (models.DiscussionPost, error) {
	var post models.DiscussionPost
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[TopicRecord](tx, intent.TopicID); err != nil {
			return err
		}
		if intent.Post.ID == "" {
			return fmt.Errorf("topic post id is required")
		}
		now := r.now()
		if err := ensureUser(tx, intent.ActorID, now); err != nil {
			return err
		}
		rec := TopicPostRecord{
			ID:        intent.Post.ID,
			TopicID:   intent.TopicID,
			AuthorID:  intent.ActorID,
			Content:   intent.Post.Content,
			Upvotes:   datatypes.JSONSlice[string]{},
			CreatedAt: now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		users, err := usersByID(tx, []string{intent.ActorID})
		if err != nil {
			return err
		}
		post = rec.toModel()
		post.Author = userRef(users, intent.ActorID)
		return nil
	})
	return post, err
}

func (r *Repository) ToggleTopicPostUpvote(ctx context.Context, intent collab.TopicUpvoteIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TopicPostRecord
		if err := tx.First(&rec, "id = ? AND topic_id = ?", intent.PostID, intent.TopicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("topic post %q: %w", intent.PostID, collab.ErrNotFound)
			}
			return err
		}
		upvotes := toggle(rec.Upvotes, intent.ActorID, intent.WasUpvoted)
		return tx.Model(&rec).Update("upvotes", upvotes).Error
	})
}

// MarkAnswer sets or clears the accepted post of a topic.
func (r *Repository) MarkAnswer(ctx context.Context, intent collab.AnswerIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		topic, err := first[TopicRecord](tx, intent.TopicID)
		if err != nil {
			return err
		}
		if intent.PostID != "" {
			var count int64
			if err := tx.Model(&TopicPostRecord{}).
				Where("id = ? AND topic_id = ?", intent.PostID, intent.TopicID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("topic post %q: %w", intent.PostID, collab.ErrNotFound)
			}
		}
		return tx.Model(&topic).Update("accepted_post_id", intent.PostID).Error
	})
}

// ToggleMembership joins or leaves a community and keeps its member count.
func (r *Repository) ToggleMembership(ctx context.Context, intent collab.MembershipIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		community, err := first[CommunityRecord](tx, intent.CommunityID)
		if err != nil {
			return err
		}
		if intent.WasMember {
			res := tx.Where("user_id = ? AND community_id = ?", intent.ActorID, intent.CommunityID).
				Delete(&MembershipRecord{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 || community.MemberCount == 0 {
				return nil
			}
			return tx.Model(&community).Update("member_count", gorm.Expr("member_count - 1")).Error
		}

		now := r.now()
		if err := ensureUser(tx, intent.ActorID, now); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&MembershipRecord{
			UserID:      intent.ActorID,
			CommunityID: intent.CommunityID,
			Role:        models.RoleMember,
			JoinedAt:    now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&community).Update("member_count", gorm.Expr("member_count + 1")).Error
	})
}

// ReportContent files a report and flags reported posts.
func (r *Repository) ReportContent(ctx context.Context, intent collab.ReportIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch intent.Target.Type {
		case models.ContentPost:
			if _, err := first[PostRecord](tx, intent.Target.ID); err != nil {
				return err
			}
		case models.ContentIdea:
			if _, err := first[IdeaRecord](tx, intent.Target.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown content type %q", intent.Target.Type)
		}
		if err := tx.Create(&ReportRecord{
			ActorID:    intent.ActorID,
			TargetType: string(intent.Target.Type),
			TargetID:   intent.Target.ID,
			Reason:     intent.Reason,
			CreatedAt:  r.now(),
		}).Error; err != nil {
			return err
		}
		if intent.Target.Type != models.ContentPost {
			return nil
		}
		return tx.Model(&PostRecord{ID: intent.Target.ID}).Updates(map[string]interface{}{
			"is_flagged":        true,
			"moderation_reason": intent.Reason,
		}).Error
	})
}

// Seed writes entities directly, bypassing the intent flow. Used to load
// fixtures and imported data.
func (r *Repository) Seed(ctx context.Context, entities ...models.Entity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entity := range entities {
			var err error
			switch e := entity.(type) {
			case models.User:
				rec := userRecord(e)
				err = upsert(tx).Create(&rec).Error
			case models.Post:
				err = seedPost(tx, e)
			case models.Idea:
				err = seedIdea(tx, e)
			case models.DiscussionTopic:
				err = seedTopic(tx, e)
			case models.Community:
				err = upsert(tx).Create(&CommunityRecord{
					ID:          e.ID,
					Name:        e.Name,
					Description: e.Description,
					CreatorID:   e.CreatorID,
					Tags:        datatypes.JSONSlice[string](e.Tags),
					MemberCount: e.MemberCount,
					CreatedAt:   e.CreatedAt,
				}).Error
			case models.CommunityMembership:
				err = upsert(tx).Create(&MembershipRecord{
					UserID:      e.UserID,
					CommunityID: e.CommunityID,
					Role:        e.Role,
					JoinedAt:    e.JoinedAt,
				}).Error
			default:
				err = fmt.Errorf("cannot seed %T", entity)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{UpdateAll: true})
}

func seedPost(tx *gorm.DB, p models.Post) error {
	if p.Author != nil {
		rec := userRecord(*p.Author)
		if err := upsert(tx).Create(&rec).Error; err != nil {
			return err
		}
		if p.AuthorID == "" {
			p.AuthorID = p.Author.ID
		}
	}
	rec := PostRecord{
		ID:           p.ID,
		Content:      p.Content,
		AuthorID:     p.AuthorID,
		CreatedAt:    p.CreatedAt,
		Supporters:   datatypes.JSONSlice[string](p.Supporters.Slice()),
		SourcePosts:  datatypes.JSONSlice[string](p.SourcePosts),
		DerivedIdeas: datatypes.JSONSlice[string](p.DerivedIdeas),
		DerivedPosts: datatypes.JSONSlice[string](p.DerivedPosts),
	}
	if p.Moderation != nil {
		rec.Hidden = p.Moderation.Hidden
		rec.Flagged = p.Moderation.Flagged
		rec.ModerationReason = p.Moderation.Reason
	}
	if err := upsert(tx).Create(&rec).Error; err != nil {
		return err
	}
	for _, reply := range p.Replies {
		if err := upsert(tx).Create(&ReplyRecord{
			ID:        reply.ID,
			PostID:    p.ID,
			AuthorID:  reply.AuthorID,
			Content:   reply.Content,
			Likes:     datatypes.JSONSlice[string](reply.Likes.Slice()),
			CreatedAt: reply.CreatedAt,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedIdea(tx *gorm.DB, i models.Idea) error {
	creatorIDs := append([]string(nil), i.CreatorIDs...)
	known := models.NewIDSet(i.CreatorIDs...)
	for _, creator := range i.Creators {
		rec := userRecord(creator)
		if err := upsert(tx).Create(&rec).Error; err != nil {
			return err
		}
		if !known.Has(creator.ID) {
			known = known.With(creator.ID)
			creatorIDs = append(creatorIDs, creator.ID)
		}
	}
	status := i.Status
	if status == "" {
		status = models.IdeaPublished
	}
	updatedAt := i.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = i.CreatedAt
	}
	if err := upsert(tx).Create(&IdeaRecord{
		ID:             i.ID,
		Title:          i.Title,
		Summary:        i.Summary,
		Description:    i.Description,
		CreatorIDs:     datatypes.JSONSlice[string](creatorIDs),
		Supporters:     datatypes.JSONSlice[string](i.Supporters.Slice()),
		RatingCriteria: datatypes.JSONSlice[models.RatingCriterion](i.RatingCriteria),
		Tags:           datatypes.JSONSlice[string](i.Tags),
		Status:         string(status),
		SourceIdeas:    datatypes.JSONSlice[string](i.SourceIdeas),
		SourcePosts:    datatypes.JSONSlice[string](i.SourcePosts),
		DerivedIdeas:   datatypes.JSONSlice[string](i.DerivedIdeas),
		DiscussionIDs:  datatypes.JSONSlice[string](i.DiscussionIDs),
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      updatedAt,
	}).Error; err != nil {
		return err
	}
	for _, rating := range i.Ratings {
		if err := upsert(tx).Create(&RatingRecord{
			IdeaID:      i.ID,
			UserID:      rating.UserID,
			CriterionID: rating.CriterionID,
			Score:       rating.Score,
			CreatedAt:   rating.CreatedAt,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedTopic(tx *gorm.DB, t models.DiscussionTopic) error {
	topicType := t.Type
	if topicType == "" {
		topicType = models.TopicGeneral
	}
	if err := upsert(tx).Create(&TopicRecord{
		ID:             t.ID,
		IdeaID:         t.IdeaID,
		Title:          t.Title,
		Type:           string(topicType),
		AuthorID:       t.AuthorID,
		AcceptedPostID: t.AcceptedPostID,
		CreatedAt:      t.CreatedAt,
	}).Error; err != nil {
		return err
	}
	for _, post := range t.Posts {
		if err := upsert(tx).Create(&TopicPostRecord{
			ID:        post.ID,
			TopicID:   t.ID,
			AuthorID:  post.AuthorID,
			Content:   post.Content,
			Upvotes:   datatypes.JSONSlice[string](post.Upvotes.Slice()),
			CreatedAt: post.CreatedAt,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}
