package db

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ideaflow/ideaflow/internal/models"
)

// UserRecord is the stored form of models.User
type UserRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(64);column:id"`
	DisplayName string    `gorm:"type:varchar(64);not null;default:'';column:display_name"`
	Bio         string    `gorm:"type:text;not null;default:'';column:bio"`
	AvatarURL   string    `gorm:"type:varchar(1024);not null;default:'';column:avatar_url"`
	Location    string    `gorm:"type:varchar(64);not null;default:'';column:location"`
	Registered  bool      `gorm:"not null;default:false;column:registered"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for UserRecord
func (UserRecord) TableName() string {
	return "ideaflow_users"
}

// PostRecord is the stored form of models.Post without replies
type PostRecord struct {
	ID               string                      `gorm:"primaryKey;type:varchar(64);column:id"`
	Content          string                      `gorm:"type:text;not null;default:'';column:content"`
	AuthorID         string                      `gorm:"type:varchar(64);not null;index:ideaflow_posts_ix1;column:author_id"`
	CreatedAt        time.Time                   `gorm:"not null;index:ideaflow_posts_ix2;column:created_at"`
	Supporters       datatypes.JSONSlice[string] `gorm:"column:supporters"`
	SourcePosts      datatypes.JSONSlice[string] `gorm:"column:source_posts"`
	DerivedIdeas     datatypes.JSONSlice[string] `gorm:"column:derived_ideas"`
	DerivedPosts     datatypes.JSONSlice[string] `gorm:"column:derived_posts"`
	Hidden           bool                        `gorm:"not null;default:false;column:is_hidden"`
	Flagged          bool                        `gorm:"not null;default:false;column:is_flagged"`
	ModerationReason string                      `gorm:"type:varchar(256);not null;default:'';column:moderation_reason"`
}

// TableName specifies the table name for PostRecord
func (PostRecord) TableName() string {
	return "ideaflow_posts"
}

// ReplyRecord is a reply on a post
type ReplyRecord struct {
	ID        string                      `gorm:"primaryKey;type:varchar(64);column:id"`
	PostID    string                      `gorm:"type:varchar(64);not null;index:ideaflow_replies_ix1;column:post_id"`
	AuthorID  string                      `gorm:"type:varchar(64);not null;column:author_id"`
	Content   string                      `gorm:"type:text;not null;column:content"`
	Likes     datatypes.JSONSlice[string] `gorm:"column:likes"`
	CreatedAt time.Time                   `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for ReplyRecord
func (ReplyRecord) TableName() string {
	return "ideaflow_replies"
}

// IdeaRecord is the stored form of models.Idea without ratings
type IdeaRecord struct {
	ID             string                                      `gorm:"primaryKey;type:varchar(64);column:id"`
	Title          string                                      `gorm:"type:varchar(256);not null;default:'';column:title"`
	Summary        string                                      `gorm:"type:text;not null;default:'';column:summary"`
	Description    string                                      `gorm:"type:text;not null;default:'';column:description"`
	CreatorIDs     datatypes.JSONSlice[string]                 `gorm:"column:creator_ids"`
	Supporters     datatypes.JSONSlice[string]                 `gorm:"column:supporters"`
	RatingCriteria datatypes.JSONSlice[models.RatingCriterion] `gorm:"column:rating_criteria"`
	Tags           datatypes.JSONSlice[string]                 `gorm:"column:tags"`
	Status         string                                      `gorm:"type:varchar(16);not null;default:'published';index:ideaflow_ideas_ix1;column:status"`
	SourceIdeas    datatypes.JSONSlice[string]                 `gorm:"column:source_ideas"`
	SourcePosts    datatypes.JSONSlice[string]                 `gorm:"column:source_posts"`
	DerivedIdeas   datatypes.JSONSlice[string]                 `gorm:"column:derived_ideas"`
	DiscussionIDs  datatypes.JSONSlice[string]                 `gorm:"column:discussion_ids"`
	CreatedAt      time.Time                                   `gorm:"not null;index:ideaflow_ideas_ix2;column:created_at"`
	UpdatedAt      time.Time                                   `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for IdeaRecord
func (IdeaRecord) TableName() string {
	return "ideaflow_ideas"
}

// RatingRecord is one user's score on one criterion of an idea
type RatingRecord struct {
	IdeaID      string    `gorm:"primaryKey;type:varchar(64);column:idea_id"`
	UserID      string    `gorm:"primaryKey;type:varchar(64);column:user_id"`
	CriterionID string    `gorm:"primaryKey;type:varchar(64);column:criterion_id"`
	Score       int       `gorm:"not null;column:score"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for RatingRecord
func (RatingRecord) TableName() string {
	return "ideaflow_ratings"
}

// TopicRecord is a discussion topic attached to an idea
type TopicRecord struct {
	ID             string    `gorm:"primaryKey;type:varchar(64);column:id"`
	IdeaID         string    `gorm:"type:varchar(64);not null;index:ideaflow_topics_ix1;column:idea_id"`
	Title          string    `gorm:"type:varchar(256);not null;column:title"`
	Type           string    `gorm:"type:varchar(16);not null;default:'general';column:type"`
	AuthorID       string    `gorm:"type:varchar(64);not null;column:author_id"`
	AcceptedPostID string    `gorm:"type:varchar(64);not null;default:'';column:accepted_post_id"`
	CreatedAt      time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for TopicRecord
func (TopicRecord) TableName() string {
	return "ideaflow_topics"
}

// TopicPostRecord is an entry of a discussion topic
type TopicPostRecord struct {
	ID        string                      `gorm:"primaryKey;type:varchar(64);column:id"`
	TopicID   string                      `gorm:"type:varchar(64);not null;index:ideaflow_topic_posts_ix1;column:topic_id"`
	AuthorID  string                      `gorm:"type:varchar(64);not null;column:author_id"`
	Content   string                      `gorm:"type:text;not null;column:content"`
	Upvotes   datatypes.JSONSlice[string] `gorm:"column:upvotes"`
	CreatedAt time.Time                   `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for TopicPostRecord
func (TopicPostRecord) TableName() string {
	return "ideaflow_topic_posts"
}

// CommunityRecord is the stored form of models.Community
type CommunityRecord struct {
	ID          string                      `gorm:"primaryKey;type:varchar(64);column:id"`
	Name        string                      `gorm:"type:varchar(128);not null;column:name"`
	Description string                      `gorm:"type:text;not null;default:'';column:description"`
	CreatorID   string                      `gorm:"type:varchar(64);not null;default:'';column:creator_id"`
	Tags        datatypes.JSONSlice[string] `gorm:"column:tags"`
	MemberCount int                         `gorm:"not null;default:0;column:member_count"`
	CreatedAt   time.Time                   `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for CommunityRecord
func (CommunityRecord) TableName() string {
	return "ideaflow_communities"
}

// MembershipRecord records that a user joined a community
type MembershipRecord struct {
	UserID      string    `gorm:"primaryKey;type:varchar(64);column:user_id"`
	CommunityID string    `gorm:"primaryKey;type:varchar(64);column:community_id"`
	Role        string    `gorm:"type:varchar(16);not null;default:'member';column:role"`
	JoinedAt    time.Time `gorm:"not null;column:joined_at"`
}

// TableName specifies the table name for MembershipRecord
func (MembershipRecord) TableName() string {
	return "ideaflow_memberships"
}

// ReportRecord is a moderation report filed by a user
type ReportRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ActorID    string    `gorm:"type:varchar(64);not null;column:actor_id"`
	TargetType string    `gorm:"type:varchar(8);not null;index:ideaflow_reports_ix1,priority:1;column:target_type"`
	TargetID   string    `gorm:"type:varchar(64);not null;index:ideaflow_reports_ix1,priority:2;column:target_id"`
	Reason     string    `gorm:"type:varchar(256);not null;default:'';column:reason"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for ReportRecord
func (ReportRecord) TableName() string {
	return "ideaflow_reports"
}

// allRecords lists every table managed by Migrate.
func allRecords() []interface{} {
	return []interface{}{
		&UserRecord{},
		&PostRecord{},
		&ReplyRecord{},
		&IdeaRecord{},
		&RatingRecord{},
		&TopicRecord{},
		&TopicPostRecord{},
		&CommunityRecord{},
		&MembershipRecord{},
		&ReportRecord{},
	}
}

func (r UserRecord) toModel() models.User {
	return models.User{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Bio:         r.Bio,
		AvatarURL:   r.AvatarURL,
		Location:    r.Location,
		Registered:  r.Registered,
		CreatedAt:   r.CreatedAt,
	}
}

func userRecord(u models.User) UserRecord {
	return UserRecord{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		Location:    u.Location,
		Registered:  u.Registered,
		CreatedAt:   u.CreatedAt,
	}
}

func (r PostRecord) toModel() models.Post {
	post := models.Post{
		ID:           r.ID,
		Content:      r.Content,
		AuthorID:     r.AuthorID,
		CreatedAt:    r.CreatedAt,
		Supporters:   models.NewIDSet(r.Supporters...),
		SourcePosts:  idList(r.SourcePosts),
		DerivedIdeas: idList(r.DerivedIdeas),
		DerivedPosts: idList(r.DerivedPosts),
	}
	if r.Hidden || r.Flagged || r.ModerationReason != "" {
		post.Moderation = &models.Moderation{
			Hidden:  r.Hidden,
			Flagged: r.Flagged,
			Reason:  r.ModerationReason,
		}
	}
	return post
}

func (r ReplyRecord) toModel() models.Reply {
	return models.Reply{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		Likes:     models.NewIDSet(r.Likes...),
	}
}

func (r IdeaRecord) toModel() models.Idea {
	return models.Idea{
		ID:             r.ID,
		Title:          r.Title,
		Summary:        r.Summary,
		Description:    r.Description,
		CreatorIDs:     idList(r.CreatorIDs),
		Supporters:     models.NewIDSet(r.Supporters...),
		RatingCriteria: append([]models.RatingCriterion(nil), r.RatingCriteria...),
		Tags:           idList(r.Tags),
		Status:         models.IdeaStatus(r.Status),
		SourceIdeas:    idList(r.SourceIdeas),
		SourcePosts:    idList(r.SourcePosts),
		DerivedIdeas:   idList(r.DerivedIdeas),
		DiscussionIDs:  idList(r.DiscussionIDs),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r RatingRecord) toModel() models.Rating {
	return models.Rating{
		UserID:      r.UserID,
		CriterionID: r.CriterionID,
		Score:       r.Score,
		CreatedAt:   r.CreatedAt,
	}
}

func (r TopicRecord) toModel() models.DiscussionTopic {
	return models.DiscussionTopic{
		ID:             r.ID,
		IdeaID:         r.IdeaID,
		Title:          r.Title,
		Type:           models.TopicType(r.Type),
		AuthorID:       r.AuthorID,
		AcceptedPostID: r.AcceptedPostID,
		CreatedAt:      r.CreatedAt,
	}
}

func (r TopicPostRecord) toModel() models.DiscussionPost {
	return models.DiscussionPost{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Content:   r.Content,
		Upvotes:   models.NewIDSet(r.Upvotes...),
		CreatedAt: r.CreatedAt,
	}
}

func (r CommunityRecord) toModel() models.Community {
	return models.Community{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatorID:   r.CreatorID,
		Tags:        idList(r.Tags),
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
	}
}

func (r MembershipRecord) toModel() models.CommunityMembership {
	return models.CommunityMembership{
		UserID:      r.UserID,
		CommunityID: r.CommunityID,
		Role:        r.Role,
		JoinedAt:    r.JoinedAt,
	}
}

func idList(values datatypes.JSONSlice[string]) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}
