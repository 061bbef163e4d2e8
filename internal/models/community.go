package models

import "time"

// Community groups users around shared interests.
type Community struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatorID   string    `json:"creatorId,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Community) Kind() Kind { return KindCommunity }

func (c Community) EntityID() string { return c.ID }

// Membership roles
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleOwner     = "owner"
)

// CommunityMembership records that a user joined a community.
type CommunityMembership struct {
	UserID      string    `json:"userId"`
	CommunityID string    `json:"communityId"`
	Role        string    `json:"role,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (CommunityMembership) Kind() Kind { return KindMembership }

func (m CommunityMembership) EntityID() string {
	return MembershipKey(m.UserID, m.CommunityID)
}

// MembershipKey builds the composite key of a membership.
func MembershipKey(userID, communityID string) string {
	return userID + "|" + communityID
}
