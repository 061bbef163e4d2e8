package models

import "time"

// User is a platform identity.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Location    string    `json:"location,omitempty"`
	Registered  bool      `json:"registered"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (User) Kind() Kind { return KindUser }

func (u User) EntityID() string { return u.ID }

// Name returns the display name, falling back to the id.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}
