package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Discriminator string    `json:"discriminator"`
	PasswordHash  string    `json:"-"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tag returns the disambiguated handle, e.g. "alice#0042".
func (u *User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

// UserSummary is the minimal projection joined onto messages and member lists.
type UserSummary struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Discriminator string    `json:"discriminator"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	Status        string    `json:"status"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Discriminator: u.Discriminator,
		AvatarURL:     u.AvatarURL,
		Status:        u.Status,
	}
}
