package domain

import (
	"time"

	"github.com/google/uuid"
)

// DMPermission is a receiver's privacy policy for incoming direct messages.
type DMPermission string

const (
	DMPermissionEveryone      DMPermission = "everyone"
	DMPermissionFriends       DMPermission = "friends"
	DMPermissionServerMembers DMPermission = "server_members"
	DMPermissionNone          DMPermission = "none"
)

// DefaultDMPermission applies when a user has no settings row.
const DefaultDMPermission = DMPermissionServerMembers

func (p DMPermission) Valid() bool {
	switch p {
	case DMPermissionEveryone, DMPermissionFriends, DMPermissionServerMembers, DMPermissionNone:
		return true
	}
	return false
}

type UserSettings struct {
	UserID               uuid.UUID    `json:"user_id"`
	DMPermission         DMPermission `json:"dm_permission"`
	NotifyDirectMessages bool         `json:"notify_direct_messages"`
	NotifyFriendRequests bool         `json:"notify_friend_requests"`
	Theme                string       `json:"theme"`
	Locale               string       `json:"locale"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// DefaultSettings returns the settings a user implicitly has before saving any.
func DefaultSettings(userID uuid.UUID) *UserSettings {
	return &UserSettings{
		UserID:               userID,
		DMPermission:         DefaultDMPermission,
		NotifyDirectMessages: true,
		NotifyFriendRequests: true,
		Theme:                "system",
		Locale:               "en",
	}
}
