package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ServerRoleOwner  = "owner"
	ServerRoleAdmin  = "admin"
	ServerRoleMember = "member"
)

type Server struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	IconURL     *string   `json:"icon_url,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type ServerMember struct {
	ServerID uuid.UUID `json:"server_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	IsBanned bool      `json:"is_banned"`
	JoinedAt time.Time `json:"joined_at"`
	// Joined fields
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// CanModerate reports whether the member may manage other members.
func (m *ServerMember) CanModerate() bool {
	return !m.IsBanned && (m.Role == ServerRoleOwner || m.Role == ServerRoleAdmin)
}

type ServerInvite struct {
	ID        uuid.UUID  `json:"id"`
	ServerID  uuid.UUID  `json:"server_id"`
	Token     string     `json:"token,omitempty"`
	InvitedBy uuid.UUID  `json:"invited_by"`
	MaxUses   int        `json:"max_uses"`
	Uses      int        `json:"uses"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// Joined field for accept page
	ServerName string `json:"server_name,omitempty"`
}

// Usable reports whether the invite can still be redeemed at now.
func (i *ServerInvite) Usable(now time.Time) bool {
	if i.RevokedAt != nil || !now.Before(i.ExpiresAt) {
		return false
	}
	return i.MaxUses == 0 || i.Uses < i.MaxUses
}
