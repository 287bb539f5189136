package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// MaxGroupMembers bounds a group conversation, owner included.
const MaxGroupMembers = 10

// TypingTTL is the lease length of a typing indicator.
const TypingTTL = 10 * time.Second

type Conversation struct {
	ID            uuid.UUID        `json:"id"`
	Type          ConversationType `json:"type"`
	Name          *string          `json:"name,omitempty"`
	IconURL       *string          `json:"icon_url,omitempty"`
	OwnerID       *uuid.UUID       `json:"owner_id,omitempty"`
	IsActive      bool             `json:"is_active"`
	CreatedBy     uuid.UUID        `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
}

func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

type ConversationMember struct {
	ConversationID    uuid.UUID  `json:"conversation_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Role              *string    `json:"role,omitempty"`
	JoinedAt          time.Time  `json:"joined_at"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
	IsMuted           bool       `json:"is_muted"`
	IsPinned          bool       `json:"is_pinned"`
	Nickname          *string    `json:"nickname,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty"`
	HiddenAt          *time.Time `json:"hidden_at,omitempty"`
}

// Active reports whether the membership still counts. Rows with LeftAt set
// are retained for history only.
func (m *ConversationMember) Active() bool {
	return m.LeftAt == nil
}

func (m *ConversationMember) IsOwner() bool {
	return m.Role != nil && *m.Role == MemberRoleOwner
}

// MemberSettingsPatch carries only the fields a caller chose to change.
type MemberSettingsPatch struct {
	IsMuted  *bool   `json:"is_muted,omitempty"`
	IsPinned *bool   `json:"is_pinned,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
}

func (p MemberSettingsPatch) Empty() bool {
	return p.IsMuted == nil && p.IsPinned == nil && p.Nickname == nil
}

type TypingIndicator struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Live reports whether the lease is still valid at now.
func (t *TypingIndicator) Live(now time.Time) bool {
	return t.ExpiresAt.After(now)
}
