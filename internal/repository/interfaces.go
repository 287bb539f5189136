package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

// TxManager runs fn so that every repository call made with the ctx it
// receives commits or rolls back together.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByTag(ctx context.Context, username, discriminator string) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
}

type SettingsRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error)
	Upsert(ctx context.Context, settings *domain.UserSettings) error
}

type FriendshipRepository interface {
	Create(ctx context.Context, f *domain.Friendship) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Friendship, error)
	// GetBetween loads the rows stored as (a, b) and (b, a).
	GetBetween(ctx context.Context, a, b uuid.UUID) (domain.Relation, error)
	Accept(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error)
	ListIncoming(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error)
	ListOutgoing(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error)
	ListBlocked(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error)
}

type ServerRepository interface {
	Create(ctx context.Context, server *domain.Server) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Server, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Server, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Server, error)
	Update(ctx context.Context, server *domain.Server) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, member *domain.ServerMember) error
	RemoveMember(ctx context.Context, serverID, userID uuid.UUID) error
	SetBanned(ctx context.Context, serverID, userID uuid.UUID, banned bool) error
	GetMember(ctx context.Context, serverID, userID uuid.UUID) (*domain.ServerMember, error)
	ListMembers(ctx context.Context, serverID uuid.UUID) ([]domain.ServerMember, error)
	// ShareServer reports whether a and b hold non-banned memberships in a
	// common server.
	ShareServer(ctx context.Context, a, b uuid.UUID) (bool, error)
}

type InviteRepository interface {
	Create(ctx context.Context, invite *domain.ServerInvite) error
	GetByToken(ctx context.Context, token string) (*domain.ServerInvite, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]domain.ServerInvite, error)
	IncrementUses(ctx context.Context, id uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	SetOwner(ctx context.Context, id, ownerID uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type MemberRepository interface {
	Add(ctx context.Context, members ...domain.ConversationMember) error
	// Get returns the row even when it has been left.
	Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationMember, error)
	// ListActive is ordered by joined_at then user_id.
	ListActive(ctx context.Context, conversationID uuid.UUID) ([]domain.ConversationMember, error)
	MarkLeft(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
	SetRole(ctx context.Context, conversationID, userID uuid.UUID, role *string) error
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time, messageID *uuid.UUID) error
	UpdateSettings(ctx context.Context, conversationID, userID uuid.UUID, patch domain.MemberSettingsPatch) error
	SetHidden(ctx context.Context, conversationID, userID uuid.UUID, at *time.Time) error
	// ClearHidden unhides the conversation for every member and returns how
	// many rows changed.
	ClearHidden(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type MessageRepository interface {
	// Append inserts msg and bumps the conversation's last_message_at.
	Append(ctx context.Context, msg *domain.ConversationMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ConversationMessage, error)
	// ListPage returns up to limit messages older than before, newest first,
	// joined with their live sender. Messages whose sender is gone are
	// dropped.
	ListPage(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.ConversationMessage, error)
	Latest(ctx context.Context, conversationID uuid.UUID) (*domain.ConversationMessage, error)
	// CountUnread counts messages from other senders created after since,
	// or all of them when since is nil.
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since *time.Time) (int, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, placeholder string, at time.Time) error
}

type TypingRepository interface {
	Upsert(ctx context.Context, indicator *domain.TypingIndicator) error
	Delete(ctx context.Context, conversationID, userID uuid.UUID) error
	// ListLive returns indicators whose lease has not expired at now.
	ListLive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error)
}
