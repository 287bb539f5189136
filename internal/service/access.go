package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

var (
	ErrConversationNotFound  = apperr.NotFound("Conversation not found")
	ErrNotConversationMember = apperr.Forbidden("You are not a member of this conversation")
	ErrConversationInactive  = apperr.InvalidState("This conversation is no longer active")
	ErrUserNotFound          = apperr.NotFound("User not found")
	ErrCannotMessageSelf     = apperr.Forbidden("You cannot message yourself")
)

// membershipGuard resolves a conversation together with the caller's
// active membership in it.
type membershipGuard struct {
	convRepo   repository.ConversationRepository
	memberRepo repository.MemberRepository
}

func (g membershipGuard) requireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, *domain.ConversationMember, error) {
	conv, err := g.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}

	member, err := g.memberRepo.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil || !member.Active() {
		return nil, nil, ErrNotConversationMember
	}
	return conv, member, nil
}

// requireActive additionally rejects conversations that were closed.
func (g membershipGuard) requireActive(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, *domain.ConversationMember, error) {
	conv, member, err := g.requireMember(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.IsActive {
		return nil, nil, ErrConversationInactive
	}
	return conv, member, nil
}

func requireUser(ctx context.Context, users repository.UserRepository, id uuid.UUID) (*domain.User, error) {
	u, err := users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func displayName(u *domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// dedupeExcluding returns ids in first-seen order without duplicates or self.
func dedupeExcluding(ids []uuid.UUID, self uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == self || id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
