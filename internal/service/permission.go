package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

// Denial reasons are shown to the caller verbatim.
const (
	ReasonNotAccepting      = "This user is not accepting direct messages"
	ReasonBlockedByReceiver = "You have been blocked by this user"
	ReasonBlockedBySender   = "You have blocked this user"
	ReasonMustBeFriends     = "You must be friends to message this user"
	ReasonMustShareServer   = "You must share a server or be friends to message this user"
)

type DMDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() DMDecision             { return DMDecision{Allowed: true} }
func deny(reason string) DMDecision { return DMDecision{Reason: reason} }

// PermissionResolver decides whether one user may direct-message another.
// It only reads, so previews and the send path share it.
type PermissionResolver struct {
	settingsRepo   repository.SettingsRepository
	friendshipRepo repository.FriendshipRepository
	serverRepo     repository.ServerRepository
}

func NewPermissionResolver(
	settingsRepo repository.SettingsRepository,
	friendshipRepo repository.FriendshipRepository,
	serverRepo repository.ServerRepository,
) *PermissionResolver {
	return &PermissionResolver{
		settingsRepo:   settingsRepo,
		friendshipRepo: friendshipRepo,
		serverRepo:     serverRepo,
	}
}

func (p *PermissionResolver) CanSendDirectMessage(ctx context.Context, senderID, receiverID uuid.UUID) (DMDecision, error) {
	policy := domain.DefaultDMPermission
	settings, err := p.settingsRepo.Get(ctx, receiverID)
	if err != nil {
		return DMDecision{}, err
	}
	if settings != nil && settings.DMPermission.Valid() {
		policy = settings.DMPermission
	}

	switch policy {
	case domain.DMPermissionEveryone:
		return allow(), nil
	case domain.DMPermissionNone:
		return deny(ReasonNotAccepting), nil
	}

	rel, err := p.friendshipRepo.GetBetween(ctx, senderID, receiverID)
	if err != nil {
		return DMDecision{}, err
	}
	if rel.BlockedBy(receiverID) {
		return deny(ReasonBlockedByReceiver), nil
	}
	if rel.BlockedBy(senderID) {
		return deny(ReasonBlockedBySender), nil
	}

	friends := rel.AreFriends()
	if policy == domain.DMPermissionFriends {
		if friends {
			return allow(), nil
		}
		return deny(ReasonMustBeFriends), nil
	}

	if friends {
		return allow(), nil
	}
	shared, err := p.serverRepo.ShareServer(ctx, senderID, receiverID)
	if err != nil {
		return DMDecision{}, err
	}
	if shared {
		return allow(), nil
	}
	return deny(ReasonMustShareServer), nil
}

// RequireDirectMessage turns a denial into a PermissionDenied error.
func (p *PermissionResolver) RequireDirectMessage(ctx context.Context, senderID, receiverID uuid.UUID) error {
	d, err := p.CanSendDirectMessage(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return apperr.PermissionDenied(d.Reason)
	}
	return nil
}
