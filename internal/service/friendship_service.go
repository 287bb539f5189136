package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

var (
	ErrCannotFriendSelf   = apperr.Forbidden("You cannot send a friend request to yourself")
	ErrCannotBlockSelf    = apperr.Forbidden("You cannot block yourself")
	ErrFriendRequestBlock = apperr.Forbidden("You cannot send a friend request to this user")
	ErrAlreadyFriends     = apperr.InvalidState("You are already friends")
	ErrAlreadyBlocked     = apperr.InvalidState("You have already blocked this user")
	ErrYouBlockedUser     = apperr.InvalidState("You have blocked this user")
	ErrRequestExists      = apperr.InvalidState("A pending request already exists")
	ErrRequestNotPending  = apperr.InvalidState("This friend request is no longer pending")
	ErrRequestNotFound    = apperr.NotFound("Friend request not found")
	ErrFriendshipNotFound = apperr.NotFound("Friendship not found")
	ErrBlockNotFound      = apperr.NotFound("You have not blocked this user")
	ErrNotRequestReceiver = apperr.Forbidden("Only the request receiver can perform this action")
	ErrNotRequestSender   = apperr.Forbidden("Only the request sender can cancel")
	ErrTargetRequired     = apperr.InvalidArgument("Either user_id or username and discriminator are required")
)

type FriendshipService struct {
	txm            repository.TxManager
	friendshipRepo repository.FriendshipRepository
	userRepo       repository.UserRepository
	now            func() time.Time
}

func NewFriendshipService(txm repository.TxManager, friendshipRepo repository.FriendshipRepository, userRepo repository.UserRepository) *FriendshipService {
	return &FriendshipService{
		txm:            txm,
		friendshipRepo: friendshipRepo,
		userRepo:       userRepo,
		now:            time.Now,
	}
}

type FriendRequestInput struct {
	UserID        *uuid.UUID `json:"user_id"`
	Username      string     `json:"username" validate:"omitempty,min=2,max=32"`
	Discriminator string     `json:"discriminator" validate:"omitempty,len=4,numeric"`
}

func (s *FriendshipService) lookupTarget(ctx context.Context, input FriendRequestInput) (*domain.User, error) {
	if input.UserID != nil {
		return requireUser(ctx, s.userRepo, *input.UserID)
	}
	if input.Username == "" || input.Discriminator == "" {
		return nil, ErrTargetRequired
	}
	u, err := s.userRepo.GetByTag(ctx, input.Username, input.Discriminator)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// SendRequest sends a friend request. A pending request in the other
// direction is accepted instead.
func (s *FriendshipService) SendRequest(ctx context.Context, senderID uuid.UUID, input FriendRequestInput) (*domain.Friendship, error) {
	var out *domain.Friendship
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		target, err := s.lookupTarget(ctx, input)
		if err != nil {
			return err
		}
		if target.ID == senderID {
			return ErrCannotFriendSelf
		}

		rel, err := s.friendshipRepo.GetBetween(ctx, senderID, target.ID)
		if err != nil {
			return err
		}
		switch {
		case rel.BlockedBy(senderID):
			return ErrYouBlockedUser
		case rel.BlockedBy(target.ID):
			return ErrFriendRequestBlock
		case rel.AreFriends():
			return ErrAlreadyFriends
		case rel.Forward != nil && rel.Forward.Status == domain.FriendshipPending:
			return ErrRequestExists
		case rel.Reverse != nil && rel.Reverse.Status == domain.FriendshipPending:
			now := s.now()
			if err := s.friendshipRepo.Accept(ctx, rel.Reverse.ID, now); err != nil {
				return fmt.Errorf("accepting reverse request: %w", err)
			}
			rel.Reverse.Status = domain.FriendshipAccepted
			rel.Reverse.AcceptedAt = &now
			out = rel.Reverse
			return nil
		}

		f := &domain.Friendship{
			ID:          uuid.New(),
			UserID1:     senderID,
			UserID2:     target.ID,
			Status:      domain.FriendshipPending,
			RequestedBy: senderID,
			CreatedAt:   s.now(),
		}
		if err := s.friendshipRepo.Create(ctx, f); err != nil {
			return fmt.Errorf("creating friend request: %w", err)
		}
		out = f
		return nil
	})
	return out, err
}

func (s *FriendshipService) pendingRequest(ctx context.Context, requestID uuid.UUID) (*domain.Friendship, error) {
	f, err := s.friendshipRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrRequestNotFound
	}
	if f.Status != domain.FriendshipPending {
		return nil, ErrRequestNotPending
	}
	return f, nil
}

func (s *FriendshipService) AcceptRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		f, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if f.UserID2 != userID {
			return ErrNotRequestReceiver
		}
		return s.friendshipRepo.Accept(ctx, requestID, s.now())
	})
}

// RejectRequest deletes a pending request addressed to userID.
func (s *FriendshipService) RejectRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		f, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if f.UserID2 != userID {
			return ErrNotRequestReceiver
		}
		return s.friendshipRepo.Delete(ctx, requestID)
	})
}

func (s *FriendshipService) CancelRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		f, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if f.UserID1 != userID {
			return ErrNotRequestSender
		}
		return s.friendshipRepo.Delete(ctx, requestID)
	})
}

func (s *FriendshipService) RemoveFriend(ctx context.Context, userID, otherID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		rel, err := s.friendshipRepo.GetBetween(ctx, userID, otherID)
		if err != nil {
			return err
		}
		for _, f := range []*domain.Friendship{rel.Forward, rel.Reverse} {
			if f != nil && f.Status == domain.FriendshipAccepted {
				return s.friendshipRepo.Delete(ctx, f.ID)
			}
		}
		return ErrFriendshipNotFound
	})
}

// Block replaces any friendship or pending request with a block owned by
// userID. A block the other user placed is left in place.
func (s *FriendshipService) Block(ctx context.Context, userID, targetID uuid.UUID) error {
	if userID == targetID {
		return ErrCannotBlockSelf
	}
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := requireUser(ctx, s.userRepo, targetID); err != nil {
			return err
		}
		rel, err := s.friendshipRepo.GetBetween(ctx, userID, targetID)
		if err != nil {
			return err
		}
		if rel.BlockedBy(userID) {
			return ErrAlreadyBlocked
		}

		for _, f := range []*domain.Friendship{rel.Forward, rel.Reverse} {
			if f != nil && f.Status != domain.FriendshipBlocked {
				if err := s.friendshipRepo.Delete(ctx, f.ID); err != nil {
					return fmt.Errorf("replacing friendship: %w", err)
				}
			}
		}

		return s.friendshipRepo.Create(ctx, &domain.Friendship{
			ID:          uuid.New(),
			UserID1:     userID,
			UserID2:     targetID,
			Status:      domain.FriendshipBlocked,
			RequestedBy: userID,
			CreatedAt:   s.now(),
		})
	})
}

// Unblock lifts a block placed by userID.
func (s *FriendshipService) Unblock(ctx context.Context, userID, targetID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		rel, err := s.friendshipRepo.GetBetween(ctx, userID, targetID)
		if err != nil {
			return err
		}
		if rel.Forward == nil || rel.Forward.Status != domain.FriendshipBlocked {
			return ErrBlockNotFound
		}
		return s.friendshipRepo.Delete(ctx, rel.Forward.ID)
	})
}

func (s *FriendshipService) ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return nonNil(s.friendshipRepo.ListFriends(ctx, userID))
}

func (s *FriendshipService) ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return nonNil(s.friendshipRepo.ListIncoming(ctx, userID))
}

func (s *FriendshipService) ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return nonNil(s.friendshipRepo.ListOutgoing(ctx, userID))
}

func (s *FriendshipService) ListBlocked(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return nonNil(s.friendshipRepo.ListBlocked(ctx, userID))
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
