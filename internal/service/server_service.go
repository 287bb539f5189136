package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

var (
	ErrServerNotFound    = apperr.NotFound("Server not found")
	ErrSlugTaken         = apperr.Conflict("Server slug already taken")
	ErrInvalidSlug       = apperr.InvalidArgument("Server name must contain letters or digits")
	ErrNotServerOwner    = apperr.Forbidden("Only the server owner can perform this action")
	ErrNotModerator      = apperr.Forbidden("Only server owners and admins can perform this action")
	ErrNotServerMember   = apperr.Forbidden("You are not a member of this server")
	ErrAlreadyMember     = apperr.InvalidState("User is already a member")
	ErrMemberNotFound    = apperr.NotFound("Member not found")
	ErrCannotTargetOwner = apperr.Forbidden("The server owner cannot be removed or banned")
	ErrBannedFromServer  = apperr.Forbidden("You are banned from this server")
	ErrOwnerCannotLeave  = apperr.InvalidState("The owner cannot leave; delete the server instead")
	ErrInviteNotFound    = apperr.NotFound("Invite not found")
	ErrInviteUnusable    = apperr.InvalidState("This invite has expired or was revoked")
)

const defaultInviteTTL = 7 * 24 * time.Hour

type ServerService struct {
	txm        repository.TxManager
	serverRepo repository.ServerRepository
	inviteRepo repository.InviteRepository
	userRepo   repository.UserRepository
	now        func() time.Time
}

func NewServerService(
	txm repository.TxManager,
	serverRepo repository.ServerRepository,
	inviteRepo repository.InviteRepository,
	userRepo repository.UserRepository,
) *ServerService {
	return &ServerService{
		txm:        txm,
		serverRepo: serverRepo,
		inviteRepo: inviteRepo,
		userRepo:   userRepo,
		now:        time.Now,
	}
}

type CreateServerInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Slug        string  `json:"slug" validate:"omitempty,max=64"`
	Description string  `json:"description" validate:"max=500"`
	IconURL     *string `json:"icon_url" validate:"omitempty,url"`
}

type UpdateServerInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Slug        *string `json:"slug" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IconURL     *string `json:"icon_url" validate:"omitempty,url"`
}

type CreateInviteInput struct {
	MaxUses        int `json:"max_uses" validate:"min=0,max=1000"`
	ExpiresInHours int `json:"expires_in_hours" validate:"min=0,max=720"`
}

func (s *ServerService) Create(ctx context.Context, userID uuid.UUID, input CreateServerInput) (*domain.Server, error) {
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, ErrInvalidSlug
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	now := s.now()
	srv := &domain.Server{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        slug,
		Description: desc,
		IconURL:     input.IconURL,
		OwnerID:     userID,
		CreatedAt:   now,
	}

	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.serverRepo.GetBySlug(ctx, slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrSlugTaken
		}
		if err := s.serverRepo.Create(ctx, srv); err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		return s.serverRepo.AddMember(ctx, &domain.ServerMember{
			ServerID: srv.ID,
			UserID:   userID,
			Role:     domain.ServerRoleOwner,
			JoinedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// requireMember returns the caller's non-banned membership.
func (s *ServerService) requireMember(ctx context.Context, serverID, userID uuid.UUID) (*domain.ServerMember, error) {
	member, err := s.serverRepo.GetMember(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.IsBanned {
		return nil, ErrNotServerMember
	}
	return member, nil
}

func (s *ServerService) requireModerator(ctx context.Context, serverID, userID uuid.UUID) error {
	member, err := s.serverRepo.GetMember(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if member == nil || !member.CanModerate() {
		return ErrNotModerator
	}
	return nil
}

func (s *ServerService) requireOwned(ctx context.Context, serverID, userID uuid.UUID) (*domain.Server, error) {
	srv, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, ErrServerNotFound
	}
	if srv.OwnerID != userID {
		return nil, ErrNotServerOwner
	}
	return srv, nil
}

func (s *ServerService) GetByID(ctx context.Context, userID, serverID uuid.UUID) (*domain.Server, error) {
	if _, err := s.requireMember(ctx, serverID, userID); err != nil {
		return nil, err
	}
	srv, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, ErrServerNotFound
	}
	return srv, nil
}

func (s *ServerService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Server, error) {
	return nonNil(s.serverRepo.ListByUser(ctx, userID))
}

func (s *ServerService) Update(ctx context.Context, userID, serverID uuid.UUID, input UpdateServerInput) (*domain.Server, error) {
	var srv *domain.Server
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		srv, err = s.requireOwned(ctx, serverID, userID)
		if err != nil {
			return err
		}

		if input.Name != nil {
			srv.Name = *input.Name
		}
		if input.Slug != nil {
			newSlug := slugify(*input.Slug)
			if newSlug == "" {
				return ErrInvalidSlug
			}
			existing, err := s.serverRepo.GetBySlug(ctx, newSlug)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != srv.ID {
				return ErrSlugTaken
			}
			srv.Slug = newSlug
		}
		if input.Description != nil {
			srv.Description = input.Description
		}
		if input.IconURL != nil {
			srv.IconURL = input.IconURL
		}

		if err := s.serverRepo.Update(ctx, srv); err != nil {
			return fmt.Errorf("updating server: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (s *ServerService) Delete(ctx context.Context, userID, serverID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.requireOwned(ctx, serverID, userID); err != nil {
			return err
		}
		return s.serverRepo.Delete(ctx, serverID)
	})
}

func (s *ServerService) AddMember(ctx context.Context, requesterID, serverID, userID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireModerator(ctx, serverID, requesterID); err != nil {
			return err
		}
		if _, err := requireUser(ctx, s.userRepo, userID); err != nil {
			return err
		}

		existing, err := s.serverRepo.GetMember(ctx, serverID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.IsBanned {
				return ErrBannedFromServer
			}
			return ErrAlreadyMember
		}

		return s.serverRepo.AddMember(ctx, &domain.ServerMember{
			ServerID: serverID,
			UserID:   userID,
			Role:     domain.ServerRoleMember,
			JoinedAt: s.now(),
		})
	})
}

// moderate applies fn to a target member after the usual checks.
func (s *ServerService) moderate(ctx context.Context, requesterID, serverID, userID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireModerator(ctx, serverID, requesterID); err != nil {
			return err
		}
		target, err := s.serverRepo.GetMember(ctx, serverID, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrMemberNotFound
		}
		if target.Role == domain.ServerRoleOwner {
			return ErrCannotTargetOwner
		}
		return fn(ctx)
	})
}

func (s *ServerService) RemoveMember(ctx context.Context, requesterID, serverID, userID uuid.UUID) error {
	return s.moderate(ctx, requesterID, serverID, userID, func(ctx context.Context) error {
		return s.serverRepo.RemoveMember(ctx, serverID, userID)
	})
}

// Ban keeps the membership row but excludes it from every shared-server check.
func (s *ServerService) Ban(ctx context.Context, requesterID, serverID, userID uuid.UUID) error {
	return s.moderate(ctx, requesterID, serverID, userID, func(ctx context.Context) error {
		return s.serverRepo.SetBanned(ctx, serverID, userID, true)
	})
}

func (s *ServerService) Unban(ctx context.Context, requesterID, serverID, userID uuid.UUID) error {
	return s.moderate(ctx, requesterID, serverID, userID, func(ctx context.Context) error {
		return s.serverRepo.SetBanned(ctx, serverID, userID, false)
	})
}

func (s *ServerService) Leave(ctx context.Context, userID, serverID uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		member, err := s.requireMember(ctx, serverID, userID)
		if err != nil {
			return err
		}
		if member.Role == domain.ServerRoleOwner {
			return ErrOwnerCannotLeave
		}
		return s.serverRepo.RemoveMember(ctx, serverID, userID)
	})
}

func (s *ServerService) ListMembers(ctx context.Context, userID, serverID uuid.UUID) ([]domain.ServerMember, error) {
	if _, err := s.requireMember(ctx, serverID, userID); err != nil {
		return nil, err
	}
	return nonNil(s.serverRepo.ListMembers(ctx, serverID))
}

func (s *ServerService) CreateInvite(ctx context.Context, userID, serverID uuid.UUID, input CreateInviteInput) (*domain.ServerInvite, error) {
	if err := s.requireModerator(ctx, serverID, userID); err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generating invite token: %w", err)
	}
	ttl := defaultInviteTTL
	if input.ExpiresInHours > 0 {
		ttl = time.Duration(input.ExpiresInHours) * time.Hour
	}

	now := s.now()
	inv := &domain.ServerInvite{
		ID:        uuid.New(),
		ServerID:  serverID,
		Token:     token,
		InvitedBy: userID,
		MaxUses:   input.MaxUses,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.inviteRepo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	return inv, nil
}

func (s *ServerService) ListInvites(ctx context.Context, userID, serverID uuid.UUID) ([]domain.ServerInvite, error) {
	if err := s.requireModerator(ctx, serverID, userID); err != nil {
		return nil, err
	}
	return nonNil(s.inviteRepo.ListByServer(ctx, serverID))
}

// GetInvite previews an invite for the accept page.
func (s *ServerService) GetInvite(ctx context.Context, token string) (*domain.ServerInvite, error) {
	inv, err := s.inviteRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInviteNotFound
	}
	if !inv.Usable(s.now()) {
		return nil, ErrInviteUnusable
	}
	return inv, nil
}

func (s *ServerService) AcceptInvite(ctx context.Context, userID uuid.UUID, token string) (*domain.Server, error) {
	var srv *domain.Server
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.GetInvite(ctx, token)
		if err != nil {
			return err
		}

		existing, err := s.serverRepo.GetMember(ctx, inv.ServerID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.IsBanned {
				return ErrBannedFromServer
			}
			return ErrAlreadyMember
		}

		if err := s.serverRepo.AddMember(ctx, &domain.ServerMember{
			ServerID: inv.ServerID,
			UserID:   userID,
			Role:     domain.ServerRoleMember,
			JoinedAt: s.now(),
		}); err != nil {
			return fmt.Errorf("joining server: %w", err)
		}
		if err := s.inviteRepo.IncrementUses(ctx, inv.ID); err != nil {
			return fmt.Errorf("counting invite use: %w", err)
		}

		srv, err = s.serverRepo.GetByID(ctx, inv.ServerID)
		if err != nil {
			return err
		}
		if srv == nil {
			return ErrServerNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (s *ServerService) RevokeInvite(ctx context.Context, userID uuid.UUID, token string) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.inviteRepo.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInviteNotFound
		}
		if err := s.requireModerator(ctx, inv.ServerID, userID); err != nil {
			return err
		}
		return s.inviteRepo.Revoke(ctx, inv.ID, s.now())
	})
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9-]`)
var multiDash = regexp.MustCompile(`-{2,}`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multiDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}
