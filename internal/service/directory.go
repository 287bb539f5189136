package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

var (
	ErrNoMembers         = apperr.InvalidArgument("At least one other member is required")
	ErrGroupSize         = apperr.InvalidState("A group must have between 2 and 10 members")
	ErrGroupFull         = apperr.InvalidState("A group can have at most 10 members")
	ErrGroupNameRequired = apperr.InvalidArgument("Group name is required")
	ErrNotGroup          = apperr.InvalidState("This action is only available in group conversations")
	ErrNotGroupOwner     = apperr.Forbidden("Only the group owner can perform this action")
)

// DirectoryService finds, creates and reshapes conversations.
type DirectoryService struct {
	membershipGuard
	txm         repository.TxManager
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	resolver    *PermissionResolver
	notifier    Notifier
	now         func() time.Time
}

func NewDirectoryService(
	txm repository.TxManager,
	convRepo repository.ConversationRepository,
	memberRepo repository.MemberRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	resolver *PermissionResolver,
) *DirectoryService {
	return &DirectoryService{
		membershipGuard: membershipGuard{convRepo: convRepo, memberRepo: memberRepo},
		txm:             txm,
		messageRepo:     messageRepo,
		userRepo:        userRepo,
		resolver:        resolver,
		now:             time.Now,
	}
}

func (s *DirectoryService) SetNotifier(n Notifier) {
	s.notifier = n
}

type CreateGroupInput struct {
	Name      string      `json:"name" validate:"required,max=100"`
	IconURL   *string     `json:"icon_url" validate:"omitempty,url"`
	MemberIDs []uuid.UUID `json:"member_ids" validate:"required,min=1,max=10"`
}

type MembersInput struct {
	MemberIDs []uuid.UUID `json:"member_ids" validate:"required,min=1,max=10"`
	Name      *string     `json:"name" validate:"omitempty,max=100"`
	IconURL   *string     `json:"icon_url" validate:"omitempty,url"`
}

type ConversationRef struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Created        bool      `json:"created"`
}

// FindOrCreateDirect returns the active direct conversation between a and b,
// creating one when none exists. Two concurrent calls may both create.
func (s *DirectoryService) FindOrCreateDirect(ctx context.Context, a, b uuid.UUID) (ConversationRef, error) {
	var ref ConversationRef
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.findOrCreateDirect(ctx, a, b)
		return err
	})
	return ref, err
}

func (s *DirectoryService) findOrCreateDirect(ctx context.Context, a, b uuid.UUID) (ConversationRef, error) {
	candidates, err := s.sharedConversations(ctx, []uuid.UUID{a, b})
	if err != nil {
		return ConversationRef{}, err
	}
	for _, id := range candidates {
		conv, err := s.convRepo.GetByID(ctx, id)
		if err != nil {
			return ConversationRef{}, err
		}
		if conv != nil && conv.Type == domain.ConversationDirect && conv.IsActive {
			return ConversationRef{ConversationID: conv.ID}, nil
		}
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationDirect,
		IsActive:  true,
		CreatedBy: a,
		CreatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return ConversationRef{}, fmt.Errorf("creating direct conversation: %w", err)
	}
	if err := s.memberRepo.Add(ctx,
		domain.ConversationMember{ConversationID: conv.ID, UserID: a, JoinedAt: now},
		domain.ConversationMember{ConversationID: conv.ID, UserID: b, JoinedAt: now},
	); err != nil {
		return ConversationRef{}, fmt.Errorf("adding direct members: %w", err)
	}

	log.Debug("created direct conversation", "conversation_id", conv.ID)
	return ConversationRef{ConversationID: conv.ID, Created: true}, nil
}

// FindExactGroup returns the active group whose current members are exactly
// memberIDs, or nil.
func (s *DirectoryService) FindExactGroup(ctx context.Context, memberIDs []uuid.UUID) (*uuid.UUID, error) {
	want := make(map[uuid.UUID]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		want[id] = struct{}{}
	}

	candidates, err := s.sharedConversations(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range candidates {
		conv, err := s.convRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if conv == nil || conv.Type != domain.ConversationGroup || !conv.IsActive {
			continue
		}
		members, err := s.memberRepo.ListActive(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(members) != len(want) {
			continue
		}
		exact := true
		for _, m := range members {
			if _, ok := want[m.UserID]; !ok {
				exact = false
				break
			}
		}
		if exact {
			return &conv.ID, nil
		}
	}
	return nil, nil
}

// sharedConversations intersects the active conversation ids of every user.
func (s *DirectoryService) sharedConversations(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	var shared []uuid.UUID
	for i, userID := range userIDs {
		memberships, err := s.memberRepo.ListActiveByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			for _, m := range memberships {
				shared = append(shared, m.ConversationID)
			}
		} else {
			have := make(map[uuid.UUID]struct{}, len(memberships))
			for _, m := range memberships {
				have[m.ConversationID] = struct{}{}
			}
			kept := shared[:0]
			for _, id := range shared {
				if _, ok := have[id]; ok {
					kept = append(kept, id)
				}
			}
			shared = kept
		}
		if len(shared) == 0 {
			return nil, nil
		}
	}
	return shared, nil
}

// CreateGroup creates a new group owned by creatorID. Every target must pass
// the permission resolver.
func (s *DirectoryService) CreateGroup(ctx context.Context, creatorID uuid.UUID, input CreateGroupInput) (uuid.UUID, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return uuid.Nil, ErrGroupNameRequired
	}

	var id uuid.UUID
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		others := dedupeExcluding(input.MemberIDs, creatorID)
		if err := s.checkTargets(ctx, creatorID, others); err != nil {
			return err
		}
		var err error
		id, err = s.createGroup(ctx, creatorID, others, &name, input.IconURL)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.notifyUpdated(id)
	return id, nil
}

// GetOrCreateForMembers resolves the conversation for the caller plus
// memberIDs: a direct conversation for one other member, otherwise an exact
// group match or a new group.
func (s *DirectoryService) GetOrCreateForMembers(ctx context.Context, callerID uuid.UUID, input MembersInput) (ConversationRef, error) {
	others := dedupeExcluding(input.MemberIDs, callerID)
	if len(others) == 0 {
		return ConversationRef{}, ErrNoMembers
	}
	if len(others) > domain.MaxGroupMembers-1 {
		return ConversationRef{}, ErrGroupSize
	}

	var ref ConversationRef
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkTargets(ctx, callerID, others); err != nil {
			return err
		}

		if len(others) == 1 {
			var err error
			ref, err = s.findOrCreateDirect(ctx, callerID, others[0])
			return err
		}

		all := append([]uuid.UUID{callerID}, others...)
		existing, err := s.FindExactGroup(ctx, all)
		if err != nil {
			return err
		}
		if existing != nil {
			ref = ConversationRef{ConversationID: *existing}
			return nil
		}

		var name *string
		if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
			trimmed := strings.TrimSpace(*input.Name)
			name = &trimmed
		}
		id, err := s.createGroup(ctx, callerID, others, name, input.IconURL)
		if err != nil {
			return err
		}
		ref = ConversationRef{ConversationID: id, Created: true}
		return nil
	})
	if err != nil {
		return ConversationRef{}, err
	}
	if ref.Created {
		s.notifyUpdated(ref.ConversationID)
	}
	return ref, nil
}

// checkTargets verifies every target exists and accepts messages from actorID.
func (s *DirectoryService) checkTargets(ctx context.Context, actorID uuid.UUID, targets []uuid.UUID) error {
	for _, id := range targets {
		if _, err := requireUser(ctx, s.userRepo, id); err != nil {
			return err
		}
		if err := s.resolver.RequireDirectMessage(ctx, actorID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *DirectoryService) createGroup(ctx context.Context, creatorID uuid.UUID, others []uuid.UUID, name, iconURL *string) (uuid.UUID, error) {
	if len(others) < 1 || len(others) > domain.MaxGroupMembers-1 {
		return uuid.Nil, ErrGroupSize
	}
	creator, err := requireUser(ctx, s.userRepo, creatorID)
	if err != nil {
		return uuid.Nil, err
	}
	for _, id := range others {
		if _, err := requireUser(ctx, s.userRepo, id); err != nil {
			return uuid.Nil, err
		}
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationGroup,
		Name:      name,
		IconURL:   iconURL,
		OwnerID:   &creatorID,
		IsActive:  true,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return uuid.Nil, fmt.Errorf("creating group conversation: %w", err)
	}

	owner, member := domain.MemberRoleOwner, domain.MemberRoleMember
	members := make([]domain.ConversationMember, 0, len(others)+1)
	members = append(members, domain.ConversationMember{ConversationID: conv.ID, UserID: creatorID, Role: &owner, JoinedAt: now})
	for _, id := range others {
		members = append(members, domain.ConversationMember{ConversationID: conv.ID, UserID: id, Role: &member, JoinedAt: now})
	}
	if err := s.memberRepo.Add(ctx, members...); err != nil {
		return uuid.Nil, fmt.Errorf("adding group members: %w", err)
	}

	if _, err := s.appendSystemMessage(ctx, conv.ID, creator, displayName(creator)+" created the group"); err != nil {
		return uuid.Nil, err
	}
	return conv.ID, nil
}

// AddMembers adds users to a group. Only the owner may call it. Users who
// are already members are skipped; the count of new members is returned.
func (s *DirectoryService) AddMembers(ctx context.Context, actorID, conversationID uuid.UUID, memberIDs []uuid.UUID) (int, error) {
	var added int
	var sysMsg *domain.ConversationMessage
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		conv, member, err := s.requireActive(ctx, conversationID, actorID)
		if err != nil {
			return err
		}
		if !conv.IsGroup() {
			return ErrNotGroup
		}
		if !member.IsOwner() {
			return ErrNotGroupOwner
		}

		current, err := s.memberRepo.ListActive(ctx, conversationID)
		if err != nil {
			return err
		}
		present := make(map[uuid.UUID]struct{}, len(current))
		for _, m := range current {
			present[m.UserID] = struct{}{}
		}

		var newUsers []*domain.User
		for _, id := range dedupeExcluding(memberIDs, actorID) {
			if _, ok := present[id]; ok {
				continue
			}
			u, err := requireUser(ctx, s.userRepo, id)
			if err != nil {
				return err
			}
			newUsers = append(newUsers, u)
		}
		if len(newUsers) == 0 {
			return nil
		}
		if len(current)+len(newUsers) > domain.MaxGroupMembers {
			return ErrGroupFull
		}

		now := s.now()
		role := domain.MemberRoleMember
		rows := make([]domain.ConversationMember, 0, len(newUsers))
		names := make([]string, 0, len(newUsers))
		for _, u := range newUsers {
			rows = append(rows, domain.ConversationMember{ConversationID: conversationID, UserID: u.ID, Role: &role, JoinedAt: now})
			names = append(names, displayName(u))
		}
		if err := s.memberRepo.Add(ctx, rows...); err != nil {
			return fmt.Errorf("adding members: %w", err)
		}

		actor, err := requireUser(ctx, s.userRepo, actorID)
		if err != nil {
			return err
		}
		sysMsg, err = s.appendSystemMessage(ctx, conversationID, actor,
			displayName(actor)+" added "+strings.Join(names, ", "))
		if err != nil {
			return err
		}
		added = len(newUsers)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sysMsg != nil {
		s.notifyMessage(sysMsg)
		s.notifyUpdated(conversationID)
	}
	return added, nil
}

// Leave removes the actor from a group. An owner hands the role to the
// longest-tenured remaining member; the last one out closes the group.
func (s *DirectoryService) Leave(ctx context.Context, actorID, conversationID uuid.UUID) error {
	var sysMsg *domain.ConversationMessage
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		conv, member, err := s.requireActive(ctx, conversationID, actorID)
		if err != nil {
			return err
		}
		if !conv.IsGroup() {
			return ErrNotGroup
		}
		actor, err := requireUser(ctx, s.userRepo, actorID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.memberRepo.MarkLeft(ctx, conversationID, actorID, now); err != nil {
			return fmt.Errorf("leaving conversation: %w", err)
		}
		sysMsg, err = s.appendSystemMessage(ctx, conversationID, actor, displayName(actor)+" left the group")
		if err != nil {
			return err
		}

		remaining, err := s.memberRepo.ListActive(ctx, conversationID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := s.convRepo.Deactivate(ctx, conversationID); err != nil {
				return fmt.Errorf("deactivating conversation: %w", err)
			}
			return nil
		}

		if member.IsOwner() {
			heir := remaining[0]
			owner := domain.MemberRoleOwner
			if err := s.memberRepo.SetRole(ctx, conversationID, heir.UserID, &owner); err != nil {
				return fmt.Errorf("promoting owner: %w", err)
			}
			if err := s.convRepo.SetOwner(ctx, conversationID, heir.UserID); err != nil {
				return fmt.Errorf("transferring ownership: %w", err)
			}
			log.Info("group ownership transferred", "conversation_id", conversationID, "from", actorID, "to", heir.UserID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.NotifyMemberLeft(conversationID, actorID)
	}
	s.notifyMessage(sysMsg)
	s.notifyUpdated(conversationID)
	return nil
}

func (s *DirectoryService) appendSystemMessage(ctx context.Context, conversationID uuid.UUID, author *domain.User, content string) (*domain.ConversationMessage, error) {
	msg := &domain.ConversationMessage{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		SenderID:          author.ID,
		Content:           content,
		Type:              domain.MessageText,
		Attachments:       []domain.Attachment{},
		CreatedAt:         s.now(),
		SenderDisplayName: displayName(author),
		SenderAvatarURL:   author.AvatarURL,
	}
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending system message: %w", err)
	}
	return msg, nil
}

func (s *DirectoryService) notifyMessage(msg *domain.ConversationMessage) {
	if s.notifier != nil && msg != nil {
		s.notifier.NotifyNewMessage(msg)
	}
}

func (s *DirectoryService) notifyUpdated(conversationID uuid.UUID) {
	if s.notifier != nil {
		s.notifier.NotifyConversationUpdated(conversationID)
	}
}
