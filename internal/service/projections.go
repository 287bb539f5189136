package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	fanOutLimit     = 8
)

// ProjectionService answers the read-only conversation queries. It never
// opens a transaction.
type ProjectionService struct {
	membershipGuard
	messageRepo repository.MessageRepository
	typingRepo  repository.TypingRepository
	userRepo    repository.UserRepository
	resolver    *PermissionResolver
	now         func() time.Time
}

func NewProjectionService(
	convRepo repository.ConversationRepository,
	memberRepo repository.MemberRepository,
	messageRepo repository.MessageRepository,
	typingRepo repository.TypingRepository,
	userRepo repository.UserRepository,
	resolver *PermissionResolver,
) *ProjectionService {
	return &ProjectionService{
		membershipGuard: membershipGuard{convRepo: convRepo, memberRepo: memberRepo},
		messageRepo:     messageRepo,
		typingRepo:      typingRepo,
		userRepo:        userRepo,
		resolver:        resolver,
		now:             time.Now,
	}
}

type ConversationSummary struct {
	Conversation domain.Conversation         `json:"conversation"`
	Membership   domain.ConversationMember   `json:"membership"`
	LastMessage  *domain.ConversationMessage `json:"last_message,omitempty"`
	UnreadCount  int                         `json:"unread_count"`
	OtherMembers []domain.UserSummary        `json:"other_members"`
}

// ListConversations returns the caller's visible conversations, pinned
// first, then most recent traffic first.
func (s *ProjectionService) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	memberships, err := s.memberRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]*ConversationSummary, len(memberships))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for i := range memberships {
		m := memberships[i]
		g.Go(func() error {
			summary, err := s.summarize(gctx, userID, m)
			if err != nil {
				return err
			}
			results[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Membership.IsPinned != b.Membership.IsPinned {
			return a.Membership.IsPinned
		}
		return activityAt(a.Conversation).After(activityAt(b.Conversation))
	})
	return out, nil
}

func activityAt(c domain.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// summarize returns nil for conversations that should not be listed.
func (s *ProjectionService) summarize(ctx context.Context, userID uuid.UUID, m domain.ConversationMember) (*ConversationSummary, error) {
	conv, err := s.convRepo.GetByID(ctx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.IsActive {
		return nil, nil
	}

	last, err := s.messageRepo.Latest(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if m.HiddenAt != nil && (last == nil || !last.CreatedAt.After(*m.HiddenAt)) {
		return nil, nil
	}

	unread, err := s.messageRepo.CountUnread(ctx, conv.ID, userID, m.LastReadAt)
	if err != nil {
		return nil, err
	}

	members, err := s.memberRepo.ListActive(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	others := make([]uuid.UUID, 0, len(members))
	for _, mm := range members {
		if mm.UserID != userID {
			others = append(others, mm.UserID)
		}
	}
	users, err := s.userRepo.ListByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, users[i].Summary())
	}

	return &ConversationSummary{
		Conversation: *conv,
		Membership:   m,
		LastMessage:  last,
		UnreadCount:  unread,
		OtherMembers: summaries,
	}, nil
}

type MessagePage struct {
	Messages   []domain.ConversationMessage `json:"messages"`
	HasMore    bool                         `json:"has_more"`
	NextCursor *uuid.UUID                   `json:"next_cursor,omitempty"`
}

// ListMessages pages backwards from before (exclusive), newest first.
func (s *ProjectionService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessagePage, error) {
	if _, _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := s.messageRepo.ListPage(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{HasMore: len(messages) > limit}
	if page.HasMore {
		messages = messages[:limit]
		cursor := messages[len(messages)-1].ID
		page.NextCursor = &cursor
	}
	if messages == nil {
		messages = []domain.ConversationMessage{}
	}
	page.Messages = messages
	return page, nil
}

type TypingUser struct {
	domain.UserSummary
	ExpiresAt time.Time `json:"expires_at"`
}

// ListTypingUsers returns other members holding a live typing lease.
func (s *ProjectionService) ListTypingUsers(ctx context.Context, userID, conversationID uuid.UUID) ([]TypingUser, error) {
	if _, _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	indicators, err := s.typingRepo.ListLive(ctx, conversationID, now)
	if err != nil {
		return nil, err
	}
	if len(indicators) == 0 {
		return []TypingUser{}, nil
	}
	// A lease outlives a departure by up to its TTL.
	members, err := s.memberRepo.ListActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		active[m.UserID] = struct{}{}
	}

	expires := make(map[uuid.UUID]time.Time, len(indicators))
	ids := make([]uuid.UUID, 0, len(indicators))
	for _, t := range indicators {
		if _, ok := active[t.UserID]; !ok || t.UserID == userID || !t.Live(now) {
			continue
		}
		expires[t.UserID] = t.ExpiresAt
		ids = append(ids, t.UserID)
	}
	if len(ids) == 0 {
		return []TypingUser{}, nil
	}

	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]TypingUser, 0, len(users))
	for i := range users {
		out = append(out, TypingUser{UserSummary: users[i].Summary(), ExpiresAt: expires[users[i].ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// UnreadTotal sums unread counts across all of the caller's memberships.
func (s *ProjectionService) UnreadTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	memberships, err := s.memberRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	total := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, m := range memberships {
		g.Go(func() error {
			n, err := s.messageRepo.CountUnread(gctx, m.ConversationID, userID, m.LastReadAt)
			if err != nil {
				return err
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

type MemberDetail struct {
	domain.ConversationMember
	User *domain.UserSummary `json:"user,omitempty"`
}

type ConversationDetails struct {
	Conversation domain.Conversation       `json:"conversation"`
	Members      []MemberDetail            `json:"members"`
	Membership   domain.ConversationMember `json:"membership"`
}

// GetDetails returns the conversation, its current members and the caller's
// own membership row.
func (s *ProjectionService) GetDetails(ctx context.Context, userID, conversationID uuid.UUID) (*ConversationDetails, error) {
	conv, own, err := s.requireMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	members, err := s.memberRepo.ListActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.UserSummary, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Summary()
	}

	details := make([]MemberDetail, 0, len(members))
	for _, m := range members {
		d := MemberDetail{ConversationMember: m}
		if u, ok := byID[m.UserID]; ok {
			d.User = &u
		}
		details = append(details, d)
	}

	return &ConversationDetails{
		Conversation: *conv,
		Members:      details,
		Membership:   *own,
	}, nil
}

// CheckDMPermission previews whether the caller may message targetID.
func (s *ProjectionService) CheckDMPermission(ctx context.Context, callerID, targetID uuid.UUID) (DMDecision, error) {
	if callerID == targetID {
		return DMDecision{}, ErrCannotMessageSelf
	}
	if _, err := requireUser(ctx, s.userRepo, targetID); err != nil {
		return DMDecision{}, err
	}
	return s.resolver.CanSendDirectMessage(ctx, callerID, targetID)
}

// Authorize reports whether userID may observe the conversation, the same
// check every read above performs.
func (s *ProjectionService) Authorize(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, _, err := s.requireMember(ctx, conversationID, userID)
	return err
}
