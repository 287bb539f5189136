// Package memory implements the repository interfaces on in-process maps.
// It backs the service and handler tests; WithinTx restores a snapshot when
// fn fails, so rollback behaves like the postgres store for a single writer.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

// ErrDuplicate mirrors a unique-constraint violation.
var ErrDuplicate = errors.New("memory: duplicate key")

type memberKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

type serverMemberKey struct {
	serverID uuid.UUID
	userID   uuid.UUID
}

type state struct {
	users         map[uuid.UUID]domain.User
	settings      map[uuid.UUID]domain.UserSettings
	friendships   map[uuid.UUID]domain.Friendship
	servers       map[uuid.UUID]domain.Server
	serverMembers map[serverMemberKey]domain.ServerMember
	invites       map[uuid.UUID]domain.ServerInvite
	conversations map[uuid.UUID]domain.Conversation
	members       map[memberKey]domain.ConversationMember
	messages      map[uuid.UUID]domain.ConversationMessage
	typing        map[memberKey]domain.TypingIndicator
}

func newState() state {
	return state{
		users:         make(map[uuid.UUID]domain.User),
		settings:      make(map[uuid.UUID]domain.UserSettings),
		friendships:   make(map[uuid.UUID]domain.Friendship),
		servers:       make(map[uuid.UUID]domain.Server),
		serverMembers: make(map[serverMemberKey]domain.ServerMember),
		invites:       make(map[uuid.UUID]domain.ServerInvite),
		conversations: make(map[uuid.UUID]domain.Conversation),
		members:       make(map[memberKey]domain.ConversationMember),
		messages:      make(map[uuid.UUID]domain.ConversationMessage),
		typing:        make(map[memberKey]domain.TypingIndicator),
	}
}

// clone copies the maps. Values are structs whose pointer fields are never
// mutated in place, so a shallow copy per map is enough.
func (s state) clone() state {
	return state{
		users:         maps.Clone(s.users),
		settings:      maps.Clone(s.settings),
		friendships:   maps.Clone(s.friendships),
		servers:       maps.Clone(s.servers),
		serverMembers: maps.Clone(s.serverMembers),
		invites:       maps.Clone(s.invites),
		conversations: maps.Clone(s.conversations),
		members:       maps.Clone(s.members),
		messages:      maps.Clone(s.messages),
		typing:        maps.Clone(s.typing),
	}
}

// Store holds every table. Obtain typed repositories from its accessors.
type Store struct {
	mu sync.RWMutex
	st state

	// txMu serializes transactions so a snapshot is never restored over
	// another transaction's writes.
	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

// WithinTx runs fn and restores the pre-call state if it returns an error.
// Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{store: s}
}

func (s *Store) Settings() *SettingsRepo {
	return &SettingsRepo{store: s}
}

func (s *Store) Friendships() *FriendshipRepo {
	return &FriendshipRepo{store: s}
}

func (s *Store) Servers() *ServerRepo {
	return &ServerRepo{store: s}
}

func (s *Store) Invites() *InviteRepo {
	return &InviteRepo{store: s}
}

func (s *Store) Conversations() *ConversationRepo {
	return &ConversationRepo{store: s}
}

func (s *Store) Members() *MemberRepo {
	return &MemberRepo{store: s}
}

func (s *Store) Messages() *MessageRepo {
	return &MessageRepo{store: s}
}

func (s *Store) Typing() *TypingRepo {
	return &TypingRepo{store: s}
}
