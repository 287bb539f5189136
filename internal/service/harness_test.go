package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository/memory"
	"github.com/vedran77/parley/internal/storage"
)

// clock advances by a millisecond on every read so rows written in sequence
// never share a timestamp.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type typingEvent struct {
	conversationID uuid.UUID
	userID         uuid.UUID
	typing         bool
}

type memberEvent struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

type recorder struct {
	mu       sync.Mutex
	created  []uuid.UUID
	edited   []uuid.UUID
	deleted  []uuid.UUID
	typing   []typingEvent
	updated  []uuid.UUID
	left     []memberEvent
	messages []domain.ConversationMessage
}

func (r *recorder) NotifyNewMessage(msg *domain.ConversationMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, msg.ID)
	r.messages = append(r.messages, *msg)
}

func (r *recorder) NotifyEditedMessage(msg *domain.ConversationMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edited = append(r.edited, msg.ID)
}

func (r *recorder) NotifyDeletedMessage(_, messageID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
}

func (r *recorder) NotifyTyping(conversationID, userID uuid.UUID, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, typingEvent{conversationID, userID, typing})
}

func (r *recorder) NotifyConversationUpdated(conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, conversationID)
}

func (r *recorder) NotifyMemberLeft(conversationID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, memberEvent{conversationID, userID})
}

type env struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *clock
	notes *recorder

	resolver    *PermissionResolver
	directory   *DirectoryService
	ledger      *LedgerService
	projections *ProjectionService
	friendships *FriendshipService
	settings    *SettingsService
	servers     *ServerService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithURLs(t, nil)
}

func newEnvWithURLs(t *testing.T, urls storage.URLResolver) *env {
	t.Helper()
	st := memory.NewStore()
	c := newClock()
	notes := &recorder{}

	resolver := NewPermissionResolver(st.Settings(), st.Friendships(), st.Servers())
	directory := NewDirectoryService(st, st.Conversations(), st.Members(), st.Messages(), st.Users(), resolver)
	directory.now = c.Now
	directory.SetNotifier(notes)
	ledger := NewLedgerService(st, st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver, directory, urls)
	ledger.now = c.Now
	ledger.SetNotifier(notes)
	projections := NewProjectionService(st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver)
	projections.now = c.Now
	friendships := NewFriendshipService(st, st.Friendships(), st.Users())
	friendships.now = c.Now
	settings := NewSettingsService(st.Settings())
	settings.now = c.Now
	servers := NewServerService(st, st.Servers(), st.Invites(), st.Users())
	servers.now = c.Now

	return &env{
		t:           t,
		ctx:         context.Background(),
		store:       st,
		clock:       c,
		notes:       notes,
		resolver:    resolver,
		directory:   directory,
		ledger:      ledger,
		projections: projections,
		friendships: friendships,
		settings:    settings,
		servers:     servers,
	}
}

// user registers a user whose settings accept messages from everyone.
func (e *env) user(name string) uuid.UUID {
	e.t.Helper()
	return e.userWithPolicy(name, domain.DMPermissionEveryone)
}

func (e *env) userWithPolicy(name string, policy domain.DMPermission) uuid.UUID {
	e.t.Helper()
	now := e.clock.Now()
	u := &domain.User{
		ID:            uuid.New(),
		Email:         name + "@example.com",
		Username:      name,
		DisplayName:   name,
		Discriminator: "0001",
		Status:        "online",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(e.t, e.store.Users().Create(e.ctx, u))
	e.setPolicy(u.ID, policy)
	return u.ID
}

func (e *env) setPolicy(userID uuid.UUID, policy domain.DMPermission) {
	e.t.Helper()
	s := domain.DefaultSettings(userID)
	s.DMPermission = policy
	require.NoError(e.t, e.store.Settings().Upsert(e.ctx, s))
}

func (e *env) befriend(a, b uuid.UUID) {
	e.t.Helper()
	now := e.clock.Now()
	require.NoError(e.t, e.store.Friendships().Create(e.ctx, &domain.Friendship{
		ID:          uuid.New(),
		UserID1:     a,
		UserID2:     b,
		Status:      domain.FriendshipAccepted,
		RequestedBy: a,
		AcceptedAt:  &now,
		CreatedAt:   now,
	}))
}

func (e *env) block(blocker, target uuid.UUID) {
	e.t.Helper()
	require.NoError(e.t, e.friendships.Block(e.ctx, blocker, target))
}

// shareServer puts every user into one fresh server, the first as owner.
func (e *env) shareServer(users ...uuid.UUID) uuid.UUID {
	e.t.Helper()
	srv, err := e.servers.Create(e.ctx, users[0], CreateServerInput{Name: "srv " + uuid.NewString()[:8]})
	require.NoError(e.t, err)
	for _, u := range users[1:] {
		require.NoError(e.t, e.servers.AddMember(e.ctx, users[0], srv.ID, u))
	}
	return srv.ID
}

func (e *env) direct(a, b uuid.UUID) uuid.UUID {
	e.t.Helper()
	ref, err := e.directory.FindOrCreateDirect(e.ctx, a, b)
	require.NoError(e.t, err)
	return ref.ConversationID
}

func (e *env) group(owner uuid.UUID, others ...uuid.UUID) uuid.UUID {
	e.t.Helper()
	id, err := e.directory.CreateGroup(e.ctx, owner, CreateGroupInput{Name: "group", MemberIDs: others})
	require.NoError(e.t, err)
	return id
}

func (e *env) send(sender, conversationID uuid.UUID, content string) uuid.UUID {
	e.t.Helper()
	res, err := e.ledger.Send(e.ctx, sender, SendMessageInput{ConversationID: &conversationID, Content: content})
	require.NoError(e.t, err)
	return res.MessageID
}

func (e *env) member(conversationID, userID uuid.UUID) *domain.ConversationMember {
	e.t.Helper()
	m, err := e.store.Members().Get(e.ctx, conversationID, userID)
	require.NoError(e.t, err)
	require.NotNil(e.t, m)
	return m
}

func (e *env) conversation(id uuid.UUID) *domain.Conversation {
	e.t.Helper()
	c, err := e.store.Conversations().GetByID(e.ctx, id)
	require.NoError(e.t, err)
	require.NotNil(e.t, c)
	return c
}
