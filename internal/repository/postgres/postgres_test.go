package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository/postgres"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/testutil/testpg"
)

// One container serves every subtest; each subtest creates its own users and
// conversations so they do not see each other's rows.
func TestRepositories(t *testing.T) {
	pool := testpg.NewPool(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) { testUsers(ctx, t, pool) })
	t.Run("settings", func(t *testing.T) { testSettings(ctx, t, pool) })
	t.Run("friendships", func(t *testing.T) { testFriendships(ctx, t, pool) })
	t.Run("servers", func(t *testing.T) { testServers(ctx, t, pool) })
	t.Run("members", func(t *testing.T) { testMembers(ctx, t, pool) })
	t.Run("messages", func(t *testing.T) { testMessages(ctx, t, pool) })
	t.Run("typing", func(t *testing.T) { testTyping(ctx, t, pool) })
	t.Run("transactions", func(t *testing.T) { testTransactions(ctx, t, pool) })
	t.Run("send rolls back", func(t *testing.T) { testSendRollback(ctx, t, pool) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.User {
	t.Helper()
	id := uuid.New()
	u := &domain.User{
		ID:            id,
		Email:         name + "-" + id.String()[:8] + "@example.com",
		Username:      name,
		DisplayName:   name,
		Discriminator: id.String()[:4],
		PasswordHash:  "x",
		Status:        "offline",
		CreatedAt:     now(),
		UpdatedAt:     now(),
	}
	require.NoError(t, postgres.NewUserRepo(pool).Create(ctx, u))
	return u
}

func newConversation(ctx context.Context, t *testing.T, pool *pgxpool.Pool, creator uuid.UUID, members ...uuid.UUID) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationGroup,
		OwnerID:   &creator,
		IsActive:  true,
		CreatedBy: creator,
		CreatedAt: now(),
	}
	require.NoError(t, postgres.NewConversationRepo(pool).Create(ctx, conv))

	rows := make([]domain.ConversationMember, 0, len(members)+1)
	for i, id := range append([]uuid.UUID{creator}, members...) {
		rows = append(rows, domain.ConversationMember{
			ConversationID: conv.ID,
			UserID:         id,
			JoinedAt:       conv.CreatedAt.Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NoError(t, postgres.NewMemberRepo(pool).Add(ctx, rows...))
	return conv
}

func testUsers(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewUserRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")

	got, err := repo.GetByEmail(ctx, alice.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	got, err = repo.GetByTag(ctx, "bob", bob.Discriminator)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, bob.ID, got.ID)

	got, err = repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	users, err := repo.ListByIDs(ctx, []uuid.UUID{alice.ID, bob.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func testSettings(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewSettingsRepo(pool)
	alice := newUser(ctx, t, pool, "alice")

	got, err := repo.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	s := domain.DefaultSettings(alice.ID)
	s.UpdatedAt = now()
	require.NoError(t, repo.Upsert(ctx, s))
	s.DMPermission = domain.DMPermissionFriends
	require.NoError(t, repo.Upsert(ctx, s))

	got, err = repo.Get(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DMPermissionFriends, got.DMPermission)
}

func testFriendships(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewFriendshipRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")

	f := &domain.Friendship{
		ID:          uuid.New(),
		UserID1:     alice.ID,
		UserID2:     bob.ID,
		Status:      domain.FriendshipPending,
		RequestedBy: alice.ID,
		CreatedAt:   now(),
	}
	require.NoError(t, repo.Create(ctx, f))
	require.NoError(t, repo.Accept(ctx, f.ID, now()))

	rel, err := repo.GetBetween(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, rel.Forward)
	require.NotNil(t, rel.Reverse)
	assert.True(t, rel.AreFriends())

	block := &domain.Friendship{
		ID:          uuid.New(),
		UserID1:     bob.ID,
		UserID2:     alice.ID,
		Status:      domain.FriendshipBlocked,
		RequestedBy: bob.ID,
		CreatedAt:   now(),
	}
	require.NoError(t, repo.Create(ctx, block))
	rel, err = repo.GetBetween(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, rel.BlockedBy(bob.ID))
	assert.False(t, rel.BlockedBy(alice.ID))

	blocked, err := repo.ListBlocked(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, blocked, 1)
}

func testServers(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewServerRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")

	srv := &domain.Server{ID: uuid.New(), Name: "Gophers", Slug: "gophers-" + alice.ID.String()[:8], OwnerID: alice.ID, CreatedAt: now()}
	require.NoError(t, repo.Create(ctx, srv))
	for _, id := range []uuid.UUID{alice.ID, bob.ID} {
		require.NoError(t, repo.AddMember(ctx, &domain.ServerMember{ServerID: srv.ID, UserID: id, Role: domain.ServerRoleMember, JoinedAt: now()}))
	}

	shared, err := repo.ShareServer(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, shared)

	require.NoError(t, repo.SetBanned(ctx, srv.ID, bob.ID, true))
	shared, err = repo.ShareServer(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, shared)
}

func testMembers(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewMemberRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")
	carol := newUser(ctx, t, pool, "carol")
	conv := newConversation(ctx, t, pool, alice.ID, bob.ID, carol.ID)

	active, err := repo.ListActive(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []uuid.UUID{alice.ID, bob.ID, carol.ID}, []uuid.UUID{active[0].UserID, active[1].UserID, active[2].UserID})

	require.NoError(t, repo.MarkLeft(ctx, conv.ID, bob.ID, now()))
	active, err = repo.ListActive(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	left, err := repo.Get(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, left)
	assert.False(t, left.Active())

	// Re-adding revives the row.
	require.NoError(t, repo.Add(ctx, domain.ConversationMember{ConversationID: conv.ID, UserID: bob.ID, JoinedAt: now()}))
	revived, err := repo.Get(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, revived.Active())

	nick := "ally"
	pinned := true
	require.NoError(t, repo.UpdateSettings(ctx, conv.ID, alice.ID, domain.MemberSettingsPatch{IsPinned: &pinned, Nickname: &nick}))
	m, err := repo.Get(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, m.IsPinned)
	assert.False(t, m.IsMuted)
	require.NotNil(t, m.Nickname)
	assert.Equal(t, "ally", *m.Nickname)

	empty := ""
	require.NoError(t, repo.UpdateSettings(ctx, conv.ID, alice.ID, domain.MemberSettingsPatch{Nickname: &empty}))
	m, err = repo.Get(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, m.Nickname)
	assert.True(t, m.IsPinned)

	hiddenAt := now()
	require.NoError(t, repo.SetHidden(ctx, conv.ID, alice.ID, &hiddenAt))
	require.NoError(t, repo.SetHidden(ctx, conv.ID, carol.ID, &hiddenAt))
	n, err := repo.ClearHidden(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func testMessages(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewMessageRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")
	conv := newConversation(ctx, t, pool, alice.ID, bob.ID)

	base := now()
	var ids []uuid.UUID
	for i := range 5 {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		msg := &domain.ConversationMessage{
			ID:                uuid.New(),
			ConversationID:    conv.ID,
			SenderID:          sender.ID,
			Content:           "hello",
			Type:              domain.MessageText,
			CreatedAt:         base.Add(time.Duration(i) * time.Second),
			SenderDisplayName: sender.DisplayName,
		}
		require.NoError(t, repo.Append(ctx, msg))
		ids = append(ids, msg.ID)
	}

	got, err := postgres.NewConversationRepo(pool).GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.WithinDuration(t, base.Add(4*time.Second), *got.LastMessageAt, 0)

	page, err := repo.ListPage(ctx, conv.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
	require.NotNil(t, page[0].Sender)
	assert.Equal(t, "alice", page[0].Sender.Username)
	assert.NotNil(t, page[0].Attachments)

	page, err = repo.ListPage(ctx, conv.ID, &ids[3], 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	elsewhere := newConversation(ctx, t, pool, alice.ID, bob.ID)
	foreign := &domain.ConversationMessage{
		ID:                uuid.New(),
		ConversationID:    elsewhere.ID,
		SenderID:          alice.ID,
		Content:           "elsewhere",
		Type:              domain.MessageText,
		CreatedAt:         base.Add(time.Hour),
		SenderDisplayName: alice.DisplayName,
	}
	require.NoError(t, repo.Append(ctx, foreign))
	page, err = repo.ListPage(ctx, conv.ID, &foreign.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	latest, err := repo.Latest(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[4], latest.ID)

	unread, err := repo.CountUnread(ctx, conv.ID, alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
	since := base.Add(2 * time.Second)
	unread, err = repo.CountUnread(ctx, conv.ID, alice.ID, &since)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, repo.UpdateContent(ctx, ids[0], "edited", now()))
	require.NoError(t, repo.SoftDelete(ctx, ids[1], domain.DeletedMessagePlaceholder, now()))
	edited, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)
	assert.NotNil(t, edited.EditedAt)
	deleted, err := repo.GetByID(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, deleted.Deleted())
	assert.Equal(t, domain.DeletedMessagePlaceholder, deleted.Content)
}

func testTyping(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	repo := postgres.NewTypingRepo(pool)
	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")
	conv := newConversation(ctx, t, pool, alice.ID, bob.ID)

	at := now()
	require.NoError(t, repo.Upsert(ctx, &domain.TypingIndicator{ConversationID: conv.ID, UserID: alice.ID, StartedAt: at, ExpiresAt: at.Add(domain.TypingTTL)}))
	require.NoError(t, repo.Upsert(ctx, &domain.TypingIndicator{ConversationID: conv.ID, UserID: bob.ID, StartedAt: at, ExpiresAt: at.Add(time.Second)}))

	live, err := repo.ListLive(ctx, conv.ID, at.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, alice.ID, live[0].UserID)

	require.NoError(t, repo.Delete(ctx, conv.ID, alice.ID))
	live, err = repo.ListLive(ctx, conv.ID, at)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, bob.ID, live[0].UserID)
}

func testTransactions(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	txm := database.NewTxManager(pool)
	convs := postgres.NewConversationRepo(pool)
	alice := newUser(ctx, t, pool, "alice")

	id := uuid.New()
	err := txm.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, convs.Create(ctx, &domain.Conversation{
			ID: id, Type: domain.ConversationDirect, IsActive: true, CreatedBy: alice.ID, CreatedAt: now(),
		}))
		return service.ErrNoMembers
	})
	require.ErrorIs(t, err, service.ErrNoMembers)

	got, err := convs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = txm.WithinTx(ctx, func(ctx context.Context) error {
		return txm.WithinTx(ctx, func(ctx context.Context) error {
			return convs.Create(ctx, &domain.Conversation{
				ID: id, Type: domain.ConversationDirect, IsActive: true, CreatedBy: alice.ID, CreatedAt: now(),
			})
		})
	})
	require.NoError(t, err)
	got, err = convs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func testSendRollback(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	txm := database.NewTxManager(pool)
	settings := postgres.NewSettingsRepo(pool)
	users := postgres.NewUserRepo(pool)
	convs := postgres.NewConversationRepo(pool)
	members := postgres.NewMemberRepo(pool)
	messages := postgres.NewMessageRepo(pool)

	resolver := service.NewPermissionResolver(settings, postgres.NewFriendshipRepo(pool), postgres.NewServerRepo(pool))
	directory := service.NewDirectoryService(txm, convs, members, messages, users, resolver)
	ledger := service.NewLedgerService(txm, convs, members, messages, postgres.NewTypingRepo(pool), users, resolver, directory, nil)

	alice := newUser(ctx, t, pool, "alice")
	bob := newUser(ctx, t, pool, "bob")
	open := domain.DefaultSettings(bob.ID)
	open.DMPermission = domain.DMPermissionEveryone
	open.UpdatedAt = now()
	require.NoError(t, settings.Upsert(ctx, open))

	missing := uuid.New()
	_, err := ledger.Send(ctx, alice.ID, service.SendMessageInput{ReceiverID: &bob.ID, Content: "hi", ReplyToID: &missing})
	require.ErrorIs(t, err, service.ErrReplyNotFound)

	mine, err := members.ListActiveByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, mine, "the direct conversation must not survive the failed send")

	res, err := ledger.Send(ctx, alice.ID, service.SendMessageInput{ReceiverID: &bob.ID, Content: "hi"})
	require.NoError(t, err)
	mine, err = members.ListActiveByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, res.ConversationID, mine[0].ConversationID)
}
