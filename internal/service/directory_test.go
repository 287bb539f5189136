package service

import (
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/pkg/apperr"
	"github.com/vedran77/parley/pkg/validator"
)

func TestFindOrCreateDirectIsUnique(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")

	first, err := e.directory.FindOrCreateDirect(e.ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := e.directory.FindOrCreateDirect(e.ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv := e.conversation(first.ConversationID)
	assert.Equal(t, domain.ConversationDirect, conv.Type)
	assert.Nil(t, conv.OwnerID)
	assert.Nil(t, e.member(conv.ID, alice).Role)
}

func TestFindOrCreateDirectIgnoresSharedGroups(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")
	groupID := e.group(alice, bob)

	ref, err := e.directory.FindOrCreateDirect(e.ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ref.Created)
	assert.NotEqual(t, groupID, ref.ConversationID)
}

func TestGetOrCreateForMembers(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol, dave := e.user("alice"), e.user("bob"), e.user("carol"), e.user("dave")

	t.Run("single member resolves the direct conversation", func(t *testing.T) {
		direct := e.direct(alice, bob)
		ref, err := e.directory.GetOrCreateForMembers(e.ctx, alice, MembersInput{MemberIDs: []uuid.UUID{bob, alice, bob}})
		require.NoError(t, err)
		assert.Equal(t, direct, ref.ConversationID)
		assert.False(t, ref.Created)
	})

	t.Run("exact member set reuses a group", func(t *testing.T) {
		created, err := e.directory.GetOrCreateForMembers(e.ctx, alice, MembersInput{MemberIDs: []uuid.UUID{bob, carol}})
		require.NoError(t, err)
		require.True(t, created.Created)

		again, err := e.directory.GetOrCreateForMembers(e.ctx, carol, MembersInput{MemberIDs: []uuid.UUID{alice, bob}})
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, created.ConversationID, again.ConversationID)
	})

	t.Run("superset creates a new group", func(t *testing.T) {
		existing, err := e.directory.FindExactGroup(e.ctx, []uuid.UUID{alice, bob, carol})
		require.NoError(t, err)
		require.NotNil(t, existing)

		ref, err := e.directory.GetOrCreateForMembers(e.ctx, alice, MembersInput{MemberIDs: []uuid.UUID{bob, carol, dave}})
		require.NoError(t, err)
		assert.True(t, ref.Created)
		assert.NotEqual(t, *existing, ref.ConversationID)
	})

	t.Run("no other members", func(t *testing.T) {
		_, err := e.directory.GetOrCreateForMembers(e.ctx, alice, MembersInput{MemberIDs: []uuid.UUID{alice}})
		assert.ErrorIs(t, err, ErrNoMembers)
	})
}

func TestFullMemberSetIncludingCaller(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice")
	everyone := []uuid.UUID{alice}
	for range domain.MaxGroupMembers - 1 {
		everyone = append(everyone, e.user("u"+uuid.NewString()[:6]))
	}

	input := MembersInput{MemberIDs: everyone}
	assert.Nil(t, validator.Struct(&input))
	assert.Nil(t, validator.Struct(&CreateGroupInput{Name: "full", MemberIDs: everyone}))

	ref, err := e.directory.GetOrCreateForMembers(e.ctx, alice, input)
	require.NoError(t, err)
	assert.True(t, ref.Created)
	members, err := e.store.Members().ListActive(e.ctx, ref.ConversationID)
	require.NoError(t, err)
	assert.Len(t, members, domain.MaxGroupMembers)

	id, err := e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "full", MemberIDs: everyone})
	require.NoError(t, err)
	members, err = e.store.Members().ListActive(e.ctx, id)
	require.NoError(t, err)
	assert.Len(t, members, domain.MaxGroupMembers)

	tooMany := append(slices.Clone(everyone[1:]), e.user("extra"), e.user("more"))
	assert.NotNil(t, validator.Struct(&MembersInput{MemberIDs: tooMany}))
	_, err = e.directory.GetOrCreateForMembers(e.ctx, alice, MembersInput{MemberIDs: tooMany[:10]})
	assert.ErrorIs(t, err, ErrGroupSize)
}

func TestFindExactGroupSkipsLeftMembers(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.user("alice"), e.user("bob"), e.user("carol")
	id := e.group(alice, bob, carol)
	require.NoError(t, e.directory.Leave(e.ctx, carol, id))

	got, err := e.directory.FindExactGroup(e.ctx, []uuid.UUID{alice, bob})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, *got)

	got, err = e.directory.FindExactGroup(e.ctx, []uuid.UUID{alice, bob, carol})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateGroup(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.user("alice"), e.user("bob"), e.user("carol")

	id, err := e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "  team  ", MemberIDs: []uuid.UUID{bob, carol, bob}})
	require.NoError(t, err)

	conv := e.conversation(id)
	assert.Equal(t, domain.ConversationGroup, conv.Type)
	require.NotNil(t, conv.Name)
	assert.Equal(t, "team", *conv.Name)
	require.NotNil(t, conv.OwnerID)
	assert.Equal(t, alice, *conv.OwnerID)
	assert.True(t, e.member(id, alice).IsOwner())
	assert.False(t, e.member(id, bob).IsOwner())

	latest, err := e.store.Messages().Latest(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "alice created the group", latest.Content)
	assert.Contains(t, e.notes.updated, id)
}

func TestCreateGroupValidation(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")

	_, err := e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "   ", MemberIDs: []uuid.UUID{bob}})
	assert.ErrorIs(t, err, ErrGroupNameRequired)

	_, err = e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "solo", MemberIDs: []uuid.UUID{alice}})
	assert.ErrorIs(t, err, ErrGroupSize)

	_, err = e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "ghost", MemberIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, ErrUserNotFound)

	many := make([]uuid.UUID, 0, domain.MaxGroupMembers)
	for range domain.MaxGroupMembers {
		many = append(many, e.user("u"+uuid.NewString()[:6]))
	}
	_, err = e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "crowd", MemberIDs: many})
	assert.ErrorIs(t, err, ErrGroupSize)
}

func TestCreateGroupChecksEveryTarget(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")
	private := e.userWithPolicy("private", domain.DMPermissionNone)

	_, err := e.directory.CreateGroup(e.ctx, alice, CreateGroupInput{Name: "team", MemberIDs: []uuid.UUID{bob, private}})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
	assert.Zero(t, e.store.Conversations().Count())
}

func TestAddMembers(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol, dave := e.user("alice"), e.user("bob"), e.user("carol"), e.user("dave")
	id := e.group(alice, bob)

	n, err := e.directory.AddMembers(e.ctx, alice, id, []uuid.UUID{bob, carol, dave, carol})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, e.member(id, carol).Active())

	latest, err := e.store.Messages().Latest(e.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice added carol, dave", latest.Content)

	n, err = e.directory.AddMembers(e.ctx, alice, id, []uuid.UUID{bob})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.directory.AddMembers(e.ctx, bob, id, []uuid.UUID{e.user("erin")})
	assert.ErrorIs(t, err, ErrNotGroupOwner)

	_, err = e.directory.AddMembers(e.ctx, e.user("mallory"), id, []uuid.UUID{bob})
	assert.ErrorIs(t, err, ErrNotConversationMember)

	_, err = e.directory.AddMembers(e.ctx, alice, uuid.New(), []uuid.UUID{bob})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAddMembersRejectsDirectAndFullGroups(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")

	_, err := e.directory.AddMembers(e.ctx, alice, e.direct(alice, bob), []uuid.UUID{e.user("carol")})
	assert.ErrorIs(t, err, ErrNotGroup)

	others := []uuid.UUID{bob}
	for len(others) < domain.MaxGroupMembers-1 {
		others = append(others, e.user("u"+uuid.NewString()[:6]))
	}
	id := e.group(alice, others...)
	_, err = e.directory.AddMembers(e.ctx, alice, id, []uuid.UUID{e.user("late")})
	assert.ErrorIs(t, err, ErrGroupFull)
}

func TestAddMembersReaddsFormerMember(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.user("alice"), e.user("bob"), e.user("carol")
	id := e.group(alice, bob, carol)
	require.NoError(t, e.directory.Leave(e.ctx, carol, id))
	require.NotNil(t, e.member(id, carol).LeftAt)

	n, err := e.directory.AddMembers(e.ctx, alice, id, []uuid.UUID{carol})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, e.member(id, carol).Active())
}

func TestLeaveTransfersOwnershipToLongestTenured(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol, dave := e.user("alice"), e.user("bob"), e.user("carol"), e.user("dave")
	id := e.group(alice, bob)
	_, err := e.directory.AddMembers(e.ctx, alice, id, []uuid.UUID{carol, dave})
	require.NoError(t, err)

	require.NoError(t, e.directory.Leave(e.ctx, alice, id))

	conv := e.conversation(id)
	require.NotNil(t, conv.OwnerID)
	assert.Equal(t, bob, *conv.OwnerID)
	assert.True(t, e.member(id, bob).IsOwner())
	assert.True(t, conv.IsActive)
	assert.NotNil(t, e.member(id, alice).LeftAt)

	latest, err := e.store.Messages().Latest(e.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice left the group", latest.Content)

	err = e.directory.Leave(e.ctx, alice, id)
	assert.ErrorIs(t, err, ErrNotConversationMember)
}

func TestLeaveByMemberKeepsOwner(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.user("alice"), e.user("bob"), e.user("carol")
	id := e.group(alice, bob, carol)

	require.NoError(t, e.directory.Leave(e.ctx, bob, id))
	assert.Equal(t, alice, *e.conversation(id).OwnerID)
	assert.False(t, e.member(id, carol).IsOwner())
	assert.Equal(t, []memberEvent{{id, bob}}, e.notes.left)
}

func TestLeaverDropsOutOfTyping(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.user("alice"), e.user("bob"), e.user("carol")
	id := e.group(alice, bob, carol)

	require.NoError(t, e.ledger.StartTyping(e.ctx, bob, id))
	require.NoError(t, e.ledger.StartTyping(e.ctx, carol, id))
	require.NoError(t, e.directory.Leave(e.ctx, carol, id))

	typing, err := e.projections.ListTypingUsers(e.ctx, alice, id)
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, bob, typing[0].ID)
}

func TestLastMemberLeavingDeactivates(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")
	id := e.group(alice, bob)

	require.NoError(t, e.directory.Leave(e.ctx, alice, id))
	require.NoError(t, e.directory.Leave(e.ctx, bob, id))
	assert.False(t, e.conversation(id).IsActive)

	_, err := e.ledger.Send(e.ctx, bob, SendMessageInput{ConversationID: &id, Content: "anyone?"})
	assert.ErrorIs(t, err, ErrNotConversationMember)
}

func TestLeaveDirectIsRejected(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user("alice"), e.user("bob")
	err := e.directory.Leave(e.ctx, alice, e.direct(alice, bob))
	assert.ErrorIs(t, err, ErrNotGroup)
	assert.Empty(t, e.notes.left)
}
