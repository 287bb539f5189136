package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/parley/internal/repository/memory"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

type account struct {
	id    uuid.UUID
	token string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := memory.NewStore()

	resolver := service.NewPermissionResolver(st.Settings(), st.Friendships(), st.Servers())
	authSvc := service.NewAuthService(st, st.Users(), st.Settings(), "handler-test-secret")
	directory := service.NewDirectoryService(st, st.Conversations(), st.Members(), st.Messages(), st.Users(), resolver)
	ledger := service.NewLedgerService(st, st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver, directory, nil)
	projections := service.NewProjectionService(st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver)

	authH := NewAuthHandler(authSvc)
	convH := NewConversationHandler(directory, ledger, projections)
	friendH := NewFriendshipHandler(service.NewFriendshipService(st, st.Friendships(), st.Users()))
	settingsH := NewSettingsHandler(service.NewSettingsService(st.Settings()))
	serverH := NewServerHandler(service.NewServerService(st, st.Servers(), st.Invites(), st.Users()))

	authMW := middleware.Auth(authSvc)
	auth := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", authH.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.Handle("GET /api/v1/auth/me", auth(authH.Me))
	mux.Handle("POST /api/v1/messages", auth(convH.SendMessage))
	mux.Handle("PATCH /api/v1/messages/{id}", auth(convH.EditMessage))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(convH.DeleteMessage))
	mux.Handle("GET /api/v1/conversations", auth(convH.List))
	mux.Handle("POST /api/v1/conversations", auth(convH.GetOrCreateForMembers))
	mux.Handle("POST /api/v1/conversations/groups", auth(convH.CreateGroup))
	mux.Handle("GET /api/v1/conversations/unread-count", auth(convH.UnreadCount))
	mux.Handle("GET /api/v1/conversations/{id}", auth(convH.Get))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(convH.ListMessages))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(convH.MarkRead))
	mux.Handle("POST /api/v1/conversations/{id}/hide", auth(convH.Hide))
	mux.Handle("GET /api/v1/users/{id}/dm-permission", auth(convH.CheckDMPermission))
	mux.Handle("POST /api/v1/friends/requests", auth(friendH.SendRequest))
	mux.Handle("POST /api/v1/friends/requests/{id}/accept", auth(friendH.AcceptRequest))
	mux.Handle("GET /api/v1/friends", auth(friendH.ListFriends))
	mux.Handle("PATCH /api/v1/settings", auth(settingsH.Update))
	mux.Handle("POST /api/v1/servers", auth(serverH.Create))
	mux.Handle("POST /api/v1/servers/{id}/invites", auth(serverH.CreateInvite))
	mux.Handle("POST /api/v1/invites/{token}/accept", auth(serverH.AcceptInvite))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

// do sends body as JSON and decodes the response into out when given.
func (a *testAPI) do(method, path, token string, body, out any) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (a *testAPI) register(name string) account {
	a.t.Helper()
	var out struct {
		User struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
		AccessToken string `json:"access_token"`
	}
	resp := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        name + "@example.com",
		"username":     name,
		"display_name": name,
		"password":     "password123",
	}, &out)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return account{id: out.User.ID, token: out.AccessToken}
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")

	var me struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
		Password string    `json:"password_hash"`
	}
	resp := api.do(http.MethodGet, "/api/v1/auth/me", alice.token, nil, &me)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.id, me.ID)
	assert.Empty(t, me.Password)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	resp = api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password123"}, &login)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, login.AccessToken)

	var e errorBody
	resp = api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"}, &e)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", e.Error.Code)

	resp = api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice", "display_name": "A", "password": "password123",
	}, &e)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", e.Error.Code)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	var e errorBody
	resp := api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "not-an-email", "username": "bad name", "password": "short",
	}, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Equal(t, "Invalid email address", e.Error.Fields["email"])
	assert.Contains(t, e.Error.Fields, "username")
	assert.Equal(t, "This field is required", e.Error.Fields["display_name"])
	assert.Equal(t, "Must be at least 8 characters", e.Error.Fields["password"])
}

func TestMalformedJSON(t *testing.T) {
	api := newTestAPI(t)
	resp, err := api.srv.Client().Post(api.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var e errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_JSON", e.Error.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	var e errorBody
	resp := api.do(http.MethodGet, "/api/v1/conversations", "", nil, &e)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", e.Error.Code)

	resp = api.do(http.MethodGet, "/api/v1/conversations", "garbage", nil, &e)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDirectMessageFlow(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.register("alice"), api.register("bob")

	var decision service.DMDecision
	resp := api.do(http.MethodGet, "/api/v1/users/"+bob.id.String()+"/dm-permission", alice.token, nil, &decision)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decision.Allowed)
	assert.Equal(t, service.ReasonMustShareServer, decision.Reason)

	var e errorBody
	resp = api.do(http.MethodPost, "/api/v1/messages", alice.token, map[string]any{"receiver_id": bob.id, "content": "hi"}, &e)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "PERMISSION_DENIED", e.Error.Code)
	assert.Equal(t, service.ReasonMustShareServer, e.Error.Message)

	resp = api.do(http.MethodPatch, "/api/v1/settings", bob.token, map[string]string{"dm_permission": "everyone"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sent service.SendResult
	resp = api.do(http.MethodPost, "/api/v1/messages", alice.token, map[string]any{"receiver_id": bob.id, "content": "hi"}, &sent)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var list []service.ConversationSummary
	resp = api.do(http.MethodGet, "/api/v1/conversations", bob.token, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	assert.Equal(t, sent.ConversationID, list[0].Conversation.ID)
	assert.Equal(t, 1, list[0].UnreadCount)

	var page service.MessagePage
	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages?limit=10", sent.ConversationID), bob.token, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hi", page.Messages[0].Content)

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/conversations/%s/read", sent.ConversationID), bob.token, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var unread map[string]int
	resp = api.do(http.MethodGet, "/api/v1/conversations/unread-count", bob.token, nil, &unread)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, unread["count"])

	resp = api.do(http.MethodPatch, "/api/v1/messages/"+sent.MessageID.String(), bob.token, map[string]string{"content": "mine now"}, &e)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", e.Error.Code)

	resp = api.do(http.MethodDelete, "/api/v1/messages/"+sent.MessageID.String(), alice.token, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodPatch, "/api/v1/messages/"+sent.MessageID.String(), alice.token, map[string]string{"content": "undo"}, &e)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", e.Error.Code)
}

func TestConversationErrors(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")

	var e errorBody
	resp := api.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", alice.token, nil, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ID", e.Error.Code)

	resp = api.do(http.MethodGet, "/api/v1/conversations/"+uuid.NewString(), alice.token, nil, &e)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", e.Error.Code)

	resp = api.do(http.MethodGet, "/api/v1/conversations/"+uuid.NewString()+"/messages?before=nope", alice.token, nil, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodPost, "/api/v1/messages", alice.token, map[string]any{"content": "nowhere"}, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", e.Error.Code)

	resp = api.do(http.MethodPost, "/api/v1/conversations/groups", alice.token, map[string]any{"name": "empty"}, &e)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Equal(t, "This field is required", e.Error.Fields["member_ids"])
}

func TestGroupsThroughFriendship(t *testing.T) {
	api := newTestAPI(t)
	alice, bob, carol := api.register("alice"), api.register("bob"), api.register("carol")

	for _, friend := range []account{bob, carol} {
		var req struct {
			ID uuid.UUID `json:"id"`
		}
		resp := api.do(http.MethodPost, "/api/v1/friends/requests", alice.token, map[string]any{"user_id": friend.id}, &req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp = api.do(http.MethodPost, "/api/v1/friends/requests/"+req.ID.String()+"/accept", friend.token, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	var friends []json.RawMessage
	api.do(http.MethodGet, "/api/v1/friends", alice.token, nil, &friends)
	assert.Len(t, friends, 2)

	var created service.ConversationRef
	resp := api.do(http.MethodPost, "/api/v1/conversations", alice.token, map[string]any{"member_ids": []uuid.UUID{bob.id, carol.id}}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, created.Created)

	var found service.ConversationRef
	resp = api.do(http.MethodPost, "/api/v1/conversations", alice.token, map[string]any{"member_ids": []uuid.UUID{carol.id, bob.id}}, &found)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ConversationID, found.ConversationID)

	var details service.ConversationDetails
	resp = api.do(http.MethodGet, "/api/v1/conversations/"+created.ConversationID.String(), bob.token, nil, &details)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, details.Members, 3)
}

func TestInviteFlowAllowsServerMembersToMessage(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.register("alice"), api.register("bob")

	var srv struct {
		ID uuid.UUID `json:"id"`
	}
	resp := api.do(http.MethodPost, "/api/v1/servers", alice.token, map[string]string{"name": "Gophers"}, &srv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var inv struct {
		Token string `json:"token"`
	}
	resp = api.do(http.MethodPost, "/api/v1/servers/"+srv.ID.String()+"/invites", alice.token, nil, &inv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(http.MethodPost, "/api/v1/invites/"+inv.Token+"/accept", bob.token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodPost, "/api/v1/messages", bob.token, map[string]any{"receiver_id": alice.id, "content": "hello"}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
