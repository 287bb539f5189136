package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/parley/internal/repository/memory"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/handlers"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type testServices struct {
	auth        *service.AuthService
	directory   *service.DirectoryService
	ledger      *service.LedgerService
	projections *service.ProjectionService
	mux         *http.ServeMux
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	st := memory.NewStore()
	resolver := service.NewPermissionResolver(st.Settings(), st.Friendships(), st.Servers())
	s := &testServices{
		auth:        service.NewAuthService(st, st.Users(), st.Settings(), "routes-test-secret"),
		projections: service.NewProjectionService(st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver),
	}
	s.directory = service.NewDirectoryService(st, st.Conversations(), st.Members(), st.Messages(), st.Users(), resolver)
	s.ledger = service.NewLedgerService(st, st.Conversations(), st.Members(), st.Messages(), st.Typing(), st.Users(), resolver, s.directory, nil)

	s.mux = http.NewServeMux()
	routes(s.mux, routeDeps{
		auth:          middleware.Auth(s.auth),
		authHandler:   handlers.NewAuthHandler(s.auth),
		conversations: handlers.NewConversationHandler(s.directory, s.ledger, s.projections),
		friendships:   handlers.NewFriendshipHandler(service.NewFriendshipService(st, st.Friendships(), st.Users())),
		settings:      handlers.NewSettingsHandler(service.NewSettingsService(st.Settings())),
		servers:       handlers.NewServerHandler(service.NewServerService(st, st.Servers(), st.Invites(), st.Users())),
		ws:            func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
	})
	return s
}

func TestRoutesResolve(t *testing.T) {
	s := newTestServices(t)
	id := uuid.New()

	cases := []struct {
		method, path, pattern string
	}{
		{"GET", "/health", "GET /health"},
		{"GET", "/ws", "GET /ws"},
		{"POST", "/api/v1/messages", "POST /api/v1/messages"},
		{"DELETE", "/api/v1/messages/" + id.String(), "DELETE /api/v1/messages/{id}"},
		{"GET", "/api/v1/conversations/unread-count", "GET /api/v1/conversations/unread-count"},
		{"GET", "/api/v1/conversations/" + id.String(), "GET /api/v1/conversations/{id}"},
		{"POST", "/api/v1/conversations/" + id.String() + "/leave", "POST /api/v1/conversations/{id}/leave"},
		{"DELETE", "/api/v1/conversations/" + id.String() + "/typing", "DELETE /api/v1/conversations/{id}/typing"},
		{"GET", "/api/v1/users/" + id.String() + "/dm-permission", "GET /api/v1/users/{id}/dm-permission"},
		{"PUT", "/api/v1/blocks/" + id.String(), "PUT /api/v1/blocks/{id}"},
		{"DELETE", "/api/v1/servers/" + id.String() + "/bans/" + id.String(), "DELETE /api/v1/servers/{id}/bans/{uid}"},
		{"POST", "/api/v1/invites/abc/accept", "POST /api/v1/invites/{token}/accept"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			_, pattern := s.mux.Handler(req)
			assert.Equal(t, tc.pattern, pattern)
		})
	}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	s := newTestServices(t)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSConversationsDelegates(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	register := func(name string) uuid.UUID {
		resp, err := s.auth.Register(ctx, service.RegisterInput{
			Email:       name + "@example.com",
			Username:    name,
			DisplayName: name,
			Password:    "password123",
		})
		require.NoError(t, err)
		return resp.User.ID
	}
	alice, bob, carol := register("alice"), register("bob"), register("carol")

	ref, err := s.directory.FindOrCreateDirect(ctx, alice, bob)
	require.NoError(t, err)
	convID := ref.ConversationID

	convs := wsConversations{s.projections, s.ledger}
	require.NoError(t, convs.Authorize(ctx, bob, convID))
	assert.ErrorIs(t, convs.Authorize(ctx, carol, convID), service.ErrNotConversationMember)

	require.NoError(t, convs.StartTyping(ctx, alice, convID))
	typing, err := s.projections.ListTypingUsers(ctx, bob, convID)
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, alice, typing[0].ID)

	require.NoError(t, convs.StopTyping(ctx, alice, convID))
	typing, err = s.projections.ListTypingUsers(ctx, bob, convID)
	require.NoError(t, err)
	assert.Empty(t, typing)
}
