package main

import (
	"net/http"

	"github.com/vedran77/parley/internal/metrics"
	"github.com/vedran77/parley/internal/transport/http/handlers"
)

type routeDeps struct {
	auth          func(http.Handler) http.Handler
	authHandler   *handlers.AuthHandler
	conversations *handlers.ConversationHandler
	friendships   *handlers.FriendshipHandler
	settings      *handlers.SettingsHandler
	servers       *handlers.ServerHandler
	ws            http.HandlerFunc
}

func routes(mux *http.ServeMux, d routeDeps) {
	auth := func(h http.HandlerFunc) http.Handler { return d.auth(h) }

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/v1/auth/register", d.authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", d.authHandler.Login)
	mux.Handle("GET /api/v1/auth/me", auth(d.authHandler.Me))
	mux.HandleFunc("GET /ws", d.ws)

	// Protected - Messages
	c := d.conversations
	mux.Handle("POST /api/v1/messages", auth(c.SendMessage))
	mux.Handle("PATCH /api/v1/messages/{id}", auth(c.EditMessage))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(c.DeleteMessage))

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations", auth(c.List))
	mux.Handle("POST /api/v1/conversations", auth(c.GetOrCreateForMembers))
	mux.Handle("POST /api/v1/conversations/groups", auth(c.CreateGroup))
	mux.Handle("GET /api/v1/conversations/unread-count", auth(c.UnreadCount))
	mux.Handle("GET /api/v1/conversations/{id}", auth(c.Get))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(c.ListMessages))
	mux.Handle("POST /api/v1/conversations/{id}/members", auth(c.AddMembers))
	mux.Handle("POST /api/v1/conversations/{id}/leave", auth(c.Leave))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(c.MarkRead))
	mux.Handle("PATCH /api/v1/conversations/{id}/settings", auth(c.UpdateSettings))
	mux.Handle("POST /api/v1/conversations/{id}/hide", auth(c.Hide))
	mux.Handle("POST /api/v1/conversations/{id}/unhide", auth(c.Unhide))
	mux.Handle("GET /api/v1/conversations/{id}/typing", auth(c.ListTyping))
	mux.Handle("POST /api/v1/conversations/{id}/typing", auth(c.StartTyping))
	mux.Handle("DELETE /api/v1/conversations/{id}/typing", auth(c.StopTyping))
	mux.Handle("GET /api/v1/users/{id}/dm-permission", auth(c.CheckDMPermission))

	// Protected - Friends
	f := d.friendships
	mux.Handle("GET /api/v1/friends", auth(f.ListFriends))
	mux.Handle("DELETE /api/v1/friends/{id}", auth(f.RemoveFriend))
	mux.Handle("POST /api/v1/friends/requests", auth(f.SendRequest))
	mux.Handle("GET /api/v1/friends/requests/incoming", auth(f.ListIncoming))
	mux.Handle("GET /api/v1/friends/requests/outgoing", auth(f.ListOutgoing))
	mux.Handle("POST /api/v1/friends/requests/{id}/accept", auth(f.AcceptRequest))
	mux.Handle("POST /api/v1/friends/requests/{id}/reject", auth(f.RejectRequest))
	mux.Handle("DELETE /api/v1/friends/requests/{id}", auth(f.CancelRequest))
	mux.Handle("GET /api/v1/blocks", auth(f.ListBlocked))
	mux.Handle("PUT /api/v1/blocks/{id}", auth(f.Block))
	mux.Handle("DELETE /api/v1/blocks/{id}", auth(f.Unblock))

	// Protected - Settings
	mux.Handle("GET /api/v1/settings", auth(d.settings.Get))
	mux.Handle("PATCH /api/v1/settings", auth(d.settings.Update))

	// Protected - Servers
	s := d.servers
	mux.Handle("POST /api/v1/servers", auth(s.Create))
	mux.Handle("GET /api/v1/servers", auth(s.List))
	mux.Handle("GET /api/v1/servers/{id}", auth(s.Get))
	mux.Handle("PATCH /api/v1/servers/{id}", auth(s.Update))
	mux.Handle("DELETE /api/v1/servers/{id}", auth(s.Delete))
	mux.Handle("POST /api/v1/servers/{id}/leave", auth(s.Leave))
	mux.Handle("GET /api/v1/servers/{id}/members", auth(s.ListMembers))
	mux.Handle("POST /api/v1/servers/{id}/members", auth(s.AddMember))
	mux.Handle("DELETE /api/v1/servers/{id}/members/{uid}", auth(s.RemoveMember))
	mux.Handle("PUT /api/v1/servers/{id}/bans/{uid}", auth(s.Ban))
	mux.Handle("DELETE /api/v1/servers/{id}/bans/{uid}", auth(s.Unban))
	mux.Handle("POST /api/v1/servers/{id}/invites", auth(s.CreateInvite))
	mux.Handle("GET /api/v1/servers/{id}/invites", auth(s.ListInvites))
	mux.Handle("GET /api/v1/invites/{token}", auth(s.GetInvite))
	mux.Handle("POST /api/v1/invites/{token}/accept", auth(s.AcceptInvite))
	mux.Handle("DELETE /api/v1/invites/{token}", auth(s.RevokeInvite))
}
