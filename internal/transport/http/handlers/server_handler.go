package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type ServerHandler struct {
	servers *service.ServerService
}

func NewServerHandler(servers *service.ServerService) *ServerHandler {
	return &ServerHandler{servers: servers}
}

func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateServerInput
	if !decodeValid(w, r, &input) {
		return
	}

	srv, err := h.servers.Create(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "create server", err)
		return
	}

	writeJSON(w, http.StatusCreated, srv)
}

func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	servers, err := h.servers.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list servers", err)
		return
	}

	writeJSON(w, http.StatusOK, servers)
}

func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	srv, err := h.servers.GetByID(r.Context(), userID, serverID)
	if err != nil {
		writeServiceError(w, "get server", err)
		return
	}

	writeJSON(w, http.StatusOK, srv)
}

func (h *ServerHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	var input service.UpdateServerInput
	if !decodeValid(w, r, &input) {
		return
	}

	srv, err := h.servers.Update(r.Context(), userID, serverID, input)
	if err != nil {
		writeServiceError(w, "update server", err)
		return
	}

	writeJSON(w, http.StatusOK, srv)
}

func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	if err := h.servers.Delete(r.Context(), userID, serverID); err != nil {
		writeServiceError(w, "delete server", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ServerHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	if err := h.servers.Leave(r.Context(), userID, serverID); err != nil {
		writeServiceError(w, "leave server", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ServerHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	var input struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
	}
	if !decodeValid(w, r, &input) {
		return
	}

	if err := h.servers.AddMember(r.Context(), userID, serverID, input.UserID); err != nil {
		writeServiceError(w, "add server member", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *ServerHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "remove server member", h.servers.RemoveMember)
}

func (h *ServerHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "ban server member", h.servers.Ban)
}

func (h *ServerHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "unban server member", h.servers.Unban)
}

func (h *ServerHandler) moderate(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, requesterID, serverID, userID uuid.UUID) error) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}
	targetID, ok := pathUUID(w, r, "uid", "user")
	if !ok {
		return
	}

	if err := fn(r.Context(), userID, serverID, targetID); err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ServerHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	members, err := h.servers.ListMembers(r.Context(), userID, serverID)
	if err != nil {
		writeServiceError(w, "list server members", err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *ServerHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	var input service.CreateInviteInput
	if !decodeJSON(w, r, &input, true) {
		return
	}

	inv, err := h.servers.CreateInvite(r.Context(), userID, serverID, input)
	if err != nil {
		writeServiceError(w, "create invite", err)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *ServerHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	serverID, ok := pathUUID(w, r, "id", "server")
	if !ok {
		return
	}

	invites, err := h.servers.ListInvites(r.Context(), userID, serverID)
	if err != nil {
		writeServiceError(w, "list invites", err)
		return
	}

	writeJSON(w, http.StatusOK, invites)
}

func (h *ServerHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := h.servers.GetInvite(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(w, "get invite", err)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *ServerHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	srv, err := h.servers.AcceptInvite(r.Context(), userID, r.PathValue("token"))
	if err != nil {
		writeServiceError(w, "accept invite", err)
		return
	}

	writeJSON(w, http.StatusOK, srv)
}

func (h *ServerHandler) RevokeInvite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.servers.RevokeInvite(r.Context(), userID, r.PathValue("token")); err != nil {
		writeServiceError(w, "revoke invite", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
