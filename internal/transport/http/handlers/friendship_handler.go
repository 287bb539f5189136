package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type FriendshipHandler struct {
	friendships *service.FriendshipService
}

func NewFriendshipHandler(friendships *service.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friendships: friendships}
}

func (h *FriendshipHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.FriendRequestInput
	if !decodeValid(w, r, &input) {
		return
	}

	f, err := h.friendships.SendRequest(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "send friend request", err)
		return
	}

	writeJSON(w, http.StatusCreated, f)
}

func (h *FriendshipHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "accept friend request", "request", h.friendships.AcceptRequest)
}

func (h *FriendshipHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "reject friend request", "request", h.friendships.RejectRequest)
}

func (h *FriendshipHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "cancel friend request", "request", h.friendships.CancelRequest)
}

func (h *FriendshipHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "remove friend", "user", h.friendships.RemoveFriend)
}

func (h *FriendshipHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "block user", "user", h.friendships.Block)
}

func (h *FriendshipHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "unblock user", "user", h.friendships.Unblock)
}

func (h *FriendshipHandler) byID(w http.ResponseWriter, r *http.Request, op, label string, fn func(ctx context.Context, userID, id uuid.UUID) error) {
	userID := middleware.GetUserID(r.Context())
	id, ok := pathUUID(w, r, "id", label)
	if !ok {
		return
	}

	if err := fn(r.Context(), userID, id); err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FriendshipHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list friends", h.friendships.ListFriends)
}

func (h *FriendshipHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list incoming requests", h.friendships.ListIncomingRequests)
}

func (h *FriendshipHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list outgoing requests", h.friendships.ListOutgoingRequests)
}

func (h *FriendshipHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list blocked users", h.friendships.ListBlocked)
}

func (h *FriendshipHandler) list(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error)) {
	userID := middleware.GetUserID(r.Context())

	items, err := fn(r.Context(), userID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}
