package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type ConversationHandler struct {
	directory   *service.DirectoryService
	ledger      *service.LedgerService
	projections *service.ProjectionService
}

func NewConversationHandler(directory *service.DirectoryService, ledger *service.LedgerService, projections *service.ProjectionService) *ConversationHandler {
	return &ConversationHandler{directory: directory, ledger: ledger, projections: projections}
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.SendMessageInput
	if !decodeValid(w, r, &input) {
		return
	}

	result, err := h.ledger.Send(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *ConversationHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	var input struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &input, false) {
		return
	}

	msg, err := h.ledger.Edit(r.Context(), userID, messageID, input.Content)
	if err != nil {
		writeServiceError(w, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *ConversationHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	if err := h.ledger.SoftDelete(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateGroupInput
	if !decodeValid(w, r, &input) {
		return
	}

	convID, err := h.directory.CreateGroup(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"conversation_id": convID})
}

func (h *ConversationHandler) GetOrCreateForMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.MembersInput
	if !decodeValid(w, r, &input) {
		return
	}

	ref, err := h.directory.GetOrCreateForMembers(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "get or create conversation", err)
		return
	}

	status := http.StatusOK
	if ref.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ref)
}

func (h *ConversationHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input struct {
		MemberIDs []uuid.UUID `json:"member_ids" validate:"required,min=1,max=9"`
	}
	if !decodeValid(w, r, &input) {
		return
	}

	added, err := h.directory.AddMembers(r.Context(), userID, convID, input.MemberIDs)
	if err != nil {
		writeServiceError(w, "add group members", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"added_count": added})
}

func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.conversationAction(w, r, "leave group", h.directory.Leave)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input struct {
		LastMessageID *uuid.UUID `json:"last_message_id"`
	}
	if !decodeJSON(w, r, &input, true) {
		return
	}

	if err := h.ledger.MarkRead(r.Context(), userID, convID, input.LastMessageID); err != nil {
		writeServiceError(w, "mark read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var patch domain.MemberSettingsPatch
	if !decodeJSON(w, r, &patch, false) {
		return
	}

	if err := h.ledger.UpdateMemberSettings(r.Context(), userID, convID, patch); err != nil {
		writeServiceError(w, "update conversation settings", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	h.conversationAction(w, r, "hide conversation", h.ledger.Hide)
}

func (h *ConversationHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	h.conversationAction(w, r, "unhide conversation", h.ledger.Unhide)
}

func (h *ConversationHandler) StartTyping(w http.ResponseWriter, r *http.Request) {
	h.conversationAction(w, r, "start typing", h.ledger.StartTyping)
}

func (h *ConversationHandler) StopTyping(w http.ResponseWriter, r *http.Request) {
	h.conversationAction(w, r, "stop typing", h.ledger.StopTyping)
}

// conversationAction runs a body-less mutation on the conversation in the
// path and answers 204.
func (h *ConversationHandler) conversationAction(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, conversationID uuid.UUID) error) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	if err := fn(r.Context(), userID, convID); err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.projections.ListConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	details, err := h.projections.GetDetails(r.Context(), userID, convID)
	if err != nil {
		writeServiceError(w, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	// Parse query params
	var before *uuid.UUID
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		id, err := uuid.Parse(beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid before cursor")
			return
		}
		before = &id
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	page, err := h.projections.ListMessages(r.Context(), userID, convID, before, limit)
	if err != nil {
		writeServiceError(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *ConversationHandler) ListTyping(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	users, err := h.projections.ListTypingUsers(r.Context(), userID, convID)
	if err != nil {
		writeServiceError(w, "list typing users", err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	total, err := h.projections.UnreadTotal(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "unread count", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": total})
}

func (h *ConversationHandler) CheckDMPermission(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	targetID, ok := pathUUID(w, r, "id", "user")
	if !ok {
		return
	}

	decision, err := h.projections.CheckDMPermission(r.Context(), userID, targetID)
	if err != nil {
		writeServiceError(w, "check dm permission", err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}
