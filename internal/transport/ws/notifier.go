package ws

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) publish(eventType string, conversationID uuid.UUID, payload any, exclude *uuid.UUID) {
	evt, err := NewEvent(eventType, &conversationID, payload)
	if err != nil {
		log.Error("ws notifier: marshal", "type", eventType, "err", err)
		return
	}
	n.hub.BroadcastToConversation(conversationID, evt, exclude)
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.ConversationMessage) {
	n.publish(EventTypeMessageNew, msg.ConversationID, MessagePayload{ConversationMessage: *msg}, nil)
}

func (n *HubNotifier) NotifyEditedMessage(msg *domain.ConversationMessage) {
	n.publish(EventTypeMessageEdited, msg.ConversationID, MessagePayload{ConversationMessage: *msg}, nil)
}

func (n *HubNotifier) NotifyDeletedMessage(conversationID, messageID uuid.UUID) {
	n.publish(EventTypeMessageDeleted, conversationID, MessageDeletedPayload{ID: messageID}, nil)
}

// NotifyTyping skips the typist's own connections.
func (n *HubNotifier) NotifyTyping(conversationID, userID uuid.UUID, typing bool) {
	n.publish(EventTypeTyping, conversationID, TypingPayload{UserID: userID, Typing: typing}, &userID)
}

func (n *HubNotifier) NotifyConversationUpdated(conversationID uuid.UUID) {
	n.publish(EventTypeConversationUpdated, conversationID, nil, nil)
}

// NotifyMemberLeft drops the user's subscriptions; their connections get a
// final conversation.left event.
func (n *HubNotifier) NotifyMemberLeft(conversationID, userID uuid.UUID) {
	evt, err := NewEvent(EventTypeConversationLeft, &conversationID, nil)
	if err != nil {
		log.Error("ws notifier: marshal", "type", EventTypeConversationLeft, "err", err)
		return
	}
	n.hub.UnsubscribeUser(conversationID, userID, evt)
}
