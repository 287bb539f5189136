package service

import (
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

// Notifier receives conversation events after the mutation committed.
// It is optional; services work without one.
type Notifier interface {
	NotifyNewMessage(msg *domain.ConversationMessage)
	NotifyEditedMessage(msg *domain.ConversationMessage)
	NotifyDeletedMessage(conversationID, messageID uuid.UUID)
	NotifyTyping(conversationID, userID uuid.UUID, typing bool)
	NotifyConversationUpdated(conversationID uuid.UUID)
	// NotifyMemberLeft revokes userID's live subscriptions to the
	// conversation.
	NotifyMemberLeft(conversationID, userID uuid.UUID)
}
