package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	}
	return false
}

// DeletedMessagePlaceholder replaces the content of a soft-deleted message.
const DeletedMessagePlaceholder = "This message has been deleted"

// MaxMessageLength is the content limit in characters.
const MaxMessageLength = 4000

type Attachment struct {
	Name      string  `json:"name"`
	URL       string  `json:"url,omitempty"`
	StorageID *string `json:"storage_id,omitempty"`
	Size      int64   `json:"size"`
	Type      string  `json:"type"`
}

type ConversationMessage struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	SenderID       uuid.UUID    `json:"sender_id"`
	Content        string       `json:"content"`
	Type           MessageType  `json:"type"`
	Attachments    []Attachment `json:"attachments"`
	ReplyToID      *uuid.UUID   `json:"reply_to_id,omitempty"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	// Snapshot of the sender taken at write time.
	SenderDisplayName string  `json:"sender_display_name"`
	SenderAvatarURL   *string `json:"sender_avatar_url,omitempty"`
	// Joined fields
	Sender *UserSummary `json:"sender,omitempty"`
}

func (m *ConversationMessage) Deleted() bool {
	return m.DeletedAt != nil
}
