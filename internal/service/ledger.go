package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/internal/storage"
	"github.com/vedran77/parley/pkg/apperr"
)

var (
	ErrMessageNotFound     = apperr.NotFound("Message not found")
	ErrNotMessageSender    = apperr.Forbidden("Only the message sender can perform this action")
	ErrMessageDeleted      = apperr.InvalidState("This message has been deleted")
	ErrNoTarget            = apperr.InvalidArgument("Either conversation_id or receiver_id is required")
	ErrMessageTooLong      = apperr.InvalidArgument(fmt.Sprintf("Message content cannot exceed %d characters", domain.MaxMessageLength))
	ErrEmptyContent        = apperr.InvalidArgument("Message content cannot be empty")
	ErrInvalidMessageType  = apperr.InvalidArgument("Unknown message type")
	ErrReplyNotFound       = apperr.NotFound("Replied-to message not found")
	ErrReplyElsewhere      = apperr.InvalidArgument("Replied-to message belongs to another conversation")
	ErrAttachmentNoURL     = apperr.InvalidArgument("Attachment needs a url or a storage_id")
	ErrAttachmentsDisabled = apperr.InvalidArgument("Attachment storage is not configured")
	ErrReadMarkerElsewhere = apperr.InvalidArgument("Message does not belong to this conversation")
)

// LedgerService appends and amends messages and keeps per-member state.
type LedgerService struct {
	membershipGuard
	txm         repository.TxManager
	messageRepo repository.MessageRepository
	typingRepo  repository.TypingRepository
	userRepo    repository.UserRepository
	resolver    *PermissionResolver
	directory   *DirectoryService
	urls        storage.URLResolver
	notifier    Notifier
	now         func() time.Time
}

func NewLedgerService(
	txm repository.TxManager,
	convRepo repository.ConversationRepository,
	memberRepo repository.MemberRepository,
	messageRepo repository.MessageRepository,
	typingRepo repository.TypingRepository,
	userRepo repository.UserRepository,
	resolver *PermissionResolver,
	directory *DirectoryService,
	urls storage.URLResolver,
) *LedgerService {
	return &LedgerService{
		membershipGuard: membershipGuard{convRepo: convRepo, memberRepo: memberRepo},
		txm:             txm,
		messageRepo:     messageRepo,
		typingRepo:      typingRepo,
		userRepo:        userRepo,
		resolver:        resolver,
		directory:       directory,
		urls:            urls,
		now:             time.Now,
	}
}

func (s *LedgerService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendMessageInput struct {
	ConversationID *uuid.UUID          `json:"conversation_id"`
	ReceiverID     *uuid.UUID          `json:"receiver_id"`
	Content        string              `json:"content"`
	Type           *domain.MessageType `json:"type"`
	Attachments    []domain.Attachment `json:"attachments" validate:"max=10,dive"`
	ReplyToID      *uuid.UUID          `json:"reply_to_id"`
}

type SendResult struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Send appends a message. Without a conversation id the direct conversation
// with ReceiverID is found or created after the permission check.
func (s *LedgerService) Send(ctx context.Context, senderID uuid.UUID, input SendMessageInput) (*SendResult, error) {
	if input.ConversationID == nil && input.ReceiverID == nil {
		return nil, ErrNoTarget
	}
	if utf8.RuneCountInString(input.Content) > domain.MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if input.Type != nil && !input.Type.Valid() {
		return nil, ErrInvalidMessageType
	}

	var msg *domain.ConversationMessage
	var unhidden int64
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var conversationID uuid.UUID
		if input.ConversationID != nil {
			conversationID = *input.ConversationID
		} else {
			receiverID := *input.ReceiverID
			if receiverID == senderID {
				return ErrCannotMessageSelf
			}
			if _, err := requireUser(ctx, s.userRepo, receiverID); err != nil {
				return err
			}
			if err := s.resolver.RequireDirectMessage(ctx, senderID, receiverID); err != nil {
				return err
			}
			ref, err := s.directory.findOrCreateDirect(ctx, senderID, receiverID)
			if err != nil {
				return err
			}
			conversationID = ref.ConversationID
		}

		if _, _, err := s.requireActive(ctx, conversationID, senderID); err != nil {
			return err
		}

		if input.ReplyToID != nil {
			target, err := s.messageRepo.GetByID(ctx, *input.ReplyToID)
			if err != nil {
				return err
			}
			if target == nil {
				return ErrReplyNotFound
			}
			if target.ConversationID != conversationID {
				return ErrReplyElsewhere
			}
		}

		attachments, err := s.resolveAttachments(ctx, input.Attachments)
		if err != nil {
			return err
		}

		sender, err := requireUser(ctx, s.userRepo, senderID)
		if err != nil {
			return err
		}

		msg = &domain.ConversationMessage{
			ID:                uuid.New(),
			ConversationID:    conversationID,
			SenderID:          senderID,
			Content:           input.Content,
			Type:              resolveMessageType(input.Type, input.Content, attachments),
			Attachments:       attachments,
			ReplyToID:         input.ReplyToID,
			CreatedAt:         s.now(),
			SenderDisplayName: displayName(sender),
			SenderAvatarURL:   sender.AvatarURL,
		}
		if err := s.messageRepo.Append(ctx, msg); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}

		unhidden, err = s.memberRepo.ClearHidden(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("unhiding conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(msg)
		if unhidden > 0 {
			s.notifier.NotifyConversationUpdated(msg.ConversationID)
		}
	}
	return &SendResult{MessageID: msg.ID, ConversationID: msg.ConversationID}, nil
}

// resolveMessageType: an explicit type wins, then text for content, then
// file for attachments.
func resolveMessageType(explicit *domain.MessageType, content string, attachments []domain.Attachment) domain.MessageType {
	switch {
	case explicit != nil:
		return *explicit
	case content != "":
		return domain.MessageText
	case len(attachments) > 0:
		return domain.MessageFile
	default:
		return domain.MessageText
	}
}

// resolveAttachments fills missing URLs from storage ids, one at a time and
// in order.
func (s *LedgerService) resolveAttachments(ctx context.Context, in []domain.Attachment) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		if a.URL == "" {
			if a.StorageID == nil || *a.StorageID == "" {
				return nil, ErrAttachmentNoURL
			}
			if s.urls == nil {
				return nil, ErrAttachmentsDisabled
			}
			u, err := s.urls.ResolveURL(ctx, *a.StorageID)
			if err != nil {
				return nil, fmt.Errorf("resolving attachment %q: %w", a.Name, err)
			}
			a.URL = u
		}
		out = append(out, a)
	}
	return out, nil
}

// Edit replaces the content of the actor's own message.
func (s *LedgerService) Edit(ctx context.Context, actorID, messageID uuid.UUID, content string) (*domain.ConversationMessage, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	var msg *domain.ConversationMessage
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.ownMessage(ctx, actorID, messageID)
		if err != nil {
			return err
		}
		if msg.Deleted() {
			return ErrMessageDeleted
		}

		now := s.now()
		if err := s.messageRepo.UpdateContent(ctx, messageID, content, now); err != nil {
			return fmt.Errorf("editing message: %w", err)
		}
		msg.Content = content
		msg.EditedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyEditedMessage(msg)
	}
	return msg, nil
}

// SoftDelete blanks the actor's own message and keeps the row. Deleting
// twice is a no-op.
func (s *LedgerService) SoftDelete(ctx context.Context, actorID, messageID uuid.UUID) error {
	var msg *domain.ConversationMessage
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.ownMessage(ctx, actorID, messageID)
		if err != nil {
			return err
		}
		if msg.Deleted() {
			msg = nil
			return nil
		}
		return s.messageRepo.SoftDelete(ctx, messageID, domain.DeletedMessagePlaceholder, s.now())
	})
	if err != nil {
		return err
	}

	if s.notifier != nil && msg != nil {
		s.notifier.NotifyDeletedMessage(msg.ConversationID, messageID)
	}
	return nil
}

func (s *LedgerService) ownMessage(ctx context.Context, actorID, messageID uuid.UUID) (*domain.ConversationMessage, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != actorID {
		return nil, ErrNotMessageSender
	}
	return msg, nil
}

// MarkRead moves the caller's read marker to now. lastMessageID is stored as
// a high-water mark and need not be the newest message.
func (s *LedgerService) MarkRead(ctx context.Context, actorID, conversationID uuid.UUID, lastMessageID *uuid.UUID) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.requireMember(ctx, conversationID, actorID); err != nil {
			return err
		}
		if lastMessageID != nil {
			msg, err := s.messageRepo.GetByID(ctx, *lastMessageID)
			if err != nil {
				return err
			}
			if msg == nil {
				return ErrMessageNotFound
			}
			if msg.ConversationID != conversationID {
				return ErrReadMarkerElsewhere
			}
		}
		return s.memberRepo.MarkRead(ctx, conversationID, actorID, s.now(), lastMessageID)
	})
}

// UpdateMemberSettings changes only the fields present in patch.
func (s *LedgerService) UpdateMemberSettings(ctx context.Context, actorID, conversationID uuid.UUID, patch domain.MemberSettingsPatch) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.requireMember(ctx, conversationID, actorID); err != nil {
			return err
		}
		if patch.Empty() {
			return nil
		}
		return s.memberRepo.UpdateSettings(ctx, conversationID, actorID, patch)
	})
}

// Hide drops the conversation from the caller's list until newer traffic.
func (s *LedgerService) Hide(ctx context.Context, actorID, conversationID uuid.UUID) error {
	return s.setHidden(ctx, actorID, conversationID, true)
}

func (s *LedgerService) Unhide(ctx context.Context, actorID, conversationID uuid.UUID) error {
	return s.setHidden(ctx, actorID, conversationID, false)
}

func (s *LedgerService) setHidden(ctx context.Context, actorID, conversationID uuid.UUID, hidden bool) error {
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.requireMember(ctx, conversationID, actorID); err != nil {
			return err
		}
		var at *time.Time
		if hidden {
			now := s.now()
			at = &now
		}
		return s.memberRepo.SetHidden(ctx, conversationID, actorID, at)
	})
}

// StartTyping takes or refreshes the caller's typing lease.
func (s *LedgerService) StartTyping(ctx context.Context, actorID, conversationID uuid.UUID) error {
	if _, _, err := s.requireActive(ctx, conversationID, actorID); err != nil {
		return err
	}
	now := s.now()
	err := s.typingRepo.Upsert(ctx, &domain.TypingIndicator{
		ConversationID: conversationID,
		UserID:         actorID,
		StartedAt:      now,
		ExpiresAt:      now.Add(domain.TypingTTL),
	})
	if err != nil {
		return fmt.Errorf("starting typing: %w", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyTyping(conversationID, actorID, true)
	}
	return nil
}

// StopTyping releases the caller's lease if one exists.
func (s *LedgerService) StopTyping(ctx context.Context, actorID, conversationID uuid.UUID) error {
	if _, _, err := s.requireMember(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.typingRepo.Delete(ctx, conversationID, actorID); err != nil {
		return fmt.Errorf("stopping typing: %w", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyTyping(conversationID, actorID, false)
	}
	return nil
}
