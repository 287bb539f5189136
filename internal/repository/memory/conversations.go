package memory

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

type ConversationRepo struct {
	store *Store
}

func (r *ConversationRepo) Create(_ context.Context, c *domain.Conversation) error {
	return r.store.write(func(st *state) error {
		if _, ok := st.conversations[c.ID]; ok {
			return ErrDuplicate
		}
		st.conversations[c.ID] = *c
		return nil
	})
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var out *domain.Conversation
	r.store.read(func(st *state) {
		if c, ok := st.conversations[id]; ok {
			out = &c
		}
	})
	return out, nil
}

func (r *ConversationRepo) SetOwner(_ context.Context, id, ownerID uuid.UUID) error {
	return r.store.write(func(st *state) error {
		if c, ok := st.conversations[id]; ok {
			c.OwnerID = &ownerID
			st.conversations[id] = c
		}
		return nil
	})
}

func (r *ConversationRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	return r.store.write(func(st *state) error {
		if c, ok := st.conversations[id]; ok {
			c.IsActive = false
			st.conversations[id] = c
		}
		return nil
	})
}

// Count returns how many conversations exist.
func (r *ConversationRepo) Count() int {
	n := 0
	r.store.read(func(st *state) { n = len(st.conversations) })
	return n
}

type MemberRepo struct {
	store *Store
}

// Add upserts: a returning member gets a fresh join and loses left/hidden
// markers, everything else on the row is kept.
func (r *MemberRepo) Add(_ context.Context, members ...domain.ConversationMember) error {
	return r.store.write(func(st *state) error {
		for _, m := range members {
			key := memberKey{m.ConversationID, m.UserID}
			if existing, ok := st.members[key]; ok {
				existing.Role = m.Role
				existing.JoinedAt = m.JoinedAt
				existing.LeftAt = nil
				existing.HiddenAt = nil
				st.members[key] = existing
				continue
			}
			st.members[key] = m
		}
		return nil
	})
}

func (r *MemberRepo) Get(_ context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error) {
	var out *domain.ConversationMember
	r.store.read(func(st *state) {
		if m, ok := st.members[memberKey{conversationID, userID}]; ok {
			out = &m
		}
	})
	return out, nil
}

func (r *MemberRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]domain.ConversationMember, error) {
	var out []domain.ConversationMember
	r.store.read(func(st *state) {
		for key, m := range st.members {
			if key.userID == userID && m.LeftAt == nil {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func (r *MemberRepo) ListActive(_ context.Context, conversationID uuid.UUID) ([]domain.ConversationMember, error) {
	var out []domain.ConversationMember
	r.store.read(func(st *state) {
		for key, m := range st.members {
			if key.conversationID == conversationID && m.LeftAt == nil {
				out = append(out, m)
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.ConversationMember) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.UserID[:], b.UserID[:])
	})
	return out, nil
}

func (r *MemberRepo) update(conversationID, userID uuid.UUID, fn func(m *domain.ConversationMember)) error {
	return r.store.write(func(st *state) error {
		key := memberKey{conversationID, userID}
		if m, ok := st.members[key]; ok {
			fn(&m)
			st.members[key] = m
		}
		return nil
	})
}

func (r *MemberRepo) MarkLeft(_ context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	return r.update(conversationID, userID, func(m *domain.ConversationMember) { m.LeftAt = &at })
}

func (r *MemberRepo) SetRole(_ context.Context, conversationID, userID uuid.UUID, role *string) error {
	return r.update(conversationID, userID, func(m *domain.ConversationMember) { m.Role = role })
}

func (r *MemberRepo) MarkRead(_ context.Context, conversationID, userID uuid.UUID, at time.Time, messageID *uuid.UUID) error {
	return r.update(conversationID, userID, func(m *domain.ConversationMember) {
		m.LastReadAt = &at
		m.LastReadMessageID = messageID
	})
}

func (r *MemberRepo) UpdateSettings(_ context.Context, conversationID, userID uuid.UUID, patch domain.MemberSettingsPatch) error {
	return r.update(conversationID, userID, func(m *domain.ConversationMember) {
		if patch.IsMuted != nil {
			m.IsMuted = *patch.IsMuted
		}
		if patch.IsPinned != nil {
			m.IsPinned = *patch.IsPinned
		}
		if patch.Nickname != nil {
			if *patch.Nickname == "" {
				m.Nickname = nil
			} else {
				nick := *patch.Nickname
				m.Nickname = &nick
			}
		}
	})
}

func (r *MemberRepo) SetHidden(_ context.Context, conversationID, userID uuid.UUID, at *time.Time) error {
	return r.update(conversationID, userID, func(m *domain.ConversationMember) { m.HiddenAt = at })
}

func (r *MemberRepo) ClearHidden(_ context.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(func(st *state) error {
		for key, m := range st.members {
			if key.conversationID == conversationID && m.HiddenAt != nil {
				m.HiddenAt = nil
				st.members[key] = m
				n++
			}
		}
		return nil
	})
	return n, err
}

type MessageRepo struct {
	store *Store
}

func (r *MessageRepo) Append(_ context.Context, msg *domain.ConversationMessage) error {
	return r.store.write(func(st *state) error {
		if _, ok := st.messages[msg.ID]; ok {
			return ErrDuplicate
		}
		stored := *msg
		stored.Attachments = slices.Clone(msg.Attachments)
		if stored.Attachments == nil {
			stored.Attachments = []domain.Attachment{}
		}
		stored.Sender = nil
		st.messages[msg.ID] = stored

		if c, ok := st.conversations[msg.ConversationID]; ok {
			if c.LastMessageAt == nil || msg.CreatedAt.After(*c.LastMessageAt) {
				at := msg.CreatedAt
				c.LastMessageAt = &at
				st.conversations[c.ID] = c
			}
		}
		return nil
	})
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ConversationMessage, error) {
	var out *domain.ConversationMessage
	r.store.read(func(st *state) {
		if m, ok := st.messages[id]; ok {
			out = &m
		}
	})
	return out, nil
}

// newestFirstOrder matches ORDER BY created_at DESC, id DESC.
func newestFirstOrder(a, b domain.ConversationMessage) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(b.ID[:], a.ID[:])
}

func (r *MessageRepo) inConversation(st *state, conversationID uuid.UUID) []domain.ConversationMessage {
	var out []domain.ConversationMessage
	for _, m := range st.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, newestFirstOrder)
	return out
}

func (r *MessageRepo) ListPage(_ context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	r.store.read(func(st *state) {
		var cursor *domain.ConversationMessage
		if before != nil {
			c, ok := st.messages[*before]
			if !ok || c.ConversationID != conversationID {
				return
			}
			cursor = &c
		}
		for _, m := range r.inConversation(st, conversationID) {
			if len(out) == limit {
				return
			}
			if cursor != nil && newestFirstOrder(m, *cursor) <= 0 {
				continue
			}
			sender, ok := st.users[m.SenderID]
			if !ok {
				continue
			}
			summary := sender.Summary()
			m.Sender = &summary
			out = append(out, m)
		}
	})
	return out, nil
}

func (r *MessageRepo) Latest(_ context.Context, conversationID uuid.UUID) (*domain.ConversationMessage, error) {
	var out *domain.ConversationMessage
	r.store.read(func(st *state) {
		if msgs := r.inConversation(st, conversationID); len(msgs) > 0 {
			out = &msgs[0]
		}
	})
	return out, nil
}

func (r *MessageRepo) CountUnread(_ context.Context, conversationID, userID uuid.UUID, since *time.Time) (int, error) {
	n := 0
	r.store.read(func(st *state) {
		for _, m := range st.messages {
			if m.ConversationID != conversationID || m.SenderID == userID {
				continue
			}
			if since == nil || m.CreatedAt.After(*since) {
				n++
			}
		}
	})
	return n, nil
}

func (r *MessageRepo) UpdateContent(_ context.Context, id uuid.UUID, content string, editedAt time.Time) error {
	return r.store.write(func(st *state) error {
		if m, ok := st.messages[id]; ok {
			m.Content = content
			m.EditedAt = &editedAt
			st.messages[id] = m
		}
		return nil
	})
}

func (r *MessageRepo) SoftDelete(_ context.Context, id uuid.UUID, placeholder string, at time.Time) error {
	return r.store.write(func(st *state) error {
		if m, ok := st.messages[id]; ok {
			m.Content = placeholder
			m.DeletedAt = &at
			st.messages[id] = m
		}
		return nil
	})
}

// Count returns how many messages a conversation holds.
func (r *MessageRepo) Count(conversationID uuid.UUID) int {
	n := 0
	r.store.read(func(st *state) { n = len(r.inConversation(st, conversationID)) })
	return n
}

type TypingRepo struct {
	store *Store
}

func (r *TypingRepo) Upsert(_ context.Context, t *domain.TypingIndicator) error {
	return r.store.write(func(st *state) error {
		st.typing[memberKey{t.ConversationID, t.UserID}] = *t
		return nil
	})
}

func (r *TypingRepo) Delete(_ context.Context, conversationID, userID uuid.UUID) error {
	return r.store.write(func(st *state) error {
		delete(st.typing, memberKey{conversationID, userID})
		return nil
	})
}

func (r *TypingRepo) ListLive(_ context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error) {
	var out []domain.TypingIndicator
	r.store.read(func(st *state) {
		for key, t := range st.typing {
			if key.conversationID == conversationID && t.ExpiresAt.After(now) {
				out = append(out, t)
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.TypingIndicator) int { return cmp.Compare(a.StartedAt.UnixNano(), b.StartedAt.UnixNano()) })
	return out, nil
}

// Get returns the raw stored row, expired or not.
func (r *TypingRepo) Get(conversationID, userID uuid.UUID) *domain.TypingIndicator {
	var out *domain.TypingIndicator
	r.store.read(func(st *state) {
		if t, ok := st.typing[memberKey{conversationID, userID}]; ok {
			out = &t
		}
	})
	return out
}
