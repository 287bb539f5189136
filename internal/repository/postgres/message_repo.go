package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/domain"
)

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.type, m.attachments, m.reply_to_id,
	m.edited_at, m.deleted_at, m.created_at, m.sender_display_name, m.sender_avatar_url`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.ConversationMessage) error {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO conversation_messages (id, conversation_id, sender_id, content, type, attachments, reply_to_id,
			created_at, sender_display_name, sender_avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type, attachments, msg.ReplyToID,
		msg.CreatedAt, msg.SenderDisplayName, msg.SenderAvatarURL,
	)
	batch.Queue(`
		UPDATE conversations SET last_message_at = GREATEST(COALESCE(last_message_at, $1), $1)
		WHERE id = $2`,
		msg.CreatedAt, msg.ConversationID,
	)

	br := database.Conn(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()

	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("updating last_message_at: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConversationMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM conversation_messages m WHERE m.id = $1`
	msg, err := scanMessage(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) ListPage(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	var query string
	var args []any

	if before != nil {
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`,
				u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
			FROM conversation_messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = $1
				AND (m.created_at, m.id) < (
					SELECT created_at, id FROM conversation_messages WHERE id = $2 AND conversation_id = $1)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT %d`, limit)
		args = []any{conversationID, *before}
	} else {
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`,
				u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
			FROM conversation_messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT %d`, limit)
		args = []any{conversationID}
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ConversationMessage
	for rows.Next() {
		var msg domain.ConversationMessage
		var sender domain.UserSummary
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type, &msg.Attachments, &msg.ReplyToID,
			&msg.EditedAt, &msg.DeletedAt, &msg.CreatedAt, &msg.SenderDisplayName, &msg.SenderAvatarURL,
			&sender.ID, &sender.Username, &sender.DisplayName, &sender.Discriminator, &sender.AvatarURL, &sender.Status,
		); err != nil {
			return nil, err
		}
		msg.Sender = &sender
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) Latest(ctx context.Context, conversationID uuid.UUID) (*domain.ConversationMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM conversation_messages m
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`
	msg, err := scanMessage(database.Conn(ctx, r.pool).QueryRow(ctx, query, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since *time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM conversation_messages
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND ($3::timestamptz IS NULL OR created_at > $3)`
	var n int
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, conversationID, userID, since).Scan(&n)
	return n, err
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error {
	query := `UPDATE conversation_messages SET content = $1, edited_at = $2 WHERE id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, content, editedAt, id)
	return err
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id uuid.UUID, placeholder string, at time.Time) error {
	query := `UPDATE conversation_messages SET content = $1, deleted_at = $2 WHERE id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, placeholder, at, id)
	return err
}

func scanMessage(row pgx.Row) (*domain.ConversationMessage, error) {
	var msg domain.ConversationMessage
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type, &msg.Attachments, &msg.ReplyToID,
		&msg.EditedAt, &msg.DeletedAt, &msg.CreatedAt, &msg.SenderDisplayName, &msg.SenderAvatarURL,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
