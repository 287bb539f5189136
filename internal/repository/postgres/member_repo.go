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

const memberColumns = `conversation_id, user_id, role, joined_at, left_at, is_muted, is_pinned, nickname, last_read_at, last_read_message_id, hidden_at`

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) Add(ctx context.Context, members ...domain.ConversationMember) error {
	if len(members) == 0 {
		return nil
	}
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at, is_muted, is_pinned)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			joined_at = EXCLUDED.joined_at,
			left_at = NULL,
			hidden_at = NULL`

	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(query, m.ConversationID, m.UserID, m.Role, m.JoinedAt, m.IsMuted, m.IsPinned)
	}
	br := database.Conn(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()

	for range members {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting member: %w", err)
		}
	}
	return nil
}

func (r *MemberRepo) Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error) {
	query := `SELECT ` + memberColumns + ` FROM conversation_members WHERE conversation_id = $1 AND user_id = $2`
	m, err := scanMember(database.Conn(ctx, r.pool).QueryRow(ctx, query, conversationID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MemberRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM conversation_members
		WHERE user_id = $1 AND left_at IS NULL`
	return r.list(ctx, query, userID)
}

func (r *MemberRepo) ListActive(ctx context.Context, conversationID uuid.UUID) ([]domain.ConversationMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM conversation_members
		WHERE conversation_id = $1 AND left_at IS NULL
		ORDER BY joined_at, user_id`
	return r.list(ctx, query, conversationID)
}

func (r *MemberRepo) MarkLeft(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	query := `UPDATE conversation_members SET left_at = $1 WHERE conversation_id = $2 AND user_id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, at, conversationID, userID)
	return err
}

func (r *MemberRepo) SetRole(ctx context.Context, conversationID, userID uuid.UUID, role *string) error {
	query := `UPDATE conversation_members SET role = $1 WHERE conversation_id = $2 AND user_id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, role, conversationID, userID)
	return err
}

func (r *MemberRepo) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time, messageID *uuid.UUID) error {
	query := `
		UPDATE conversation_members SET last_read_at = $1, last_read_message_id = $2
		WHERE conversation_id = $3 AND user_id = $4`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, at, messageID, conversationID, userID)
	return err
}

func (r *MemberRepo) UpdateSettings(ctx context.Context, conversationID, userID uuid.UUID, patch domain.MemberSettingsPatch) error {
	query := `
		UPDATE conversation_members SET
			is_muted = COALESCE($1, is_muted),
			is_pinned = COALESCE($2, is_pinned),
			nickname = CASE WHEN $3::boolean THEN NULLIF($4, '') ELSE nickname END
		WHERE conversation_id = $5 AND user_id = $6`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		patch.IsMuted, patch.IsPinned, patch.Nickname != nil, patch.Nickname, conversationID, userID,
	)
	return err
}

func (r *MemberRepo) SetHidden(ctx context.Context, conversationID, userID uuid.UUID, at *time.Time) error {
	query := `UPDATE conversation_members SET hidden_at = $1 WHERE conversation_id = $2 AND user_id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, at, conversationID, userID)
	return err
}

func (r *MemberRepo) ClearHidden(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	query := `UPDATE conversation_members SET hidden_at = NULL WHERE conversation_id = $1 AND hidden_at IS NOT NULL`
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query, conversationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MemberRepo) list(ctx context.Context, query string, arg any) ([]domain.ConversationMember, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ConversationMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func scanMember(row pgx.Row) (*domain.ConversationMember, error) {
	var m domain.ConversationMember
	err := row.Scan(
		&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LeftAt,
		&m.IsMuted, &m.IsPinned, &m.Nickname, &m.LastReadAt, &m.LastReadMessageID, &m.HiddenAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
