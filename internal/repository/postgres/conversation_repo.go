package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, type, name, icon_url, owner_id, is_active, created_by, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		c.ID, c.Type, c.Name, c.IconURL, c.OwnerID, c.IsActive, c.CreatedBy, c.CreatedAt, c.LastMessageAt,
	)
	return err
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, type, name, icon_url, owner_id, is_active, created_by, created_at, last_message_at
		FROM conversations
		WHERE id = $1`
	var c domain.Conversation
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Type, &c.Name, &c.IconURL, &c.OwnerID, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &c, err
}

func (r *ConversationRepo) SetOwner(ctx context.Context, id, ownerID uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `UPDATE conversations SET owner_id = $1 WHERE id = $2`, ownerID, id)
	return err
}

func (r *ConversationRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `UPDATE conversations SET is_active = FALSE WHERE id = $1`, id)
	return err
}
