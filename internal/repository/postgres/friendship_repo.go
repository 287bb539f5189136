package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/domain"
)

type FriendshipRepo struct {
	pool *pgxpool.Pool
}

func NewFriendshipRepo(pool *pgxpool.Pool) *FriendshipRepo {
	return &FriendshipRepo{pool: pool}
}

func (r *FriendshipRepo) Create(ctx context.Context, f *domain.Friendship) error {
	query := `
		INSERT INTO friendships (id, user_id1, user_id2, status, requested_by, accepted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		f.ID, f.UserID1, f.UserID2, f.Status, f.RequestedBy, f.AcceptedAt, f.CreatedAt,
	)
	return err
}

func (r *FriendshipRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Friendship, error) {
	query := `
		SELECT id, user_id1, user_id2, status, requested_by, accepted_at, created_at
		FROM friendships
		WHERE id = $1`
	var f domain.Friendship
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&f.ID, &f.UserID1, &f.UserID2, &f.Status, &f.RequestedBy, &f.AcceptedAt, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &f, err
}

func (r *FriendshipRepo) GetBetween(ctx context.Context, a, b uuid.UUID) (domain.Relation, error) {
	query := `
		SELECT id, user_id1, user_id2, status, requested_by, accepted_at, created_at
		FROM friendships
		WHERE (user_id1 = $1 AND user_id2 = $2) OR (user_id1 = $2 AND user_id2 = $1)`

	var rel domain.Relation
	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, a, b)
	if err != nil {
		return rel, err
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.Friendship
		if err := rows.Scan(
			&f.ID, &f.UserID1, &f.UserID2, &f.Status, &f.RequestedBy, &f.AcceptedAt, &f.CreatedAt,
		); err != nil {
			return rel, err
		}
		if f.UserID1 == a {
			rel.Forward = &f
		} else {
			rel.Reverse = &f
		}
	}
	return rel, rows.Err()
}

func (r *FriendshipRepo) Accept(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE friendships SET status = $1, accepted_at = $2 WHERE id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, domain.FriendshipAccepted, at, id)
	return err
}

func (r *FriendshipRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM friendships WHERE id = $1`, id)
	return err
}

func (r *FriendshipRepo) ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	query := `
		SELECT f.id, f.user_id1, f.user_id2, f.status, f.requested_by, f.accepted_at, f.created_at,
			u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_id1 = $1 THEN f.user_id2 ELSE f.user_id1 END
		WHERE (f.user_id1 = $1 OR f.user_id2 = $1) AND f.status = 'accepted'
		ORDER BY u.display_name ASC`
	return r.list(ctx, query, userID)
}

func (r *FriendshipRepo) ListIncoming(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	query := `
		SELECT f.id, f.user_id1, f.user_id2, f.status, f.requested_by, f.accepted_at, f.created_at,
			u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
		FROM friendships f
		JOIN users u ON u.id = f.user_id1
		WHERE f.user_id2 = $1 AND f.status = 'pending'
		ORDER BY f.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *FriendshipRepo) ListOutgoing(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	query := `
		SELECT f.id, f.user_id1, f.user_id2, f.status, f.requested_by, f.accepted_at, f.created_at,
			u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
		FROM friendships f
		JOIN users u ON u.id = f.user_id2
		WHERE f.user_id1 = $1 AND f.status = 'pending'
		ORDER BY f.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *FriendshipRepo) ListBlocked(ctx context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	query := `
		SELECT f.id, f.user_id1, f.user_id2, f.status, f.requested_by, f.accepted_at, f.created_at,
			u.id, u.username, u.display_name, u.discriminator, u.avatar_url, u.status
		FROM friendships f
		JOIN users u ON u.id = f.user_id2
		WHERE f.user_id1 = $1 AND f.status = 'blocked'
		ORDER BY f.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *FriendshipRepo) list(ctx context.Context, query string, userID uuid.UUID) ([]domain.Friendship, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friendship
	for rows.Next() {
		var f domain.Friendship
		var other domain.UserSummary
		if err := rows.Scan(
			&f.ID, &f.UserID1, &f.UserID2, &f.Status, &f.RequestedBy, &f.AcceptedAt, &f.CreatedAt,
			&other.ID, &other.Username, &other.DisplayName, &other.Discriminator, &other.AvatarURL, &other.Status,
		); err != nil {
			return nil, err
		}
		f.Other = &other
		out = append(out, f)
	}
	return out, rows.Err()
}
