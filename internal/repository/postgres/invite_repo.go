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

type InviteRepo struct {
	pool *pgxpool.Pool
}

func NewInviteRepo(pool *pgxpool.Pool) *InviteRepo {
	return &InviteRepo{pool: pool}
}

func (r *InviteRepo) Create(ctx context.Context, inv *domain.ServerInvite) error {
	query := `
		INSERT INTO server_invites (id, server_id, token, invited_by, max_uses, uses, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		inv.ID, inv.ServerID, inv.Token, inv.InvitedBy, inv.MaxUses, inv.Uses, inv.CreatedAt, inv.ExpiresAt,
	)
	return err
}

func (r *InviteRepo) GetByToken(ctx context.Context, token string) (*domain.ServerInvite, error) {
	query := `
		SELECT si.id, si.server_id, si.token, si.invited_by, si.max_uses, si.uses,
		       si.created_at, si.expires_at, si.revoked_at, s.name
		FROM server_invites si
		JOIN servers s ON s.id = si.server_id
		WHERE si.token = $1`

	var inv domain.ServerInvite
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, token).Scan(
		&inv.ID, &inv.ServerID, &inv.Token, &inv.InvitedBy, &inv.MaxUses, &inv.Uses,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.RevokedAt, &inv.ServerName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &inv, err
}

func (r *InviteRepo) ListByServer(ctx context.Context, serverID uuid.UUID) ([]domain.ServerInvite, error) {
	query := `
		SELECT id, server_id, token, invited_by, max_uses, uses, created_at, expires_at, revoked_at
		FROM server_invites
		WHERE server_id = $1
		  AND revoked_at IS NULL
		  AND expires_at > NOW()
		ORDER BY created_at DESC`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.ServerInvite
	for rows.Next() {
		var inv domain.ServerInvite
		if err := rows.Scan(
			&inv.ID, &inv.ServerID, &inv.Token, &inv.InvitedBy, &inv.MaxUses, &inv.Uses,
			&inv.CreatedAt, &inv.ExpiresAt, &inv.RevokedAt,
		); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *InviteRepo) IncrementUses(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `UPDATE server_invites SET uses = uses + 1 WHERE id = $1`, id)
	return err
}

func (r *InviteRepo) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `UPDATE server_invites SET revoked_at = $1 WHERE id = $2`, at, id)
	return err
}
