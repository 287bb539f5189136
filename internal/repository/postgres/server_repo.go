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

type ServerRepo struct {
	pool *pgxpool.Pool
}

func NewServerRepo(pool *pgxpool.Pool) *ServerRepo {
	return &ServerRepo{pool: pool}
}

func (r *ServerRepo) Create(ctx context.Context, s *domain.Server) error {
	query := `
		INSERT INTO servers (id, name, slug, description, icon_url, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		s.ID, s.Name, s.Slug, s.Description, s.IconURL, s.OwnerID, s.CreatedAt,
	)
	return err
}

func (r *ServerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Server, error) {
	query := `SELECT id, name, slug, description, icon_url, owner_id, created_at FROM servers WHERE id = $1`
	return r.scanServer(ctx, query, id)
}

func (r *ServerRepo) GetBySlug(ctx context.Context, slug string) (*domain.Server, error) {
	query := `SELECT id, name, slug, description, icon_url, owner_id, created_at FROM servers WHERE slug = $1`
	return r.scanServer(ctx, query, slug)
}

func (r *ServerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Server, error) {
	query := `
		SELECT s.id, s.name, s.slug, s.description, s.icon_url, s.owner_id, s.created_at
		FROM servers s
		INNER JOIN server_members sm ON s.id = sm.server_id
		WHERE sm.user_id = $1 AND NOT sm.is_banned
		ORDER BY s.created_at DESC`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []domain.Server
	for rows.Next() {
		var s domain.Server
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.Description, &s.IconURL, &s.OwnerID, &s.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (r *ServerRepo) Update(ctx context.Context, s *domain.Server) error {
	query := `UPDATE servers SET name = $1, slug = $2, description = $3, icon_url = $4 WHERE id = $5`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, s.Name, s.Slug, s.Description, s.IconURL, s.ID)
	return err
}

func (r *ServerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	return err
}

func (r *ServerRepo) AddMember(ctx context.Context, m *domain.ServerMember) error {
	query := `
		INSERT INTO server_members (server_id, user_id, role, is_banned, joined_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, m.ServerID, m.UserID, m.Role, m.IsBanned, m.JoinedAt)
	return err
}

func (r *ServerRepo) RemoveMember(ctx context.Context, serverID, userID uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`, serverID, userID)
	return err
}

func (r *ServerRepo) SetBanned(ctx context.Context, serverID, userID uuid.UUID, banned bool) error {
	query := `UPDATE server_members SET is_banned = $1 WHERE server_id = $2 AND user_id = $3`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, banned, serverID, userID)
	return err
}

func (r *ServerRepo) GetMember(ctx context.Context, serverID, userID uuid.UUID) (*domain.ServerMember, error) {
	query := `SELECT server_id, user_id, role, is_banned, joined_at FROM server_members WHERE server_id = $1 AND user_id = $2`
	var m domain.ServerMember
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, serverID, userID).Scan(&m.ServerID, &m.UserID, &m.Role, &m.IsBanned, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &m, err
}

func (r *ServerRepo) ListMembers(ctx context.Context, serverID uuid.UUID) ([]domain.ServerMember, error) {
	query := `
		SELECT sm.server_id, sm.user_id, sm.role, sm.is_banned, sm.joined_at, u.username, u.display_name
		FROM server_members sm
		JOIN users u ON sm.user_id = u.id
		WHERE sm.server_id = $1
		ORDER BY sm.joined_at`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ServerMember
	for rows.Next() {
		var m domain.ServerMember
		if err := rows.Scan(&m.ServerID, &m.UserID, &m.Role, &m.IsBanned, &m.JoinedAt, &m.Username, &m.DisplayName); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ServerRepo) ShareServer(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM server_members ma
			JOIN server_members mb ON mb.server_id = ma.server_id
			WHERE ma.user_id = $1 AND mb.user_id = $2
			  AND NOT ma.is_banned AND NOT mb.is_banned
		)`
	var shared bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, a, b).Scan(&shared)
	return shared, err
}

func (r *ServerRepo) scanServer(ctx context.Context, query string, arg any) (*domain.Server, error) {
	var s domain.Server
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.Name, &s.Slug, &s.Description, &s.IconURL, &s.OwnerID, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &s, err
}
