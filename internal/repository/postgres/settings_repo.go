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

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	query := `
		SELECT user_id, dm_permission, notify_direct_messages, notify_friend_requests, theme, locale, updated_at
		FROM user_settings
		WHERE user_id = $1`
	var s domain.UserSettings
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.DMPermission, &s.NotifyDirectMessages, &s.NotifyFriendRequests,
		&s.Theme, &s.Locale, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &s, err
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *domain.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, dm_permission, notify_direct_messages, notify_friend_requests, theme, locale, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			dm_permission = EXCLUDED.dm_permission,
			notify_direct_messages = EXCLUDED.notify_direct_messages,
			notify_friend_requests = EXCLUDED.notify_friend_requests,
			theme = EXCLUDED.theme,
			locale = EXCLUDED.locale,
			updated_at = EXCLUDED.updated_at`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		s.UserID, s.DMPermission, s.NotifyDirectMessages, s.NotifyFriendRequests,
		s.Theme, s.Locale, s.UpdatedAt,
	)
	return err
}
