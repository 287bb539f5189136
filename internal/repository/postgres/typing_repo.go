package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/domain"
)

// TypingRepo keeps typing leases in a table. Expired rows are not swept;
// they are filtered on read and overwritten by the next upsert.
type TypingRepo struct {
	pool *pgxpool.Pool
}

func NewTypingRepo(pool *pgxpool.Pool) *TypingRepo {
	return &TypingRepo{pool: pool}
}

func (r *TypingRepo) Upsert(ctx context.Context, t *domain.TypingIndicator) error {
	query := `
		INSERT INTO typing_indicators (conversation_id, user_id, started_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at`
	_, err := database.Conn(ctx, r.pool).Exec(ctx, query, t.ConversationID, t.UserID, t.StartedAt, t.ExpiresAt)
	return err
}

func (r *TypingRepo) Delete(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM typing_indicators WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID)
	return err
}

func (r *TypingRepo) ListLive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error) {
	query := `
		SELECT conversation_id, user_id, started_at, expires_at
		FROM typing_indicators
		WHERE conversation_id = $1 AND expires_at > $2
		ORDER BY started_at`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, conversationID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TypingIndicator
	for rows.Next() {
		var t domain.TypingIndicator
		if err := rows.Scan(&t.ConversationID, &t.UserID, &t.StartedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
