// Package redis stores typing leases in Redis so expiry is enforced by key
// TTL rather than by a table that is never swept.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vedran77/parley/internal/domain"
)

type TypingRepo struct {
	client *goredis.Client
}

// NewTypingRepoFromURL parses a redis:// URL and verifies the server answers.
func NewTypingRepoFromURL(ctx context.Context, redisURL string) (*TypingRepo, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis typing: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis typing: ping failed: %w", err)
	}
	return NewTypingRepo(client), nil
}

func NewTypingRepo(client *goredis.Client) *TypingRepo {
	return &TypingRepo{client: client}
}

func (r *TypingRepo) Close() error {
	return r.client.Close()
}

// typers is the per-conversation index of users that may hold a lease.
func typersKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("typing:%s", conversationID)
}

func leaseKey(conversationID, userID uuid.UUID) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

func (r *TypingRepo) Upsert(ctx context.Context, t *domain.TypingIndicator) error {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, t.ConversationID, t.UserID)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, leaseKey(t.ConversationID, t.UserID), data, ttl)
		pipe.SAdd(ctx, typersKey(t.ConversationID), t.UserID.String())
		// The index lives as long as its longest lease.
		pipe.ExpireNX(ctx, typersKey(t.ConversationID), ttl)
		pipe.ExpireGT(ctx, typersKey(t.ConversationID), ttl)
		return nil
	})
	return err
}

func (r *TypingRepo) Delete(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, leaseKey(conversationID, userID))
		pipe.SRem(ctx, typersKey(conversationID), userID.String())
		return nil
	})
	return err
}

func (r *TypingRepo) ListLive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error) {
	members, err := r.client.SMembers(ctx, typersKey(conversationID)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, typersKey(conversationID)+":"+m)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []domain.TypingIndicator
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var t domain.TypingIndicator
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decoding typing lease: %w", err)
		}
		if t.Live(now) {
			out = append(out, t)
		}
	}

	if len(stale) > 0 {
		// Best effort; a failed cleanup only leaves dangling index entries.
		_ = r.client.SRem(ctx, typersKey(conversationID), stale...).Err()
	}
	return out, nil
}
