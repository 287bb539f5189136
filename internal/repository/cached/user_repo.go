// Package cached wraps repositories with an in-process ristretto cache.
package cached

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/metrics"
	"github.com/vedran77/parley/internal/repository"
)

// UserRepo caches user lookups by id. Users are immutable from this
// service's point of view apart from creation, so entries only expire.
type UserRepo struct {
	repository.UserRepository
	cache *ristretto.Cache[string, *domain.User]
	ttl   time.Duration
}

func NewUserRepo(inner repository.UserRepository, maxEntries int64, ttl time.Duration) (*UserRepo, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *domain.User]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &UserRepo{UserRepository: inner, cache: cache, ttl: ttl}, nil
}

func (r *UserRepo) Close() {
	r.cache.Close()
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	key := id.String()
	if u, ok := r.cache.Get(key); ok {
		metrics.CacheHit("user")
		return u, nil
	}
	metrics.CacheMiss("user")

	u, err := r.UserRepository.GetByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	r.cache.SetWithTTL(key, u, 1, r.ttl)
	return u, nil
}

func (r *UserRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if u, ok := r.cache.Get(id.String()); ok {
			metrics.CacheHit("user")
			users = append(users, *u)
			continue
		}
		metrics.CacheMiss("user")
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return users, nil
	}

	loaded, err := r.UserRepository.ListByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		u := loaded[i]
		r.cache.SetWithTTL(u.ID.String(), &u, 1, r.ttl)
		users = append(users, u)
	}
	return users, nil
}

var _ repository.UserRepository = (*UserRepo)(nil)
