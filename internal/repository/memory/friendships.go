package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

type FriendshipRepo struct {
	store *Store
}

func (r *FriendshipRepo) Create(_ context.Context, f *domain.Friendship) error {
	return r.store.write(func(st *state) error {
		for _, existing := range st.friendships {
			if existing.ID == f.ID || (existing.UserID1 == f.UserID1 && existing.UserID2 == f.UserID2) {
				return ErrDuplicate
			}
		}
		st.friendships[f.ID] = *f
		return nil
	})
}

func (r *FriendshipRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Friendship, error) {
	var out *domain.Friendship
	r.store.read(func(st *state) {
		if f, ok := st.friendships[id]; ok {
			out = &f
		}
	})
	return out, nil
}

func (r *FriendshipRepo) GetBetween(_ context.Context, a, b uuid.UUID) (domain.Relation, error) {
	var rel domain.Relation
	r.store.read(func(st *state) {
		for _, f := range st.friendships {
			switch {
			case f.UserID1 == a && f.UserID2 == b:
				rel.Forward = &f
			case f.UserID1 == b && f.UserID2 == a:
				rel.Reverse = &f
			}
		}
	})
	return rel, nil
}

func (r *FriendshipRepo) Accept(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.store.write(func(st *state) error {
		if f, ok := st.friendships[id]; ok {
			f.Status = domain.FriendshipAccepted
			f.AcceptedAt = &at
			st.friendships[id] = f
		}
		return nil
	})
}

func (r *FriendshipRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.store.write(func(st *state) error {
		delete(st.friendships, id)
		return nil
	})
}

func (r *FriendshipRepo) ListFriends(_ context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	out := r.list(userID, func(f domain.Friendship) bool {
		return f.Status == domain.FriendshipAccepted && (f.UserID1 == userID || f.UserID2 == userID)
	})
	slices.SortFunc(out, func(a, b domain.Friendship) int {
		return cmp.Compare(a.Other.DisplayName, b.Other.DisplayName)
	})
	return out, nil
}

func (r *FriendshipRepo) ListIncoming(_ context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return newestFirst(r.list(userID, func(f domain.Friendship) bool {
		return f.Status == domain.FriendshipPending && f.UserID2 == userID
	})), nil
}

func (r *FriendshipRepo) ListOutgoing(_ context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return newestFirst(r.list(userID, func(f domain.Friendship) bool {
		return f.Status == domain.FriendshipPending && f.UserID1 == userID
	})), nil
}

func (r *FriendshipRepo) ListBlocked(_ context.Context, userID uuid.UUID) ([]domain.Friendship, error) {
	return newestFirst(r.list(userID, func(f domain.Friendship) bool {
		return f.Status == domain.FriendshipBlocked && f.UserID1 == userID
	})), nil
}

// list joins the other party's summary and drops rows whose user is gone.
func (r *FriendshipRepo) list(userID uuid.UUID, match func(domain.Friendship) bool) []domain.Friendship {
	var out []domain.Friendship
	r.store.read(func(st *state) {
		for _, f := range st.friendships {
			if !match(f) {
				continue
			}
			other, ok := st.users[f.OtherUser(userID)]
			if !ok {
				continue
			}
			summary := other.Summary()
			f.Other = &summary
			out = append(out, f)
		}
	})
	return out
}

func newestFirst(items []domain.Friendship) []domain.Friendship {
	slices.SortFunc(items, func(a, b domain.Friendship) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return items
}
