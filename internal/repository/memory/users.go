package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

type UserRepo struct {
	store *Store
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	return r.store.write(func(st *state) error {
		for _, u := range st.users {
			if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) ||
				(u.Username == user.Username && u.Discriminator == user.Discriminator) {
				return ErrDuplicate
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	var out *domain.User
	r.store.read(func(st *state) {
		if u, ok := st.users[id]; ok {
			out = &u
		}
	})
	return out, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (r *UserRepo) GetByTag(_ context.Context, username, discriminator string) (*domain.User, error) {
	return r.find(func(u domain.User) bool {
		return u.Username == username && u.Discriminator == discriminator
	}), nil
}

func (r *UserRepo) find(match func(domain.User) bool) *domain.User {
	var out *domain.User
	r.store.read(func(st *state) {
		for _, u := range st.users {
			if match(u) {
				out = &u
				return
			}
		}
	})
	return out
}

// ListByIDs skips ids that do not resolve, like the SQL ANY() lookup.
func (r *UserRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]domain.User, error) {
	var out []domain.User
	r.store.read(func(st *state) {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				out = append(out, u)
			}
		}
	})
	return out, nil
}

// Delete removes a user outright. Only tests use it, to model accounts that
// vanished while their messages remain.
func (r *UserRepo) Delete(id uuid.UUID) {
	r.store.write(func(st *state) error {
		delete(st.users, id)
		return nil
	})
}
