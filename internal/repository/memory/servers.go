package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

type ServerRepo struct {
	store *Store
}

func (r *ServerRepo) Create(_ context.Context, s *domain.Server) error {
	return r.store.write(func(st *state) error {
		for _, existing := range st.servers {
			if existing.ID == s.ID || existing.Slug == s.Slug {
				return ErrDuplicate
			}
		}
		st.servers[s.ID] = *s
		return nil
	})
}

func (r *ServerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Server, error) {
	var out *domain.Server
	r.store.read(func(st *state) {
		if s, ok := st.servers[id]; ok {
			out = &s
		}
	})
	return out, nil
}

func (r *ServerRepo) GetBySlug(_ context.Context, slug string) (*domain.Server, error) {
	var out *domain.Server
	r.store.read(func(st *state) {
		for _, s := range st.servers {
			if s.Slug == slug {
				out = &s
				return
			}
		}
	})
	return out, nil
}

func (r *ServerRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Server, error) {
	var out []domain.Server
	r.store.read(func(st *state) {
		for key, m := range st.serverMembers {
			if key.userID == userID && !m.IsBanned {
				if s, ok := st.servers[key.serverID]; ok {
					out = append(out, s)
				}
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.Server) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *ServerRepo) Update(_ context.Context, s *domain.Server) error {
	return r.store.write(func(st *state) error {
		if _, ok := st.servers[s.ID]; ok {
			st.servers[s.ID] = *s
		}
		return nil
	})
}

// Delete cascades to memberships and invites.
func (r *ServerRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.store.write(func(st *state) error {
		delete(st.servers, id)
		for key := range st.serverMembers {
			if key.serverID == id {
				delete(st.serverMembers, key)
			}
		}
		for invID, inv := range st.invites {
			if inv.ServerID == id {
				delete(st.invites, invID)
			}
		}
		return nil
	})
}

func (r *ServerRepo) AddMember(_ context.Context, m *domain.ServerMember) error {
	return r.store.write(func(st *state) error {
		key := serverMemberKey{m.ServerID, m.UserID}
		if _, ok := st.serverMembers[key]; ok {
			return ErrDuplicate
		}
		st.serverMembers[key] = *m
		return nil
	})
}

func (r *ServerRepo) RemoveMember(_ context.Context, serverID, userID uuid.UUID) error {
	return r.store.write(func(st *state) error {
		delete(st.serverMembers, serverMemberKey{serverID, userID})
		return nil
	})
}

func (r *ServerRepo) SetBanned(_ context.Context, serverID, userID uuid.UUID, banned bool) error {
	return r.store.write(func(st *state) error {
		key := serverMemberKey{serverID, userID}
		if m, ok := st.serverMembers[key]; ok {
			m.IsBanned = banned
			st.serverMembers[key] = m
		}
		return nil
	})
}

func (r *ServerRepo) GetMember(_ context.Context, serverID, userID uuid.UUID) (*domain.ServerMember, error) {
	var out *domain.ServerMember
	r.store.read(func(st *state) {
		if m, ok := st.serverMembers[serverMemberKey{serverID, userID}]; ok {
			out = &m
		}
	})
	return out, nil
}

func (r *ServerRepo) ListMembers(_ context.Context, serverID uuid.UUID) ([]domain.ServerMember, error) {
	var out []domain.ServerMember
	r.store.read(func(st *state) {
		for key, m := range st.serverMembers {
			if key.serverID != serverID {
				continue
			}
			u, ok := st.users[key.userID]
			if !ok {
				continue
			}
			m.Username, m.DisplayName = u.Username, u.DisplayName
			out = append(out, m)
		}
	})
	slices.SortFunc(out, func(a, b domain.ServerMember) int { return a.JoinedAt.Compare(b.JoinedAt) })
	return out, nil
}

func (r *ServerRepo) ShareServer(_ context.Context, a, b uuid.UUID) (bool, error) {
	shared := false
	r.store.read(func(st *state) {
		for key, m := range st.serverMembers {
			if key.userID != a || m.IsBanned {
				continue
			}
			other, ok := st.serverMembers[serverMemberKey{key.serverID, b}]
			if ok && !other.IsBanned {
				shared = true
				return
			}
		}
	})
	return shared, nil
}

type InviteRepo struct {
	store *Store
}

func (r *InviteRepo) Create(_ context.Context, inv *domain.ServerInvite) error {
	return r.store.write(func(st *state) error {
		for _, existing := range st.invites {
			if existing.ID == inv.ID || existing.Token == inv.Token {
				return ErrDuplicate
			}
		}
		st.invites[inv.ID] = *inv
		return nil
	})
}

func (r *InviteRepo) GetByToken(_ context.Context, token string) (*domain.ServerInvite, error) {
	var out *domain.ServerInvite
	r.store.read(func(st *state) {
		for _, inv := range st.invites {
			if inv.Token != token {
				continue
			}
			s, ok := st.servers[inv.ServerID]
			if !ok {
				return
			}
			inv.ServerName = s.Name
			out = &inv
			return
		}
	})
	return out, nil
}

func (r *InviteRepo) ListByServer(_ context.Context, serverID uuid.UUID) ([]domain.ServerInvite, error) {
	now := time.Now()
	var out []domain.ServerInvite
	r.store.read(func(st *state) {
		for _, inv := range st.invites {
			if inv.ServerID == serverID && inv.RevokedAt == nil && inv.ExpiresAt.After(now) {
				out = append(out, inv)
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.ServerInvite) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *InviteRepo) IncrementUses(_ context.Context, id uuid.UUID) error {
	return r.store.write(func(st *state) error {
		if inv, ok := st.invites[id]; ok {
			inv.Uses++
			st.invites[id] = inv
		}
		return nil
	})
}

func (r *InviteRepo) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.store.write(func(st *state) error {
		if inv, ok := st.invites[id]; ok {
			inv.RevokedAt = &at
			st.invites[id] = inv
		}
		return nil
	})
}
