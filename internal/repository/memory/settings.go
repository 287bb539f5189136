package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
)

type SettingsRepo struct {
	store *Store
}

func (r *SettingsRepo) Get(_ context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	var out *domain.UserSettings
	r.store.read(func(st *state) {
		if s, ok := st.settings[userID]; ok {
			out = &s
		}
	})
	return out, nil
}

func (r *SettingsRepo) Upsert(_ context.Context, settings *domain.UserSettings) error {
	return r.store.write(func(st *state) error {
		st.settings[settings.UserID] = *settings
		return nil
	})
}
