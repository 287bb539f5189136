package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
)

var ErrInvalidDMPermission = apperr.InvalidArgument("dm_permission must be one of everyone, friends, server_members, none")

type SettingsService struct {
	settingsRepo repository.SettingsRepository
	now          func() time.Time
}

func NewSettingsService(settingsRepo repository.SettingsRepository) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo, now: time.Now}
}

type UpdateSettingsInput struct {
	DMPermission         *domain.DMPermission `json:"dm_permission"`
	NotifyDirectMessages *bool                `json:"notify_direct_messages"`
	NotifyFriendRequests *bool                `json:"notify_friend_requests"`
	Theme                *string              `json:"theme" validate:"omitempty,oneof=system light dark"`
	Locale               *string              `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return domain.DefaultSettings(userID), nil
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, userID uuid.UUID, input UpdateSettingsInput) (*domain.UserSettings, error) {
	if input.DMPermission != nil && !input.DMPermission.Valid() {
		return nil, ErrInvalidDMPermission
	}

	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.DMPermission != nil {
		settings.DMPermission = *input.DMPermission
	}
	if input.NotifyDirectMessages != nil {
		settings.NotifyDirectMessages = *input.NotifyDirectMessages
	}
	if input.NotifyFriendRequests != nil {
		settings.NotifyFriendRequests = *input.NotifyFriendRequests
	}
	if input.Theme != nil {
		settings.Theme = *input.Theme
	}
	if input.Locale != nil {
		settings.Locale = *input.Locale
	}
	settings.UpdatedAt = s.now()

	if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
