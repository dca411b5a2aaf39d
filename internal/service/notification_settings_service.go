package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
)

const notificationSettingsCacheKey = "notifications:settings"

type notificationSettingsStore interface {
	LoadSettings(ctx context.Context) (*models.NotificationSettings, error)
}

// NotificationSettingsService reads notification settings through the cache.
type NotificationSettingsService struct {
	store  notificationSettingsStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewNotificationSettingsService constructs the service. cache may be nil.
func NewNotificationSettingsService(store notificationSettingsStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *NotificationSettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationSettingsService{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Load returns a snapshot of the global switch and templates.
func (s *NotificationSettingsService) Load(ctx context.Context) (models.NotificationSettings, error) {
	var settings models.NotificationSettings
	if s.cache.Get(ctx, notificationSettingsCacheKey, &settings) {
		return settings, nil
	}
	loaded, err := s.store.LoadSettings(ctx)
	if err != nil {
		return models.NotificationSettings{}, err
	}
	s.cache.Set(ctx, notificationSettingsCacheKey, loaded, s.ttl)
	return *loaded, nil
}

// LoadFresh reads the settings from the store and replaces the cached snapshot.
// Result dispatch uses it so a switch turned off takes effect on the next send.
func (s *NotificationSettingsService) LoadFresh(ctx context.Context) (models.NotificationSettings, error) {
	loaded, err := s.store.LoadSettings(ctx)
	if err != nil {
		return models.NotificationSettings{}, err
	}
	s.cache.Set(ctx, notificationSettingsCacheKey, loaded, s.ttl)
	return *loaded, nil
}

// Invalidate drops the cached snapshot.
func (s *NotificationSettingsService) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, notificationSettingsCacheKey)
}
