package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/keylock"
)

// SettingsStore persists per-chat settings. GetChatSettings returns nil, nil
// for chats without a row.
type SettingsStore interface {
	GetChatSettings(ctx context.Context, chatID int64) (*domain.ChatSettings, error)
	SaveChatSettings(ctx context.Context, cs *domain.ChatSettings) error
}

type SettingsService struct {
	store  SettingsStore
	logger *zap.Logger
	locks  keylock.Map[int64]
}

func NewSettingsService(store SettingsStore, logger *zap.Logger) *SettingsService {
	return &SettingsService{store: store, logger: logger}
}

// Get returns the chat's settings, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, chatID int64) (*domain.ChatSettings, error) {
	cs, err := s.store.GetChatSettings(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat settings %d: %w", chatID, err)
	}
	if cs == nil {
		return domain.DefaultChatSettings(chatID), nil
	}
	if !domain.IsSupportedLanguage(cs.Language) {
		cs.Language = domain.DefaultLanguage
	}
	return cs, nil
}

// Language returns the chat's language, falling back to the default on
// storage errors.
func (s *SettingsService) Language(ctx context.Context, chatID int64) string {
	cs, err := s.Get(ctx, chatID)
	if err != nil {
		s.logger.Warn("load language", zap.Int64("chat_id", chatID), zap.Error(err))
		return domain.DefaultLanguage
	}
	return cs.Language
}

func (s *SettingsService) SetLanguage(ctx context.Context, chatID int64, lang string) error {
	if !domain.IsSupportedLanguage(lang) {
		return fmt.Errorf("language %q: %w", lang, domain.ErrOutOfRange)
	}
	_, err := s.update(ctx, chatID, func(cs *domain.ChatSettings) {
		cs.Language = lang
	})
	return err
}

// ToggleThreshold switches the reminder for days on or off and returns the
// updated settings.
func (s *SettingsService) ToggleThreshold(ctx context.Context, chatID int64, days int) (*domain.ChatSettings, error) {
	if !domain.IsSupportedThreshold(days) {
		return nil, fmt.Errorf("threshold %d: %w", days, domain.ErrOutOfRange)
	}
	return s.update(ctx, chatID, func(cs *domain.ChatSettings) {
		cs.Thresholds = cs.Thresholds.Toggle(days)
	})
}

func (s *SettingsService) update(ctx context.Context, chatID int64, apply func(*domain.ChatSettings)) (*domain.ChatSettings, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	cs, err := s.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}

	apply(cs)
	if err := s.store.SaveChatSettings(ctx, cs); err != nil {
		return nil, fmt.Errorf("save chat settings %d: %w", chatID, err)
	}

	s.logger.Info("chat settings updated",
		zap.Int64("chat_id", chatID),
		zap.String("language", cs.Language),
		zap.String("thresholds", cs.Thresholds.String()),
	)
	return cs, nil
}
