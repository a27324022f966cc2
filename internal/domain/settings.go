package domain

import (
	"slices"
	"time"
)

const DefaultLanguage = "en"

var SupportedLanguages = []string{"en", "ru"}

func IsSupportedLanguage(lang string) bool {
	return slices.Contains(SupportedLanguages, lang)
}

// ChatSettings holds per-chat preferences.
type ChatSettings struct {
	ChatID     int64
	Language   string
	Thresholds Thresholds
}

// DefaultChatSettings applies to chats without a stored settings row.
func DefaultChatSettings(chatID int64) *ChatSettings {
	return &ChatSettings{
		ChatID:     chatID,
		Language:   DefaultLanguage,
		Thresholds: DefaultThresholds(),
	}
}

// BackupPing is the periodic backup cadence of one chat.
type BackupPing struct {
	ChatID          int64
	LastFiredAt     time.Time
	IntervalMinutes int
	IsActive        bool
}

func (p *BackupPing) Interval() time.Duration {
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// IsDue reports whether a full interval elapsed since the last backup.
func (p *BackupPing) IsDue(now time.Time) bool {
	return p.IsActive && now.Sub(p.LastFiredAt) >= p.Interval()
}
