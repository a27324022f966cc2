// Package backup decides when a chat is due for its periodic backup and
// builds the files that are sent.
package backup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/keylock"
)

// Store persists backup cadences. GetBackupPing returns nil, nil for chats
// that never registered.
type Store interface {
	GetBackupPing(ctx context.Context, chatID int64) (*domain.BackupPing, error)
	SaveBackupPing(ctx context.Context, p *domain.BackupPing) error
	ListActiveBackupPings(ctx context.Context) ([]*domain.BackupPing, error)
}

type Tracker struct {
	store  Store
	clock  domain.Clock
	logger *zap.Logger
	locks  keylock.Map[int64]
}

func NewTracker(store Store, clock domain.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, clock: clock, logger: logger}
}

// Register activates periodic backups for chatID every minutes minutes,
// starting the interval now.
func (t *Tracker) Register(ctx context.Context, chatID int64, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("interval %d minutes: %w", minutes, domain.ErrOutOfRange)
	}

	unlock := t.locks.Lock(chatID)
	defer unlock()

	p := &domain.BackupPing{
		ChatID:          chatID,
		LastFiredAt:     t.clock.Now(),
		IntervalMinutes: minutes,
		IsActive:        true,
	}
	if err := t.store.SaveBackupPing(ctx, p); err != nil {
		return fmt.Errorf("save backup ping %d: %w", chatID, err)
	}

	t.logger.Info("backup registered", zap.Int64("chat_id", chatID), zap.Int("interval_minutes", minutes))
	return nil
}

// IsDue reports whether chatID is active and a full interval has elapsed
// since its last backup.
func (t *Tracker) IsDue(ctx context.Context, chatID int64, now time.Time) (bool, error) {
	p, err := t.store.GetBackupPing(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("get backup ping %d: %w", chatID, err)
	}
	if p == nil {
		return false, nil
	}
	return p.IsDue(now), nil
}

// MarkFired moves the last backup time to now without touching the active
// flag.
func (t *Tracker) MarkFired(ctx context.Context, chatID int64, now time.Time) error {
	return t.update(ctx, chatID, func(p *domain.BackupPing) {
		p.LastFiredAt = now
	})
}

// Unregister stops backups for chatID but keeps the interval and the last
// backup time.
func (t *Tracker) Unregister(ctx context.Context, chatID int64) error {
	return t.update(ctx, chatID, func(p *domain.BackupPing) {
		p.IsActive = false
	})
}

// Get returns the cadence of chatID, or nil when none was registered.
func (t *Tracker) Get(ctx context.Context, chatID int64) (*domain.BackupPing, error) {
	return t.store.GetBackupPing(ctx, chatID)
}

// DueChats lists the chats whose backup is due at now.
func (t *Tracker) DueChats(ctx context.Context, now time.Time) ([]int64, error) {
	pings, err := t.store.ListActiveBackupPings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backup pings: %w", err)
	}

	var due []int64
	for _, p := range pings {
		if p.IsDue(now) {
			due = append(due, p.ChatID)
		}
	}
	return due, nil
}

func (t *Tracker) update(ctx context.Context, chatID int64, apply func(*domain.BackupPing)) error {
	unlock := t.locks.Lock(chatID)
	defer unlock()

	p, err := t.store.GetBackupPing(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get backup ping %d: %w", chatID, err)
	}
	if p == nil {
		return fmt.Errorf("backup ping %d: %w", chatID, domain.ErrNotFound)
	}

	apply(p)
	if err := t.store.SaveBackupPing(ctx, p); err != nil {
		return fmt.Errorf("save backup ping %d: %w", chatID, err)
	}
	return nil
}
