// Package reminder tracks which birthday reminders were already delivered.
//
// Every (birthday, days_before) pair is either pending or announced. A scan
// asks DueRecords for pending pairs whose next occurrence is exactly
// days_before away, notifies the owner and then calls MarkAnnounced. A daily
// ResetStaleFlags pass returns announced pairs to pending once the occurrence
// is well behind, so the same reminder fires again next year.
package reminder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/keylock"
)

// ResetWindowDays is how far, on both sides, an occurrence must be from
// today before its announced flags are cleared. It exceeds the largest
// supported lead time.
const ResetWindowDays = 10

// Store is the persistence the engine needs. Returned birthdays carry their
// Announced map. Lookups of unknown ids return nil, nil.
type Store interface {
	BirthdaysOn(ctx context.Context, days []domain.MonthDay) ([]*domain.Birthday, error)
	AnnouncedBirthdays(ctx context.Context) ([]*domain.Birthday, error)
	GetBirthday(ctx context.Context, id int64) (*domain.Birthday, error)
	SetAnnounced(ctx context.Context, id int64, daysBefore int, at time.Time) error
	ClearAnnounced(ctx context.Context, id int64) error
}

type Engine struct {
	store  Store
	clock  domain.Clock
	logger *zap.Logger
	locks  keylock.Map[int64]
}

func NewEngine(store Store, clock domain.Clock, logger *zap.Logger) *Engine {
	return &Engine{store: store, clock: clock, logger: logger}
}

// DueRecords returns birthdays whose next occurrence is exactly threshold
// days after the calendar day of now and whose reminder for threshold is
// still pending. It does not change state: polling again before
// MarkAnnounced returns the same records.
func (e *Engine) DueRecords(ctx context.Context, threshold int, now time.Time) ([]*domain.Birthday, error) {
	if !domain.IsSupportedThreshold(threshold) {
		return nil, fmt.Errorf("threshold %d: %w", threshold, domain.ErrOutOfRange)
	}

	target := domain.Today(now).AddDate(0, 0, threshold)
	keys := []domain.MonthDay{{Month: target.Month(), Day: target.Day()}}
	if target.Month() == time.February && target.Day() == 28 && !domain.IsLeapYear(target.Year()) {
		keys = append(keys, domain.MonthDay{Month: time.February, Day: 29})
	}

	candidates, err := e.store.BirthdaysOn(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load birthdays on %v: %w", keys, err)
	}

	var due []*domain.Birthday
	for _, b := range candidates {
		if b.DaysUntil(now) == threshold && !b.IsAnnounced(threshold) {
			due = append(due, b)
		}
	}
	slices.SortFunc(due, func(a, b *domain.Birthday) int { return cmp.Compare(a.ID, b.ID) })
	return due, nil
}

// MarkAnnounced records that the reminder for threshold was delivered.
// Marking an already announced pair is a no-op.
func (e *Engine) MarkAnnounced(ctx context.Context, id int64, threshold int) error {
	if !domain.IsSupportedThreshold(threshold) {
		return fmt.Errorf("threshold %d: %w", threshold, domain.ErrOutOfRange)
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	b, err := e.store.GetBirthday(ctx, id)
	if err != nil {
		return fmt.Errorf("get birthday %d: %w", id, err)
	}
	if b == nil {
		return fmt.Errorf("birthday %d: %w", id, domain.ErrNotFound)
	}
	if b.IsAnnounced(threshold) {
		return nil
	}

	if err := e.store.SetAnnounced(ctx, id, threshold, e.clock.Now()); err != nil {
		return fmt.Errorf("set announced %d/%d: %w", id, threshold, err)
	}
	return nil
}

// ResetStaleFlags clears every announced flag of birthdays whose occurrence
// is more than ResetWindowDays away in both directions. It returns the
// number of birthdays reset.
func (e *Engine) ResetStaleFlags(ctx context.Context, now time.Time) (int, error) {
	announced, err := e.store.AnnouncedBirthdays(ctx)
	if err != nil {
		return 0, fmt.Errorf("load announced birthdays: %w", err)
	}

	reset := 0
	for _, b := range announced {
		if !IsStale(b.Date, now) {
			continue
		}
		if err := e.clear(ctx, b.ID); err != nil {
			return reset, err
		}
		reset++
	}

	if reset > 0 {
		e.logger.Info("reminder flags reset", zap.Int("birthdays", reset))
	}
	return reset, nil
}

func (e *Engine) clear(ctx context.Context, id int64) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	if err := e.store.ClearAnnounced(ctx, id); err != nil {
		return fmt.Errorf("clear announced %d: %w", id, err)
	}
	return nil
}

// IsStale reports whether the occurrence of date is far enough from now, on
// both sides, for its reminder flags to be cleared.
func IsStale(date, now time.Time) bool {
	return domain.DaysUntil(date, now) > ResetWindowDays && domain.DaysSince(date, now) > ResetWindowDays
}
