package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/parser"
	"github.com/tazhate/birthdaybot/internal/stats"
)

// BirthdayStore is the persistence BirthdayService needs.
type BirthdayStore interface {
	CreateBirthdays(ctx context.Context, birthdays []*domain.Birthday) error
	ListBirthdaysByChat(ctx context.Context, chatID int64) ([]*domain.Birthday, error)
	ListAllBirthdays(ctx context.Context) ([]*domain.Birthday, error)
	DeleteBirthdays(ctx context.Context, chatID int64, ids []int64) (deleted, notFound []int64, err error)
}

// Mirror keeps an external copy of birthdays, e.g. a CalDAV calendar.
type Mirror interface {
	PutBirthday(ctx context.Context, b *domain.Birthday, now time.Time) error
	DeleteBirthday(ctx context.Context, id int64) error
}

type BirthdayService struct {
	store  BirthdayStore
	clock  domain.Clock
	mirror Mirror
	logger *zap.Logger
}

func NewBirthdayService(store BirthdayStore, clock domain.Clock, logger *zap.Logger) *BirthdayService {
	return &BirthdayService{store: store, clock: clock, logger: logger}
}

// WithMirror propagates adds and deletes to m. Mirror failures are logged
// and never fail the operation.
func (s *BirthdayService) WithMirror(m Mirror) *BirthdayService {
	s.mirror = m
	return s
}

// Add parses alternating name/date lines and stores every record, or none
// when any line is rejected. A rejection is returned as *parser.BatchError.
func (s *BirthdayService) Add(ctx context.Context, chatID int64, text string) ([]*domain.Birthday, error) {
	entries, err := parser.ParseBatch(text, s.clock.Now())
	if err != nil {
		return nil, err
	}

	birthdays := make([]*domain.Birthday, len(entries))
	for i, e := range entries {
		birthdays[i] = &domain.Birthday{
			ChatID:  chatID,
			Name:    e.Name,
			Date:    e.Date.Date,
			HasYear: e.Date.HasYear,
		}
	}

	if err := s.store.CreateBirthdays(ctx, birthdays); err != nil {
		return nil, fmt.Errorf("create birthdays: %w", err)
	}

	s.logger.Info("birthdays added", zap.Int64("chat_id", chatID), zap.Int("count", len(birthdays)))

	if s.mirror != nil {
		now := s.clock.Now()
		for _, b := range birthdays {
			if err := s.mirror.PutBirthday(ctx, b, now); err != nil {
				s.logger.Warn("mirror birthday", zap.Int64("birthday_id", b.ID), zap.Error(err))
			}
		}
	}
	return birthdays, nil
}

// List returns the chat's birthdays, soonest first.
func (s *BirthdayService) List(ctx context.Context, chatID int64) ([]*domain.Birthday, error) {
	birthdays, err := s.store.ListBirthdaysByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	SortByNextOccurrence(birthdays, s.clock.Now())
	return birthdays, nil
}

// ChatBirthdays groups one chat's birthdays.
type ChatBirthdays struct {
	ChatID    int64
	Birthdays []*domain.Birthday
}

// ListAll returns every chat's birthdays, chats ordered by id and
// birthdays soonest first.
func (s *BirthdayService) ListAll(ctx context.Context) ([]ChatBirthdays, error) {
	all, err := s.store.ListAllBirthdays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all birthdays: %w", err)
	}

	var groups []ChatBirthdays
	for _, b := range all {
		if n := len(groups); n == 0 || groups[n-1].ChatID != b.ChatID {
			groups = append(groups, ChatBirthdays{ChatID: b.ChatID})
		}
		g := &groups[len(groups)-1]
		g.Birthdays = append(g.Birthdays, b)
	}

	now := s.clock.Now()
	for _, g := range groups {
		SortByNextOccurrence(g.Birthdays, now)
	}
	return groups, nil
}

// Delete removes the ids listed in text ("3, 5" or "3 5") from the chat.
func (s *BirthdayService) Delete(ctx context.Context, chatID int64, text string) (deleted, notFound []int64, err error) {
	ids, err := ParseIDs(text)
	if err != nil {
		return nil, nil, err
	}

	deleted, notFound, err = s.store.DeleteBirthdays(ctx, chatID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("delete birthdays: %w", err)
	}

	s.logger.Info("birthdays deleted",
		zap.Int64("chat_id", chatID),
		zap.Int64s("deleted", deleted),
		zap.Int64s("not_found", notFound),
	)

	if s.mirror != nil {
		for _, id := range deleted {
			if err := s.mirror.DeleteBirthday(ctx, id); err != nil {
				s.logger.Warn("unmirror birthday", zap.Int64("birthday_id", id), zap.Error(err))
			}
		}
	}
	return deleted, notFound, nil
}

// Stats summarizes a chat's birthdays.
type Stats struct {
	Total    int
	WithYear int

	Ages    stats.AgeSummary
	HasAges bool

	CommonDate      domain.MonthDay
	CommonDateCount int

	CommonMonth      time.Month
	CommonMonthCount int
}

func (s *BirthdayService) Stats(ctx context.Context, chatID int64) (*Stats, error) {
	birthdays, err := s.store.ListBirthdaysByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	return Summarize(birthdays, s.clock.Now()), nil
}

// Summarize computes Stats over birthdays.
func Summarize(birthdays []*domain.Birthday, now time.Time) *Stats {
	st := &Stats{Total: len(birthdays)}
	for _, b := range birthdays {
		if b.HasYear {
			st.WithYear++
		}
	}
	st.Ages, st.HasAges = stats.AgeStatistics(birthdays, now)
	st.CommonDate, st.CommonDateCount = stats.MostCommonOccurrence(birthdays)
	st.CommonMonth, st.CommonMonthCount = stats.MostCommonMonth(birthdays)
	return st
}

// SortByNextOccurrence orders birthdays by days until their next occurrence,
// then by name and id.
func SortByNextOccurrence(birthdays []*domain.Birthday, now time.Time) {
	slices.SortStableFunc(birthdays, func(a, b *domain.Birthday) int {
		if c := cmp.Compare(a.DaysUntil(now), b.DaysUntil(now)); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ParseIDs reads positive ids separated by commas and/or whitespace.
// Duplicates are dropped; order is kept.
func ParseIDs(text string) ([]int64, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, domain.NewParseError(domain.ReasonMalformed, text)
	}

	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(strings.TrimPrefix(f, "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.NewParseError(domain.ReasonMalformed, f)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
