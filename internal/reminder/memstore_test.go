package reminder

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"
)

// memStore is an in-memory Store used by the engine tests.
type memStore struct {
	mu        sync.Mutex
	birthdays map[int64]*domain.Birthday
	nextID    int64
	failLoad  bool
	setCalls  int
}

func newMemStore() *memStore {
	return &memStore{birthdays: make(map[int64]*domain.Birthday)}
}

func (m *memStore) add(name string, date time.Time, hasYear bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.birthdays[m.nextID] = &domain.Birthday{
		ID:        m.nextID,
		ChatID:    100,
		Name:      name,
		Date:      date,
		HasYear:   hasYear,
		Announced: map[int]bool{},
	}
	return m.nextID
}

func (m *memStore) snapshot(b *domain.Birthday) *domain.Birthday {
	cp := *b
	cp.Announced = maps.Clone(b.Announced)
	return &cp
}

func (m *memStore) BirthdaysOn(_ context.Context, days []domain.MonthDay) ([]*domain.Birthday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return nil, errors.New("store unavailable")
	}
	var out []*domain.Birthday
	for _, b := range m.birthdays {
		if slices.Contains(days, b.MonthDay()) {
			out = append(out, m.snapshot(b))
		}
	}
	return out, nil
}

func (m *memStore) AnnouncedBirthdays(_ context.Context) ([]*domain.Birthday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Birthday
	for _, b := range m.birthdays {
		if len(b.Announced) > 0 {
			out = append(out, m.snapshot(b))
		}
	}
	return out, nil
}

func (m *memStore) GetBirthday(_ context.Context, id int64) (*domain.Birthday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.birthdays[id]
	if !ok {
		return nil, nil
	}
	return m.snapshot(b), nil
}

func (m *memStore) SetAnnounced(_ context.Context, id int64, daysBefore int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if b, ok := m.birthdays[id]; ok {
		b.Announced[daysBefore] = true
	}
	return nil
}

func (m *memStore) ClearAnnounced(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.birthdays[id]; ok {
		b.Announced = map[int]bool{}
	}
	return nil
}
