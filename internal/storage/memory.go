package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

// MemoryStore хранилище в памяти
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	signals map[int64]models.PersistedSignal
	now     func() time.Time
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[int64]models.PersistedSignal), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, s *models.PersistedSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	m.signals[s.ID] = *s
	return nil
}

func (m *MemoryStore) SetSignalTime(_ context.Context, id int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	if !s.SignalTime.IsZero() {
		return ErrSignalTimeSet
	}
	s.SignalTime = t.UTC()
	m.signals[id] = s
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(s.Status, status); err != nil {
		return err
	}
	s.Status = status
	m.signals[id] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (models.PersistedSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signals[id]
	if !ok {
		return models.PersistedSignal{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Query(_ context.Context, q SignalQuery) ([]models.PersistedSignal, error) {
	out := m.filter(q.Matches)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Pending(_ context.Context, from, to time.Time) ([]models.PersistedSignal, error) {
	out := m.filter(func(s models.PersistedSignal) bool { return isPending(s, from, to) })
	// проверка идет от старых к новым
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{ByType: map[models.SignalType]int{}, ByStatus: map[models.Status]int{}}
	for _, s := range m.signals {
		st.Total++
		if s.SentToTelegram {
			st.Sent++
		}
		st.ByType[s.Type]++
		st.ByStatus[s.Status]++
	}
	return st, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// filter возвращает подходящие сигналы от новых к старым
func (m *MemoryStore) filter(match func(models.PersistedSignal) bool) []models.PersistedSignal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PersistedSignal
	for _, s := range m.signals {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
