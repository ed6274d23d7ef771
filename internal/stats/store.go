package stats

import (
	"context"
	"sync"

	"github.com/MJE43/coindle/internal/calendar"
)

// Store persists accepted scores per day.
type Store interface {
	// Record adds one score to day's multiset.
	Record(ctx context.Context, day calendar.Day, score int) error
	// Distribution returns day's buckets. An unknown day yields no buckets and no error.
	Distribution(ctx context.Context, day calendar.Day) ([]Bucket, error)
	// Prune drops every day strictly before the given day and reports how many scores went.
	Prune(ctx context.Context, before calendar.Day) (int64, error)
}

// MemoryStore keeps distributions in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	days map[calendar.Day]map[int]int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[calendar.Day]map[int]int64)}
}

func (m *MemoryStore) Record(_ context.Context, day calendar.Day, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts, ok := m.days[day]
	if !ok {
		counts = make(map[int]int64)
		m.days[day] = counts
	}
	counts[score]++
	return nil
}

func (m *MemoryStore) Distribution(_ context.Context, day calendar.Day) ([]Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.days[day]
	out := make([]Bucket, 0, len(counts))
	for score, count := range counts {
		out = append(out, Bucket{Score: score, Count: count})
	}
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, before calendar.Day) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for day, counts := range m.days {
		if !day.Before(before) {
			continue
		}
		for _, c := range counts {
			removed += c
		}
		delete(m.days, day)
	}
	return removed, nil
}
