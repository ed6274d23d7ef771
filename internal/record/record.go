// Package record persists the player's DailyPlayRecord under a single key.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MJE43/coindle/internal/calendar"
)

// Key is the single key the record lives under.
const Key = "coindleLastPlay"

// ErrCorruptRecord means a value exists under Key but cannot be decoded.
var ErrCorruptRecord = errors.New("record: stored value is corrupt")

// DailyPlayRecord is the outcome of one day's attempt. Date uses the "YYYY-M-D" wire form.
type DailyPlayRecord struct {
	Date  string `json:"date"`
	Score int    `json:"score"`
}

// New builds the record for day.
func New(day calendar.Day, score int) DailyPlayRecord {
	return DailyPlayRecord{Date: day.String(), Score: score}
}

// IsFor reports whether the record belongs to day.
func (r DailyPlayRecord) IsFor(day calendar.Day) bool {
	d, err := calendar.Parse(r.Date)
	return err == nil && d == day
}

// KV is an opaque string key-value store.
type KV interface {
	// Get returns ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Store reads and writes the record wholesale.
type Store struct {
	kv KV
}

// NewStore wraps kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the stored record. ok is false when nothing has been stored yet.
func (s *Store) Load(ctx context.Context) (DailyPlayRecord, bool, error) {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return DailyPlayRecord{}, false, fmt.Errorf("record: load: %w", err)
	}
	if !ok {
		return DailyPlayRecord{}, false, nil
	}

	var rec DailyPlayRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return DailyPlayRecord{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Score < 0 {
		return DailyPlayRecord{}, false, fmt.Errorf("%w: negative score %d", ErrCorruptRecord, rec.Score)
	}
	return rec, true, nil
}

// Save overwrites the stored record.
func (s *Store) Save(ctx context.Context, rec DailyPlayRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record: encode: %w", err)
	}
	if err := s.kv.Set(ctx, Key, string(raw)); err != nil {
		return fmt.Errorf("record: save: %w", err)
	}
	return nil
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
