// Package lifecycle tracks every signal identity through its state machine
// and enforces the anti-duplication rule: an identity in INVALIDATED or
// unexpired COOLDOWN is never processed again until its entry expires.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/quantfold/signalforge/internal/models"
)

// Store persists lifecycle entries keyed by signal identity. Get returns
// (nil, nil) for an unknown identity.
type Store interface {
	Get(ctx context.Context, identity string) (*models.SignalRecord, error)
	Put(ctx context.Context, record *models.SignalRecord) error
	Delete(ctx context.Context, identity string) error
	// Sweep evicts expired entries and reports how many it removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is the default in-process store: a mutex-guarded map shared
// across concurrent symbol cycles. Entries are copied on the way in and
// out so callers can never mutate stored state directly.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.SignalRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.SignalRecord)}
}

func (s *MemoryStore) Get(_ context.Context, identity string) (*models.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.entries[identity]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) Put(_ context.Context, record *models.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[record.Identity] = *record
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for identity, record := range s.entries {
		if record.Expired(now) {
			delete(s.entries, identity)
			removed++
		}
	}
	return removed, nil
}

// Len reports the live entry count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
