package store

import (
	"context"
	"sync"

	"coindash-bot/internal/model"
)

// MemoryStore is a process-local ScoreStore. It backs small deployments
// that can afford to lose the board on restart, and the test suites.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]map[int64]model.PlayerRecord
}

// NewMemoryStore creates an empty in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]map[int64]model.PlayerRecord),
	}
}

// Get returns the record for the key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, contextID string, playerID int64) (*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players, ok := s.contexts[contextID]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := players[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	// Records are stored by value, so callers get a private copy.
	return &rec, nil
}

// Upsert inserts or replaces the record for its key.
func (s *MemoryStore) Upsert(ctx context.Context, rec *model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, ok := s.contexts[rec.ContextID]
	if !ok {
		players = make(map[int64]model.PlayerRecord)
		s.contexts[rec.ContextID] = players
	}
	players[rec.PlayerID] = *rec
	return nil
}

// ListByContext returns copies of all records in a context.
func (s *MemoryStore) ListByContext(ctx context.Context, contextID string) ([]*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := s.contexts[contextID]
	records := make([]*model.PlayerRecord, 0, len(players))
	for _, rec := range players {
		r := rec
		records = append(records, &r)
	}
	return records, nil
}
