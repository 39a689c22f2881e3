package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"coindash-bot/internal/model"
)

// FileStore keeps all records in memory and mirrors every change to a JSON
// file. Writes go through a temp file and an atomic rename, so the file
// stays parseable even if the process dies mid-write.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	contexts map[string]map[int64]model.PlayerRecord
}

// NewFileStore loads the store from path, creating an empty store when the
// file does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		contexts: make(map[string]map[int64]model.PlayerRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read score file: %w", err)
	}

	var records []model.PlayerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse score file %s: %w", s.path, err)
	}

	for _, rec := range records {
		players, ok := s.contexts[rec.ContextID]
		if !ok {
			players = make(map[int64]model.PlayerRecord)
			s.contexts[rec.ContextID] = players
		}
		players[rec.PlayerID] = rec
	}
	return nil
}

// flush writes the full record set to disk. Caller must hold s.mu.
func (s *FileStore) flush() error {
	var records []model.PlayerRecord
	for _, players := range s.contexts {
		for _, rec := range players {
			records = append(records, rec)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode score file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".scores-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp score file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp score file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp score file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp score file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace score file: %w", err)
	}
	return nil
}

// Get returns the record for the key, or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, contextID string, playerID int64) (*model.PlayerRecord, error) {
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
	return &rec, nil
}

// Upsert inserts or replaces the record for its key and persists the
// change before returning.
func (s *FileStore) Upsert(ctx context.Context, rec *model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, ok := s.contexts[rec.ContextID]
	if !ok {
		players = make(map[int64]model.PlayerRecord)
		s.contexts[rec.ContextID] = players
	}

	prev, hadPrev := players[rec.PlayerID]
	players[rec.PlayerID] = *rec

	if err := s.flush(); err != nil {
		// Roll back the in-memory change so memory and disk stay in step.
		if hadPrev {
			players[rec.PlayerID] = prev
		} else {
			delete(players, rec.PlayerID)
		}
		return err
	}
	return nil
}

// ListByContext returns copies of all records in a context.
func (s *FileStore) ListByContext(ctx context.Context, contextID string) ([]*model.PlayerRecord, error) {
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
