// Package store defines the score store contract and the in-process
// backends. The contract is storage-agnostic: a backend only has to make
// each Upsert all-or-nothing per (context, player) key. Serialization of
// the read-then-write cycle is the reconciler's job, not the store's.
package store

import (
	"context"
	"errors"

	"coindash-bot/internal/model"
)

// Common errors for score store operations.
var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("player record not found")
)

// ScoreStore is the durable mapping from (context, player) to the player's
// recorded best. Implementations: Memory, File, Redis (this package) and
// the pgx-backed repository.ScoreRepository.
type ScoreStore interface {
	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, contextID string, playerID int64) (*model.PlayerRecord, error)

	// Upsert atomically inserts or replaces the record for its key.
	// A reader never observes a partially applied record.
	Upsert(ctx context.Context, rec *model.PlayerRecord) error

	// ListByContext returns all records in a context, in no particular
	// order. Ordering is the ranking projector's responsibility.
	ListByContext(ctx context.Context, contextID string) ([]*model.PlayerRecord, error)
}
