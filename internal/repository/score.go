// Package repository provides the PostgreSQL-backed score store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coindash-bot/internal/model"
	"coindash-bot/internal/store"
)

// ScoreRepository persists player records in the player_scores table.
// It implements store.ScoreStore.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository instance.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// Get retrieves a player's record within a context.
// Returns store.ErrNotFound if no record exists.
func (r *ScoreRepository) Get(ctx context.Context, contextID string, playerID int64) (*model.PlayerRecord, error) {
	const query = `
		SELECT context_id, player_id, display_name, best_score, updated_at
		FROM player_scores
		WHERE context_id = $1 AND player_id = $2
	`

	var rec model.PlayerRecord
	err := r.pool.QueryRow(ctx, query, contextID, playerID).Scan(
		&rec.ContextID,
		&rec.PlayerID,
		&rec.DisplayName,
		&rec.BestScore,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get player record: %w", err)
	}

	return &rec, nil
}

// Upsert inserts or replaces a record. The single INSERT ... ON CONFLICT
// statement makes the replacement atomic per (context_id, player_id) key.
func (r *ScoreRepository) Upsert(ctx context.Context, rec *model.PlayerRecord) error {
	const query = `
		INSERT INTO player_scores (context_id, player_id, display_name, best_score, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (context_id, player_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    best_score = EXCLUDED.best_score,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ContextID, rec.PlayerID, rec.DisplayName, rec.BestScore, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert player record: %w", err)
	}
	return nil
}

// ListByContext retrieves all records in a context, unordered.
func (r *ScoreRepository) ListByContext(ctx context.Context, contextID string) ([]*model.PlayerRecord, error) {
	const query = `
		SELECT context_id, player_id, display_name, best_score, updated_at
		FROM player_scores
		WHERE context_id = $1
	`

	rows, err := r.pool.Query(ctx, query, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player records: %w", err)
	}
	defer rows.Close()

	var records []*model.PlayerRecord
	for rows.Next() {
		var rec model.PlayerRecord
		err := rows.Scan(
			&rec.ContextID,
			&rec.PlayerID,
			&rec.DisplayName,
			&rec.BestScore,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player records: %w", err)
	}

	return records, nil
}
