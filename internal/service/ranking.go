package service

import (
	"context"
	"fmt"
	"sort"

	"coindash-bot/internal/model"
	"coindash-bot/internal/store"
)

// DefaultTopLimit is the leaderboard size used when callers pass a
// non-positive limit.
const DefaultTopLimit = 10

// RankingService projects the score store into ordered leaderboard views.
// For a fixed store snapshot its output is fully deterministic: scores
// descending, then earliest achievement first, then player id.
type RankingService struct {
	store store.ScoreStore
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(st store.ScoreStore) *RankingService {
	return &RankingService{store: st}
}

// sortRecords orders records into ranking order.
func sortRecords(records []*model.PlayerRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		// Equal scores: the earlier achiever ranks higher.
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.PlayerID < b.PlayerID
	})
}

// TopN returns the top entries of a context's leaderboard, with 1-based
// contiguous ranks. An empty context yields an empty view, not an error.
func (s *RankingService) TopN(ctx context.Context, contextID string, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	records, err := s.store.ListByContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard for %s: %w", contextID, err)
	}

	sortRecords(records)
	if len(records) > limit {
		records = records[:limit]
	}

	entries := make([]model.LeaderboardEntry, len(records))
	for i, rec := range records {
		entries[i] = model.LeaderboardEntry{
			Rank:        i + 1,
			PlayerID:    rec.PlayerID,
			DisplayName: rec.DisplayName,
			Score:       rec.BestScore,
		}
	}
	return entries, nil
}

// RankOf returns a player's 1-based position in the full ordering of a
// context. Returns store.ErrNotFound when the player has no record there.
func (s *RankingService) RankOf(ctx context.Context, contextID string, playerID int64) (int, error) {
	records, err := s.store.ListByContext(ctx, contextID)
	if err != nil {
		return 0, fmt.Errorf("failed to load leaderboard for %s: %w", contextID, err)
	}

	sortRecords(records)
	for i, rec := range records {
		if rec.PlayerID == playerID {
			return i + 1, nil
		}
	}
	return 0, store.ErrNotFound
}
