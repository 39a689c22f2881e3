package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"coindash-bot/internal/model"
	"coindash-bot/internal/store"
)

// TestTopNOrderingProperty checks the leaderboard invariants for arbitrary
// populations: scores never increase down the list, ranks are contiguous
// from 1, and no player appears twice.
func TestTopNOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := store.NewMemoryStore()
		ctx := context.Background()
		base := time.Unix(1_700_000_000, 0)

		playerIDs := rapid.SliceOfNDistinct(rapid.Int64Range(1, 1000), 1, 30, rapid.ID[int64]).Draw(t, "players")
		for _, id := range playerIDs {
			err := st.Upsert(ctx, &model.PlayerRecord{
				ContextID:   "ctx",
				PlayerID:    id,
				DisplayName: "p",
				BestScore:   rapid.Int64Range(0, 100).Draw(t, "score"),
				UpdatedAt:   base.Add(time.Duration(rapid.IntRange(0, 60).Draw(t, "offset")) * time.Second),
			})
			require.NoError(t, err)
		}

		limit := rapid.IntRange(1, 40).Draw(t, "limit")
		entries, err := NewRankingService(st).TopN(ctx, "ctx", limit)
		require.NoError(t, err)

		want := len(playerIDs)
		if want > limit {
			want = limit
		}
		require.Len(t, entries, want)

		seen := make(map[int64]bool)
		for i, e := range entries {
			require.Equal(t, i+1, e.Rank)
			require.False(t, seen[e.PlayerID])
			seen[e.PlayerID] = true
			if i > 0 {
				require.LessOrEqual(t, e.Score, entries[i-1].Score)
			}
		}
	})
}
