package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coindash-bot/internal/model"
	"coindash-bot/internal/store"
)

func seedRecord(t *testing.T, st *store.MemoryStore, contextID string, playerID int64, name string, score int64, at time.Time) {
	t.Helper()
	err := st.Upsert(context.Background(), &model.PlayerRecord{
		ContextID:   contextID,
		PlayerID:    playerID,
		DisplayName: name,
		BestScore:   score,
		UpdatedAt:   at,
	})
	require.NoError(t, err)
}

func TestTopN_OrdersByScoreDescending(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	seedRecord(t, st, "chat-1", 1, "alice", 5, now)
	seedRecord(t, st, "chat-1", 2, "bob", 12, now)
	seedRecord(t, st, "chat-1", 3, "carol", 8, now)

	entries, err := NewRankingService(st).TopN(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{entries[0].PlayerID, entries[1].PlayerID, entries[2].PlayerID})
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
}

func TestTopN_TieBrokenByEarlierAchievement(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Now()
	seedRecord(t, st, "chat-1", 2, "late", 10, base.Add(time.Minute))
	seedRecord(t, st, "chat-1", 1, "early", 10, base)

	entries, err := NewRankingService(st).TopN(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].PlayerID)
	assert.Equal(t, int64(2), entries[1].PlayerID)
}

func TestTopN_TieWithEqualTimestampFallsBackToPlayerID(t *testing.T) {
	st := store.NewMemoryStore()
	at := time.Now()
	seedRecord(t, st, "chat-1", 9, "nine", 10, at)
	seedRecord(t, st, "chat-1", 4, "four", 10, at)

	entries, err := NewRankingService(st).TopN(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(4), entries[0].PlayerID)
	assert.Equal(t, int64(9), entries[1].PlayerID)
}

func TestTopN_TruncatesToLimit(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	for i := int64(1); i <= 15; i++ {
		seedRecord(t, st, "chat-1", i, "p", i*10, now)
	}

	entries, err := NewRankingService(st).TopN(context.Background(), "chat-1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(150), entries[0].Score)

	// Non-positive limit falls back to the default leaderboard size.
	entries, err = NewRankingService(st).TopN(context.Background(), "chat-1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultTopLimit)
}

func TestTopN_EmptyContextYieldsEmptyView(t *testing.T) {
	st := store.NewMemoryStore()

	entries, err := NewRankingService(st).TopN(context.Background(), "nobody-here", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRankOf(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	seedRecord(t, st, "chat-1", 1, "alice", 5, now)
	seedRecord(t, st, "chat-1", 2, "bob", 12, now)

	ranking := NewRankingService(st)

	rank, err := ranking.RankOf(context.Background(), "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	rank, err = ranking.RankOf(context.Background(), "chat-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	_, err = ranking.RankOf(context.Background(), "chat-1", 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
