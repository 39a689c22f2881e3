package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coindash-bot/internal/model"
	"coindash-bot/internal/pkg/lock"
	"coindash-bot/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewReconciler(st, lock.NewKeyLock(), false), st
}

func report(contextID string, playerID int64, name string, score int64) *model.ScoreReport {
	return &model.ScoreReport{
		ReportID:    uuid.New().String(),
		ContextID:   contextID,
		PlayerID:    playerID,
		DisplayName: name,
		Score:       score,
		Source:      model.SourceHTTPAPI,
		ReceivedAt:  time.Now(),
	}
}

func TestReconcile_FirstReportCreatesRecord(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	out, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.True(t, out.Created)
	assert.Equal(t, int64(10), out.NewBest)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.BestScore)

	rank, err := NewRankingService(st).RankOf(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
}

func TestReconcile_HigherScoreAccepted(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 20))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.False(t, out.Created)
	assert.Equal(t, int64(10), out.PreviousBest)
	assert.Equal(t, int64(20), out.NewBest)
}

func TestReconcile_EqualScoreRejected(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, int64(10), out.NewBest)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.BestScore)
}

func TestReconcile_EqualScoreAcceptedUnderAllowEqual(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewReconciler(st, lock.NewKeyLock(), true)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, report("chat-1", 1, "fresh-name", 10))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh-name", rec.DisplayName)
}

func TestReconcile_RejectionLeavesRecordUntouched(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	accepted := report("chat-1", 1, "alice", 50)
	_, err := r.Reconcile(ctx, accepted)
	require.NoError(t, err)

	// Lower score with a different name must not bleed into the record.
	out, err := r.Reconcile(ctx, report("chat-1", 1, "imposter", 3))
	require.NoError(t, err)
	assert.False(t, out.Accepted)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.DisplayName)
	assert.Equal(t, int64(50), rec.BestScore)
	assert.True(t, rec.UpdatedAt.Equal(accepted.ReceivedAt))
}

func TestReconcile_ForceOverridesLowerScore(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 100))
	require.NoError(t, err)

	forced := report("chat-1", 1, "alice", 5)
	forced.Source = model.SourceManualOverride
	forced.Force = true

	out, err := r.Reconcile(ctx, forced)
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, int64(100), out.PreviousBest)
	assert.Equal(t, int64(5), out.NewBest)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.BestScore)
}

func TestReconcile_NamelessOverrideKeepsExistingName(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 100))
	require.NoError(t, err)

	// An override targets a user id; the admin does not know the name.
	forced := report("chat-1", 1, "", 5)
	forced.Source = model.SourceManualOverride
	forced.Force = true

	out, err := r.Reconcile(ctx, forced)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.DisplayName)
	assert.Equal(t, int64(5), rec.BestScore)
}

func TestReconcile_NamelessFirstReportGetsFallbackName(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 42, "", 10))
	require.NoError(t, err)

	rec, err := st.Get(ctx, "chat-1", 42)
	require.NoError(t, err)
	assert.Equal(t, "player-42", rec.DisplayName)
}

func TestReconcile_CancelledContextFails(t *testing.T) {
	r, st := newTestReconciler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	assert.Nil(t, out)
	assert.Error(t, err)

	_, err = st.Get(context.Background(), "chat-1", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcile_SameScoreDistinctContexts(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)
	out, err := r.Reconcile(ctx, report("chat-2", 1, "alice", 10))
	require.NoError(t, err)
	assert.True(t, out.Accepted, "contexts keep independent bests")

	_, err = st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	_, err = st.Get(ctx, "chat-2", 1)
	require.NoError(t, err)
}

func TestReconcile_ConcurrentSameKeyConvergesToMax(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, score := range []int64{30, 45} {
		wg.Add(1)
		go func(s int64) {
			defer wg.Done()
			_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", s))
			assert.NoError(t, err)
		}(score)
	}
	wg.Wait()

	rec, err := st.Get(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(45), rec.BestScore)
}

func TestReconcile_OnAcceptFiresOnlyOnAcceptance(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	var calls int
	r.OnAccept(func(rec *model.PlayerRecord, rep *model.ScoreReport, out model.Outcome) {
		calls++
		assert.True(t, out.Accepted)
	})

	_, err := r.Reconcile(ctx, report("chat-1", 1, "alice", 10))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, report("chat-1", 1, "alice", 5))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

// failingStore simulates an unavailable durable medium.
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Get(context.Context, string, int64) (*model.PlayerRecord, error) {
	return nil, errStoreDown
}
func (failingStore) Upsert(context.Context, *model.PlayerRecord) error { return errStoreDown }
func (failingStore) ListByContext(context.Context, string) ([]*model.PlayerRecord, error) {
	return nil, errStoreDown
}

func TestReconcile_StoreFailurePropagates(t *testing.T) {
	r := NewReconciler(failingStore{}, lock.NewKeyLock(), false)

	out, err := r.Reconcile(context.Background(), report("chat-1", 1, "alice", 10))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestEndToEndScenario(t *testing.T) {
	r, st := newTestReconciler(t)
	ranking := NewRankingService(st)
	ctx := context.Background()

	out, err := r.Reconcile(ctx, report("chat-1", 1, "P1", 5))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	rank, err := ranking.RankOf(ctx, "chat-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	out, err = r.Reconcile(ctx, report("chat-1", 1, "P1", 3))
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, int64(5), out.NewBest)

	out, err = r.Reconcile(ctx, report("chat-1", 2, "P2", 7))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	entries, err := ranking.TopN(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LeaderboardEntry{Rank: 1, PlayerID: 2, DisplayName: "P2", Score: 7}, entries[0])
	assert.Equal(t, model.LeaderboardEntry{Rank: 2, PlayerID: 1, DisplayName: "P1", Score: 5}, entries[1])
}
