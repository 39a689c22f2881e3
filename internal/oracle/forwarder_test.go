package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOracle records every call and can be told to fail.
type fakeOracle struct {
	mu      sync.Mutex
	calls   []Job
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeOracle) SetScore(_ context.Context, ref MessageRef, playerID, score int64, force bool) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Job{Ref: ref, PlayerID: playerID, Score: score, Force: force})
	return f.err
}

func (f *fakeOracle) HighScores(context.Context, MessageRef, int64) ([]HighScore, error) {
	return nil, nil
}

func (f *fakeOracle) recorded() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Job, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestForwarderDeliversJobs(t *testing.T) {
	fake := &fakeOracle{}
	fw := NewForwarder(fake, 8)
	fw.Start()

	ref := MessageRef{ChatID: 1, MessageID: 100}
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 7, Score: 42}))
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 8, Score: 9, Force: true}))
	fw.Stop()

	calls := fake.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(42), calls[0].Score)
	assert.True(t, calls[1].Force)
}

func TestForwarderSkipsInvalidRef(t *testing.T) {
	fake := &fakeOracle{}
	fw := NewForwarder(fake, 8)
	fw.Start()

	assert.False(t, fw.Enqueue(Job{PlayerID: 7, Score: 42}))
	fw.Stop()

	assert.Empty(t, fake.recorded())
}

func TestForwarderDropsWhenQueueFull(t *testing.T) {
	fake := &fakeOracle{entered: make(chan struct{}, 1), block: make(chan struct{})}
	fw := NewForwarder(fake, 1)
	fw.Start()

	ref := MessageRef{ChatID: 1, MessageID: 100}
	// First job occupies the worker, second fills the queue slot.
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 1, Score: 1}))
	<-fake.entered
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 2, Score: 2}))
	assert.False(t, fw.Enqueue(Job{Ref: ref, PlayerID: 3, Score: 3}))

	close(fake.block)
	fw.Stop()

	assert.Len(t, fake.recorded(), 2)
}

func TestForwarderContinuesAfterFailure(t *testing.T) {
	fake := &fakeOracle{err: errors.New("api down")}
	fw := NewForwarder(fake, 8)
	fw.Start()

	ref := MessageRef{ChatID: 1, MessageID: 100}
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 1, Score: 1}))
	assert.True(t, fw.Enqueue(Job{Ref: ref, PlayerID: 2, Score: 2}))
	fw.Stop()

	assert.Len(t, fake.recorded(), 2)
}
