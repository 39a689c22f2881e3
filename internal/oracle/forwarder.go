package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// forwardTimeout bounds a single platform call so a stalled API cannot
// back up the queue.
const forwardTimeout = 10 * time.Second

// Job is one pending platform update.
type Job struct {
	Ref      MessageRef
	PlayerID int64
	Score    int64
	Force    bool
}

// Forwarder drains a bounded queue of score updates into an Oracle on a
// background worker. Forwarding is best effort: the local store is the
// source of truth, so a full queue drops the job and a failed call is
// logged and abandoned rather than retried.
type Forwarder struct {
	oracle Oracle
	jobs   chan Job

	stopOnce sync.Once
	done     chan struct{}
}

// NewForwarder creates a forwarder with the given queue capacity.
func NewForwarder(o Oracle, queueSize int) *Forwarder {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Forwarder{
		oracle: o,
		jobs:   make(chan Job, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Call Stop to drain and shut down.
func (f *Forwarder) Start() {
	go f.run()
}

// Stop closes the queue and waits for the worker to drain it.
func (f *Forwarder) Stop() {
	f.stopOnce.Do(func() {
		close(f.jobs)
	})
	<-f.done
}

// Enqueue submits a job without blocking. Returns false when the queue
// is full and the job was dropped.
func (f *Forwarder) Enqueue(job Job) bool {
	if !job.Ref.Valid() {
		log.Debug().
			Int64("player_id", job.PlayerID).
			Msg("No game message recorded for player, skipping platform sync")
		return false
	}

	select {
	case f.jobs <- job:
		return true
	default:
		log.Warn().
			Int64("player_id", job.PlayerID).
			Int64("score", job.Score).
			Msg("Platform sync queue full, dropping score update")
		return false
	}
}

func (f *Forwarder) run() {
	defer close(f.done)

	for job := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		err := f.oracle.SetScore(ctx, job.Ref, job.PlayerID, job.Score, job.Force)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int64("player_id", job.PlayerID).
				Int64("score", job.Score).
				Msg("Failed to sync score to platform")
			continue
		}

		log.Debug().
			Int64("player_id", job.PlayerID).
			Int64("score", job.Score).
			Msg("Score synced to platform")
	}
}
