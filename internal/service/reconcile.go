// Package service implements the score reconciliation engine and the
// ranking projector on top of a ScoreStore.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"coindash-bot/internal/model"
	"coindash-bot/internal/pkg/lock"
	"coindash-bot/internal/store"
)

// lockTimeout bounds how long a report waits on another in-flight report
// for the same key before failing over to the caller.
const lockTimeout = 5 * time.Second

// AcceptFunc is notified after a report has been accepted and persisted.
// Implementations must not block: anything slow (oracle forwarding,
// websocket broadcasts) has to hand off to its own queue.
type AcceptFunc func(rec *model.PlayerRecord, report *model.ScoreReport, out model.Outcome)

// Reconciler decides whether a score report supersedes a player's recorded
// best. The read-then-write cycle runs under a per-(context, player) lock,
// so two concurrent reports for the same player can never both win against
// the same stale best.
type Reconciler struct {
	store      store.ScoreStore
	locks      *lock.KeyLock
	allowEqual bool

	mu       sync.RWMutex
	onAccept []AcceptFunc
}

// NewReconciler creates a Reconciler. allowEqual relaxes the strict
// improvement rule so a report equal to the current best also wins; the
// default policy keeps the rank with the first achiever.
func NewReconciler(st store.ScoreStore, locks *lock.KeyLock, allowEqual bool) *Reconciler {
	return &Reconciler{
		store:      st,
		locks:      locks,
		allowEqual: allowEqual,
	}
}

// OnAccept registers a listener invoked for every accepted report.
func (r *Reconciler) OnAccept(fn AcceptFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAccept = append(r.onAccept, fn)
}

// Reconcile applies a report against the store.
//
// Rejections never mutate state. Store failures propagate to the caller;
// the caller must not present them as either acceptance or rejection.
func (r *Reconciler) Reconcile(ctx context.Context, report *model.ScoreReport) (*model.Outcome, error) {
	key := lock.PlayerKey(report.ContextID, report.PlayerID)

	var (
		out model.Outcome
		rec *model.PlayerRecord
	)

	err := r.locks.WithLockContext(ctx, key, lockTimeout, func() error {
		current, err := r.store.Get(ctx, report.ContextID, report.PlayerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if current != nil {
			out.PreviousBest = current.BestScore
			improves := report.Score > current.BestScore ||
				(r.allowEqual && report.Score == current.BestScore)
			if !improves && !report.Force {
				out.Accepted = false
				out.NewBest = current.BestScore
				return nil
			}
		} else {
			out.Created = true
		}

		rec = &model.PlayerRecord{
			ContextID:   report.ContextID,
			PlayerID:    report.PlayerID,
			DisplayName: resolveName(report, current),
			BestScore:   report.Score,
			UpdatedAt:   report.ReceivedAt,
		}
		if err := r.store.Upsert(ctx, rec); err != nil {
			return err
		}

		out.Accepted = true
		out.NewBest = report.Score
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Accepted {
		log.Info().
			Str("report_id", report.ReportID).
			Str("context_id", report.ContextID).
			Int64("player_id", report.PlayerID).
			Str("source", string(report.Source)).
			Bool("forced", report.Force).
			Int64("previous_best", out.PreviousBest).
			Int64("new_best", out.NewBest).
			Msg("Score accepted")
		r.notifyAccept(rec, report, out)
	} else {
		log.Debug().
			Str("report_id", report.ReportID).
			Str("context_id", report.ContextID).
			Int64("player_id", report.PlayerID).
			Str("source", string(report.Source)).
			Int64("reported", report.Score).
			Int64("best", out.NewBest).
			Msg("Score rejected, did not beat recorded best")
	}

	return &out, nil
}

// resolveName picks the display name to persist. A report without a name
// keeps the record's existing name, so nameless override paths never
// clobber what the player launched with. Only a brand-new record falls
// back to a synthetic name, keeping leaderboard rows non-blank.
func resolveName(report *model.ScoreReport, current *model.PlayerRecord) string {
	if name := strings.TrimSpace(report.DisplayName); name != "" {
		return name
	}
	if current != nil && current.DisplayName != "" {
		return current.DisplayName
	}
	return fmt.Sprintf("player-%d", report.PlayerID)
}

// notifyAccept runs the registered listeners outside the per-key lock.
func (r *Reconciler) notifyAccept(rec *model.PlayerRecord, report *model.ScoreReport, out model.Outcome) {
	r.mu.RLock()
	listeners := r.onAccept
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(rec, report, out)
	}
}
