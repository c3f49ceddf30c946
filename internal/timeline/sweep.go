package timeline

import (
	"context"
	"errors"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/store"
)

// Sweep closes every entry whose planned end passed before now, using the
// planned end as actual end, then materializes templates up to the horizon.
// Every entry is handled on its own; failures are collected into an
// *apperr.BatchError and the pass carries on.
func (e *Engine) Sweep(ctx context.Context, now time.Time) error {
	now = now.UTC()
	batch := &apperr.BatchError{Op: "timeline.Sweep"}

	overdue, err := e.store.ListOverdueClubStates(ctx, now)
	if err != nil {
		return err
	}
	for _, st := range overdue {
		closed, changed, err := e.closeOverdue(ctx, now, st.ID)
		if err != nil {
			batch.Add(st.ID, err)
			continue
		}
		if changed {
			e.emitStateChanged(closed, now)
		}
	}

	if e.horizon > 0 {
		if err := e.MaterializeAll(ctx, now, e.horizonEnd(now)); err != nil {
			var inner *apperr.BatchError
			if errors.As(err, &inner) {
				batch.Failures = append(batch.Failures, inner.Failures...)
			} else {
				batch.Add(0, err)
			}
		}
	}
	return batch.ErrOrNil()
}

// horizonEnd rounds now+horizon up to the next local midnight so the template
// watermarks advance once a day.
func (e *Engine) horizonEnd(now time.Time) time.Time {
	horizon := e.horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	t := now.Add(horizon).In(e.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc).AddDate(0, 0, 1).UTC()
}

// closeOverdue re-reads the entry under the lock so a concurrent manual close
// or a repeated sweep leaves it alone.
func (e *Engine) closeOverdue(ctx context.Context, now time.Time, id int64) (model.ClubState, bool, error) {
	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return model.ClubState{}, false, apperr.Wrap(apperr.DependencyUnavailable, "timeline.closeOverdue", err)
	}
	defer unlock()

	var st model.ClubState
	changed := false
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		st, err = tx.GetClubState(ctx, id)
		if err != nil {
			return err
		}
		if st.ActualEnd != nil || st.PlannedEnd == nil || !st.PlannedEnd.Before(now) {
			return nil
		}
		changed = true
		return closeEntry(ctx, tx, &st, *st.PlannedEnd, auth.SystemActorID, now, true)
	})
	return st, changed, err
}
