// Package timeline maintains the club's operational-state timeline: planned
// entries, weekly templates and the automatic closing of finished entries.
// All mutations of the timeline are serialized through one lock.
package timeline

import (
	"context"
	"log"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/calendar"
	"clubhouse-backend/internal/eventlog"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/notification"
	"clubhouse-backend/internal/store"
)

// lockKey guards the whole timeline: non-overlap is a cross-entry invariant.
var lockKey = lock.Key(model.EntityClubState, 0)

// History event types appended for club states.
const (
	EventPlanned      = "planned"
	EventClosed       = "closed"
	EventSuppressed   = "suppressed"
	EventMaterialized = "materialized"
)

// Emitter receives notifications after a change is committed.
type Emitter interface {
	Emit(ev notification.Event)
}

// WindowResolver resolves linked calendar events.
type WindowResolver interface {
	EventWindow(ctx context.Context, id int64) (calendar.Window, error)
}

// Engine is the timeline engine.
type Engine struct {
	store    store.Store
	calendar WindowResolver
	locker   lock.Locker
	emitter  Emitter
	loc      *time.Location
	horizon  time.Duration
}

// DefaultHorizon bounds template materialization when the engine is created
// without a horizon.
const DefaultHorizon = 14 * 24 * time.Hour

// NewEngine creates an Engine. loc is the club's timezone used for template
// wall-clock times; horizon is how far ahead Sweep materializes templates and
// how far a Timeline read may materialize. Sweep skips materialization when
// horizon is zero; reads then use DefaultHorizon.
func NewEngine(s store.Store, cal WindowResolver, locker lock.Locker, emitter Emitter, loc *time.Location, horizon time.Duration) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: s, calendar: cal, locker: locker, emitter: emitter, loc: loc, horizon: horizon}
}

// PlanRequest describes a new timeline entry.
type PlanRequest struct {
	Kind          model.StateKind `json:"kind"`
	PlannedStart  time.Time       `json:"plannedStart"`
	PlannedEnd    *time.Time      `json:"plannedEnd"`
	Note          string          `json:"note"`
	InternalNote  string          `json:"internalNote"`
	LinkedEventID *int64          `json:"linkedEventId"`
}

// CurrentState returns the entry covering now. Without a concrete entry it
// falls back to a not yet materialized template slot, and finally to a
// synthetic Closed state. Synthetic results have ID 0.
func (e *Engine) CurrentState(ctx context.Context, now time.Time) (model.ClubState, error) {
	now = now.UTC()
	active, err := e.store.ListClubStatesActiveAfter(ctx, now)
	if err != nil {
		return model.ClubState{}, err
	}
	var next *time.Time
	for _, st := range active {
		if st.Covers(now) {
			return st, nil
		}
		if st.PlannedStart.After(now) && next == nil {
			start := st.PlannedStart
			next = &start
		}
	}

	virtual, ok, err := e.virtualSlot(ctx, now)
	if err != nil {
		return model.ClubState{}, err
	}
	if ok {
		return virtual, nil
	}
	return model.ClubState{Kind: model.KindClosed, PlannedStart: now, PlannedEnd: next}, nil
}

// virtualSlot finds a template slot covering now that lies beyond the
// template's materialization watermark and is not shadowed by a concrete entry.
func (e *Engine) virtualSlot(ctx context.Context, now time.Time) (model.ClubState, bool, error) {
	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return model.ClubState{}, false, err
	}
	for _, tpl := range templates {
		slots, err := Slots(tpl, e.loc, now.Add(-24*time.Hour), now.Add(time.Nanosecond))
		if err != nil {
			return model.ClubState{}, false, err
		}
		for _, slot := range slots {
			if !now.Before(slot.End) {
				continue
			}
			if tpl.MaterializedUntil != nil && slot.Start.Before(*tpl.MaterializedUntil) {
				continue
			}
			shadowing, err := e.store.ListClubStatesBetween(ctx, slot.Start, slot.End)
			if err != nil {
				return model.ClubState{}, false, err
			}
			if len(shadowing) > 0 {
				continue
			}
			end := slot.End
			id := tpl.ID
			return model.ClubState{
				Kind:         tpl.Kind,
				PlannedStart: slot.Start,
				PlannedEnd:   &end,
				Note:         tpl.Note,
				TemplateID:   &id,
				MadeBy:       tpl.MadeBy,
			}, true, nil
		}
	}
	return model.ClubState{}, false, nil
}

// Get returns one entry.
func (e *Engine) Get(ctx context.Context, id int64) (model.ClubState, error) {
	return e.store.GetClubState(ctx, id)
}

// Timeline materializes templates up to to, but never past the horizon, and
// returns the concrete entries intersecting [from, to).
func (e *Engine) Timeline(ctx context.Context, now, from, to time.Time) ([]model.ClubState, error) {
	if !from.Before(to) {
		return nil, apperr.New(apperr.InvalidTime, "timeline.Timeline", "from must be before to")
	}
	until := to.UTC()
	if limit := e.horizonEnd(now); until.After(limit) {
		until = limit
	}
	if err := e.MaterializeAll(ctx, now, until); err != nil {
		// Listing still works on whatever is materialized.
		log.Printf("Warning: timeline materialization incomplete: %v", err)
	}
	return e.store.ListClubStatesBetween(ctx, from.UTC(), to.UTC())
}

// History returns the event log of one entry. Suppressed entries keep their
// history.
func (e *Engine) History(ctx context.Context, id int64) ([]eventlog.Record, error) {
	return eventlog.History(ctx, e.store, eventlog.ClubState(id))
}

// Plan validates and inserts a new entry. Not yet started template-derived
// entries in the way are suppressed; any other overlap is rejected.
func (e *Engine) Plan(ctx context.Context, now time.Time, actor auth.Actor, req PlanRequest) (model.ClubState, error) {
	const op = "timeline.Plan"
	if !actor.IsManager() {
		return model.ClubState{}, apperr.New(apperr.Forbidden, op, "only managers may plan club states")
	}
	if !req.Kind.Valid() {
		return model.ClubState{}, apperr.New(apperr.InvalidInput, op, "unknown state kind %q", req.Kind)
	}
	if req.PlannedStart.IsZero() {
		return model.ClubState{}, apperr.New(apperr.InvalidInput, op, "planned start is required")
	}
	now = now.UTC()
	start := req.PlannedStart.UTC()
	var end *time.Time
	if req.PlannedEnd != nil {
		t := req.PlannedEnd.UTC()
		if !start.Before(t) {
			return model.ClubState{}, apperr.New(apperr.InvalidTime, op, "planned start %s is not before planned end %s", start, t)
		}
		end = &t
	}

	// Resolved before the transaction: the calendar reads through its own connection.
	if req.LinkedEventID != nil {
		w, err := e.calendar.EventWindow(ctx, *req.LinkedEventID)
		if err != nil {
			return model.ClubState{}, err
		}
		if end == nil {
			return model.ClubState{}, apperr.New(apperr.InvalidTime, op, "an entry linked to event %d needs a planned end", *req.LinkedEventID)
		}
		if !w.Contains(start, *end) {
			return model.ClubState{}, apperr.New(apperr.InvalidTime, op, "entry lies outside the window of event %d", *req.LinkedEventID)
		}
	}

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return model.ClubState{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	st := model.ClubState{
		Kind:          req.Kind,
		PlannedStart:  start,
		PlannedEnd:    end,
		Note:          req.Note,
		InternalNote:  req.InternalNote,
		LinkedEventID: req.LinkedEventID,
		MadeBy:        actor.ID,
	}
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		if err := e.makeRoom(ctx, tx, now, actor, 0, start, end); err != nil {
			return err
		}
		if err := tx.CreateClubState(ctx, &st); err != nil {
			return err
		}
		if err := relink(ctx, tx, &st); err != nil {
			return err
		}
		return eventlog.Append(ctx, tx, eventlog.ClubState(st.ID), EventPlanned, actor.ID, now, map[string]any{
			"kind":          st.Kind,
			"plannedStart":  st.PlannedStart,
			"plannedEnd":    st.PlannedEnd,
			"linkedEventId": st.LinkedEventID,
		})
	})
	if err != nil {
		return model.ClubState{}, err
	}

	if st.Covers(now) {
		e.emitStateChanged(st, now)
	}
	return st, nil
}

// CloseState sets the actual end of an open entry.
func (e *Engine) CloseState(ctx context.Context, now time.Time, actor auth.Actor, id int64, actualEnd time.Time) (model.ClubState, error) {
	const op = "timeline.CloseState"
	if !actor.IsManager() && !actor.IsSystem() {
		return model.ClubState{}, apperr.New(apperr.Forbidden, op, "only managers may close club states")
	}
	now = now.UTC()
	actualEnd = actualEnd.UTC()

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return model.ClubState{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	var st model.ClubState
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		st, err = tx.GetClubState(ctx, id)
		if err != nil {
			return err
		}
		if st.ActualEnd != nil {
			return apperr.New(apperr.AlreadyClosed, op, "club state %d was closed at %s", id, st.ActualEnd.UTC())
		}
		if actualEnd.Before(st.PlannedStart) {
			return apperr.New(apperr.InvalidTime, op, "actual end %s is before planned start %s", actualEnd, st.PlannedStart)
		}
		if st.PlannedEnd == nil || actualEnd.After(*st.PlannedEnd) {
			if err := e.makeRoom(ctx, tx, now, actor, st.ID, st.PlannedStart, &actualEnd); err != nil {
				return err
			}
		}
		return closeEntry(ctx, tx, &st, actualEnd, actor.ID, now, false)
	})
	if err != nil {
		return model.ClubState{}, err
	}

	e.emitStateChanged(st, now)
	return st, nil
}

// closeEntry sets the actual end and records who closed the entry.
func closeEntry(ctx context.Context, tx store.Store, st *model.ClubState, actualEnd time.Time, closedBy string, now time.Time, automatic bool) error {
	st.ActualEnd = &actualEnd
	st.ClosedBy = &closedBy
	if err := tx.UpdateClubState(ctx, st); err != nil {
		return err
	}
	if err := relink(ctx, tx, st); err != nil {
		return err
	}
	return eventlog.Append(ctx, tx, eventlog.ClubState(st.ID), EventClosed, closedBy, now, map[string]any{
		"actualEnd": actualEnd,
		"automatic": automatic,
	})
}

// makeRoom checks [start, end) against every entry still active at start,
// ignoring excludeID. Overlapping template-derived entries that have not
// started yet are suppressed; any other overlap fails without side effects.
func (e *Engine) makeRoom(ctx context.Context, tx store.Store, now time.Time, actor auth.Actor, excludeID int64, start time.Time, end *time.Time) error {
	const op = "timeline.makeRoom"
	active, err := tx.ListClubStatesActiveAfter(ctx, start)
	if err != nil {
		return err
	}
	var suppress []model.ClubState
	for _, other := range active {
		if other.ID == excludeID || !other.Overlaps(start, end) {
			continue
		}
		if other.IsTemplateDerived() && now.Before(other.PlannedStart) {
			suppress = append(suppress, other)
			continue
		}
		return apperr.New(apperr.Overlap, op, "overlaps club state %d (%s from %s)", other.ID, other.Kind, other.PlannedStart)
	}

	for i := range suppress {
		other := &suppress[i]
		if err := tx.SuppressClubState(ctx, other); err != nil {
			return err
		}
		err := eventlog.Append(ctx, tx, eventlog.ClubState(other.ID), EventSuppressed, actor.ID, now, map[string]any{
			"templateId": other.TemplateID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// relink points the chronological predecessor of st at st and st at its
// successor.
func relink(ctx context.Context, tx store.Store, st *model.ClubState) error {
	succ, err := tx.SuccessorOf(ctx, st.PlannedStart, st.ID)
	if err != nil {
		return err
	}
	var following *int64
	if succ != nil {
		id := succ.ID
		following = &id
	}
	if !sameID(st.FollowingStateID, following) {
		st.FollowingStateID = following
		if err := tx.UpdateClubState(ctx, st); err != nil {
			return err
		}
	}

	pred, err := tx.PredecessorOf(ctx, st.PlannedStart, st.ID)
	if err != nil {
		return err
	}
	if pred != nil && !sameID(pred.FollowingStateID, &st.ID) {
		id := st.ID
		pred.FollowingStateID = &id
		if err := tx.UpdateClubState(ctx, pred); err != nil {
			return err
		}
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (e *Engine) emitStateChanged(st model.ClubState, now time.Time) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(notification.NewEvent(notification.StateChanged, st.ID, now, "", map[string]any{
		"kind":         st.Kind,
		"plannedStart": st.PlannedStart,
		"plannedEnd":   st.PlannedEnd,
		"actualEnd":    st.ActualEnd,
	}))
}
