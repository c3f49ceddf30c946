// Package reservation runs the board-game reservation lifecycle. Each
// reservation item moves through the state machine in transitions.go; every
// accepted transition is appended to the item's history in the same
// transaction as the state change.
package reservation

import (
	"context"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/eventlog"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/notification"
	"clubhouse-backend/internal/store"
)

// History event types besides the action names.
const (
	EventCreated      = "created"
	EventInternalNote = "internal_note"
)

// Emitter receives notifications after a change is committed.
type Emitter interface {
	Emit(ev notification.Event)
}

// Engine is the reservation engine.
type Engine struct {
	store   store.Store
	locker  lock.Locker
	emitter Emitter
	dueSoon time.Duration
}

// NewEngine creates an Engine. dueSoon is how long before the due date the
// borrower gets a reminder; zero disables reminders.
func NewEngine(s store.Store, locker lock.Locker, emitter Emitter, dueSoon time.Duration) *Engine {
	return &Engine{store: s, locker: locker, emitter: emitter, dueSoon: dueSoon}
}

// Command is a request to move an item along one edge. DueDate is required
// for assign and request_extension and ignored otherwise.
type Command struct {
	Action  Action     `json:"action"`
	DueDate *time.Time `json:"dueDate"`
}

// CreateRequest describes a new reservation.
type CreateRequest struct {
	NoteUser     string  `json:"noteUser"`
	BoardGameIDs []int64 `json:"boardGameIds"`
}

// CreateReservation stores a reservation whose items all start in New.
func (e *Engine) CreateReservation(ctx context.Context, now time.Time, actor auth.Actor, req CreateRequest) (model.Reservation, error) {
	const op = "reservation.CreateReservation"
	if actor.ID == "" || actor.IsSystem() {
		return model.Reservation{}, apperr.New(apperr.Forbidden, op, "reservations need a signed in visitor")
	}
	if len(req.BoardGameIDs) == 0 {
		return model.Reservation{}, apperr.New(apperr.InvalidInput, op, "a reservation needs at least one board game")
	}

	r := model.Reservation{MadeBy: actor.ID, MadeOn: now.UTC(), NoteUser: req.NoteUser}
	for _, id := range req.BoardGameIDs {
		r.Items = append(r.Items, model.ReservationItem{BoardGameID: id, State: model.ItemNew})
	}

	err := e.store.Transaction(ctx, func(tx store.Store) error {
		missing, err := tx.MissingBoardGames(ctx, req.BoardGameIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return apperr.New(apperr.NotFound, op, "unknown board games %v", missing)
		}
		if err := tx.CreateReservation(ctx, &r); err != nil {
			return err
		}
		if err := eventlog.Append(ctx, tx, eventlog.Reservation(r.ID), EventCreated, actor.ID, now, map[string]any{
			"items": len(r.Items),
		}); err != nil {
			return err
		}
		for _, item := range r.Items {
			err := eventlog.Append(ctx, tx, eventlog.ReservationItem(item.ID), EventCreated, actor.ID, now, map[string]any{
				"boardGameId": item.BoardGameID,
				"state":       item.State,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return r, nil
}

// GetReservation returns a reservation to its owner or a manager. The
// internal note is blanked for everyone but managers.
func (e *Engine) GetReservation(ctx context.Context, actor auth.Actor, id int64) (model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if !OwnerOrManager.Allows(actor, r.MadeBy) {
		return model.Reservation{}, apperr.New(apperr.Forbidden, "reservation.GetReservation", "reservation %d belongs to someone else", id)
	}
	if !actor.IsManager() {
		r.NoteInternal = ""
	}
	return r, nil
}

// SetInternalNote replaces the manager-only note of a reservation.
func (e *Engine) SetInternalNote(ctx context.Context, now time.Time, actor auth.Actor, id int64, note string) (model.Reservation, error) {
	const op = "reservation.SetInternalNote"
	if !actor.IsManager() {
		return model.Reservation{}, apperr.New(apperr.Forbidden, op, "only managers may edit internal notes")
	}

	unlock, err := e.locker.Lock(ctx, lock.Key(model.EntityReservation, id))
	if err != nil {
		return model.Reservation{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	var r model.Reservation
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		r, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		r.NoteInternal = note
		if err := tx.UpdateReservation(ctx, &r); err != nil {
			return err
		}
		return eventlog.Append(ctx, tx, eventlog.Reservation(id), EventInternalNote, actor.ID, now, nil)
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return r, nil
}

// ItemHistory returns the event log of one item to its owner or a manager.
func (e *Engine) ItemHistory(ctx context.Context, actor auth.Actor, itemID int64) ([]eventlog.Record, error) {
	item, err := e.store.GetReservationItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	r, err := e.store.GetReservation(ctx, item.ReservationID)
	if err != nil {
		return nil, err
	}
	if !OwnerOrManager.Allows(actor, r.MadeBy) {
		return nil, apperr.New(apperr.Forbidden, "reservation.ItemHistory", "item %d belongs to someone else", itemID)
	}
	return eventlog.History(ctx, e.store, eventlog.ReservationItem(itemID))
}

// Assign moves a New item to Assigned with the given due date.
func (e *Engine) Assign(ctx context.Context, now time.Time, actor auth.Actor, itemID int64, dueDate time.Time) (model.ReservationItem, error) {
	return e.Transition(ctx, now, actor, itemID, Command{Action: ActionAssign, DueDate: &dueDate})
}

// Transition applies cmd to an item. The edge must exist for the item's
// current state (InvalidTransition), the actor must hold its capability
// (Forbidden) and due dates must lie ahead of now (InvalidDueDate). Nothing
// is written unless all checks pass.
func (e *Engine) Transition(ctx context.Context, now time.Time, actor auth.Actor, itemID int64, cmd Command) (model.ReservationItem, error) {
	const op = "reservation.Transition"
	now = now.UTC()

	unlock, err := e.locker.Lock(ctx, lock.Key(model.EntityReservationItem, itemID))
	if err != nil {
		return model.ReservationItem{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	var (
		item  model.ReservationItem
		owner string
	)
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		item, err = tx.GetReservationItem(ctx, itemID)
		if err != nil {
			return err
		}
		r, err := tx.GetReservation(ctx, item.ReservationID)
		if err != nil {
			return err
		}
		owner = r.MadeBy
		return apply(ctx, tx, now, actor, owner, &item, cmd)
	})
	if err != nil {
		return model.ReservationItem{}, err
	}

	if cmd.Action == ActionExpire {
		e.emitExpired(item, owner, now)
	}
	return item, nil
}

// apply validates and persists one transition inside tx.
func apply(ctx context.Context, tx store.Store, now time.Time, actor auth.Actor, owner string, item *model.ReservationItem, cmd Command) error {
	const op = "reservation.Transition"
	from := item.State
	rule, ok := Lookup(from, cmd.Action)
	if !ok {
		return apperr.New(apperr.InvalidTransition, op, "cannot %s an item in state %s", cmd.Action, from)
	}
	if !rule.Who.Allows(actor, owner) {
		return apperr.New(apperr.Forbidden, op, "%s requires %s", cmd.Action, rule.Who)
	}

	switch cmd.Action {
	case ActionAssign:
		if cmd.DueDate == nil || !cmd.DueDate.After(now) {
			return apperr.New(apperr.InvalidDueDate, op, "due date must be after %s", now)
		}
		due := cmd.DueDate.UTC()
		assignee := actor.ID
		item.DueDate = &due
		item.AssignedTo = &assignee
		item.DueSoonNotifiedAt = nil
	case ActionRequestExtension:
		if cmd.DueDate == nil || !cmd.DueDate.After(now) {
			return apperr.New(apperr.InvalidDueDate, op, "requested due date must be after %s", now)
		}
		if item.DueDate != nil && !cmd.DueDate.After(*item.DueDate) {
			return apperr.New(apperr.InvalidDueDate, op, "requested due date must be after the current due date %s", item.DueDate.UTC())
		}
		requested := cmd.DueDate.UTC()
		item.RequestedDueDate = &requested
	case ActionApproveExtension:
		if item.RequestedDueDate == nil || !item.RequestedDueDate.After(now) {
			return apperr.New(apperr.InvalidDueDate, op, "requested due date has already passed")
		}
		item.DueDate = item.RequestedDueDate
		item.RequestedDueDate = nil
		item.DueSoonNotifiedAt = nil
	case ActionRefuseExtension:
		item.RequestedDueDate = nil
	case ActionExpire:
		if item.DueDate == nil || !item.DueDate.Before(now) {
			return apperr.New(apperr.InvalidDueDate, op, "item %d is not overdue", item.ID)
		}
	}

	item.State = rule.To
	if err := tx.UpdateReservationItem(ctx, item); err != nil {
		return err
	}
	return eventlog.Append(ctx, tx, eventlog.ReservationItem(item.ID), string(cmd.Action), actor.ID, now, map[string]any{
		"from":    from,
		"to":      rule.To,
		"dueDate": item.DueDate,
	})
}

func (e *Engine) emitExpired(item model.ReservationItem, owner string, now time.Time) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(notification.NewEvent(notification.ItemExpired, item.ID, now, owner, map[string]any{
		"reservationId": item.ReservationID,
		"boardGameId":   item.BoardGameID,
		"dueDate":       *item.DueDate,
	}))
}
