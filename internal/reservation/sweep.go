package reservation

import (
	"context"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/notification"
	"clubhouse-backend/internal/store"
)

// Sweep expires every handed over item whose due date is before now and
// reminds borrowers whose due date is near. Each item is handled on its own
// and re-read under its lock, so repeating a sweep with the same now changes
// nothing and emits nothing. Failures are collected into an
// *apperr.BatchError.
func (e *Engine) Sweep(ctx context.Context, now time.Time) error {
	now = now.UTC()
	batch := &apperr.BatchError{Op: "reservation.Sweep"}

	items, err := e.store.ListItemsByState(ctx, model.ItemHandedOver)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.DueDate == nil {
			continue
		}
		switch {
		case item.DueDate.Before(now):
			if err := e.expire(ctx, now, item.ID); err != nil {
				batch.Add(item.ID, err)
			}
		case e.dueSoon > 0 && item.DueSoonNotifiedAt == nil && item.DueDate.Sub(now) <= e.dueSoon:
			if err := e.remind(ctx, now, item.ID); err != nil {
				batch.Add(item.ID, err)
			}
		}
	}
	return batch.ErrOrNil()
}

func (e *Engine) expire(ctx context.Context, now time.Time, itemID int64) error {
	unlock, err := e.locker.Lock(ctx, lock.Key(model.EntityReservationItem, itemID))
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "reservation.expire", err)
	}
	defer unlock()

	var (
		item    model.ReservationItem
		owner   string
		expired bool
	)
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		item, err = tx.GetReservationItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.State != model.ItemHandedOver || item.DueDate == nil || !item.DueDate.Before(now) {
			return nil
		}
		r, err := tx.GetReservation(ctx, item.ReservationID)
		if err != nil {
			return err
		}
		owner = r.MadeBy
		expired = true
		return apply(ctx, tx, now, auth.System, owner, &item, Command{Action: ActionExpire})
	})
	if err != nil {
		return err
	}
	if expired {
		e.emitExpired(item, owner, now)
	}
	return nil
}

func (e *Engine) remind(ctx context.Context, now time.Time, itemID int64) error {
	unlock, err := e.locker.Lock(ctx, lock.Key(model.EntityReservationItem, itemID))
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "reservation.remind", err)
	}
	defer unlock()

	var (
		item  model.ReservationItem
		owner string
		due   bool
	)
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		item, err = tx.GetReservationItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.State != model.ItemHandedOver || item.DueDate == nil || item.DueSoonNotifiedAt != nil {
			return nil
		}
		r, err := tx.GetReservation(ctx, item.ReservationID)
		if err != nil {
			return err
		}
		owner = r.MadeBy
		due = true
		item.DueSoonNotifiedAt = &now
		return tx.UpdateReservationItem(ctx, &item)
	})
	if err != nil {
		return err
	}
	if due && e.emitter != nil {
		e.emitter.Emit(notification.NewEvent(notification.ItemDueSoon, item.ID, now, owner, map[string]any{
			"reservationId": item.ReservationID,
			"boardGameId":   item.BoardGameID,
			"dueDate":       *item.DueDate,
		}))
	}
	return nil
}
