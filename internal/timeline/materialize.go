package timeline

import (
	"context"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/eventlog"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/store"
)

// MaterializeRepeats turns the template's slots up to until into concrete
// entries. Slots are produced once: the template's watermark advances to
// until and earlier slots are never revisited. Slots that already ended, or
// that overlap an existing entry, are skipped.
func (e *Engine) MaterializeRepeats(ctx context.Context, now time.Time, templateID int64, until time.Time) ([]model.ClubState, error) {
	const op = "timeline.MaterializeRepeats"
	now = now.UTC()
	until = until.UTC()

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	var created []model.ClubState
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		tpl, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		from := tpl.EffectiveFrom
		if tpl.MaterializedUntil != nil && tpl.MaterializedUntil.After(from) {
			from = *tpl.MaterializedUntil
		}
		if !from.Before(until) {
			return nil
		}

		slots, err := Slots(tpl, e.loc, from, until)
		if err != nil {
			return err
		}
		if len(slots) > 0 {
			existing, err := tx.ListClubStatesBetween(ctx, slots[0].Start, slots[len(slots)-1].End)
			if err != nil {
				return err
			}
			for _, slot := range slots {
				if !now.Before(slot.End) || occupied(existing, slot) {
					continue
				}
				st, err := materializeSlot(ctx, tx, now, tpl, slot)
				if err != nil {
					return err
				}
				existing = append(existing, st)
				created = append(created, st)
			}
		}

		tpl.MaterializedUntil = &until
		return tx.UpdateTemplate(ctx, &tpl)
	})
	if err != nil {
		return nil, err
	}

	for _, st := range created {
		if st.Covers(now) {
			e.emitStateChanged(st, now)
		}
	}
	return created, nil
}

// MaterializeAll materializes every template up to until. A failing template
// does not stop the others.
func (e *Engine) MaterializeAll(ctx context.Context, now, until time.Time) error {
	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return err
	}
	batch := &apperr.BatchError{Op: "timeline.MaterializeAll"}
	for _, tpl := range templates {
		if tpl.MaterializedUntil != nil && !tpl.MaterializedUntil.Before(until) {
			continue
		}
		if tpl.EffectiveTo != nil && tpl.MaterializedUntil != nil && !tpl.MaterializedUntil.Before(*tpl.EffectiveTo) {
			continue
		}
		if _, err := e.MaterializeRepeats(ctx, now, tpl.ID, until); err != nil {
			batch.Add(tpl.ID, err)
		}
	}
	return batch.ErrOrNil()
}

func occupied(existing []model.ClubState, slot Slot) bool {
	end := slot.End
	for _, st := range existing {
		if st.Overlaps(slot.Start, &end) {
			return true
		}
	}
	return false
}

func materializeSlot(ctx context.Context, tx store.Store, now time.Time, tpl model.RepeatingState, slot Slot) (model.ClubState, error) {
	end := slot.End
	tplID := tpl.ID
	st := model.ClubState{
		Kind:         tpl.Kind,
		PlannedStart: slot.Start,
		PlannedEnd:   &end,
		Note:         tpl.Note,
		TemplateID:   &tplID,
		MadeBy:       tpl.MadeBy,
	}
	if err := tx.CreateClubState(ctx, &st); err != nil {
		return model.ClubState{}, err
	}
	if err := relink(ctx, tx, &st); err != nil {
		return model.ClubState{}, err
	}
	err := eventlog.Append(ctx, tx, eventlog.ClubState(st.ID), EventMaterialized, auth.SystemActorID, now, map[string]any{
		"templateId":   tpl.ID,
		"plannedStart": st.PlannedStart,
		"plannedEnd":   st.PlannedEnd,
	})
	return st, err
}
