package timeline

import (
	"context"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/eventlog"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/parse"
	"clubhouse-backend/internal/store"
)

// History event types appended for templates.
const (
	EventTemplateCreated = "created"
	EventTemplateUpdated = "updated"
)

// TemplateRequest describes a weekly template. Day, when set, takes
// precedence over DayOfWeek and accepts names such as "fri". Version, when
// non-zero, must match the stored template on update.
type TemplateRequest struct {
	DayOfWeek     time.Weekday    `json:"dayOfWeek"`
	Day           string          `json:"day,omitempty"`
	TimeFrom      string          `json:"timeFrom"`
	TimeTo        string          `json:"timeTo"`
	Kind          model.StateKind `json:"kind"`
	EffectiveFrom time.Time       `json:"effectiveFrom"`
	EffectiveTo   *time.Time      `json:"effectiveTo"`
	Note          string          `json:"note"`
	Version       int64           `json:"version"`
}

func (r TemplateRequest) apply(op string, tpl *model.RepeatingState) error {
	if r.Day != "" {
		d, err := parse.ParseWeekday(r.Day)
		if err != nil {
			return apperr.Wrap(apperr.InvalidInput, op, err)
		}
		r.DayOfWeek = d
	}
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return apperr.New(apperr.InvalidInput, op, "day of week %d out of range", r.DayOfWeek)
	}
	if !r.Kind.Valid() {
		return apperr.New(apperr.InvalidInput, op, "unknown state kind %q", r.Kind)
	}
	from, err := parse.ParseClock(r.TimeFrom)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	to, err := parse.ParseClock(r.TimeTo)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	if r.EffectiveFrom.IsZero() {
		return apperr.New(apperr.InvalidInput, op, "effective from is required")
	}
	effFrom := r.EffectiveFrom.UTC()
	var effTo *time.Time
	if r.EffectiveTo != nil {
		t := r.EffectiveTo.UTC()
		if !effFrom.Before(t) {
			return apperr.New(apperr.InvalidTime, op, "effective from %s is not before effective to %s", effFrom, t)
		}
		effTo = &t
	}

	tpl.DayOfWeek = int(r.DayOfWeek)
	tpl.TimeFrom = from.String()
	tpl.TimeTo = to.String()
	tpl.Kind = r.Kind
	tpl.EffectiveFrom = effFrom
	tpl.EffectiveTo = effTo
	tpl.Note = r.Note
	return nil
}

func templatePayload(tpl model.RepeatingState) map[string]any {
	return map[string]any{
		"dayOfWeek":     tpl.DayOfWeek,
		"timeFrom":      tpl.TimeFrom,
		"timeTo":        tpl.TimeTo,
		"kind":          tpl.Kind,
		"effectiveFrom": tpl.EffectiveFrom,
		"effectiveTo":   tpl.EffectiveTo,
	}
}

// ListTemplates returns every template.
func (e *Engine) ListTemplates(ctx context.Context) ([]model.RepeatingState, error) {
	return e.store.ListTemplates(ctx)
}

// TemplateHistory returns the event log of one template.
func (e *Engine) TemplateHistory(ctx context.Context, id int64) ([]eventlog.Record, error) {
	if _, err := e.store.GetTemplate(ctx, id); err != nil {
		return nil, err
	}
	return eventlog.History(ctx, e.store, eventlog.Template(id))
}

// CreateTemplate stores a new weekly template. Nothing is materialized until
// the timeline is queried forward or swept.
func (e *Engine) CreateTemplate(ctx context.Context, now time.Time, actor auth.Actor, req TemplateRequest) (model.RepeatingState, error) {
	const op = "timeline.CreateTemplate"
	if !actor.IsManager() {
		return model.RepeatingState{}, apperr.New(apperr.Forbidden, op, "only managers may edit templates")
	}
	tpl := model.RepeatingState{MadeBy: actor.ID}
	if err := req.apply(op, &tpl); err != nil {
		return model.RepeatingState{}, err
	}

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return model.RepeatingState{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	err = e.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateTemplate(ctx, &tpl); err != nil {
			return err
		}
		return eventlog.Append(ctx, tx, eventlog.Template(tpl.ID), EventTemplateCreated, actor.ID, now, templatePayload(tpl))
	})
	if err != nil {
		return model.RepeatingState{}, err
	}
	return tpl, nil
}

// UpdateTemplate edits a template. Already materialized entries keep their
// times; the edit applies to slots beyond the materialization watermark.
func (e *Engine) UpdateTemplate(ctx context.Context, now time.Time, actor auth.Actor, id int64, req TemplateRequest) (model.RepeatingState, error) {
	const op = "timeline.UpdateTemplate"
	if !actor.IsManager() {
		return model.RepeatingState{}, apperr.New(apperr.Forbidden, op, "only managers may edit templates")
	}

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		return model.RepeatingState{}, apperr.Wrap(apperr.DependencyUnavailable, op, err)
	}
	defer unlock()

	var tpl model.RepeatingState
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		tpl, err = tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if req.Version != 0 && req.Version != tpl.Version {
			return apperr.New(apperr.Conflict, op, "template %d is at version %d, not %d", id, tpl.Version, req.Version)
		}
		if err := req.apply(op, &tpl); err != nil {
			return err
		}
		if err := tx.UpdateTemplate(ctx, &tpl); err != nil {
			return err
		}
		return eventlog.Append(ctx, tx, eventlog.Template(tpl.ID), EventTemplateUpdated, actor.ID, now, templatePayload(tpl))
	})
	if err != nil {
		return model.RepeatingState{}, err
	}
	return tpl, nil
}
