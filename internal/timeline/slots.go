package timeline

import (
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/parse"
)

// Slot is one concrete occurrence of a weekly template.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Slots expands tpl into the occurrences that start in [from, until), clipped
// to the template's effective range. Wall-clock times are resolved in loc and
// returned in UTC.
func Slots(tpl model.RepeatingState, loc *time.Location, from, until time.Time) ([]Slot, error) {
	const op = "timeline.Slots"
	if loc == nil {
		loc = time.UTC
	}
	tFrom, err := parse.ParseClock(tpl.TimeFrom)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, op, err)
	}
	tTo, err := parse.ParseClock(tpl.TimeTo)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, op, err)
	}
	overnight := tTo.Minutes() <= tFrom.Minutes()

	lower := from
	if tpl.EffectiveFrom.After(lower) {
		lower = tpl.EffectiveFrom
	}
	upper := until
	if tpl.EffectiveTo != nil && tpl.EffectiveTo.Before(upper) {
		upper = *tpl.EffectiveTo
	}
	if !lower.Before(upper) {
		return nil, nil
	}

	var slots []Slot
	y, m, d := lower.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for ; day.Before(upper); day = day.AddDate(0, 0, 1) {
		if int(day.Weekday()) != tpl.DayOfWeek {
			continue
		}
		y, m, d := day.Date()
		start := tFrom.On(y, m, d, loc)
		if start.Before(lower) || !start.Before(upper) {
			continue
		}
		endDay := day
		if overnight {
			endDay = day.AddDate(0, 0, 1)
		}
		ey, em, ed := endDay.Date()
		slots = append(slots, Slot{Start: start.UTC(), End: tTo.On(ey, em, ed, loc).UTC()})
	}
	return slots, nil
}
