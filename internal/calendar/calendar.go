// Package calendar resolves the time windows of externally managed calendar
// events that club states may be linked to.
package calendar

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"clubhouse-backend/internal/model"
)

// Window is the [Start, End] span of a calendar event.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether [start, end] lies inside the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// Source loads calendar events. store.Store satisfies it.
type Source interface {
	GetCalendarEvent(ctx context.Context, id int64) (model.CalendarEvent, error)
}

// Calendar memoizes event windows for ttl. Events are read only from the
// club's point of view, so a short ttl is enough to absorb edits.
type Calendar struct {
	src   Source
	cache *cache.Cache
}

// New creates a Calendar. A ttl <= 0 disables memoization.
func New(src Source, ttl time.Duration) *Calendar {
	c := &Calendar{src: src}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

// EventWindow returns the window of the event with the given id. Missing
// events yield an apperr.NotFound from the source.
func (c *Calendar) EventWindow(ctx context.Context, id int64) (Window, error) {
	key := strconv.FormatInt(id, 10)
	if c.cache != nil {
		if w, found := c.cache.Get(key); found {
			return w.(Window), nil
		}
	}

	ev, err := c.src.GetCalendarEvent(ctx, id)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: ev.StartsAt.UTC(), End: ev.EndsAt.UTC()}
	if c.cache != nil {
		c.cache.Set(key, w, cache.DefaultExpiration)
	}
	return w, nil
}
