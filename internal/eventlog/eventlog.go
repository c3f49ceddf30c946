// Package eventlog records the append-only history of club states,
// templates, reservations and reservation items. Entries are never updated
// or reordered once written.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/model"
)

// Ref names an entity whose history is tracked.
type Ref struct {
	Type string
	ID   int64
}

// ClubState returns the Ref of a timeline entry.
func ClubState(id int64) Ref { return Ref{Type: model.EntityClubState, ID: id} }

// Template returns the Ref of a repeating-state template.
func Template(id int64) Ref { return Ref{Type: model.EntityRepeatingState, ID: id} }

// Reservation returns the Ref of a reservation.
func Reservation(id int64) Ref { return Ref{Type: model.EntityReservation, ID: id} }

// ReservationItem returns the Ref of a reservation item.
func ReservationItem(id int64) Ref { return Ref{Type: model.EntityReservationItem, ID: id} }

// Appender is the write side of the store used by Append.
type Appender interface {
	AppendEvent(ctx context.Context, ev *model.HistoryEvent) error
}

// Reader is the read side of the store used by History.
type Reader interface {
	ListEvents(ctx context.Context, entityType string, entityID int64) ([]model.HistoryEvent, error)
}

// Record is a decoded history entry.
type Record struct {
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Append writes one entry. It must run inside the same transaction as the
// mutation it describes.
func Append(ctx context.Context, a Appender, ref Ref, typ, actor string, at time.Time, payload map[string]any) error {
	var raw string
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return apperr.Wrap(apperr.InvalidInput, "eventlog.Append", err)
		}
		raw = string(b)
	}
	return a.AppendEvent(ctx, &model.HistoryEvent{
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Type:       typ,
		Actor:      actor,
		Timestamp:  at.UTC(),
		Payload:    raw,
	})
}

// History returns the entity's entries in append order.
func History(ctx context.Context, r Reader, ref Ref) ([]Record, error) {
	events, err := r.ListEvents(ctx, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(events))
	for _, ev := range events {
		rec := Record{Seq: ev.Seq, Type: ev.Type, Actor: ev.Actor, Timestamp: ev.Timestamp}
		if ev.Payload != "" {
			if err := json.Unmarshal([]byte(ev.Payload), &rec.Payload); err != nil {
				return nil, apperr.Wrap(apperr.DependencyUnavailable, "eventlog.History", err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
