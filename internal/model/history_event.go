package model

import "time"

// Entity types recorded in the event log.
const (
	EntityClubState       = "club_state"
	EntityRepeatingState  = "repeating_state"
	EntityReservation     = "reservation"
	EntityReservationItem = "reservation_item"
)

// HistoryEvent is one append-only entry of an entity's history. For
// reservation items these are the ReservationItemEvents.
type HistoryEvent struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:32;not null;uniqueIndex:idx_history_entity_seq" json:"entityType"`
	EntityID   int64     `gorm:"not null;uniqueIndex:idx_history_entity_seq" json:"entityId"`
	Seq        int64     `gorm:"not null;uniqueIndex:idx_history_entity_seq" json:"seq"`
	Type       string    `gorm:"size:64;not null" json:"type"`
	Actor      string    `gorm:"size:128;not null" json:"actor"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
	Payload    string    `gorm:"type:text" json:"payload"`
}
