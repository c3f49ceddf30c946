package model

import "time"

// ItemState is the lifecycle state of a ReservationItem.
type ItemState string

const (
	ItemNew                ItemState = "new"
	ItemAssigned           ItemState = "assigned"
	ItemHandedOver         ItemState = "handed_over"
	ItemExtensionRequested ItemState = "extension_requested"
	ItemDone               ItemState = "done"
	ItemCancelled          ItemState = "cancelled"
	ItemExpired            ItemState = "expired"
)

// AllItemStates lists every item state in lifecycle order.
var AllItemStates = []ItemState{
	ItemNew, ItemAssigned, ItemHandedOver, ItemExtensionRequested,
	ItemDone, ItemCancelled, ItemExpired,
}

// Terminal reports whether no further user transitions are expected.
func (s ItemState) Terminal() bool {
	return s == ItemDone || s == ItemCancelled || s == ItemExpired
}

// Reservation is a visitor's request for one or more board games.
type Reservation struct {
	ID           int64             `gorm:"primaryKey" json:"id"`
	MadeBy       string            `gorm:"size:128;not null;index" json:"madeBy"`
	MadeOn       time.Time         `gorm:"not null" json:"madeOn"`
	NoteUser     string            `gorm:"size:1024" json:"noteUser"`
	NoteInternal string            `gorm:"size:1024" json:"noteInternal,omitempty"`
	Version      int64             `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	Items        []ReservationItem `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE" json:"items"`
}

// ReservationItem is one board game within a reservation.
type ReservationItem struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	ReservationID     int64      `gorm:"not null;index" json:"reservationId"`
	BoardGameID       int64      `gorm:"not null;index" json:"boardGameId"`
	Position          int        `gorm:"not null" json:"position"`
	State             ItemState  `gorm:"size:32;not null;index" json:"state"`
	DueDate           *time.Time `gorm:"index" json:"dueDate"`
	RequestedDueDate  *time.Time `json:"requestedDueDate"`
	AssignedTo        *string    `gorm:"size:128" json:"assignedTo"`
	DueSoonNotifiedAt *time.Time `json:"-"`
	Version           int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
