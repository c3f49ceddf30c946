package model

import "time"

// CalendarEvent is a public event managed outside the timeline. Club states
// only reference it by id.
type CalendarEvent struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	StartsAt  time.Time `gorm:"not null" json:"startsAt"`
	EndsAt    time.Time `gorm:"not null" json:"endsAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
