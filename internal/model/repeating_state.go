package model

import "time"

// RepeatingState is a weekly template that yields ClubState entries on demand.
// TimeFrom and TimeTo are "HH:MM" in the club's timezone; a TimeTo at or
// before TimeFrom ends on the following day.
type RepeatingState struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	DayOfWeek         int        `gorm:"not null" json:"dayOfWeek"` // time.Weekday
	TimeFrom          string     `gorm:"size:5;not null" json:"timeFrom"`
	TimeTo            string     `gorm:"size:5;not null" json:"timeTo"`
	Kind              StateKind  `gorm:"size:32;not null" json:"kind"`
	EffectiveFrom     time.Time  `gorm:"not null" json:"effectiveFrom"`
	EffectiveTo       *time.Time `json:"effectiveTo"`
	Note              string     `gorm:"size:1024" json:"note"`
	MadeBy            string     `gorm:"size:128;not null" json:"madeBy"`
	MaterializedUntil *time.Time `json:"materializedUntil"`
	Version           int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
