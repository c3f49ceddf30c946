package model

import (
	"time"

	"gorm.io/gorm"
)

// StateKind is the usage mode of the club.
type StateKind string

const (
	KindOpenBar     StateKind = "open_bar"
	KindOpenEvent   StateKind = "open_event"
	KindPrivate     StateKind = "private"
	KindOpenTearoom StateKind = "open_tearoom"
	KindClosed      StateKind = "closed"
)

// Valid reports whether k is one of the known kinds.
func (k StateKind) Valid() bool {
	switch k {
	case KindOpenBar, KindOpenEvent, KindPrivate, KindOpenTearoom, KindClosed:
		return true
	}
	return false
}

// ClubState is one entry of the club's operational timeline.
type ClubState struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	Kind             StateKind  `gorm:"size:32;not null" json:"kind"`
	PlannedStart     time.Time  `gorm:"not null;index" json:"plannedStart"`
	PlannedEnd       *time.Time `json:"plannedEnd"`
	ActualEnd        *time.Time `gorm:"index" json:"actualEnd"`
	Note             string     `gorm:"size:1024" json:"note"`
	InternalNote     string     `gorm:"size:1024" json:"internalNote,omitempty"`
	LinkedEventID    *int64     `gorm:"index" json:"linkedEventId"`
	TemplateID       *int64     `gorm:"index" json:"templateId"` // set when materialized from a RepeatingState
	MadeBy           string     `gorm:"size:128;not null" json:"madeBy"`
	ClosedBy         *string    `gorm:"size:128" json:"closedBy"`
	FollowingStateID *int64     `json:"followingStateId"`
	Version          int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	// Suppressed template-derived entries are soft deleted.
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// EffectiveEnd is ActualEnd when closed, otherwise PlannedEnd. Nil means open ended.
func (s ClubState) EffectiveEnd() *time.Time {
	if s.ActualEnd != nil {
		return s.ActualEnd
	}
	return s.PlannedEnd
}

// Covers reports whether t falls in [PlannedStart, EffectiveEnd).
func (s ClubState) Covers(t time.Time) bool {
	if t.Before(s.PlannedStart) {
		return false
	}
	end := s.EffectiveEnd()
	return end == nil || t.Before(*end)
}

// Overlaps reports whether the half-open interval [start, end) intersects the
// entry's effective interval. A nil end is unbounded.
func (s ClubState) Overlaps(start time.Time, end *time.Time) bool {
	if end != nil && !s.PlannedStart.Before(*end) {
		return false
	}
	own := s.EffectiveEnd()
	return own == nil || start.Before(*own)
}

// IsTemplateDerived reports whether the entry was materialized from a template.
func (s ClubState) IsTemplateDerived() bool {
	return s.TemplateID != nil
}
