package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"clubhouse-backend/internal/model"
)

func (s *gormStore) GetClubState(ctx context.Context, id int64) (model.ClubState, error) {
	var st model.ClubState
	err := s.db.WithContext(ctx).First(&st, id).Error
	return st, wrapErr("store.GetClubState", err)
}

// ListClubStatesActiveAfter returns entries whose effective interval has not
// ended by t, ordered by planned start.
func (s *gormStore) ListClubStatesActiveAfter(ctx context.Context, t time.Time) ([]model.ClubState, error) {
	var states []model.ClubState
	err := s.db.WithContext(ctx).
		Where("(actual_end IS NULL AND (planned_end IS NULL OR planned_end > ?)) OR actual_end > ?", t, t).
		Order("planned_start").
		Find(&states).Error
	return states, wrapErr("store.ListClubStatesActiveAfter", err)
}

// ListClubStatesBetween returns entries intersecting [from, to).
func (s *gormStore) ListClubStatesBetween(ctx context.Context, from, to time.Time) ([]model.ClubState, error) {
	var states []model.ClubState
	err := s.db.WithContext(ctx).
		Where("planned_start < ?", to).
		Where("(actual_end IS NULL AND (planned_end IS NULL OR planned_end > ?)) OR actual_end > ?", from, from).
		Order("planned_start").
		Find(&states).Error
	return states, wrapErr("store.ListClubStatesBetween", err)
}

// ListOverdueClubStates returns open entries whose planned end is before now.
func (s *gormStore) ListOverdueClubStates(ctx context.Context, now time.Time) ([]model.ClubState, error) {
	var states []model.ClubState
	err := s.db.WithContext(ctx).
		Where("actual_end IS NULL AND planned_end IS NOT NULL AND planned_end < ?", now).
		Order("planned_start").
		Find(&states).Error
	return states, wrapErr("store.ListOverdueClubStates", err)
}

func (s *gormStore) PredecessorOf(ctx context.Context, start time.Time, excludeID int64) (*model.ClubState, error) {
	return s.neighbour(ctx, "planned_start < ?", "planned_start DESC", start, excludeID)
}

func (s *gormStore) SuccessorOf(ctx context.Context, start time.Time, excludeID int64) (*model.ClubState, error) {
	return s.neighbour(ctx, "planned_start > ?", "planned_start", start, excludeID)
}

func (s *gormStore) neighbour(ctx context.Context, cond, order string, start time.Time, excludeID int64) (*model.ClubState, error) {
	var st model.ClubState
	err := s.db.WithContext(ctx).
		Where(cond, start).
		Where("id <> ?", excludeID).
		Order(order).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store.neighbour", err)
	}
	return &st, nil
}

func (s *gormStore) CreateClubState(ctx context.Context, st *model.ClubState) error {
	st.Version = 1
	return wrapErr("store.CreateClubState", s.db.WithContext(ctx).Create(st).Error)
}

// UpdateClubState saves every mutable column if the stored version still
// matches st.Version, then bumps st.Version.
func (s *gormStore) UpdateClubState(ctx context.Context, st *model.ClubState) error {
	const op = "store.UpdateClubState"
	res := s.db.WithContext(ctx).Model(&model.ClubState{}).
		Where("id = ? AND version = ?", st.ID, st.Version).
		Updates(map[string]any{
			"kind":               st.Kind,
			"planned_start":      st.PlannedStart,
			"planned_end":        st.PlannedEnd,
			"actual_end":         st.ActualEnd,
			"note":               st.Note,
			"internal_note":      st.InternalNote,
			"linked_event_id":    st.LinkedEventID,
			"closed_by":          st.ClosedBy,
			"following_state_id": st.FollowingStateID,
			"version":            st.Version + 1,
		})
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(op, "club state", st.ID, st.Version)
	}
	st.Version++
	return nil
}

// SuppressClubState soft deletes a template-derived entry.
func (s *gormStore) SuppressClubState(ctx context.Context, st *model.ClubState) error {
	const op = "store.SuppressClubState"
	res := s.db.WithContext(ctx).Where("version = ?", st.Version).Delete(st)
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(op, "club state", st.ID, st.Version)
	}
	return nil
}

func (s *gormStore) GetTemplate(ctx context.Context, id int64) (model.RepeatingState, error) {
	var t model.RepeatingState
	err := s.db.WithContext(ctx).First(&t, id).Error
	return t, wrapErr("store.GetTemplate", err)
}

func (s *gormStore) ListTemplates(ctx context.Context) ([]model.RepeatingState, error) {
	var ts []model.RepeatingState
	err := s.db.WithContext(ctx).Order("id").Find(&ts).Error
	return ts, wrapErr("store.ListTemplates", err)
}

func (s *gormStore) CreateTemplate(ctx context.Context, t *model.RepeatingState) error {
	t.Version = 1
	return wrapErr("store.CreateTemplate", s.db.WithContext(ctx).Create(t).Error)
}

func (s *gormStore) UpdateTemplate(ctx context.Context, t *model.RepeatingState) error {
	const op = "store.UpdateTemplate"
	res := s.db.WithContext(ctx).Model(&model.RepeatingState{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(map[string]any{
			"day_of_week":        t.DayOfWeek,
			"time_from":          t.TimeFrom,
			"time_to":            t.TimeTo,
			"kind":               t.Kind,
			"effective_from":     t.EffectiveFrom,
			"effective_to":       t.EffectiveTo,
			"note":               t.Note,
			"materialized_until": t.MaterializedUntil,
			"version":            t.Version + 1,
		})
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(op, "template", t.ID, t.Version)
	}
	t.Version++
	return nil
}

func (s *gormStore) GetCalendarEvent(ctx context.Context, id int64) (model.CalendarEvent, error) {
	var ev model.CalendarEvent
	err := s.db.WithContext(ctx).First(&ev, id).Error
	return ev, wrapErr("store.GetCalendarEvent", err)
}
