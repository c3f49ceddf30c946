package store

import (
	"context"

	"gorm.io/gorm"

	"clubhouse-backend/internal/model"
)

// CreateReservation inserts the reservation together with its items.
func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	r.Version = 1
	for i := range r.Items {
		r.Items[i].Version = 1
		r.Items[i].Position = i
	}
	return wrapErr("store.CreateReservation", s.db.WithContext(ctx).Create(r).Error)
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&r, id).Error
	return r, wrapErr("store.GetReservation", err)
}

func (s *gormStore) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	const op = "store.UpdateReservation"
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ? AND version = ?", r.ID, r.Version).
		Updates(map[string]any{
			"note_user":     r.NoteUser,
			"note_internal": r.NoteInternal,
			"version":       r.Version + 1,
		})
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(op, "reservation", r.ID, r.Version)
	}
	r.Version++
	return nil
}

func (s *gormStore) GetReservationItem(ctx context.Context, id int64) (model.ReservationItem, error) {
	var item model.ReservationItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	return item, wrapErr("store.GetReservationItem", err)
}

func (s *gormStore) ListItemsByState(ctx context.Context, state model.ItemState) ([]model.ReservationItem, error) {
	var items []model.ReservationItem
	err := s.db.WithContext(ctx).Where("state = ?", state).Order("id").Find(&items).Error
	return items, wrapErr("store.ListItemsByState", err)
}

func (s *gormStore) UpdateReservationItem(ctx context.Context, item *model.ReservationItem) error {
	const op = "store.UpdateReservationItem"
	res := s.db.WithContext(ctx).Model(&model.ReservationItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"state":                item.State,
			"due_date":             item.DueDate,
			"requested_due_date":   item.RequestedDueDate,
			"assigned_to":          item.AssignedTo,
			"due_soon_notified_at": item.DueSoonNotifiedAt,
			"version":              item.Version + 1,
		})
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(op, "reservation item", item.ID, item.Version)
	}
	item.Version++
	return nil
}

// MissingBoardGames returns the ids in ids that have no catalog entry.
func (s *gormStore) MissingBoardGames(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	if err := s.db.WithContext(ctx).Model(&model.BoardGame{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, wrapErr("store.MissingBoardGames", err)
	}
	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *gormStore) ListCategories(ctx context.Context) ([]model.BoardGameCategory, error) {
	var cats []model.BoardGameCategory
	err := s.db.WithContext(ctx).Order("name").Find(&cats).Error
	return cats, wrapErr("store.ListCategories", err)
}
