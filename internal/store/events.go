package store

import (
	"context"

	"clubhouse-backend/internal/model"
)

// AppendEvent assigns the next sequence number for the entity and inserts ev.
// Callers hold the entity's lock, the unique (entity, seq) index catches the rest.
func (s *gormStore) AppendEvent(ctx context.Context, ev *model.HistoryEvent) error {
	const op = "store.AppendEvent"
	var last int64
	err := s.db.WithContext(ctx).Model(&model.HistoryEvent{}).
		Where("entity_type = ? AND entity_id = ?", ev.EntityType, ev.EntityID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return wrapErr(op, err)
	}
	ev.Seq = last + 1
	return wrapErr(op, s.db.WithContext(ctx).Create(ev).Error)
}

func (s *gormStore) ListEvents(ctx context.Context, entityType string, entityID int64) ([]model.HistoryEvent, error) {
	var events []model.HistoryEvent
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("seq").
		Find(&events).Error
	return events, wrapErr("store.ListEvents", err)
}
