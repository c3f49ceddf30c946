package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/model"
)

// Store defines the persistence operations used by the engines. Saves use
// optimistic concurrency: an update whose Version no longer matches the row
// fails with apperr.Conflict.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a Store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetClubState(ctx context.Context, id int64) (model.ClubState, error)
	ListClubStatesActiveAfter(ctx context.Context, t time.Time) ([]model.ClubState, error)
	ListClubStatesBetween(ctx context.Context, from, to time.Time) ([]model.ClubState, error)
	ListOverdueClubStates(ctx context.Context, now time.Time) ([]model.ClubState, error)
	PredecessorOf(ctx context.Context, start time.Time, excludeID int64) (*model.ClubState, error)
	SuccessorOf(ctx context.Context, start time.Time, excludeID int64) (*model.ClubState, error)
	CreateClubState(ctx context.Context, s *model.ClubState) error
	UpdateClubState(ctx context.Context, s *model.ClubState) error
	SuppressClubState(ctx context.Context, s *model.ClubState) error

	GetTemplate(ctx context.Context, id int64) (model.RepeatingState, error)
	ListTemplates(ctx context.Context) ([]model.RepeatingState, error)
	CreateTemplate(ctx context.Context, t *model.RepeatingState) error
	UpdateTemplate(ctx context.Context, t *model.RepeatingState) error

	GetCalendarEvent(ctx context.Context, id int64) (model.CalendarEvent, error)

	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	GetReservationItem(ctx context.Context, id int64) (model.ReservationItem, error)
	ListItemsByState(ctx context.Context, state model.ItemState) ([]model.ReservationItem, error)
	UpdateReservationItem(ctx context.Context, item *model.ReservationItem) error
	MissingBoardGames(ctx context.Context, ids []int64) ([]int64, error)
	ListCategories(ctx context.Context) ([]model.BoardGameCategory, error)

	AppendEvent(ctx context.Context, ev *model.HistoryEvent) error
	ListEvents(ctx context.Context, entityType string, entityID int64) ([]model.HistoryEvent, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for collaborators outside the engines.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction implements Store.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
	return wrapErr("store.Transaction", err)
}

// wrapErr maps database failures onto engine error kinds. Errors that already
// carry a kind pass through untouched.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	var batch *apperr.BatchError
	if errors.As(err, &batch) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation {
		return apperr.Wrap(apperr.Overlap, op, err)
	}
	return apperr.Wrap(apperr.DependencyUnavailable, op, err)
}

// sqlStateExclusionViolation is raised by the club_states_no_overlap constraint.
const sqlStateExclusionViolation = "23P01"

func conflict(op string, kind string, id int64, version int64) error {
	return apperr.New(apperr.Conflict, op, "%s %d changed since version %d", kind, id, version)
}
