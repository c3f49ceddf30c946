package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/calendar"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/notification"
	"clubhouse-backend/internal/store"
	"clubhouse-backend/internal/testfixtures"
)

var (
	manager = auth.Actor{ID: "manager-1", Roles: []string{auth.RoleManager}}
	visitor = auth.Actor{ID: "visitor-1"}
)

type fixture struct {
	db      *gorm.DB
	store   store.Store
	engine  *Engine
	emitter *testfixtures.Emitter
}

func newFixture(t *testing.T, horizon time.Duration) *fixture {
	t.Helper()
	gormDB := testfixtures.NewSQLite(t)
	s := store.NewGormStore(gormDB)
	emitter := &testfixtures.Emitter{}
	return &fixture{
		db:      gormDB,
		store:   s,
		emitter: emitter,
		engine:  NewEngine(s, calendar.New(s, 0), lock.NewKeyedMutex(), emitter, time.UTC, horizon),
	}
}

// jan returns an instant in January 2024, UTC.
func jan(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func (f *fixture) plan(t *testing.T, now time.Time, kind model.StateKind, start time.Time, end *time.Time) model.ClubState {
	t.Helper()
	st, err := f.engine.Plan(context.Background(), now, manager, PlanRequest{Kind: kind, PlannedStart: start, PlannedEnd: end})
	require.NoError(t, err)
	return st
}

func TestPlan_RejectsOverlap(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := jan(1, 12, 0)

	f.plan(t, now, model.KindOpenBar, jan(10, 18, 0), ptr(jan(10, 23, 0)))

	_, err := f.engine.Plan(ctx, now, manager, PlanRequest{
		Kind:         model.KindOpenEvent,
		PlannedStart: jan(10, 20, 0),
		PlannedEnd:   ptr(jan(10, 22, 0)),
	})
	assert.ErrorIs(t, err, apperr.ErrOverlap)

	all, err := f.store.ListClubStatesBetween(ctx, jan(1, 0, 0), jan(31, 0, 0))
	require.NoError(t, err)
	assert.Len(t, all, 1, "a rejected plan leaves nothing behind")
}

func TestPlan_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := jan(1, 12, 0)

	event := model.CalendarEvent{Name: "Game night", StartsAt: jan(12, 17, 0), EndsAt: jan(12, 23, 0)}
	require.NoError(t, f.db.Create(&event).Error)
	missing := int64(999)

	testCases := []struct {
		name  string
		actor auth.Actor
		req   PlanRequest
		kind  apperr.Kind
	}{
		{
			name:  "non manager",
			actor: visitor,
			req:   PlanRequest{Kind: model.KindOpenBar, PlannedStart: jan(10, 18, 0)},
			kind:  apperr.Forbidden,
		},
		{
			name:  "unknown kind",
			actor: manager,
			req:   PlanRequest{Kind: "disco", PlannedStart: jan(10, 18, 0)},
			kind:  apperr.InvalidInput,
		},
		{
			name:  "end before start",
			actor: manager,
			req:   PlanRequest{Kind: model.KindOpenBar, PlannedStart: jan(10, 18, 0), PlannedEnd: ptr(jan(10, 17, 0))},
			kind:  apperr.InvalidTime,
		},
		{
			name:  "empty interval",
			actor: manager,
			req:   PlanRequest{Kind: model.KindOpenBar, PlannedStart: jan(10, 18, 0), PlannedEnd: ptr(jan(10, 18, 0))},
			kind:  apperr.InvalidTime,
		},
		{
			name:  "unknown linked event",
			actor: manager,
			req:   PlanRequest{Kind: model.KindOpenEvent, PlannedStart: jan(12, 18, 0), PlannedEnd: ptr(jan(12, 22, 0)), LinkedEventID: &missing},
			kind:  apperr.NotFound,
		},
		{
			name:  "outside linked event",
			actor: manager,
			req:   PlanRequest{Kind: model.KindOpenEvent, PlannedStart: jan(12, 16, 0), PlannedEnd: ptr(jan(12, 22, 0)), LinkedEventID: &event.ID},
			kind:  apperr.InvalidTime,
		},
		{
			name:  "open ended linked entry",
			actor: manager,
			req:   PlanRequest{Kind: model.KindOpenEvent, PlannedStart: jan(12, 18, 0), LinkedEventID: &event.ID},
			kind:  apperr.InvalidTime,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Plan(ctx, now, tc.actor, tc.req)
			assert.Equal(t, tc.kind, apperr.KindOf(err), "%v", err)
		})
	}

	st, err := f.engine.Plan(ctx, now, manager, PlanRequest{
		Kind:          model.KindOpenEvent,
		PlannedStart:  jan(12, 17, 0),
		PlannedEnd:    ptr(jan(12, 23, 0)),
		LinkedEventID: &event.ID,
	})
	require.NoError(t, err, "the event window bounds are inclusive")
	assert.Equal(t, event.ID, *st.LinkedEventID)
}

func TestPlan_LinksFollowingState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := jan(1, 12, 0)

	late := f.plan(t, now, model.KindOpenBar, jan(20, 18, 0), ptr(jan(20, 23, 0)))
	early := f.plan(t, now, model.KindOpenTearoom, jan(5, 14, 0), ptr(jan(5, 18, 0)))
	middle := f.plan(t, now, model.KindPrivate, jan(12, 10, 0), ptr(jan(12, 20, 0)))

	reload := func(id int64) model.ClubState {
		st, err := f.store.GetClubState(ctx, id)
		require.NoError(t, err)
		return st
	}

	require.NotNil(t, reload(early.ID).FollowingStateID)
	assert.Equal(t, middle.ID, *reload(early.ID).FollowingStateID)
	require.NotNil(t, reload(middle.ID).FollowingStateID)
	assert.Equal(t, late.ID, *reload(middle.ID).FollowingStateID)
	assert.Nil(t, reload(late.ID).FollowingStateID)
}

func TestPlan_EmitsWhenCurrent(t *testing.T) {
	f := newFixture(t, 0)
	now := jan(10, 19, 0)

	f.plan(t, now, model.KindOpenBar, jan(11, 18, 0), ptr(jan(11, 23, 0)))
	assert.Empty(t, f.emitter.OfKind(notification.StateChanged))

	current := f.plan(t, now, model.KindOpenBar, jan(10, 18, 0), ptr(jan(10, 23, 0)))
	events := f.emitter.OfKind(notification.StateChanged)
	require.Len(t, events, 1)
	assert.Equal(t, current.ID, events[0].EntityID)
	assert.Empty(t, events[0].Recipient)
}

func TestCloseState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := jan(10, 20, 0)

	st := f.plan(t, jan(1, 12, 0), model.KindOpenBar, jan(10, 18, 0), ptr(jan(10, 23, 0)))

	_, err := f.engine.CloseState(ctx, now, visitor, st.ID, jan(10, 21, 0))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.engine.CloseState(ctx, now, manager, st.ID, jan(10, 17, 0))
	assert.ErrorIs(t, err, apperr.ErrInvalidTime)

	_, err = f.engine.CloseState(ctx, now, manager, 404, jan(10, 21, 0))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	closed, err := f.engine.CloseState(ctx, now, manager, st.ID, jan(10, 21, 0))
	require.NoError(t, err)
	require.NotNil(t, closed.ActualEnd)
	assert.True(t, closed.ActualEnd.Equal(jan(10, 21, 0)))
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, manager.ID, *closed.ClosedBy)
	assert.Len(t, f.emitter.OfKind(notification.StateChanged), 1)

	_, err = f.engine.CloseState(ctx, now, manager, st.ID, jan(10, 21, 0))
	assert.ErrorIs(t, err, apperr.ErrAlreadyClosed)

	history, err := f.engine.History(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, EventPlanned, history[0].Type)
	assert.Equal(t, EventClosed, history[1].Type)
	assert.Equal(t, manager.ID, history[1].Actor)
}

func TestCloseState_ExtendingPastPlannedEnd(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := jan(10, 22, 0)

	first := f.plan(t, jan(1, 12, 0), model.KindOpenBar, jan(10, 18, 0), ptr(jan(10, 23, 0)))
	f.plan(t, jan(1, 12, 0), model.KindPrivate, jan(11, 0, 0), ptr(jan(11, 4, 0)))

	_, err := f.engine.CloseState(ctx, now, manager, first.ID, jan(11, 1, 0))
	assert.ErrorIs(t, err, apperr.ErrOverlap)

	closed, err := f.engine.CloseState(ctx, now, manager, first.ID, jan(10, 23, 30))
	require.NoError(t, err)
	assert.True(t, closed.ActualEnd.Equal(jan(10, 23, 30)))
}

func TestCurrentState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	cur, err := f.engine.CurrentState(ctx, jan(10, 19, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur.ID)
	assert.Equal(t, model.KindClosed, cur.Kind)
	assert.Nil(t, cur.PlannedEnd)

	st := f.plan(t, jan(1, 12, 0), model.KindOpenBar, jan(10, 18, 0), ptr(jan(10, 23, 0)))

	cur, err = f.engine.CurrentState(ctx, jan(10, 19, 0))
	require.NoError(t, err)
	assert.Equal(t, st.ID, cur.ID)

	cur, err = f.engine.CurrentState(ctx, jan(10, 23, 0))
	require.NoError(t, err)
	assert.Equal(t, model.KindClosed, cur.Kind, "the planned end is exclusive")

	cur, err = f.engine.CurrentState(ctx, jan(10, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, model.KindClosed, cur.Kind)
	require.NotNil(t, cur.PlannedEnd)
	assert.True(t, cur.PlannedEnd.Equal(jan(10, 18, 0)), "closed until the next entry starts")
}

func TestCurrentState_FallsBackToTemplateSlot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tpl, err := f.engine.CreateTemplate(ctx, jan(1, 12, 0), manager, TemplateRequest{
		DayOfWeek:     time.Wednesday,
		TimeFrom:      "18:00",
		TimeTo:        "23:00",
		Kind:          model.KindOpenBar,
		EffectiveFrom: jan(1, 0, 0),
	})
	require.NoError(t, err)

	// 2024-01-10 is a Wednesday.
	cur, err := f.engine.CurrentState(ctx, jan(10, 19, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur.ID)
	assert.Equal(t, model.KindOpenBar, cur.Kind)
	require.NotNil(t, cur.TemplateID)
	assert.Equal(t, tpl.ID, *cur.TemplateID)

	f.plan(t, jan(1, 12, 0), model.KindPrivate, jan(10, 20, 0), ptr(jan(10, 21, 0)))
	cur, err = f.engine.CurrentState(ctx, jan(10, 19, 0))
	require.NoError(t, err)
	assert.Equal(t, model.KindClosed, cur.Kind, "a manual entry shadows the whole slot")
}
