package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"clubhouse-backend/config"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/calendar"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/model"
	"clubhouse-backend/internal/reservation"
	"clubhouse-backend/internal/store"
	"clubhouse-backend/internal/testfixtures"
	"clubhouse-backend/internal/timeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const secret = "api-test-secret"

var (
	manager = auth.Actor{ID: "manager-1", Roles: []string{auth.RoleManager}}
	visitor = auth.Actor{ID: "visitor-1"}
)

type server struct {
	db       *gorm.DB
	router   *gin.Engine
	clock    *testfixtures.Clock
	timeline *timeline.Engine
	games    []int64
}

func newServer(t *testing.T, push *webpush.Options) *server {
	t.Helper()
	gormDB := testfixtures.NewSQLite(t)
	s := store.NewGormStore(gormDB)
	locker := lock.NewKeyedMutex()
	emitter := &testfixtures.Emitter{}
	clock := testfixtures.NewClock(time.Time{})

	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 30, CommandTimeoutSeconds: 5}
	timelineEngine := timeline.NewEngine(s, calendar.New(s, 0), locker, emitter, time.UTC, 0)
	router := NewRouter(cfg, auth.NewVerifier(secret, ""), Deps{
		Store:        s,
		Timeline:     timelineEngine,
		Reservations: reservation.NewEngine(s, locker, emitter, 0),
		WebPush:      push,
		Clock:        clock,
	})

	srv := &server{db: gormDB, router: router, clock: clock, timeline: timelineEngine}
	for _, name := range []string{"Dixit", "Codenames"} {
		g := model.BoardGame{Name: name}
		require.NoError(t, gormDB.Create(&g).Error)
		srv.games = append(srv.games, g.ID)
	}
	return srv
}

func (s *server) do(t *testing.T, method, path string, actor *auth.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := auth.NewVerifier(secret, "").Sign(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func at(day, hour int) time.Time {
	return time.Date(2024, time.January, day, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestPlanState(t *testing.T) {
	s := newServer(t, nil)
	req := timeline.PlanRequest{Kind: model.KindOpenBar, PlannedStart: at(10, 18), PlannedEnd: ptr(at(10, 23)), InternalNote: "keys at the bar"}

	t.Run("anonymous", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/states", nil, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("visitor", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/states", &visitor, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", decode[map[string]any](t, w)["kind"])
	})

	t.Run("manager", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/states", &manager, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		st := decode[model.ClubState](t, w)
		assert.Equal(t, model.KindOpenBar, st.Kind)
		assert.Equal(t, manager.ID, st.MadeBy)
	})

	t.Run("overlap", func(t *testing.T) {
		overlapping := timeline.PlanRequest{Kind: model.KindPrivate, PlannedStart: at(10, 20), PlannedEnd: ptr(at(10, 22))}
		w := s.do(t, http.MethodPost, "/api/states", &manager, overlapping)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "OVERLAP", decode[map[string]any](t, w)["kind"])
	})

	t.Run("inverted interval", func(t *testing.T) {
		inverted := timeline.PlanRequest{Kind: model.KindPrivate, PlannedStart: at(12, 20), PlannedEnd: ptr(at(12, 18))}
		w := s.do(t, http.MethodPost, "/api/states", &manager, inverted)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/states", &manager, "not an object")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTimelineHidesInternalNotes(t *testing.T) {
	s := newServer(t, nil)
	req := timeline.PlanRequest{Kind: model.KindOpenBar, PlannedStart: at(10, 18), PlannedEnd: ptr(at(10, 23)), InternalNote: "keys at the bar"}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/states", &manager, req).Code)

	query := "/api/states?" + url.Values{
		"from": {at(9, 0).Format(time.RFC3339)},
		"to":   {at(11, 0).Format(time.RFC3339)},
	}.Encode()

	w := s.do(t, http.MethodGet, query, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	states := decode[[]model.ClubState](t, w)
	require.Len(t, states, 1)
	assert.Empty(t, states[0].InternalNote)

	w = s.do(t, http.MethodGet, query, &manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	states = decode[[]model.ClubState](t, w)
	require.Len(t, states, 1)
	assert.Equal(t, "keys at the bar", states[0].InternalNote)

	w = s.do(t, http.MethodGet, "/api/states?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentStateAndClose(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/state/current", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.KindClosed, decode[model.ClubState](t, w).Kind)

	// Open-ended entry covering the clock's reference time.
	req := timeline.PlanRequest{Kind: model.KindOpenTearoom, PlannedStart: at(1, 10)}
	w = s.do(t, http.MethodPost, "/api/states", &manager, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	planned := decode[model.ClubState](t, w)

	w = s.do(t, http.MethodGet, "/api/state/current", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, planned.ID, decode[model.ClubState](t, w).ID)

	closePath := fmt.Sprintf("/api/states/%d/close", planned.ID)
	w = s.do(t, http.MethodPost, closePath, &manager, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode[model.ClubState](t, w)
	require.NotNil(t, closed.ActualEnd)
	assert.True(t, closed.ActualEnd.Equal(s.clock.Now()))

	w = s.do(t, http.MethodPost, closePath, &manager, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CLOSED", decode[map[string]any](t, w)["kind"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/states/%d/history", planned.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]map[string]any](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, "planned", history[0]["type"])
	assert.Equal(t, "closed", history[1]["type"])

	w = s.do(t, http.MethodGet, "/api/states/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/states/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentStateSeesSweeps(t *testing.T) {
	s := newServer(t, nil)

	req := timeline.PlanRequest{Kind: model.KindOpenBar, PlannedStart: at(1, 10), PlannedEnd: ptr(at(1, 13))}
	w := s.do(t, http.MethodPost, "/api/states", &manager, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	planned := decode[model.ClubState](t, w)

	w = s.do(t, http.MethodGet, "/api/state/current", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, planned.ID, decode[model.ClubState](t, w).ID)

	// The scheduler closes the entry without any HTTP write.
	now := s.clock.Advance(2 * time.Hour)
	require.NoError(t, s.timeline.Sweep(context.Background(), now))

	w = s.do(t, http.MethodGet, "/api/state/current", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := decode[model.ClubState](t, w)
	assert.Equal(t, model.KindClosed, current.Kind)
	assert.Zero(t, current.ID)
}

func TestTemplates(t *testing.T) {
	s := newServer(t, nil)
	req := timeline.TemplateRequest{
		DayOfWeek:     time.Friday,
		TimeFrom:      "18:00",
		TimeTo:        "23:00",
		Kind:          model.KindOpenBar,
		EffectiveFrom: at(1, 0),
	}

	w := s.do(t, http.MethodPost, "/api/templates", &visitor, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/templates", &manager, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tpl := decode[model.RepeatingState](t, w)

	req.TimeTo = "23:30"
	req.Version = tpl.Version + 5
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/templates/%d", tpl.ID), &manager, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req.Version = tpl.Version
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/templates/%d", tpl.ID), &manager, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/templates", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.RepeatingState](t, w), 1)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/templates/%d/history", tpl.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 2)
}

func TestReservationLifecycle(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/reservations", &visitor, reservation.CreateRequest{NoteUser: "for friday", BoardGameIDs: s.games})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	r := decode[model.Reservation](t, w)
	require.Len(t, r.Items, 2)
	itemID := r.Items[0].ID
	transition := fmt.Sprintf("/api/reservation_items/%d/transitions", itemID)

	w = s.do(t, http.MethodPost, transition, &visitor, reservation.Command{Action: reservation.ActionAssign, DueDate: ptr(at(8, 18))})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, transition, &manager, reservation.Command{Action: reservation.ActionAssign, DueDate: ptr(at(1, 6))})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_DUE_DATE", decode[map[string]any](t, w)["kind"])

	w = s.do(t, http.MethodPost, transition, &manager, reservation.Command{Action: reservation.ActionAssign, DueDate: ptr(at(8, 18))})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.ItemAssigned, decode[model.ReservationItem](t, w).State)

	w = s.do(t, http.MethodPost, transition, &manager, reservation.Command{Action: reservation.ActionReturn})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[map[string]any](t, w)["kind"])

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/reservations/%d/internal_note", r.ID), &manager, gin.H{"note": "regular"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/reservations/%d", r.ID), &visitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.Reservation](t, w).NoteInternal)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/reservations/%d", r.ID), &auth.Actor{ID: "visitor-2"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/reservation_items/%d/history", itemID), &visitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]map[string]any](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, "assign", history[1]["type"])
}

func TestCategories(t *testing.T) {
	s := newServer(t, nil)
	require.NoError(t, s.db.Create(&model.BoardGameCategory{Name: "Party"}).Error)

	w := s.do(t, http.MethodGet, "/api/categories", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cats := decode[[]model.BoardGameCategory](t, w)
	require.Len(t, cats, 1)
	assert.Equal(t, "Party", cats[0].Name)
}

func TestSubscriptions(t *testing.T) {
	s := newServer(t, nil)
	endpoint := "https://push.example.com/send/abc"
	get := "/api/subscriptions?endpoint=" + endpoint

	w := s.do(t, http.MethodPut, "/api/subscriptions", &visitor, gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/subscriptions", nil, gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/subscriptions", &visitor, gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Re-subscribing the same endpoint replaces the keys.
	w = s.do(t, http.MethodPut, "/api/subscriptions", &visitor, gin.H{"endpoint": endpoint, "p256dh": "key2", "auth": "secret2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stored model.PushSubscription
	require.NoError(t, s.db.First(&stored, "endpoint = ?", endpoint).Error)
	assert.Equal(t, "key2", stored.P256DH)
	assert.Equal(t, visitor.ID, stored.UserID)

	w = s.do(t, http.MethodGet, get, &visitor, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, get, &manager, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/subscriptions", &visitor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/subscriptions", &visitor, gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, get, &visitor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPushConfig(t *testing.T) {
	w := newServer(t, nil).do(t, http.MethodGet, "/api/push_config", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"web push is disabled"}`, w.Body.String())

	w = newServer(t, &webpush.Options{}).do(t, http.MethodGet, "/api/push_config", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = newServer(t, &webpush.Options{VAPIDPublicKey: "public", TTL: 3600}).do(t, http.MethodGet, "/api/push_config", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"application_server_key":"public","ttl_seconds":3600}`, w.Body.String())
}
