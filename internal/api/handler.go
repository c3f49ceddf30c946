package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"clubhouse-backend/internal/apperr"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/mw"
	"clubhouse-backend/internal/reservation"
	"clubhouse-backend/internal/scheduler"
	"clubhouse-backend/internal/store"
	"clubhouse-backend/internal/timeline"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	timeline     *timeline.Engine
	reservations *reservation.Engine
	webpush      *webpush.Options
	clock        scheduler.Clock
	timeout      time.Duration
}

// Deps bundles what the handlers need.
type Deps struct {
	Store        store.Store
	Timeline     *timeline.Engine
	Reservations *reservation.Engine
	WebPush      *webpush.Options
	Clock        scheduler.Clock
	// Timeout bounds each command; zero means no limit beyond the request's.
	Timeout time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	clock := d.Clock
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	return &Handler{
		store:        d.Store,
		timeline:     d.Timeline,
		reservations: d.Reservations,
		webpush:      d.WebPush,
		clock:        clock,
		timeout:      d.Timeout,
	}
}

// command returns the request context bounded by the command timeout.
func (h *Handler) command(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func actorOf(c *gin.Context) auth.Actor {
	actor, _ := mw.ActorFrom(c)
	return actor
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// statusFor maps engine error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidTransition, apperr.AlreadyClosed, apperr.Overlap, apperr.Conflict:
		return http.StatusConflict
	case apperr.InvalidDueDate, apperr.InvalidTime:
		return http.StatusUnprocessableEntity
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.DependencyUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind := apperr.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
