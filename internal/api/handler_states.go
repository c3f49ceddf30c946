package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clubhouse-backend/internal/timeline"
)

// GetCurrentState handles GET /api/state/current.
func (h *Handler) GetCurrentState(c *gin.Context) {
	st, err := h.timeline.CurrentState(c.Request.Context(), h.clock.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	if !actorOf(c).IsManager() {
		st.InternalNote = ""
	}
	c.JSON(http.StatusOK, st)
}

// GetTimeline handles GET /api/states?from=&to=. Both bounds are RFC3339;
// the default window is the coming week.
func (h *Handler) GetTimeline(c *gin.Context) {
	now := h.clock.Now()
	from, to := now, now.AddDate(0, 0, 7)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' timestamp format. Use RFC3339."})
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' timestamp format. Use RFC3339."})
			return
		}
		to = t
	}

	ctx, cancel := h.command(c)
	defer cancel()
	states, err := h.timeline.Timeline(ctx, now, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if !actorOf(c).IsManager() {
		for i := range states {
			states[i].InternalNote = ""
		}
	}
	c.JSON(http.StatusOK, states)
}

// GetState handles GET /api/states/:id.
func (h *Handler) GetState(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	st, err := h.timeline.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !actorOf(c).IsManager() {
		st.InternalNote = ""
	}
	c.JSON(http.StatusOK, st)
}

// GetStateHistory handles GET /api/states/:id/history.
func (h *Handler) GetStateHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.timeline.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// PlanState handles POST /api/states.
func (h *Handler) PlanState(c *gin.Context) {
	var req timeline.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	st, err := h.timeline.Plan(ctx, h.clock.Now(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

type closeStateRequest struct {
	ActualEnd *time.Time `json:"actualEnd"`
}

// CloseState handles POST /api/states/:id/close. Without an actual end the
// entry is closed now.
func (h *Handler) CloseState(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req closeStateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	now := h.clock.Now()
	actualEnd := now
	if req.ActualEnd != nil {
		actualEnd = *req.ActualEnd
	}

	ctx, cancel := h.command(c)
	defer cancel()
	st, err := h.timeline.CloseState(ctx, now, actorOf(c), id, actualEnd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
