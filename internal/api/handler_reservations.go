package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhouse-backend/internal/reservation"
)

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req reservation.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	r, err := h.reservations.CreateReservation(ctx, h.clock.Now(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GetReservation handles GET /api/reservations/:id.
func (h *Handler) GetReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.reservations.GetReservation(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type internalNoteRequest struct {
	Note string `json:"note"`
}

// SetInternalNote handles PUT /api/reservations/:id/internal_note.
func (h *Handler) SetInternalNote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req internalNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	r, err := h.reservations.SetInternalNote(ctx, h.clock.Now(), actorOf(c), id, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// TransitionItem handles POST /api/reservation_items/:id/transitions.
func (h *Handler) TransitionItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var cmd reservation.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	item, err := h.reservations.Transition(ctx, h.clock.Now(), actorOf(c), id, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetItemHistory handles GET /api/reservation_items/:id/history.
func (h *Handler) GetItemHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.reservations.ItemHistory(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(c *gin.Context) {
	cats, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}
