package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhouse-backend/internal/timeline"
)

// ListTemplates handles GET /api/templates.
func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.timeline.ListTemplates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

// CreateTemplate handles POST /api/templates.
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req timeline.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	tpl, err := h.timeline.CreateTemplate(ctx, h.clock.Now(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// UpdateTemplate handles PUT /api/templates/:id.
func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req timeline.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.command(c)
	defer cancel()
	tpl, err := h.timeline.UpdateTemplate(ctx, h.clock.Now(), actorOf(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// GetTemplateHistory handles GET /api/templates/:id/history.
func (h *Handler) GetTemplateHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.timeline.TemplateHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
