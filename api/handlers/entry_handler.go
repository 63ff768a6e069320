// api/handlers/entry_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ian-Chin/iunami-ai-extension/api/models"
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/entry"
)

// EntryHandler exposes the entry flow.
type EntryHandler struct {
	Entries *entry.Service
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries *entry.Service) *EntryHandler {
	return &EntryHandler{Entries: entries}
}

// Begin handles POST /dashboards/:dashboard_id/databases/:database_id/entries.
func (h *EntryHandler) Begin(c *gin.Context) {
	session := currentSession(c)

	var req models.BeginEntryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
	}
	mode, err := entry.ParseMode(req.Mode)
	if err != nil {
		_ = c.Error(err)
		return
	}

	snap, err := h.Entries.Begin(c.Request.Context(), session,
		core.CanonicalID(c.Param("dashboard_id")), c.Param("database_id"), mode)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// Schema handles GET /dashboards/:dashboard_id/databases/:database_id/schema.
func (h *EntryHandler) Schema(c *gin.Context) {
	session := currentSession(c)

	result, err := h.Entries.Schema(c.Request.Context(), session,
		core.CanonicalID(c.Param("dashboard_id")), c.Param("database_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /entries/:interaction_id.
func (h *EntryHandler) Get(c *gin.Context) {
	session := currentSession(c)

	snap, err := h.Entries.Get(session.SessionID, c.Param("interaction_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Parse handles POST /entries/:interaction_id/parse.
func (h *EntryHandler) Parse(c *gin.Context) {
	session := currentSession(c)

	var req models.ParseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	loc, err := entry.ResolveLocation(req.Timezone, req.UTCOffsetMinutes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	snap, err := h.Entries.Parse(c.Request.Context(), session, c.Param("interaction_id"), req.Text, loc)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Submit handles POST /entries/:interaction_id/submit.
func (h *EntryHandler) Submit(c *gin.Context) {
	session := currentSession(c)

	var req models.SubmitEntryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
	}

	var values core.ValueMap
	if req.Values != nil {
		values = core.ValueMap(req.Values)
	}

	page, err := h.Entries.Submit(c.Request.Context(), session, c.Param("interaction_id"), values)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Saved to Notion", "page": page})
}

// Cancel handles DELETE /entries/:interaction_id.
func (h *EntryHandler) Cancel(c *gin.Context) {
	session := currentSession(c)

	if err := h.Entries.Cancel(session.SessionID, c.Param("interaction_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Quick handles POST /dashboards/:dashboard_id/databases/:database_id/quick.
func (h *EntryHandler) Quick(c *gin.Context) {
	session := currentSession(c)

	var req models.ParseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	loc, err := entry.ResolveLocation(req.Timezone, req.UTCOffsetMinutes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.Entries.Quick(c.Request.Context(), session,
		core.CanonicalID(c.Param("dashboard_id")), c.Param("database_id"), req.Text, loc)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
