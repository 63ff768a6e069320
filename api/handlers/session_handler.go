// api/handlers/session_handler.go
package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Ian-Chin/iunami-ai-extension/api/models"
	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/auth" // Import internal auth logic
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage" // Import storage functions/errors
)

var (
	customLog = logger.NewLogger()
)

// ErrInvalidTheme is returned for theme names that are not identifiers.
var ErrInvalidTheme = errors.New("invalid theme name")

// SessionHandler holds dependencies for session and settings handlers.
type SessionHandler struct {
	DB     *sql.DB        // Metadata DB connection pool
	Cfg    *config.Config // Application configuration
	Notion *notion.Client
	Sealer *auth.TokenSealer
}

// NewSessionHandler creates a new SessionHandler with dependencies.
func NewSessionHandler(db *sql.DB, cfg *config.Config, notionClient *notion.Client, sealer *auth.TokenSealer) *SessionHandler {
	return &SessionHandler{
		DB:     db,
		Cfg:    cfg,
		Notion: notionClient,
		Sealer: sealer,
	}
}

// Connect validates a Notion integration token and opens a session.
func (h *SessionHandler) Connect(c *gin.Context) {
	var req models.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Connect binding error: %v", err)
		_ = c.Error(err)
		return
	}
	token := strings.TrimSpace(req.NotionToken)

	// The token is only accepted once Notion confirms it
	user, err := h.Notion.GetSelf(c.Request.Context(), token)
	if err != nil {
		customLog.Warnf("Connect: Notion rejected token: %v", err)
		_ = c.Error(err)
		return
	}

	sealed, err := h.Sealer.Seal(token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	session := &domain.Session{
		SessionID:     uuid.NewString(),
		NotionToken:   token,
		WorkspaceName: user.WorkspaceName(),
		BotID:         user.ID,
	}
	if err := storage.CreateSession(c.Request.Context(), h.DB, session, sealed); err != nil {
		_ = c.Error(err)
		return
	}

	// Re-read for server-side defaults such as created_at
	stored, _, err := storage.FindSession(c.Request.Context(), h.DB, session.SessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	tokenString, err := auth.GenerateJWT(session.SessionID, h.Cfg.JWTSecret, h.Cfg.JWTExpiration)
	if err != nil {
		customLog.Warnf("Failed to generate JWT for session %s: %v", session.SessionID, err)
		_ = c.Error(err)
		return
	}

	customLog.Printf("Connected workspace %q as session %s", stored.WorkspaceName, stored.SessionID)
	c.JSON(http.StatusCreated, models.ConnectResponse{Message: "Connected successfully", Token: tokenString, Session: stored})
}

// GetSession returns the current session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c))
}

// DeleteSession disconnects the workspace and forgets its dashboards.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	session := currentSession(c)
	if err := storage.DeleteSession(c.Request.Context(), h.DB, session.SessionID); err != nil {
		_ = c.Error(err)
		return
	}
	customLog.Printf("Session %s disconnected", session.SessionID)
	c.Status(http.StatusNoContent)
}

// GetSettings returns the persisted settings.
func (h *SessionHandler) GetSettings(c *gin.Context) {
	session := currentSession(c)
	c.JSON(http.StatusOK, models.SettingsResponse{Theme: session.Theme, HasSeenSplash: session.HasSeenSplash})
}

// UpdateSettings changes the theme and/or first-run flag.
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	session := currentSession(c)

	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if req.Theme != nil && !core.IsValidIdentifier(*req.Theme) {
		_ = c.Error(ErrInvalidTheme)
		return
	}

	if err := storage.UpdateSettings(c.Request.Context(), h.DB, session.SessionID, req.Theme, req.HasSeenSplash); err != nil {
		_ = c.Error(err)
		return
	}

	updated, _, err := storage.FindSession(c.Request.Context(), h.DB, session.SessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.SettingsResponse{Theme: updated.Theme, HasSeenSplash: updated.HasSeenSplash})
}

// currentSession returns the session loaded by the session middleware.
func currentSession(c *gin.Context) *domain.Session {
	return c.MustGet("session").(*domain.Session)
}
