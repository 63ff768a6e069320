// api/middleware/session_middleware.go
package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Ian-Chin/iunami-ai-extension/internal/auth"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage"
)

// SessionMiddleware loads the session named by the JWT and unseals its
// Notion token. It must run after AuthMiddleware.
func SessionMiddleware(db *sql.DB, sealer *auth.TokenSealer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString("sessionId")

		session, sealed, err := storage.FindSession(c.Request.Context(), db, sessionID)
		if err != nil {
			_ = c.Error(err)
			if errors.Is(err, storage.ErrSessionNotFound) {
				// A valid JWT for a disconnected session
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session not found. Please reconnect your Notion workspace."})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected internal server error occurred."})
			return
		}

		token, err := sealer.Open(sealed)
		if err != nil {
			customLog.Warnf("SessionMiddleware: cannot open token of session %s: %v", sessionID, err)
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Stored Notion token is unreadable. Please reconnect."})
			return
		}
		session.NotionToken = token

		c.Set("session", session)
		c.Next()
	}
}

// RequestIDMiddleware tags every request with an X-Request-ID, reusing the
// caller's when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestId", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
