// api/models/auth_models.go
package models

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

// --- Session Request/Response Structs ---

// ConnectRequest defines the structure for connecting a Notion workspace
type ConnectRequest struct {
	NotionToken string `json:"notion_token" binding:"required"`
}

// ConnectResponse is returned after a successful connect
type ConnectResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Session *domain.Session `json:"session"`
}

// UpdateSettingsRequest holds the optional settings a client may change
type UpdateSettingsRequest struct {
	Theme         *string `json:"theme"`
	HasSeenSplash *bool   `json:"has_seen_splash"`
}

// SettingsResponse is the persisted settings view
type SettingsResponse struct {
	Theme         string `json:"theme"`
	HasSeenSplash bool   `json:"has_seen_splash"`
}

// --- JWT Claims ---

// SessionClaims includes standard claims and the session id
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}
