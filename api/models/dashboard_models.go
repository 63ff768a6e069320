// api/models/dashboard_models.go
package models

import (
	"encoding/json"

	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

// --- Dashboard Request/Response Structs ---

// CreateDashboardRequest connects a Notion page by URL or id
type CreateDashboardRequest struct {
	Page string `json:"page" binding:"required"`
}

// DashboardListResponse is a page of dashboards
type DashboardListResponse struct {
	Dashboards []domain.Dashboard `json:"dashboards"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// --- Entry Request Structs ---

// BeginEntryRequest opens an entry on a dashboard database
type BeginEntryRequest struct {
	Mode string `json:"mode" binding:"omitempty,oneof=ai manual"`
}

// ParseEntryRequest carries the natural-language description and the
// user's zone, which dates like "tomorrow" are resolved in. Timezone is an
// IANA name; UTCOffsetMinutes (east of UTC) is used when it is absent.
type ParseEntryRequest struct {
	Text             string `json:"text" binding:"required,max=4000"`
	Timezone         string `json:"timezone" binding:"omitempty,max=64"`
	UTCOffsetMinutes *int   `json:"utc_offset_minutes"`
}

// SubmitEntryRequest carries the values to write; omit to use the preview
type SubmitEntryRequest struct {
	Values map[string]any `json:"values"`
}

// --- Relay Structs ---

// RelayRequest mirrors the extension's background message
type RelayRequest struct {
	Endpoint string          `json:"endpoint" binding:"required"`
	Method   string          `json:"method"`
	Body     json.RawMessage `json:"body"`
}
