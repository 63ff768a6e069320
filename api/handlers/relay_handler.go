// api/handlers/relay_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ian-Chin/iunami-ai-extension/api/models"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
)

// RelayHandler forwards raw Notion API calls with the session's token.
type RelayHandler struct {
	Notion *notion.Client
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(notionClient *notion.Client) *RelayHandler {
	return &RelayHandler{Notion: notionClient}
}

// Relay handles POST /notion/relay. Notion failures are reported in the
// body with success=false and HTTP 200, matching the extension contract.
func (h *RelayHandler) Relay(c *gin.Context) {
	session := currentSession(c)

	var req models.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := h.Notion.Relay(c.Request.Context(), session.NotionToken, method, req.Endpoint, req.Body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
