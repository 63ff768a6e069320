// api/handlers/dashboard_handler.go
package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ian-Chin/iunami-ai-extension/api/models"
	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage"
)

const untitledDashboard = "Untitled Dashboard"

// DashboardHandler holds dependencies for dashboard handlers.
type DashboardHandler struct {
	MetaDB  *sql.DB        // Metadata DB pool
	Cfg     *config.Config // App configuration
	Notion  *notion.Client
	Scanner *notion.Scanner
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(metaDB *sql.DB, cfg *config.Config, notionClient *notion.Client, scanner *notion.Scanner) *DashboardHandler {
	return &DashboardHandler{
		MetaDB:  metaDB,
		Cfg:     cfg,
		Notion:  notionClient,
		Scanner: scanner,
	}
}

// ListDashboards handles GET /dashboards with limit, offset, sort and order.
func (h *DashboardHandler) ListDashboards(c *gin.Context) {
	session := currentSession(c)

	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}

	dashboards, err := storage.ListDashboards(c.Request.Context(), h.MetaDB, session.SessionID, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.DashboardListResponse{Dashboards: dashboards, Limit: opts.Limit, Offset: opts.Offset})
}

// CreateDashboard connects a Notion page and discovers its databases.
func (h *DashboardHandler) CreateDashboard(c *gin.Context) {
	session := currentSession(c)

	var req models.CreateDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	pageID, err := core.ExtractNotionID(req.Page)
	if err != nil {
		_ = c.Error(err)
		return
	}

	dashboard, err := h.inspectPage(c, session, pageID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := storage.CreateDashboard(c.Request.Context(), h.MetaDB, dashboard); err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Handler: Added dashboard %q (%d databases) for session %s", dashboard.Name, len(dashboard.Databases), session.SessionID)
	c.JSON(http.StatusCreated, dashboard)
}

// RefreshDashboard re-reads the page and its databases. The revision bump
// makes the entry flow reload schemas.
func (h *DashboardHandler) RefreshDashboard(c *gin.Context) {
	session := currentSession(c)
	dashboardID := core.CanonicalID(c.Param("dashboard_id"))

	if _, err := storage.FindDashboard(c.Request.Context(), h.MetaDB, session.SessionID, dashboardID); err != nil {
		_ = c.Error(err)
		return
	}

	fresh, err := h.inspectPage(c, session, dashboardID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	dashboard, err := storage.ReplaceDashboardContents(c.Request.Context(), h.MetaDB, session.SessionID, dashboardID, fresh.Name, fresh.Icon, fresh.Databases)
	if err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Handler: Refreshed dashboard %s to revision %d", dashboardID, dashboard.Revision)
	c.JSON(http.StatusOK, dashboard)
}

// DeleteDashboard forgets a dashboard. Nothing is deleted in Notion.
func (h *DashboardHandler) DeleteDashboard(c *gin.Context) {
	session := currentSession(c)
	dashboardID := core.CanonicalID(c.Param("dashboard_id"))

	if err := storage.DeleteDashboard(c.Request.Context(), h.MetaDB, session.SessionID, dashboardID); err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Handler: Removed dashboard %s for session %s", dashboardID, session.SessionID)
	c.JSON(http.StatusOK, gin.H{"message": "Dashboard removed"})
}

// inspectPage reads the page title and icon and scans it for databases.
func (h *DashboardHandler) inspectPage(c *gin.Context, session *domain.Session, pageID string) (*domain.Dashboard, error) {
	ctx := c.Request.Context()

	page, err := h.Notion.GetPage(ctx, session.NotionToken, pageID)
	if err != nil {
		return nil, err
	}

	databases, err := h.Scanner.Scan(ctx, session.NotionToken, pageID)
	if err != nil {
		return nil, err
	}

	name := page.Title()
	if name == "" {
		name = untitledDashboard
	}

	return &domain.Dashboard{
		DashboardID: pageID,
		OwnerID:     session.SessionID,
		Name:        name,
		Icon:        page.Icon.ToDomain(),
		Databases:   databases,
	}, nil
}
