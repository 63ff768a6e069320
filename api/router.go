// api/router.go
package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Ian-Chin/iunami-ai-extension/api/handlers"
	"github.com/Ian-Chin/iunami-ai-extension/api/middleware" // Import middleware package
	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/auth"
	"github.com/Ian-Chin/iunami-ai-extension/internal/cache"
	"github.com/Ian-Chin/iunami-ai-extension/internal/entry"
	"github.com/Ian-Chin/iunami-ai-extension/internal/llm"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
)

// Per-IP budget for the whole API.
const (
	globalRateLimit  = 120
	globalRateWindow = time.Minute
)

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(metaDB *sql.DB, cfg *config.Config) (*gin.Engine, error) {
	sealer, err := auth.NewTokenSealer(cfg.TokenSealingKey)
	if err != nil {
		return nil, fmt.Errorf("token sealing: %w", err)
	}
	schemaCache, err := cache.NewSchemaCache(cfg.SchemaCacheSize)
	if err != nil {
		return nil, err
	}

	notionClient := notion.NewClient(notion.Options{
		BaseURL:   cfg.NotionAPIURL,
		Version:   cfg.NotionVersion,
		RateLimit: cfg.NotionRateLimit,
	})
	scanner := notion.NewScanner(notionClient, cfg.ScanMaxDepth, cfg.ScanConcurrency)
	llmClient := llm.NewClient(llm.Config{
		APIKey:  cfg.AIAPIKey,
		BaseURL: cfg.AIAPIURL,
		Model:   cfg.AIModel,
	})

	entries, err := entry.NewService(metaDB, notionClient, llm.NewExtractor(llmClient), schemaCache, entry.Options{
		ParseTimeout:     cfg.ParseTimeout,
		InteractionLimit: cfg.InteractionLimit,
	})
	if err != nil {
		return nil, err
	}

	useJSONFieldNames()

	router := gin.Default() // Includes Logger and Recovery

	router.Use(middleware.RequestIDMiddleware())
	router.Use(cors.New(corsConfig(cfg)))

	// Setting up a per-IP rate-limiter
	ratelimiter := middleware.NewRateLimiter(globalRateLimit, globalRateWindow)
	router.Use(middleware.RateLimitMiddleware(ratelimiter, middleware.ByIP))
	// It should run after basic middleware like Logger/Recovery
	// but before the routing happens, so it wraps the handlers.
	router.Use(middleware.ErrorHandler())

	// Initialize Handlers
	sessionHandler := handlers.NewSessionHandler(metaDB, cfg, notionClient, sealer)
	dashboardHandler := handlers.NewDashboardHandler(metaDB, cfg, notionClient, scanner)
	entryHandler := handlers.NewEntryHandler(entries)
	relayHandler := handlers.NewRelayHandler(notionClient)

	// The model is the expensive call; it gets its own per-session budget
	parseLimiter := middleware.NewRateLimiter(cfg.ParseRateLimit, time.Minute)
	parseLimit := middleware.RateLimitMiddleware(parseLimiter, middleware.BySession)

	// --- Public Routes ---
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/connect", sessionHandler.Connect)
	}

	// --- Protected Routes ---
	apiRoutes := router.Group("/api/v1")
	// Apply AuthMiddleware first for protected routes
	apiRoutes.Use(middleware.AuthMiddleware(cfg), middleware.SessionMiddleware(metaDB, sealer))
	{
		apiRoutes.GET("/session", sessionHandler.GetSession)
		apiRoutes.DELETE("/session", sessionHandler.DeleteSession)
		apiRoutes.GET("/settings", sessionHandler.GetSettings)
		apiRoutes.PATCH("/settings", sessionHandler.UpdateSettings)

		apiRoutes.GET("/dashboards", dashboardHandler.ListDashboards)
		apiRoutes.POST("/dashboards", dashboardHandler.CreateDashboard)
		apiRoutes.POST("/dashboards/:dashboard_id/refresh", dashboardHandler.RefreshDashboard)
		apiRoutes.DELETE("/dashboards/:dashboard_id", dashboardHandler.DeleteDashboard)

		apiRoutes.GET("/dashboards/:dashboard_id/databases/:database_id/schema", entryHandler.Schema)
		apiRoutes.POST("/dashboards/:dashboard_id/databases/:database_id/entries", entryHandler.Begin)
		apiRoutes.POST("/dashboards/:dashboard_id/databases/:database_id/quick", parseLimit, entryHandler.Quick)

		apiRoutes.GET("/entries/:interaction_id", entryHandler.Get)
		apiRoutes.POST("/entries/:interaction_id/parse", parseLimit, entryHandler.Parse)
		apiRoutes.POST("/entries/:interaction_id/submit", entryHandler.Submit)
		apiRoutes.DELETE("/entries/:interaction_id", entryHandler.Cancel)

		apiRoutes.POST("/notion/relay", relayHandler.Relay)
	}

	return router, nil
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowedOrigins
	corsCfg.AllowWildcard = true
	corsCfg.AllowBrowserExtensions = true
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsCfg.ExposeHeaders = []string{"X-Request-ID"}
	corsCfg.MaxAge = 12 * time.Hour
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"chrome-extension://*"}
	}
	return corsCfg
}

// useJSONFieldNames makes binding errors name fields as clients send them.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
}
