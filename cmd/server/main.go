// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ian-Chin/iunami-ai-extension/api"    // Import router setup
	"github.com/Ian-Chin/iunami-ai-extension/config" // Import config loading
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage" // Import DB connection func
)

var (
	customLog = logger.NewLogger()
)

// In-flight requests get this long to finish on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	customLog.Println("Starting quick-add backend server...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		customLog.Fatalf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		customLog.Fatalf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// 2. Initialize Metadata Database Connection
	metaDB, err := storage.ConnectMetadataDB(cfg)
	if err != nil {
		customLog.Fatalf("Failed to initialize metadata database: %v", err)
		os.Exit(1)
	}
	defer func() {
		customLog.Println("Closing metadata database connection...")
		if err := metaDB.Close(); err != nil {
			customLog.Printf("Error closing metadata database: %v", err)
		}
	}()

	// 3. Setup Router (passing dependencies)
	router, err := api.SetupRouter(metaDB, cfg)
	if err != nil {
		customLog.Fatalf("Failed to set up router: %v", err)
	}

	// 4. Start Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		customLog.Printf("Server listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 5. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		customLog.Errorf("Failed to start server: %v", err)
		return
	case sig := <-quit:
		customLog.Printf("Received %s, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		customLog.Warnf("Server shutdown error: %v", err)
	}
}
