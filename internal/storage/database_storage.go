// internal/storage/database_storage.go
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Driver registration

	"github.com/Ian-Chin/iunami-ai-extension/config" // Import config package
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ConnectMetadataDB initializes the connection pool for the metadata SQLite database
// and ensures the required tables ('sessions', 'dashboards') exist.
func ConnectMetadataDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
	customLog.Printf("Storage: Initializing metadata database: %s", dbPath)

	// Ensure the data directory exists
	if err := os.MkdirAll(cfg.MetadataDbDir, 0o750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Foreign keys for the session cascade, WAL and a 5s busy timeout for concurrent handlers
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		customLog.Warnf("Storage: Failed to open metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}

	// Verify connection is working
	if err = db.Ping(); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to connect to metadata db: %w", err)
	}
	customLog.Println("Storage: Metadata database connection successful.")

	// --- Ensure 'sessions' table exists ---
	// nolint:gosec // G101 false positive - sealed_token is a column name
	createSessionsTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY NOT NULL,
		sealed_token TEXT NOT NULL,
		workspace_name TEXT NOT NULL DEFAULT '',
		bot_id TEXT NOT NULL DEFAULT '',
		theme TEXT NOT NULL DEFAULT 'white',
		has_seen_splash INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = db.Exec(createSessionsTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create sessions table: %v", err)
		return nil, fmt.Errorf("failed to ensure sessions table: %w", err)
	}
	customLog.Println("Storage: Sessions table ensured.")

	// --- Ensure 'dashboards' table exists ---
	createDashboardsTableSQL := `
	CREATE TABLE IF NOT EXISTS dashboards (
		dashboard_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		icon TEXT,
		databases TEXT NOT NULL DEFAULT '[]',
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, dashboard_id),
		FOREIGN KEY (owner_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);`
	if _, err = db.Exec(createDashboardsTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create dashboards table: %v", err)
		return nil, fmt.Errorf("failed to ensure dashboards table: %w", err)
	}
	customLog.Println("Storage: Dashboards table ensured.")

	return db, nil
}
