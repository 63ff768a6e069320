// internal/storage/metadata_storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

// Specific errors for metadata operations
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrDashboardNotFound   = errors.New("dashboard not found for this session")
	ErrDashboardExists     = errors.New("dashboard is already connected")
	ErrConstraintViolation = errors.New("constraint violation")
)

// --- Session Operations ---

// CreateSession inserts a new session. The Notion token must already be sealed.
func CreateSession(ctx context.Context, db *sql.DB, session *domain.Session, sealedToken string) error {
	sqlStatement := `INSERT INTO sessions (session_id, sealed_token, workspace_name, bot_id, theme, has_seen_splash) VALUES (?, ?, ?, ?, ?, ?)`
	theme := session.Theme
	if theme == "" {
		theme = domain.DefaultTheme
	}
	_, err := db.ExecContext(ctx, sqlStatement, session.SessionID, sealedToken, session.WorkspaceName, session.BotID, theme, session.HasSeenSplash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrSessionExists
		}
		customLog.Warnf("Storage: Failed to insert session %s: %v", session.SessionID, err)
		return fmt.Errorf("database error during session creation: %w", err)
	}
	session.Theme = theme
	return nil
}

// FindSession retrieves a session and its sealed Notion token.
func FindSession(ctx context.Context, db *sql.DB, sessionID string) (*domain.Session, string, error) {
	sqlStatement := `SELECT session_id, sealed_token, workspace_name, bot_id, theme, has_seen_splash, created_at FROM sessions WHERE session_id = ? LIMIT 1`
	row := db.QueryRowContext(ctx, sqlStatement, sessionID)

	var (
		session     domain.Session
		sealedToken string
	)
	err := row.Scan(&session.SessionID, &sealedToken, &session.WorkspaceName, &session.BotID, &session.Theme, &session.HasSeenSplash, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrSessionNotFound
		}
		customLog.Warnf("Storage: Failed to find session %s: %v", sessionID, err)
		return nil, "", fmt.Errorf("database error finding session: %w", err)
	}
	return &session, sealedToken, nil
}

// UpdateSettings changes the theme and/or first-run flag. Nil fields are left alone.
func UpdateSettings(ctx context.Context, db *sql.DB, sessionID string, theme *string, hasSeenSplash *bool) error {
	// Build dynamic UPDATE query based on provided fields
	setClauses := []string{}
	args := []interface{}{}

	if theme != nil {
		setClauses = append(setClauses, "theme = ?")
		args = append(args, *theme)
	}
	if hasSeenSplash != nil {
		setClauses = append(setClauses, "has_seen_splash = ?")
		args = append(args, *hasSeenSplash)
	}

	if len(setClauses) == 0 {
		// Nothing to update, but the session must still exist
		_, _, err := FindSession(ctx, db, sessionID)
		return err
	}

	args = append(args, sessionID)
	// nolint:gosec // setClauses only contains hardcoded column names
	sqlStatement := fmt.Sprintf("UPDATE sessions SET %s WHERE session_id = ?", strings.Join(setClauses, ", "))

	result, err := db.ExecContext(ctx, sqlStatement, args...)
	if err != nil {
		customLog.Warnf("Storage: Failed to update settings for session %s: %v", sessionID, err)
		return fmt.Errorf("database error during settings update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm settings update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteSession removes a session; its dashboards go with it.
func DeleteSession(ctx context.Context, db *sql.DB, sessionID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		customLog.Warnf("Storage: Error deleting session %s: %v", sessionID, err)
		return fmt.Errorf("database error deleting session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		customLog.Warnf("Storage: Error getting RowsAffected for delete session %s: %v", sessionID, err)
		return fmt.Errorf("failed confirming session deletion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}
