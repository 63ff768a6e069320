// internal/storage/dashboard_storage.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
)

const dashboardColumns = `dashboard_id, owner_id, name, icon, databases, revision, created_at, updated_at`

// --- Dashboard Operations ---

// CreateDashboard stores a newly connected page. Database refs are deduplicated first.
func CreateDashboard(ctx context.Context, db *sql.DB, dashboard *domain.Dashboard) error {
	dashboard.Databases = domain.DedupeDatabases(dashboard.Databases)
	iconJSON, databasesJSON, err := encodeDashboardContents(dashboard.Icon, dashboard.Databases)
	if err != nil {
		return err
	}

	insertSQL := `INSERT INTO dashboards (dashboard_id, owner_id, name, icon, databases, revision) VALUES (?, ?, ?, ?, ?, 1)`
	_, err = db.ExecContext(ctx, insertSQL, dashboard.DashboardID, dashboard.OwnerID, dashboard.Name, iconJSON, databasesJSON)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
				return ErrSessionNotFound
			}
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return ErrDashboardExists
			}
			customLog.Warnf("Storage: Constraint violation creating dashboard %s for session %s: %v", dashboard.DashboardID, dashboard.OwnerID, err)
			return ErrConstraintViolation
		}
		customLog.Warnf("Storage: Failed to insert dashboard %s for session %s: %v", dashboard.DashboardID, dashboard.OwnerID, err)
		return fmt.Errorf("database error creating dashboard: %w", err)
	}

	stored, err := FindDashboard(ctx, db, dashboard.OwnerID, dashboard.DashboardID)
	if err != nil {
		return err
	}
	*dashboard = *stored
	return nil
}

// FindDashboard retrieves one dashboard owned by the session.
func FindDashboard(ctx context.Context, db *sql.DB, ownerID, dashboardID string) (*domain.Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE owner_id = ? AND dashboard_id = ? LIMIT 1`
	dashboard, err := scanDashboard(db.QueryRowContext(ctx, query, ownerID, dashboardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDashboardNotFound
		}
		customLog.Warnf("Storage: Error finding dashboard %s for session %s: %v", dashboardID, ownerID, err)
		return nil, fmt.Errorf("database error finding dashboard: %w", err)
	}
	return dashboard, nil
}

// ListDashboards returns the session's dashboards, paginated and sorted.
func ListDashboards(ctx context.Context, db *sql.DB, ownerID string, opts *core.ListQueryOptions) ([]domain.Dashboard, error) {
	if opts == nil {
		opts = core.DefaultListQueryOptions()
	}
	column, ok := core.SortableColumns[opts.SortBy]
	if !ok {
		column = core.DefaultSort
	}
	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	// nolint:gosec // column and order come from fixed whitelists above
	query := fmt.Sprintf(`SELECT %s FROM dashboards WHERE owner_id = ? ORDER BY %s %s, rowid %s LIMIT ? OFFSET ?`, dashboardColumns, column, order, order)
	rows, err := db.QueryContext(ctx, query, ownerID, opts.Limit, opts.Offset)
	if err != nil {
		customLog.Warnf("Storage: Error listing dashboards for session %s: %v", ownerID, err)
		return nil, fmt.Errorf("database error listing dashboards: %w", err)
	}
	defer rows.Close()

	dashboards := make([]domain.Dashboard, 0)
	for rows.Next() {
		dashboard, err := scanDashboard(rows)
		if err != nil {
			customLog.Warnf("Storage: Error scanning dashboard for session %s: %v", ownerID, err)
			return nil, fmt.Errorf("failed processing dashboard list: %w", err)
		}
		dashboards = append(dashboards, *dashboard)
	}
	if err = rows.Err(); err != nil {
		customLog.Warnf("Storage: Error iterating dashboards for session %s: %v", ownerID, err)
		return nil, fmt.Errorf("failed reading dashboard list: %w", err)
	}

	return dashboards, nil
}

// ReplaceDashboardContents overwrites name, icon and databases after a
// refresh and bumps the revision in the same statement.
func ReplaceDashboardContents(ctx context.Context, db *sql.DB, ownerID, dashboardID, name string, icon *domain.Icon, databases []domain.DatabaseRef) (*domain.Dashboard, error) {
	databases = domain.DedupeDatabases(databases)
	iconJSON, databasesJSON, err := encodeDashboardContents(icon, databases)
	if err != nil {
		return nil, err
	}

	updateSQL := `UPDATE dashboards
		SET name = ?, icon = ?, databases = ?, revision = revision + 1, updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND dashboard_id = ?`
	result, err := db.ExecContext(ctx, updateSQL, name, iconJSON, databasesJSON, ownerID, dashboardID)
	if err != nil {
		customLog.Warnf("Storage: Failed to refresh dashboard %s for session %s: %v", dashboardID, ownerID, err)
		return nil, fmt.Errorf("database error refreshing dashboard: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to confirm dashboard refresh: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrDashboardNotFound
	}

	return FindDashboard(ctx, db, ownerID, dashboardID)
}

// DeleteDashboard removes a dashboard. The Notion page itself is untouched.
func DeleteDashboard(ctx context.Context, db *sql.DB, ownerID, dashboardID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM dashboards WHERE owner_id = ? AND dashboard_id = ?`, ownerID, dashboardID)
	if err != nil {
		customLog.Warnf("Storage: Error deleting dashboard %s for session %s: %v", dashboardID, ownerID, err)
		return fmt.Errorf("database error deleting dashboard: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		customLog.Warnf("Storage: Error getting RowsAffected for delete dashboard %s: %v", dashboardID, err)
		return fmt.Errorf("failed confirming dashboard deletion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDashboardNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDashboard(row rowScanner) (*domain.Dashboard, error) {
	var (
		dashboard     domain.Dashboard
		iconJSON      sql.NullString
		databasesJSON string
	)
	err := row.Scan(&dashboard.DashboardID, &dashboard.OwnerID, &dashboard.Name, &iconJSON, &databasesJSON,
		&dashboard.Revision, &dashboard.CreatedAt, &dashboard.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if iconJSON.Valid && iconJSON.String != "" {
		var icon domain.Icon
		if err := json.Unmarshal([]byte(iconJSON.String), &icon); err != nil {
			return nil, fmt.Errorf("decoding icon of dashboard %s: %w", dashboard.DashboardID, err)
		}
		dashboard.Icon = &icon
	}
	if err := json.Unmarshal([]byte(databasesJSON), &dashboard.Databases); err != nil {
		return nil, fmt.Errorf("decoding databases of dashboard %s: %w", dashboard.DashboardID, err)
	}
	if dashboard.Databases == nil {
		dashboard.Databases = []domain.DatabaseRef{}
	}
	return &dashboard, nil
}

func encodeDashboardContents(icon *domain.Icon, databases []domain.DatabaseRef) (sql.NullString, string, error) {
	var iconJSON sql.NullString
	if icon != nil {
		raw, err := json.Marshal(icon)
		if err != nil {
			return iconJSON, "", fmt.Errorf("encoding dashboard icon: %w", err)
		}
		iconJSON = sql.NullString{String: string(raw), Valid: true}
	}

	if databases == nil {
		databases = []domain.DatabaseRef{}
	}
	raw, err := json.Marshal(databases)
	if err != nil {
		return iconJSON, "", fmt.Errorf("encoding dashboard databases: %w", err)
	}
	return iconJSON, string(raw), nil
}
