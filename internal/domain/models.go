// internal/domain/models.go
package domain

import "time"

// DefaultTheme is the theme a new session starts with.
const DefaultTheme = "white"

// Session is one connected Notion workspace. The Notion token is only
// held in memory in plain form; storage keeps it sealed.
type Session struct {
	SessionID     string    `json:"session_id"`
	NotionToken   string    `json:"-"`
	WorkspaceName string    `json:"workspace_name"`
	BotID         string    `json:"bot_id"`
	Theme         string    `json:"theme"`
	HasSeenSplash bool      `json:"has_seen_splash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Icon mirrors a Notion icon object. Type is "emoji", "external" or "file".
type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji,omitempty"`
	URL   string `json:"url,omitempty"`
}

// DatabaseRef is a database discovered on a dashboard page.
type DatabaseRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  *Icon  `json:"icon"`
}

// Dashboard is a connected Notion page and the databases found on it.
// Revision is bumped on every refresh and keys the schema cache.
type Dashboard struct {
	DashboardID string        `json:"id"`
	OwnerID     string        `json:"-"`
	Name        string        `json:"name"`
	Icon        *Icon         `json:"icon"`
	Databases   []DatabaseRef `json:"databases"`
	Revision    int64         `json:"revision"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// FindDatabase returns the dashboard database with the given id.
func (d *Dashboard) FindDatabase(id string) (DatabaseRef, bool) {
	for _, db := range d.Databases {
		if db.ID == id {
			return db, true
		}
	}
	return DatabaseRef{}, false
}

// DedupeDatabases keeps the first occurrence of each id, in order.
func DedupeDatabases(refs []DatabaseRef) []DatabaseRef {
	seen := make(map[string]bool, len(refs))
	out := make([]DatabaseRef, 0, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		out = append(out, ref)
	}
	return out
}
