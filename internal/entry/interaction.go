// internal/entry/interaction.go
package entry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
)

// Interaction is one user flow against one database.
type Interaction struct {
	ID          string
	SessionID   string
	DashboardID string
	DatabaseID  string
	Mode        Mode

	mu          sync.Mutex
	state       State
	revision    int64
	schemas     []core.FieldSchema
	unsupported []string
	values      core.ValueMap
	warnings    []core.OptionMismatch
	text        string
	updatedAt   time.Time

	// attempt increments whenever in-flight work is started or abandoned;
	// results of a stale attempt are dropped.
	attempt int
	cancel  context.CancelFunc
}

// Snapshot is a consistent copy of an interaction for callers.
type Snapshot struct {
	ID          string                `json:"id"`
	DashboardID string                `json:"dashboard_id"`
	DatabaseID  string                `json:"database_id"`
	Mode        Mode                  `json:"mode"`
	State       State                 `json:"state"`
	Schemas     []core.FieldSchema    `json:"schemas"`
	Unsupported []string              `json:"unsupported"`
	Values      core.ValueMap         `json:"values"`
	Warnings    []core.OptionMismatch `json:"warnings,omitempty"`
	Text        string                `json:"text,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func newInteraction(id, sessionID, dashboardID, databaseID string, mode Mode) *Interaction {
	return &Interaction{
		ID:          id,
		SessionID:   sessionID,
		DashboardID: dashboardID,
		DatabaseID:  databaseID,
		Mode:        mode,
		state:       StateIdle,
		values:      core.ValueMap{},
		updatedAt:   time.Now(),
	}
}

// State returns the current state.
func (i *Interaction) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Snapshot copies the interaction under its lock.
func (i *Interaction) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

func (i *Interaction) snapshotLocked() Snapshot {
	values := make(core.ValueMap, len(i.values))
	for k, v := range i.values {
		values[k] = v
	}
	schemas := i.schemas
	if schemas == nil {
		schemas = []core.FieldSchema{}
	}
	unsupported := i.unsupported
	if unsupported == nil {
		unsupported = []string{}
	}
	return Snapshot{
		ID:          i.ID,
		DashboardID: i.DashboardID,
		DatabaseID:  i.DatabaseID,
		Mode:        i.Mode,
		State:       i.state,
		Schemas:     append([]core.FieldSchema{}, schemas...),
		Unsupported: append([]string{}, unsupported...),
		Values:      values,
		Warnings:    append([]core.OptionMismatch(nil), i.warnings...),
		Text:        i.text,
		UpdatedAt:   i.updatedAt,
	}
}

// transitionLocked moves to the next state; the caller holds mu.
func (i *Interaction) transitionLocked(to State) error {
	if i.state == to {
		return nil
	}
	if !CanTransition(i.state, to) {
		if i.state == StateSubmitting {
			return ErrSubmissionInProgress
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.state, to)
	}
	i.state = to
	i.updatedAt = time.Now()
	return nil
}

// abandonLocked drops any in-flight attempt; the caller holds mu.
func (i *Interaction) abandonLocked() {
	i.attempt++
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
}
