// internal/entry/errors.go
package entry

import (
	"errors"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
)

// Failure kinds of the entry flow.
var (
	ErrSchemaUnavailable = errors.New("schema could not be loaded")
	ErrParseFailed       = errors.New("text could not be parsed")
	ErrTimedOut          = errors.New("entry timed out")
	ErrCanceled          = errors.New("entry was cancelled")
	ErrWriteFailed       = errors.New("page could not be created")
	ErrDatabaseNotListed = errors.New("database is not on this dashboard")
)

// User-facing messages.
const (
	MsgConnectionLost = "Connection lost."
	MsgSchemaFailed   = "Failed to load schema"
	MsgParseFailed    = "Failed to parse, please try again"
	MsgTimedOut       = "Request timed out. Please try again."
	MsgCanceled       = "Entry was cancelled."
	MsgWriteFailed    = "failed to sync"
)

// FlowError is a failed step. It carries the user message and what the
// client needs to recover: the echoed text on the AI path, the retained
// values after a failed write, and the state the flow returned to.
type FlowError struct {
	Kind    error
	Message string
	State   State
	Text    string
	Values  core.ValueMap
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
