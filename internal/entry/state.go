// internal/entry/state.go
package entry

import (
	"errors"
	"fmt"
)

// State is where an interaction is in the entry flow.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting" // fetching schema
	StateThinking   State = "thinking"   // awaiting the model
	StatePreview    State = "preview"    // reconciled values editable
	StateForm       State = "form"       // manual entry
	StateSubmitting State = "submitting" // page create in flight
)

// Mode selects the AI or the manual path.
type Mode string

const (
	ModeAI     Mode = "ai"
	ModeManual Mode = "manual"
)

// ParseMode accepts "ai" and "manual"; empty means AI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAI:
		return ModeAI, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

var (
	ErrInvalidTransition    = errors.New("action not allowed in the current entry state")
	ErrSubmissionInProgress = errors.New("a submission is already in progress for this entry")
	ErrUnknownMode          = errors.New("unknown entry mode")
)

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateThinking, StateForm, StateIdle},
	StateThinking:   {StatePreview, StateIdle},
	StatePreview:    {StateSubmitting, StateConnecting, StateIdle},
	StateForm:       {StateSubmitting, StateIdle},
	StateSubmitting: {StateIdle, StatePreview, StateForm},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
