package autosave

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every error the pipeline reports wraps exactly one of these.
var (
	ErrLoadFailure      = errors.New("canvas load failed")
	ErrSaveFailure      = errors.New("canvas save failed")
	ErrThumbnailFailure = errors.New("thumbnail render failed")
	ErrCleanupFailure   = errors.New("retention cleanup failed")

	ErrNotLoaded = errors.New("autosave: canvas not loaded yet")
	ErrClosed    = errors.New("autosave: pipeline closed")

	// ErrQueued reports that a save was queued behind the one in flight.
	ErrQueued = errors.New("autosave: save queued")
)

// State is the pipeline's lifecycle state.
type State int

const (
	StateLoading State = iota
	StateIdle
	StateSaving
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateIdle:
		return "idle"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SaveState is the user-visible save status.
type SaveState struct {
	State          State
	LastSavedLabel string
	LastSavedAt    time.Time
	IsSaving       bool
	Error          error
}

// Label renders the "last saved" badge text.
func Label(lastSaved time.Time, failed bool, now time.Time) string {
	if failed {
		return "error"
	}
	if lastSaved.IsZero() {
		return "never"
	}
	d := now.Sub(lastSaved)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	default:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
}
