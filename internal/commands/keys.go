package commands

import (
	"context"
	"strings"
)

// KeyEvent is a key press. Mod is Ctrl on Linux/Windows and Cmd on macOS.
type KeyEvent struct {
	Key   string
	Mod   bool
	Shift bool
	// InTextInput is set while focus is in an editable field; destructive
	// shortcuts are left to the field then.
	InTextInput bool
}

// Handle dispatches a key binding. handled is false when the event is not
// bound, so the caller can let it through.
func (l *Layer) Handle(ctx context.Context, ev KeyEvent) (handled bool, err error) {
	key := ev.Key
	if len(key) == 1 {
		key = strings.ToLower(key)
	}
	switch {
	case !ev.Mod && (key == "Delete" || key == "Backspace"):
		if ev.InTextInput {
			return false, nil
		}
		l.DeleteSelected()
	case !ev.Mod && key == "Escape":
		l.ClearSelection()
	case ev.Mod && ev.Shift && key == "l":
		l.AutoArrange()
	case ev.Mod && key == "d":
		l.DuplicateSelected()
	case ev.Mod && key == "a":
		if ev.InTextInput {
			return false, nil
		}
		l.SelectAll()
	case ev.Mod && key == "s":
		return true, l.Save(ctx)
	case ev.Mod && key == "0":
		l.view.Reset()
	case ev.Mod && (key == "=" || key == "+"):
		l.view.ZoomIn()
	case ev.Mod && key == "-":
		l.view.ZoomOut()
	default:
		return false, nil
	}
	return true, nil
}
