package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/canvas-studio/engine/internal/autosave"
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/commands"
	"github.com/canvas-studio/engine/internal/editor"
)

// step is one parsed script line.
type step struct {
	line int
	verb string
	args []string
}

// parseScript reads one command per line. Blank lines and lines starting
// with # are skipped.
func parseScript(r io.Reader) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		steps = append(steps, step{line: n, verb: strings.ToLower(fields[0]), args: fields[1:]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

// apply runs steps against the session in order and stops at the first
// failing step.
func apply(ctx context.Context, s *editor.Session, steps []step) error {
	for _, st := range steps {
		if err := applyStep(ctx, s, st); err != nil {
			return fmt.Errorf("line %d (%s): %w", st.line, st.verb, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, s *editor.Session, st step) error {
	switch st.verb {
	case "add":
		// add <type> <x> <y> [text...]
		if len(st.args) < 3 {
			return fmt.Errorf("usage: add <type> <x> <y> [text]")
		}
		x, y, err := floats(st.args[1], st.args[2])
		if err != nil {
			return err
		}
		var data json.RawMessage
		if len(st.args) > 3 {
			data, _ = json.Marshal(map[string]string{"text": strings.Join(st.args[3:], " ")})
		}
		s.Commands.AddNode(canvas.NodeType(st.args[0]), canvas.Position{X: x, Y: y}, data)
	case "connect":
		if len(st.args) < 2 {
			return fmt.Errorf("usage: connect <source> <target> [animated]")
		}
		style := canvas.EdgeStyle{Animated: len(st.args) > 2 && st.args[2] == "animated"}
		s.Graph.ConnectStyled(st.args[0], st.args[1], style)
	case "select":
		s.Graph.SetSelection(st.args)
	case "select-all":
		s.Commands.SelectAll()
	case "clear":
		s.Commands.ClearSelection()
	case "duplicate":
		s.Commands.DuplicateSelected()
	case "delete":
		s.Commands.DeleteSelected()
	case "arrange":
		s.Commands.AutoArrange()
	case "move":
		if len(st.args) != 3 {
			return fmt.Errorf("usage: move <id> <x> <y>")
		}
		x, y, err := floats(st.args[1], st.args[2])
		if err != nil {
			return err
		}
		s.Graph.MoveNodes(map[string]canvas.Position{st.args[0]: {X: x, Y: y}})
	case "pan":
		if len(st.args) != 2 {
			return fmt.Errorf("usage: pan <dx> <dy>")
		}
		dx, dy, err := floats(st.args[0], st.args[1])
		if err != nil {
			return err
		}
		s.View.Pan(dx, dy)
	case "zoom":
		if len(st.args) != 1 {
			return fmt.Errorf("usage: zoom in|out|reset|fit")
		}
		switch st.args[0] {
		case "in":
			s.View.ZoomIn()
		case "out":
			s.View.ZoomOut()
		case "reset":
			s.View.Reset()
		case "fit":
			s.View.FitToContent(s.Graph.Current().Nodes(), 50)
		default:
			return fmt.Errorf("unknown zoom %q", st.args[0])
		}
	case "key":
		if len(st.args) != 1 {
			return fmt.Errorf("usage: key <combo>, e.g. mod+shift+l")
		}
		handled, err := s.Commands.Handle(ctx, parseKey(st.args[0]))
		if err := saved(err); err != nil {
			return err
		}
		if !handled {
			return fmt.Errorf("unbound key %q", st.args[0])
		}
	case "save":
		return saved(s.Commands.Save(ctx))
	default:
		return fmt.Errorf("unknown command")
	}
	return nil
}

// parseKey turns "mod+shift+l" into a key event. The last segment is the key.
func parseKey(combo string) commands.KeyEvent {
	parts := strings.Split(combo, "+")
	ev := commands.KeyEvent{Key: parts[len(parts)-1]}
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(p) {
		case "mod", "ctrl", "cmd":
			ev.Mod = true
		case "shift":
			ev.Shift = true
		}
	}
	return ev
}

func floats(a, b string) (float64, float64, error) {
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// saved treats a save queued behind the one in flight as done; the session
// writes it before going idle.
func saved(err error) error {
	if errors.Is(err, autosave.ErrQueued) {
		return nil
	}
	return err
}
