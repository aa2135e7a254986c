// Package commands implements the keyboard and menu operations of the canvas
// editor on top of the graph store, the viewport model and the save pipeline.
package commands

import (
	"context"
	"encoding/json"
	"math"

	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/graph"
	"github.com/canvas-studio/engine/internal/viewport"
	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

// Layout constants.
var (
	DuplicateOffset = canvas.Position{X: 50, Y: 50}
	GridSpacing     = canvas.Position{X: 320, Y: 240}
	// OutputGap separates a model node from the output node placed beside it.
	OutputGap = 80.0
)

// Saver performs a manual save of the current canvas.
type Saver interface {
	Save(ctx context.Context) error
}

// Invoker calls an AI model. Implementations live outside the editor core.
type Invoker interface {
	Invoke(ctx context.Context, provider, model, prompt string) (string, error)
}

// Layer composes editor operations. All node-creating paths draw ids from
// the same counter.
type Layer struct {
	graph *graph.Store
	view  *viewport.Model
	ids   *canvas.IDCounter
	saver Saver
	log   *zap.Logger
}

// New returns a Layer. saver may be nil, in which case Save is a no-op.
func New(g *graph.Store, v *viewport.Model, ids *canvas.IDCounter, saver Saver, log *zap.Logger) *Layer {
	return &Layer{graph: g, view: v, ids: ids, saver: saver, log: logger.OrGlobal(log)}
}

// AddNode creates a node and returns its id.
func (l *Layer) AddNode(t canvas.NodeType, pos canvas.Position, data json.RawMessage) string {
	id := l.ids.Next()
	l.graph.AddNode(canvas.Node{ID: id, Type: t, Position: pos, Data: canvas.CloneData(data)})
	return id
}

// DeleteSelected removes the selected nodes and their edges. It returns how
// many nodes were removed.
func (l *Layer) DeleteSelected() int {
	sel := l.graph.Current().Selected()
	if len(sel) == 0 {
		return 0
	}
	l.graph.DeleteNodes(sel)
	l.log.Debug("deleted selected nodes", zap.Int("count", len(sel)))
	return len(sel)
}

// DuplicateSelected clones every selected node with a fresh id, offset by
// DuplicateOffset and unselected. It returns the new ids in graph order.
func (l *Layer) DuplicateSelected() []string {
	g := l.graph.Current()
	var clones []canvas.Node
	for _, n := range g.Nodes() {
		if !n.Selected {
			continue
		}
		c := n.Clone()
		c.ID = l.ids.Next()
		c.Position = n.Position.Add(DuplicateOffset)
		c.Selected = false
		clones = append(clones, c)
	}
	if len(clones) == 0 {
		return nil
	}
	l.graph.AddNodes(clones)
	ids := make([]string, len(clones))
	for i, c := range clones {
		ids[i] = c.ID
	}
	return ids
}

func (l *Layer) SelectAll()      { l.graph.SelectAll() }
func (l *Layer) ClearSelection() { l.graph.ClearSelection() }

// AutoArrange lays every node out on a near-square grid centred on the
// origin, in graph order.
func (l *Layer) AutoArrange() {
	nodes := l.graph.Current().Nodes()
	positions := GridPositions(len(nodes))
	moves := make(map[string]canvas.Position, len(nodes))
	for i, n := range nodes {
		moves[n.ID] = positions[i]
	}
	l.graph.MoveNodes(moves)
}

// GridPositions returns n cell positions: ceil(sqrt(n)) columns with
// GridSpacing between cells, the whole grid centred on the origin.
func GridPositions(n int) []canvas.Position {
	if n == 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	offX := float64(cols-1) * GridSpacing.X / 2
	offY := float64(rows-1) * GridSpacing.Y / 2
	out := make([]canvas.Position, n)
	for i := range out {
		out[i] = canvas.Position{
			X: float64(i%cols)*GridSpacing.X - offX,
			Y: float64(i/cols)*GridSpacing.Y - offY,
		}
	}
	return out
}

// Save runs a manual save, bypassing the debounce window. The saver may
// report that the save was queued rather than written.
func (l *Layer) Save(ctx context.Context) error {
	if l.saver == nil {
		return nil
	}
	return l.saver.Save(ctx)
}

// outputData is the data payload of a model output node.
type outputData struct {
	Text     string `json:"text"`
	SourceID string `json:"sourceId"`
}

// PlaceModelOutput adds an output node holding text to the right of the
// source node and connects the two. It returns the new node id.
func (l *Layer) PlaceModelOutput(sourceID, text string) (string, error) {
	src, ok := l.graph.Current().Node(sourceID)
	if !ok {
		return "", appErr.NotFound("source node %s not found", sourceID)
	}
	data, err := json.Marshal(outputData{Text: text, SourceID: sourceID})
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "encode output node")
	}
	w, _ := canvas.FootprintOf(src.Type)
	id := l.AddNode(canvas.NodeOutput, canvas.Position{X: src.Position.X + w + OutputGap, Y: src.Position.Y}, data)
	l.graph.Connect(sourceID, id)
	return id, nil
}

// RunModel invokes a model and places its output beside the source node.
// The graph is left untouched when the invocation fails.
func (l *Layer) RunModel(ctx context.Context, inv Invoker, sourceID, provider, model, prompt string) (string, error) {
	if !l.graph.Current().Has(sourceID) {
		return "", appErr.NotFound("source node %s not found", sourceID)
	}
	text, err := inv.Invoke(ctx, provider, model, prompt)
	if err != nil {
		l.log.Warn("model invocation failed", zap.String("provider", provider), zap.String("model", model), zap.Error(err))
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "model invocation failed")
	}
	return l.PlaceModelOutput(sourceID, text)
}
