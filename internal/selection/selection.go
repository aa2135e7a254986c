// Package selection implements marquee selection and hit-testing against
// node footprints in graph space.
package selection

import (
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/graph"
	"github.com/canvas-studio/engine/internal/viewport"
)

// Within returns the ids of nodes whose full footprint lies inside r
// (graph space). Partial overlap does not count.
func Within(g graph.Graph, r canvas.Rect) []string {
	var out []string
	g.Each(func(n canvas.Node, _ int) {
		if r.Contains(n.Bounds()) {
			out = append(out, n.ID)
		}
	})
	return out
}

// Marquee converts a screen-space drag rectangle to graph space and returns
// the nodes entirely inside it.
func Marquee(g graph.Graph, vp canvas.Viewport, from, to canvas.Position) []string {
	r := canvas.RectFromPoints(viewport.ScreenToGraph(vp, from), viewport.ScreenToGraph(vp, to))
	return Within(g, r)
}

// HitTest returns the top-most node whose footprint contains graph point p.
// Later nodes render above earlier ones.
func HitTest(g graph.Graph, p canvas.Position) (string, bool) {
	hit, found := "", false
	g.Each(func(n canvas.Node, _ int) {
		if n.Bounds().ContainsPoint(p) {
			hit, found = n.ID, true
		}
	})
	return hit, found
}

// Engine writes selection results back into the graph store so rendering and
// saving see the same state.
type Engine struct {
	graph *graph.Store
	view  *viewport.Model
}

// NewEngine binds selection to a graph store and viewport.
func NewEngine(g *graph.Store, v *viewport.Model) *Engine {
	return &Engine{graph: g, view: v}
}

// SelectMarquee replaces the selection with the nodes inside the screen
// rectangle; additive keeps the current selection as well.
func (e *Engine) SelectMarquee(from, to canvas.Position, additive bool) graph.Graph {
	g := e.graph.Current()
	ids := Marquee(g, e.view.Viewport(), from, to)
	if additive {
		ids = append(ids, g.Selected()...)
	}
	return e.graph.SetSelection(ids)
}

// Click selects the node under a screen point, or clears the selection when
// the point hits empty canvas. additive toggles the hit node instead.
func (e *Engine) Click(screen canvas.Position, additive bool) graph.Graph {
	g := e.graph.Current()
	id, ok := HitTest(g, e.view.ScreenToGraph(screen))
	if !ok {
		if additive {
			return g
		}
		return e.graph.ClearSelection()
	}
	if additive {
		n, _ := g.Node(id)
		return e.graph.ApplyNodeChanges([]graph.NodeChange{graph.NodeSelect{ID: id, Selected: !n.Selected}})
	}
	return e.graph.SetSelection([]string{id})
}

// SelectAll selects every node.
func (e *Engine) SelectAll() graph.Graph { return e.graph.SelectAll() }

// ClearSelection deselects every node.
func (e *Engine) ClearSelection() graph.Graph { return e.graph.ClearSelection() }
