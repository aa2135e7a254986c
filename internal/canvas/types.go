// Package canvas holds the data model shared by every part of the editor
// engine: nodes, edges, the viewport and the persisted snapshot.
package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeType identifies the widget that edits a node's data.
type NodeType string

const (
	NodeText     NodeType = "text"
	NodeImage    NodeType = "image"
	NodeVideo    NodeType = "video"
	NodeAudio    NodeType = "audio"
	NodeDocument NodeType = "document"
	NodeURL      NodeType = "url"
	NodeAIModel  NodeType = "aiModel"
	NodeOutput   NodeType = "output"
)

// KnownNodeTypes lists the node types the engine has a footprint and colour for.
var KnownNodeTypes = []NodeType{
	NodeText, NodeImage, NodeVideo, NodeAudio, NodeDocument, NodeURL, NodeAIModel, NodeOutput,
}

// Position is a point in graph space, top-left origin.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position { return Position{X: p.X + d.X, Y: p.Y + d.Y} }

// Node is a typed content node on the canvas.
type Node struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
	Selected bool            `json:"selected,omitempty"`
}

// Clone returns a copy of n that shares no memory with it.
func (n Node) Clone() Node {
	n.Data = CloneData(n.Data)
	return n
}

// Bounds returns the node's approximate footprint in graph space.
func (n Node) Bounds() Rect {
	w, h := FootprintOf(n.Type)
	return Rect{X: n.Position.X, Y: n.Position.Y, W: w, H: h}
}

// Center returns the centre of the node's footprint.
func (n Node) Center() Position { return n.Bounds().Center() }

// CloneData copies opaque node data. Empty input yields nil.
func CloneData(d json.RawMessage) json.RawMessage {
	if len(d) == 0 {
		return nil
	}
	return bytes.Clone(d)
}

// EdgeStyle carries presentation hints for an edge.
type EdgeStyle struct {
	Animated bool   `json:"animated,omitempty"`
	Stroke   string `json:"stroke,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Style  EdgeStyle `json:"style"`
}

// EdgeID derives an edge id from its endpoints.
func EdgeID(source, target string) string {
	return fmt.Sprintf("e%s-%s", source, target)
}

// Incident reports whether the edge touches node id.
func (e Edge) Incident(id string) bool { return e.Source == id || e.Target == id }

// Viewport maps graph space to screen space: screen = graph*Zoom + (X, Y).
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is the identity transform.
var DefaultViewport = Viewport{X: 0, Y: 0, Zoom: 1}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// RectFromPoints builds a normalised rectangle spanning two corners.
func RectFromPoints(a, b Position) Rect {
	r := Rect{X: a.X, Y: a.Y, W: b.X - a.X, H: b.Y - a.Y}
	if r.W < 0 {
		r.X, r.W = b.X, -r.W
	}
	if r.H < 0 {
		r.Y, r.H = b.Y, -r.H
	}
	return r
}

func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Center returns the midpoint of r.
func (r Rect) Center() Position { return Position{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Contains reports whether o lies entirely within r. Touching edges count as inside.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.MaxX() <= r.MaxX() && o.MaxY() <= r.MaxY()
}

// ContainsPoint reports whether p lies within r.
func (r Rect) ContainsPoint(p Position) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	minX, minY := min(r.X, o.X), min(r.Y, o.Y)
	maxX, maxY := max(r.MaxX(), o.MaxX()), max(r.MaxY(), o.MaxY())
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Inset grows r by m on every side (shrinks for negative m).
func (r Rect) Inset(m float64) Rect {
	return Rect{X: r.X - m, Y: r.Y - m, W: r.W + 2*m, H: r.H + 2*m}
}

// BoundsOf returns the union of every node footprint; ok is false for no nodes.
func BoundsOf(nodes []Node) (Rect, bool) {
	if len(nodes) == 0 {
		return Rect{}, false
	}
	b := nodes[0].Bounds()
	for _, n := range nodes[1:] {
		b = b.Union(n.Bounds())
	}
	return b, true
}
