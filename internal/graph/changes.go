package graph

import (
	"encoding/json"

	"github.com/canvas-studio/engine/internal/canvas"
)

// NodeChange is one update to the node set. Widgets never touch a node
// directly; they describe the edit as a change and the store applies it.
type NodeChange interface {
	nodeChange()
}

// NodeAdd appends a node. Ignored when the id already exists or is empty.
type NodeAdd struct{ Node canvas.Node }

// NodeRemove deletes a node and every edge incident to it.
type NodeRemove struct{ ID string }

// NodePosition moves a node. Dragging marks an intermediate frame of a drag;
// listeners hear about the move once a non-dragging change follows.
type NodePosition struct {
	ID       string
	Position canvas.Position
	Dragging bool
}

// NodeSelect sets a node's selection flag.
type NodeSelect struct {
	ID       string
	Selected bool
}

// NodeData replaces a node's opaque payload.
type NodeData struct {
	ID   string
	Data json.RawMessage
}

func (NodeAdd) nodeChange()      {}
func (NodeRemove) nodeChange()   {}
func (NodePosition) nodeChange() {}
func (NodeSelect) nodeChange()   {}
func (NodeData) nodeChange()     {}

// EdgeChange is one update to the edge set.
type EdgeChange interface {
	edgeChange()
}

// EdgeAdd appends an edge. Ignored when an endpoint is missing; a taken id
// gets a numeric suffix.
type EdgeAdd struct{ Edge canvas.Edge }

// EdgeRemove deletes an edge by id.
type EdgeRemove struct{ ID string }

func (EdgeAdd) edgeChange()    {}
func (EdgeRemove) edgeChange() {}
