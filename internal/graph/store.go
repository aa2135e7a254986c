package graph

import (
	"fmt"
	"sync"

	"github.com/canvas-studio/engine/internal/canvas"
)

// Listener is called after each effective mutation with the new graph.
// In-progress drag moves are folded into the notification for the drop.
type Listener func(Graph)

// Store owns the canvas graph. Mutations are total: unknown ids and invalid
// inputs are ignored, never reported as errors.
type Store struct {
	mu        sync.RWMutex
	current   Graph
	listeners map[int]Listener
	nextSub   int
	unsent    bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{current: build(nil, nil), listeners: map[int]Listener{}}
}

// Current returns the current graph.
func (s *Store) Current() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// mutate runs fn over private copies of the node and edge slices and swaps
// in the result when fn reports a change. Listeners run after the lock is
// released so they may read the store. With notify unset the change is kept
// silent until the next notifying mutation, which reports it even when it
// changes nothing itself.
func (s *Store) mutate(notify bool, fn func(nodes []canvas.Node, edges []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool)) Graph {
	s.mu.Lock()
	nodes := append([]canvas.Node(nil), s.current.nodes...)
	edges := append([]canvas.Edge(nil), s.current.edges...)
	nodes, edges, changed := fn(nodes, edges)
	if changed {
		s.current = build(nodes, edges)
	}
	g := s.current
	if !notify {
		s.unsent = s.unsent || changed
		s.mu.Unlock()
		return g
	}
	if !changed && !s.unsent {
		s.mu.Unlock()
		return g
	}
	s.unsent = false
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(g)
	}
	return g
}

// Replace swaps in the contents of a snapshot wholesale (graph-replace-on-load).
// Dangling edges in the snapshot are dropped.
func (s *Store) Replace(snap canvas.Snapshot) Graph {
	clean := snap.Sanitize()
	return s.mutate(true, func(_ []canvas.Node, _ []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool) {
		return clean.Nodes, clean.Edges, true
	})
}

// ApplyNodeChanges applies node changes in order. A batch made only of
// in-progress drag moves updates the graph without notifying listeners.
func (s *Store) ApplyNodeChanges(changes []NodeChange) Graph {
	return s.mutate(!dragOnly(changes), func(nodes []canvas.Node, edges []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool) {
		changed := false
		for _, c := range changes {
			var ok bool
			nodes, edges, ok = applyNode(nodes, edges, c)
			changed = changed || ok
		}
		return nodes, edges, changed
	})
}

// ApplyEdgeChanges applies edge changes in order.
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) Graph {
	return s.mutate(true, func(nodes []canvas.Node, edges []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool) {
		changed := false
		for _, c := range changes {
			var ok bool
			edges, ok = applyEdge(nodes, edges, c)
			changed = changed || ok
		}
		return nodes, edges, changed
	})
}

// AddNode appends a node.
func (s *Store) AddNode(n canvas.Node) Graph {
	return s.ApplyNodeChanges([]NodeChange{NodeAdd{Node: n}})
}

// AddNodes appends several nodes in one mutation.
func (s *Store) AddNodes(ns []canvas.Node) Graph {
	changes := make([]NodeChange, len(ns))
	for i, n := range ns {
		changes[i] = NodeAdd{Node: n}
	}
	return s.ApplyNodeChanges(changes)
}

// AddEdge appends an edge; an id collision gets a numeric suffix.
func (s *Store) AddEdge(e canvas.Edge) Graph {
	return s.ApplyEdgeChanges([]EdgeChange{EdgeAdd{Edge: e}})
}

// DeleteNodes removes the given nodes and, in the same step, every edge
// whose source or target is among them.
func (s *Store) DeleteNodes(ids []string) Graph {
	changes := make([]NodeChange, len(ids))
	for i, id := range ids {
		changes[i] = NodeRemove{ID: id}
	}
	return s.ApplyNodeChanges(changes)
}

// Connect adds an edge from source to target. Self-loops and unknown
// endpoints are ignored; parallel edges are allowed.
func (s *Store) Connect(source, target string) Graph {
	return s.ConnectStyled(source, target, canvas.EdgeStyle{Animated: true})
}

// ConnectStyled is Connect with an explicit edge style.
func (s *Store) ConnectStyled(source, target string, style canvas.EdgeStyle) Graph {
	if source == target {
		return s.Current()
	}
	return s.AddEdge(canvas.Edge{ID: canvas.EdgeID(source, target), Source: source, Target: target, Style: style})
}

// MoveNodes sets positions for several nodes in one mutation.
func (s *Store) MoveNodes(positions map[string]canvas.Position) Graph {
	changes := make([]NodeChange, 0, len(positions))
	for id, p := range positions {
		changes = append(changes, NodePosition{ID: id, Position: p})
	}
	return s.ApplyNodeChanges(changes)
}

// SetSelection selects exactly the given ids and clears every other node.
func (s *Store) SetSelection(ids []string) Graph {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.mutate(true, func(nodes []canvas.Node, edges []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool) {
		changed := false
		for i := range nodes {
			if nodes[i].Selected != want[nodes[i].ID] {
				nodes[i].Selected = want[nodes[i].ID]
				changed = true
			}
		}
		return nodes, edges, changed
	})
}

// SelectAll marks every node selected.
func (s *Store) SelectAll() Graph { return s.setAll(true) }

// ClearSelection clears every node's selection flag.
func (s *Store) ClearSelection() Graph { return s.setAll(false) }

func (s *Store) setAll(selected bool) Graph {
	return s.mutate(true, func(nodes []canvas.Node, edges []canvas.Edge) ([]canvas.Node, []canvas.Edge, bool) {
		changed := false
		for i := range nodes {
			if nodes[i].Selected != selected {
				nodes[i].Selected = selected
				changed = true
			}
		}
		return nodes, edges, changed
	})
}

func indexOf(nodes []canvas.Node, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func applyNode(nodes []canvas.Node, edges []canvas.Edge, c NodeChange) ([]canvas.Node, []canvas.Edge, bool) {
	switch c := c.(type) {
	case NodeAdd:
		if c.Node.ID == "" || indexOf(nodes, c.Node.ID) >= 0 {
			return nodes, edges, false
		}
		return append(nodes, c.Node.Clone()), edges, true
	case NodeRemove:
		i := indexOf(nodes, c.ID)
		if i < 0 {
			return nodes, edges, false
		}
		nodes = append(nodes[:i:i], nodes[i+1:]...)
		kept := edges[:0:0]
		for _, e := range edges {
			if !e.Incident(c.ID) {
				kept = append(kept, e)
			}
		}
		return nodes, kept, true
	case NodePosition:
		i := indexOf(nodes, c.ID)
		if i < 0 || nodes[i].Position == c.Position {
			return nodes, edges, false
		}
		nodes[i].Position = c.Position
		return nodes, edges, true
	case NodeSelect:
		i := indexOf(nodes, c.ID)
		if i < 0 || nodes[i].Selected == c.Selected {
			return nodes, edges, false
		}
		nodes[i].Selected = c.Selected
		return nodes, edges, true
	case NodeData:
		i := indexOf(nodes, c.ID)
		if i < 0 {
			return nodes, edges, false
		}
		nodes[i].Data = canvas.CloneData(c.Data)
		return nodes, edges, true
	}
	return nodes, edges, false
}

func applyEdge(nodes []canvas.Node, edges []canvas.Edge, c EdgeChange) ([]canvas.Edge, bool) {
	switch c := c.(type) {
	case EdgeAdd:
		e := c.Edge
		if indexOf(nodes, e.Source) < 0 || indexOf(nodes, e.Target) < 0 {
			return edges, false
		}
		if e.ID == "" {
			e.ID = canvas.EdgeID(e.Source, e.Target)
		}
		e.ID = uniqueEdgeID(edges, e.ID)
		return append(edges, e), true
	case EdgeRemove:
		for i, e := range edges {
			if e.ID == c.ID {
				return append(edges[:i:i], edges[i+1:]...), true
			}
		}
	}
	return edges, false
}

func dragOnly(changes []NodeChange) bool {
	for _, c := range changes {
		if p, ok := c.(NodePosition); !ok || !p.Dragging {
			return false
		}
	}
	return len(changes) > 0
}

func uniqueEdgeID(edges []canvas.Edge, base string) string {
	taken := make(map[string]bool, len(edges))
	for _, e := range edges {
		taken[e.ID] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if !taken[id] {
			return id
		}
	}
}
