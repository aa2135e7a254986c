// Package graph is the authoritative in-memory node/edge store of a canvas.
//
// The store holds an immutable Graph value. Every mutation builds a new Graph
// and swaps it in, so a Graph handed to a reader (renderer, auto-save) is a
// consistent point-in-time copy that never changes underneath it.
package graph

import (
	"github.com/canvas-studio/engine/internal/canvas"
)

// Graph is an immutable snapshot of nodes and edges with derived indices.
type Graph struct {
	nodes []canvas.Node
	edges []canvas.Edge
	index map[string]int      // node id -> position in nodes
	adj   map[string][]string // undirected adjacency
}

func build(nodes []canvas.Node, edges []canvas.Edge) Graph {
	g := Graph{
		nodes: nodes,
		edges: edges,
		index: make(map[string]int, len(nodes)),
		adj:   make(map[string][]string, len(nodes)),
	}
	for i, n := range nodes {
		g.index[n.ID] = i
	}
	for _, e := range edges {
		g.adj[e.Source] = append(g.adj[e.Source], e.Target)
		g.adj[e.Target] = append(g.adj[e.Target], e.Source)
	}
	return g
}

// Len returns the number of nodes.
func (g Graph) Len() int { return len(g.nodes) }

// Nodes returns a copy of the node list in store order.
func (g Graph) Nodes() []canvas.Node {
	out := make([]canvas.Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns a copy of the edge list in store order.
func (g Graph) Edges() []canvas.Edge {
	return append([]canvas.Edge{}, g.edges...)
}

// Node looks up a node by id.
func (g Graph) Node(id string) (canvas.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return canvas.Node{}, false
	}
	return g.nodes[i].Clone(), true
}

// Has reports whether a node with id exists.
func (g Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Edge looks up an edge by id.
func (g Graph) Edge(id string) (canvas.Edge, bool) {
	for _, e := range g.edges {
		if e.ID == id {
			return e, true
		}
	}
	return canvas.Edge{}, false
}

// Degree returns the number of edge endpoints at node id. Parallel edges count separately.
func (g Graph) Degree(id string) int { return len(g.adj[id]) }

// Neighbors returns the distinct nodes connected to id in either direction.
func (g Graph) Neighbors(id string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range g.adj[id] {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Selected returns the ids of selected nodes in store order.
func (g Graph) Selected() []string {
	var out []string
	for _, n := range g.nodes {
		if n.Selected {
			out = append(out, n.ID)
		}
	}
	return out
}

// Snapshot returns the graph as a persistable snapshot (viewport left zero).
func (g Graph) Snapshot() canvas.Snapshot {
	return canvas.Snapshot{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Each calls fn for every node without copying node data. fn must not retain
// or modify n.Data.
func (g Graph) Each(fn func(n canvas.Node, degree int)) {
	for _, n := range g.nodes {
		fn(n, len(g.adj[n.ID]))
	}
}
