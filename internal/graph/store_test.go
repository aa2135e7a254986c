package graph

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvas-studio/engine/internal/canvas"
)

func node(id string, x, y float64) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.NodeText, Position: canvas.Position{X: x, Y: y}}
}

func assertNoDangling(t *testing.T, g Graph) {
	t.Helper()
	for _, e := range g.Edges() {
		require.True(t, g.Has(e.Source), "edge %s has missing source %s", e.ID, e.Source)
		require.True(t, g.Has(e.Target), "edge %s has missing target %s", e.ID, e.Target)
	}
}

func TestConnectRejectsSelfLoopAndUnknown(t *testing.T) {
	s := NewStore()
	s.AddNodes([]canvas.Node{node("a", 0, 0), node("b", 10, 0)})

	g := s.Connect("a", "a")
	assert.Empty(t, g.Edges())

	g = s.Connect("a", "ghost")
	assert.Empty(t, g.Edges())

	g = s.Connect("a", "b")
	require.Len(t, g.Edges(), 1)
	assert.Equal(t, "ea-b", g.Edges()[0].ID)
}

func TestConnectAllowsParallelEdges(t *testing.T) {
	s := NewStore()
	s.AddNodes([]canvas.Node{node("a", 0, 0), node("b", 10, 0)})
	s.Connect("a", "b")
	g := s.Connect("a", "b")

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.NotEqual(t, edges[0].ID, edges[1].ID)
	assert.Equal(t, 2, g.Degree("a"))
	assert.Equal(t, []string{"b"}, g.Neighbors("a"))
}

func TestDeleteRemovesExactlyIncidentEdges(t *testing.T) {
	s := NewStore()
	s.AddNodes([]canvas.Node{node("a", 0, 0), node("b", 0, 0), node("c", 0, 0), node("d", 0, 0)})
	s.Connect("a", "b")
	s.Connect("c", "a")
	s.Connect("b", "c")
	s.Connect("c", "d")

	g := s.DeleteNodes([]string{"a"})

	var ids []string
	for _, e := range g.Edges() {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"eb-c", "ec-d"}, ids)
	assertNoDangling(t, g)
}

func TestConnectThenDeleteLeavesNoEdges(t *testing.T) {
	s := NewStore()
	s.AddNodes([]canvas.Node{node("a", 0, 0), node("b", 0, 0)})
	s.Connect("a", "b")

	g := s.DeleteNodes([]string{"a"})
	assert.Empty(t, g.Edges())
	assert.Equal(t, 1, g.Len())
}

func TestUnknownIDsIgnored(t *testing.T) {
	s := NewStore()
	s.AddNode(node("a", 0, 0))
	calls := 0
	s.Subscribe(func(Graph) { calls++ })

	s.DeleteNodes([]string{"nope"})
	s.ApplyNodeChanges([]NodeChange{
		NodePosition{ID: "nope", Position: canvas.Position{X: 1}},
		NodeSelect{ID: "nope", Selected: true},
		NodeData{ID: "nope", Data: json.RawMessage(`{}`)},
	})
	s.ApplyEdgeChanges([]EdgeChange{EdgeRemove{ID: "nope"}})
	s.AddNode(node("a", 5, 5))

	assert.Equal(t, 0, calls)
	n, _ := s.Current().Node("a")
	assert.Equal(t, canvas.Position{}, n.Position)
}

func TestGraphsAreImmutable(t *testing.T) {
	s := NewStore()
	s.AddNode(node("a", 0, 0))
	before := s.Current()

	s.ApplyNodeChanges([]NodeChange{NodePosition{ID: "a", Position: canvas.Position{X: 99}}})

	n, _ := before.Node("a")
	assert.Equal(t, 0.0, n.Position.X)
	n, _ = s.Current().Node("a")
	assert.Equal(t, 99.0, n.Position.X)
}

func TestNodeDataCopiedOnWrite(t *testing.T) {
	s := NewStore()
	s.AddNode(node("a", 0, 0))
	payload := json.RawMessage(`{"text":"hi"}`)
	s.ApplyNodeChanges([]NodeChange{NodeData{ID: "a", Data: payload}})
	payload[2] = 'X'

	n, _ := s.Current().Node("a")
	assert.JSONEq(t, `{"text":"hi"}`, string(n.Data))
}

func TestSelection(t *testing.T) {
	s := NewStore()
	s.AddNodes([]canvas.Node{node("a", 0, 0), node("b", 0, 0), node("c", 0, 0)})

	assert.Equal(t, []string{"a", "b", "c"}, s.SelectAll().Selected())
	assert.Empty(t, s.ClearSelection().Selected())
	assert.Equal(t, []string{"a", "c"}, s.SetSelection([]string{"c", "a", "ghost"}).Selected())
}

func TestReplaceSanitizes(t *testing.T) {
	s := NewStore()
	s.AddNode(node("old", 0, 0))

	g := s.Replace(canvas.Snapshot{
		Nodes: []canvas.Node{node("x", 0, 0)},
		Edges: []canvas.Edge{{ID: "e", Source: "x", Target: "gone"}},
	})
	assert.False(t, g.Has("old"))
	assert.True(t, g.Has("x"))
	assert.Empty(t, g.Edges())
}

func TestListenersReceiveNewGraph(t *testing.T) {
	s := NewStore()
	var seen []int
	unsub := s.Subscribe(func(g Graph) { seen = append(seen, g.Len()) })

	s.AddNode(node("a", 0, 0))
	s.AddNode(node("b", 0, 0))
	unsub()
	s.AddNode(node("c", 0, 0))

	assert.Equal(t, []int{1, 2}, seen)
}

func TestDragFramesNotifyOnDrop(t *testing.T) {
	s := NewStore()
	s.AddNode(node("a", 0, 0))
	var seen []float64
	s.Subscribe(func(g Graph) {
		n, _ := g.Node("a")
		seen = append(seen, n.Position.X)
	})

	for x := 1.0; x <= 3; x++ {
		s.ApplyNodeChanges([]NodeChange{NodePosition{ID: "a", Position: canvas.Position{X: x}, Dragging: true}})
	}
	n, _ := s.Current().Node("a")
	assert.Equal(t, 3.0, n.Position.X)
	assert.Empty(t, seen)

	// Dropping where the last frame left the node still notifies once.
	s.ApplyNodeChanges([]NodeChange{NodePosition{ID: "a", Position: canvas.Position{X: 3}}})
	assert.Equal(t, []float64{3}, seen)

	s.ApplyNodeChanges([]NodeChange{NodePosition{ID: "a", Position: canvas.Position{X: 3}}})
	assert.Len(t, seen, 1)
}

func TestRandomSequencesNeverDangle(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	s := NewStore()
	for step := 0; step < 2000; step++ {
		g := s.Current()
		switch r.IntN(4) {
		case 0, 1:
			s.AddNode(node(fmt.Sprintf("n%d", step), 0, 0))
		case 2:
			nodes := g.Nodes()
			if len(nodes) >= 2 {
				s.Connect(nodes[r.IntN(len(nodes))].ID, nodes[r.IntN(len(nodes))].ID)
			}
		case 3:
			nodes := g.Nodes()
			if len(nodes) > 0 {
				s.DeleteNodes([]string{nodes[r.IntN(len(nodes))].ID})
			}
		}
		assertNoDangling(t, s.Current())
	}
}
