package canvas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectFromPointsNormalises(t *testing.T) {
	r := RectFromPoints(Position{X: 100, Y: 50}, Position{X: 10, Y: 200})
	assert.Equal(t, Rect{X: 10, Y: 50, W: 90, H: 150}, r)
}

func TestRectContains(t *testing.T) {
	outer := Rect{X: 0, Y: 0, W: 100, H: 100}
	assert.True(t, outer.Contains(Rect{X: 0, Y: 0, W: 100, H: 100}))
	assert.True(t, outer.Contains(Rect{X: 10, Y: 10, W: 20, H: 20}))
	assert.False(t, outer.Contains(Rect{X: 90, Y: 10, W: 20, H: 20}))
}

func TestSanitizeDropsDanglingEdges(t *testing.T) {
	s := Snapshot{
		Nodes: []Node{{ID: "a"}, {ID: "b"}, {ID: "a"}},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "ghost"},
		},
		Viewport: Viewport{Zoom: 0},
	}
	require.False(t, s.Consistent())

	out := s.Sanitize()
	assert.True(t, out.Consistent())
	assert.Len(t, out.Nodes, 2)
	assert.Len(t, out.Edges, 1)
	assert.Equal(t, 1.0, out.Viewport.Zoom)
}

func TestFingerprintStable(t *testing.T) {
	a := Snapshot{
		Nodes:    []Node{{ID: "node-1", Type: NodeText, Position: Position{X: 1, Y: 2}, Data: json.RawMessage(`{"b":1,"a":2}`)}},
		Viewport: DefaultViewport,
	}
	b := a.Clone()
	b.Nodes[0].Data = json.RawMessage(`{ "a": 2, "b": 1 }`)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b.Nodes[0].Position.X = 3
	fc, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestFingerprintKeepsNumberPrecision(t *testing.T) {
	snap := func(data string) Snapshot {
		return Snapshot{
			Nodes:    []Node{{ID: "node-1", Type: NodeText, Data: json.RawMessage(data)}},
			Viewport: DefaultViewport,
		}
	}
	fa, err := Fingerprint(snap(`{"ref":9007199254740993}`))
	require.NoError(t, err)
	fb, err := Fingerprint(snap(`{"ref":9007199254740992}`))
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	fc, err := Fingerprint(snap(`{"w":0.10000000000000000555}`))
	require.NoError(t, err)
	fd, err := Fingerprint(snap(`{"w":0.1}`))
	require.NoError(t, err)
	assert.NotEqual(t, fc, fd)

	fe, err := Fingerprint(snap(`{ "ref" : 9007199254740993 }`))
	require.NoError(t, err)
	assert.Equal(t, fa, fe)
}

func TestFingerprintNilAndEmptyEdgesMatch(t *testing.T) {
	fa, err := Fingerprint(Snapshot{Viewport: DefaultViewport})
	require.NoError(t, err)
	fb, err := Fingerprint(Snapshot{Edges: []Edge{}, Viewport: DefaultViewport})
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestCloneIsolatesData(t *testing.T) {
	s := Snapshot{Nodes: []Node{{ID: "n", Data: json.RawMessage(`{"x":1}`)}}}
	c := s.Clone()
	c.Nodes[0].Data[2] = 'y'
	assert.Equal(t, `{"x":1}`, string(s.Nodes[0].Data))
}

func TestNumericSuffix(t *testing.T) {
	cases := map[string]struct {
		want int64
		ok   bool
	}{
		"node-12": {12, true},
		"text_7":  {7, true},
		"007":     {7, true},
		"abc":     {0, false},
		"":        {0, false},
	}
	for id, tc := range cases {
		got, ok := NumericSuffix(id)
		assert.Equal(t, tc.ok, ok, id)
		assert.Equal(t, tc.want, got, id)
	}
}

func TestSeedFromUsesMaxOfCounterAndSuffixes(t *testing.T) {
	s := Snapshot{Nodes: []Node{{ID: "node-3"}, {ID: "node-9"}, {ID: "custom"}}}
	assert.Equal(t, int64(10), SeedFrom(s))

	s.NextNodeID = 40
	assert.Equal(t, int64(40), SeedFrom(s))
}

func TestIDCounterMonotonic(t *testing.T) {
	c := NewIDCounter(5)
	assert.Equal(t, "node-5", c.Next())
	c.Seed(3)
	assert.Equal(t, "node-6", c.Next())
	c.Seed(20)
	assert.Equal(t, "node-20", c.Next())
	assert.Equal(t, int64(21), c.Peek())
}

func TestDecodeEmpty(t *testing.T) {
	s, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultViewport, s.Viewport)

	_, err = Decode([]byte("{not json"))
	assert.Error(t, err)
}
