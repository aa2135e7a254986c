package viewport

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvas-studio/engine/internal/canvas"
)

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		vp := canvas.Viewport{
			X:    r.Float64()*4000 - 2000,
			Y:    r.Float64()*4000 - 2000,
			Zoom: 0.01 + r.Float64()*5,
		}
		p := canvas.Position{X: r.Float64()*10000 - 5000, Y: r.Float64()*10000 - 5000}

		back := ScreenToGraph(vp, GraphToScreen(vp, p))
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
	}
}

func TestZoomClamped(t *testing.T) {
	m := New(Size{Width: 800, Height: 600})
	for i := 0; i < 50; i++ {
		m.ZoomIn()
	}
	assert.Equal(t, MaxZoom, m.Viewport().Zoom)
	for i := 0; i < 100; i++ {
		m.ZoomOut()
	}
	assert.Equal(t, MinZoom, m.Viewport().Zoom)

	assert.Equal(t, MinZoom, m.SetViewport(canvas.Viewport{Zoom: 0}).Zoom)
}

func TestZoomAtKeepsAnchor(t *testing.T) {
	m := New(Size{Width: 800, Height: 600})
	m.SetViewport(canvas.Viewport{X: 40, Y: -20, Zoom: 1})
	anchor := canvas.Position{X: 300, Y: 200}
	before := m.ScreenToGraph(anchor)

	m.ZoomAt(anchor, 1.5)

	after := m.ScreenToGraph(anchor)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)
}

func TestFitToContent(t *testing.T) {
	m := New(Size{Width: 1000, Height: 500})
	nodes := []canvas.Node{
		{ID: "a", Type: canvas.NodeText, Position: canvas.Position{X: 0, Y: 0}},
		{ID: "b", Type: canvas.NodeText, Position: canvas.Position{X: 1720, Y: 0}},
	}
	// bbox 2000x200, margin 50 -> 2100x300; zoom = min(1000/2100, 500/300, 2)
	vp := m.FitToContent(nodes, FitMargin)
	assert.InDelta(t, 1000.0/2100.0, vp.Zoom, 1e-9)

	centre := m.GraphToScreen(canvas.Position{X: 1000, Y: 100})
	assert.InDelta(t, 500, centre.X, 1e-6)
	assert.InDelta(t, 250, centre.Y, 1e-6)
}

func TestFitSmallContentCapsAtMaxZoom(t *testing.T) {
	m := New(Size{Width: 4000, Height: 4000})
	vp := m.FitToContent([]canvas.Node{{ID: "a", Type: canvas.NodeText}}, 0)
	assert.Equal(t, MaxZoom, vp.Zoom)
}

func TestFitEmptyResets(t *testing.T) {
	m := New(Size{Width: 800, Height: 600})
	m.Pan(100, 100)
	assert.Equal(t, canvas.DefaultViewport, m.FitToContent(nil, FitMargin))
}

func TestListenersOnlyOnChange(t *testing.T) {
	m := New(Size{Width: 800, Height: 600})
	var got []canvas.Viewport
	m.Subscribe(func(vp canvas.Viewport) { got = append(got, vp) })

	m.Reset()
	m.Pan(10, 0)
	m.Resize(Size{Width: 100, Height: 100})

	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].X)
}

func TestVisibleRect(t *testing.T) {
	m := New(Size{Width: 800, Height: 600})
	m.SetViewport(canvas.Viewport{X: -100, Y: -50, Zoom: 2})
	r := m.VisibleRect()
	assert.InDelta(t, 50, r.X, 1e-9)
	assert.InDelta(t, 25, r.Y, 1e-9)
	assert.InDelta(t, 400, r.W, 1e-9)
	assert.InDelta(t, 300, r.H, 1e-9)
}
