// Package viewport models the pan/zoom transform between graph space and
// screen space.
package viewport

import (
	"math"
	"sync"

	"github.com/canvas-studio/engine/internal/canvas"
)

// Zoom limits and step.
const (
	MinZoom    = 0.1
	MaxZoom    = 2.0
	ZoomFactor = 1.2
	// FitMargin pads the content bounding box in fit-to-content, in graph units.
	FitMargin = 50.0
)

// Size is the on-screen size of the canvas in pixels.
type Size struct {
	Width, Height float64
}

// Listener is called with the new viewport after each effective change.
type Listener func(canvas.Viewport)

// Model holds the current viewport and the screen size it maps onto.
type Model struct {
	mu        sync.RWMutex
	vp        canvas.Viewport
	size      Size
	minZoom   float64
	maxZoom   float64
	listeners map[int]Listener
	nextSub   int
}

// New returns a model at the identity viewport.
func New(size Size) *Model {
	return &Model{
		vp:        canvas.DefaultViewport,
		size:      size,
		minZoom:   MinZoom,
		maxZoom:   MaxZoom,
		listeners: map[int]Listener{},
	}
}

// Viewport returns the current viewport.
func (m *Model) Viewport() canvas.Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vp
}

// Size returns the current screen size.
func (m *Model) Size() Size {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Subscribe registers fn and returns a function that removes it.
func (m *Model) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// ScreenToGraph converts a screen-space point to graph space.
func (m *Model) ScreenToGraph(p canvas.Position) canvas.Position {
	return ScreenToGraph(m.Viewport(), p)
}

// GraphToScreen converts a graph-space point to screen space.
func (m *Model) GraphToScreen(p canvas.Position) canvas.Position {
	return GraphToScreen(m.Viewport(), p)
}

// ScreenToGraph applies graph = (screen - translation) / zoom.
func ScreenToGraph(vp canvas.Viewport, p canvas.Position) canvas.Position {
	return canvas.Position{X: (p.X - vp.X) / vp.Zoom, Y: (p.Y - vp.Y) / vp.Zoom}
}

// GraphToScreen applies screen = graph*zoom + translation.
func GraphToScreen(vp canvas.Viewport, p canvas.Position) canvas.Position {
	return canvas.Position{X: p.X*vp.Zoom + vp.X, Y: p.Y*vp.Zoom + vp.Y}
}

// SetViewport replaces the viewport; zoom is clamped.
func (m *Model) SetViewport(vp canvas.Viewport) canvas.Viewport {
	return m.update(func(canvas.Viewport, Size) canvas.Viewport { return vp })
}

// Reset restores {0, 0, 1}.
func (m *Model) Reset() canvas.Viewport {
	return m.SetViewport(canvas.DefaultViewport)
}

// Pan translates the viewport by a screen-space delta.
func (m *Model) Pan(dx, dy float64) canvas.Viewport {
	return m.update(func(vp canvas.Viewport, _ Size) canvas.Viewport {
		vp.X += dx
		vp.Y += dy
		return vp
	})
}

// ZoomIn zooms by ZoomFactor around the screen centre.
func (m *Model) ZoomIn() canvas.Viewport { return m.zoomCentre(ZoomFactor) }

// ZoomOut zooms by 1/ZoomFactor around the screen centre.
func (m *Model) ZoomOut() canvas.Viewport { return m.zoomCentre(1 / ZoomFactor) }

func (m *Model) zoomCentre(factor float64) canvas.Viewport {
	s := m.Size()
	return m.ZoomAt(canvas.Position{X: s.Width / 2, Y: s.Height / 2}, factor)
}

// ZoomAt scales by factor keeping the graph point under screen point p fixed.
func (m *Model) ZoomAt(p canvas.Position, factor float64) canvas.Viewport {
	return m.update(func(vp canvas.Viewport, _ Size) canvas.Viewport {
		anchor := ScreenToGraph(vp, p)
		zoom := m.clamp(vp.Zoom * factor)
		return canvas.Viewport{X: p.X - anchor.X*zoom, Y: p.Y - anchor.Y*zoom, Zoom: zoom}
	})
}

// FitToContent frames every node footprint plus margin. The zoom is
// min(width/boxWidth, height/boxHeight, maxZoom), clamped to minZoom, and the
// box is centred. With no nodes the viewport is reset.
func (m *Model) FitToContent(nodes []canvas.Node, margin float64) canvas.Viewport {
	box, ok := canvas.BoundsOf(nodes)
	if !ok {
		return m.Reset()
	}
	return m.update(func(_ canvas.Viewport, s Size) canvas.Viewport {
		return Fit(box.Inset(margin), s, m.minZoom, m.maxZoom)
	})
}

// Fit returns the viewport framing box inside a screen of size s.
func Fit(box canvas.Rect, s Size, minZoom, maxZoom float64) canvas.Viewport {
	zoom := maxZoom
	if box.W > 0 && s.Width > 0 {
		zoom = math.Min(zoom, s.Width/box.W)
	}
	if box.H > 0 && s.Height > 0 {
		zoom = math.Min(zoom, s.Height/box.H)
	}
	zoom = math.Max(zoom, minZoom)
	c := box.Center()
	return canvas.Viewport{X: s.Width/2 - c.X*zoom, Y: s.Height/2 - c.Y*zoom, Zoom: zoom}
}

// Resize records a new screen size. The viewport itself is unchanged, so no
// listener fires.
func (m *Model) Resize(s Size) {
	m.mu.Lock()
	m.size = s
	m.mu.Unlock()
}

// VisibleRect returns the graph-space rectangle currently on screen.
func (m *Model) VisibleRect() canvas.Rect {
	m.mu.RLock()
	vp, s := m.vp, m.size
	m.mu.RUnlock()
	return canvas.RectFromPoints(
		ScreenToGraph(vp, canvas.Position{}),
		ScreenToGraph(vp, canvas.Position{X: s.Width, Y: s.Height}),
	)
}

func (m *Model) clamp(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return m.minZoom
	}
	return math.Min(math.Max(z, m.minZoom), m.maxZoom)
}

func (m *Model) update(fn func(canvas.Viewport, Size) canvas.Viewport) canvas.Viewport {
	m.mu.Lock()
	next := fn(m.vp, m.size)
	next.Zoom = m.clamp(next.Zoom)
	if next == m.vp {
		m.mu.Unlock()
		return next
	}
	m.vp = next
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		l(next)
	}
	return next
}
