// Package thumbnail renders a small schematic preview of a canvas: one
// coloured rectangle per node, one line per edge.
package thumbnail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/canvas-studio/engine/internal/canvas"
)

// ErrEmpty is returned for a snapshot without nodes.
var ErrEmpty = errors.New("thumbnail: no nodes to render")

// Options controls thumbnail geometry.
type Options struct {
	Width      int
	Height     int
	Padding    float64
	Background color.Color
	EdgeColor  color.Color
}

// DefaultOptions returns a 320x180 thumbnail on a dark background.
func DefaultOptions() Options {
	return Options{
		Width:      320,
		Height:     180,
		Padding:    12,
		Background: color.RGBA{0x0f, 0x17, 0x2a, 0xff},
		EdgeColor:  color.RGBA{0x94, 0xa3, 0xb8, 0xff},
	}
}

// Layout is the transform from graph space to thumbnail pixels.
type Layout struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
	Bounds  canvas.Rect
}

// Apply maps a graph-space point into the thumbnail.
func (l Layout) Apply(p canvas.Position) (float64, float64) {
	return (p.X-l.Bounds.X)*l.Scale + l.OffsetX, (p.Y-l.Bounds.Y)*l.Scale + l.OffsetY
}

// Fit computes the uniform scale that fits every node footprint inside the
// thumbnail, never scaling above 1, and centres the result.
func Fit(nodes []canvas.Node, opts Options) (Layout, error) {
	box, ok := canvas.BoundsOf(nodes)
	if !ok {
		return Layout{}, ErrEmpty
	}
	availW := float64(opts.Width) - 2*opts.Padding
	availH := float64(opts.Height) - 2*opts.Padding
	if availW <= 0 || availH <= 0 {
		return Layout{}, fmt.Errorf("thumbnail: padding %.0f leaves no room in %dx%d", opts.Padding, opts.Width, opts.Height)
	}
	scale := 1.0
	if box.W > 0 {
		scale = math.Min(scale, availW/box.W)
	}
	if box.H > 0 {
		scale = math.Min(scale, availH/box.H)
	}
	return Layout{
		Scale:   scale,
		OffsetX: (float64(opts.Width) - box.W*scale) / 2,
		OffsetY: (float64(opts.Height) - box.H*scale) / 2,
		Bounds:  box,
	}, nil
}

// Render draws the schematic for snap.
func Render(snap canvas.Snapshot, opts Options) (img image.Image, err error) {
	layout, err := Fit(snap.Nodes, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("thumbnail: render panicked: %v", r)
		}
	}()

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(opts.Background)
	dc.Clear()

	centres := make(map[string]canvas.Position, len(snap.Nodes))
	for _, n := range snap.Nodes {
		centres[n.ID] = n.Center()
	}

	dc.SetColor(opts.EdgeColor)
	dc.SetLineWidth(math.Max(1, 2*layout.Scale))
	for _, e := range snap.Edges {
		a, okA := centres[e.Source]
		b, okB := centres[e.Target]
		if !okA || !okB {
			continue
		}
		x1, y1 := layout.Apply(a)
		x2, y2 := layout.Apply(b)
		dc.DrawLine(x1, y1, x2, y2)
		dc.Stroke()
	}

	for _, n := range snap.Nodes {
		r := n.Bounds()
		x, y := layout.Apply(canvas.Position{X: r.X, Y: r.Y})
		w := math.Max(2, r.W*layout.Scale)
		h := math.Max(2, r.H*layout.Scale)
		dc.SetColor(canvas.ColorOf(n.Type))
		dc.DrawRoundedRectangle(x, y, w, h, math.Min(6, w/4))
		dc.Fill()
		if n.Selected {
			dc.SetColor(color.White)
			dc.SetLineWidth(1)
			dc.DrawRoundedRectangle(x, y, w, h, math.Min(6, w/4))
			dc.Stroke()
		}
	}
	return dc.Image(), nil
}

// PNG renders snap and encodes it as PNG bytes.
func PNG(snap canvas.Snapshot, opts Options) ([]byte, error) {
	img, err := Render(snap, opts)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForImage(img)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("thumbnail: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL renders snap as a base64 PNG data URL suitable for thumbnailUrl.
func DataURL(snap canvas.Snapshot, opts Options) (string, error) {
	b, err := PNG(snap, opts)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Renderer adapts Options to the auto-save pipeline's thumbnail hook.
type Renderer struct {
	Options Options
}

// Thumbnail returns the data URL for snap.
func (r Renderer) Thumbnail(snap canvas.Snapshot) (string, error) {
	return DataURL(snap, r.Options)
}
