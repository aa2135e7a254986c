package particles

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/graph"
	"github.com/canvas-studio/engine/internal/viewport"
	"github.com/canvas-studio/engine/pkg/logger"
)

// Attractors projects node centres into screen space. Selected nodes pull at
// full strength; others scale with how connected they are.
func Attractors(g graph.Graph, vp canvas.Viewport) []Attractor {
	out := make([]Attractor, 0, g.Len())
	g.Each(func(n canvas.Node, degree int) {
		s := viewport.GraphToScreen(vp, n.Center())
		strength := 0.25 + 0.1*float64(min(degree, 5))
		if n.Selected {
			strength = 1
		}
		out = append(out, Attractor{X: s.X, Y: s.Y, Strength: strength})
	})
	return out
}

// Scene returns the graph and viewport to project for the next frame.
type Scene func() (graph.Graph, canvas.Viewport)

// Sink receives each rendered frame. The image is reused by the next frame.
type Sink func(frame image.Image)

// LoopOptions configures a Loop.
type LoopOptions struct {
	FPS        int
	Field      Options
	Background color.Color
	Logger     *zap.Logger
}

// resizeThreshold is the relative size change that rebuilds the field.
const resizeThreshold = 0.1

// Loop drives a Field at a fixed frame rate on its own goroutine.
type Loop struct {
	opts  LoopOptions
	scene Scene
	sink  Sink
	log   *zap.Logger

	mu    sync.Mutex
	field *Field
	dc    *gg.Context

	frames atomic.Uint64
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartLoop begins animating a w×h field.
func StartLoop(w, h int, scene Scene, sink Sink, opts LoopOptions) *Loop {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Background == nil {
		opts.Background = color.Transparent
	}
	l := &Loop{
		opts:  opts,
		scene: scene,
		sink:  sink,
		log:   logger.OrGlobal(opts.Logger),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	l.reset(w, h)
	go l.run()
	return l
}

func (l *Loop) reset(w, h int) {
	l.field = New(float64(w), float64(h), l.opts.Field)
	if w > 0 && h > 0 {
		l.dc = gg.NewContext(w, h)
	} else {
		l.dc = nil
	}
}

func (l *Loop) run() {
	defer close(l.done)
	t := time.NewTicker(time.Second / time.Duration(l.opts.FPS))
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			dt := now.Sub(last).Seconds()
			last = now
			l.frame(dt)
		}
	}
}

func (l *Loop) frame(dt float64) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("particle frame panicked", zap.Any("panic", r))
		}
	}()
	var attractors []Attractor
	if l.scene != nil {
		g, vp := l.scene()
		attractors = Attractors(g, vp)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Long stalls (suspended tab, debugger) must not teleport particles.
	l.field.Update(math.Min(dt, 0.1), attractors)
	if l.dc == nil {
		return
	}
	l.dc.SetColor(l.opts.Background)
	l.dc.Clear()
	l.field.Render(l.dc)
	l.frames.Add(1)
	if l.sink != nil {
		l.sink(l.dc.Image())
	}
}

// Resize rebuilds the field when the size changed significantly; small
// changes only move the wrap bounds.
func (l *Loop) Resize(w, h int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ow, oh := l.field.W, l.field.H
	if significant(ow, float64(w)) || significant(oh, float64(h)) {
		l.reset(w, h)
		return
	}
	l.field.W, l.field.H = float64(w), float64(h)
	l.dc = gg.NewContext(w, h)
}

func significant(old, cur float64) bool {
	if old <= 0 {
		return cur > 0
	}
	return math.Abs(cur-old)/old > resizeThreshold
}

// Field returns a copy of the current particle state.
func (l *Loop) Field() Field {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := *l.field
	f.Particles = append([]Particle(nil), l.field.Particles...)
	f.Links = append([]Link(nil), l.field.Links...)
	return f
}

// Frames returns how many frames were rendered.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Stop cancels the loop and waits for the current frame to finish.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}
