// Package editor wires one open canvas: graph store, viewport, selection,
// commands, auto-save and the optional particle background.
package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/autosave"
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/commands"
	"github.com/canvas-studio/engine/internal/graph"
	"github.com/canvas-studio/engine/internal/metrics"
	"github.com/canvas-studio/engine/internal/particles"
	"github.com/canvas-studio/engine/internal/selection"
	"github.com/canvas-studio/engine/internal/store"
	"github.com/canvas-studio/engine/internal/viewport"
	"github.com/canvas-studio/engine/pkg/logger"
)

// Options configures a Session.
type Options struct {
	CanvasID string
	OwnerID  string
	Name     string
	Size     viewport.Size

	Save autosave.Options // Store, CanvasID, OwnerID and Name are filled in by Open

	// Particles starts the background animation when set.
	Particles    bool
	ParticleFPS  int
	ParticleSink particles.Sink
	ParticleOpts *particles.Options

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Session is an open canvas.
type Session struct {
	Graph     *graph.Store
	View      *viewport.Model
	Selection *selection.Engine
	Commands  *commands.Layer
	Saves     *autosave.Pipeline

	ids     *canvas.IDCounter
	loop    *particles.Loop
	loadErr error
	log     *zap.Logger

	closeOnce sync.Once
	unsubs    []func()
}

// Open loads the canvas and starts auto-save. A load failure does not fail
// Open: the session starts empty, the save state shows the error, and
// LoadErr reports it. Saves then retry the load first; if the stored canvas
// turns up it replaces the session's content.
func Open(ctx context.Context, st store.Store, opts Options) (*Session, error) {
	if st == nil {
		return nil, errors.New("editor: store is required")
	}
	if opts.OwnerID == "" {
		return nil, errors.New("editor: owner id is required")
	}
	log := logger.OrGlobal(opts.Logger)

	so := opts.Save
	so.Store = st
	so.CanvasID = opts.CanvasID
	so.OwnerID = opts.OwnerID
	so.Name = opts.Name
	if so.Metrics == nil {
		so.Metrics = opts.Metrics
	}
	if so.Logger == nil {
		so.Logger = log
	}
	var s *Session
	onReload := so.OnReload
	so.OnReload = func(snap canvas.Snapshot) {
		s.adopt(snap)
		if onReload != nil {
			onReload(snap)
		}
	}
	pipeline := autosave.New(so)

	snap, err := pipeline.Load(ctx)
	if err != nil && !errors.Is(err, autosave.ErrLoadFailure) {
		pipeline.Close()
		return nil, err
	}

	s = &Session{
		Graph:   graph.NewStore(),
		View:    viewport.New(opts.Size),
		Saves:   pipeline,
		ids:     canvas.NewIDCounter(snap.NextNodeID),
		loadErr: err,
		log:     log,
	}
	s.Graph.Replace(snap)
	s.View.SetViewport(snap.Viewport)
	s.Selection = selection.NewEngine(s.Graph, s.View)
	s.Commands = commands.New(s.Graph, s.View, s.ids, saver{s}, log)

	// Subscribed after the initial replace so loading never schedules a save.
	s.unsubs = append(s.unsubs,
		s.Graph.Subscribe(func(g graph.Graph) { pipeline.Observe(s.snapshotOf(g)) }),
		s.View.Subscribe(func(canvas.Viewport) { pipeline.Observe(s.Snapshot()) }),
	)

	if opts.Particles {
		po := particles.DefaultOptions()
		if opts.ParticleOpts != nil {
			po = *opts.ParticleOpts
		}
		s.loop = particles.StartLoop(int(opts.Size.Width), int(opts.Size.Height),
			func() (graph.Graph, canvas.Viewport) { return s.Graph.Current(), s.View.Viewport() },
			opts.ParticleSink,
			particles.LoopOptions{FPS: opts.ParticleFPS, Field: po, Logger: log},
		)
	}
	return s, nil
}

// Snapshot returns a consistent point-in-time copy of the canvas.
func (s *Session) Snapshot() canvas.Snapshot {
	return s.snapshotOf(s.Graph.Current())
}

func (s *Session) snapshotOf(g graph.Graph) canvas.Snapshot {
	snap := g.Snapshot()
	snap.Viewport = s.View.Viewport()
	snap.NextNodeID = s.ids.Peek()
	return snap
}

// adopt replaces the session's content with a snapshot reloaded by the save
// pipeline.
func (s *Session) adopt(snap canvas.Snapshot) {
	s.ids.Seed(snap.NextNodeID)
	s.View.SetViewport(snap.Viewport)
	s.Graph.Replace(snap)
	s.log.Info("canvas session reloaded", zap.Int("nodes", len(snap.Nodes)))
}

// LoadErr returns the load failure the session started with, if any.
func (s *Session) LoadErr() error { return s.loadErr }

// SaveState returns the current save status.
func (s *Session) SaveState() autosave.SaveState { return s.Saves.State() }

// Resize updates the screen size of the viewport and the particle field.
func (s *Session) Resize(size viewport.Size) {
	s.View.Resize(size)
	if s.loop != nil {
		s.loop.Resize(int(size.Width), int(size.Height))
	}
}

// Particles returns the running particle loop, nil when disabled.
func (s *Session) Particles() *particles.Loop { return s.loop }

// Close cancels the debounce timer, the relabel ticker and the animation
// loop. Edits after Close are no longer saved.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, u := range s.unsubs {
			u()
		}
		s.Saves.Close()
		if s.loop != nil {
			s.loop.Stop()
		}
		s.log.Debug("canvas session closed", zap.String("canvas_id", s.Saves.CanvasID()))
	})
}

type saver struct{ s *Session }

func (v saver) Save(ctx context.Context) error {
	return v.s.Saves.SaveNow(ctx, v.s.Snapshot())
}
