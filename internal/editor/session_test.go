package editor

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvas-studio/engine/internal/autosave"
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/commands"
	"github.com/canvas-studio/engine/internal/store"
	"github.com/canvas-studio/engine/internal/viewport"
)

const window = 25 * time.Millisecond

func open(t *testing.T, st store.Store, mod ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		OwnerID: "u1",
		Name:    "Board",
		Size:    viewport.Size{Width: 1200, Height: 800},
		Save:    autosave.Options{Debounce: window},
	}
	for _, fn := range mod {
		fn(&opts)
	}
	s, err := Open(context.Background(), st, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func settle(t *testing.T, m *store.Memory, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Upserts() == n }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return m.Upserts() > n }, 4*window, 5*time.Millisecond)
}

func TestOpenEmptyAndAddNode(t *testing.T) {
	m := store.NewMemory()
	s := open(t, m)
	assert.Zero(t, s.Graph.Current().Len())
	require.Never(t, func() bool { return m.Upserts() > 0 }, 4*window, 5*time.Millisecond)

	id := s.Commands.AddNode(canvas.NodeText, canvas.Position{X: 100, Y: 100}, nil)
	assert.Equal(t, "node-1", id)
	settle(t, m, 1)

	rec, err := m.Load(context.Background(), store.Query{OwnerID: "u1", Name: "Board"})
	require.NoError(t, err)
	require.Len(t, rec.Snapshot.Nodes, 1)
	assert.Empty(t, rec.Snapshot.Edges)
	assert.Equal(t, int64(2), rec.Snapshot.NextNodeID)
	assert.Equal(t, canvas.Position{X: 100, Y: 100}, rec.Snapshot.Nodes[0].Position)
}

func TestReopenRestoresGraphViewportAndCounter(t *testing.T) {
	m := store.NewMemory()
	m.Put(store.Record{
		ID: "c1", OwnerID: "u1", Name: "Board", UpdatedAt: time.Now(),
		Snapshot: canvas.Snapshot{
			Nodes: []canvas.Node{
				{ID: "node-3", Type: canvas.NodeText},
				{ID: "node-9", Type: canvas.NodeImage, Position: canvas.Position{X: 400}},
			},
			Edges:    []canvas.Edge{{ID: "enode-3-node-9", Source: "node-3", Target: "node-9"}},
			Viewport: canvas.Viewport{X: -20, Y: 40, Zoom: 0.75},
		},
	})
	s := open(t, m, func(o *Options) { o.CanvasID = "c1" })

	assert.Equal(t, 2, s.Graph.Current().Len())
	assert.Len(t, s.Graph.Current().Edges(), 1)
	assert.Equal(t, canvas.Viewport{X: -20, Y: 40, Zoom: 0.75}, s.View.Viewport())
	require.Never(t, func() bool { return m.Upserts() > 0 }, 4*window, 5*time.Millisecond)

	id := s.Commands.AddNode(canvas.NodeURL, canvas.Position{}, nil)
	assert.Equal(t, "node-10", id)
	settle(t, m, 1)
	assert.Equal(t, "c1", s.Saves.CanvasID())
}

func TestViewportChangesAreSaved(t *testing.T) {
	m := store.NewMemory()
	s := open(t, m)
	s.View.Pan(30, 0)
	s.View.Pan(30, 0)
	settle(t, m, 1)

	rec, _ := m.Load(context.Background(), store.Query{OwnerID: "u1", Name: "Board"})
	assert.Equal(t, 60.0, rec.Snapshot.Viewport.X)
}

func TestManualSaveShortcut(t *testing.T) {
	m := store.NewMemory()
	s := open(t, m, func(o *Options) { o.Save.Debounce = time.Hour })
	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)

	handled, err := s.Commands.Handle(context.Background(), commands.KeyEvent{Key: "s", Mod: true})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, m.Upserts())
	assert.Equal(t, "just now", s.SaveState().LastSavedLabel)
}

type flaky struct {
	*store.Memory
	down atomic.Bool
}

func (f *flaky) Load(ctx context.Context, q store.Query) (*store.Record, error) {
	if f.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.Memory.Load(ctx, q)
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	m := store.NewMemory()
	st := &flaky{Memory: m}
	st.down.Store(true)
	s := open(t, st)

	require.ErrorIs(t, s.LoadErr(), autosave.ErrLoadFailure)
	assert.Zero(t, s.Graph.Current().Len())
	assert.Equal(t, "error", s.SaveState().LastSavedLabel)

	st.down.Store(false)
	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)
	settle(t, m, 1)
	assert.NoError(t, s.SaveState().Error)
}

func TestLoadFailureKeepsStoredCanvas(t *testing.T) {
	m := store.NewMemory()
	m.Put(store.Record{
		ID: "c1", OwnerID: "u1", Name: "Board", UpdatedAt: time.Now(),
		Snapshot: canvas.Snapshot{
			Nodes: []canvas.Node{
				{ID: "node-1", Type: canvas.NodeText},
				{ID: "node-2", Type: canvas.NodeText},
				{ID: "node-3", Type: canvas.NodeText},
			},
			Viewport: canvas.Viewport{X: 5, Zoom: 1},
		},
	})
	st := &flaky{Memory: m}
	st.down.Store(true)
	s := open(t, st, func(o *Options) { o.CanvasID = "c1" })
	require.ErrorIs(t, s.LoadErr(), autosave.ErrLoadFailure)

	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)
	require.Never(t, func() bool { return m.Upserts() > 0 }, 4*window, 5*time.Millisecond)
	rec, err := m.Load(context.Background(), store.Query{CanvasID: "c1"})
	require.NoError(t, err)
	assert.Len(t, rec.Snapshot.Nodes, 3)

	// Once the store answers, the stored canvas replaces the local one.
	st.down.Store(false)
	require.NoError(t, s.Commands.Save(context.Background()))
	assert.Equal(t, 3, s.Graph.Current().Len())
	assert.Equal(t, 5.0, s.View.Viewport().X)

	assert.Equal(t, "node-4", s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil))
	require.Eventually(t, func() bool {
		rec, err := m.Load(context.Background(), store.Query{CanvasID: "c1"})
		return err == nil && len(rec.Snapshot.Nodes) == 4
	}, time.Second, 5*time.Millisecond)
}

func TestCloseStopsSaving(t *testing.T) {
	m := store.NewMemory()
	s := open(t, m)
	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)
	s.Close()
	require.Never(t, func() bool { return m.Upserts() > 0 }, 4*window, 5*time.Millisecond)

	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)
	require.Never(t, func() bool { return m.Upserts() > 0 }, 4*window, 5*time.Millisecond)
}

func TestParticlesRunUntilClose(t *testing.T) {
	var frames atomic.Int32
	s := open(t, store.NewMemory(), func(o *Options) {
		o.Particles = true
		o.ParticleFPS = 120
		o.ParticleSink = func(image.Image) { frames.Add(1) }
	})
	s.Commands.AddNode(canvas.NodeText, canvas.Position{}, nil)
	require.Eventually(t, func() bool { return frames.Load() > 2 }, time.Second, 5*time.Millisecond)

	s.Close()
	n := frames.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, frames.Load())
}

func TestOpenValidatesArguments(t *testing.T) {
	_, err := Open(context.Background(), nil, Options{OwnerID: "u1"})
	assert.Error(t, err)
	_, err = Open(context.Background(), store.NewMemory(), Options{})
	assert.Error(t, err)
}
