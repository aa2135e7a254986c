package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "canvas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func board() canvas.Snapshot {
	return canvas.Snapshot{
		Nodes: []canvas.Node{
			{ID: "node-1", Type: canvas.NodeText, Position: canvas.Position{X: 1, Y: 2}, Data: json.RawMessage(`{"text":"hi"}`)},
			{ID: "node-2", Type: canvas.NodeURL},
		},
		Edges:      []canvas.Edge{{ID: "enode-1-node-2", Source: "node-1", Target: "node-2", Style: canvas.EdgeStyle{Animated: true}}},
		Viewport:   canvas.Viewport{X: 3, Y: 4, Zoom: 1.25},
		NextNodeID: 3,
	}
}

func TestUpsertByOwnerAndNameRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	rec, err := s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "Board", Snapshot: board(), ThumbnailURL: "data:a"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	got, err := s.Load(ctx, store.Query{OwnerID: "u1", Name: "Board"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "data:a", got.ThumbnailURL)

	want, _ := canvas.Fingerprint(board())
	have, _ := canvas.Fingerprint(got.Snapshot)
	assert.Equal(t, want, have)

	// Same key, no thumbnail: updates in place and keeps the old thumbnail.
	again, err := s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "Board"})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Empty(t, again.Snapshot.Nodes)
	assert.Equal(t, "data:a", again.ThumbnailURL)
	assert.False(t, again.UpdatedAt.Before(rec.UpdatedAt))
}

func TestUpsertByID(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	a, err := s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "A"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "B"})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, store.UpsertInput{CanvasID: a.ID, OwnerID: "u1", Name: "B"})
	assert.True(t, appErr.IsCode(err, appErr.CodeConflict))

	_, err = s.Upsert(ctx, store.UpsertInput{CanvasID: "missing", OwnerID: "u1", Name: "A"})
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	renamed, err := s.Upsert(ctx, store.UpsertInput{CanvasID: a.ID, OwnerID: "u1", Name: "C", Snapshot: board()})
	require.NoError(t, err)
	assert.Equal(t, "C", renamed.Name)
	assert.Len(t, renamed.Snapshot.Nodes, 2)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	a, _ := s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "A"})
	b, _ := s.Upsert(ctx, store.UpsertInput{OwnerID: "u1", Name: "B"})
	_, _ = s.Upsert(ctx, store.UpsertInput{OwnerID: "u2", Name: "A"})

	all, err := s.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID)

	dups, err := s.ListByOwnerAndName(ctx, "u1", "A")
	require.NoError(t, err)
	require.Len(t, dups, 1)

	n, err := store.KeepLatest(ctx, s, "u1", "A")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.True(t, appErr.IsCode(s.Delete(ctx, a.ID), appErr.CodeNotFound))
	gone, err := s.Load(ctx, store.Query{CanvasID: a.ID})
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUpsertRequiresOwnerAndName(t *testing.T) {
	_, err := openTest(t).Upsert(context.Background(), store.UpsertInput{Name: "x"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}
