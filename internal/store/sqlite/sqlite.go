// Package sqlite is a single-file canvas store for local use.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/store"
	"github.com/canvas-studio/engine/pkg/database"
	appErr "github.com/canvas-studio/engine/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS canvases (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	name          TEXT NOT NULL,
	nodes         TEXT NOT NULL DEFAULT '[]',
	edges         TEXT NOT NULL DEFAULT '[]',
	viewport      TEXT NOT NULL DEFAULT '{}',
	next_node_id  INTEGER NOT NULL DEFAULT 0,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	is_public     INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	UNIQUE (owner_id, name)
);
CREATE INDEX IF NOT EXISTS idx_canvases_owner_updated ON canvases (owner_id, updated_at DESC);
`

const columns = `id, owner_id, name, nodes, edges, viewport, next_node_id, thumbnail_url, is_public, created_at, updated_at`

// Store keeps canvases in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context, q store.Query) (*store.Record, error) {
	var row *sql.Row
	if q.CanvasID != "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM canvases WHERE id = ?`, q.CanvasID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+columns+` FROM canvases WHERE owner_id = ? AND name = ? ORDER BY updated_at DESC LIMIT 1`,
			q.OwnerID, q.Name)
	}
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "load canvas")
	}
	return rec, nil
}

func (s *Store) Upsert(ctx context.Context, in store.UpsertInput) (*store.Record, error) {
	if in.OwnerID == "" || in.Name == "" {
		return nil, appErr.Invalid("owner and name are required")
	}
	nodes, edges, vp, err := encode(in.Snapshot)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "encode snapshot")
	}
	now := s.now().UnixNano()

	id := in.CanvasID
	if id != "" {
		res, err := s.db.ExecContext(ctx, `
			UPDATE canvases SET owner_id = ?, name = ?, nodes = ?, edges = ?, viewport = ?, next_node_id = ?,
				thumbnail_url = CASE WHEN ? = '' THEN thumbnail_url ELSE ? END,
				updated_at = ?
			WHERE id = ?`,
			in.OwnerID, in.Name, nodes, edges, vp, in.Snapshot.NextNodeID,
			in.ThumbnailURL, in.ThumbnailURL, now, id)
		if err != nil {
			return nil, mapWriteErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, appErr.NotFound("canvas %s not found", id)
		}
	} else {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO canvases (id, owner_id, name, nodes, edges, viewport, next_node_id, thumbnail_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, name) DO UPDATE SET
				nodes = excluded.nodes,
				edges = excluded.edges,
				viewport = excluded.viewport,
				next_node_id = excluded.next_node_id,
				thumbnail_url = CASE WHEN excluded.thumbnail_url = '' THEN canvases.thumbnail_url ELSE excluded.thumbnail_url END,
				updated_at = excluded.updated_at
			RETURNING id`,
			uuid.NewString(), in.OwnerID, in.Name, nodes, edges, vp, in.Snapshot.NextNodeID, in.ThumbnailURL, now, now,
		).Scan(&id)
		if err != nil {
			return nil, mapWriteErr(err)
		}
	}

	rec, err := s.Load(ctx, store.Query{CanvasID: id})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, appErr.NotFound("canvas %s vanished after write", id)
	}
	return rec, nil
}

func (s *Store) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]store.Record, error) {
	return s.list(ctx, `SELECT `+columns+` FROM canvases WHERE owner_id = ? AND name = ? ORDER BY updated_at DESC`, ownerID, name)
}

// ListByOwner returns every canvas of ownerID, most recently updated first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]store.Record, error) {
	return s.list(ctx, `SELECT `+columns+` FROM canvases WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list canvases")
	}
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "scan canvas")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list canvases")
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, canvasID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvases WHERE id = ?`, canvasID)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete canvas")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErr.NotFound("canvas %s not found", canvasID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (*store.Record, error) {
	var (
		rec                  store.Record
		nodes, edges, vp     string
		isPublic             int
		createdAt, updatedAt int64
	)
	if err := r.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &nodes, &edges, &vp,
		&rec.Snapshot.NextNodeID, &rec.ThumbnailURL, &isPublic, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nodes), &rec.Snapshot.Nodes); err != nil {
		return nil, fmt.Errorf("canvas %s nodes: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(edges), &rec.Snapshot.Edges); err != nil {
		return nil, fmt.Errorf("canvas %s edges: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(vp), &rec.Snapshot.Viewport); err != nil {
		return nil, fmt.Errorf("canvas %s viewport: %w", rec.ID, err)
	}
	rec.Snapshot = rec.Snapshot.Sanitize()
	rec.IsPublic = isPublic != 0
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}

func encode(s canvas.Snapshot) (nodes, edges, vp string, err error) {
	if s.Nodes == nil {
		s.Nodes = []canvas.Node{}
	}
	if s.Edges == nil {
		s.Edges = []canvas.Edge{}
	}
	n, err := json.Marshal(s.Nodes)
	if err != nil {
		return "", "", "", err
	}
	e, err := json.Marshal(s.Edges)
	if err != nil {
		return "", "", "", err
	}
	v, err := json.Marshal(s.Viewport)
	if err != nil {
		return "", "", "", err
	}
	return string(n), string(e), string(v), nil
}

func mapWriteErr(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return appErr.Wrap(err, appErr.CodeConflict, "canvas name already in use")
	}
	return appErr.Wrap(err, appErr.CodeInternal, "write canvas")
}

var _ store.Store = (*Store)(nil)
