// Package store defines the contract of the remote canvas-record store that
// the auto-save pipeline talks to, plus in-process implementations.
package store

import (
	"context"
	"time"

	"github.com/canvas-studio/engine/internal/canvas"
)

// Record is a persisted canvas. (OwnerID, Name) is unique.
type Record struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Name         string          `json:"name"`
	Snapshot     canvas.Snapshot `json:"snapshot"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
	IsPublic     bool            `json:"is_public"`
	SharedWith   []string        `json:"shared_with,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Query selects the record to load: by CanvasID when set, else by
// (OwnerID, Name).
type Query struct {
	CanvasID string
	OwnerID  string
	Name     string
}

// UpsertInput is one save. When CanvasID is set the record is updated in
// place; otherwise the write is keyed by (OwnerID, Name). An empty
// ThumbnailURL leaves the stored thumbnail untouched.
type UpsertInput struct {
	CanvasID     string          `json:"canvas_id,omitempty"`
	OwnerID      string          `json:"owner_id" validate:"required"`
	Name         string          `json:"name" validate:"required,max=200"`
	Snapshot     canvas.Snapshot `json:"snapshot"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
}

// Store is the persistence collaborator of a canvas session.
type Store interface {
	// Load returns the matching record, or nil with a nil error when none exists.
	Load(ctx context.Context, q Query) (*Record, error)
	Upsert(ctx context.Context, in UpsertInput) (*Record, error)
	ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]Record, error)
	Delete(ctx context.Context, canvasID string) error
}
