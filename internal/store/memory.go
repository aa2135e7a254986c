package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	appErr "github.com/canvas-studio/engine/pkg/errors"
)

// Memory is an in-process Store. It enforces (owner, name) uniqueness the
// same way the database does.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time

	// UpsertHook, when set, runs before every upsert; a non-nil error fails it.
	UpsertHook func(UpsertInput) error
	upserts    int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{records: map[string]Record{}, now: time.Now}
}

// Upserts returns how many upserts succeeded.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Put stores r verbatim, bypassing uniqueness. Tests use it to seed the
// duplicate rows retention cleanup exists for.
func (m *Memory) Put(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Snapshot = r.Snapshot.Clone()
	m.records[r.ID] = r
}

func (m *Memory) Load(_ context.Context, q Query) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.CanvasID != "" {
		r, ok := m.records[q.CanvasID]
		if !ok {
			return nil, nil
		}
		return copyRecord(r), nil
	}
	matches := m.matching(q.OwnerID, q.Name)
	if len(matches) == 0 {
		return nil, nil
	}
	return copyRecord(matches[0]), nil
}

func (m *Memory) Upsert(_ context.Context, in UpsertInput) (*Record, error) {
	if in.OwnerID == "" || in.Name == "" {
		return nil, appErr.Invalid("owner and name are required")
	}
	if m.UpsertHook != nil {
		if err := m.UpsertHook(in); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	var r Record
	switch {
	case in.CanvasID != "":
		existing, ok := m.records[in.CanvasID]
		if !ok {
			return nil, appErr.NotFound("canvas %s not found", in.CanvasID)
		}
		if existing.Name != in.Name || existing.OwnerID != in.OwnerID {
			for _, o := range m.matching(in.OwnerID, in.Name) {
				if o.ID != in.CanvasID {
					return nil, appErr.Conflict("canvas name already in use")
				}
			}
		}
		r = existing
	default:
		if matches := m.matching(in.OwnerID, in.Name); len(matches) > 0 {
			r = matches[0]
		} else {
			r = Record{ID: uuid.NewString(), CreatedAt: now}
		}
	}

	r.OwnerID, r.Name = in.OwnerID, in.Name
	r.Snapshot = in.Snapshot.Clone()
	if in.ThumbnailURL != "" {
		r.ThumbnailURL = in.ThumbnailURL
	}
	r.UpdatedAt = now
	m.records[r.ID] = r
	m.upserts++
	return copyRecord(r), nil
}

func (m *Memory) ListByOwnerAndName(_ context.Context, ownerID, name string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches := m.matching(ownerID, name)
	out := make([]Record, len(matches))
	for i, r := range matches {
		out[i] = *copyRecord(r)
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, canvasID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[canvasID]; !ok {
		return appErr.NotFound("canvas %s not found", canvasID)
	}
	delete(m.records, canvasID)
	return nil
}

// matching returns records for (owner, name), most recently updated first.
func (m *Memory) matching(ownerID, name string) []Record {
	var out []Record
	for _, r := range m.records {
		if r.OwnerID == ownerID && r.Name == name {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out
}

func copyRecord(r Record) *Record {
	r.Snapshot = r.Snapshot.Clone()
	r.SharedWith = slices.Clone(r.SharedWith)
	return &r
}

var _ Store = (*Memory)(nil)
