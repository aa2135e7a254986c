package services

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/canvas-studio/engine/internal/models"
	"github.com/canvas-studio/engine/internal/repository"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

// CanvasService is the server side of the canvas store. The store.Store
// methods trust their arguments; the remaining ones act on behalf of an
// owner and check access first.
type CanvasService interface {
	store.Store

	Get(ctx context.Context, actorID, canvasID string) (*store.Record, error)
	ListByOwner(ctx context.Context, ownerID string, filters *CanvasFilters) ([]store.Record, int64, error)
	Rename(ctx context.Context, ownerID, canvasID, name string) (*store.Record, error)
	SetPublic(ctx context.Context, ownerID, canvasID string, public bool) (*store.Record, error)
	Share(ctx context.Context, ownerID, canvasID, userID string) error
	Unshare(ctx context.Context, ownerID, canvasID, userID string) error
	Remove(ctx context.Context, ownerID, canvasID string) error
}

type CanvasFilters struct {
	Page     int
	PageSize int
}

type canvasService struct {
	repo     repository.CanvasRepository
	validate *validator.Validate
}

func NewCanvasService(repo repository.CanvasRepository) CanvasService {
	return &canvasService{repo: repo, validate: validator.New(validator.WithRequiredStructEnabled())}
}

var _ CanvasService = (*canvasService)(nil)

func (s *canvasService) Load(ctx context.Context, q store.Query) (*store.Record, error) {
	var c models.Canvas
	var err error
	if q.CanvasID != "" {
		id, perr := uuid.Parse(q.CanvasID)
		if perr != nil {
			return nil, nil
		}
		err = s.repo.GetByID(ctx, id, &c)
	} else {
		err = s.repo.GetByOwnerAndName(ctx, q.OwnerID, q.Name, &c)
	}
	if appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(c)
}

func (s *canvasService) Upsert(ctx context.Context, in store.UpsertInput) (*store.Record, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid canvas")
	}
	c, err := fromInput(in)
	if err != nil {
		return nil, err
	}

	if in.CanvasID == "" {
		if err := s.repo.Upsert(ctx, c); err != nil {
			return nil, err
		}
	} else {
		id, err := uuid.Parse(in.CanvasID)
		if err != nil {
			return nil, appErr.NotFound("canvas %s not found", in.CanvasID)
		}
		if _, err := s.owned(ctx, in.OwnerID, id); err != nil {
			return nil, err
		}
		c.ID = id
		if err := s.repo.UpdateContent(ctx, c); err != nil {
			return nil, err
		}
	}

	logger.L().Debug("canvas saved",
		zap.String("canvas_id", c.ID.String()),
		zap.String("owner_id", c.OwnerID),
		zap.Int("nodes", len(in.Snapshot.Nodes)),
		zap.Int("edges", len(in.Snapshot.Edges)),
	)
	return toRecord(*c)
}

func (s *canvasService) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]store.Record, error) {
	rows, err := s.repo.ListByOwnerAndName(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func (s *canvasService) Delete(ctx context.Context, canvasID string) error {
	id, err := uuid.Parse(canvasID)
	if err != nil {
		return appErr.NotFound("canvas %s not found", canvasID)
	}
	return s.repo.DeleteCascade(ctx, id)
}

// Get returns the canvas if actorID owns it, it is shared with actorID, or
// it is public.
func (s *canvasService) Get(ctx context.Context, actorID, canvasID string) (*store.Record, error) {
	id, err := uuid.Parse(canvasID)
	if err != nil {
		return nil, appErr.NotFound("canvas %s not found", canvasID)
	}
	var c models.Canvas
	if err := s.repo.GetWithShares(ctx, id, &c); err != nil {
		return nil, err
	}
	if c.OwnerID != actorID && !c.IsPublic && !sharedWith(c, actorID) {
		// Hide existence from users without access.
		return nil, appErr.NotFound("canvas %s not found", canvasID)
	}
	rec, err := toRecord(c)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		rec.SharedWith = nil
	}
	return rec, nil
}

func (s *canvasService) ListByOwner(ctx context.Context, ownerID string, filters *CanvasFilters) ([]store.Record, int64, error) {
	var page repository.Page
	if filters != nil {
		page = repository.Page{Page: filters.Page, PageSize: filters.PageSize}
	}
	rows, total, err := s.repo.ListByOwner(ctx, ownerID, page)
	if err != nil {
		return nil, 0, err
	}
	recs, err := toRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *canvasService) Rename(ctx context.Context, ownerID, canvasID, name string) (*store.Record, error) {
	if err := s.validate.Var(name, "required,max=200"); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid canvas name")
	}
	id, err := s.ownedID(ctx, ownerID, canvasID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	logger.L().Info("canvas renamed", zap.String("canvas_id", canvasID), zap.String("owner_id", ownerID), zap.String("name", name))
	return s.Get(ctx, ownerID, canvasID)
}

func (s *canvasService) SetPublic(ctx context.Context, ownerID, canvasID string, public bool) (*store.Record, error) {
	id, err := s.ownedID(ctx, ownerID, canvasID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPublic(ctx, id, public); err != nil {
		return nil, err
	}
	logger.L().Info("canvas visibility changed", zap.String("canvas_id", canvasID), zap.Bool("public", public))
	return s.Get(ctx, ownerID, canvasID)
}

func (s *canvasService) Share(ctx context.Context, ownerID, canvasID, userID string) error {
	if err := s.validate.Var(userID, "required,max=128"); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid user id")
	}
	if userID == ownerID {
		return appErr.Invalid("cannot share a canvas with its owner")
	}
	id, err := s.ownedID(ctx, ownerID, canvasID)
	if err != nil {
		return err
	}
	if err := s.repo.AddShare(ctx, id, userID); err != nil {
		return err
	}
	logger.L().Info("canvas shared", zap.String("canvas_id", canvasID), zap.String("user_id", userID))
	return nil
}

func (s *canvasService) Unshare(ctx context.Context, ownerID, canvasID, userID string) error {
	id, err := s.ownedID(ctx, ownerID, canvasID)
	if err != nil {
		return err
	}
	return s.repo.RemoveShare(ctx, id, userID)
}

func (s *canvasService) Remove(ctx context.Context, ownerID, canvasID string) error {
	id, err := s.ownedID(ctx, ownerID, canvasID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		return err
	}
	logger.L().Info("canvas deleted", zap.String("canvas_id", canvasID), zap.String("owner_id", ownerID))
	return nil
}

func (s *canvasService) ownedID(ctx context.Context, ownerID, canvasID string) (uuid.UUID, error) {
	id, err := uuid.Parse(canvasID)
	if err != nil {
		return uuid.Nil, appErr.NotFound("canvas %s not found", canvasID)
	}
	_, err = s.owned(ctx, ownerID, id)
	return id, err
}

func (s *canvasService) owned(ctx context.Context, ownerID string, id uuid.UUID) (*models.Canvas, error) {
	var c models.Canvas
	if err := s.repo.GetByID(ctx, id, &c); err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, appErr.Forbidden("user does not own canvas")
	}
	return &c, nil
}

func sharedWith(c models.Canvas, userID string) bool {
	for _, sh := range c.Shares {
		if sh.UserID == userID {
			return true
		}
	}
	return false
}

func fromInput(in store.UpsertInput) (*models.Canvas, error) {
	snap := in.Snapshot.Sanitize()
	nodes, err := json.Marshal(snap.Nodes)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid nodes json")
	}
	edges, err := json.Marshal(snap.Edges)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid edges json")
	}
	vp, err := json.Marshal(snap.Viewport)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid viewport json")
	}
	return &models.Canvas{
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		Nodes:        datatypes.JSON(nodes),
		Edges:        datatypes.JSON(edges),
		Viewport:     datatypes.JSON(vp),
		NextNodeID:   snap.NextNodeID,
		ThumbnailURL: in.ThumbnailURL,
	}, nil
}

func toRecord(c models.Canvas) (*store.Record, error) {
	rec := &store.Record{
		ID:           c.ID.String(),
		OwnerID:      c.OwnerID,
		Name:         c.Name,
		ThumbnailURL: c.ThumbnailURL,
		IsPublic:     c.IsPublic,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if len(c.Nodes) > 0 {
		if err := json.Unmarshal(c.Nodes, &rec.Snapshot.Nodes); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "unmarshal nodes failed")
		}
	}
	if len(c.Edges) > 0 {
		if err := json.Unmarshal(c.Edges, &rec.Snapshot.Edges); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "unmarshal edges failed")
		}
	}
	if len(c.Viewport) > 0 {
		if err := json.Unmarshal(c.Viewport, &rec.Snapshot.Viewport); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "unmarshal viewport failed")
		}
	}
	rec.Snapshot.NextNodeID = c.NextNodeID
	rec.Snapshot = rec.Snapshot.Sanitize()
	for _, sh := range c.Shares {
		rec.SharedWith = append(rec.SharedWith, sh.UserID)
	}
	return rec, nil
}

func toRecords(rows []models.Canvas) ([]store.Record, error) {
	out := make([]store.Record, 0, len(rows))
	for _, c := range rows {
		rec, err := toRecord(c)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
