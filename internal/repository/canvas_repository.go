package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canvas-studio/engine/internal/models"
	appErr "github.com/canvas-studio/engine/pkg/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Page selects a window of a listing. Page is 1-based.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// CanvasRepository persists canvases and their share grants.
type CanvasRepository interface {
	BaseRepository[models.Canvas]
	GetByOwnerAndName(ctx context.Context, ownerID, name string, dest *models.Canvas) error
	GetWithShares(ctx context.Context, id uuid.UUID, dest *models.Canvas) error
	ListByOwner(ctx context.Context, ownerID string, page Page) ([]models.Canvas, int64, error)
	ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]models.Canvas, error)
	// Upsert writes c keyed by (owner_id, name). An empty ThumbnailURL keeps
	// the stored one. c is reloaded from the database afterwards.
	Upsert(ctx context.Context, c *models.Canvas) error
	// UpdateContent overwrites the record with c.ID, including its name.
	UpdateContent(ctx context.Context, c *models.Canvas) error
	Rename(ctx context.Context, id uuid.UUID, name string) error
	SetPublic(ctx context.Context, id uuid.UUID, public bool) error
	AddShare(ctx context.Context, id uuid.UUID, userID string) error
	RemoveShare(ctx context.Context, id uuid.UUID, userID string) error
	HasShare(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	// DeleteCascade removes the canvas and its share grants in one transaction.
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

type canvasRepository struct {
	BaseRepository[models.Canvas]
	db  *gorm.DB
	now func() time.Time
}

func NewCanvasRepository(db *gorm.DB) CanvasRepository {
	return &canvasRepository{BaseRepository: NewBaseRepository[models.Canvas](db, "canvas"), db: db, now: time.Now}
}

func (r *canvasRepository) GetByOwnerAndName(ctx context.Context, ownerID, name string, dest *models.Canvas) error {
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Order("updated_at DESC").
		First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.NotFound("canvas %q not found", name)
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get canvas by name failed")
	}
	return nil
}

func (r *canvasRepository) GetWithShares(ctx context.Context, id uuid.UUID, dest *models.Canvas) error {
	if err := r.db.WithContext(ctx).Preload("Shares").First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.NotFound("canvas %s not found", id)
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get canvas failed")
	}
	return nil
}

func (r *canvasRepository) ListByOwner(ctx context.Context, ownerID string, page Page) ([]models.Canvas, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Canvas{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count canvases failed")
	}

	var out []models.Canvas
	q = q.Order("updated_at DESC")
	if page.PageSize > 0 {
		q = q.Offset(page.offset()).Limit(page.PageSize)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list canvases by owner failed")
	}
	return out, total, nil
}

func (r *canvasRepository) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]models.Canvas, error) {
	var out []models.Canvas
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND name = ?", ownerID, name).Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list canvases by name failed")
	}
	return out, nil
}

func (r *canvasRepository) Upsert(ctx context.Context, c *models.Canvas) error {
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now

	keepThumbnail := clause.Assignment{
		Column: clause.Column{Name: "thumbnail_url"},
		Value:  gorm.Expr("CASE WHEN excluded.thumbnail_url = '' THEN canvases.thumbnail_url ELSE excluded.thumbnail_url END"),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "name"}},
		DoUpdates: append(clause.AssignmentColumns([]string{"nodes", "edges", "viewport", "next_node_id", "updated_at"}), keepThumbnail),
	}).Omit("Shares").Create(c).Error
	if err != nil {
		return mapWriteErr(err, "upsert canvas failed")
	}

	var fresh models.Canvas
	if err := r.GetByOwnerAndName(ctx, c.OwnerID, c.Name, &fresh); err != nil {
		return err
	}
	*c = fresh
	return nil
}

func (r *canvasRepository) UpdateContent(ctx context.Context, c *models.Canvas) error {
	updates := map[string]any{
		"name":         c.Name,
		"nodes":        c.Nodes,
		"edges":        c.Edges,
		"viewport":     c.Viewport,
		"next_node_id": c.NextNodeID,
		"updated_at":   r.now(),
	}
	if c.ThumbnailURL != "" {
		updates["thumbnail_url"] = c.ThumbnailURL
	}
	if err := r.Patch(ctx, c.ID, updates); err != nil {
		return err
	}
	return r.GetByID(ctx, c.ID, c)
}

func (r *canvasRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return r.Patch(ctx, id, map[string]any{"name": name, "updated_at": r.now()})
}

func (r *canvasRepository) SetPublic(ctx context.Context, id uuid.UUID, public bool) error {
	return r.Patch(ctx, id, map[string]any{"is_public": public})
}

func (r *canvasRepository) AddShare(ctx context.Context, id uuid.UUID, userID string) error {
	share := models.CanvasShare{CanvasID: id, UserID: userID, CreatedAt: r.now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&share).Error; err != nil {
		return mapWriteErr(err, "share canvas failed")
	}
	return nil
}

func (r *canvasRepository) RemoveShare(ctx context.Context, id uuid.UUID, userID string) error {
	res := r.db.WithContext(ctx).Where("canvas_id = ? AND user_id = ?", id, userID).Delete(&models.CanvasShare{})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "unshare canvas failed")
	}
	if res.RowsAffected == 0 {
		return appErr.NotFound("canvas %s is not shared with %s", id, userID)
	}
	return nil
}

func (r *canvasRepository) HasShare(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.CanvasShare{}).Where("canvas_id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "check canvas share failed")
	}
	return n > 0, nil
}

func (r *canvasRepository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("canvas_id = ?", id).Delete(&models.CanvasShare{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete canvas shares failed")
		}
		res := tx.Delete(&models.Canvas{}, "id = ?", id)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "delete canvas failed")
		}
		if res.RowsAffected == 0 {
			return appErr.NotFound("canvas %s not found", id)
		}
		return nil
	})
}

// mapWriteErr turns constraint violations into conflict / not-found codes.
func mapWriteErr(err error, msg string) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return appErr.Wrap(err, appErr.CodeConflict, "canvas name already in use")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return appErr.Wrap(err, appErr.CodeNotFound, "canvas not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return appErr.Wrap(err, appErr.CodeConflict, "canvas name already in use")
		case pgForeignKeyViolation:
			return appErr.Wrap(err, appErr.CodeNotFound, "canvas not found")
		}
	}
	return appErr.Wrap(err, appErr.CodeInternal, msg)
}
