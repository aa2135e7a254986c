package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	appErr "github.com/canvas-studio/engine/pkg/errors"
)

// BaseRepository holds the id-keyed operations every table shares.
type BaseRepository[T any] interface {
	GetByID(ctx context.Context, id any, dest *T) error
	Exists(ctx context.Context, id any) (bool, error)
	// Patch sets the given columns on the row with id. A missing row is
	// reported as not found.
	Patch(ctx context.Context, id any, fields map[string]any) error
	Delete(ctx context.Context, id any) error
}

type baseRepository[T any] struct {
	db     *gorm.DB
	entity string
}

// NewBaseRepository returns id-keyed helpers for T; entity names T in errors.
func NewBaseRepository[T any](db *gorm.DB, entity string) BaseRepository[T] {
	return &baseRepository[T]{db: db, entity: entity}
}

func (r *baseRepository[T]) model(ctx context.Context) *gorm.DB {
	var t T
	return r.db.WithContext(ctx).Model(&t)
}

func (r *baseRepository[T]) GetByID(ctx context.Context, id any, dest *T) error {
	err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return appErr.NotFound("%s %v not found", r.entity, id)
	case err != nil:
		return appErr.Wrap(err, appErr.CodeInternal, "get "+r.entity+" failed")
	}
	return nil
}

func (r *baseRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	var n int64
	if err := r.model(ctx).Where("id = ?", id).Limit(1).Count(&n).Error; err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "check "+r.entity+" failed")
	}
	return n > 0, nil
}

func (r *baseRepository[T]) Patch(ctx context.Context, id any, fields map[string]any) error {
	res := r.model(ctx).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapWriteErr(res.Error, "update "+r.entity+" failed")
	}
	if res.RowsAffected == 0 {
		return appErr.NotFound("%s %v not found", r.entity, id)
	}
	return nil
}

func (r *baseRepository[T]) Delete(ctx context.Context, id any) error {
	var t T
	res := r.db.WithContext(ctx).Delete(&t, "id = ?", id)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "delete "+r.entity+" failed")
	}
	if res.RowsAffected == 0 {
		return appErr.NotFound("%s %v not found", r.entity, id)
	}
	return nil
}
