package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Canvas stores the latest saved state of one named canvas. Records are
// hard-deleted so (owner_id, name) stays unique without a deleted_at filter.
type Canvas struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID      string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_canvas_owner_name;index:idx_canvas_owner_updated,priority:1" json:"owner_id" validate:"required,max=128"`
	Name         string         `gorm:"type:varchar(200);not null;uniqueIndex:idx_canvas_owner_name" json:"name" validate:"required,max=200"`
	Nodes        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"nodes"`
	Edges        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"edges"`
	Viewport     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"viewport"`
	NextNodeID   int64          `gorm:"not null;default:0" json:"next_node_id" validate:"gte=0"`
	ThumbnailURL string         `gorm:"type:text;not null;default:''" json:"thumbnail_url"`
	IsPublic     bool           `gorm:"not null;default:false" json:"is_public"`
	Shares       []CanvasShare  `gorm:"foreignKey:CanvasID;constraint:OnDelete:CASCADE" json:"shares,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index:idx_canvas_owner_updated,priority:2,sort:desc" json:"updated_at"`
}

// CanvasShare grants a user read access to someone else's canvas.
type CanvasShare struct {
	CanvasID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"canvas_id"`
	UserID    string    `gorm:"type:varchar(128);primaryKey;index" json:"user_id" validate:"required,max=128"`
	CreatedAt time.Time `json:"created_at"`
}
