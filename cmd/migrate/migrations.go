package main

import (
	"gorm.io/gorm"

	"github.com/canvas-studio/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		&models.Canvas{},
		&models.CanvasShare{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addPublicCanvasIndex,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// enableUUIDExtension ensures gen_random_uuid is available on older servers
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addPublicCanvasIndex serves listings of public canvases
func addPublicCanvasIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canvases_public_updated
		ON canvases(updated_at DESC)
		WHERE is_public
	`).Error
}

// missingTables lists registered models without a table.
func missingTables(db *gorm.DB) []string {
	var missing []string
	for _, m := range registerModels() {
		if !db.Migrator().HasTable(m) {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(m); err == nil {
				missing = append(missing, stmt.Schema.Table)
			} else {
				missing = append(missing, "unknown")
			}
		}
	}
	return missing
}
