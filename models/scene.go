package models

import (
	"database/sql"
	"time"
)

// Scene statuses in the catalog.
const (
	SceneStatusPending   = "pending"
	SceneStatusCompleted = "completed"
	SceneStatusFailed    = "failed"
)

// Scene is a footprint scene queued for synthetic image generation.
type Scene struct {
	SourceFile string    `json:"source_file"`
	SceneDate  time.Time `json:"scene_date"`
}

// SceneDB is the catalog row for a scene. SceneDate is null for scenes that
// failed before their filename date could be parsed.
type SceneDB struct {
	ID         int            `json:"id"`
	SourceFile string         `json:"source_file"`
	SceneDate  sql.NullTime   `json:"scene_date"`
	Status     string         `json:"status"`
	OutputPath sql.NullString `json:"output_path"`
	Error      sql.NullString `json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
