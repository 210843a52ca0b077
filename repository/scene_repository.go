package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"ccdc-imagegen/db"
	"ccdc-imagegen/models"
)

// SceneRepository handles database operations for the scene catalog
// Implements SceneRepositoryInterface
type SceneRepository struct{}

// NewSceneRepository creates a new SceneRepository
func NewSceneRepository() *SceneRepository {
	return &SceneRepository{}
}

// Ensure SceneRepository implements SceneRepositoryInterface
var _ SceneRepositoryInterface = (*SceneRepository)(nil)

// IsCompleted checks whether a scene already has a completed catalog row
func (r *SceneRepository) IsCompleted(ctx context.Context, sourceFile string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM scenes WHERE source_file = $1 AND status = $2)`
	err := db.DB.QueryRowContext(ctx, query, sourceFile, models.SceneStatusCompleted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completion for %s: %w", sourceFile, err)
	}
	return exists, nil
}

// Insert inserts a new pending scene into the catalog
func (r *SceneRepository) Insert(ctx context.Context, scene *models.Scene) error {
	query := `
		INSERT INTO scenes (
			source_file, scene_date, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (source_file) DO NOTHING
	`

	now := time.Now()
	result, err := db.DB.ExecContext(ctx, query,
		scene.SourceFile,
		scene.SceneDate,
		models.SceneStatusPending,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scene %s: %w", scene.SourceFile, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		log.Printf("⏭️  Scene %s already in catalog", scene.SourceFile)
	}
	return nil
}

// MarkCompleted flags a scene as completed and stores the output path
func (r *SceneRepository) MarkCompleted(ctx context.Context, sourceFile, outputPath string) error {
	query := `
		UPDATE scenes
		SET status = $1, output_path = $2, error = NULL, updated_at = $3
		WHERE source_file = $4
	`
	_, err := db.DB.ExecContext(ctx, query, models.SceneStatusCompleted, outputPath, time.Now(), sourceFile)
	if err != nil {
		return fmt.Errorf("failed to mark scene %s completed: %w", sourceFile, err)
	}
	return nil
}

// MarkFailed flags a scene as failed and stores the error text. Scenes can fail
// before they are ever inserted (bad filename, unreadable raster), so this is an
// upsert; such rows have no scene_date.
func (r *SceneRepository) MarkFailed(ctx context.Context, sourceFile string, genErr error) error {
	msg := ""
	if genErr != nil {
		msg = genErr.Error()
	}
	query := `
		INSERT INTO scenes (
			source_file, status, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (source_file) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at
	`
	_, err := db.DB.ExecContext(ctx, query, sourceFile, models.SceneStatusFailed, msg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark scene %s failed: %w", sourceFile, err)
	}
	return nil
}

// List returns the most recent catalog rows, newest first
func (r *SceneRepository) List(ctx context.Context, limit int) ([]models.SceneDB, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, source_file, scene_date, status, output_path, error, created_at, updated_at
		FROM scenes
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := db.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.SceneDB
	for rows.Next() {
		var s models.SceneDB
		if err := rows.Scan(&s.ID, &s.SourceFile, &s.SceneDate, &s.Status, &s.OutputPath, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scene row: %w", err)
		}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scene rows: %w", err)
	}
	return scenes, nil
}
