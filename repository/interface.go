package repository

import (
	"context"

	"ccdc-imagegen/models"
)

// SceneRepositoryInterface defines the contract for scene catalog operations
type SceneRepositoryInterface interface {
	// IsCompleted checks whether a scene was already generated successfully
	IsCompleted(ctx context.Context, sourceFile string) (bool, error)

	// Insert records a scene as pending; inserting an already known scene is a no-op
	Insert(ctx context.Context, scene *models.Scene) error

	// MarkCompleted records a successful generation and its output path
	MarkCompleted(ctx context.Context, sourceFile, outputPath string) error

	// MarkFailed records a failed generation with the error text
	MarkFailed(ctx context.Context, sourceFile string, genErr error) error

	// List returns the most recent catalog rows, newest first
	List(ctx context.Context, limit int) ([]models.SceneDB, error)
}
