package app

import (
	"context"
	"fmt"
	"log"

	"ccdc-imagegen/config"
	"ccdc-imagegen/db"
	"ccdc-imagegen/repository"
	"ccdc-imagegen/service"
)

// Initialize wires the generation pipeline from the resolved configuration.
// The scene catalog is attached only when database variables are present.
func Initialize(ctx context.Context, cfg *config.GEEConfig, params service.PipelineParams) (*service.PipelineService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize the optional scene catalog
	var repo repository.SceneRepositoryInterface
	if db.Configured() {
		if err := db.InitDB(); err != nil {
			return nil, fmt.Errorf("failed to initialize scene catalog: %w", err)
		}
		repo = repository.NewSceneRepository()
	} else {
		log.Printf("ℹ️  No catalog database configured, running without scene bookkeeping")
	}

	// Initialize the Earth Engine service
	source, err := service.NewEEService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return service.NewPipelineService(source, repo, params, cfg), nil
}
