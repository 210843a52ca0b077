package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"ccdc-imagegen/ccdc"
	"ccdc-imagegen/config"
	"ccdc-imagegen/models"
	"ccdc-imagegen/raster"
	"ccdc-imagegen/repository"
	"ccdc-imagegen/utils"

	"golang.org/x/sync/errgroup"
)

// PipelineParams configure a pipeline run.
type PipelineParams struct {
	// InputDir holds the footprint rasters for directory mode.
	InputDir string
	// OutputDir receives the generated synthetic images.
	OutputDir string
	// Preview writes a JPEG quicklook next to each output.
	Preview bool
	// Workers caps concurrent scenes; 0 means one per CPU.
	Workers int
}

// PipelineService generates synthetic CCDC imagery for footprint scenes
type PipelineService struct {
	source    SegmentSourceInterface
	repo      repository.SceneRepositoryInterface // nil when the catalog is disabled
	params    PipelineParams
	scale     float64
	synthOpts ccdc.SynthesizeOptions
}

// NewPipelineService creates a new PipelineService. repo may be nil, in which
// case no catalog bookkeeping happens.
func NewPipelineService(source SegmentSourceInterface, repo repository.SceneRepositoryInterface, params PipelineParams, cfg *config.GEEConfig) *PipelineService {
	return &PipelineService{
		source:    source,
		repo:      repo,
		params:    params,
		scale:     cfg.Scale,
		synthOpts: ccdc.DefaultSynthesizeOptions(),
	}
}

// Run processes a single footprint file when toaFile is non-empty, otherwise
// every *.tif in the configured input directory. Scenes are processed
// concurrently; per-scene failures are logged (and recorded in the catalog)
// without stopping the batch. It returns the generated output paths, and an
// error when setup fails or no scene succeeded.
func (p *PipelineService) Run(ctx context.Context, toaFile string) ([]string, error) {
	var scenes []string
	if toaFile != "" {
		if _, err := os.Stat(toaFile); err != nil {
			return nil, fmt.Errorf("the specified footprint file %s does not exist: %w", toaFile, err)
		}
		scenes = []string{toaFile}
	} else {
		matches, err := filepath.Glob(filepath.Join(p.params.InputDir, "*.tif"))
		if err != nil {
			return nil, fmt.Errorf("failed to scan input directory: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no .tif files found in the input directory: %s", p.params.InputDir)
		}
		scenes = matches
	}

	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	workers := p.params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log.Printf("🔄 Processing %d scene(s) with %d worker(s)", len(scenes), workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	var outputs []string
	failed := 0

	for _, fpath := range scenes {
		fpath := fpath
		g.Go(func() error {
			out, err := p.ProcessScene(gctx, fpath)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Printf("❌ Failed to process %s: %v", filepath.Base(fpath), err)
				p.markFailed(gctx, filepath.Base(fpath), err)
				return nil // keep processing the rest of the batch
			}
			outputs = append(outputs, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("no scenes processed successfully (%d failed)", failed)
	}
	log.Printf("🎉 Pipeline completed: %d generated, %d failed out of %d scene(s)", len(outputs), failed, len(scenes))
	return outputs, nil
}

// ProcessScene generates the synthetic image for one footprint raster and
// returns the output path.
func (p *PipelineService) ProcessScene(ctx context.Context, fpath string) (string, error) {
	scene, err := utils.ParseSceneFileName(fpath)
	if err != nil {
		return "", err
	}
	sourceFile := filepath.Base(fpath)
	outputPath := filepath.Join(p.params.OutputDir, scene.OutputName())

	info, err := raster.ReadInfo(fpath)
	if err != nil {
		return "", err
	}
	wgsBound, err := raster.BoundToWGS84(info.Bounds(), info.EPSG)
	if err != nil {
		return "", fmt.Errorf("failed to extract footprint coordinates: %w", err)
	}
	roi := raster.ROIRing(wgsBound)

	if p.repo != nil {
		done, err := p.repo.IsCompleted(ctx, sourceFile)
		if err != nil {
			log.Printf("⚠️  Catalog check failed for %s: %v", sourceFile, err)
		} else if done {
			log.Printf("⏭️  Skipping %s (already generated)", sourceFile)
			return outputPath, nil
		}
		if err := p.repo.Insert(ctx, &models.Scene{SourceFile: sourceFile, SceneDate: scene.Date}); err != nil {
			log.Printf("⚠️  Failed to record %s in catalog: %v", sourceFile, err)
		}
	}

	log.Printf("🛰  Generating synthetic image for %s (%s, EPSG:%d)", sourceFile, scene.Date.Format("2006-01-02"), info.EPSG)

	stack, err := p.source.FetchSegments(ctx, roi)
	if err != nil {
		return "", err
	}

	product, err := ccdc.Synthesize(stack, ccdc.ToYearFraction(scene.Date), p.synthOpts)
	if err != nil {
		return "", err
	}

	img := productToRaster(product)
	if info.EPSG != 4326 {
		// bring the product back onto the footprint's native CRS
		img, err = raster.Warp(img, info.EPSG, info.Bounds(), p.scale)
		if err != nil {
			return "", fmt.Errorf("failed to reproject output: %w", err)
		}
	}

	if err := raster.WriteInt16(outputPath, img); err != nil {
		return "", err
	}
	log.Printf("✓ Saved synthetic image: %s", outputPath)

	if p.params.Preview {
		previewPath := filepath.Join(p.params.OutputDir, scene.PreviewName())
		if err := WritePreview(previewPath, product); err != nil {
			log.Printf("⚠️  Failed to write preview for %s: %v", sourceFile, err)
		} else {
			log.Printf("✓ Saved quicklook: %s", previewPath)
		}
	}

	if p.repo != nil {
		if err := p.repo.MarkCompleted(ctx, sourceFile, outputPath); err != nil {
			log.Printf("⚠️  Failed to mark %s completed: %v", sourceFile, err)
		}
	}

	return outputPath, nil
}

func (p *PipelineService) markFailed(ctx context.Context, sourceFile string, genErr error) {
	if p.repo == nil {
		return
	}
	if err := p.repo.MarkFailed(ctx, sourceFile, genErr); err != nil {
		log.Printf("⚠️  Failed to mark %s failed: %v", sourceFile, err)
	}
}

// productToRaster converts a synthesized product to a writable raster on the
// same EPSG:4326 grid.
func productToRaster(product *ccdc.Product) *raster.Int16Image {
	return &raster.Int16Image{
		Width:      product.Width,
		Height:     product.Height,
		Planes:     product.Planes,
		EPSG:       4326,
		OriginX:    product.OriginX,
		OriginY:    product.OriginY,
		PixelSizeX: product.PixelSize,
		PixelSizeY: product.PixelSize,
		NoData:     product.NoData,
	}
}
