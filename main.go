package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"ccdc-imagegen/app"
	"ccdc-imagegen/config"
	"ccdc-imagegen/db"
	"ccdc-imagegen/repository"
	"ccdc-imagegen/service"
)

func main() {
	// Load .env file in development (ignores error if file doesn't exist)
	// In production, variables should be set directly
	if os.Getenv("ENV") != "production" {
		if err := godotenv.Load(); err == nil {
			log.Printf("Loaded environment variables from .env")
		}
	}

	geeConfig := flag.String("gee_config", "", "Path to the Earth Engine JSON config file (gee_config.json)")
	geeAccount := flag.String("gee_account", "", "GEE service account name")
	geeKey := flag.String("gee_key", "", "Path to GEE service account key file")
	footprintFile := flag.String("footprint_file", "", "Path to the file containing the scene footprint for CCDC generation")
	inputDir := flag.String("input_dir", "", "Directory of footprint rasters to process as a batch")
	outputPath := flag.String("output_path", "./", "Directory path to save the generated synthetic images")
	preview := flag.Bool("preview", false, "Write a JPEG quicklook next to each generated image")
	workers := flag.Int("workers", 0, "Concurrent scenes in batch mode (default: number of CPUs)")
	listScenes := flag.Bool("list_scenes", false, "Print the most recent scene catalog entries and exit")
	flag.Parse()

	if *listScenes {
		printCatalog()
		return
	}

	if (*footprintFile == "") == (*inputDir == "") {
		log.Fatal("exactly one of --footprint_file and --input_dir is required")
	}

	cfg, err := config.Load(*geeConfig)
	if err != nil {
		log.Fatal(err)
	}
	// Flags override the config file and environment
	if *geeAccount != "" {
		cfg.Account = *geeAccount
	}
	if *geeKey != "" {
		cfg.KeyPath = *geeKey
	}

	ctx := context.Background()

	pipeline, err := app.Initialize(ctx, cfg, service.PipelineParams{
		InputDir:  *inputDir,
		OutputDir: *outputPath,
		Preview:   *preview,
		Workers:   *workers,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer db.CloseDB()

	outputs, err := pipeline.Run(ctx, *footprintFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("🎉 Generated %d synthetic image(s) in %s", len(outputs), *outputPath)
}

// printCatalog dumps the most recent scene catalog rows.
func printCatalog() {
	if !db.Configured() {
		log.Fatal("no catalog database configured (set DATABASE_URL or DB_* variables)")
	}
	if err := db.InitDB(); err != nil {
		log.Fatal(err)
	}
	defer db.CloseDB()

	scenes, err := repository.NewSceneRepository().List(context.Background(), 50)
	if err != nil {
		log.Fatalf("❌ Failed to list scene catalog: %v", err)
	}
	for _, s := range scenes {
		date := "-"
		if s.SceneDate.Valid {
			date = s.SceneDate.Time.Format("2006-01-02")
		}
		output := "-"
		if s.OutputPath.Valid {
			output = s.OutputPath.String
		}
		log.Printf("%-10s  %-9s  %s  %s", date, s.Status, s.SourceFile, output)
	}
	log.Printf("ℹ️  %d scene(s) in catalog", len(scenes))
}
