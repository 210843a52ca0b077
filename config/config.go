package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults matching the original pipeline.
const (
	DefaultCollection = "projects/CCDC/v3"
	DefaultScale      = 30
	DefaultMaxTileDim = 512
	DefaultSegments   = 10
)

// DefaultBands are the spectral bands synthesized when none are configured.
var DefaultBands = []string{"BLUE", "GREEN", "RED", "NIR"}

// GEEConfig holds the Earth Engine connection and generation parameters,
// normally loaded from a gee_config.json file.
type GEEConfig struct {
	// Account is the service account name (gee_account).
	Account string `json:"gee_account"`
	// KeyPath is the path to the service account JSON key file (gee_key_path).
	KeyPath string `json:"gee_key_path"`
	// Project is an optional cloud project override (gee_project).
	Project string `json:"gee_project"`

	// Collection is the CCDC coefficient image collection asset.
	Collection string `json:"collection"`
	// Scale is the ground sampling distance of generated imagery, in meters.
	Scale float64 `json:"scale"`
	// MaxTileDim caps the pixel dimensions of a single pixel download.
	MaxTileDim int `json:"max_tile_dim"`
	// Bands are the spectral bands to synthesize.
	Bands []string `json:"bands"`
	// Segments is the number of CCDC segments stored per pixel.
	Segments int `json:"segments"`
}

// Load reads a gee_config.json file and fills the gaps from environment
// variables and defaults. An empty path skips the file and uses environment
// variables only.
func Load(path string) (*GEEConfig, error) {
	cfg := &GEEConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *GEEConfig) applyEnv() {
	if c.Account == "" {
		c.Account = os.Getenv("GEE_ACCOUNT")
	}
	if c.KeyPath == "" {
		c.KeyPath = os.Getenv("GEE_KEY_PATH")
	}
	if c.KeyPath == "" {
		c.KeyPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Project == "" {
		c.Project = os.Getenv("GEE_PROJECT")
	}
}

func (c *GEEConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.MaxTileDim <= 0 {
		c.MaxTileDim = DefaultMaxTileDim
	}
	if len(c.Bands) == 0 {
		c.Bands = append([]string(nil), DefaultBands...)
	}
	if c.Segments <= 0 {
		c.Segments = DefaultSegments
	}
}

// Validate checks that the config is usable for a live Earth Engine session.
func (c *GEEConfig) Validate() error {
	if c.KeyPath == "" {
		return fmt.Errorf("no Earth Engine credentials: set gee_key_path in the config file or GEE_KEY_PATH / GOOGLE_APPLICATION_CREDENTIALS in the environment")
	}
	return nil
}
