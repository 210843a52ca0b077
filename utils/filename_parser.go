package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Scene rasters follow the pattern: SENSOR_YYYYMMDD_PRODUCT_*.tif
// Example: QB02_20150806_M1BS_057380591010_01-toa.tif
var sceneDateRegex = regexp.MustCompile(`^\d{8}$`)

// SceneName holds the parts of a footprint filename the pipeline needs.
type SceneName struct {
	// Stem is the filename without directory or extension.
	Stem string
	// Date is the acquisition date encoded in the filename.
	Date time.Time
}

// OutputName returns the synthetic product filename for this scene.
func (s SceneName) OutputName() string {
	return s.Stem + "_ccdc.tif"
}

// PreviewName returns the quicklook filename for this scene.
func (s SceneName) PreviewName() string {
	return s.Stem + "_ccdc_preview.jpg"
}

// ParseSceneFileName extracts the acquisition date from a footprint filename.
// The second underscore-separated token must be an 8-digit YYYYMMDD date.
func ParseSceneFileName(filename string) (SceneName, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if low := strings.ToLower(ext); low != ".tif" && low != ".tiff" {
		return SceneName{}, fmt.Errorf("invalid scene filename %s: expected a .tif file", base)
	}
	stem := strings.TrimSuffix(base, ext)

	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return SceneName{}, fmt.Errorf("invalid scene filename %s: expected SENSOR_YYYYMMDD_... pattern", base)
	}

	dateStr := parts[1]
	if !sceneDateRegex.MatchString(dateStr) {
		return SceneName{}, fmt.Errorf("invalid scene filename %s: date string must be in the format YYYYMMDD, got %q", base, dateStr)
	}

	date, err := time.Parse("20060102", dateStr)
	if err != nil {
		return SceneName{}, fmt.Errorf("invalid scene filename %s: %w", base, err)
	}

	return SceneName{Stem: stem, Date: date}, nil
}
