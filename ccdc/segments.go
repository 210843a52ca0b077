package ccdc

import (
	"fmt"
	"math"
)

// DefaultBands are the spectral bands the CCDC v3 collection carries coefficients for.
var DefaultBands = []string{"BLUE", "GREEN", "RED", "NIR"}

// DefaultSegments is the number of time-series segments stored per pixel.
const DefaultSegments = 10

// SegmentTag returns the name of a segment, 1-based ("S1", "S2", ...).
func SegmentTag(i int) string {
	return fmt.Sprintf("S%d", i)
}

// SegmentTags returns the tags for n segments: ["S1", ..., "Sn"].
func SegmentTags(n int) []string {
	tags := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		tags = append(tags, SegmentTag(i))
	}
	return tags
}

// CoefBandName is the flattened name of one harmonic coefficient plane,
// e.g. CoefBandName("S1", "BLUE", "INTP") -> "S1_BLUE_coef_INTP".
func CoefBandName(segTag, band, harmonicTag string) string {
	return segTag + "_" + band + "_coef_" + harmonicTag
}

// TimeBandName is the flattened name of a segment temporal plane,
// e.g. TimeBandName("S1", "tStart") -> "S1_tStart".
func TimeBandName(segTag, which string) string {
	return segTag + "_" + which
}

// StackBandNames lists every plane of a coefficient stack in canonical order:
// all harmonic coefficients (band-major, then segment, then harmonic), followed by
// the per-segment tStart and tEnd planes.
func StackBandNames(bands []string, segments int) []string {
	segTags := SegmentTags(segments)
	names := make([]string, 0, len(bands)*segments*NumHarmonics+2*segments)
	for _, b := range bands {
		for _, s := range segTags {
			for _, h := range HarmonicTags {
				names = append(names, CoefBandName(s, b, h))
			}
		}
	}
	for _, s := range segTags {
		names = append(names, TimeBandName(s, "tStart"))
	}
	for _, s := range segTags {
		names = append(names, TimeBandName(s, "tEnd"))
	}
	return names
}

// SegmentStack holds CCDC model results for a pixel grid: per segment and spectral
// band, eight harmonic coefficients, plus each segment's start and end time in
// fractional years. Missing (masked) samples are NaN.
//
// The grid is georeferenced in EPSG:4326: OriginX/OriginY are the longitude and
// latitude of the top-left corner, PixelSize the degree span of one pixel.
type SegmentStack struct {
	Width    int
	Height   int
	Bands    []string
	Segments int

	OriginX   float64
	OriginY   float64
	PixelSize float64

	planes map[string][]float64
}

// NewSegmentStack allocates a stack with every plane filled with NaN (all masked).
func NewSegmentStack(width, height int, bands []string, segments int) *SegmentStack {
	s := &SegmentStack{
		Width:    width,
		Height:   height,
		Bands:    append([]string(nil), bands...),
		Segments: segments,
		planes:   make(map[string][]float64),
	}
	for _, name := range StackBandNames(bands, segments) {
		plane := make([]float64, width*height)
		for i := range plane {
			plane[i] = math.NaN()
		}
		s.planes[name] = plane
	}
	return s
}

// Plane returns the backing data of a named plane (row-major, Width*Height).
func (s *SegmentStack) Plane(name string) ([]float64, bool) {
	p, ok := s.planes[name]
	return p, ok
}

// Behavior selects which segment covers a target date.
type Behavior string

const (
	// BehaviorBefore picks the most recent segment that started before the date.
	BehaviorBefore Behavior = "before"
	// BehaviorAfter picks the earliest segment that ends after the date.
	BehaviorAfter Behavior = "after"
)

// SelectSegment returns the 1-based segment number covering pixel idx for the given
// date, or 0 when no segment matches. A segment with tStart of 0 or NaN is treated
// as absent.
func (s *SegmentStack) SelectSegment(idx int, date float64, behavior Behavior) int {
	switch behavior {
	case BehaviorAfter:
		for seg := 1; seg <= s.Segments; seg++ {
			tEnd, ok := s.planes[TimeBandName(SegmentTag(seg), "tEnd")]
			if !ok {
				continue
			}
			v := tEnd[idx]
			if !math.IsNaN(v) && v != 0 && v > date {
				return seg
			}
		}
	default: // BehaviorBefore
		for seg := s.Segments; seg >= 1; seg-- {
			tStart, ok := s.planes[TimeBandName(SegmentTag(seg), "tStart")]
			if !ok {
				continue
			}
			v := tStart[idx]
			if !math.IsNaN(v) && v != 0 && v < date {
				return seg
			}
		}
	}
	return 0
}

// Coefs returns the eight harmonic coefficients of one band in one segment at pixel
// idx. ok is false when any coefficient is missing.
func (s *SegmentStack) Coefs(seg int, band string, idx int) (coefs [NumHarmonics]float64, ok bool) {
	segTag := SegmentTag(seg)
	for i, h := range HarmonicTags {
		plane, exists := s.planes[CoefBandName(segTag, band, h)]
		if !exists {
			return coefs, false
		}
		v := plane[idx]
		if math.IsNaN(v) {
			return coefs, false
		}
		coefs[i] = v
	}
	return coefs, true
}
