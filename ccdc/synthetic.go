package ccdc

import (
	"fmt"
	"math"
)

// DefaultScale is the reflectance scaling factor applied to synthetic values.
const DefaultScale = 10000

// DefaultNoData marks pixels with no valid model segment.
const DefaultNoData = -9999

// SynthesizeOptions tune synthetic image generation.
type SynthesizeOptions struct {
	DateFormat DateFormat
	Behavior   Behavior
	Scale      float64
	NoData     int16
}

// DefaultSynthesizeOptions match the original pipeline: fractional-year dates,
// most-recent-segment-before selection, x10000 scaling, -9999 nodata.
func DefaultSynthesizeOptions() SynthesizeOptions {
	return SynthesizeOptions{
		DateFormat: DateFormatFractionalYears,
		Behavior:   BehaviorBefore,
		Scale:      DefaultScale,
		NoData:     DefaultNoData,
	}
}

// Product is a synthesized multi-band int16 image on the stack's grid.
type Product struct {
	Width  int
	Height int
	Bands  []string
	// Planes holds one row-major plane per band, in Bands order.
	Planes [][]int16
	NoData int16

	OriginX   float64
	OriginY   float64
	PixelSize float64
}

// Synthesize predicts surface reflectance for every pixel of the stack at the given
// date (in the unit implied by opts.DateFormat). Per pixel and band, the segment
// covering the date is selected, its harmonic coefficients are dotted with the
// design vector for the date, and the result is scaled and truncated to int16.
// Pixels with no covering segment, or with missing coefficients, get opts.NoData.
func Synthesize(stack *SegmentStack, date float64, opts SynthesizeOptions) (*Product, error) {
	if stack == nil {
		return nil, fmt.Errorf("nil segment stack")
	}
	if opts.Scale == 0 {
		opts.Scale = DefaultScale
	}
	if opts.Behavior == "" {
		opts.Behavior = BehaviorBefore
	}

	basis := HarmonicBasis(date, opts.DateFormat)
	n := stack.Width * stack.Height

	out := &Product{
		Width:     stack.Width,
		Height:    stack.Height,
		Bands:     append([]string(nil), stack.Bands...),
		Planes:    make([][]int16, len(stack.Bands)),
		NoData:    opts.NoData,
		OriginX:   stack.OriginX,
		OriginY:   stack.OriginY,
		PixelSize: stack.PixelSize,
	}
	for b := range out.Planes {
		out.Planes[b] = make([]int16, n)
	}

	for idx := 0; idx < n; idx++ {
		seg := stack.SelectSegment(idx, date, opts.Behavior)
		for b, band := range stack.Bands {
			if seg == 0 {
				out.Planes[b][idx] = opts.NoData
				continue
			}
			coefs, ok := stack.Coefs(seg, band, idx)
			if !ok {
				out.Planes[b][idx] = opts.NoData
				continue
			}
			var v float64
			for i := 0; i < NumHarmonics; i++ {
				v += basis[i] * coefs[i]
			}
			out.Planes[b][idx] = clampInt16(v * opts.Scale)
		}
	}

	return out, nil
}

// clampInt16 truncates toward zero and saturates at the int16 range.
func clampInt16(v float64) int16 {
	v = math.Trunc(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
