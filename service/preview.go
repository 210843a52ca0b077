package service

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"ccdc-imagegen/ccdc"

	"github.com/disintegration/imaging"
)

const (
	// Size and quality settings for quicklooks
	maxPreviewDim  = 1024
	previewQuality = 85
	// Percentile stretch bounds
	stretchLow  = 0.02
	stretchHigh = 0.98
)

// WritePreview renders an RGB quicklook of a synthetic product as a JPEG.
// The product must contain RED, GREEN and BLUE bands; each channel is
// stretched linearly between its 2nd and 98th percentile.
func WritePreview(path string, product *ccdc.Product) error {
	channels := [3]string{"RED", "GREEN", "BLUE"}
	var planes [3][]int16
	for i, name := range channels {
		idx := -1
		for b, band := range product.Bands {
			if band == name {
				idx = b
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("product has no %s band, cannot render preview", name)
		}
		planes[i] = product.Planes[idx]
	}

	var lows, highs [3]float64
	for i := range planes {
		lo, hi, ok := percentiles(planes[i], product.NoData, stretchLow, stretchHigh)
		if !ok {
			return fmt.Errorf("product has no valid pixels, cannot render preview")
		}
		lows[i], highs[i] = lo, hi
	}

	img := image.NewNRGBA(image.Rect(0, 0, product.Width, product.Height))
	for y := 0; y < product.Height; y++ {
		for x := 0; x < product.Width; x++ {
			idx := y*product.Width + x
			var rgb [3]uint8
			valid := true
			for i := range planes {
				v := planes[i][idx]
				if v == product.NoData {
					valid = false
					break
				}
				rgb[i] = stretch(float64(v), lows[i], highs[i])
			}
			if !valid {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 0})
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{rgb[0], rgb[1], rgb[2], 255})
		}
	}

	resized := imaging.Fit(img, maxPreviewDim, maxPreviewDim, imaging.Lanczos)
	if err := imaging.Save(resized, path, imaging.JPEGQuality(previewQuality)); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

// percentiles returns the given low/high percentile values of the valid
// samples in a plane. ok is false when the plane is all nodata.
func percentiles(plane []int16, noData int16, low, high float64) (float64, float64, bool) {
	valid := make([]int16, 0, len(plane))
	for _, v := range plane {
		if v != noData {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })

	pick := func(p float64) float64 {
		i := int(p * float64(len(valid)-1))
		return float64(valid[i])
	}
	return pick(low), pick(high), true
}

func stretch(v, lo, hi float64) uint8 {
	if hi <= lo {
		return 127
	}
	s := (v - lo) / (hi - lo) * 255
	if s < 0 {
		s = 0
	}
	if s > 255 {
		s = 255
	}
	return uint8(s)
}
