package raster

import (
	"fmt"
	"math"

	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// metersPerDegree is the ground span of one degree of longitude at the equator
// on the WGS84 sphere, used to size EPSG:4326 grids from a scale in meters.
const metersPerDegree = 111319.490793

// DegreesPerPixel converts a ground sampling distance in meters to degrees.
func DegreesPerPixel(scaleMeters float64) float64 {
	return scaleMeters / metersPerDegree
}

// utmZone decodes an EPSG UTM code into zone number and hemisphere.
func utmZone(epsg int) (zone int, northern bool, ok bool) {
	switch {
	case epsg >= 32601 && epsg <= 32660:
		return epsg - 32600, true, true
	case epsg >= 32701 && epsg <= 32760:
		return epsg - 32700, false, true
	}
	return 0, false, false
}

// ToWGS84 converts a model-space coordinate to longitude/latitude. Supported
// systems: EPSG:4326, EPSG:3857 (web mercator) and the UTM zones
// EPSG:326xx/327xx, which covers the footprint scenes the pipeline sees.
func ToWGS84(x, y float64, epsg int) (lon, lat float64, err error) {
	switch {
	case epsg == 4326:
		return x, y, nil
	case epsg == 3857:
		p := project.Mercator.ToWGS84(orb.Point{x, y})
		return p[0], p[1], nil
	default:
		zone, northern, ok := utmZone(epsg)
		if !ok {
			return 0, 0, fmt.Errorf("unsupported CRS EPSG:%d", epsg)
		}
		lat, lon, err = UTM.ToLatLon(x, y, zone, "", northern)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to convert UTM coordinate (EPSG:%d): %w", epsg, err)
		}
		return lon, lat, nil
	}
}

// BoundToWGS84 reprojects a bounding box to EPSG:4326 by transforming all four
// corners and taking their envelope.
func BoundToWGS84(b orb.Bound, epsg int) (orb.Bound, error) {
	corners := [][2]float64{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
	}
	out := orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
	for _, c := range corners {
		lon, lat, err := ToWGS84(c[0], c[1], epsg)
		if err != nil {
			return orb.Bound{}, err
		}
		out.Min[0] = math.Min(out.Min[0], lon)
		out.Min[1] = math.Min(out.Min[1], lat)
		out.Max[0] = math.Max(out.Max[0], lon)
		out.Max[1] = math.Max(out.Max[1], lat)
	}
	return out, nil
}

// ROIRing builds the closed 5-point ring of a bounding box, the region-of-interest
// polygon handed to Earth Engine.
func ROIRing(b orb.Bound) orb.Ring {
	return orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}
}

// Warp resamples an EPSG:4326 image onto a grid in the target CRS covering
// bound (in target model units) at the given pixel size, using nearest-neighbor
// sampling. Pixels falling outside the source get the source nodata value.
func Warp(src *Int16Image, targetEPSG int, bound orb.Bound, pixelSize float64) (*Int16Image, error) {
	if src.EPSG != 4326 {
		return nil, fmt.Errorf("warp source must be EPSG:4326, got EPSG:%d", src.EPSG)
	}
	if pixelSize <= 0 {
		return nil, fmt.Errorf("invalid warp pixel size %v", pixelSize)
	}

	width := int(math.Ceil((bound.Max[0] - bound.Min[0]) / pixelSize))
	height := int(math.Ceil((bound.Max[1] - bound.Min[1]) / pixelSize))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("empty warp target grid")
	}

	out := &Int16Image{
		Width:      width,
		Height:     height,
		Planes:     make([][]int16, len(src.Planes)),
		EPSG:       targetEPSG,
		OriginX:    bound.Min[0],
		OriginY:    bound.Max[1],
		PixelSizeX: pixelSize,
		PixelSizeY: pixelSize,
		NoData:     src.NoData,
	}
	for b := range out.Planes {
		out.Planes[b] = make([]int16, width*height)
	}

	for row := 0; row < height; row++ {
		y := out.OriginY - (float64(row)+0.5)*pixelSize
		for col := 0; col < width; col++ {
			x := out.OriginX + (float64(col)+0.5)*pixelSize
			lon, lat, err := ToWGS84(x, y, targetEPSG)
			if err != nil {
				return nil, err
			}
			srcCol := int(math.Floor((lon - src.OriginX) / src.PixelSizeX))
			srcRow := int(math.Floor((src.OriginY - lat) / src.PixelSizeY))
			idx := row*width + col
			if srcCol < 0 || srcCol >= src.Width || srcRow < 0 || srcRow >= src.Height {
				for b := range out.Planes {
					out.Planes[b][idx] = src.NoData
				}
				continue
			}
			srcIdx := srcRow*src.Width + srcCol
			for b := range out.Planes {
				out.Planes[b][idx] = src.Planes[b][srcIdx]
			}
		}
	}

	return out, nil
}
