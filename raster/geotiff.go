// Package raster reads and writes the GeoTIFF files the pipeline exchanges:
// footprint scenes on the way in, synthetic products on the way out, and the
// coefficient tiles returned by the Earth Engine pixel endpoint. Only classic
// uncompressed TIFFs are handled, which is what all three producers emit.
package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// TIFF tags used by the reader/writer.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
)

// GeoKey IDs.
const (
	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedCS    = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
)

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeFloat    = 11
	typeDouble   = 12
)

var typeSizes = map[uint16]int{
	typeByte:     1,
	typeASCII:    1,
	typeShort:    2,
	typeLong:     4,
	typeRational: 8,
	typeFloat:    4,
	typeDouble:   8,
}

// Info describes the grid and georeferencing of a GeoTIFF.
type Info struct {
	Width  int
	Height int
	Bands  int
	// EPSG is the coordinate reference system code (e.g. 4326, 32633).
	EPSG int

	// OriginX/OriginY are the model coordinates of the top-left raster corner.
	OriginX    float64
	OriginY    float64
	PixelSizeX float64
	PixelSizeY float64

	// NoData is the declared nodata value, if any (GDAL_NODATA tag).
	NoData *float64
}

// Bounds returns the model-space bounding box of the raster.
func (inf *Info) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{inf.OriginX, inf.OriginY - float64(inf.Height)*inf.PixelSizeY},
		Max: orb.Point{inf.OriginX + float64(inf.Width)*inf.PixelSizeX, inf.OriginY},
	}
}

// Image is a fully decoded raster: one row-major float64 plane per band.
// Nodata samples are NaN.
type Image struct {
	Info
	Planes [][]float64
}

// ReadInfo parses the georeferencing of a GeoTIFF without decoding pixels.
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster %s: %w", path, err)
	}
	info, _, err := decodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse raster %s: %w", path, err)
	}
	return info, nil
}

// Read decodes a full GeoTIFF from disk.
func Read(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster %s: %w", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	return img, nil
}

// Decode parses a GeoTIFF from memory.
func Decode(data []byte) (*Image, error) {
	info, ifd, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	compression := ifd.intOr(tagCompression, 1)
	if compression != 1 {
		return nil, fmt.Errorf("unsupported TIFF compression %d (only uncompressed is handled)", compression)
	}
	if planar := ifd.intOr(tagPlanarConfig, 1); planar != 1 {
		return nil, fmt.Errorf("unsupported TIFF planar configuration %d", planar)
	}

	bits := ifd.ints(tagBitsPerSample)
	if len(bits) == 0 {
		bits = []int{8}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, fmt.Errorf("mixed bits-per-sample %v not supported", bits)
		}
	}
	format := 1
	if sf := ifd.ints(tagSampleFormat); len(sf) > 0 {
		format = sf[0]
	}

	offsets := ifd.ints(tagStripOffsets)
	counts := ifd.ints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("malformed strip layout: %d offsets, %d byte counts", len(offsets), len(counts))
	}
	rowsPerStrip := ifd.intOr(tagRowsPerStrip, info.Height)

	planes := make([][]float64, info.Bands)
	for b := range planes {
		planes[b] = make([]float64, info.Width*info.Height)
	}

	sampleBytes := bits[0] / 8
	rowBytes := info.Width * info.Bands * sampleBytes

	for s, off := range offsets {
		if off+counts[s] > len(data) {
			return nil, fmt.Errorf("strip %d extends past end of file", s)
		}
		strip := data[off : off+counts[s]]
		firstRow := s * rowsPerStrip
		lastRow := firstRow + rowsPerStrip
		if lastRow > info.Height {
			lastRow = info.Height
		}
		if len(strip) < (lastRow-firstRow)*rowBytes {
			return nil, fmt.Errorf("strip %d too short: %d bytes for %d rows", s, len(strip), lastRow-firstRow)
		}
		for row := firstRow; row < lastRow; row++ {
			base := (row - firstRow) * rowBytes
			for col := 0; col < info.Width; col++ {
				for b := 0; b < info.Bands; b++ {
					p := base + (col*info.Bands+b)*sampleBytes
					v, err := decodeSample(strip[p:p+sampleBytes], ifd.bo, format, bits[0])
					if err != nil {
						return nil, err
					}
					if info.NoData != nil && v == *info.NoData {
						v = math.NaN()
					}
					planes[b][row*info.Width+col] = v
				}
			}
		}
	}

	return &Image{Info: *info, Planes: planes}, nil
}

func decodeSample(raw []byte, bo binary.ByteOrder, format, bits int) (float64, error) {
	switch format {
	case 1: // unsigned integer
		switch bits {
		case 8:
			return float64(raw[0]), nil
		case 16:
			return float64(bo.Uint16(raw)), nil
		case 32:
			return float64(bo.Uint32(raw)), nil
		}
	case 2: // signed integer
		switch bits {
		case 8:
			return float64(int8(raw[0])), nil
		case 16:
			return float64(int16(bo.Uint16(raw))), nil
		case 32:
			return float64(int32(bo.Uint32(raw))), nil
		}
	case 3: // IEEE float
		switch bits {
		case 32:
			return float64(math.Float32frombits(bo.Uint32(raw))), nil
		case 64:
			return math.Float64frombits(bo.Uint64(raw)), nil
		}
	}
	return 0, fmt.Errorf("unsupported sample format %d with %d bits", format, bits)
}

// ifd gives typed access to the entries of a parsed image file directory.
type ifd struct {
	bo      binary.ByteOrder
	data    []byte
	entries map[uint16]ifdEntry
}

type ifdEntry struct {
	typ   uint16
	count int
	value []byte
}

func decodeHeader(data []byte) (*Info, *ifd, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("file too short for a TIFF header")
	}
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("not a TIFF file (bad byte-order mark %q)", data[:2])
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, nil, fmt.Errorf("not a TIFF file (bad magic)")
	}

	d, err := parseIFD(data, bo, int(bo.Uint32(data[4:8])))
	if err != nil {
		return nil, nil, err
	}

	info := &Info{
		Width:  d.intOr(tagImageWidth, 0),
		Height: d.intOr(tagImageLength, 0),
		Bands:  d.intOr(tagSamplesPerPixel, 1),
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, nil, fmt.Errorf("missing raster dimensions")
	}

	scale := d.doubles(tagModelPixelScale)
	tiepoint := d.doubles(tagModelTiepoint)
	if len(scale) < 2 || len(tiepoint) < 6 {
		return nil, nil, fmt.Errorf("raster carries no geotransform (pixel scale / tiepoint tags missing)")
	}
	info.PixelSizeX = scale[0]
	info.PixelSizeY = scale[1]
	// tiepoint maps raster point (I,J,K) to model point (X,Y,Z)
	info.OriginX = tiepoint[3] - tiepoint[0]*scale[0]
	info.OriginY = tiepoint[4] + tiepoint[1]*scale[1]

	epsg, err := parseGeoKeys(d.ints(tagGeoKeyDirectory))
	if err != nil {
		return nil, nil, err
	}
	info.EPSG = epsg

	if nd := d.ascii(tagGDALNoData); nd != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(nd), 64); err == nil {
			info.NoData = &v
		}
	}

	return info, d, nil
}

func parseIFD(data []byte, bo binary.ByteOrder, offset int) (*ifd, error) {
	if offset+2 > len(data) {
		return nil, fmt.Errorf("IFD offset %d out of range", offset)
	}
	n := int(bo.Uint16(data[offset : offset+2]))
	d := &ifd{bo: bo, data: data, entries: make(map[uint16]ifdEntry, n)}

	for i := 0; i < n; i++ {
		base := offset + 2 + i*12
		if base+12 > len(data) {
			return nil, fmt.Errorf("truncated IFD entry %d", i)
		}
		tag := bo.Uint16(data[base : base+2])
		typ := bo.Uint16(data[base+2 : base+4])
		count := int(bo.Uint32(data[base+4 : base+8]))

		size, ok := typeSizes[typ]
		if !ok {
			continue // unknown field type, skip
		}
		total := size * count
		var value []byte
		if total <= 4 {
			value = data[base+8 : base+8+total]
		} else {
			voff := int(bo.Uint32(data[base+8 : base+12]))
			if voff+total > len(data) {
				return nil, fmt.Errorf("tag %d value out of range", tag)
			}
			value = data[voff : voff+total]
		}
		d.entries[tag] = ifdEntry{typ: typ, count: count, value: value}
	}
	return d, nil
}

// ints returns an integer-valued tag (SHORT or LONG), or nil when absent.
func (d *ifd) ints(tag uint16) []int {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	out := make([]int, 0, e.count)
	switch e.typ {
	case typeShort:
		for i := 0; i < e.count; i++ {
			out = append(out, int(d.bo.Uint16(e.value[i*2:])))
		}
	case typeLong:
		for i := 0; i < e.count; i++ {
			out = append(out, int(d.bo.Uint32(e.value[i*4:])))
		}
	default:
		return nil
	}
	return out
}

func (d *ifd) intOr(tag uint16, def int) int {
	if vs := d.ints(tag); len(vs) > 0 {
		return vs[0]
	}
	return def
}

func (d *ifd) doubles(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok || e.typ != typeDouble {
		return nil
	}
	out := make([]float64, 0, e.count)
	for i := 0; i < e.count; i++ {
		out = append(out, math.Float64frombits(d.bo.Uint64(e.value[i*8:])))
	}
	return out
}

func (d *ifd) ascii(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != typeASCII {
		return ""
	}
	return strings.TrimRight(string(e.value), "\x00")
}

// parseGeoKeys extracts the CRS code from a GeoKeyDirectory. Geographic CRSs are
// resolved through GeographicTypeGeoKey, projected ones through
// ProjectedCSTypeGeoKey.
func parseGeoKeys(dir []int) (int, error) {
	if len(dir) < 4 {
		return 0, fmt.Errorf("raster carries no GeoKey directory")
	}
	numKeys := dir[3]
	modelType := 0
	geographic := 0
	projected := 0
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+4 > len(dir) {
			return 0, fmt.Errorf("truncated GeoKey directory")
		}
		keyID, location, value := dir[base], dir[base+1], dir[base+3]
		if location != 0 {
			continue // value stored in a companion tag; EPSG codes never are
		}
		switch keyID {
		case geoKeyModelType:
			modelType = value
		case geoKeyGeographicType:
			geographic = value
		case geoKeyProjectedCS:
			projected = value
		}
	}

	switch {
	case modelType == modelTypeProjected && projected != 0:
		return projected, nil
	case geographic != 0:
		return geographic, nil
	case projected != 0:
		return projected, nil
	}
	return 0, fmt.Errorf("GeoKey directory carries no CRS code")
}
