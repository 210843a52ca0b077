package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
)

// Int16Image is a multi-band int16 raster ready to be written as a GeoTIFF.
// Planes are row-major, one per band.
type Int16Image struct {
	Width  int
	Height int
	Planes [][]int16

	EPSG       int
	OriginX    float64
	OriginY    float64
	PixelSizeX float64
	PixelSizeY float64
	NoData     int16
}

// Info returns the grid description of the raster.
func (img *Int16Image) Info() *Info {
	return &Info{
		Width: img.Width, Height: img.Height, Bands: len(img.Planes),
		EPSG: img.EPSG, OriginX: img.OriginX, OriginY: img.OriginY,
		PixelSizeX: img.PixelSizeX, PixelSizeY: img.PixelSizeY,
	}
}

// WriteInt16 writes the image to path as an uncompressed pixel-interleaved
// GeoTIFF with signed 16-bit samples, pixel scale, tiepoint, GeoKey and
// GDAL_NODATA tags.
func WriteInt16(path string, img *Int16Image) error {
	data, err := EncodeInt16(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write raster %s: %w", path, err)
	}
	return nil
}

// EncodeInt16 serializes the image as GeoTIFF bytes.
func EncodeInt16(img *Int16Image) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", img.Width, img.Height)
	}
	bands := len(img.Planes)
	if bands == 0 {
		return nil, fmt.Errorf("raster has no bands")
	}
	for b, plane := range img.Planes {
		if len(plane) != img.Width*img.Height {
			return nil, fmt.Errorf("band %d has %d samples, want %d", b, len(plane), img.Width*img.Height)
		}
	}

	bo := binary.LittleEndian

	// One strip holding the whole image, pixel-interleaved.
	pixels := make([]byte, img.Width*img.Height*bands*2)
	pos := 0
	for row := 0; row < img.Height; row++ {
		for col := 0; col < img.Width; col++ {
			idx := row*img.Width + col
			for b := 0; b < bands; b++ {
				bo.PutUint16(pixels[pos:], uint16(img.Planes[b][idx]))
				pos += 2
			}
		}
	}

	w := &tiffWriter{bo: bo}
	w.addShorts(tagBitsPerSample, repeatShort(16, bands))
	w.addLong(tagImageWidth, uint32(img.Width))
	w.addLong(tagImageLength, uint32(img.Height))
	w.addShort(tagCompression, 1)
	w.addShort(tagPhotometric, 1) // BlackIsZero
	w.addLong(tagStripOffsets, 8) // pixel data starts right after the header
	w.addShort(tagSamplesPerPixel, uint16(bands))
	w.addLong(tagRowsPerStrip, uint32(img.Height))
	w.addLong(tagStripByteCounts, uint32(len(pixels)))
	w.addShort(tagPlanarConfig, 1)
	w.addShorts(tagSampleFormat, repeatShort(2, bands)) // signed integer
	w.addDoubles(tagModelPixelScale, []float64{img.PixelSizeX, img.PixelSizeY, 0})
	w.addDoubles(tagModelTiepoint, []float64{0, 0, 0, img.OriginX, img.OriginY, 0})
	keys, err := geoKeyDirectory(img.EPSG)
	if err != nil {
		return nil, err
	}
	w.addShorts(tagGeoKeyDirectory, keys)
	w.addASCII(tagGDALNoData, fmt.Sprintf("%d", img.NoData))

	return w.encode(pixels), nil
}

func geoKeyDirectory(epsg int) ([]uint16, error) {
	modelType := uint16(modelTypeProjected)
	crsKey := uint16(geoKeyProjectedCS)
	if epsg == 4326 {
		modelType = modelTypeGeographic
		crsKey = geoKeyGeographicType
	}
	if epsg <= 0 || epsg > math.MaxUint16 {
		return nil, fmt.Errorf("EPSG code %d not representable in GeoKeys", epsg)
	}
	return []uint16{
		1, 1, 0, 3, // directory version, revision, minor, key count
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, 1, // PixelIsArea
		crsKey, 0, 1, uint16(epsg),
	}, nil
}

// tiffWriter assembles one IFD plus its out-of-line values.
type tiffWriter struct {
	bo      binary.ByteOrder
	entries []tiffEntry
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	// inline holds the value when it fits in 4 bytes, external otherwise.
	inline   [4]byte
	external []byte
}

func (w *tiffWriter) add(tag, typ uint16, count uint32, raw []byte) {
	e := tiffEntry{tag: tag, typ: typ, count: count}
	if len(raw) <= 4 {
		copy(e.inline[:], raw)
	} else {
		e.external = raw
	}
	w.entries = append(w.entries, e)
}

func (w *tiffWriter) addShort(tag uint16, v uint16) {
	w.addShorts(tag, []uint16{v})
}

func (w *tiffWriter) addShorts(tag uint16, vs []uint16) {
	raw := make([]byte, len(vs)*2)
	for i, v := range vs {
		w.bo.PutUint16(raw[i*2:], v)
	}
	w.add(tag, typeShort, uint32(len(vs)), raw)
}

func (w *tiffWriter) addLong(tag uint16, v uint32) {
	raw := make([]byte, 4)
	w.bo.PutUint32(raw, v)
	w.add(tag, typeLong, 1, raw)
}

func (w *tiffWriter) addDoubles(tag uint16, vs []float64) {
	raw := make([]byte, len(vs)*8)
	for i, v := range vs {
		w.bo.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	w.add(tag, typeDouble, uint32(len(vs)), raw)
}

func (w *tiffWriter) addASCII(tag uint16, s string) {
	w.add(tag, typeASCII, uint32(len(s)+1), append([]byte(s), 0))
}

// encode lays the file out as header | pixel strip | IFD | external values.
func (w *tiffWriter) encode(pixels []byte) []byte {
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].tag < w.entries[j].tag })

	ifdOffset := 8 + len(pixels)
	ifdSize := 2 + len(w.entries)*12 + 4
	extOffset := ifdOffset + ifdSize

	var buf bytes.Buffer
	if w.bo == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	hdr := make([]byte, 6)
	w.bo.PutUint16(hdr[0:], 42)
	w.bo.PutUint32(hdr[2:], uint32(ifdOffset))
	buf.Write(hdr)
	buf.Write(pixels)

	var ext bytes.Buffer
	entry := make([]byte, 12)
	count := make([]byte, 2)
	w.bo.PutUint16(count, uint16(len(w.entries)))
	buf.Write(count)
	for _, e := range w.entries {
		w.bo.PutUint16(entry[0:], e.tag)
		w.bo.PutUint16(entry[2:], e.typ)
		w.bo.PutUint32(entry[4:], e.count)
		if e.external != nil {
			w.bo.PutUint32(entry[8:], uint32(extOffset+ext.Len()))
			ext.Write(e.external)
			if ext.Len()%2 == 1 {
				ext.WriteByte(0) // keep value offsets word-aligned
			}
		} else {
			copy(entry[8:], e.inline[:])
		}
		buf.Write(entry)
	}
	buf.Write([]byte{0, 0, 0, 0}) // no next IFD
	buf.Write(ext.Bytes())

	return buf.Bytes()
}

func repeatShort(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}
