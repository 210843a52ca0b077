package raster

import (
	"math"
	"path/filepath"
	"testing"
)

func sampleImage() *Int16Image {
	return &Int16Image{
		Width:  4,
		Height: 3,
		Planes: [][]int16{
			{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			{-9999, 0, 100, -100, 32767, -32768, 1, 2, 3, 4, 5, 6},
		},
		EPSG:       4326,
		OriginX:    -149.2,
		OriginY:    61.6,
		PixelSizeX: 0.0005,
		PixelSizeY: 0.0005,
		NoData:     -9999,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.tif")
	src := sampleImage()

	if err := WriteInt16(path, src); err != nil {
		t.Fatal(err)
	}

	img, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	if img.Width != src.Width || img.Height != src.Height || img.Bands != 2 {
		t.Fatalf("grid = %dx%dx%d, want %dx%dx2", img.Width, img.Height, img.Bands, src.Width, src.Height)
	}
	if img.EPSG != 4326 {
		t.Errorf("EPSG = %d, want 4326", img.EPSG)
	}
	if img.OriginX != src.OriginX || img.OriginY != src.OriginY {
		t.Errorf("origin = (%v, %v), want (%v, %v)", img.OriginX, img.OriginY, src.OriginX, src.OriginY)
	}
	if img.PixelSizeX != src.PixelSizeX || img.PixelSizeY != src.PixelSizeY {
		t.Errorf("pixel size = (%v, %v), want (%v, %v)", img.PixelSizeX, img.PixelSizeY, src.PixelSizeX, src.PixelSizeY)
	}
	if img.NoData == nil || *img.NoData != -9999 {
		t.Errorf("nodata = %v, want -9999", img.NoData)
	}

	// nodata samples come back as NaN, everything else verbatim
	if !math.IsNaN(img.Planes[1][0]) {
		t.Errorf("nodata sample = %v, want NaN", img.Planes[1][0])
	}
	if img.Planes[0][0] != 1 || img.Planes[0][11] != 12 {
		t.Errorf("band 1 = %v...%v, want 1...12", img.Planes[0][0], img.Planes[0][11])
	}
	if img.Planes[1][4] != 32767 || img.Planes[1][5] != -32768 {
		t.Errorf("extremes = %v, %v, want 32767, -32768", img.Planes[1][4], img.Planes[1][5])
	}
}

func TestReadInfoProjected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utm.tif")
	src := sampleImage()
	src.EPSG = 32633
	src.OriginX = 500000
	src.OriginY = 6650000
	src.PixelSizeX = 2
	src.PixelSizeY = 2

	if err := WriteInt16(path, src); err != nil {
		t.Fatal(err)
	}

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.EPSG != 32633 {
		t.Errorf("EPSG = %d, want 32633", info.EPSG)
	}

	b := info.Bounds()
	if b.Min[0] != 500000 || b.Max[0] != 500008 {
		t.Errorf("x bounds = [%v, %v], want [500000, 500008]", b.Min[0], b.Max[0])
	}
	if b.Min[1] != 6649994 || b.Max[1] != 6650000 {
		t.Errorf("y bounds = [%v, %v], want [6649994, 6650000]", b.Min[1], b.Max[1])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a tiff at all")); err == nil {
		t.Error("expected error for non-TIFF input")
	}
	if _, err := Decode([]byte{'I', 'I', 0, 0, 0, 0, 0, 0}); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestEncodeValidatesPlanes(t *testing.T) {
	img := sampleImage()
	img.Planes[1] = img.Planes[1][:5]
	if _, err := EncodeInt16(img); err == nil {
		t.Error("expected error for short plane")
	}
}
