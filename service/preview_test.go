package service

import (
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"ccdc-imagegen/ccdc"
)

func testProduct() *ccdc.Product {
	p := &ccdc.Product{
		Width:  2,
		Height: 2,
		Bands:  []string{"BLUE", "GREEN", "RED", "NIR"},
		NoData: -9999,
	}
	for b := range p.Bands {
		base := int16((b + 1) * 100)
		p.Planes = append(p.Planes, []int16{base, base + 50, base + 100, base + 150})
	}
	// mask one pixel across all bands
	for b := range p.Planes {
		p.Planes[b][3] = -9999
	}
	return p
}

func TestWritePreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene_ccdc_preview.jpg")
	if err := WritePreview(path, testProduct()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("preview is not a valid JPEG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 2 || b.Dy() != 2 {
		t.Errorf("preview is %dx%d, want 2x2", b.Dx(), b.Dy())
	}
}

func TestWritePreviewRequiresRGB(t *testing.T) {
	p := &ccdc.Product{
		Width:  1,
		Height: 1,
		Bands:  []string{"NIR"},
		Planes: [][]int16{{100}},
		NoData: -9999,
	}
	if err := WritePreview(filepath.Join(t.TempDir(), "p.jpg"), p); err == nil {
		t.Error("expected error for a product without RGB bands")
	}
}

func TestWritePreviewAllMasked(t *testing.T) {
	p := testProduct()
	for b := range p.Planes {
		for i := range p.Planes[b] {
			p.Planes[b][i] = p.NoData
		}
	}
	if err := WritePreview(filepath.Join(t.TempDir(), "p.jpg"), p); err == nil {
		t.Error("expected error for a fully masked product")
	}
}
