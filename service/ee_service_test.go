package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ccdc-imagegen/ccdc"
	"ccdc-imagegen/config"
	"ccdc-imagegen/raster"

	"github.com/paulmach/orb"
	"google.golang.org/api/option"
)

func testConfig() *config.GEEConfig {
	return &config.GEEConfig{
		Collection: "projects/CCDC/v3",
		Bands:      []string{"RED"},
		Segments:   1,
		Scale:      30,
		MaxTileDim: 512,
	}
}

// testROI spans a ~4x3 pixel grid at 30 m scale.
func testROI() orb.Ring {
	b := orb.Bound{Min: orb.Point{15.0, 0.0}, Max: orb.Point{15.001, 0.0008}}
	return raster.ROIRing(b)
}

type pixelsCall struct {
	asset  string
	width  int
	height int
}

// fakeEarthEngine serves :listImages with two pages and :getPixels with tiles
// whose plane i is filled with base+i, base depending on the asset.
type fakeEarthEngine struct {
	t *testing.T

	mu          sync.Mutex
	listCalls   int
	pixelsCalls []pixelsCall
}

func (f *fakeEarthEngine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/CCDC/v3:listImages", f.listImages)
	mux.HandleFunc("/v1/projects/CCDC/v3/images/", f.getPixels)
	return mux
}

func (f *fakeEarthEngine) listImages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()

	if region := r.URL.Query().Get("region"); !strings.Contains(region, "Polygon") {
		f.t.Errorf("listImages region is not a polygon: %q", region)
	}

	resp := map[string]interface{}{}
	if r.URL.Query().Get("pageToken") == "" {
		resp["images"] = []map[string]string{{"name": "projects/CCDC/v3/images/a"}}
		resp["nextPageToken"] = "page2"
	} else {
		resp["images"] = []map[string]string{{"name": "projects/CCDC/v3/images/b"}}
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeEarthEngine) getPixels(w http.ResponseWriter, r *http.Request) {
	// path: /v1/projects/CCDC/v3/images/<asset>:getPixels
	path := strings.TrimSuffix(r.URL.Path, ":getPixels")
	asset := path[strings.LastIndex(path, "/")+1:]

	var req struct {
		FileFormat string   `json:"fileFormat"`
		BandIds    []string `json:"bandIds"`
		Grid       struct {
			Dimensions struct {
				Width  int `json:"width"`
				Height int `json:"height"`
			} `json:"dimensions"`
		} `json:"grid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FileFormat != "GEO_TIFF" {
		http.Error(w, "unexpected file format "+req.FileFormat, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.pixelsCalls = append(f.pixelsCalls, pixelsCall{asset: asset, width: req.Grid.Dimensions.Width, height: req.Grid.Dimensions.Height})
	f.mu.Unlock()

	base := int16(1)
	if asset == "b" {
		base = 101
	}

	w2, h := req.Grid.Dimensions.Width, req.Grid.Dimensions.Height
	tile := &raster.Int16Image{
		Width: w2, Height: h,
		EPSG: 4326, OriginX: 15, OriginY: 0.0008,
		PixelSizeX: 0.00027, PixelSizeY: 0.00027,
		NoData: -9999,
	}
	for i := range req.BandIds {
		plane := make([]int16, w2*h)
		for j := range plane {
			plane[j] = base + int16(i)
		}
		tile.Planes = append(tile.Planes, plane)
	}
	data, err := raster.EncodeInt16(tile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func newTestService(t *testing.T, cfg *config.GEEConfig) (*EEService, *fakeEarthEngine) {
	t.Helper()
	fake := &fakeEarthEngine{t: t}
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	svc, err := NewEEService(context.Background(), cfg,
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatal(err)
	}
	return svc, fake
}

func TestListImagesPagination(t *testing.T) {
	svc, fake := newTestService(t, testConfig())

	images, err := svc.ListImages(context.Background(), testROI())
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	if images[0].Name != "projects/CCDC/v3/images/a" || images[1].Name != "projects/CCDC/v3/images/b" {
		t.Errorf("unexpected image names: %+v", images)
	}
	if fake.listCalls != 2 {
		t.Errorf("listImages called %d times, want 2 (pagination)", fake.listCalls)
	}
}

func TestFetchSegments(t *testing.T) {
	svc, fake := newTestService(t, testConfig())

	stack, err := svc.FetchSegments(context.Background(), testROI())
	if err != nil {
		t.Fatal(err)
	}

	if stack.Width != 4 || stack.Height != 3 {
		t.Fatalf("stack grid = %dx%d, want 4x3", stack.Width, stack.Height)
	}

	// one tile per image
	if len(fake.pixelsCalls) != 2 {
		t.Fatalf("getPixels called %d times, want 2", len(fake.pixelsCalls))
	}
	for _, c := range fake.pixelsCalls {
		if c.width != 4 || c.height != 3 {
			t.Errorf("tile %s = %dx%d, want 4x3", c.asset, c.width, c.height)
		}
	}

	// image b is listed after a, so its values win the mosaic
	names := ccdc.StackBandNames(stack.Bands, stack.Segments)
	for i, name := range names {
		plane, ok := stack.Plane(name)
		if !ok {
			t.Fatalf("missing plane %q", name)
		}
		want := float64(101 + i)
		if plane[0] != want {
			t.Errorf("plane %s[0] = %v, want %v", name, plane[0], want)
		}
	}
}

func TestFetchSegmentsTiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTileDim = 2
	svc, fake := newTestService(t, cfg)

	stack, err := svc.FetchSegments(context.Background(), testROI())
	if err != nil {
		t.Fatal(err)
	}
	if stack.Width != 4 || stack.Height != 3 {
		t.Fatalf("stack grid = %dx%d, want 4x3", stack.Width, stack.Height)
	}

	// 4x3 grid with 2 px tiles -> 2x2 tiles per image, 2 images
	if len(fake.pixelsCalls) != 8 {
		t.Fatalf("getPixels called %d times, want 8", len(fake.pixelsCalls))
	}

	// every pixel covered despite tiling
	plane, _ := stack.Plane("S1_tStart")
	for i, v := range plane {
		if v != 109 { // base 101 + plane index 8
			t.Fatalf("tStart[%d] = %v, want 109", i, v)
		}
	}
}

func TestFetchSegmentsNoCoverage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images": []}`)
	}))
	t.Cleanup(ts.Close)

	svc, err := NewEEService(context.Background(), testConfig(),
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.FetchSegments(context.Background(), testROI()); err == nil {
		t.Error("expected error when no images cover the ROI")
	}
}

func writeKeyFile(t *testing.T, email string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.json")
	content := fmt.Sprintf(`{"type": "service_account", "client_email": %q}`, email)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServiceAccountEmail(t *testing.T) {
	path := writeKeyFile(t, "ccdc@project.iam.gserviceaccount.com")
	email, err := serviceAccountEmail(path)
	if err != nil {
		t.Fatal(err)
	}
	if email != "ccdc@project.iam.gserviceaccount.com" {
		t.Errorf("email = %q", email)
	}

	if _, err := serviceAccountEmail(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing key file")
	}
}

func TestNewEEServiceRejectsAccountKeyMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.Account = "expected@project.iam.gserviceaccount.com"
	cfg.KeyPath = writeKeyFile(t, "other@project.iam.gserviceaccount.com")

	_, err := NewEEService(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for an account/key mismatch")
	}
	if !strings.Contains(err.Error(), "other@project.iam.gserviceaccount.com") ||
		!strings.Contains(err.Error(), "expected@project.iam.gserviceaccount.com") {
		t.Errorf("error %q does not name both accounts", err)
	}
}

func TestDoSurfacesAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "permission denied"}}`, http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)

	svc, err := NewEEService(context.Background(), testConfig(),
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ListImages(context.Background(), testROI())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("error %q does not carry the API message", err)
	}
}
