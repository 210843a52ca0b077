package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"

	"ccdc-imagegen/ccdc"
	"ccdc-imagegen/config"
	"ccdc-imagegen/raster"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

const (
	defaultEndpoint  = "https://earthengine.googleapis.com"
	earthEngineScope = "https://www.googleapis.com/auth/earthengine"
	listPageSize     = 100
)

// EEService fetches CCDC coefficient pixels from the Earth Engine REST API
// Implements SegmentSourceInterface
type EEService struct {
	client     *http.Client
	endpoint   string
	collection string
	bands      []string
	segments   int
	scale      float64
	maxTileDim int
}

// NewEEService creates a new EEService instance authenticated with the
// configured service account key. When only an account is configured, ambient
// credentials impersonate it instead. Extra client options (endpoint overrides,
// disabled auth) are appended after the defaults, which lets tests point the
// service at a local server.
func NewEEService(ctx context.Context, cfg *config.GEEConfig, extra ...option.ClientOption) (*EEService, error) {
	var opts []option.ClientOption
	switch {
	case cfg.KeyPath != "":
		if cfg.Account != "" {
			// the key must belong to the configured account
			email, err := serviceAccountEmail(cfg.KeyPath)
			if err != nil {
				return nil, err
			}
			if email != cfg.Account {
				return nil, fmt.Errorf("key file %s belongs to %s, not the configured account %s", cfg.KeyPath, email, cfg.Account)
			}
		}
		// option.WithCredentialsFile handles Service Account authentication
		opts = append(opts,
			option.WithCredentialsFile(cfg.KeyPath),
			option.WithScopes(earthEngineScope),
		)
	case cfg.Account != "":
		opts = append(opts,
			option.ImpersonateCredentials(cfg.Account),
			option.WithScopes(earthEngineScope),
		)
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}
	opts = append(opts, extra...)

	client, endpoint, err := htransport.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Earth Engine client: %w", err)
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	log.Printf("✓ Earth Engine client initialized (collection: %s)", cfg.Collection)

	return &EEService{
		client:     client,
		endpoint:   endpoint,
		collection: cfg.Collection,
		bands:      cfg.Bands,
		segments:   cfg.Segments,
		scale:      cfg.Scale,
		maxTileDim: cfg.MaxTileDim,
	}, nil
}

// Ensure EEService implements SegmentSourceInterface
var _ SegmentSourceInterface = (*EEService)(nil)

// serviceAccountEmail reads the client_email of a service account key file.
func serviceAccountEmail(keyPath string) (string, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return "", fmt.Errorf("failed to parse key file %s: %w", keyPath, err)
	}
	return key.ClientEmail, nil
}

// eeImage is one image asset of the coefficient collection.
type eeImage struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type listImagesResponse struct {
	Images        []eeImage `json:"images"`
	NextPageToken string    `json:"nextPageToken"`
}

// ListImages lists the collection images intersecting the ROI, following
// pagination until exhausted.
func (s *EEService) ListImages(ctx context.Context, roi orb.Ring) ([]eeImage, error) {
	region, err := json.Marshal(geojson.NewGeometry(orb.Polygon{roi}))
	if err != nil {
		return nil, fmt.Errorf("failed to encode ROI region: %w", err)
	}

	var all []eeImage
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprintf("%d", listPageSize))
		q.Set("region", string(region))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		u := fmt.Sprintf("%s/v1/%s:listImages?%s", s.endpoint, s.collection, q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build listImages request: %w", err)
		}

		body, err := s.do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to list images of %s: %w", s.collection, err)
		}

		var page listImagesResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse listImages response: %w", err)
		}

		all = append(all, page.Images...)
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return all, nil
}

// pixel download request body, per the Earth Engine REST pixel endpoints

type gridDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type affineTransform struct {
	ScaleX     float64 `json:"scaleX"`
	ShearX     float64 `json:"shearX"`
	TranslateX float64 `json:"translateX"`
	ShearY     float64 `json:"shearY"`
	ScaleY     float64 `json:"scaleY"`
	TranslateY float64 `json:"translateY"`
}

type pixelGrid struct {
	Dimensions      gridDimensions  `json:"dimensions"`
	AffineTransform affineTransform `json:"affineTransform"`
	CrsCode         string          `json:"crsCode"`
}

type pixelsRequest struct {
	FileFormat string    `json:"fileFormat"`
	BandIds    []string  `json:"bandIds"`
	Grid       pixelGrid `json:"grid"`
}

// FetchSegments downloads the flattened CCDC coefficient planes for the ROI at
// the configured scale and assembles them into a segment stack. Images are
// fetched in listing order with later images overwriting earlier pixels, which
// matches mosaicking the collection.
func (s *EEService) FetchSegments(ctx context.Context, roi orb.Ring) (*ccdc.SegmentStack, error) {
	bound := roi.Bound()
	pixelSize := raster.DegreesPerPixel(s.scale)
	width := int(math.Ceil((bound.Max[0] - bound.Min[0]) / pixelSize))
	height := int(math.Ceil((bound.Max[1] - bound.Min[1]) / pixelSize))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("empty ROI grid (%dx%d pixels)", width, height)
	}

	images, err := s.ListImages(ctx, roi)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no %s images cover the region of interest", s.collection)
	}
	log.Printf("📦 Fetching coefficients from %d image(s), grid %dx%d px at %.0f m", len(images), width, height, s.scale)

	stack := ccdc.NewSegmentStack(width, height, s.bands, s.segments)
	stack.OriginX = bound.Min[0]
	stack.OriginY = bound.Max[1]
	stack.PixelSize = pixelSize

	bandNames := ccdc.StackBandNames(s.bands, s.segments)

	for _, img := range images {
		for ty := 0; ty < height; ty += s.maxTileDim {
			th := min(s.maxTileDim, height-ty)
			for tx := 0; tx < width; tx += s.maxTileDim {
				tw := min(s.maxTileDim, width-tx)
				if err := s.fetchTile(ctx, img.Name, bandNames, stack, tx, ty, tw, th); err != nil {
					return nil, fmt.Errorf("failed to fetch pixels of %s: %w", img.Name, err)
				}
			}
		}
	}

	return stack, nil
}

// fetchTile downloads one tile of one image and merges it into the stack.
func (s *EEService) fetchTile(ctx context.Context, assetName string, bandNames []string, stack *ccdc.SegmentStack, tx, ty, tw, th int) error {
	reqBody := pixelsRequest{
		FileFormat: "GEO_TIFF",
		BandIds:    bandNames,
		Grid: pixelGrid{
			Dimensions: gridDimensions{Width: tw, Height: th},
			AffineTransform: affineTransform{
				ScaleX:     stack.PixelSize,
				TranslateX: stack.OriginX + float64(tx)*stack.PixelSize,
				ScaleY:     -stack.PixelSize,
				TranslateY: stack.OriginY - float64(ty)*stack.PixelSize,
			},
			CrsCode: "EPSG:4326",
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode pixels request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/%s:getPixels", s.endpoint, assetName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build getPixels request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := s.do(req)
	if err != nil {
		return err
	}

	tile, err := raster.Decode(body)
	if err != nil {
		return fmt.Errorf("failed to decode pixel tile: %w", err)
	}
	if tile.Bands != len(bandNames) {
		return fmt.Errorf("pixel tile has %d bands, want %d", tile.Bands, len(bandNames))
	}
	if tile.Width != tw || tile.Height != th {
		return fmt.Errorf("pixel tile is %dx%d, want %dx%d", tile.Width, tile.Height, tw, th)
	}

	for b, name := range bandNames {
		plane, ok := stack.Plane(name)
		if !ok {
			return fmt.Errorf("unexpected plane %q", name)
		}
		for row := 0; row < th; row++ {
			for col := 0; col < tw; col++ {
				v := tile.Planes[b][row*tw+col]
				if math.IsNaN(v) {
					continue // keep whatever an earlier image provided
				}
				plane[(ty+row)*stack.Width+(tx+col)] = v
			}
		}
	}

	return nil
}

// do executes a request and returns the response body, surfacing non-2xx
// statuses with their payload.
func (s *EEService) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("earth engine returned %s: %s", resp.Status, truncate(string(body), 300))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
