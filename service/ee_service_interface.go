package service

import (
	"context"

	"ccdc-imagegen/ccdc"

	"github.com/paulmach/orb"
)

// SegmentSourceInterface defines the contract for fetching CCDC model
// coefficients covering a region of interest
type SegmentSourceInterface interface {
	// FetchSegments returns the coefficient stack for the ROI ring (EPSG:4326)
	FetchSegments(ctx context.Context, roi orb.Ring) (*ccdc.SegmentStack, error)
}
