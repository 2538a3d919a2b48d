package excavation

import (
	"context"
	"fmt"
)

// DefaultProfileSamples is the default number of samples in a Profile.
const DefaultProfileSamples = 100

// A NormalizedPoint is a position within a raster, where {0, 0} is the centre
// of the top left pixel and {1, 1} is the centre of the bottom right pixel.
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// A Profile is a cross-section of a raster along a straight line.
type Profile struct {
	Start     NormalizedPoint `json:"start"`
	End       NormalizedPoint `json:"end"`
	Distances []float64       `json:"distances"`
	Values    []float64       `json:"values"`
}

// ExtractProfile returns n bilinearly interpolated samples of raster evenly
// spaced from start to end. Distances are normalized so that start is 0 and
// end is 1. Points outside raster are clamped to its edges.
func ExtractProfile(ctx context.Context, raster Raster, start, end NormalizedPoint, n int) (*Profile, error) {
	if n < 2 {
		return nil, fmt.Errorf("%d: too few profile samples", n)
	}
	width, height := raster.Dims()
	distances := make([]float64, n)
	coords := make([][]float64, n)
	for i := range n {
		t := linspace(i, n)
		x := clamp01(start.X + t*(end.X-start.X))
		y := clamp01(start.Y + t*(end.Y-start.Y))
		distances[i] = t
		coords[i] = []float64{x * float64(width-1), y * float64(height-1)}
	}
	values, err := InterpolateBilinear(ctx, raster, coords)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Start:     start,
		End:       end,
		Distances: distances,
		Values:    values,
	}, nil
}

func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}
