package excavation

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes an excavation. Every field is finite.
type Stats struct {
	MaxDepthM                 float64 `json:"maxDepthM"`
	MeanDepthM                float64 `json:"meanDepthM"`
	MedianDepthM              float64 `json:"medianDepthM"`
	DepthRangeM               float64 `json:"depthRangeM"`
	QuarryBottomElevationM    float64 `json:"quarryBottomElevationM"`
	OriginalSurfaceElevationM float64 `json:"originalSurfaceElevationM"`
	SurfaceEdgePercentileM    float64 `json:"surfaceEdgePercentileM"`
	SurfaceGradientDescentM   float64 `json:"surfaceGradientDescentM"`
	MinElevationM             float64 `json:"minElevationM"`
	MaxElevationM             float64 `json:"maxElevationM"`
	VolumeM3                  float64 `json:"volumeM3"`
	TotalAreaM2               float64 `json:"totalAreaM2"`
	ExcavatedPixels           int     `json:"excavatedPixels"`
	PixelAreaM2               float64 `json:"pixelAreaM2"`
	Synthetic                 bool    `json:"synthetic"`
}

// ComputeStats returns the summary statistics of the depth map m derived from
// grid. Depth statistics consider only pixels with positive depth. The volume
// is the sum of all depths, without a significance threshold.
func ComputeStats(grid *RasterGrid, m *DepthMap, diagnostics SurfaceDiagnostics) Stats {
	pixelArea := m.PixelArea()
	depths := m.depths.valid()
	excavated := make([]float64, 0, len(depths))
	for _, depth := range depths {
		if depth > 0 {
			excavated = append(excavated, depth)
		}
	}

	minElevation, maxElevation := grid.MinMax()
	stats := Stats{
		QuarryBottomElevationM:    minElevation,
		OriginalSurfaceElevationM: m.surfaceElevation,
		SurfaceEdgePercentileM:    diagnostics.EdgePercentile,
		SurfaceGradientDescentM:   diagnostics.GradientDescent,
		MinElevationM:             minElevation,
		MaxElevationM:             maxElevation,
		VolumeM3:                  floats.Sum(depths) * pixelArea,
		TotalAreaM2:               float64(len(excavated)) * pixelArea,
		ExcavatedPixels:           len(excavated),
		PixelAreaM2:               pixelArea,
	}
	if len(excavated) > 0 {
		stats.MaxDepthM = floats.Max(excavated)
		stats.MeanDepthM = stat.Mean(excavated, nil)
		stats.MedianDepthM = median(excavated)
		stats.DepthRangeM = floats.Max(depths) - floats.Min(depths)
	}
	return stats.finite()
}

// finite returns s with every non-finite field replaced by zero.
func (s Stats) finite() Stats {
	for _, field := range []*float64{
		&s.MaxDepthM,
		&s.MeanDepthM,
		&s.MedianDepthM,
		&s.DepthRangeM,
		&s.QuarryBottomElevationM,
		&s.OriginalSurfaceElevationM,
		&s.SurfaceEdgePercentileM,
		&s.SurfaceGradientDescentM,
		&s.MinElevationM,
		&s.MaxElevationM,
		&s.VolumeM3,
		&s.TotalAreaM2,
		&s.PixelAreaM2,
	} {
		if math.IsNaN(*field) || math.IsInf(*field, 0) {
			*field = 0
		}
	}
	return s
}

// median returns the median of the non-empty values, averaging the two
// middle values if there is an even number of them.
func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
