package excavation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A SlopeReport contains the slope of every pixel of a raster, in degrees,
// and summary statistics that ignore NaN slopes.
type SlopeReport struct {
	SlopeMap   *Grid   `json:"-"`
	AverageDeg float64 `json:"averageDeg"`
	MaxDeg     float64 `json:"maxDeg"`
	MinDeg     float64 `json:"minDeg"`
	StdDeg     float64 `json:"stdDeg"`
}

// ComputeSlope returns the slope of grid using its pixel size.
func ComputeSlope(grid *RasterGrid) SlopeReport {
	return ComputeSlopeWithSpacing(grid.elevations, grid.pixelWidth, grid.pixelHeight)
}

// ComputeSlopeWithSpacing returns the slope of elevations, which are spaced
// pixelWidth meters apart horizontally and pixelHeight meters apart
// vertically. Gradients are central differences in the interior and one-sided
// differences at the edges. The slope is NaN at NaN elevations and wherever a
// difference involves a NaN elevation.
func ComputeSlopeWithSpacing(elevations *Grid, pixelWidth, pixelHeight float64) SlopeReport {
	width, height := elevations.width, elevations.height
	values := elevations.values
	slopeMap := newGrid(width, height)
	for r := range height {
		for c := range width {
			if math.IsNaN(values[r*width+c]) {
				slopeMap.values[r*width+c] = math.NaN()
				continue
			}
			gradX := derivative(values, r*width, 1, width, c, pixelWidth)
			gradY := derivative(values, c, width, height, r, pixelHeight)
			slopeMap.values[r*width+c] = math.Atan(math.Hypot(gradX, gradY)) * 180 / math.Pi
		}
	}

	report := SlopeReport{
		SlopeMap: slopeMap,
	}
	if valid := slopeMap.valid(); len(valid) > 0 {
		report.AverageDeg, report.StdDeg = stat.PopMeanStdDev(valid, nil)
		report.MinDeg = floats.Min(valid)
		report.MaxDeg = floats.Max(valid)
	}
	return report
}

// derivative returns the derivative at index i of the n values
// values[offset], values[offset+stride], ..., which are spaced h apart. A
// single value has zero derivative.
func derivative(values []float64, offset, stride, n, i int, h float64) float64 {
	at := func(j int) float64 {
		return values[offset+j*stride]
	}
	switch {
	case n < 2:
		return 0
	case i == 0:
		return (at(1) - at(0)) / h
	case i == n-1:
		return (at(n-1) - at(n-2)) / h
	default:
		return (at(i+1) - at(i-1)) / (2 * h)
	}
}
