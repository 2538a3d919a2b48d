package excavation

import (
	"context"
	"math"
)

// InterpolateBilinear returns the values of raster at fractional pixel
// coordinates, where {0, 0} is the centre of the top left pixel and each
// coordinate is {column, row}. Neighbours with zero weight are ignored, so
// values at pixel centres are exact even next to NaNs.
func InterpolateBilinear(ctx context.Context, raster Raster, coords [][]float64) ([]float64, error) {
	width, height := raster.Dims()
	rasterCoords := make([]Coord, 4*len(coords))
	for i, coord := range coords {
		x0 := int(math.Floor(coord[0]))
		y0 := int(math.Floor(coord[1]))
		x1 := min(x0+1, width-1)
		y1 := min(y0+1, height-1)
		rasterCoords[4*i+0] = Coord{X: x0, Y: y0}
		rasterCoords[4*i+1] = Coord{X: x1, Y: y0}
		rasterCoords[4*i+2] = Coord{X: x0, Y: y1}
		rasterCoords[4*i+3] = Coord{X: x1, Y: y1}
	}
	samples, err := raster.Samples(ctx, rasterCoords)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(coords))
	for i, coord := range coords {
		if math.IsNaN(coord[0]) || math.IsNaN(coord[1]) {
			result[i] = math.NaN()
			continue
		}
		dx := coord[0] - math.Floor(coord[0])
		dy := coord[1] - math.Floor(coord[1])
		weights := [4]float64{
			(1 - dx) * (1 - dy),
			dx * (1 - dy),
			(1 - dx) * dy,
			dx * dy,
		}
		value := 0.0
		for j, weight := range weights {
			if weight != 0 {
				value += weight * samples[4*i+j]
			}
		}
		result[i] = value
	}
	return result, nil
}

// Sample returns the bilinearly interpolated values of raster at points.
// raster must share the pixel grid of the RasterGrid g was created for.
func (g *ProjGeolocator) Sample(ctx context.Context, raster Raster, points []LonLat) ([]float64, error) {
	cols, rows, err := g.project(points)
	if err != nil {
		return nil, err
	}
	coords := make([][]float64, len(points))
	for i := range points {
		// Pixel centres are offset by half a pixel from pixel corners.
		coords[i] = []float64{cols[i] - 0.5, rows[i] - 0.5}
	}
	return InterpolateBilinear(ctx, raster, coords)
}
