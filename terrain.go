package excavation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TerrainVerticalScale is the vertical exaggeration suggested to 3D viewers.
const TerrainVerticalScale = 3

// Terrain models larger than terrainMaxSize pixels along either axis are
// downsampled by two.
const terrainMaxSize = 150

// A TerrainModel is an elevation grid without gaps, suitable for rendering as
// a 3D surface.
type TerrainModel struct {
	Elevation     [][]float64 `json:"elevation"`
	MinElevation  float64     `json:"minElevation"`
	MaxElevation  float64     `json:"maxElevation"`
	MeanElevation float64     `json:"meanElevation"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Bounds        Bounds      `json:"bounds"`
	Scale         float64     `json:"scale"`
}

// NewTerrainModel returns the TerrainModel of grid. NaN elevations are
// replaced by the nearest valid elevation.
func NewTerrainModel(grid *RasterGrid) *TerrainModel {
	filled := fillNearest(grid.elevations)
	if filled.width > terrainMaxSize || filled.height > terrainMaxSize {
		filled = downsample(filled, 2)
	}

	var bounds Bounds
	if geoTransform, ok := grid.GeoTransform(); ok {
		bounds = geoTransform.Bounds(grid.Width(), grid.Height())
	} else {
		bounds = Bounds{
			Right: float64(grid.Width()) * grid.pixelWidth,
			Top:   float64(grid.Height()) * grid.pixelHeight,
		}
	}

	return &TerrainModel{
		Elevation:     filled.Rows(),
		MinElevation:  floats.Min(filled.values),
		MaxElevation:  floats.Max(filled.values),
		MeanElevation: stat.Mean(filled.values, nil),
		Width:         filled.width,
		Height:        filled.height,
		Bounds:        bounds,
		Scale:         TerrainVerticalScale,
	}
}

// fillNearest returns a copy of g with every NaN replaced by the value of the
// nearest non-NaN cell, measured in 4-connected steps. g must contain at least
// one non-NaN value.
func fillNearest(g *Grid) *Grid {
	filled := newGrid(g.width, g.height)
	copy(filled.values, g.values)

	queue := make([]int, 0, len(g.values))
	visited := make([]bool, len(g.values))
	for i, value := range g.values {
		if !math.IsNaN(value) {
			queue = append(queue, i)
			visited[i] = true
		}
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		r, c := i/g.width, i%g.width
		for _, neighbor := range [...]struct{ r, c int }{
			{r - 1, c}, {r + 1, c}, {r, c - 1}, {r, c + 1},
		} {
			if neighbor.r < 0 || g.height <= neighbor.r || neighbor.c < 0 || g.width <= neighbor.c {
				continue
			}
			j := neighbor.r*g.width + neighbor.c
			if visited[j] {
				continue
			}
			visited[j] = true
			filled.values[j] = filled.values[i]
			queue = append(queue, j)
		}
	}
	return filled
}

// downsample returns every stride-th row and column of g, starting with the
// first.
func downsample(g *Grid, stride int) *Grid {
	result := newGrid((g.width+stride-1)/stride, (g.height+stride-1)/stride)
	for r := range result.height {
		for c := range result.width {
			result.values[r*result.width+c] = g.values[r*stride*g.width+c*stride]
		}
	}
	return result
}
