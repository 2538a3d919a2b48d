package excavation

import "math"

// A DepthMap is the excavation depth of every pixel of a RasterGrid relative
// to a surface estimate. Depths are non-negative, or NaN where the source
// elevation was NaN.
type DepthMap struct {
	depths           *Grid
	pixelWidth       float64
	pixelHeight      float64
	surfaceElevation float64
}

// BuildDepthMap returns the depth map of grid below estimate. Pixels above the
// surface have zero depth.
func BuildDepthMap(grid *RasterGrid, estimate SurfaceEstimate) *DepthMap {
	depths := newGrid(grid.Width(), grid.Height())
	for i, elevation := range grid.elevations.values {
		switch depth := estimate.Elevation - elevation; {
		case math.IsNaN(elevation):
			depths.values[i] = math.NaN()
		case depth < 0:
			depths.values[i] = 0
		default:
			depths.values[i] = depth
		}
	}
	return &DepthMap{
		depths:           depths,
		pixelWidth:       grid.pixelWidth,
		pixelHeight:      grid.pixelHeight,
		surfaceElevation: estimate.Elevation,
	}
}

// Width returns m's width in pixels.
func (m *DepthMap) Width() int {
	return m.depths.width
}

// Height returns m's height in pixels.
func (m *DepthMap) Height() int {
	return m.depths.height
}

// At returns the depth at row r and column c.
func (m *DepthMap) At(r, c int) float64 {
	return m.depths.At(r, c)
}

// Depths returns m's depths.
func (m *DepthMap) Depths() *Grid {
	return m.depths
}

// Rows returns a copy of m's depths as a slice of rows.
func (m *DepthMap) Rows() [][]float64 {
	return m.depths.Rows()
}

// PixelWidth returns the width of a pixel in meters.
func (m *DepthMap) PixelWidth() float64 {
	return m.pixelWidth
}

// PixelHeight returns the height of a pixel in meters.
func (m *DepthMap) PixelHeight() float64 {
	return m.pixelHeight
}

// PixelArea returns the ground area of a pixel in square meters.
func (m *DepthMap) PixelArea() float64 {
	return m.pixelWidth * m.pixelHeight
}

// SurfaceElevation returns the surface elevation that m is relative to.
func (m *DepthMap) SurfaceElevation() float64 {
	return m.surfaceElevation
}
