package excavation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// A Number is a type that raw elevation samples can be stored as.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// A GeoTransform is an affine transform from pixel space to model space:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type GeoTransform struct {
	A, B, C float64
	D, E, F float64
}

// NewGeoTransformFromGDAL returns the GeoTransform for a GDAL-ordered
// geotransform.
func NewGeoTransformFromGDAL(gt [6]float64) GeoTransform {
	return GeoTransform{
		A: gt[1], B: gt[2], C: gt[0],
		D: gt[4], E: gt[5], F: gt[3],
	}
}

// Apply returns the model coordinates of the pixel corner at col, row.
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert returns the fractional pixel coordinates of the model coordinates x,
// y. ok is false if t is singular.
func (t GeoTransform) Invert(x, y float64) (col, row float64, ok bool) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return 0, 0, false
	}
	dx, dy := x-t.C, y-t.F
	return (t.E*dx - t.B*dy) / det, (-t.D*dx + t.A*dy) / det, true
}

// PixelSize returns the absolute pixel width and height of t.
func (t GeoTransform) PixelSize() (float64, float64) {
	return math.Abs(t.A), math.Abs(t.E)
}

// Bounds returns the model-space extent of a width by height raster.
func (t GeoTransform) Bounds(width, height int) Bounds {
	x0, y0 := t.Apply(0, 0)
	x1, y1 := t.Apply(float64(width), float64(height))
	return Bounds{
		Left:   min(x0, x1),
		Right:  max(x0, x1),
		Bottom: min(y0, y1),
		Top:    max(y0, y1),
	}
}

// Bounds is a model-space extent.
type Bounds struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Top    float64 `json:"top"`
}

// A RasterGrid is an immutable grid of elevation samples with a known pixel
// size. Nodata samples are NaN.
type RasterGrid struct {
	elevations      *Grid
	noData          float64
	hasNoData       bool
	pixelWidth      float64
	pixelHeight     float64
	geoTransform    GeoTransform
	hasGeoTransform bool
	srid            int
}

// A RasterGridOption sets an option on a RasterGrid.
type RasterGridOption func(*RasterGrid)

// WithNoData sets the nodata sentinel. Samples equal to noData become NaN.
func WithNoData(noData float64) RasterGridOption {
	return func(g *RasterGrid) {
		g.noData = noData
		g.hasNoData = !math.IsNaN(noData)
	}
}

// WithGeoTransform sets the geotransform. Unless set explicitly, the pixel
// size is derived from it.
func WithGeoTransform(geoTransform GeoTransform) RasterGridOption {
	return func(g *RasterGrid) {
		g.geoTransform = geoTransform
		g.hasGeoTransform = true
	}
}

// WithPixelSize sets the pixel size in meters.
func WithPixelSize(pixelWidth, pixelHeight float64) RasterGridOption {
	return func(g *RasterGrid) {
		g.pixelWidth = pixelWidth
		g.pixelHeight = pixelHeight
	}
}

// WithSRID sets the EPSG code of the grid's coordinate reference system.
func WithSRID(srid int) RasterGridOption {
	return func(g *RasterGrid) {
		g.srid = srid
	}
}

// NewRasterGrid returns a new RasterGrid from rows of samples.
func NewRasterGrid[T Number](rows [][]T, options ...RasterGridOption) (*RasterGrid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrShape
	}
	width, height := len(rows[0]), len(rows)
	samples := make([]T, 0, width*height)
	for _, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: ragged rows", ErrShape)
		}
		samples = append(samples, row...)
	}
	return NewRasterGridFromSlice(width, height, samples, options...)
}

// NewRasterGridFromSlice returns a new RasterGrid from width*height samples in
// row-major order. It returns ErrEmptyRaster if every sample is nodata.
func NewRasterGridFromSlice[T Number](width, height int, samples []T, options ...RasterGridOption) (*RasterGrid, error) {
	if width <= 0 || height <= 0 || len(samples) != width*height {
		return nil, ErrShape
	}

	g := &RasterGrid{
		elevations: newGrid(width, height),
	}
	for _, option := range options {
		option(g)
	}

	switch {
	case g.pixelWidth != 0 || g.pixelHeight != 0:
	case g.hasGeoTransform:
		g.pixelWidth, g.pixelHeight = g.geoTransform.PixelSize()
	default:
		g.pixelWidth, g.pixelHeight = 1, 1
	}
	if !isPositiveFinite(g.pixelWidth) || !isPositiveFinite(g.pixelHeight) {
		return nil, fmt.Errorf("%w: %gx%g", ErrPixelSize, g.pixelWidth, g.pixelHeight)
	}

	// GDAL writes float32 nodata sentinels with float64 precision.
	var zero T
	_, isFloat32 := any(zero).(float32)

	valid := 0
	for i, sample := range samples {
		value := float64(sample)
		switch {
		case g.hasNoData && (value == g.noData || isFloat32 && float32(value) == float32(g.noData)):
			value = math.NaN()
		case math.IsInf(value, 0):
			value = math.NaN()
		case !math.IsNaN(value):
			valid++
		}
		g.elevations.values[i] = value
	}
	if valid == 0 {
		return nil, ErrEmptyRaster
	}

	return g, nil
}

// Width returns g's width in pixels.
func (g *RasterGrid) Width() int {
	return g.elevations.width
}

// Height returns g's height in pixels.
func (g *RasterGrid) Height() int {
	return g.elevations.height
}

// At returns the elevation at row r and column c.
func (g *RasterGrid) At(r, c int) float64 {
	return g.elevations.At(r, c)
}

// Elevations returns g's elevations.
func (g *RasterGrid) Elevations() *Grid {
	return g.elevations
}

// NoData returns g's nodata sentinel, if any.
func (g *RasterGrid) NoData() (float64, bool) {
	return g.noData, g.hasNoData
}

// PixelWidth returns the width of a pixel in meters.
func (g *RasterGrid) PixelWidth() float64 {
	return g.pixelWidth
}

// PixelHeight returns the height of a pixel in meters.
func (g *RasterGrid) PixelHeight() float64 {
	return g.pixelHeight
}

// PixelArea returns the ground area of a pixel in square meters.
func (g *RasterGrid) PixelArea() float64 {
	return g.pixelWidth * g.pixelHeight
}

// GeoTransform returns g's geotransform, if any.
func (g *RasterGrid) GeoTransform() (GeoTransform, bool) {
	return g.geoTransform, g.hasGeoTransform
}

// SRID returns the EPSG code of g's coordinate reference system, or zero if
// unknown.
func (g *RasterGrid) SRID() int {
	return g.srid
}

// MinMax returns the minimum and maximum valid elevations.
func (g *RasterGrid) MinMax() (float64, float64) {
	valid := g.elevations.valid()
	return floats.Min(valid), floats.Max(valid)
}

func isPositiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}
