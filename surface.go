package excavation

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Surface estimation defaults.
const (
	DefaultEdgeWidth         = 5
	DefaultPercentile        = 90
	DefaultDescentEdgeWidth  = 10
	DefaultInitialPercentile = 85
	DefaultLearningRate      = 0.1
	DefaultMaxIterations     = 1000
	DefaultTolerance         = 1e-4
	DefaultOutlierSigma      = 3
	LastResortElevation      = 100.0
)

// A SurfaceMethod is a strategy for estimating the original ground surface.
type SurfaceMethod int

const (
	EdgePercentile SurfaceMethod = iota
	GradientDescent
	ManualReference
)

var surfaceMethodNames = [...]string{
	EdgePercentile:  "edge_percentile",
	GradientDescent: "gradient_descent",
	ManualReference: "manual_reference",
}

// ParseSurfaceMethod parses a surface method name.
func ParseSurfaceMethod(s string) (SurfaceMethod, error) {
	for method, name := range surfaceMethodNames {
		if s == name {
			return SurfaceMethod(method), nil
		}
	}
	return 0, fmt.Errorf("%s: unknown surface method", s)
}

func (m SurfaceMethod) String() string {
	if m < 0 || int(m) >= len(surfaceMethodNames) {
		return fmt.Sprintf("SurfaceMethod(%d)", int(m))
	}
	return surfaceMethodNames[m]
}

func (m SurfaceMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *SurfaceMethod) UnmarshalText(text []byte) error {
	method, err := ParseSurfaceMethod(string(text))
	if err != nil {
		return err
	}
	*m = method
	return nil
}

// A LonLat is a geographic point in degrees.
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// A SurfaceEstimate is an estimate of the ground elevation before excavation.
// Method is the method that was actually used, which may differ from
// RequestedMethod if the requested method could not be applied.
type SurfaceEstimate struct {
	Elevation       float64       `json:"elevation"`
	Method          SurfaceMethod `json:"method"`
	RequestedMethod SurfaceMethod `json:"requestedMethod"`
	IterationsUsed  int           `json:"iterationsUsed,omitempty"`
}

// Degraded returns true if the requested method could not be applied.
func (e SurfaceEstimate) Degraded() bool {
	return e.Method != e.RequestedMethod
}

// A SurfaceEstimator estimates the original ground surface of a RasterGrid.
type SurfaceEstimator struct {
	method            SurfaceMethod
	referencePoint    *LonLat
	geolocator        Geolocator
	edgeWidth         int
	percentile        float64
	descentEdgeWidth  int
	initialPercentile float64
	learningRate      float64
	maxIterations     int
	tolerance         float64
}

// A SurfaceOption sets an option on a SurfaceEstimator.
type SurfaceOption func(*SurfaceEstimator)

// WithMethod sets the requested method.
func WithMethod(method SurfaceMethod) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.method = method
	}
}

// WithReferencePoint requests ManualReference estimation using the elevation
// at point, located with geolocator. If geolocator is nil, a ProjGeolocator
// for the grid is used.
func WithReferencePoint(point LonLat, geolocator Geolocator) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.method = ManualReference
		e.referencePoint = &point
		e.geolocator = geolocator
	}
}

// WithEdgeWidth sets the border width in pixels used by EdgePercentile.
func WithEdgeWidth(edgeWidth int) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.edgeWidth = edgeWidth
	}
}

// WithPercentile sets the percentile, in the range [0, 100], used by
// EdgePercentile.
func WithPercentile(percentile float64) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.percentile = percentile
	}
}

// WithDescentEdgeWidth sets the border width in pixels used by
// GradientDescent.
func WithDescentEdgeWidth(descentEdgeWidth int) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.descentEdgeWidth = descentEdgeWidth
	}
}

func WithLearningRate(learningRate float64) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.learningRate = learningRate
	}
}

func WithMaxIterations(maxIterations int) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.maxIterations = maxIterations
	}
}

func WithTolerance(tolerance float64) SurfaceOption {
	return func(e *SurfaceEstimator) {
		e.tolerance = tolerance
	}
}

// NewSurfaceEstimator returns a new SurfaceEstimator with the given options.
func NewSurfaceEstimator(options ...SurfaceOption) *SurfaceEstimator {
	e := &SurfaceEstimator{
		method:            EdgePercentile,
		edgeWidth:         DefaultEdgeWidth,
		percentile:        DefaultPercentile,
		descentEdgeWidth:  DefaultDescentEdgeWidth,
		initialPercentile: DefaultInitialPercentile,
		learningRate:      DefaultLearningRate,
		maxIterations:     DefaultMaxIterations,
		tolerance:         DefaultTolerance,
	}
	for _, option := range options {
		option(e)
	}
	e.percentile = min(max(e.percentile, 0), 100)
	return e
}

// EstimateSurface estimates the original ground surface of grid. It always
// returns a finite elevation.
func EstimateSurface(grid *RasterGrid, options ...SurfaceOption) SurfaceEstimate {
	return NewSurfaceEstimator(options...).Estimate(grid)
}

// Estimate estimates the original ground surface of grid.
func (e *SurfaceEstimator) Estimate(grid *RasterGrid) SurfaceEstimate {
	switch e.method {
	case GradientDescent:
		if elevation, iterations, ok := e.gradientDescent(grid); ok {
			return SurfaceEstimate{
				Elevation:       elevation,
				Method:          GradientDescent,
				RequestedMethod: GradientDescent,
				IterationsUsed:  iterations,
			}
		}
	case ManualReference:
		if elevation, ok := e.manualReference(grid); ok {
			return SurfaceEstimate{
				Elevation:       elevation,
				Method:          ManualReference,
				RequestedMethod: ManualReference,
			}
		}
	}
	return SurfaceEstimate{
		Elevation:       e.edgePercentile(grid),
		Method:          EdgePercentile,
		RequestedMethod: e.method,
	}
}

// EstimateSurfaceDiagnostics returns the estimates of both automatic methods
// for grid.
func EstimateSurfaceDiagnostics(grid *RasterGrid, options ...SurfaceOption) SurfaceDiagnostics {
	return NewSurfaceEstimator(options...).Diagnostics(grid)
}

// SurfaceDiagnostics contains the estimates of both automatic methods.
type SurfaceDiagnostics struct {
	EdgePercentile  float64
	GradientDescent float64
	Iterations      int
}

// Diagnostics returns the estimates of both automatic methods for grid. If
// gradient descent has no border samples then its estimate is the
// EdgePercentile estimate.
func (e *SurfaceEstimator) Diagnostics(grid *RasterGrid) SurfaceDiagnostics {
	diagnostics := SurfaceDiagnostics{
		EdgePercentile: e.edgePercentile(grid),
	}
	if elevation, iterations, ok := e.gradientDescent(grid); ok {
		diagnostics.GradientDescent = elevation
		diagnostics.Iterations = iterations
	} else {
		diagnostics.GradientDescent = diagnostics.EdgePercentile
	}
	return diagnostics
}

// edgePercentile returns the configured percentile of the valid border
// samples, falling back to the maximum valid elevation and then to
// LastResortElevation.
func (e *SurfaceEstimator) edgePercentile(grid *RasterGrid) float64 {
	if samples := edgeSamples(grid.elevations, e.edgeWidth); len(samples) > 0 {
		return percentile(samples, e.percentile)
	}
	if valid := grid.elevations.valid(); len(valid) > 0 {
		return floats.Max(valid)
	}
	return LastResortElevation
}

// gradientDescent minimizes the mean squared error between a scalar estimate
// and the outlier-trimmed border samples. ok is false if there are no valid
// border samples.
func (e *SurfaceEstimator) gradientDescent(grid *RasterGrid) (estimate float64, iterations int, ok bool) {
	samples := edgeSamples(grid.elevations, e.descentEdgeWidth)
	if len(samples) == 0 {
		return 0, 0, false
	}
	samples = trimOutliers(samples, DefaultOutlierSigma)

	// The gradient of the MSE is 2*mean(estimate-sample), which is
	// 2*(estimate-mean(samples)).
	mean := stat.Mean(samples, nil)
	estimate = percentile(samples, e.initialPercentile)
	for iterations < e.maxIterations {
		gradient := 2 * (estimate - mean)
		estimate -= e.learningRate * gradient
		iterations++
		if math.Abs(gradient) < e.tolerance {
			break
		}
	}
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		return 0, iterations, false
	}
	return estimate, iterations, true
}

// manualReference returns the elevation at the reference point.
func (e *SurfaceEstimator) manualReference(grid *RasterGrid) (float64, bool) {
	if e.referencePoint == nil {
		return 0, false
	}
	geolocator := e.geolocator
	if geolocator == nil {
		projGeolocator, err := NewProjGeolocator(grid)
		if err != nil {
			return 0, false
		}
		geolocator = projGeolocator
	}
	coord, err := geolocator.Geolocate(*e.referencePoint)
	if err != nil {
		return 0, false
	}
	if coord.X < 0 || grid.Width() <= coord.X || coord.Y < 0 || grid.Height() <= coord.Y {
		return 0, false
	}
	elevation := grid.At(coord.Y, coord.X)
	if math.IsNaN(elevation) {
		return 0, false
	}
	return elevation, true
}

// edgeSamples returns the valid samples in a border of the given width around
// g. Corner samples are included once for each side that contains them.
func edgeSamples(g *Grid, width int) []float64 {
	if width <= 0 {
		return nil
	}
	rows := min(width, g.height)
	cols := min(width, g.width)
	samples := make([]float64, 0, 2*rows*g.width+2*cols*g.height)
	appendValid := func(r, c int) {
		if value := g.values[r*g.width+c]; !math.IsNaN(value) {
			samples = append(samples, value)
		}
	}
	for r := range rows {
		for c := range g.width {
			appendValid(r, c)
		}
	}
	for r := g.height - rows; r < g.height; r++ {
		for c := range g.width {
			appendValid(r, c)
		}
	}
	for r := range g.height {
		for c := range cols {
			appendValid(r, c)
		}
	}
	for r := range g.height {
		for c := g.width - cols; c < g.width; c++ {
			appendValid(r, c)
		}
	}
	return samples
}

// trimOutliers returns the samples strictly within sigma population standard
// deviations of the mean, or samples if none are.
func trimOutliers(samples []float64, sigma float64) []float64 {
	mean, std := stat.PopMeanStdDev(samples, nil)
	trimmed := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if mean-sigma*std < sample && sample < mean+sigma*std {
			trimmed = append(trimmed, sample)
		}
	}
	if len(trimmed) == 0 {
		return samples
	}
	return trimmed
}

// percentile returns the pth percentile, p in [0, 100], of the non-empty
// values. It interpolates linearly between the order statistics at rank
// (n-1)*p/100, which is Hyndman and Fan's type 7.
func percentile(values []float64, p float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	h := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(h))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
