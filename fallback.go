package excavation

import (
	"math"
	"math/rand/v2"
)

// Fallback synthesis defaults.
const (
	DefaultFallbackWidth     = 200
	DefaultFallbackHeight    = 150
	DefaultFallbackMaxDepth  = 32
	DefaultFallbackPixelSize = 5
)

// Elevations reported for a synthetic excavation.
const (
	FallbackSurfaceElevation = 85.2
	FallbackBottomElevation  = 45.2
)

const (
	fallbackRadius      = 0.4
	fallbackNoiseStdDev = 2
)

type fallbackSynthesizer struct {
	width         int
	height        int
	maxDepth      float64
	pixelWidth    float64
	pixelHeight   float64
	seed1         uint64
	seed2         uint64
	volumeOptions []VolumeOption
}

// A FallbackOption sets an option on fallback synthesis.
type FallbackOption func(*fallbackSynthesizer)

// WithFallbackSize sets the size of the synthetic grid.
func WithFallbackSize(width, height int) FallbackOption {
	return func(s *fallbackSynthesizer) {
		s.width = width
		s.height = height
	}
}

// WithFallbackSeed sets the seed of the synthetic terrain noise.
func WithFallbackSeed(seed1, seed2 uint64) FallbackOption {
	return func(s *fallbackSynthesizer) {
		s.seed1 = seed1
		s.seed2 = seed2
	}
}

// WithFallbackMaxDepth sets the depth at the center of the synthetic
// excavation, before noise.
func WithFallbackMaxDepth(maxDepth float64) FallbackOption {
	return func(s *fallbackSynthesizer) {
		s.maxDepth = maxDepth
	}
}

func WithFallbackPixelSize(pixelWidth, pixelHeight float64) FallbackOption {
	return func(s *fallbackSynthesizer) {
		s.pixelWidth = pixelWidth
		s.pixelHeight = pixelHeight
	}
}

// WithFallbackVolumeOptions sets the options used to compute the volume of a
// synthetic Report.
func WithFallbackVolumeOptions(volumeOptions ...VolumeOption) FallbackOption {
	return func(s *fallbackSynthesizer) {
		s.volumeOptions = volumeOptions
	}
}

func newFallbackSynthesizer(options ...FallbackOption) *fallbackSynthesizer {
	s := &fallbackSynthesizer{
		width:       DefaultFallbackWidth,
		height:      DefaultFallbackHeight,
		maxDepth:    DefaultFallbackMaxDepth,
		pixelWidth:  DefaultFallbackPixelSize,
		pixelHeight: DefaultFallbackPixelSize,
	}
	for _, option := range options {
		option(s)
	}
	if s.width <= 0 || s.height <= 0 {
		s.width, s.height = DefaultFallbackWidth, DefaultFallbackHeight
	}
	if !isPositiveFinite(s.maxDepth) {
		s.maxDepth = DefaultFallbackMaxDepth
	}
	if !isPositiveFinite(s.pixelWidth) || !isPositiveFinite(s.pixelHeight) {
		s.pixelWidth, s.pixelHeight = DefaultFallbackPixelSize, DefaultFallbackPixelSize
	}
	return s
}

// SynthesizeFallback returns a synthetic, roughly conical excavation and its
// statistics. The result is deterministic for a given seed.
func SynthesizeFallback(options ...FallbackOption) (*DepthMap, Stats) {
	return synthesizeFallback(newFallbackSynthesizer(options...).rasterGrid())
}

// SynthesizeFallbackReport returns a complete synthetic Report.
func SynthesizeFallbackReport(options ...FallbackOption) *Report {
	s := newFallbackSynthesizer(options...)
	grid := s.rasterGrid()
	depthMap, stats := synthesizeFallback(grid)
	return &Report{
		Surface: SurfaceEstimate{
			Elevation:       FallbackSurfaceElevation,
			Method:          EdgePercentile,
			RequestedMethod: EdgePercentile,
		},
		Depth:     depthMap,
		Stats:     stats,
		Volume:    ComputeVolume(depthMap, s.volumeOptions...),
		Slope:     ComputeSlope(grid),
		Synthetic: true,
	}
}

func synthesizeFallback(grid *RasterGrid) (*DepthMap, Stats) {
	depthMap := BuildDepthMap(grid, SurfaceEstimate{
		Elevation:       FallbackSurfaceElevation,
		Method:          EdgePercentile,
		RequestedMethod: EdgePercentile,
	})
	stats := ComputeStats(grid, depthMap, SurfaceDiagnostics{
		EdgePercentile:  FallbackSurfaceElevation,
		GradientDescent: FallbackSurfaceElevation,
	})
	stats.QuarryBottomElevationM = FallbackBottomElevation
	stats.OriginalSurfaceElevationM = FallbackSurfaceElevation
	stats.Synthetic = true
	return depthMap, stats
}

// rasterGrid returns the synthetic terrain. Depth falls linearly from
// maxDepth at the center to zero at a normalized distance of fallbackRadius,
// with Gaussian noise added everywhere and clamped at zero.
func (s *fallbackSynthesizer) rasterGrid() *RasterGrid {
	rng := rand.New(rand.NewPCG(s.seed1, s.seed2))
	elevations := newGrid(s.width, s.height)
	for r := range s.height {
		y := linspace(r, s.height)
		for c := range s.width {
			x := linspace(c, s.width)
			depth := 0.0
			if d := math.Hypot(x-0.5, y-0.5); d < fallbackRadius {
				depth = (fallbackRadius - d) * s.maxDepth / fallbackRadius
			}
			depth = max(depth+fallbackNoiseStdDev*rng.NormFloat64(), 0)
			elevations.values[r*s.width+c] = FallbackSurfaceElevation - depth
		}
	}
	return &RasterGrid{
		elevations:  elevations,
		pixelWidth:  s.pixelWidth,
		pixelHeight: s.pixelHeight,
	}
}

// linspace returns the ith of n evenly spaced values from 0 to 1 inclusive.
func linspace(i, n int) float64 {
	if n == 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}
