package excavation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"
)

// A Report is the result of analyzing an excavation. If Synthetic is true then
// the analysis failed and the report describes a synthetic excavation for the
// reason in FallbackReason.
type Report struct {
	Surface        SurfaceEstimate `json:"surface"`
	Depth          *DepthMap       `json:"-"`
	Stats          Stats           `json:"stats"`
	Volume         VolumeReport    `json:"volume"`
	Slope          SlopeReport     `json:"slope"`
	Synthetic      bool            `json:"synthetic"`
	FallbackReason string          `json:"fallbackReason,omitempty"`
}

// An Analyzer runs the full excavation analysis pipeline. It never fails:
// any error produces a synthetic report.
type Analyzer struct {
	logger          *zap.Logger
	store           *DEMStore
	surfaceOptions  []SurfaceOption
	volumeOptions   []VolumeOption
	fallbackOptions []FallbackOption
}

// An AnalyzerOption sets an option on an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithStore sets the DEMStore used by AnalyzeFile. Without a store, files are
// read directly from the operating system.
func WithStore(store *DEMStore) AnalyzerOption {
	return func(a *Analyzer) {
		a.store = store
	}
}

// WithSurfaceOptions sets default options for surface estimation.
func WithSurfaceOptions(surfaceOptions ...SurfaceOption) AnalyzerOption {
	return func(a *Analyzer) {
		a.surfaceOptions = surfaceOptions
	}
}

func WithVolumeOptions(volumeOptions ...VolumeOption) AnalyzerOption {
	return func(a *Analyzer) {
		a.volumeOptions = volumeOptions
	}
}

func WithFallbackOptions(fallbackOptions ...FallbackOption) AnalyzerOption {
	return func(a *Analyzer) {
		a.fallbackOptions = fallbackOptions
	}
}

// NewAnalyzer returns a new Analyzer with the given options.
func NewAnalyzer(options ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// AnalyzeFile loads the GeoTIFF filename and analyzes it. options are applied
// after the Analyzer's default surface options.
func (a *Analyzer) AnalyzeFile(ctx context.Context, filename string, options ...SurfaceOption) *Report {
	grid, err := a.load(ctx, filename)
	if err != nil {
		a.logger.Warn("load", zap.String("filename", filename), zap.Error(err))
		return a.fallback(err.Error())
	}
	return a.Analyze(grid, options...)
}

// Analyze analyzes grid. options are applied after the Analyzer's default
// surface options.
func (a *Analyzer) Analyze(grid *RasterGrid, options ...SurfaceOption) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("recovered", zap.Any("panic", r))
			report = a.fallback(fmt.Sprintf("panic: %v", r))
		}
	}()

	if grid == nil {
		return a.fallback(ErrEmptyRaster.Error())
	}

	surfaceEstimator := NewSurfaceEstimator(append(slices.Clone(a.surfaceOptions), options...)...)
	estimate := surfaceEstimator.Estimate(grid)
	surfaceEstimates.WithLabelValues(estimate.Method.String()).Inc()
	if estimate.Degraded() {
		a.logger.Warn("surface method unavailable",
			zap.Stringer("requested", estimate.RequestedMethod),
			zap.Stringer("used", estimate.Method),
		)
	}

	depthMap := BuildDepthMap(grid, estimate)

	volume := ComputeVolume(depthMap, a.volumeOptions...)
	if volume.IntegralMethodFailed {
		integrationFailures.Inc()
		a.logger.Warn("integration failed",
			zap.Int("width", depthMap.Width()),
			zap.Int("height", depthMap.Height()),
			zap.Int("quarryPixels", volume.QuarryPixels),
		)
	}

	stats := ComputeStats(grid, depthMap, surfaceEstimator.Diagnostics(grid))

	analyses.WithLabelValues(analysisResultMeasured).Inc()
	return &Report{
		Surface: estimate,
		Depth:   depthMap,
		Stats:   stats,
		Volume:  volume,
		Slope:   ComputeSlope(grid),
	}
}

// load loads filename from a's store, or from the operating system if a has
// no store.
func (a *Analyzer) load(ctx context.Context, filename string) (*RasterGrid, error) {
	if a.store != nil {
		return a.store.Load(ctx, filename)
	}
	dir, base := filepath.Split(filename)
	if dir == "" {
		dir = "."
	}
	return LoadGeoTIFF(ctx, os.DirFS(dir), base)
}

// fallback returns a synthetic report for reason.
func (a *Analyzer) fallback(reason string) *Report {
	a.logger.Warn("synthesizing fallback", zap.String("reason", reason))
	analyses.WithLabelValues(analysisResultSynthetic).Inc()
	fallbackOptions := append([]FallbackOption{WithFallbackVolumeOptions(a.volumeOptions...)}, a.fallbackOptions...)
	report := SynthesizeFallbackReport(fallbackOptions...)
	report.FallbackReason = reason
	return report
}
