package excavation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestAnalyze(t *testing.T) {
	analyzer := NewAnalyzer(WithLogger(zaptest.NewLogger(t)))

	measuredBefore := testutil.ToFloat64(analyses.WithLabelValues(analysisResultMeasured))
	edgePercentileBefore := testutil.ToFloat64(surfaceEstimates.WithLabelValues(EdgePercentile.String()))

	report := analyzer.Analyze(newQuarryGrid(t, WithPixelSize(5, 5)))
	assert.False(t, report.Synthetic)
	assert.Equal(t, "", report.FallbackReason)
	assert.Equal(t, SurfaceEstimate{
		Elevation:       50,
		Method:          EdgePercentile,
		RequestedMethod: EdgePercentile,
	}, report.Surface)
	assert.Equal(t, 20.0, report.Depth.At(4, 4))
	assert.Equal(t, 4500.0, report.Stats.VolumeM3)
	assert.Equal(t, 4500.0, report.Volume.PixelMethodM3)
	assert.False(t, report.Volume.IntegralMethodFailed)
	assert.True(t, report.Slope.MaxDeg > 0)

	assert.Equal(t, measuredBefore+1, testutil.ToFloat64(analyses.WithLabelValues(analysisResultMeasured)))
	assert.Equal(t, edgePercentileBefore+1, testutil.ToFloat64(surfaceEstimates.WithLabelValues(EdgePercentile.String())))

	data, err := json.Marshal(report)
	assert.NoError(t, err)
	var decoded struct {
		Surface struct {
			Method string `json:"method"`
		} `json:"surface"`
		Synthetic bool `json:"synthetic"`
	}
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "edge_percentile", decoded.Surface.Method)
	assert.False(t, decoded.Synthetic)
}

func TestAnalyzeOptions(t *testing.T) {
	analyzer := NewAnalyzer(
		WithLogger(zaptest.NewLogger(t)),
		WithSurfaceOptions(WithMethod(GradientDescent)),
		WithVolumeOptions(WithSignificanceThreshold(25)),
	)

	report := analyzer.Analyze(newQuarryGrid(t))
	assert.Equal(t, GradientDescent, report.Surface.Method)
	assert.Equal(t, 50.0, report.Surface.Elevation)
	assert.Equal(t, 0, report.Volume.QuarryPixels)
	assert.Equal(t, 180.0, report.Stats.VolumeM3)

	report = analyzer.Analyze(newQuarryGrid(t), WithMethod(EdgePercentile))
	assert.Equal(t, EdgePercentile, report.Surface.Method)
}

func TestAnalyzeDegradedSurface(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	analyzer := NewAnalyzer(WithLogger(zap.New(core)))

	outOfBounds := GeolocatorFunc(func(LonLat) (Coord, error) {
		return Coord{X: 100, Y: 100}, nil
	})
	report := analyzer.Analyze(newQuarryGrid(t), WithReferencePoint(LonLat{Lon: 1, Lat: 2}, outOfBounds))
	assert.False(t, report.Synthetic)
	assert.True(t, report.Surface.Degraded())
	assert.Equal(t, EdgePercentile, report.Surface.Method)
	assert.Equal(t, ManualReference, report.Surface.RequestedMethod)
	assert.Equal(t, 50.0, report.Surface.Elevation)
	assert.Equal(t, 1, logs.FilterMessage("surface method unavailable").Len())
}

func TestAnalyzeIntegrationFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	analyzer := NewAnalyzer(WithLogger(zap.New(core)))

	grid, err := NewRasterGrid([][]float64{
		{30, 10},
		{10, 10},
	})
	assert.NoError(t, err)
	topLeft := GeolocatorFunc(func(LonLat) (Coord, error) {
		return Coord{}, nil
	})

	integrationFailuresBefore := testutil.ToFloat64(integrationFailures)
	report := analyzer.Analyze(grid, WithReferencePoint(LonLat{}, topLeft))
	assert.False(t, report.Synthetic)
	assert.Equal(t, ManualReference, report.Surface.Method)
	assert.Equal(t, 30.0, report.Surface.Elevation)
	assert.True(t, report.Volume.IntegralMethodFailed)
	assert.Equal(t, 0.0, report.Volume.IntegralMethodM3)
	assert.Equal(t, 60.0, report.Volume.PixelMethodM3)
	assert.Equal(t, integrationFailuresBefore+1, testutil.ToFloat64(integrationFailures))
	assert.Equal(t, 1, logs.FilterMessage("integration failed").Len())
}

func TestAnalyzeFallback(t *testing.T) {
	panicking := GeolocatorFunc(func(LonLat) (Coord, error) {
		panic("geolocator")
	})
	for _, tc := range []struct {
		name           string
		grid           *RasterGrid
		options        []SurfaceOption
		expectedReason string
	}{
		{
			name:           "nil_grid",
			expectedReason: "empty raster",
		},
		{
			name:           "panic",
			grid:           newQuarryGrid(t),
			options:        []SurfaceOption{WithReferencePoint(LonLat{}, panicking)},
			expectedReason: "panic: geolocator",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			analyzer := NewAnalyzer(
				WithLogger(zaptest.NewLogger(t)),
				WithFallbackOptions(WithFallbackSize(40, 30)),
			)
			syntheticBefore := testutil.ToFloat64(analyses.WithLabelValues(analysisResultSynthetic))

			report := analyzer.Analyze(tc.grid, tc.options...)
			assert.True(t, report.Synthetic)
			assert.True(t, report.Stats.Synthetic)
			assert.Equal(t, tc.expectedReason, report.FallbackReason)
			assert.Equal(t, 40, report.Depth.Width())
			assert.Equal(t, 30, report.Depth.Height())
			assert.True(t, report.Stats.MaxDepthM > 0)
			assert.Equal(t, syntheticBefore+1, testutil.ToFloat64(analyses.WithLabelValues(analysisResultSynthetic)))
		})
	}
}

func TestAnalyzeFallbackVolumeOptions(t *testing.T) {
	analyzer := NewAnalyzer(
		WithLogger(zaptest.NewLogger(t)),
		WithVolumeOptions(WithSignificanceThreshold(10)),
		WithFallbackOptions(WithFallbackSize(40, 30)),
	)
	report := analyzer.Analyze(nil)
	assert.True(t, report.Synthetic)
	assert.Equal(t, 10.0, report.Volume.SignificanceThresholdM)
	shallow, ok := report.Volume.Category(CategoryShallow)
	assert.True(t, ok)
	assert.Equal(t, 0.0, shallow.VolumeM3)

	overridden := NewAnalyzer(
		WithLogger(zaptest.NewLogger(t)),
		WithVolumeOptions(WithSignificanceThreshold(10)),
		WithFallbackOptions(WithFallbackSize(40, 30), WithFallbackVolumeOptions(WithSignificanceThreshold(20))),
	)
	assert.Equal(t, 20.0, overridden.Analyze(nil).Volume.SignificanceThresholdM)
}

func writeTestQuarryGeoTIFF(t *testing.T, dir, filename string) {
	t.Helper()
	(&testGeoTIFF{
		width:         10,
		height:        10,
		rowsPerStrip:  4,
		sampleFormat:  sampleFormatFloat,
		bitsPerSample: 32,
		noData:        "-9999",
		pixelScale:    []float64{5, 5, 0},
		tiepoint:      []float64{0, 0, 0, 500000, 4000000, 0},
		geoKeys: []uint16{
			1, 1, 0, 2,
			1024, 0, 1, ModelTypeProjected,
			3072, 0, 1, 32633,
		},
		samples: newTestSamples(10, 10, func(r, c int) float64 {
			if 3 <= r && r <= 5 && 3 <= c && c <= 5 {
				return 30
			}
			return 50
		}),
	}).write(t, dir, filename)
}

func TestAnalyzeFile(t *testing.T) {
	dir := t.TempDir()
	writeTestQuarryGeoTIFF(t, dir, "quarry.tif")
	(&testGeoTIFF{
		width:         5,
		height:        5,
		sampleFormat:  sampleFormatInt,
		bitsPerSample: 16,
		noData:        "-32768",
		samples: newTestSamples(5, 5, func(int, int) float64 {
			return -32768
		}),
	}).write(t, dir, "empty.tif")

	store, err := NewDEMStore(WithFS(os.DirFS(dir)))
	assert.NoError(t, err)
	t.Cleanup(store.Close)

	for _, tc := range []struct {
		name     string
		analyzer *Analyzer
		filename string
	}{
		{
			name:     "store",
			analyzer: NewAnalyzer(WithLogger(zaptest.NewLogger(t)), WithStore(store)),
			filename: "quarry.tif",
		},
		{
			name:     "os",
			analyzer: NewAnalyzer(WithLogger(zaptest.NewLogger(t))),
			filename: filepath.Join(dir, "quarry.tif"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			report := tc.analyzer.AnalyzeFile(t.Context(), tc.filename)
			assert.False(t, report.Synthetic)
			assert.Equal(t, 50.0, report.Surface.Elevation)
			assert.Equal(t, 4500.0, report.Stats.VolumeM3)
			assert.Equal(t, 9, report.Stats.ExcavatedPixels)
		})
	}

	for _, tc := range []struct {
		name           string
		filename       string
		expectedReason string
	}{
		{name: "missing", filename: "missing.tif", expectedReason: "unreadable source"},
		{name: "empty", filename: "empty.tif", expectedReason: "empty raster"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			analyzer := NewAnalyzer(WithLogger(zaptest.NewLogger(t)), WithStore(store))
			report := analyzer.AnalyzeFile(t.Context(), tc.filename)
			assert.True(t, report.Synthetic)
			assert.Contains(t, report.FallbackReason, tc.expectedReason)
			assert.True(t, report.Depth.Width() > 0)
			assert.True(t, report.Depth.Height() > 0)
			assert.True(t, report.Stats.MaxDepthM > 0)
		})
	}
}

func BenchmarkAnalyze(b *testing.B) {
	grid := newFallbackSynthesizer().rasterGrid()
	analyzer := NewAnalyzer()
	for b.Loop() {
		analyzer.Analyze(grid)
	}
}
