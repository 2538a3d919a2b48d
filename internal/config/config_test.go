package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"go.uber.org/zap/zaptest"

	"github.com/twpayne/go-excavation"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, &Config{
		DEM: DEMConfig{
			Path:           ".",
			FileCacheSize:  32,
			BlockCacheSize: 128 << 20,
		},
		Surface: SurfaceConfig{
			Method:           "edge_percentile",
			EdgeWidth:        excavation.DefaultEdgeWidth,
			Percentile:       excavation.DefaultPercentile,
			DescentEdgeWidth: excavation.DefaultDescentEdgeWidth,
			LearningRate:     excavation.DefaultLearningRate,
			MaxIterations:    excavation.DefaultMaxIterations,
			Tolerance:        excavation.DefaultTolerance,
		},
		Volume: VolumeConfig{
			SignificanceThreshold: excavation.DefaultSignificanceThreshold,
		},
		Log: LogConfig{
			Level: "info",
		},
	}, cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excavation.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(""+
		"dem:\n"+
		"  path: /srv/dem\n"+
		"surface:\n"+
		"  method: gradient_descent\n"+
		"  percentile: 95\n"+
		"volume:\n"+
		"  significance_threshold: 2.5\n",
	), 0o666))
	t.Setenv("EXCAVATION_LOG_LEVEL", "debug")
	t.Setenv("EXCAVATION_SURFACE_EDGE_WIDTH", "7")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "/srv/dem", cfg.DEM.Path)
	assert.Equal(t, "gradient_descent", cfg.Surface.Method)
	assert.Equal(t, 95.0, cfg.Surface.Percentile)
	assert.Equal(t, 7, cfg.Surface.EdgeWidth)
	assert.Equal(t, 2.5, cfg.Volume.SignificanceThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalidMethod(t *testing.T) {
	t.Setenv("EXCAVATION_SURFACE_METHOD", "median")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	t.Setenv("EXCAVATION_SURFACE_METHOD", "gradient_descent")
	cfg, err := Load("")
	assert.NoError(t, err)

	grid, err := excavation.NewRasterGrid([][]float64{
		{50, 50, 50},
		{50, 30, 50},
		{50, 50, 50},
	})
	assert.NoError(t, err)

	estimate := excavation.EstimateSurface(grid, cfg.SurfaceOptions()...)
	assert.Equal(t, excavation.GradientDescent, estimate.Method)
	assert.True(t, estimate.IterationsUsed > 0)

	store, err := excavation.NewDEMStore(cfg.StoreOptions(os.DirFS(t.TempDir()), zaptest.NewLogger(t))...)
	assert.NoError(t, err)
	defer store.Close()

	analyzer := excavation.NewAnalyzer(cfg.AnalyzerOptions(zaptest.NewLogger(t), store)...)
	report := analyzer.Analyze(grid)
	assert.False(t, report.Synthetic)
	assert.Equal(t, excavation.GradientDescent, report.Surface.Method)
}
