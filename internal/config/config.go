// Package config loads excavation analysis configuration from an optional
// file and EXCAVATION_-prefixed environment variables.
package config

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/twpayne/go-excavation"
)

type Config struct {
	DEM     DEMConfig
	Surface SurfaceConfig
	Volume  VolumeConfig
	Log     LogConfig
}

type DEMConfig struct {
	Path           string
	FileCacheSize  int
	BlockCacheSize int
}

type SurfaceConfig struct {
	Method           string
	EdgeWidth        int
	Percentile       float64
	DescentEdgeWidth int
	LearningRate     float64
	MaxIterations    int
	Tolerance        float64
}

type VolumeConfig struct {
	SignificanceThreshold float64
}

type LogConfig struct {
	Level string
}

// Load loads the configuration. If path is not empty then the file at path is
// read first. Environment variables override the file, so that dem.path is
// set by EXCAVATION_DEM_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXCAVATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dem.path", ".")
	v.SetDefault("dem.file_cache_size", 32)
	v.SetDefault("dem.block_cache_size", 128<<20)
	v.SetDefault("surface.method", excavation.EdgePercentile.String())
	v.SetDefault("surface.edge_width", excavation.DefaultEdgeWidth)
	v.SetDefault("surface.percentile", excavation.DefaultPercentile)
	v.SetDefault("surface.descent_edge_width", excavation.DefaultDescentEdgeWidth)
	v.SetDefault("surface.learning_rate", excavation.DefaultLearningRate)
	v.SetDefault("surface.max_iterations", excavation.DefaultMaxIterations)
	v.SetDefault("surface.tolerance", excavation.DefaultTolerance)
	v.SetDefault("volume.significance_threshold", excavation.DefaultSignificanceThreshold)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		DEM: DEMConfig{
			Path:           v.GetString("dem.path"),
			FileCacheSize:  v.GetInt("dem.file_cache_size"),
			BlockCacheSize: v.GetInt("dem.block_cache_size"),
		},
		Surface: SurfaceConfig{
			Method:           v.GetString("surface.method"),
			EdgeWidth:        v.GetInt("surface.edge_width"),
			Percentile:       v.GetFloat64("surface.percentile"),
			DescentEdgeWidth: v.GetInt("surface.descent_edge_width"),
			LearningRate:     v.GetFloat64("surface.learning_rate"),
			MaxIterations:    v.GetInt("surface.max_iterations"),
			Tolerance:        v.GetFloat64("surface.tolerance"),
		},
		Volume: VolumeConfig{
			SignificanceThreshold: v.GetFloat64("volume.significance_threshold"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if _, err := excavation.ParseSurfaceMethod(cfg.Surface.Method); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SurfaceOptions returns the surface estimation options for c.
func (c *Config) SurfaceOptions() []excavation.SurfaceOption {
	// Load has already validated the method.
	method, _ := excavation.ParseSurfaceMethod(c.Surface.Method)
	return []excavation.SurfaceOption{
		excavation.WithMethod(method),
		excavation.WithEdgeWidth(c.Surface.EdgeWidth),
		excavation.WithPercentile(c.Surface.Percentile),
		excavation.WithDescentEdgeWidth(c.Surface.DescentEdgeWidth),
		excavation.WithLearningRate(c.Surface.LearningRate),
		excavation.WithMaxIterations(c.Surface.MaxIterations),
		excavation.WithTolerance(c.Surface.Tolerance),
	}
}

// StoreOptions returns the DEMStore options for c, reading from fsys.
func (c *Config) StoreOptions(fsys fs.FS, logger *zap.Logger) []excavation.DEMStoreOption {
	return []excavation.DEMStoreOption{
		excavation.WithFS(fsys),
		excavation.WithFileCacheSize(c.DEM.FileCacheSize),
		excavation.WithBlockCacheSize(c.DEM.BlockCacheSize),
		excavation.WithStoreLogger(logger),
	}
}

// AnalyzerOptions returns the Analyzer options for c.
func (c *Config) AnalyzerOptions(logger *zap.Logger, store *excavation.DEMStore) []excavation.AnalyzerOption {
	return []excavation.AnalyzerOption{
		excavation.WithLogger(logger),
		excavation.WithStore(store),
		excavation.WithSurfaceOptions(c.SurfaceOptions()...),
		excavation.WithVolumeOptions(
			excavation.WithSignificanceThreshold(c.Volume.SignificanceThreshold),
		),
	}
}
