package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/twpayne/go-excavation"
	"github.com/twpayne/go-excavation/internal/config"
	"github.com/twpayne/go-excavation/internal/logger"
)

func run() error {
	configPath := flag.String("config", "", "path to config file")
	demPath := flag.String("dem-path", "", "path to DEM data (default from config)")
	method := flag.String("method", "", "surface method (edge_percentile, gradient_descent, or manual_reference)")
	lon := flag.Float64("lon", math.NaN(), "reference point longitude")
	lat := flag.Float64("lat", math.NaN(), "reference point latitude")
	threshold := flag.Float64("threshold", math.NaN(), "significance threshold in meters")
	terrain := flag.String("terrain", "", "write terrain model JSON to file")
	projData := flag.String("proj-data", os.Getenv("PROJ_DATA"), "path to PROJ data")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("syntax: excavation-analyze [flags] filename")
	}
	filename := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *demPath != "" {
		cfg.DEM.Path = *demPath
	}
	if *method != "" {
		if _, err := excavation.ParseSurfaceMethod(*method); err != nil {
			return err
		}
		cfg.Surface.Method = *method
	}
	if !math.IsNaN(*threshold) {
		cfg.Volume.SignificanceThreshold = *threshold
	}
	if *projData != "" {
		if err := os.Setenv("PROJ_DATA", *projData); err != nil {
			return err
		}
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	store, err := excavation.NewDEMStore(cfg.StoreOptions(os.DirFS(cfg.DEM.Path), log)...)
	if err != nil {
		return err
	}
	defer store.Close()

	var surfaceOptions []excavation.SurfaceOption
	if !math.IsNaN(*lon) && !math.IsNaN(*lat) {
		surfaceOptions = append(surfaceOptions, excavation.WithReferencePoint(excavation.LonLat{Lon: *lon, Lat: *lat}, nil))
	}

	ctx := context.Background()
	analyzer := excavation.NewAnalyzer(cfg.AnalyzerOptions(log, store)...)
	report := analyzer.AnalyzeFile(ctx, filename, surfaceOptions...)

	if *terrain != "" {
		if err := writeTerrain(ctx, store, filename, *terrain); err != nil {
			log.Warn("terrain", zap.String("filename", filename), zap.Error(err))
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func writeTerrain(ctx context.Context, store *excavation.DEMStore, filename, terrainFilename string) error {
	grid, err := store.Load(ctx, filename)
	if err != nil {
		return err
	}
	data, err := json.Marshal(excavation.NewTerrainModel(grid))
	if err != nil {
		return err
	}
	return os.WriteFile(terrainFilename, data, 0o666)
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
