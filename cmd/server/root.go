package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"lifedash/internal/api"
	"lifedash/internal/chart"
	"lifedash/internal/config"
	"lifedash/internal/dashboard"
	"lifedash/internal/engine"
	"lifedash/internal/logger"
	"lifedash/internal/metrics"
	"lifedash/internal/schedule"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "lifedash",
	Short: "Township life expectancy dashboard",
	Long: `lifedash renders life expectancy by township, sex and year as
choropleth maps and top/bottom 10 bar charts, with a year slider and
playback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, the config file and the logger shared by every command.
func setup() (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return nil, nil, err
	}
	log := logger.Setup()
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func loadDataset(ctx context.Context, cfg *config.Config) (*engine.Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Data.FetchTimeout)
	defer cancel()
	return engine.LoadDataset(ctx, cfg.Data.Geometry, cfg.Data.Statistics, &http.Client{})
}

// buildApp wires a loaded dataset into frames, charts and a controller.
// The controller is not initialised; callers subscribe first, then Init.
func buildApp(cfg *config.Config, ds *engine.Dataset, clock schedule.Clock, log *slog.Logger) (*api.App, error) {
	dataMin, dataMax, ok := ds.Store.YearRange()
	if !ok {
		return nil, &engine.DataLoadError{Resource: cfg.Data.Statistics, Err: errors.New("no statistics records")}
	}
	minYear, maxYear, initial := cfg.Slider.Resolve(dataMin, dataMax)

	mounts := dashboard.DefaultMounts()
	for k, v := range cfg.Layout.Mounts {
		mounts[k] = v
	}
	layout, err := dashboard.ResolveLayout(mounts)
	if err != nil {
		return nil, err
	}

	frames := engine.NewFrameCache(ds.Store)
	frames.Precompute(minYear, maxYear)

	surface := chart.NewSurface()
	ctl, err := dashboard.New(frames, surface, schedule.New(clock), dashboard.Options{
		MinYear:     minYear,
		MaxYear:     maxYear,
		InitialYear: initial,
		Interval:    cfg.Playback.Interval,
		Geometry:    cfg.Data.GeometryName,
		Layout:      layout,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	metrics.DatasetRecords.Set(float64(ds.Store.Len()))

	return &api.App{
		Controller:   ctl,
		Dataset:      ds,
		Frames:       frames,
		Surface:      surface,
		GeometryName: cfg.Data.GeometryName,
		ThumbSize:    cfg.Slider.ThumbSize,
	}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("lifedash", version)
	},
}
