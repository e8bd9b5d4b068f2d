package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lifedash/internal/api"
	"lifedash/internal/schedule"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	Long: `Start the HTTP server immediately and load the datasets in the
background. /api answers 503 until loading completes; a load failure stops
the server with a non-zero exit.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(log)
	go hub.Run(ctx)

	h := api.NewHandler(hub, log)
	e := api.NewServer(log)
	h.RegisterRoutes(e, cfg.Server.RateLimit)

	errCh := make(chan error, 2)
	go func() {
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("server_started", "addr", cfg.Server.Addr)

	ready := make(chan *api.App, 1)
	go func() {
		t0 := time.Now()
		ds, err := loadDataset(ctx, cfg)
		if err != nil {
			errCh <- err
			return
		}
		a, err := buildApp(cfg, ds, schedule.RealClock{}, log)
		if err != nil {
			errCh <- err
			return
		}
		a.Surface.Subscribe(hub.PublishEvent)
		a.Controller.Subscribe(hub.PublishState)
		if err := a.Controller.Init(); err != nil {
			log.Warn("initial_render_incomplete", "err", err)
		}
		h.SetApp(a)
		ready <- a
		log.Info("dashboard_ready", "duration_ms", time.Since(t0).Milliseconds(), "state", a.Controller.State())
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err = <-errCh:
		log.Error("server_failed", "err", err)
	}

	select {
	case a := <-ready:
		a.Controller.Close()
	default:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(sctx); serr != nil {
		log.Error("shutdown_error", "err", serr)
	}
	return err
}
