package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/config"
	httphandler "github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/http"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/log"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/metrics"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/portable"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin import/export service",
		Long: `Serve the admin transfer page and the /admin/yaml import and export endpoint.

Environment:
` + config.Usage(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from PORTABLE_HTTP_ADDR)")

	return cmd
}

func runServe(addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	logger := log.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close backends")
		}
	}()

	router := httphandler.NewRouter(cfg, httphandler.Deps{
		Importer: portable.NewImporter(a.repo, a.store, a.publisher, logger),
		Exporter: portable.NewExporter(a.repo, a.store, logger),
		Storage:  a.store,
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting portable service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed to start")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	logger.Info().Msg("Server exited")
	return nil
}
