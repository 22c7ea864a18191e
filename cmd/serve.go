package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"raffle/internal/config"
	"raffle/internal/handlers"
	"raffle/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveRun(ctx context.Context, cfg *config.Config) error {
	defer commonRun(cfg, true).Close()

	var reg prometheus.Registerer
	if cfg.MetricsEnabled {
		reg = prometheus.DefaultRegisterer
	}
	svc, store, err := openServices(cfg, reg)
	if err != nil {
		return err
	}
	defer store.Close()

	httpHandler := handlers.NewHTTPHandler(svc)

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if cfg.MetricsEnabled {
		metrics.RegisterRoutes(r)
	}
	api := r.Group("/")
	api.Use(httpHandler.ActorMiddleware())
	httpHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on http://%s", cfg.ListenAddr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), mustConfig(cmd))
		},
	}
}
