package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/digitechhorizons/portal/app"
	"github.com/digitechhorizons/portal/config"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/routes"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests and
// tears down the dependencies
func run(ctx context.Context) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}

	logger.Info("initializing portal",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.Server.Address()),
		zap.Bool("direct_database", cfg.Database != nil))

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.Server.TLS.Enabled))
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server gracefully")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	if err := deps.Close(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	logger.Info("server stopped")
	return serveErr
}
