package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bobinator/internal/app"
	"bobinator/internal/platform/config"
	"bobinator/internal/platform/logger"
	httptransport "bobinator/internal/transport/http"
	"bobinator/internal/verification/handler"
	"bobinator/internal/verification/workers/reverify"
	"bobinator/pkg/platform/middleware/request"
)

const poolStatsInterval = 15 * time.Second

// main wires dependencies, exposes the HTTP router, runs the scheduled
// re-verification and keeps the server lifecycle small.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing bobinator",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"reverify_interval", cfg.Reverify.Interval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		RequestMetrics: request.NewMetrics(),
		Gatherer:       prometheus.DefaultGatherer,
		Health:         a.Health,
		Verification:   handler.New(a.Verification, a.Search, a.Batch, log),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	worker, err := reverify.New(a.Batch,
		reverify.WithInterval(cfg.Reverify.Interval),
		reverify.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to create reverify worker", "error", err)
		os.Exit(1)
	}
	go worker.Start(ctx)

	if a.Redis != nil {
		go func() {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.Redis.RecordPoolStats()
				}
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
	case <-ctx.Done():
	}
	stop()

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
