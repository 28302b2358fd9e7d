package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"terrane/internal/dispatch"
	"terrane/internal/engine"
	"terrane/internal/platform/config"
	"terrane/internal/platform/httpserver"
	"terrane/internal/platform/logger"
	"terrane/internal/platform/metrics"
	"terrane/internal/storage/postgres"
	httptransport "terrane/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Domain behavior lives in internal/engine.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	log := logger.New(level)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reg, err := demoRegistry()
	if err != nil {
		log.Error("build registry", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	dispatcher := dispatch.New(log, m, cfg.DispatchWorkers, cfg.DispatchQueue)
	defer dispatcher.Close()

	eng := engine.New(engine.Config{
		Registry:   reg,
		Store:      postgres.New(db),
		Hooks:      demoHooks(log),
		Dispatcher: dispatcher,
		Logger:     log,
		Metrics:    m,
	})

	handler := httptransport.NewHandler(eng, log)
	srv := httpserver.New(cfg.Addr, handler.Router())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.MetricsAddr, metricsMux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting terrane", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
