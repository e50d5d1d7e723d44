package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-causality/internal/api"
	"github.com/miradorstack/mirador-causality/internal/config"
	"github.com/miradorstack/mirador-causality/internal/engine"
	"github.com/miradorstack/mirador-causality/internal/metrics"
	"github.com/miradorstack/mirador-causality/internal/services"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the causality gRPC API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(parent context.Context, root *rootOptions) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", root.configPath), slog.Any("error", err))
		return err
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-causality",
		slog.String("address", cfg.Server.Address),
		slog.String("repository", cfg.Repository.Driver))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open cause repository", slog.Any("error", err))
		return err
	}
	defer store.Close()

	pipeline := newPipeline(cfg, store, logger)
	pager := engine.NewPager(logger, store, cfg.Pager.PageSize, cfg.Pager.MaxPageSize)
	explorer := engine.NewExplorer(logger, store, pipeline)
	causalityService := services.NewCausalityService(logger, pipeline, pager, explorer)

	server, err := api.NewServer(cfg.Server, causalityService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return err
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-causality stopped", slog.Duration("p95_aggregation", causalityService.LatencyP95()))
	return nil
}
