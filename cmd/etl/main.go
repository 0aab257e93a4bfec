package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/cache"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/etl"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/sources"
)

func main() {
	modeFlag := flag.String("mode", "daily", "pipeline mode: backfill, daily or forecast")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := etl.ParseMode(*modeFlag)
	if err != nil {
		logger.Fatal("invalid mode", zap.Error(err))
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("db pool init failed", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}
	logger.Info("db connected", zap.String("host", cfg.Database.Host))

	store := featurestore.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema init failed", zap.Error(err))
	}

	cacheSvc, err := cache.NewService(cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		cacheSvc = cache.Disabled(logger)
	}
	defer cacheSvc.Close()

	go serveHTTP(cfg.Metrics.Addr, logger)

	grid := sources.NewEntsoeClient(cfg.Entsoe, cacheSvc, logger)
	weather := sources.NewWeatherClient(cfg.Weather, cacheSvc, logger)
	pipeline := etl.NewPipeline(grid, weather, store, cfg.Pipeline, logger)

	logger.Info("pipeline starting", zap.String("mode", mode.String()))
	if _, err := pipeline.Run(ctx, mode); err != nil {
		logger.Fatal("pipeline run failed", zap.String("mode", mode.String()), zap.Error(err))
	}
	logger.Info("pipeline finished", zap.String("mode", mode.String()))
}

func serveHTTP(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
