package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/cache"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/etl"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/inference"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/registry"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/sources"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/training"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	store := featurestore.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema init failed", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("registry db open failed", zap.Error(err))
	}
	reg, err := registry.New(db, logger)
	if err != nil {
		logger.Fatal("registry init failed", zap.Error(err))
	}

	cacheSvc, err := cache.NewService(cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, caching and publishing disabled", zap.Error(err))
		cacheSvc = cache.Disabled(logger)
	}
	defer cacheSvc.Close()

	go serveHTTP(cfg.Metrics.Addr, logger)

	// Refresh forecast features first: the groups just produced feed the
	// inference matrix directly.
	grid := sources.NewEntsoeClient(cfg.Entsoe, cacheSvc, logger)
	weather := sources.NewWeatherClient(cfg.Weather, cacheSvc, logger)
	pipeline := etl.NewPipeline(grid, weather, store, cfg.Pipeline, logger)

	groups, err := pipeline.Run(ctx, etl.ModeForecast)
	if err != nil {
		logger.Fatal("forecast pipeline failed", zap.Error(err))
	}
	window, err := pipeline.Window(etl.ModeForecast)
	if err != nil {
		logger.Fatal("forecast window failed", zap.Error(err))
	}

	asm := training.NewAssembler(store, cfg.Pipeline.HomeZone, cfg.Training.FeatureMode, logger)
	matrix, err := asm.InferenceMatrix(groups, window)
	if err != nil {
		logger.Fatal("inference matrix assembly failed", zap.Error(err))
	}

	exporter := inference.NewExporter(cfg.Export.PredictionsDir)
	engine := inference.NewEngine(reg, store, cacheSvc, exporter,
		cfg.Pipeline.HomeZone, cfg.Training.ModelName, cfg.Pipeline.GroupVersion, logger)
	predictions, err := engine.Run(ctx, matrix)
	if err != nil {
		logger.Fatal("prediction run failed", zap.Error(err))
	}
	logger.Info("prediction run finished", zap.Int("rows", len(predictions)))

	// Score yesterday now that its realized flows have landed.
	monitor := inference.NewMonitor(store, cfg.Pipeline.HomeZone, cfg.Export.MonitoringPath, logger)
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if _, err := monitor.Score(ctx, yesterday); err != nil {
		logger.Warn("daily scoring failed", zap.Error(err))
	}
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
