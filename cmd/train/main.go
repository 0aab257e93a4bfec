package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/registry"
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

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("registry db open failed", zap.Error(err))
	}
	reg, err := registry.New(db, logger)
	if err != nil {
		logger.Fatal("registry init failed", zap.Error(err))
	}

	start, err := cfg.Pipeline.BackfillStartTime()
	if err != nil {
		logger.Fatal("invalid backfill start", zap.Error(err))
	}
	window := models.TimeRange{Start: start, End: time.Now().UTC().Truncate(time.Hour)}

	store := featurestore.NewPostgresStore(pool, logger)
	asm := training.NewAssembler(store, cfg.Pipeline.HomeZone, cfg.Training.FeatureMode, logger)
	matrix, err := asm.TrainingMatrix(ctx, window)
	if err != nil {
		logger.Fatal("training matrix assembly failed", zap.Error(err))
	}
	logger.Info("training matrix assembled",
		zap.Int("rows", matrix.NumRows()),
		zap.Int("columns", len(matrix.Columns)))

	trainer := training.NewTrainer(reg, cfg.Training, logger)
	entry, err := trainer.Train(ctx, matrix)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
	logger.Info("training finished",
		zap.String("model", entry.VersionTag()),
		zap.Float64("mse", entry.MSE),
		zap.Float64("r2", entry.R2))
}
