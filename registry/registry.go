// Package registry persists trained models and their evaluation metrics.
// Models are append-only: a retrain saves the next version, earlier versions
// stay untouched.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// ErrNotFound means no model is registered under the requested name.
var ErrNotFound = errors.New("model not found")

type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) (*Registry, error) {
	if err := db.AutoMigrate(&models.RegisteredModel{}); err != nil {
		return nil, fmt.Errorf("model registry migrate: %w", err)
	}
	return &Registry{db: db, logger: logger}, nil
}

// Save stores the model under the next free version for its name.
func (r *Registry) Save(ctx context.Context, model *models.RegisteredModel) error {
	var latest int
	err := r.db.WithContext(ctx).
		Model(&models.RegisteredModel{}).
		Where("name = ?", model.Name).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error
	if err != nil {
		return fmt.Errorf("registry version lookup: %w", err)
	}

	model.Version = latest + 1
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("registry save: %w", err)
	}

	r.logger.Info("model registered",
		zap.String("name", model.Name),
		zap.Int("version", model.Version),
		zap.Float64("mse", model.MSE),
		zap.Float64("r2", model.R2))
	return nil
}

// Latest returns the highest registered version of a model.
func (r *Registry) Latest(ctx context.Context, name string) (*models.RegisteredModel, error) {
	var model models.RegisteredModel
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Order("version DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("registry latest %q: %w", name, err)
	}
	return &model, nil
}
