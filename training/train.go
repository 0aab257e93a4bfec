package training

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/registry"
)

// ErrInsufficientData marks a training window with too few joined rows to
// produce a trustworthy model.
var ErrInsufficientData = errors.New("insufficient training data")

// Trainer fits a gradient-boosted model on a training matrix and records the
// result in the model registry.
type Trainer struct {
	registry *registry.Registry
	cfg      config.TrainingConfig
	logger   *zap.Logger
}

func NewTrainer(reg *registry.Registry, cfg config.TrainingConfig, logger *zap.Logger) *Trainer {
	return &Trainer{registry: reg, cfg: cfg, logger: logger}
}

// Train fits on the chronologically earlier part of the matrix, evaluates on
// the later part and stores the model under the next version.
func (t *Trainer) Train(ctx context.Context, matrix *models.FeatureMatrix) (*models.RegisteredModel, error) {
	if matrix.NumRows() < t.cfg.MinRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", ErrInsufficientData, matrix.NumRows(), t.cfg.MinRows)
	}

	split := int(float64(matrix.NumRows()) * (1 - t.cfg.TestFraction))
	if split <= 0 || split >= matrix.NumRows() {
		return nil, fmt.Errorf("%w: test fraction %.2f leaves no usable split", ErrInsufficientData, t.cfg.TestFraction)
	}
	train := matrix.Slice(0, split)
	test := matrix.Slice(split, matrix.NumRows())

	params := DefaultHyperparameters()
	if t.cfg.GridSearch {
		params = t.gridSearch(train)
	}

	model := Fit(train.Rows, train.Target, params)

	mse, r2 := evaluate(model, test.Rows, test.Target)
	t.logger.Info("model evaluated",
		zap.Int("train_rows", train.NumRows()),
		zap.Int("test_rows", test.NumRows()),
		zap.Float64("mse", mse),
		zap.Float64("r2", r2))

	payload, err := model.Marshal()
	if err != nil {
		return nil, fmt.Errorf("serialize model: %w", err)
	}

	entry := &models.RegisteredModel{
		Name:       t.cfg.ModelName,
		Params:     payload,
		TrainStart: matrix.Index[0].TS,
		TrainEnd:   matrix.Index[matrix.NumRows()-1].TS,
		MSE:        mse,
		R2:         r2,
	}
	if err := entry.SetColumns(matrix.Columns); err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}
	if err := t.registry.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("register model: %w", err)
	}
	t.logger.Info("model registered", zap.String("version", entry.VersionTag()))
	return entry, nil
}

// gridSearch picks hyperparameters by validation MSE on a chronological
// sub-split of the training rows.
func (t *Trainer) gridSearch(train *models.FeatureMatrix) Hyperparameters {
	split := int(float64(train.NumRows()) * 0.8)
	if split <= 0 || split >= train.NumRows() {
		t.logger.Warn("too few rows for hyperparameter search, using defaults",
			zap.Int("rows", train.NumRows()))
		return DefaultHyperparameters()
	}
	fitPart := train.Slice(0, split)
	valPart := train.Slice(split, train.NumRows())

	best := DefaultHyperparameters()
	bestMSE := 0.0
	first := true
	for _, nEstimators := range []int{100, 200} {
		for _, depth := range []int{3, 5, 7} {
			for _, rate := range []float64{0.05, 0.1} {
				params := DefaultHyperparameters()
				params.NEstimators = nEstimators
				params.MaxDepth = depth
				params.LearningRate = rate

				model := Fit(fitPart.Rows, fitPart.Target, params)
				mse, _ := evaluate(model, valPart.Rows, valPart.Target)
				if first || mse < bestMSE {
					best, bestMSE, first = params, mse, false
				}
			}
		}
	}
	t.logger.Info("hyperparameter search finished",
		zap.Int("n_estimators", best.NEstimators),
		zap.Int("max_depth", best.MaxDepth),
		zap.Float64("learning_rate", best.LearningRate),
		zap.Float64("validation_mse", bestMSE))
	return best
}

func evaluate(model *GBRT, rows [][]float64, actual []float64) (mse, r2 float64) {
	predicted := model.Predict(rows)
	for i := range actual {
		diff := predicted[i] - actual[i]
		mse += diff * diff
	}
	mse /= float64(len(actual))
	r2 = stat.RSquaredFrom(predicted, actual, nil)
	return mse, r2
}
