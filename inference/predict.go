package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/cache"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/registry"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/training"
)

// ErrFeatureMismatch marks an inference matrix whose columns differ from the
// columns the model was trained on. Nothing is written when this is raised.
var ErrFeatureMismatch = errors.New("feature columns do not match model")

// predictionsChannel is the Redis pub/sub channel downstream consumers
// subscribe to.
const predictionsChannel = "crossflow:predictions"

var (
	predictionsProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_predictions_produced_total",
		Help: "Predicted (pair, hour) values produced",
	})
	predictionRunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_prediction_runs_failed_total",
		Help: "Prediction runs that ended in an error",
	})
	predictionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_predictions_published_total",
		Help: "Prediction batches published to Redis",
	})
)

// Engine turns an inference matrix into stored, exported and published
// predictions using the latest registered model.
type Engine struct {
	registry  *registry.Registry
	store     featurestore.Store
	cache     *cache.Service
	exporter  *Exporter
	home      string
	modelName string
	version   int
	logger    *zap.Logger
}

func NewEngine(reg *registry.Registry, store featurestore.Store, cacheSvc *cache.Service, exporter *Exporter, home, modelName string, version int, logger *zap.Logger) *Engine {
	return &Engine{
		registry:  reg,
		store:     store,
		cache:     cacheSvc,
		exporter:  exporter,
		home:      home,
		modelName: modelName,
		version:   version,
		logger:    logger,
	}
}

// Run predicts every row of matrix, persists the predictions feature group,
// exports the run's CSV and publishes the batch. Store write and CSV export
// either both happen or neither does; publishing is best effort.
func (e *Engine) Run(ctx context.Context, matrix *models.FeatureMatrix) ([]models.PredictionRecord, error) {
	predictions, err := e.predict(ctx, matrix)
	if err != nil {
		predictionRunsFailed.Inc()
		return nil, err
	}
	if len(predictions) == 0 {
		e.logger.Warn("no rows to predict")
		return nil, nil
	}

	group := predictionGroup(predictions, e.version)
	if err := e.store.Write(ctx, group); err != nil {
		predictionRunsFailed.Inc()
		return nil, fmt.Errorf("store predictions: %w", err)
	}
	path, err := e.exporter.Export(predictions[0].TS, predictions)
	if err != nil {
		predictionRunsFailed.Inc()
		return nil, fmt.Errorf("export predictions: %w", err)
	}
	predictionsProduced.Add(float64(len(predictions)))
	e.logger.Info("predictions written",
		zap.Int("rows", len(predictions)),
		zap.String("csv", path))

	if err := e.cache.Publish(ctx, predictionsChannel, predictions); err != nil {
		e.logger.Warn("publish failed", zap.Error(err))
	} else if e.cache.Available() {
		predictionsPublished.Inc()
	}
	return predictions, nil
}

func (e *Engine) predict(ctx context.Context, matrix *models.FeatureMatrix) ([]models.PredictionRecord, error) {
	registered, err := e.registry.Latest(ctx, e.modelName)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", e.modelName, err)
	}
	trained, err := registered.Columns()
	if err != nil {
		return nil, fmt.Errorf("decode model columns: %w", err)
	}
	if err := checkColumns(trained, matrix.Columns); err != nil {
		return nil, err
	}
	model, err := training.UnmarshalModel(registered.Params)
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %w", registered.VersionTag(), err)
	}

	values := model.Predict(matrix.Rows)
	predictions := make([]models.PredictionRecord, 0, len(values))
	for i, value := range values {
		// A flow magnitude cannot be negative; the model occasionally
		// extrapolates slightly below zero near calm hours.
		if value < 0 {
			value = 0
		}
		key := matrix.Index[i]
		predictions = append(predictions, models.PredictionRecord{
			TS:           key.TS,
			CountryFrom:  key.From,
			CountryTo:    key.To,
			Direction:    models.FlowDirection(key.From, e.home),
			EnergySent:   value,
			ModelVersion: registered.VersionTag(),
		})
	}
	return predictions, nil
}

func checkColumns(trained, got []string) error {
	if len(trained) != len(got) {
		return fmt.Errorf("%w: model has %d columns, matrix has %d", ErrFeatureMismatch, len(trained), len(got))
	}
	for i := range trained {
		if trained[i] != got[i] {
			return fmt.Errorf("%w: column %d is %q, model expects %q", ErrFeatureMismatch, i, got[i], trained[i])
		}
	}
	return nil
}

func predictionGroup(predictions []models.PredictionRecord, version int) *models.FeatureGroup {
	group := &models.FeatureGroup{Name: models.GroupPredictions, Version: version}
	for _, p := range predictions {
		group.Records = append(group.Records, models.TimeSeriesRecord{
			EntityID: models.PairID(p.CountryFrom, p.CountryTo),
			TS:       p.TS,
			Metric:   models.MetricEnergySent,
			Value:    p.EnergySent,
		})
	}
	return group
}
