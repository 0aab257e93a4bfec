package training

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// Feature modes select which generation series enter the matrix.
const (
	// FeatureModeTotal uses only the summed generation per zone.
	FeatureModeTotal = "total"
	// FeatureModeAll adds one column per production type per zone.
	FeatureModeAll = "all"
)

// baseMetrics are the per-zone series every matrix carries regardless of
// feature mode. The list is fixed so the column set stays identical between
// training and inference runs.
var baseMetrics = []string{
	models.MetricTemperature2M,
	models.MetricCloudcover,
	models.MetricWindSpeed10M,
	models.MetricWindSpeed100M,
	models.MetricDirectRadiation,
	models.MetricPrecipitation,
	models.MetricEnergyPrice,
	models.MetricTotalGeneration,
}

func featureMetricsFor(mode string) []string {
	if mode == FeatureModeAll {
		return append(append([]string{}, baseMetrics...), models.GenerationTypeMetrics...)
	}
	return baseMetrics
}

// FeatureColumns is the canonical column order of a feature matrix in the
// given mode: one-hot encoded sending and receiving zones, then per-zone
// features.
func FeatureColumns(mode string) []string {
	metrics := featureMetricsFor(mode)
	columns := make([]string, 0, 2*len(models.Zones)+len(models.Zones)*len(metrics))
	for _, zone := range models.Zones {
		columns = append(columns, "from_"+zone)
	}
	for _, zone := range models.Zones {
		columns = append(columns, "to_"+zone)
	}
	for _, zone := range models.Zones {
		for _, metric := range metrics {
			columns = append(columns, pivotColumn(metric, zone))
		}
	}
	return columns
}

func pivotColumn(metric, zone string) string {
	return metric + "_" + strings.ToLower(zone)
}

// Assembler builds feature matrices by joining flow targets with pivoted
// per-zone weather, price and generation series on the hour.
type Assembler struct {
	store   featurestore.Store
	home    string
	columns []string
	// optional columns default to zero when a zone has no value for the
	// hour; a missing required column drops the row instead.
	optional map[string]bool
	logger   *zap.Logger
}

func NewAssembler(store featurestore.Store, home, mode string, logger *zap.Logger) *Assembler {
	optional := make(map[string]bool)
	if mode == FeatureModeAll {
		// Per-type generation is sparse: zones simply never report types
		// they do not produce.
		for _, zone := range models.Zones {
			for _, metric := range models.GenerationTypeMetrics {
				optional[pivotColumn(metric, zone)] = true
			}
		}
	}
	return &Assembler{
		store:    store,
		home:     home,
		columns:  FeatureColumns(mode),
		optional: optional,
		logger:   logger,
	}
}

// TrainingMatrix reads realized flows and features for the window from the
// store. Rows are ordered chronologically; rows with incomplete features are
// dropped.
func (a *Assembler) TrainingMatrix(ctx context.Context, window models.TimeRange) (*models.FeatureMatrix, error) {
	flows, err := a.store.Read(ctx, models.GroupPhysicalFlow, nil, window)
	if err != nil {
		return nil, fmt.Errorf("read flows: %w", err)
	}
	weather, err := a.store.Read(ctx, models.GroupWeather, nil, window)
	if err != nil {
		return nil, fmt.Errorf("read weather: %w", err)
	}
	prices, err := a.store.Read(ctx, models.GroupPricesGeneration, nil, window)
	if err != nil {
		return nil, fmt.Errorf("read prices/generation: %w", err)
	}

	features := pivot(append(weather, prices...))
	matrix := &models.FeatureMatrix{Columns: a.columns}

	dropped := 0
	for _, flow := range flows {
		if flow.Metric != models.MetricEnergySent {
			continue
		}
		from, to, err := models.SplitPair(flow.EntityID)
		if err != nil {
			continue
		}
		row, ok := a.buildRow(from, to, features[flow.TS.UTC().Unix()])
		if !ok {
			dropped++
			continue
		}
		matrix.Rows = append(matrix.Rows, row)
		matrix.Index = append(matrix.Index, models.RowKey{TS: flow.TS.UTC(), From: from, To: to})
		matrix.Target = append(matrix.Target, flow.Value)
	}

	if dropped > 0 {
		a.logger.Info("rows dropped for incomplete features",
			zap.Int("dropped", dropped),
			zap.Int("kept", matrix.NumRows()))
	}
	return matrix, nil
}

// InferenceMatrix builds the forward-looking matrix from groups the forecast
// ETL just produced, one row per directed border pair per hour. It works on
// the in-memory groups rather than re-reading the store, which is not
// guaranteed to serve a freshly written group back yet.
func (a *Assembler) InferenceMatrix(groups []*models.FeatureGroup, window models.TimeRange) (*models.FeatureMatrix, error) {
	var records []models.TimeSeriesRecord
	for _, g := range groups {
		if g.Name == models.GroupWeather || g.Name == models.GroupPricesGeneration {
			records = append(records, g.Records...)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no forecast feature groups supplied")
	}

	features := pivot(records)
	pairs := models.BorderPairs(a.home)
	matrix := &models.FeatureMatrix{Columns: a.columns}

	timestamps := make([]int64, 0, len(features))
	for ts := range features {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	for _, unix := range timestamps {
		ts := time.Unix(unix, 0).UTC()
		if !window.Contains(ts) {
			continue
		}
		for _, pair := range pairs {
			from, to, err := models.SplitPair(pair)
			if err != nil {
				continue
			}
			row, ok := a.buildRow(from, to, features[unix])
			if !ok {
				continue
			}
			matrix.Rows = append(matrix.Rows, row)
			matrix.Index = append(matrix.Index, models.RowKey{TS: ts, From: from, To: to})
		}
	}
	return matrix, nil
}

// pivot reshapes zone-keyed records into per-hour feature vectors keyed by
// unix timestamp, column-named metric_zone.
func pivot(records []models.TimeSeriesRecord) map[int64]map[string]float64 {
	out := make(map[int64]map[string]float64)
	for _, r := range records {
		unix := r.TS.UTC().Unix()
		cols, ok := out[unix]
		if !ok {
			cols = make(map[string]float64)
			out[unix] = cols
		}
		cols[pivotColumn(r.Metric, r.EntityID)] = r.Value
	}
	return out
}

// buildRow assembles one row in canonical column order. Reports false when
// any required non-one-hot column has no value for the hour; optional
// columns default to zero.
func (a *Assembler) buildRow(from, to string, features map[string]float64) ([]float64, bool) {
	if features == nil {
		return nil, false
	}
	row := make([]float64, len(a.columns))
	for i, col := range a.columns {
		switch {
		case strings.HasPrefix(col, "from_"):
			if col == "from_"+from {
				row[i] = 1
			}
		case strings.HasPrefix(col, "to_"):
			if col == "to_"+to {
				row[i] = 1
			}
		default:
			value, ok := features[col]
			if !ok {
				if a.optional[col] {
					continue
				}
				return nil, false
			}
			row[i] = value
		}
	}
	return row, true
}
