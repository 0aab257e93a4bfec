package etl

import (
	"errors"
	"fmt"
	"math"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// ErrSchemaViolation signals upstream API contract drift: required metrics
// missing from a transformed group, values out of range, or unknown entities.
// Fatal for the run.
var ErrSchemaViolation = errors.New("schema violation")

// AggPolicy selects how sub-hourly observations collapse into an hourly value.
type AggPolicy int

const (
	// AggMean averages all observations within the hour (weather).
	AggMean AggPolicy = iota
	// AggLast keeps the most recent observation within the hour (prices,
	// market data).
	AggLast
)

type MetricSpec struct {
	Agg AggPolicy
	Min float64
	Max float64
}

// Schema is the expected shape of one feature group: the metrics it must
// carry, per-metric aggregation and value bounds, and which entities are
// admissible.
type Schema struct {
	Group string
	// Required metrics; transform fails if any is absent from the output.
	Required []string
	// Specs for known metrics. Metrics not listed fall back to Default.
	Specs   map[string]MetricSpec
	Default MetricSpec
	// Entity reports whether an entity id belongs in this group. Nil admits
	// any entity.
	Entity func(string) bool
}

func (s Schema) Spec(metric string) MetricSpec {
	if spec, ok := s.Specs[metric]; ok {
		return spec
	}
	return s.Default
}

// Validate checks transformed records against the schema contract.
func (s Schema) Validate(records []models.TimeSeriesRecord) error {
	seen := make(map[string]bool)
	for _, r := range records {
		seen[r.Metric] = true

		if s.Entity != nil && !s.Entity(r.EntityID) {
			return fmt.Errorf("group %s: unknown entity %q: %w", s.Group, r.EntityID, ErrSchemaViolation)
		}
		spec := s.Spec(r.Metric)
		if r.Value < spec.Min || r.Value > spec.Max {
			return fmt.Errorf("group %s: %s=%v for %s at %s outside [%v, %v]: %w",
				s.Group, r.Metric, r.Value, r.EntityID, r.TS.Format("2006-01-02T15:04"),
				spec.Min, spec.Max, ErrSchemaViolation)
		}
	}
	for _, metric := range s.Required {
		if !seen[metric] {
			return fmt.Errorf("group %s: required metric %q absent: %w", s.Group, metric, ErrSchemaViolation)
		}
	}
	return nil
}

var weatherMetrics = []string{
	models.MetricTemperature2M,
	models.MetricCloudcover,
	models.MetricWindSpeed10M,
	models.MetricWindSpeed100M,
	models.MetricDirectRadiation,
	models.MetricPrecipitation,
}

// WeatherSchema mirrors the validation suite of the weather group: zone
// entities only, magnitudes non-negative, plausible temperature range.
func WeatherSchema() Schema {
	nonNegative := MetricSpec{Agg: AggMean, Min: 0, Max: math.Inf(1)}
	return Schema{
		Group:    models.GroupWeather,
		Required: weatherMetrics,
		Specs: map[string]MetricSpec{
			models.MetricTemperature2M: {Agg: AggMean, Min: -50, Max: 50},
		},
		Default: nonNegative,
		Entity:  models.ValidZone,
	}
}

// PricesGenerationSchema covers day-ahead prices plus generation per
// production type. Prices may go negative; generation may not.
func PricesGenerationSchema() Schema {
	return Schema{
		Group:    models.GroupPricesGeneration,
		Required: []string{models.MetricEnergyPrice, models.MetricTotalGeneration},
		Specs: map[string]MetricSpec{
			models.MetricEnergyPrice: {Agg: AggLast, Min: math.Inf(-1), Max: math.Inf(1)},
		},
		Default: MetricSpec{Agg: AggLast, Min: 0, Max: math.Inf(1)},
		Entity:  models.ValidZone,
	}
}

// FlowSchema covers hourly physical cross-border flows between directed
// border pairs.
func FlowSchema() Schema {
	return Schema{
		Group:    models.GroupPhysicalFlow,
		Required: []string{models.MetricEnergySent},
		Default:  MetricSpec{Agg: AggMean, Min: 0, Max: math.Inf(1)},
		Entity: func(pair string) bool {
			from, to, err := models.SplitPair(pair)
			if err != nil {
				return false
			}
			return models.ValidZone(from) && models.ValidZone(to)
		},
	}
}
