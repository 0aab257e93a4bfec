package models

import "time"

// Canonical feature group names. ETL stages are the only writers of these
// groups; training and inference only read them.
const (
	GroupWeather          = "weather"
	GroupPricesGeneration = "prices_generation"
	GroupPhysicalFlow     = "physical_flow"
	GroupPredictions      = "predictions"
)

// Metric names shared between the adapters, the ETL stage and the store.
const (
	MetricEnergySent      = "energy_sent"
	MetricEnergyPrice     = "energy_price"
	MetricTotalGeneration = "total_generation"

	MetricSolar        = "solar"
	MetricWindOnshore  = "wind_onshore"
	MetricWindOffshore = "wind_offshore"

	MetricTemperature2M   = "temperature_2m"
	MetricCloudcover      = "cloudcover"
	MetricWindSpeed10M    = "wind_speed_10m"
	MetricWindSpeed100M   = "wind_speed_100m"
	MetricDirectRadiation = "direct_radiation"
	MetricPrecipitation   = "precipitation"
)

// GenerationTypeMetrics are the per-production-type generation series the
// grid operator publishes, normalized to metric names. A zone that lacks a
// production type never reports it, so readers treat an absent series as zero
// production.
var GenerationTypeMetrics = []string{
	"biomass",
	"fossil_brown_coal_lignite",
	"fossil_coal_derived_gas",
	"fossil_gas",
	"fossil_hard_coal",
	"fossil_oil",
	"geothermal",
	"hydro_pumped_storage",
	"hydro_run_of_river_and_poundage",
	"hydro_water_reservoir",
	"nuclear",
	"other",
	"other_renewable",
	MetricSolar,
	MetricWindOffshore,
	MetricWindOnshore,
}

// TimeSeriesRecord is a single observation. Within a feature group the triple
// (EntityID, TS, Metric) is unique; corrections are upserts on the same key.
type TimeSeriesRecord struct {
	EntityID string    `json:"entity_id"`
	TS       time.Time `json:"ts"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
}

// RecordKey identifies a record within a feature group.
type RecordKey struct {
	EntityID string
	TS       int64
	Metric   string
}

func (r TimeSeriesRecord) Key() RecordKey {
	return RecordKey{EntityID: r.EntityID, TS: r.TS.UTC().Unix(), Metric: r.Metric}
}

// FeatureGroup is a named, versioned collection of records sharing a schema.
type FeatureGroup struct {
	Name    string
	Version int
	Records []TimeSeriesRecord
}

// TimeRange is a half-open [Start, End) window in UTC.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (t TimeRange) Hours() int {
	return int(t.End.Sub(t.Start) / time.Hour)
}

func (t TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(t.Start) && ts.Before(t.End)
}
