package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// Mode selects the time window and freshness policy of a pipeline run. The
// three variants share one code path.
type Mode int

const (
	// ModeBackfill ingests the full historical range once.
	ModeBackfill Mode = iota
	// ModeDaily upserts a rolling window of the last few days.
	ModeDaily
	// ModeForecast ingests the forward-looking window from forecast
	// endpoints, overwritten on every run.
	ModeForecast
)

func (m Mode) String() string {
	switch m {
	case ModeBackfill:
		return "backfill"
	case ModeDaily:
		return "daily"
	case ModeForecast:
		return "forecast"
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "backfill":
		return ModeBackfill, nil
	case "daily":
		return ModeDaily, nil
	case "forecast":
		return ModeForecast, nil
	}
	return 0, fmt.Errorf("unknown pipeline mode %q", s)
}

// GridSource is the market/grid data provider contract the pipeline extracts
// from.
type GridSource interface {
	CrossBorderFlows(ctx context.Context, home string, window models.TimeRange, export bool) ([]models.TimeSeriesRecord, error)
	DayAheadPrices(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
	Generation(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
	GenerationForecast(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
}

// WeatherSource is the weather provider contract.
type WeatherSource interface {
	Archive(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
	Forecast(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
}

var (
	recordsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_etl_records_extracted_total",
		Help: "Total raw records pulled from external sources.",
	})
	recordsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_etl_records_loaded_total",
		Help: "Total canonical records written to the feature store.",
	})
	runsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossflow_etl_runs_failed_total",
		Help: "Total ETL runs that aborted with an error.",
	})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossflow_etl_run_duration_seconds",
		Help:    "Duration of a full ETL run.",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	})
)

// Pipeline is the parameterized extract-transform-load stage.
type Pipeline struct {
	grid    GridSource
	weather WeatherSource
	store   featurestore.Store
	cfg     config.PipelineConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewPipeline(grid GridSource, weather WeatherSource, store featurestore.Store, cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		grid:    grid,
		weather: weather,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Window computes the time range a mode operates on.
func (p *Pipeline) Window(mode Mode) (models.TimeRange, error) {
	now := p.now().UTC().Truncate(time.Hour)
	switch mode {
	case ModeBackfill:
		start, err := p.cfg.BackfillStartTime()
		if err != nil {
			return models.TimeRange{}, err
		}
		return models.TimeRange{Start: start, End: now}, nil
	case ModeDaily:
		return models.TimeRange{
			Start: now.AddDate(0, 0, -p.cfg.DailyWindowDays),
			End:   now,
		}, nil
	case ModeForecast:
		return models.TimeRange{
			Start: now,
			End:   now.Add(time.Duration(p.cfg.ForecastHorizonHours) * time.Hour),
		}, nil
	}
	return models.TimeRange{}, fmt.Errorf("unknown pipeline mode %d", mode)
}

// Run executes one ETL pass and returns the groups it wrote, so downstream
// stages can consume them without re-reading the store (a fresh write is not
// guaranteed to be visible to an immediate read).
func (p *Pipeline) Run(ctx context.Context, mode Mode) ([]*models.FeatureGroup, error) {
	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
	}()

	groups, err := p.run(ctx, mode)
	if err != nil {
		runsFailed.Inc()
		return nil, err
	}

	p.logger.Info("etl run completed",
		zap.String("mode", mode.String()),
		zap.Int("groups", len(groups)),
		zap.Duration("elapsed", time.Since(start)))
	return groups, nil
}

func (p *Pipeline) run(ctx context.Context, mode Mode) ([]*models.FeatureGroup, error) {
	window, err := p.Window(mode)
	if err != nil {
		return nil, err
	}
	maxGap := time.Duration(p.cfg.MaxGapHours) * time.Hour

	p.logger.Info("etl run starting",
		zap.String("mode", mode.String()),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End))

	weather, err := p.extractWeather(ctx, mode, window)
	if err != nil {
		return nil, fmt.Errorf("weather extract: %w", err)
	}
	pricesGeneration, err := p.extractPricesGeneration(ctx, mode, window)
	if err != nil {
		return nil, fmt.Errorf("prices/generation extract: %w", err)
	}

	type stage struct {
		schema  Schema
		records []models.TimeSeriesRecord
	}
	stages := []stage{
		{WeatherSchema(), weather},
		{PricesGenerationSchema(), pricesGeneration},
	}

	// Future flows are the prediction target; the forecast run carries no
	// flow group.
	if mode != ModeForecast {
		flows, err := p.extractFlows(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("flow extract: %w", err)
		}
		stages = append(stages, stage{FlowSchema(), flows})
	}

	// Transform and validate every group before loading any, so a schema
	// violation in one source leaves the store untouched for this run.
	var groups []*models.FeatureGroup
	for _, st := range stages {
		recordsExtracted.Add(float64(len(st.records)))

		transformed := Resample(st.records, window, st.schema, maxGap)
		if err := st.schema.Validate(transformed); err != nil {
			return nil, err
		}
		groups = append(groups, &models.FeatureGroup{
			Name:    st.schema.Group,
			Version: p.cfg.GroupVersion,
			Records: transformed,
		})
		p.logger.Info("feature group transformed",
			zap.String("group", st.schema.Group),
			zap.Int("raw", len(st.records)),
			zap.Int("transformed", len(transformed)))
	}

	for _, group := range groups {
		if err := p.store.Write(ctx, group); err != nil {
			return nil, fmt.Errorf("load %s: %w", group.Name, err)
		}
		recordsLoaded.Add(float64(len(group.Records)))
	}
	return groups, nil
}

func (p *Pipeline) extractWeather(ctx context.Context, mode Mode, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	var all []models.TimeSeriesRecord
	for _, zone := range models.Zones {
		var (
			records []models.TimeSeriesRecord
			err     error
		)
		if mode == ModeForecast {
			records, err = p.weather.Forecast(ctx, zone, window)
		} else {
			records, err = p.weather.Archive(ctx, zone, window)
		}
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", zone, err)
		}
		all = append(all, records...)
	}
	return all, nil
}

func (p *Pipeline) extractPricesGeneration(ctx context.Context, mode Mode, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	var all []models.TimeSeriesRecord
	for _, zone := range models.Zones {
		prices, err := p.grid.DayAheadPrices(ctx, zone, window)
		if err != nil {
			return nil, fmt.Errorf("prices %s: %w", zone, err)
		}
		all = append(all, prices...)

		var generation []models.TimeSeriesRecord
		if mode == ModeForecast {
			generation, err = p.grid.GenerationForecast(ctx, zone, window)
		} else {
			generation, err = p.grid.Generation(ctx, zone, window)
		}
		if err != nil {
			return nil, fmt.Errorf("generation %s: %w", zone, err)
		}
		all = append(all, generation...)
	}
	return all, nil
}

func (p *Pipeline) extractFlows(ctx context.Context, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	exports, err := p.grid.CrossBorderFlows(ctx, p.cfg.HomeZone, window, true)
	if err != nil {
		return nil, fmt.Errorf("exports: %w", err)
	}
	imports, err := p.grid.CrossBorderFlows(ctx, p.cfg.HomeZone, window, false)
	if err != nil {
		return nil, fmt.Errorf("imports: %w", err)
	}
	return append(exports, imports...), nil
}
