package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/cache"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// ENTSO-E transparency platform document types.
const (
	docPhysicalFlow       = "A11"
	docDayAheadPrices     = "A44"
	docActualGeneration   = "A75"
	docGenerationForecast = "A71"
)

const entsoePeriodFormat = "200601021504"

// EntsoeClient queries the market/grid transparency API for physical
// cross-border flows, day-ahead prices and generation figures.
type EntsoeClient struct {
	http   *resty.Client
	cache  *cache.Service
	ttl    time.Duration
	logger *zap.Logger
}

func NewEntsoeClient(cfg config.EntsoeConfig, cacheSvc *cache.Service, logger *zap.Logger) *EntsoeClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitSec) * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		SetQueryParam("securityToken", cfg.APIKey).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &EntsoeClient{
		http:   client,
		cache:  cacheSvc,
		ttl:    time.Duration(cfg.CacheTTLMin) * time.Minute,
		logger: logger,
	}
}

type entsoePoint struct {
	TS       time.Time `json:"ts"`
	Quantity float64   `json:"quantity"`
}

type entsoeSeries struct {
	InDomain  string        `json:"in_domain"`
	OutDomain string        `json:"out_domain"`
	PsrType   string        `json:"psr_type,omitempty"`
	Points    []entsoePoint `json:"points"`
}

type entsoeResponse struct {
	TimeSeries []entsoeSeries `json:"time_series"`
}

// CrossBorderFlows returns hourly physical flows between home and all of its
// neighbours. With export=true home is the sending side, otherwise the
// receiving side. Entities are directed border pairs.
func (c *EntsoeClient) CrossBorderFlows(ctx context.Context, home string, window models.TimeRange, export bool) ([]models.TimeSeriesRecord, error) {
	params := map[string]string{"documentType": docPhysicalFlow}
	if export {
		params["out_Domain"] = home
	} else {
		params["in_Domain"] = home
	}

	resp, err := c.fetch(ctx, params, window)
	if err != nil {
		return nil, err
	}

	var records []models.TimeSeriesRecord
	for _, series := range resp.TimeSeries {
		from, to := series.OutDomain, series.InDomain
		if from == "" || to == "" {
			continue
		}
		pair := models.PairID(from, to)
		for _, pt := range series.Points {
			records = append(records, models.TimeSeriesRecord{
				EntityID: pair,
				TS:       pt.TS.UTC(),
				Metric:   models.MetricEnergySent,
				Value:    pt.Quantity,
			})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("flows %s window %s..%s: %w", home, window.Start, window.End, ErrSourceDataGap)
	}
	return records, nil
}

// DayAheadPrices returns hourly day-ahead prices for one zone. The day-ahead
// auction clears a day in advance, so this endpoint also serves the forecast
// window.
func (c *EntsoeClient) DayAheadPrices(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	resp, err := c.fetch(ctx, map[string]string{
		"documentType": docDayAheadPrices,
		"in_Domain":    zone,
		"out_Domain":   zone,
	}, window)
	if err != nil {
		return nil, err
	}

	records := flattenSeries(resp, zone, func(entsoeSeries) string { return models.MetricEnergyPrice })
	if len(records) == 0 {
		return nil, fmt.Errorf("prices %s window %s..%s: %w", zone, window.Start, window.End, ErrSourceDataGap)
	}
	return records, nil
}

// Generation returns actual generation per production type for one zone, plus
// a computed total_generation series.
func (c *EntsoeClient) Generation(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	resp, err := c.fetch(ctx, map[string]string{
		"documentType": docActualGeneration,
		"in_Domain":    zone,
	}, window)
	if err != nil {
		return nil, err
	}

	records := flattenSeries(resp, zone, func(s entsoeSeries) string {
		return normalizePsrType(s.PsrType)
	})
	if len(records) == 0 {
		return nil, fmt.Errorf("generation %s window %s..%s: %w", zone, window.Start, window.End, ErrSourceDataGap)
	}

	// Sum all production types into a total per hour.
	totals := make(map[time.Time]float64)
	for _, r := range records {
		totals[r.TS] += r.Value
	}
	for ts, total := range totals {
		records = append(records, models.TimeSeriesRecord{
			EntityID: zone,
			TS:       ts,
			Metric:   models.MetricTotalGeneration,
			Value:    total,
		})
	}
	return records, nil
}

// GenerationForecast returns the day-ahead total generation forecast for one
// zone. Per-type breakdowns are not published ahead of time.
func (c *EntsoeClient) GenerationForecast(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	resp, err := c.fetch(ctx, map[string]string{
		"documentType": docGenerationForecast,
		"in_Domain":    zone,
	}, window)
	if err != nil {
		return nil, err
	}

	records := flattenSeries(resp, zone, func(entsoeSeries) string { return models.MetricTotalGeneration })
	if len(records) == 0 {
		return nil, fmt.Errorf("generation forecast %s window %s..%s: %w", zone, window.Start, window.End, ErrSourceDataGap)
	}
	return records, nil
}

func flattenSeries(resp *entsoeResponse, entityID string, metric func(entsoeSeries) string) []models.TimeSeriesRecord {
	var records []models.TimeSeriesRecord
	for _, series := range resp.TimeSeries {
		name := metric(series)
		if name == "" {
			continue
		}
		for _, pt := range series.Points {
			records = append(records, models.TimeSeriesRecord{
				EntityID: entityID,
				TS:       pt.TS.UTC(),
				Metric:   name,
				Value:    pt.Quantity,
			})
		}
	}
	return records
}

func (c *EntsoeClient) fetch(ctx context.Context, params map[string]string, window models.TimeRange) (*entsoeResponse, error) {
	params["periodStart"] = window.Start.UTC().Format(entsoePeriodFormat)
	params["periodEnd"] = window.End.UTC().Format(entsoePeriodFormat)

	key := cacheKey("entsoe", params)
	var cached entsoeResponse
	if hit, err := c.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("entsoe request failed: %w: %v", ErrSourceUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("entsoe returned status %d: %w", resp.StatusCode(), ErrSourceUnavailable)
	}

	var out entsoeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("entsoe response decode failed: %w", err)
	}

	if err := c.cache.Set(ctx, key, &out, c.ttl); err != nil {
		c.logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
	}
	return &out, nil
}

// normalizePsrType turns a production-type label into a metric name, e.g.
// "Fossil Gas" -> "fossil_gas".
func normalizePsrType(psr string) string {
	if psr == "" {
		return ""
	}
	name := strings.ToLower(psr)
	for _, ch := range []string{" ", "-", "/"} {
		name = strings.ReplaceAll(name, ch, "_")
	}
	return name
}

func cacheKey(prefix string, params map[string]string) string {
	parts := []string{
		prefix,
		params["documentType"],
		params["in_Domain"],
		params["out_Domain"],
		params["periodStart"],
		params["periodEnd"],
	}
	return strings.Join(parts, ":")
}
