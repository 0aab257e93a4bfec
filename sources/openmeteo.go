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

// HourlyWeatherVariables are the Open-Meteo variables ingested per zone.
// They cover the solar, wind and temperature drivers of generation.
var HourlyWeatherVariables = []string{
	models.MetricTemperature2M,
	models.MetricCloudcover,
	models.MetricWindSpeed10M,
	models.MetricWindSpeed100M,
	models.MetricDirectRadiation,
	models.MetricPrecipitation,
}

// Geographic centre per bidding zone, used as the Open-Meteo query point.
var zoneCoordinates = map[string][2]float64{
	"NL":    {52.13, 5.29},
	"BE":    {50.64, 4.67},
	"DE_LU": {51.16, 10.45},
	"DK_1":  {56.26, 9.50},
	"GB":    {54.00, -2.55},
	"NO_2":  {58.27, 7.79},
}

const openMeteoTimeFormat = "2006-01-02T15:04"

// WeatherClient queries Open-Meteo for historical (archive) and forecast
// hourly weather. No API key is required.
type WeatherClient struct {
	http        *resty.Client
	archiveURL  string
	forecastURL string
	cache       *cache.Service
	ttl         time.Duration
	logger      *zap.Logger
}

func NewWeatherClient(cfg config.WeatherConfig, cacheSvc *cache.Service, logger *zap.Logger) *WeatherClient {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitSec) * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &WeatherClient{
		http:        client,
		archiveURL:  cfg.ArchiveURL,
		forecastURL: cfg.ForecastURL,
		cache:       cacheSvc,
		ttl:         time.Duration(cfg.CacheTTLMin) * time.Minute,
		logger:      logger,
	}
}

// Archive returns historical hourly weather observations for one zone.
func (c *WeatherClient) Archive(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	return c.query(ctx, c.archiveURL, "archive", zone, window)
}

// Forecast returns forward-looking hourly weather for one zone.
func (c *WeatherClient) Forecast(ctx context.Context, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	return c.query(ctx, c.forecastURL, "forecast", zone, window)
}

func (c *WeatherClient) query(ctx context.Context, url, kind, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	coords, ok := zoneCoordinates[zone]
	if !ok {
		return nil, fmt.Errorf("no coordinates for zone %q", zone)
	}

	key := fmt.Sprintf("openmeteo:%s:%s:%d:%d", kind, zone, window.Start.Unix(), window.End.Unix())
	var cached []models.TimeSeriesRecord
	if hit, err := c.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	params := map[string]string{
		"latitude":   fmt.Sprintf("%.2f", coords[0]),
		"longitude":  fmt.Sprintf("%.2f", coords[1]),
		"hourly":     strings.Join(HourlyWeatherVariables, ","),
		"timezone":   "UTC",
		"start_date": window.Start.UTC().Format("2006-01-02"),
		"end_date":   window.End.UTC().Add(-time.Hour).Format("2006-01-02"),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w: %v", ErrSourceUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("open-meteo returned status %d: %w", resp.StatusCode(), ErrSourceUnavailable)
	}

	records, err := parseHourly(resp.Body(), zone, window)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("weather %s window %s..%s: %w", zone, window.Start, window.End, ErrSourceDataGap)
	}

	if err := c.cache.Set(ctx, key, records, c.ttl); err != nil {
		c.logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
	}
	return records, nil
}

// parseHourly flattens the Open-Meteo hourly block, one array per variable
// aligned on the shared time array. Null entries become gaps for the ETL
// stage to fill or drop.
func parseHourly(body []byte, zone string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	var resp struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("open-meteo response decode failed: %w", err)
	}
	if resp.Hourly == nil {
		return nil, nil
	}

	rawTimes, ok := resp.Hourly["time"]
	if !ok {
		return nil, nil
	}
	var timestamps []string
	if err := json.Unmarshal(rawTimes, &timestamps); err != nil {
		return nil, fmt.Errorf("open-meteo time axis decode failed: %w", err)
	}

	times := make([]time.Time, len(timestamps))
	for i, raw := range timestamps {
		ts, err := time.Parse(openMeteoTimeFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("open-meteo timestamp %q: %w", raw, err)
		}
		times[i] = ts.UTC()
	}

	var records []models.TimeSeriesRecord
	for _, variable := range HourlyWeatherVariables {
		raw, ok := resp.Hourly[variable]
		if !ok {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("open-meteo %s decode failed: %w", variable, err)
		}
		for i, value := range values {
			if i >= len(times) || value == nil {
				continue
			}
			if !window.Contains(times[i]) {
				continue
			}
			records = append(records, models.TimeSeriesRecord{
				EntityID: zone,
				TS:       times[i],
				Metric:   variable,
				Value:    *value,
			})
		}
	}
	return records, nil
}
