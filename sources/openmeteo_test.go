package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/cache"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

func testWeatherClient(url string) *WeatherClient {
	return NewWeatherClient(config.WeatherConfig{
		ArchiveURL:   url,
		ForecastURL:  url,
		TimeoutSec:   5,
		RetryCount:   1,
		RetryWaitSec: 0,
	}, cache.Disabled(zap.NewNop()), zap.NewNop())
}

const hourlyBody = `{
  "hourly": {
    "time": ["2024-06-01T00:00", "2024-06-01T01:00", "2024-06-01T02:00"],
    "temperature_2m": [14.1, null, 15.3],
    "cloudcover": [80, 75, 60],
    "wind_speed_10m": [3.4, 3.9, 4.1],
    "wind_speed_100m": [7.2, 7.8, 8.0],
    "direct_radiation": [0, 12.5, 40],
    "precipitation": [0, 0, 0.2]
  }
}`

func TestArchiveParsesHourlyBlock(t *testing.T) {
	var gotLat, gotHourly, gotTZ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLat = r.URL.Query().Get("latitude")
		gotHourly = r.URL.Query().Get("hourly")
		gotTZ = r.URL.Query().Get("timezone")
		fmt.Fprint(w, hourlyBody)
	}))
	defer srv.Close()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(3 * time.Hour)}
	records, err := testWeatherClient(srv.URL).Archive(context.Background(), "NL", window)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if gotLat != "52.13" {
		t.Fatalf("latitude = %q", gotLat)
	}
	if gotTZ != "UTC" {
		t.Fatalf("timezone = %q", gotTZ)
	}
	if gotHourly == "" {
		t.Fatal("hourly variables not sent")
	}

	// 6 variables x 3 hours, minus the one null temperature reading.
	if len(records) != 17 {
		t.Fatalf("got %d records, want 17", len(records))
	}
	temps := 0
	for _, r := range records {
		if r.EntityID != "NL" {
			t.Fatalf("entity = %q, want NL", r.EntityID)
		}
		if r.Metric == models.MetricTemperature2M {
			temps++
			if r.TS.Equal(start.Add(time.Hour)) {
				t.Fatalf("null reading surfaced as a record: %+v", r)
			}
		}
	}
	if temps != 2 {
		t.Fatalf("got %d temperature records, want 2", temps)
	}
}

func TestForecastWindowFiltersRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyBody)
	}))
	defer srv.Close()

	// Window covers only the middle hour; the rest must be filtered out.
	start := time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(time.Hour)}
	records, err := testWeatherClient(srv.URL).Forecast(context.Background(), "NL", window)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	for _, r := range records {
		if !r.TS.Equal(start) {
			t.Fatalf("record outside window: %+v", r)
		}
	}
	// 6 variables minus the null temperature.
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
}

func TestWeatherEmptyResponseIsDataGap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hourly": {"time": []}}`)
	}))
	defer srv.Close()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(time.Hour)}
	_, err := testWeatherClient(srv.URL).Archive(context.Background(), "NL", window)
	if !errors.Is(err, ErrSourceDataGap) {
		t.Fatalf("err = %v, want ErrSourceDataGap", err)
	}
}

func TestWeatherServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(time.Hour)}
	_, err := testWeatherClient(srv.URL).Forecast(context.Background(), "NL", window)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestUnknownZoneRejected(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(time.Hour)}
	_, err := testWeatherClient("http://unused").Archive(context.Background(), "FR", window)
	if err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
