package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Entsoe   EntsoeConfig
	Weather  WeatherConfig
	Pipeline PipelineConfig
	Training TrainingConfig
	Export   ExportConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type EntsoeConfig struct {
	BaseURL      string
	APIKey       string
	TimeoutSec   int
	RetryCount   int
	RetryWaitSec int
	CacheTTLMin  int
}

type WeatherConfig struct {
	ArchiveURL   string
	ForecastURL  string
	TimeoutSec   int
	RetryCount   int
	RetryWaitSec int
	CacheTTLMin  int
}

type PipelineConfig struct {
	// HomeZone is the bidding zone all border pairs are anchored to.
	HomeZone string
	// BackfillStart bounds the historical bulk load (YYYY-MM-DD, UTC).
	BackfillStart string
	// DailyWindowDays is the rolling lookback of the daily run.
	DailyWindowDays int
	// ForecastHorizonHours is the forward-looking window of the forecast run.
	ForecastHorizonHours int
	// MaxGapHours: gaps up to this length are forward-filled, longer gaps dropped.
	MaxGapHours  int
	GroupVersion int
}

func (p PipelineConfig) BackfillStartTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", p.BackfillStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid BACKFILL_START: %w", err)
	}
	return t.UTC(), nil
}

type TrainingConfig struct {
	ModelName    string
	MinRows      int
	TestFraction float64
	GridSearch   bool
	// FeatureMode selects the generation features entering the matrix:
	// "total" uses the summed series only, "all" adds every production type.
	FeatureMode string
}

type ExportConfig struct {
	PredictionsDir string
	MonitoringPath string
}

type MetricsConfig struct {
	Addr string
}

// LoadConfig reads configuration from the environment, with an optional .env
// file for local development. Unset variables fall back to defaults.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real deployments use plain env vars.
	_ = godotenv.Load()

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	dailyWindow, err := getIntEnv("DAILY_WINDOW_DAYS", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_WINDOW_DAYS: %w", err)
	}
	horizon, err := getIntEnv("FORECAST_HORIZON_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_HORIZON_HOURS: %w", err)
	}
	maxGap, err := getIntEnv("MAX_GAP_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_GAP_HOURS: %w", err)
	}
	groupVersion, err := getIntEnv("FEATURE_GROUP_VERSION", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid FEATURE_GROUP_VERSION: %w", err)
	}
	minRows, err := getIntEnv("TRAIN_MIN_ROWS", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid TRAIN_MIN_ROWS: %w", err)
	}
	testFraction, err := getFloatEnv("TRAIN_TEST_FRACTION", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid TRAIN_TEST_FRACTION: %w", err)
	}
	featureMode := getEnv("FEATURE_MODE", "total")
	if featureMode != "total" && featureMode != "all" {
		return nil, fmt.Errorf("invalid FEATURE_MODE %q: want total or all", featureMode)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "crossflow"),
			Password: getEnv("DB_PASSWORD", "crossflow_dev_password"),
			Name:     getEnv("DB_NAME", "crossflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Entsoe: EntsoeConfig{
			BaseURL:      getEnv("ENTSOE_BASE_URL", "https://web-api.tp.entsoe.eu/api"),
			APIKey:       getEnv("ENTSOE_API_KEY", ""),
			TimeoutSec:   30,
			RetryCount:   3,
			RetryWaitSec: 2,
			CacheTTLMin:  360,
		},
		Weather: WeatherConfig{
			ArchiveURL:   getEnv("OPEN_METEO_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive"),
			ForecastURL:  getEnv("OPEN_METEO_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
			TimeoutSec:   30,
			RetryCount:   3,
			RetryWaitSec: 2,
			CacheTTLMin:  360,
		},
		Pipeline: PipelineConfig{
			HomeZone:             getEnv("HOME_ZONE", "NL"),
			BackfillStart:        getEnv("BACKFILL_START", "2019-01-01"),
			DailyWindowDays:      dailyWindow,
			ForecastHorizonHours: horizon,
			MaxGapHours:          maxGap,
			GroupVersion:         groupVersion,
		},
		Training: TrainingConfig{
			ModelName:    getEnv("MODEL_NAME", "cross_border_flow_gbrt"),
			MinRows:      minRows,
			TestFraction: testFraction,
			GridSearch:   getEnv("HYPERPARAMETER_TUNING", "") == "true",
			FeatureMode:  featureMode,
		},
		Export: ExportConfig{
			PredictionsDir: getEnv("PREDICTIONS_DIR", "predictions"),
			MonitoringPath: getEnv("MONITORING_PATH", "monitoring/mae_metrics.csv"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":8080"),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
