package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/config"
)

// Service wraps Redis for response caching and prediction publishing. A nil
// client degrades every operation to a no-op so the pipeline keeps working
// when Redis is down or not configured.
type Service struct {
	client *redis.Client
	logger *zap.Logger
}

func NewService(cfg config.RedisConfig, logger *zap.Logger) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &Service{client: client, logger: logger}, nil
		}
		logger.Warn("redis ping failed",
			zap.Int("attempt", i+1),
			zap.Error(lastErr))
		time.Sleep(2 * time.Second)
	}

	return &Service{client: nil, logger: logger}, fmt.Errorf("redis ping failed after 5 attempts: %w", lastErr)
}

// Disabled returns a Service whose operations are all no-ops.
func Disabled(logger *zap.Logger) *Service {
	return &Service{client: nil, logger: logger}
}

func (s *Service) Available() bool {
	return s != nil && s.client != nil
}

// Get unmarshals the cached value for key into dest. A miss leaves dest
// untouched and returns false.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *Service) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

func (s *Service) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
