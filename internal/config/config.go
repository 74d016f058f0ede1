package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port                    string        `env:"PORT" envDefault:"8080"`
	DatabaseURL             string        `env:"DATABASE_URL"`
	RedisURL                string        `env:"REDIS_URL"`
	EventChannel            string        `env:"EVENT_CHANNEL" envDefault:"player-events"`
	MaxConcurrentDeliveries int           `env:"MAX_CONCURRENT_DELIVERIES" envDefault:"50"`
	DeliveryTimeout         time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"5s"`
	RetryMaxAttempts        int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	MigrationsDir           string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.MaxConcurrentDeliveries <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_DELIVERIES must be positive")
	}

	return &cfg, nil
}
