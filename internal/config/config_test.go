package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/playerfeed")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.EventChannel != "player-events" {
		t.Errorf("EventChannel = %q, want %q", cfg.EventChannel, "player-events")
	}
	if cfg.MaxConcurrentDeliveries != 50 {
		t.Errorf("MaxConcurrentDeliveries = %d, want 50", cfg.MaxConcurrentDeliveries)
	}
	if cfg.DeliveryTimeout != 5*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 5s", cfg.DeliveryTimeout)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Errorf("RetryMaxAttempts = %d, want 5", cfg.RetryMaxAttempts)
	}
	if cfg.MigrationsDir != "migrations" {
		t.Errorf("MigrationsDir = %q, want %q", cfg.MigrationsDir, "migrations")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/playerfeed")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PORT", "9999")
	t.Setenv("EVENT_CHANNEL", "custom-events")
	t.Setenv("MAX_CONCURRENT_DELIVERIES", "8")
	t.Setenv("DELIVERY_TIMEOUT", "2s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9999")
	}
	if cfg.EventChannel != "custom-events" {
		t.Errorf("EventChannel = %q, want %q", cfg.EventChannel, "custom-events")
	}
	if cfg.MaxConcurrentDeliveries != 8 {
		t.Errorf("MaxConcurrentDeliveries = %d, want 8", cfg.MaxConcurrentDeliveries)
	}
	if cfg.DeliveryTimeout != 2*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 2s", cfg.DeliveryTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name     string
		dbURL    string
		redisURL string
	}{
		{"missing database url", "", "redis://localhost:6379"},
		{"missing redis url", "postgres://localhost/playerfeed", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.dbURL)
			t.Setenv("REDIS_URL", tt.redisURL)

			if _, err := Load(); err == nil {
				t.Error("Load() should fail when a required variable is missing")
			}
		})
	}
}

func TestLoad_InvalidWorkerCount(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/playerfeed")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MAX_CONCURRENT_DELIVERIES", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a zero concurrency ceiling")
	}
}
