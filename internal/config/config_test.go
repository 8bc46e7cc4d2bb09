package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Booking.Store)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, 10*time.Minute, cfg.Booking.RangeHoldTTL)
	assert.Equal(t, 2*time.Minute, cfg.Booking.ReaperInterval)
	assert.Equal(t, time.UTC, cfg.Booking.Location)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Rabbit.URL)
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_USER", "slot")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "slots")
	t.Setenv("HOLD_TTL", "5m")
	t.Setenv("RANGE_HOLD_TTL", "15m")
	t.Setenv("VENUE_TIMEZONE", "Asia/Kolkata")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, 15*time.Minute, cfg.Booking.RangeHoldTTL)
	assert.Equal(t, "Asia/Kolkata", cfg.Booking.Location.String())
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel)
	assert.Equal(t, "postgres://slot:pw@localhost:5432/slots?sslmode=disable", cfg.Postgres.DSN())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"STORE_DRIVER": "memory"}},
		{name: "postgres without credentials", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "postgres"}},
		{name: "memory store with redis", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "memory", "REDIS_ADDR": "localhost:6379"}},
		{name: "unknown driver", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "sqlite"}},
		{name: "bad timezone", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "memory", "VENUE_TIMEZONE": "Mars/Base"}},
		{name: "zero hold ttl", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "memory", "HOLD_TTL": "0s"}},
		{name: "bad log level", env: map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "memory", "LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			assert.Error(t, err)
		})
	}
}
