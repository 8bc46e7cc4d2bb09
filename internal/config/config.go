package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Rabbit   RabbitConfig
	Booking  BookingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host        string   `envconfig:"SERVER_HOST" default:"localhost"`
	Port        int      `envconfig:"SERVER_PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	NodeID      string   `envconfig:"NODE_ID"`
}

type PostgresConfig struct {
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Name     string `envconfig:"POSTGRES_DB"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"POSTGRES_MAX_CONNS" default:"20"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

// DSN builds the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

type RedisConfig struct {
	// Addr empty disables the venue cache, relay, rate limiting and
	// idempotency keys.
	Addr      string        `envconfig:"REDIS_ADDR"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	DB        int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"0"`
	IdemTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"2h"`
	LockLimit int           `envconfig:"LOCK_RATE_LIMIT" default:"30"`
	LockWin   time.Duration `envconfig:"LOCK_RATE_WINDOW" default:"1m"`
}

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`
}

type RabbitConfig struct {
	// URL empty disables the payment consumer and the booking publisher.
	URL      string `envconfig:"RABBITMQ_URL"`
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"bookings"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"slotgo.payment-paid"`
	Prefetch int    `envconfig:"RABBITMQ_PREFETCH" default:"8"`
}

type BookingConfig struct {
	Store          string        `envconfig:"STORE_DRIVER" default:"postgres"`
	Timezone       string        `envconfig:"VENUE_TIMEZONE" default:"UTC"`
	HoldTTL        time.Duration `envconfig:"HOLD_TTL" default:"10m"`
	RangeHoldTTL   time.Duration `envconfig:"RANGE_HOLD_TTL" default:"10m"`
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"2m"`
	VenueCacheTTL  time.Duration `envconfig:"VENUE_CACHE_TTL" default:"60s"`

	Location *time.Location `ignored:"true"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	SlogLevel slog.Level `ignored:"true"`
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port))
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("missing JWT_SECRET"))
	}

	switch c.Booking.Store = strings.ToLower(strings.TrimSpace(c.Booking.Store)); c.Booking.Store {
	case StoreMemory:
		// holds live in one process; a shared cache and relay would serve
		// other processes state they cannot see
		if c.Redis.Addr != "" {
			errs = append(errs, errors.New("REDIS_ADDR requires STORE_DRIVER=postgres"))
		}
	case StorePostgres:
		if c.Postgres.User == "" {
			errs = append(errs, errors.New("missing POSTGRES_USER"))
		}
		if c.Postgres.Password == "" {
			errs = append(errs, errors.New("missing POSTGRES_PASSWORD"))
		}
		if c.Postgres.Name == "" {
			errs = append(errs, errors.New("missing POSTGRES_DB"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Booking.Store))
	}

	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid VENUE_TIMEZONE: %w", err))
	}
	c.Booking.Location = loc

	if c.Booking.HoldTTL <= 0 {
		errs = append(errs, errors.New("HOLD_TTL must be positive"))
	}
	if c.Booking.RangeHoldTTL <= 0 {
		errs = append(errs, errors.New("RANGE_HOLD_TTL must be positive"))
	}
	if c.Booking.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}

	if err := c.Log.SlogLevel.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
