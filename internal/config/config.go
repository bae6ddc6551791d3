package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string        `mapstructure:"PORT"`
	Env                    string        `mapstructure:"ENV"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL               string        `mapstructure:"REDIS_URL"`
	AuthIssuer             string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL            string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience           string        `mapstructure:"AUTH_AUDIENCE"`
	DefaultOrganization    string        `mapstructure:"DEFAULT_ORGANIZATION"`
	CORSOrigins            []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS           float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SlotDurationMinutes    int           `mapstructure:"SLOT_DURATION_MINUTES"`
	NextAvailableMaxDays   int           `mapstructure:"NEXT_AVAILABLE_MAX_DAYS"`
	QueueHeartbeatInterval time.Duration `mapstructure:"QUEUE_HEARTBEAT_INTERVAL"`
	QueueSubscriberBuffer  int           `mapstructure:"QUEUE_SUBSCRIBER_BUFFER"`
	MigrationsDir          string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"DEFAULT_ORGANIZATION", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "SLOT_DURATION_MINUTES", "NEXT_AVAILABLE_MAX_DAYS",
	"QUEUE_HEARTBEAT_INTERVAL", "QUEUE_SUBSCRIBER_BUFFER", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SLOT_DURATION_MINUTES", 15)
	v.SetDefault("NEXT_AVAILABLE_MAX_DAYS", 30)
	v.SetDefault("QUEUE_HEARTBEAT_INTERVAL", "25s")
	v.SetDefault("QUEUE_SUBSCRIBER_BUFFER", 64)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_ISSUER must be set so that real JWT authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SlotDurationMinutes <= 0 || c.SlotDurationMinutes > 24*60 {
		return fmt.Errorf("SLOT_DURATION_MINUTES must be between 1 and 1440, got %d", c.SlotDurationMinutes)
	}
	if c.NextAvailableMaxDays <= 0 {
		return fmt.Errorf("NEXT_AVAILABLE_MAX_DAYS must be positive, got %d", c.NextAvailableMaxDays)
	}
	if c.QueueHeartbeatInterval <= 0 {
		return fmt.Errorf("QUEUE_HEARTBEAT_INTERVAL must be positive")
	}
	if c.QueueSubscriberBuffer <= 0 {
		return fmt.Errorf("QUEUE_SUBSCRIBER_BUFFER must be positive, got %d", c.QueueSubscriberBuffer)
	}
	return nil
}
