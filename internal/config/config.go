// Package config has a configuration structure
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config contains configuration data
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080" validate:"required"`

	Storage    string `env:"STORAGE" envDefault:"memory" validate:"oneof=memory sqlite postgres"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"trader.db"`

	UsernamePostgres string `env:"POSTGRES_USER" envDefault:"postgres"`
	PasswordPostgres string `env:"POSTGRES_PASSWORD" envDefault:"testpassword"`
	HostPostgres     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PortPostgres     string `env:"POSTGRES_PORT" envDefault:"5432"`
	DBNamePostgres   string `env:"POSTGRES_DB" envDefault:"postgres"`

	RedisEnabled     bool   `env:"REDIS_ENABLED" envDefault:"false"`
	ServerRedisCache string `env:"REDIS_SERVER" envDefault:"server1"`
	HostRedisCache   string `env:"REDIS_HOST" envDefault:"localhost"`
	PortRedisCache   string `env:"REDIS_PORT" envDefault:"6379"`
	QuoteTTLSeconds  int    `env:"QUOTE_TTL_SECONDS" envDefault:"86400" validate:"gt=0"`

	HostGrpc string `env:"HOST_GRPC" envDefault:"localhost"`
	PortGrpc string `env:"PORT_GRPC" envDefault:"10000"`

	RefreshIntervalSeconds  int     `env:"REFRESH_INTERVAL_SECONDS" envDefault:"120" validate:"gt=0"`
	AlertPollSeconds        int     `env:"ALERT_POLL_SECONDS" envDefault:"30" validate:"gt=0"`
	DividendIntervalSeconds int     `env:"DIVIDEND_INTERVAL_SECONDS" envDefault:"300" validate:"gt=0"`
	StartingBalance         float64 `env:"STARTING_BALANCE" envDefault:"10000" validate:"gte=0"`
	MinimumDividendPayout   float64 `env:"MINIMUM_DIVIDEND_PAYOUT" envDefault:"0.01" validate:"gte=0"`
	StorageTimeoutSeconds   int     `env:"STORAGE_TIMEOUT_SECONDS" envDefault:"10" validate:"gt=0"`
	NotifyPricesUpdated     bool    `env:"NOTIFY_PRICES_UPDATED" envDefault:"true"`
}

// Load reads dotenv files, if they exist, then the environment. With no
// files given it looks for .env in the working directory. Variables that are
// already set win over the files.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// PostgresURL is the connection string of postgres
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.UsernamePostgres, c.PasswordPostgres, c.HostPostgres, c.PortPostgres, c.DBNamePostgres)
}

// RedisAddr is host:port of redis
func (c *Config) RedisAddr() string {
	return fmt.Sprint(c.HostRedisCache, ":", c.PortRedisCache)
}

// GrpcAddr is host:port the price feed listens on
func (c *Config) GrpcAddr() string {
	return fmt.Sprint(c.HostGrpc, ":", c.PortGrpc)
}

// RefreshInterval is R, the minimum time between two price refreshes
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// AlertPoll is A, how often alerts are checked
func (c *Config) AlertPoll() time.Duration {
	return time.Duration(c.AlertPollSeconds) * time.Second
}

// DividendInterval is D, how often dividends are paid
func (c *Config) DividendInterval() time.Duration {
	return time.Duration(c.DividendIntervalSeconds) * time.Second
}

// StorageTimeout bounds a single background iteration
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutSeconds) * time.Second
}

// QuoteTTL is how long quotes live in redis
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLSeconds) * time.Second
}
