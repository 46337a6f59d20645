// Package config assembles the service configuration from three layers:
// compiled defaults, an optional YAML file, and environment variables for the
// settings that vary per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/gerun/internal/alloc"
	httpapi "github.com/sawpanic/gerun/internal/interfaces/http"
	"github.com/sawpanic/gerun/internal/marketdata"
	"github.com/sawpanic/gerun/internal/signals"
)

// DefaultPath is tried when no config flag is given; a missing file there
// falls back to compiled defaults
const DefaultPath = "config/gerun.yaml"

// Config is the effective service configuration
type Config struct {
	LogLevel string
	Bankroll float64 // Default capital for one-shot allocations

	Engine   alloc.Config
	Server   httpapi.ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Prices   marketdata.PricesConfig
	Consumer signals.ConsumerConfig
	Batch    BatchConfig
}

// RedisConfig points at the tick snapshot cache and the opportunity stream.
// An empty URL disables both.
type RedisConfig struct {
	URL     string
	TickTTL time.Duration
}

// PostgresConfig points at the plan journal. An empty DSN disables journaling.
type PostgresConfig struct {
	DSN     string
	Timeout time.Duration
}

// BatchConfig controls how the stream consumer groups validated opportunities
// before handing them to the engine's buffer
type BatchConfig struct {
	Size     int
	Interval time.Duration
}

// Default returns the compiled configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bankroll: 10_000_000,
		Engine:   alloc.DefaultConfig(),
		Server:   httpapi.DefaultServerConfig(),
		Redis:    RedisConfig{TickTTL: 30 * time.Second},
		Postgres: PostgresConfig{Timeout: 5 * time.Second},
		Prices:   marketdata.DefaultPricesConfig(),
		Consumer: signals.DefaultConsumerConfig(),
		Batch:    BatchConfig{Size: 32, Interval: 2 * time.Second},
	}
}

// fileConfig is the YAML schema. Durations are strings ("30s", "5m") and
// converted after parse; absent keys keep the compiled defaults.
type fileConfig struct {
	LogLevel string       `yaml:"log_level"`
	Bankroll float64      `yaml:"bankroll"`
	Engine   alloc.Config `yaml:"engine"`

	Server struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		ReadTimeout    string `yaml:"read_timeout"`
		WriteTimeout   string `yaml:"write_timeout"`
		IdleTimeout    string `yaml:"idle_timeout"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`

	Redis struct {
		URL     string `yaml:"url"`
		TickTTL string `yaml:"tick_ttl"`
	} `yaml:"redis"`

	Postgres struct {
		DSN     string `yaml:"dsn"`
		Timeout string `yaml:"timeout"`
	} `yaml:"postgres"`

	Prices struct {
		BaseURL      string `yaml:"base_url"`
		UserAgent    string `yaml:"user_agent"`
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
		Burst        int    `yaml:"burst"`
	} `yaml:"prices"`

	Consumer struct {
		Stream   string `yaml:"stream"`
		Group    string `yaml:"group"`
		Consumer string `yaml:"consumer"`
		Count    int64  `yaml:"count"`
		Block    string `yaml:"block"`
	} `yaml:"consumer"`

	Batch struct {
		Size     int    `yaml:"size"`
		Interval string `yaml:"interval"`
	} `yaml:"batch"`
}

// envOverrides are the deploy-varying settings; everything else is YAML
type envOverrides struct {
	LogLevel    string  `env:"GERUN_LOG_LEVEL"`
	Bankroll    float64 `env:"GERUN_BANKROLL"`
	Host        string  `env:"GERUN_HOST"`
	Port        int     `env:"GERUN_PORT"`
	RedisURL    string  `env:"GERUN_REDIS_URL"`
	PostgresDSN string  `env:"GERUN_POSTGRES_DSN"`
	PricesURL   string  `env:"GERUN_PRICES_BASE_URL"`
	UserAgent   string  `env:"GERUN_PRICES_USER_AGENT"`
}

// Load builds the effective configuration. An empty path tries DefaultPath
// and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyFile(raw); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Compiled defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	// Seed the engine block so a partial engine section overlays defaults
	// instead of zeroing the unlisted thresholds
	fc := fileConfig{Engine: c.Engine}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	c.Engine = fc.Engine
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.Bankroll != 0 {
		c.Bankroll = fc.Bankroll
	}

	if fc.Server.Host != "" {
		c.Server.Host = fc.Server.Host
	}
	if fc.Server.Port != 0 {
		c.Server.Port = fc.Server.Port
	}
	durations := []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.Server.ReadTimeout, fc.Server.ReadTimeout, "server.read_timeout"},
		{&c.Server.WriteTimeout, fc.Server.WriteTimeout, "server.write_timeout"},
		{&c.Server.IdleTimeout, fc.Server.IdleTimeout, "server.idle_timeout"},
		{&c.Server.RequestTimeout, fc.Server.RequestTimeout, "server.request_timeout"},
		{&c.Redis.TickTTL, fc.Redis.TickTTL, "redis.tick_ttl"},
		{&c.Postgres.Timeout, fc.Postgres.Timeout, "postgres.timeout"},
		{&c.Prices.Timeout, fc.Prices.Timeout, "prices.timeout"},
		{&c.Prices.PollInterval, fc.Prices.PollInterval, "prices.poll_interval"},
		{&c.Consumer.Block, fc.Consumer.Block, "consumer.block"},
		{&c.Batch.Interval, fc.Batch.Interval, "batch.interval"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if fc.Redis.URL != "" {
		c.Redis.URL = fc.Redis.URL
	}
	if fc.Postgres.DSN != "" {
		c.Postgres.DSN = fc.Postgres.DSN
	}
	if fc.Prices.BaseURL != "" {
		c.Prices.BaseURL = fc.Prices.BaseURL
	}
	if fc.Prices.UserAgent != "" {
		c.Prices.UserAgent = fc.Prices.UserAgent
	}
	if fc.Prices.Burst != 0 {
		c.Prices.Burst = fc.Prices.Burst
	}
	if fc.Consumer.Stream != "" {
		c.Consumer.Stream = fc.Consumer.Stream
	}
	if fc.Consumer.Group != "" {
		c.Consumer.Group = fc.Consumer.Group
	}
	if fc.Consumer.Consumer != "" {
		c.Consumer.Consumer = fc.Consumer.Consumer
	}
	if fc.Consumer.Count != 0 {
		c.Consumer.Count = fc.Consumer.Count
	}
	if fc.Batch.Size != 0 {
		c.Batch.Size = fc.Batch.Size
	}
	return nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Bankroll != 0 {
		c.Bankroll = o.Bankroll
	}
	if o.Host != "" {
		c.Server.Host = o.Host
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.RedisURL != "" {
		c.Redis.URL = o.RedisURL
	}
	if o.PostgresDSN != "" {
		c.Postgres.DSN = o.PostgresDSN
	}
	if o.PricesURL != "" {
		c.Prices.BaseURL = o.PricesURL
	}
	if o.UserAgent != "" {
		c.Prices.UserAgent = o.UserAgent
	}
	return nil
}

// Validate fails fast on settings that would only surface as broken behavior
// later
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Bankroll < 0 {
		return fmt.Errorf("bankroll must be non-negative, got %.0f", c.Bankroll)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Prices.BaseURL == "" {
		return fmt.Errorf("prices.base_url must be set")
	}
	if c.Prices.UserAgent == "" {
		return fmt.Errorf("prices.user_agent must be set")
	}
	if c.Redis.URL != "" && c.Redis.TickTTL <= 0 {
		return fmt.Errorf("redis.tick_ttl must be positive")
	}
	if c.Postgres.DSN != "" && c.Postgres.Timeout <= 0 {
		return fmt.Errorf("postgres.timeout must be positive")
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be at least 1")
	}
	if c.Batch.Interval <= 0 {
		return fmt.Errorf("batch.interval must be positive")
	}
	return nil
}
