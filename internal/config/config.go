// Package config defines the polysignal configuration and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSIGNAL_* environment variables
// and command-line flags.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Transport  TransportConfig  `toml:"transport"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Analysis   AnalysisConfig   `toml:"analysis"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the public API roots.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	DataHost  string `toml:"data_host"`
}

// TransportConfig tunes outbound HTTP.
type TransportConfig struct {
	Timeout         duration `toml:"timeout"`
	UserAgent       string   `toml:"user_agent"`
	RPS             float64  `toml:"rps"`
	Burst           int      `toml:"burst"`
	MaxAttempts     int      `toml:"max_attempts"`
	BaseDelay       duration `toml:"base_delay"`
	MaxDelay        duration `toml:"max_delay"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerRatio    float64  `toml:"breaker_failure_ratio"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
}

// Cache backends.
const (
	BackendDisk     = "disk"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	Backend   string   `toml:"backend"`
	Dir       string   `toml:"dir"`
	TTLGamma  duration `toml:"ttl_gamma"`
	TTLData   duration `toml:"ttl_data"`
	PruneCron string   `toml:"prune_cron"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// AnalysisConfig holds the scoring thresholds and scan limits.
type AnalysisConfig struct {
	MinProfit           float64 `toml:"min_profit"`
	HoldersLimit        int     `toml:"holders_limit"`
	MinBalance          float64 `toml:"min_balance"`
	Concurrency         int     `toml:"concurrency"`
	MaxClosed           int     `toml:"max_closed"`
	ClosedPageSize      int     `toml:"closed_page_size"`
	ConsensusThreshold  float64 `toml:"consensus_threshold"`
	WhaleThreshold      float64 `toml:"whale_threshold"`
	MinQualifiedWallets int     `toml:"min_qualified_wallets"`
}

// ServerConfig holds serve-mode HTTP parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
	RequestTimeout duration `toml:"request_timeout"`
}

// NotifyConfig configures chat alerts for finished analyses.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPI       string   `toml:"telegram_api"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinConfidence     int      `toml:"min_confidence"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
		},
		Transport: TransportConfig{
			Timeout:         duration{30 * time.Second},
			UserAgent:       "polysignal/1.0",
			RPS:             10,
			Burst:           10,
			MaxAttempts:     6,
			BaseDelay:       duration{700 * time.Millisecond},
			MaxDelay:        duration{6 * time.Second},
			BreakerFailures: 5,
			BreakerRatio:    0.5,
			BreakerCooldown: duration{30 * time.Second},
		},
		Cache: CacheConfig{
			Backend:   BackendDisk,
			Dir:       "~/.polysignal-cache",
			TTLGamma:  duration{6 * time.Hour},
			TTLData:   duration{5 * time.Minute},
			PruneCron: "@hourly",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "polysignal:cache:",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Analysis: AnalysisConfig{
			MinProfit:           5000,
			HoldersLimit:        20,
			MinBalance:          1,
			Concurrency:         8,
			MaxClosed:           500,
			ClosedPageSize:      50,
			ConsensusThreshold:  0.62,
			WhaleThreshold:      0.60,
			MinQualifiedWallets: 5,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS:   2,
			RateLimitBurst: 5,
			RequestTimeout: duration{2 * time.Minute},
		},
		Notify: NotifyConfig{
			Events:        []string{"buy"},
			MinConfidence: 5,
		},
		LogLevel: "warn",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	BackendDisk:     true,
	BackendRedis:    true,
	BackendPostgres: true,
	BackendNone:     true,
}

var validNotifyEvents = map[string]bool{
	"buy":      true,
	"stay_out": true,
	"error":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}

	// Transport
	if c.Transport.MaxAttempts < 1 {
		errs = append(errs, "transport: max_attempts must be >= 1")
	}
	if c.Transport.RPS < 0 {
		errs = append(errs, "transport: rps must be >= 0")
	}
	if c.Transport.BreakerRatio <= 0 || c.Transport.BreakerRatio > 1 {
		errs = append(errs, "transport: breaker_failure_ratio must be in (0, 1]")
	}
	if c.Transport.MaxDelay.Duration < c.Transport.BaseDelay.Duration {
		errs = append(errs, "transport: max_delay must not be below base_delay")
	}

	// Cache
	if !validBackends[c.Cache.Backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: disk, redis, postgres, none)", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendDisk && strings.TrimSpace(c.Cache.Dir) == "" {
		errs = append(errs, "cache: dir must not be empty for the disk backend")
	}
	if c.Cache.PruneCron != "" {
		if _, err := cron.ParseStandard(c.Cache.PruneCron); err != nil {
			errs = append(errs, fmt.Sprintf("cache: invalid prune_cron %q: %v", c.Cache.PruneCron, err))
		}
	}

	// Redis
	if c.Cache.Backend == BackendRedis {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Cache.Backend == BackendPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Analysis
	a := c.Analysis
	if a.HoldersLimit < 1 || a.HoldersLimit > 20 {
		errs = append(errs, fmt.Sprintf("analysis: holders_limit must be 1-20, got %d", a.HoldersLimit))
	}
	if a.Concurrency < 1 {
		errs = append(errs, "analysis: concurrency must be >= 1")
	}
	if a.MaxClosed < 0 {
		errs = append(errs, "analysis: max_closed must be >= 0")
	}
	if a.ClosedPageSize < 1 || a.ClosedPageSize > 50 {
		errs = append(errs, fmt.Sprintf("analysis: closed_page_size must be 1-50, got %d", a.ClosedPageSize))
	}
	if a.MinQualifiedWallets < 0 {
		errs = append(errs, "analysis: min_qualified_wallets must be >= 0")
	}
	if a.ConsensusThreshold <= 0 || a.ConsensusThreshold > 1 {
		errs = append(errs, "analysis: consensus_threshold must be in (0, 1]")
	}
	if a.WhaleThreshold <= 0 || a.WhaleThreshold > 1 {
		errs = append(errs, "analysis: whale_threshold must be in (0, 1]")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server: rate_limit_rps must be >= 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[strings.ToLower(strings.TrimSpace(e))] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: buy, stay_out, error)", e))
		}
	}
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 10 {
		errs = append(errs, "notify: min_confidence must be 0-10")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
