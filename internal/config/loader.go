package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultFileName is looked up in the user's home directory.
const DefaultFileName = ".polysignal.toml"

// DefaultPath returns ~/.polysignal.toml, or "" when there is no home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads the TOML configuration at path, merges it on top of the built-in
// defaults and applies POLYSIGNAL_* environment variable overrides. An empty
// path means DefaultPath, which may be absent. An explicit path must exist.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Cache.Dir = ExpandHome(cfg.Cache.Dir)

	return &cfg, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// applyEnvOverrides reads well-known POLYSIGNAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYSIGNAL_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYSIGNAL_POLYMARKET_DATA_HOST")

	// ── Transport ──
	setDuration(&cfg.Transport.Timeout, "POLYSIGNAL_TRANSPORT_TIMEOUT")
	setStr(&cfg.Transport.UserAgent, "POLYSIGNAL_TRANSPORT_USER_AGENT")
	setFloat64(&cfg.Transport.RPS, "POLYSIGNAL_TRANSPORT_RPS")
	setInt(&cfg.Transport.Burst, "POLYSIGNAL_TRANSPORT_BURST")
	setInt(&cfg.Transport.MaxAttempts, "POLYSIGNAL_TRANSPORT_MAX_ATTEMPTS")
	setDuration(&cfg.Transport.BaseDelay, "POLYSIGNAL_TRANSPORT_BASE_DELAY")
	setDuration(&cfg.Transport.MaxDelay, "POLYSIGNAL_TRANSPORT_MAX_DELAY")
	setInt(&cfg.Transport.BreakerFailures, "POLYSIGNAL_TRANSPORT_BREAKER_FAILURES")
	setFloat64(&cfg.Transport.BreakerRatio, "POLYSIGNAL_TRANSPORT_BREAKER_FAILURE_RATIO")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "POLYSIGNAL_CACHE_BACKEND")
	setStr(&cfg.Cache.Dir, "POLYSIGNAL_CACHE_DIR")
	setDuration(&cfg.Cache.TTLGamma, "POLYSIGNAL_CACHE_TTL_GAMMA")
	setDuration(&cfg.Cache.TTLData, "POLYSIGNAL_CACHE_TTL_DATA")
	setStr(&cfg.Cache.PruneCron, "POLYSIGNAL_CACHE_PRUNE_CRON")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYSIGNAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSIGNAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSIGNAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYSIGNAL_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "POLYSIGNAL_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYSIGNAL_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYSIGNAL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYSIGNAL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYSIGNAL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYSIGNAL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYSIGNAL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYSIGNAL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYSIGNAL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYSIGNAL_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYSIGNAL_POSTGRES_RUN_MIGRATIONS")

	// ── Analysis ──
	setFloat64(&cfg.Analysis.MinProfit, "POLYSIGNAL_ANALYSIS_MIN_PROFIT")
	setInt(&cfg.Analysis.HoldersLimit, "POLYSIGNAL_ANALYSIS_HOLDERS_LIMIT")
	setFloat64(&cfg.Analysis.MinBalance, "POLYSIGNAL_ANALYSIS_MIN_BALANCE")
	setInt(&cfg.Analysis.Concurrency, "POLYSIGNAL_ANALYSIS_CONCURRENCY")
	setInt(&cfg.Analysis.MaxClosed, "POLYSIGNAL_ANALYSIS_MAX_CLOSED")
	setFloat64(&cfg.Analysis.ConsensusThreshold, "POLYSIGNAL_ANALYSIS_CONSENSUS_THRESHOLD")
	setFloat64(&cfg.Analysis.WhaleThreshold, "POLYSIGNAL_ANALYSIS_WHALE_THRESHOLD")
	setInt(&cfg.Analysis.MinQualifiedWallets, "POLYSIGNAL_ANALYSIS_MIN_QUALIFIED_WALLETS")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYSIGNAL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYSIGNAL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYSIGNAL_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "POLYSIGNAL_SERVER_RATE_LIMIT_RPS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSIGNAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSIGNAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSIGNAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYSIGNAL_NOTIFY_EVENTS")
	setInt(&cfg.Notify.MinConfidence, "POLYSIGNAL_NOTIFY_MIN_CONFIDENCE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYSIGNAL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
