// Package config defines the top-level configuration for the lino trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by LINO_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Solana   SolanaConfig   `toml:"solana"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Risk     RiskConfig     `toml:"risk"`
	Trader   TraderConfig   `toml:"trader"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the Solana wallet credential sources. Exactly one of
// KeypairPath or EncryptedKeyPath must be set for trading modes.
type WalletConfig struct {
	KeypairPath      string `toml:"keypair_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SolanaConfig holds RPC endpoints and commitment parameters.
type SolanaConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	Commitment     string   `toml:"commitment"`
	RequestTimeout duration `toml:"request_timeout"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
}

// JupiterConfig holds the swap aggregator endpoints and trade parameters.
type JupiterConfig struct {
	BaseURL     string   `toml:"base_url"`
	PriceURL    string   `toml:"price_url"`
	APIKey      string   `toml:"api_key"`
	SlippageBps int      `toml:"slippage_bps"`
	HTTPTimeout duration `toml:"http_timeout"`
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
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for audit exports.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds every exit-rule threshold. The source trees this bot
// descends from never converged on canonical values, so nothing here is a
// constant; the defaults come from the most complete variant.
type EngineConfig struct {
	Interval duration `toml:"interval"` // delay between passes

	TP1Pct  float64 `toml:"tp1_pct"`  // pnl threshold for tier 1, e.g. 0.30
	TP1Size float64 `toml:"tp1_size"` // fraction of qty sold at tier 1
	TP2Pct  float64 `toml:"tp2_pct"`
	TP2Size float64 `toml:"tp2_size"`

	HardSLPct float64 `toml:"hard_sl_pct"` // negative, e.g. -0.25

	TrailTight float64 `toml:"trail_tight"` // retracement before tp2
	TrailWide  float64 `toml:"trail_wide"`  // retracement once tp2 is done

	TimeStop       duration `toml:"time_stop"`
	TimeStopMinPnl float64  `toml:"time_stop_min_pnl"`

	RateLimitCooldown duration `toml:"rate_limit_cooldown"`
	InsufFundsCooldown duration `toml:"insufficient_funds_cooldown"`
	RouteFailCooldown duration `toml:"route_fail_cooldown"`
}

// RiskConfig holds the anti-rug gate thresholds and blacklist TTLs.
type RiskConfig struct {
	MaxTop1Pct          float64  `toml:"max_top1_pct"`
	MaxTop10Pct         float64  `toml:"max_top10_pct"`
	RequireRenounced    bool     `toml:"require_renounced"`
	BlockToken2022      bool     `toml:"block_token_2022"`
	FallbackMaxAccounts int      `toml:"fallback_max_accounts"`
	MinLiquidityUSD     float64  `toml:"min_liquidity_usd"`
	MinMarketCapUSD     float64  `toml:"min_market_cap_usd"`
	TransientBlacklist  duration `toml:"transient_blacklist_ttl"`
	StructuralBlacklist duration `toml:"structural_blacklist_ttl"`
}

// TraderConfig holds buy pipeline parameters.
type TraderConfig struct {
	BuySizeSOL   float64 `toml:"buy_size_sol"`
	MaxPositions int     `toml:"max_positions"`
	MinSolFees   float64 `toml:"min_sol_fees"` // skip buys below this SOL reserve
}

// FeedConfig holds the token discovery feed endpoint.
type FeedConfig struct {
	WSURL string `toml:"ws_url"`
}

// ArchiveConfig holds the S3 audit export schedule.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// duration wraps time.Duration so TOML values like "45m" parse naturally.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) duration { return duration{Duration: d} }

// Defaults returns the built-in configuration. Exit thresholds mirror the
// most complete tuning the strategy ever ran with; everything is
// overridable per deployment.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:         "https://api.mainnet-beta.solana.com",
			Commitment:     "processed",
			RequestTimeout: dur(20 * time.Second),
			ConfirmTimeout: dur(35 * time.Second),
		},
		Jupiter: JupiterConfig{
			BaseURL:     "https://lite-api.jup.ag",
			PriceURL:    "https://lite-api.jup.ag/price/v2",
			SlippageBps: 300,
			HTTPTimeout: dur(30 * time.Second),
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "lino",
			User:          "lino",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Engine: EngineConfig{
			Interval:           dur(2 * time.Second),
			TP1Pct:             0.30,
			TP1Size:            0.35,
			TP2Pct:             0.80,
			TP2Size:            0.35,
			HardSLPct:          -0.25,
			TrailTight:         0.10,
			TrailWide:          0.20,
			TimeStop:           dur(15 * time.Minute),
			TimeStopMinPnl:     0.05,
			RateLimitCooldown:  dur(90 * time.Second),
			InsufFundsCooldown: dur(90 * time.Second),
			RouteFailCooldown:  dur(45 * time.Minute),
		},
		Risk: RiskConfig{
			MaxTop1Pct:          0.25,
			MaxTop10Pct:         0.60,
			RequireRenounced:    true,
			BlockToken2022:      true,
			FallbackMaxAccounts: 5000,
			MinLiquidityUSD:     150_000,
			MinMarketCapUSD:     0,
			TransientBlacklist:  dur(15 * time.Minute),
			StructuralBlacklist: dur(24 * time.Hour),
		},
		Trader: TraderConfig{
			BuySizeSOL:   0.05,
			MaxPositions: 5,
			MinSolFees:   0.02,
		},
		Feed: FeedConfig{
			WSURL: "wss://pumpportal.fun/api/data",
		},
		Archive: ArchiveConfig{
			Interval: dur(1 * time.Hour),
			Prefix:   "lino",
		},
		Mode:     "sell",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"sell":  true, // exit engine only
	"trade": true, // feed + buy pipeline + exit engine
	"full":  true, // trade + archiver
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns a
// combined error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sell, trade, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.KeypairPath == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either keypair_path or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}
	if c.Jupiter.SlippageBps <= 0 || c.Jupiter.SlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("jupiter: slippage_bps must be 1-10000, got %d", c.Jupiter.SlippageBps))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
	}

	if c.Engine.HardSLPct >= 0 {
		errs = append(errs, fmt.Sprintf("engine: hard_sl_pct must be negative, got %v", c.Engine.HardSLPct))
	}
	if c.Engine.TP1Pct <= 0 || c.Engine.TP2Pct <= c.Engine.TP1Pct {
		errs = append(errs, "engine: need 0 < tp1_pct < tp2_pct")
	}
	if c.Engine.TP1Size <= 0 || c.Engine.TP1Size >= 1 || c.Engine.TP2Size <= 0 || c.Engine.TP2Size >= 1 {
		errs = append(errs, "engine: tp1_size and tp2_size must be in (0, 1)")
	}
	if c.Engine.TrailTight <= 0 || c.Engine.TrailTight >= 1 || c.Engine.TrailWide <= 0 || c.Engine.TrailWide >= 1 {
		errs = append(errs, "engine: trail_tight and trail_wide must be in (0, 1)")
	}
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be positive")
	}

	if c.Risk.MaxTop1Pct <= 0 || c.Risk.MaxTop1Pct > 1 || c.Risk.MaxTop10Pct <= 0 || c.Risk.MaxTop10Pct > 1 {
		errs = append(errs, "risk: max_top1_pct and max_top10_pct must be in (0, 1]")
	}
	if c.Risk.FallbackMaxAccounts < 1 {
		errs = append(errs, "risk: fallback_max_accounts must be >= 1")
	}

	mode := strings.ToLower(c.Mode)
	if mode == "trade" || mode == "full" {
		if c.Trader.BuySizeSOL <= 0 {
			errs = append(errs, "trader: buy_size_sol must be > 0 for trading modes")
		}
		if c.Trader.MaxPositions < 1 {
			errs = append(errs, "trader: max_positions must be >= 1")
		}
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed: ws_url must not be empty for trading modes")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
