package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LINO_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LINO_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.KeypairPath, "LINO_WALLET_KEYPAIR_PATH")
	setStr(&cfg.Wallet.KeypairPath, "KEYPAIR_PATH") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "LINO_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "LINO_WALLET_KEY_PASSWORD")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "LINO_SOLANA_RPC_URL")
	setStr(&cfg.Solana.RPCURL, "SOLANA_RPC_URL") // compatibility alias
	setStr(&cfg.Solana.Commitment, "LINO_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.RequestTimeout, "LINO_SOLANA_REQUEST_TIMEOUT")
	setDuration(&cfg.Solana.ConfirmTimeout, "LINO_SOLANA_CONFIRM_TIMEOUT")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.BaseURL, "LINO_JUPITER_BASE_URL")
	setStr(&cfg.Jupiter.PriceURL, "LINO_JUPITER_PRICE_URL")
	setStr(&cfg.Jupiter.APIKey, "LINO_JUPITER_API_KEY")
	setInt(&cfg.Jupiter.SlippageBps, "LINO_JUPITER_SLIPPAGE_BPS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LINO_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LINO_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LINO_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LINO_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LINO_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LINO_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LINO_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LINO_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LINO_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LINO_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LINO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LINO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LINO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LINO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LINO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LINO_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LINO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LINO_S3_REGION")
	setStr(&cfg.S3.Bucket, "LINO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LINO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LINO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LINO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LINO_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "LINO_ENGINE_INTERVAL")
	setFloat64(&cfg.Engine.TP1Pct, "LINO_ENGINE_TP1_PCT")
	setFloat64(&cfg.Engine.TP1Size, "LINO_ENGINE_TP1_SIZE")
	setFloat64(&cfg.Engine.TP2Pct, "LINO_ENGINE_TP2_PCT")
	setFloat64(&cfg.Engine.TP2Size, "LINO_ENGINE_TP2_SIZE")
	setFloat64(&cfg.Engine.HardSLPct, "LINO_ENGINE_HARD_SL_PCT")
	setFloat64(&cfg.Engine.TrailTight, "LINO_ENGINE_TRAIL_TIGHT")
	setFloat64(&cfg.Engine.TrailWide, "LINO_ENGINE_TRAIL_WIDE")
	setDuration(&cfg.Engine.TimeStop, "LINO_ENGINE_TIME_STOP")
	setFloat64(&cfg.Engine.TimeStopMinPnl, "LINO_ENGINE_TIME_STOP_MIN_PNL")
	setDuration(&cfg.Engine.RateLimitCooldown, "LINO_ENGINE_RATE_LIMIT_COOLDOWN")
	setDuration(&cfg.Engine.InsufFundsCooldown, "LINO_ENGINE_INSUFFICIENT_FUNDS_COOLDOWN")
	setDuration(&cfg.Engine.RouteFailCooldown, "LINO_ENGINE_ROUTE_FAIL_COOLDOWN")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTop1Pct, "LINO_RISK_MAX_TOP1_PCT")
	setFloat64(&cfg.Risk.MaxTop10Pct, "LINO_RISK_MAX_TOP10_PCT")
	setBool(&cfg.Risk.RequireRenounced, "LINO_RISK_REQUIRE_RENOUNCED")
	setBool(&cfg.Risk.BlockToken2022, "LINO_RISK_BLOCK_TOKEN_2022")
	setInt(&cfg.Risk.FallbackMaxAccounts, "LINO_RISK_FALLBACK_MAX_ACCOUNTS")
	setFloat64(&cfg.Risk.MinLiquidityUSD, "LINO_RISK_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Risk.MinMarketCapUSD, "LINO_RISK_MIN_MARKET_CAP_USD")
	setDuration(&cfg.Risk.TransientBlacklist, "LINO_RISK_TRANSIENT_BLACKLIST_TTL")
	setDuration(&cfg.Risk.StructuralBlacklist, "LINO_RISK_STRUCTURAL_BLACKLIST_TTL")

	// ── Trader ──
	setFloat64(&cfg.Trader.BuySizeSOL, "LINO_TRADER_BUY_SIZE_SOL")
	setInt(&cfg.Trader.MaxPositions, "LINO_TRADER_MAX_POSITIONS")
	setFloat64(&cfg.Trader.MinSolFees, "LINO_TRADER_MIN_SOL_FEES")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "LINO_FEED_WS_URL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LINO_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "LINO_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "LINO_ARCHIVE_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LINO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LINO_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "LINO_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LINO_MODE")
	setStr(&cfg.LogLevel, "LINO_LOG_LEVEL")
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
