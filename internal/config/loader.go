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
// built-in defaults, applies STAKEVEST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STAKEVEST_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Pool ──
	setStr(&cfg.Pool.Token, "STAKEVEST_POOL_TOKEN")
	setStr(&cfg.Pool.Address, "STAKEVEST_POOL_ADDRESS")
	setStr(&cfg.Pool.Admin, "STAKEVEST_POOL_ADMIN")
	setUint64(&cfg.Pool.BonusRateBps, "STAKEVEST_POOL_BONUS_RATE_BPS")
	setUint64(&cfg.Pool.LockDays, "STAKEVEST_POOL_LOCK_DAYS")
	setUint64(&cfg.Pool.LinearDays, "STAKEVEST_POOL_LINEAR_DAYS")
	setUint64(&cfg.Pool.InitialUnlockRateBps, "STAKEVEST_POOL_INITIAL_UNLOCK_RATE_BPS")
	setUint64(&cfg.Pool.WithdrawFeeRateBps, "STAKEVEST_POOL_WITHDRAW_FEE_RATE_BPS")
	setUint64(&cfg.Pool.StakeIDBase, "STAKEVEST_POOL_STAKE_ID_BASE")

	// ── Store ──
	setStr(&cfg.Store.Backend, "STAKEVEST_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKEVEST_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "STAKEVEST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKEVEST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKEVEST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKEVEST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKEVEST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKEVEST_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKEVEST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKEVEST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STAKEVEST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STAKEVEST_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STAKEVEST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEVEST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEVEST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEVEST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEVEST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEVEST_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "STAKEVEST_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "STAKEVEST_REDIS_LOCK_TTL")
	setInt(&cfg.Redis.RateLimit, "STAKEVEST_REDIS_RATE_LIMIT")
	setDuration(&cfg.Redis.RateWindow, "STAKEVEST_REDIS_RATE_WINDOW")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STAKEVEST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STAKEVEST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEVEST_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEVEST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEVEST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEVEST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEVEST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEVEST_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "STAKEVEST_S3_PREFIX")

	// ── Chain ──
	setBool(&cfg.Chain.UseBlockTime, "STAKEVEST_CHAIN_USE_BLOCK_TIME")
	setStr(&cfg.Chain.RPCURL, "STAKEVEST_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "STAKEVEST_CHAIN_CHAIN_ID")
	setDuration(&cfg.Chain.MaxBlockAge, "STAKEVEST_CHAIN_MAX_BLOCK_AGE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "STAKEVEST_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STAKEVEST_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STAKEVEST_WALLET_KEY_PASSWORD")

	// ── Snapshot ──
	setDuration(&cfg.Snapshot.Interval, "STAKEVEST_SNAPSHOT_INTERVAL")
	setInt(&cfg.Snapshot.Retain, "STAKEVEST_SNAPSHOT_RETAIN")
	setBool(&cfg.Snapshot.Sign, "STAKEVEST_SNAPSHOT_SIGN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKEVEST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKEVEST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKEVEST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKEVEST_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEVEST_MODE")
	setStr(&cfg.LogLevel, "STAKEVEST_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
