// Package config defines the top-level configuration for the stakevest ledger
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STAKEVEST_* environment variables.
type Config struct {
	Pool     PoolConfig     `toml:"pool"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PoolConfig identifies the pool and seeds its configuration the first time
// the ledger store is initialised. Later changes go through updateConfig.
type PoolConfig struct {
	Token                string `toml:"token"`
	Address              string `toml:"address"`
	Admin                string `toml:"admin"`
	BonusRateBps         uint64 `toml:"bonus_rate_bps"`
	LockDays             uint64 `toml:"lock_days"`
	LinearDays           uint64 `toml:"linear_days"`
	InitialUnlockRateBps uint64 `toml:"initial_unlock_rate_bps"`
	WithdrawFeeRateBps   uint64 `toml:"withdraw_fee_rate_bps"`
	// StakeIDBase is the id of the first stake.
	StakeIDBase uint64 `toml:"stake_id_base"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `toml:"backend"`
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

// RedisConfig holds Redis connection parameters. Redis backs the per-stake
// locks, the event bus and the rate limiter; all three are skipped when it is
// disabled.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LockTTL    duration `toml:"lock_ttl"`
	// RateLimit is the number of stake/claim calls one caller may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ChainConfig configures the optional block-time oracle.
type ChainConfig struct {
	// UseBlockTime makes the ledger read time from the latest block header
	// instead of the system clock.
	UseBlockTime bool     `toml:"use_block_time"`
	RPCURL       string   `toml:"rpc_url"`
	ChainID      int64    `toml:"chain_id"`
	MaxBlockAge  duration `toml:"max_block_age"`
}

// WalletConfig holds the key used to sign snapshot attestations.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SnapshotConfig controls periodic ledger snapshots.
type SnapshotConfig struct {
	Interval duration `toml:"interval"`
	// Retain is how many snapshots Prune keeps. Zero keeps everything.
	Retain int  `toml:"retain"`
	Sign   bool `toml:"sign"`
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Pool: PoolConfig{
			BonusRateBps:         5000,
			LockDays:             88,
			LinearDays:           270,
			InitialUnlockRateBps: 1000,
			WithdrawFeeRateBps:   0,
			StakeIDBase:          8888,
		},
		Store: StoreConfig{
			Backend: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stakevest",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "stakevest",
			LockTTL:    duration{30 * time.Second},
			RateLimit:  30,
			RateWindow: duration{time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stakevest-snapshots",
			ForcePathStyle: true,
		},
		Chain: ChainConfig{
			ChainID:     1,
			MaxBlockAge: duration{10 * time.Minute},
		},
		Snapshot: SnapshotConfig{
			Interval: duration{time.Hour},
			Retain:   48,
		},
		Notify: NotifyConfig{
			Events: []string{"stake_created", "admin_stake_created", "claimed", "stake_closed", "config_updated", "fee_rate_updated", "admin_transferred", "emergency_withdraw"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"snapshot": true,
	"relay":    true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snapshot, relay, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Pool
	errs = append(errs, checkAddress("pool: token", c.Pool.Token)...)
	errs = append(errs, checkAddress("pool: address", c.Pool.Address)...)
	errs = append(errs, checkAddress("pool: admin", c.Pool.Admin)...)
	if c.Pool.LockDays > domain.MaxDurationDays {
		errs = append(errs, fmt.Sprintf("pool: lock_days must be <= %d, got %d", domain.MaxDurationDays, c.Pool.LockDays))
	}
	if c.Pool.LinearDays > domain.MaxDurationDays {
		errs = append(errs, fmt.Sprintf("pool: linear_days must be <= %d, got %d", domain.MaxDurationDays, c.Pool.LinearDays))
	}
	if c.Pool.InitialUnlockRateBps > 10_000 {
		errs = append(errs, fmt.Sprintf("pool: initial_unlock_rate_bps must be <= 10000, got %d", c.Pool.InitialUnlockRateBps))
	}
	if c.Pool.WithdrawFeeRateBps > 10_000 {
		errs = append(errs, fmt.Sprintf("pool: withdraw_fee_rate_bps must be <= 10000, got %d", c.Pool.WithdrawFeeRateBps))
	}

	// Store
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, memory)", c.Store.Backend))
	}
	if strings.EqualFold(c.Store.Backend, "postgres") {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.RateLimit < 0 {
			errs = append(errs, "redis: rate_limit must be >= 0")
		}
		if c.Redis.RateLimit > 0 && c.Redis.RateWindow.Duration <= 0 {
			errs = append(errs, "redis: rate_window must be > 0 when rate_limit is set")
		}
	}
	if !c.Redis.Enabled && (c.Mode == "relay" || c.Mode == "full") {
		errs = append(errs, "redis: must be enabled for mode "+c.Mode)
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if !c.S3.Enabled && c.Mode == "snapshot" {
		errs = append(errs, "s3: must be enabled for mode snapshot")
	}

	// Chain
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.UseBlockTime && c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url is required when use_block_time is set")
	}

	// Snapshot
	if c.Snapshot.Interval.Duration <= 0 {
		errs = append(errs, "snapshot: interval must be > 0")
	}
	if c.Snapshot.Retain < 0 {
		errs = append(errs, "snapshot: retain must be >= 0")
	}
	if c.Snapshot.Sign {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set when snapshot.sign is enabled")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkAddress(field, v string) []string {
	if v == "" {
		return []string{field + " must not be empty"}
	}
	if !common.IsHexAddress(v) {
		return []string{fmt.Sprintf("%s: %q is not a hex address", field, v)}
	}
	if common.HexToAddress(v) == (common.Address{}) {
		return []string{field + " must not be the zero address"}
	}
	return nil
}

// TokenAddress returns the parsed staking token address.
func (p PoolConfig) TokenAddress() common.Address { return common.HexToAddress(p.Token) }

// PoolAddress returns the parsed pool identity.
func (p PoolConfig) PoolAddress() common.Address { return common.HexToAddress(p.Address) }

// AdminAddress returns the parsed genesis administrator.
func (p PoolConfig) AdminAddress() common.Address { return common.HexToAddress(p.Admin) }
