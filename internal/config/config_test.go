package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken = "0x1000000000000000000000000000000000000001"
	testPool  = "0x2000000000000000000000000000000000000002"
	testAdmin = "0xa000000000000000000000000000000000000000"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Pool.Token = testToken
	cfg.Pool.Address = testPool
	cfg.Pool.Admin = testAdmin
	return cfg
}

func TestDefaultsNeedOnlyPoolIdentity(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool: token must not be empty")

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Pool.Admin = "0x0000000000000000000000000000000000000000"
	cfg.Pool.InitialUnlockRateBps = 10_001
	cfg.Store.Backend = "sqlite"
	cfg.Chain.UseBlockTime = true
	cfg.Snapshot.Sign = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"pool: admin must not be the zero address",
		"initial_unlock_rate_bps must be <= 10000",
		`unknown backend "sqlite"`,
		"rpc_url is required",
		"snapshot.sign is enabled",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateRejectsOversizedDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.LockDays = math.MaxUint64/86_400 + 1
	cfg.Pool.LinearDays = 1<<32 + 1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool: lock_days must be <= 4294967296")
	assert.Contains(t, err.Error(), "pool: linear_days must be <= 4294967296")

	cfg = validConfig()
	cfg.Pool.LockDays = 1 << 32
	cfg.Pool.LinearDays = 1 << 32
	assert.NoError(t, cfg.Validate())
}

func TestValidateModeDependencies(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "snapshot"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: must be enabled for mode snapshot")

	cfg.S3.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "relay"
	cfg.Redis.Enabled = false
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: must be enabled for mode relay")
}

func TestValidateMemoryBackendSkipsPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = "memory"
	cfg.Postgres.Host = ""
	cfg.Postgres.PoolMaxConns = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakevest.toml")
	body := `
mode = "relay"

[pool]
token = "` + testToken + `"
address = "` + testPool + `"
admin = "` + testAdmin + `"
lock_days = 30

[redis]
rate_window = "15s"

[snapshot]
interval = "10m"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("STAKEVEST_POOL_BONUS_RATE_BPS", "2500")
	t.Setenv("STAKEVEST_REDIS_KEY_PREFIX", "test")
	t.Setenv("STAKEVEST_NOTIFY_EVENTS", "claimed, stake_closed,")
	t.Setenv("STAKEVEST_CHAIN_CHAIN_ID", "31337")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "relay", cfg.Mode)
	assert.Equal(t, uint64(30), cfg.Pool.LockDays)
	assert.Equal(t, uint64(270), cfg.Pool.LinearDays)
	assert.Equal(t, uint64(2500), cfg.Pool.BonusRateBps)
	assert.Equal(t, 15*time.Second, cfg.Redis.RateWindow.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Snapshot.Interval.Duration)
	assert.Equal(t, "test", cfg.Redis.KeyPrefix)
	assert.Equal(t, []string{"claimed", "stake_closed"}, cfg.Notify.Events)
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, common.HexToAddress(testAdmin), cfg.Pool.AdminAddress())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[snapshot]\ninterval = \"soon\"\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Chain.RPCURL = "https://eth.example/v3/secret"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Chain.RPCURL)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Wallet.KeyPassword)
	assert.Equal(t, testPool, out.Pool.Address)

	out.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
