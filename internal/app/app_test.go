package app

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/config"
	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/vesting"
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Pool.Token = "0x1000000000000000000000000000000000000001"
	cfg.Pool.Address = "0x2000000000000000000000000000000000000002"
	cfg.Pool.Admin = "0xa000000000000000000000000000000000000000"
	cfg.Pool.LockDays = 10
	cfg.Store.Backend = "memory"
	cfg.Redis.Enabled = false
	cfg.Mode = "snapshot"
	return &cfg
}

func TestWireMemoryBackend(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	clock := vesting.NewManualClock(1_700_000_000)

	deps, cleanup, err := Wire(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clock))
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Postgres)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Snapshotter)
	assert.Nil(t, deps.Relay)
	assert.False(t, deps.Notifier.Enabled())

	pc, err := deps.Ledger.PoolConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10*domain.SecondsPerDay, pc.LockDuration)
	assert.Equal(t, cfg.Pool.AdminAddress(), pc.Administrator)

	now, err := deps.Ledger.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_000), now)
}

func TestWireRejectsOversizedDurations(t *testing.T) {
	cfg := memoryConfig()
	cfg.Pool.LockDays = math.MaxUint64/domain.SecondsPerDay + 1

	_, _, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
}

func TestModesRequireBackends(t *testing.T) {
	ctx := context.Background()
	a := New(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	deps, err := a.Wire(ctx)
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorContains(t, a.SnapshotMode(ctx, deps), "s3 is not enabled")
	assert.ErrorContains(t, a.RelayMode(ctx, deps), "redis is not enabled")
}

func TestFullModeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := New(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	deps, err := a.Wire(ctx)
	require.NoError(t, err)
	defer a.Close()

	cancel()
	assert.NoError(t, a.FullMode(ctx, deps))
}
