package vesting

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

const day = domain.SecondsPerDay

func tokens(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := domain.ParseUnits(s, domain.TokenDecimals)
	require.NoError(t, err)
	return v
}

func sampleStake(t *testing.T) domain.Stake {
	t.Helper()
	total, err := TotalReward(tokens(t, "1000"), 5000)
	require.NoError(t, err)
	return domain.Stake{
		ID:                   8888,
		Principal:            tokens(t, "1000"),
		TotalReward:          total,
		StartTime:            1_700_000_000,
		ClaimedAmount:        new(uint256.Int),
		LockDuration:         88 * day,
		LinearDuration:       270 * day,
		InitialUnlockRateBps: 1000,
	}
}

func TestTotalReward(t *testing.T) {
	total, err := TotalReward(tokens(t, "1000"), 5000)
	require.NoError(t, err)
	assert.Equal(t, tokens(t, "1500"), total)

	total, err = TotalReward(uint256.NewInt(3), 3333)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total.Uint64(), "bonus rounds down")

	huge := new(uint256.Int).SetAllOne()
	_, err = TotalReward(huge, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestVestedSchedule(t *testing.T) {
	s := sampleStake(t)
	lockEnd := s.LockEnd()

	tests := []struct {
		name string
		now  uint64
		want string
	}{
		{"at start", s.StartTime, "0"},
		{"one second before lock end", lockEnd - 1, "0"},
		{"at lock end", lockEnd, "150"},
		{"half way through linear", lockEnd + 135*day, "825"},
		{"at vest end", s.VestEnd(), "1500"},
		{"long after vest end", s.VestEnd() + 1000*day, "1500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tokens(t, tt.want), Vested(s, tt.now))
		})
	}
}

func TestVestedIsMonotonic(t *testing.T) {
	s := sampleStake(t)
	prev := new(uint256.Int)
	for now := s.StartTime; now <= s.VestEnd()+day; now += 7 * day {
		v := Vested(s, now)
		assert.False(t, v.Lt(prev), "vested decreased at %d", now)
		assert.False(t, v.Gt(s.TotalReward))
		prev = v
	}
}

func TestVestedEdgeDurations(t *testing.T) {
	s := sampleStake(t)
	s.LinearDuration = 0
	assert.Equal(t, s.TotalReward, Vested(s, s.LockEnd()), "zero linear duration vests everything at lock end")

	s = sampleStake(t)
	s.LockDuration = 0
	assert.Equal(t, tokens(t, "150"), Vested(s, s.StartTime), "zero lock unlocks the initial tranche immediately")

	s = sampleStake(t)
	s.InitialUnlockRateBps = domain.BasisPoints
	assert.Equal(t, s.TotalReward, Vested(s, s.LockEnd()))

	s = sampleStake(t)
	s.StartTime = math.MaxUint64 - 10
	assert.True(t, Vested(s, math.MaxUint64-1).IsZero(), "saturated lock end stays locked")
}

func TestPending(t *testing.T) {
	s := sampleStake(t)
	now := s.LockEnd() + 135*day

	assert.Equal(t, tokens(t, "825"), Pending(s, now))

	s.ClaimedAmount = tokens(t, "150")
	assert.Equal(t, tokens(t, "675"), Pending(s, now))

	s.ClaimedAmount = tokens(t, "900")
	assert.True(t, Pending(s, now).IsZero(), "clamped at zero")

	s.ClaimedAmount = new(uint256.Int)
	s.Closed = true
	assert.True(t, Pending(s, now).IsZero())
}

func TestProgress(t *testing.T) {
	s := sampleStake(t)

	p := Progress(s, s.StartTime)
	assert.Equal(t, uint64(0), p.ProgressBps)
	assert.Equal(t, s.LockEnd(), p.NextRelease)

	p = Progress(s, s.LockEnd()+135*day)
	assert.Equal(t, uint64(5500), p.ProgressBps)
	assert.Equal(t, s.VestEnd(), p.NextRelease)

	p = Progress(s, s.VestEnd())
	assert.Equal(t, domain.BasisPoints, p.ProgressBps)
	assert.Zero(t, p.NextRelease)

	s.Closed = true
	p = Progress(s, s.StartTime)
	assert.Zero(t, p.NextRelease)
}

func TestWithdrawFee(t *testing.T) {
	fee, net := WithdrawFee(uint256.NewInt(1000), 250)
	assert.Equal(t, uint64(25), fee.Uint64())
	assert.Equal(t, uint64(975), net.Uint64())

	fee, net = WithdrawFee(uint256.NewInt(1000), 0)
	assert.True(t, fee.IsZero())
	assert.Equal(t, uint64(1000), net.Uint64())
}
