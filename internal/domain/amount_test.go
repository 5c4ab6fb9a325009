package domain

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1000", "1000000000000000000000"},
		{"0.25", "250000000000000000"},
		{".5", "500000000000000000"},
		{"0", "0"},
		{" 7.000000000000000001 ", "7000000000000000001"},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, TokenDecimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.Dec(), tt.in)
	}

	for _, bad := range []string{"", "1.0000000000000000001", "abc", "1.2.3", "-1"} {
		_, err := ParseUnits(bad, TokenDecimals)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1500", FormatUnits(uint256.MustFromDecimal("1500000000000000000000"), 18))
	assert.Equal(t, "0.000000000000000001", FormatUnits(uint256.NewInt(1), 18))
	assert.Equal(t, "7.5", FormatUnits(uint256.MustFromDecimal("7500000000000000000"), 18))
	assert.Equal(t, "0", FormatUnits(nil, 18))
	assert.Equal(t, "42", FormatUnits(uint256.NewInt(42), 0))
}

func TestStakeHelpers(t *testing.T) {
	s := Stake{
		StartTime:      100,
		LockDuration:   10,
		LinearDuration: 20,
		TotalReward:    uint256.NewInt(50),
		ClaimedAmount:  uint256.NewInt(20),
	}
	assert.Equal(t, uint64(110), s.LockEnd())
	assert.Equal(t, uint64(130), s.VestEnd())
	assert.Equal(t, uint64(30), s.Outstanding().Uint64())

	c := s.Clone()
	c.ClaimedAmount.SetUint64(0)
	assert.Equal(t, uint64(20), s.ClaimedAmount.Uint64())
	assert.NotNil(t, c.Principal, "nil amounts clone to zero")
}

func TestStakeBoundariesSaturate(t *testing.T) {
	s := Stake{StartTime: math.MaxUint64 - 10, LockDuration: 100, LinearDuration: 100}
	assert.Equal(t, uint64(math.MaxUint64), s.LockEnd())
	assert.Equal(t, uint64(math.MaxUint64), s.VestEnd())

	s = Stake{StartTime: math.MaxUint64 - 150, LockDuration: 100, LinearDuration: 100}
	assert.Equal(t, uint64(math.MaxUint64-50), s.LockEnd())
	assert.Equal(t, uint64(math.MaxUint64), s.VestEnd())

	assert.Equal(t, uint64(30), AddSeconds(10, 20))
}

func TestLockedPeriodIsNothingToClaim(t *testing.T) {
	assert.ErrorIs(t, ErrLockedPeriodActive, ErrNothingToClaim)
}
