package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.Dec())

	v, err = parseAmount("wei:42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.Uint64())

	_, err = parseAmount("wei:-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = parseAmount("abc")
	assert.Error(t, err)
}

func TestParseSpan(t *testing.T) {
	cases := map[string]uint64{
		"88d":  88 * domain.SecondsPerDay,
		"3600": 3600,
		"36h":  36 * 3600,
		"90s":  90,
	}
	for in, want := range cases {
		got, err := parseSpan(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseSpan("-5m")
	assert.Error(t, err)
	_, err = parseSpan("xd")
	assert.Error(t, err)
}

func TestReadBatchCSV(t *testing.T) {
	in := `address,amount
# seed round
0xa11ce00000000000000000000000000000000000, 100
0xb0b0000000000000000000000000000000000000,wei:5
`
	users, amounts, err := readBatchCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, common.HexToAddress("0xa11ce00000000000000000000000000000000000"), users[0])
	assert.Equal(t, "100000000000000000000", amounts[0].Dec())
	assert.Equal(t, uint64(5), amounts[1].Uint64())

	_, _, err = readBatchCSV(strings.NewReader("0xnotanaddress,1\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, _, err = readBatchCSV(strings.NewReader("address,amount\n"))
	assert.Error(t, err)

	_, _, err = readBatchCSV(strings.NewReader("0xa11ce00000000000000000000000000000000000,1,extra\n"))
	assert.Error(t, err)
}

func TestSimulatePaysFullReward(t *testing.T) {
	amount, err := domain.ParseUnits("1000", domain.TokenDecimals)
	require.NoError(t, err)

	rows, err := simulate(context.Background(), simParams{
		Amount:        amount,
		BonusBps:      5000,
		LockDays:      88,
		LinearDays:    270,
		InitialBps:    1000,
		StepDays:      135,
		StartUnixTime: 1_700_000_000,
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	want := []string{"150", "675", "675"}
	sum := new(uint256.Int)
	for i, r := range rows {
		assert.Equal(t, want[i], formatAmount(r.Claimed), "row %d", i)
		sum.Add(sum, r.Claimed)
	}
	assert.Equal(t, "1500", formatAmount(sum))
	assert.Equal(t, uint64(88+270), rows[2].Day)
	assert.True(t, rows[2].Remaining.IsZero())

	var buf bytes.Buffer
	require.NoError(t, printSimulation(&buf, rows))
	assert.Contains(t, buf.String(), "TOTAL CLAIMED")
	assert.Equal(t, 4, strings.Count(buf.String(), "\n"))
}

func TestSimulateRejectsZeroStep(t *testing.T) {
	_, err := simulate(context.Background(), simParams{StepDays: 0})
	assert.Error(t, err)
}

func TestDaysAndBpsStrings(t *testing.T) {
	assert.Equal(t, "88d", daysString(88*domain.SecondsPerDay))
	assert.Equal(t, "1d 1h0m0s", daysString(domain.SecondsPerDay+3600))
	assert.Equal(t, "10.00% (1000 bps)", bpsString(1000))
	assert.Equal(t, "0.05% (5 bps)", bpsString(5))
}
