package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/store/memory"
	"github.com/alanyoungcy/stakevest/internal/vesting"
)

var (
	simToken = common.HexToAddress("0x5100000000000000000000000000000000000001")
	simPool  = common.HexToAddress("0x5100000000000000000000000000000000000002")
	simAdmin = common.HexToAddress("0x5100000000000000000000000000000000000003")
	simUser  = common.HexToAddress("0x5100000000000000000000000000000000000004")
)

type simParams struct {
	Amount        *uint256.Int
	BonusBps      uint64
	LockDays      uint64
	LinearDays    uint64
	InitialBps    uint64
	FeeBps        uint64
	StepDays      uint64
	StartUnixTime uint64
}

type simRow struct {
	Day       uint64
	Claimed   *uint256.Int
	Total     *uint256.Int
	Remaining *uint256.Int
}

func init() {
	var (
		amount string
		p      simParams
	)
	simCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a stake's vesting on an in-memory ledger, claiming every --step-days",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseAmount(amount)
			if err != nil {
				return err
			}
			p.Amount = v
			rows, err := simulate(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printSimulation(os.Stdout, rows)
		},
	}
	simCmd.Flags().StringVar(&amount, "amount", "1000", "Stake amount")
	simCmd.Flags().Uint64Var(&p.BonusBps, "bonus-bps", 5000, "Bonus rate in basis points")
	simCmd.Flags().Uint64Var(&p.LockDays, "lock-days", 88, "Lock period in days")
	simCmd.Flags().Uint64Var(&p.LinearDays, "linear-days", 270, "Linear release period in days")
	simCmd.Flags().Uint64Var(&p.InitialBps, "initial-unlock-bps", 1000, "Share released at lock end")
	simCmd.Flags().Uint64Var(&p.FeeBps, "fee-bps", 0, "Withdraw fee rate")
	simCmd.Flags().Uint64Var(&p.StepDays, "step-days", 30, "Days between claims after the lock ends")
	simCmd.Flags().Uint64Var(&p.StartUnixTime, "start", 1_700_000_000, "Oracle time of the stake")
	rootCmd.AddCommand(simCmd)
}

// simulate stakes p.Amount at day 0, claims at lock end and then every
// StepDays until the reward is paid out.
func simulate(ctx context.Context, p simParams) ([]simRow, error) {
	if p.StepDays == 0 {
		return nil, errors.New("simulate: --step-days must be > 0")
	}
	clock := vesting.NewManualClock(p.StartUnixTime)
	genesis := vesting.DefaultPoolConfig(simAdmin)
	genesis.BonusRateBps = p.BonusBps
	genesis.LockDuration = p.LockDays * domain.SecondsPerDay
	genesis.LinearDuration = p.LinearDays * domain.SecondsPerDay
	genesis.InitialUnlockRateBps = p.InitialBps
	genesis.WithdrawFeeRateBps = p.FeeBps

	ledger, err := vesting.New(memory.New(), clock, vesting.Options{
		Token:   simToken,
		Pool:    simPool,
		Genesis: genesis,
		Logger:  newLogger("error"),
	})
	if err != nil {
		return nil, err
	}
	if err := ledger.Init(ctx); err != nil {
		return nil, err
	}

	reward, err := vesting.TotalReward(p.Amount, p.BonusBps)
	if err != nil {
		return nil, err
	}
	steps := []struct {
		to     common.Address
		amount *uint256.Int
	}{{simPool, reward}, {simUser, p.Amount}}
	for _, s := range steps {
		if err := ledger.Mint(ctx, simAdmin, s.to, s.amount); err != nil {
			return nil, err
		}
	}
	if err := ledger.Approve(ctx, simUser, p.Amount); err != nil {
		return nil, err
	}
	st, err := ledger.Stake(ctx, simUser, p.Amount)
	if err != nil {
		return nil, err
	}

	var rows []simRow
	day := p.LockDays
	clock.AdvanceSeconds(p.LockDays * domain.SecondsPerDay)
	for {
		paid, err := ledger.Claim(ctx, simUser, st.ID)
		if err != nil && !errors.Is(err, domain.ErrNothingToClaim) {
			return nil, err
		}
		if paid == nil {
			paid = new(uint256.Int)
		}
		rec, err := ledger.StakeRecord(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, simRow{
			Day:       day,
			Claimed:   paid,
			Total:     rec.ClaimedAmount,
			Remaining: rec.Outstanding(),
		})
		if rec.Outstanding().IsZero() {
			return rows, nil
		}
		day += p.StepDays
		clock.AdvanceSeconds(p.StepDays * domain.SecondsPerDay)
	}
}

func printSimulation(w io.Writer, rows []simRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tCLAIMED\tTOTAL CLAIMED\tREMAINING")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Day, formatAmount(r.Claimed), formatAmount(r.Total), formatAmount(r.Remaining))
	}
	return tw.Flush()
}
