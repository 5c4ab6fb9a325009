package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/config"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the pool configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the live pool configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pc, err := deps.Ledger.PoolConfig(ctx)
				if err != nil {
					return err
				}
				return printPoolConfig(pc)
			})
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "effective",
		Short: "Print the loaded configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			red := config.RedactedConfig(cfg)
			p, err := getPrinter()
			if err != nil {
				return err
			}
			if p.json {
				return p.emit(red, nil)
			}
			return toml.NewEncoder(os.Stdout).Encode(red)
		},
	})

	var updBonus, updLock, updLinear, updInitial uint64
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change bonus rate and durations for new stakes (administrator)",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			upd := domain.ConfigUpdate{BonusRateBps: updBonus, LockDays: updLock, LinearDays: updLinear}
			if cmd.Flags().Changed("initial-unlock-bps") {
				upd.InitialUnlockRateBps = &updInitial
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pc, err := deps.Staking.UpdateConfig(ctx, from, upd)
				if err != nil {
					return err
				}
				return printPoolConfig(pc)
			})
		},
	}
	updateCmd.Flags().Uint64Var(&updBonus, "bonus-bps", 0, "Bonus rate in basis points")
	updateCmd.Flags().Uint64Var(&updLock, "lock-days", 0, "Lock period in days")
	updateCmd.Flags().Uint64Var(&updLinear, "linear-days", 0, "Linear release period in days")
	updateCmd.Flags().Uint64Var(&updInitial, "initial-unlock-bps", 0, "Share of the reward released at lock end (unchanged when omitted)")
	_ = updateCmd.MarkFlagRequired("bonus-bps")
	_ = updateCmd.MarkFlagRequired("lock-days")
	_ = updateCmd.MarkFlagRequired("linear-days")
	configCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "set-fee <bps>",
		Short: "Set the withdraw fee rate (administrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			bps, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("fee rate %q: %w", args[0], domain.ErrInvalidRate)
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pc, err := deps.Staking.SetWithdrawFeeRate(ctx, from, bps)
				if err != nil {
					return err
				}
				return printPoolConfig(pc)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "transfer-admin <address>",
		Short: "Hand the administrator role to another address (administrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			next, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pc, err := deps.Staking.TransferAdmin(ctx, from, next)
				if err != nil {
					return err
				}
				return printPoolConfig(pc)
			})
		},
	})

	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator stake management",
	}
	adminCmd.AddCommand(&cobra.Command{
		Use:   "stake-for <user> <amount>",
		Short: "Open a pool-funded stake for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			user, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				st, err := deps.Staking.AdminStakeForUser(ctx, from, user, amount)
				if err != nil {
					return err
				}
				return printStake(st)
			})
		},
	})
	adminCmd.AddCommand(&cobra.Command{
		Use:   "batch-stake <csv-file|->",
		Short: "Open pool-funded stakes from address,amount rows in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			users, amounts, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				created, err := deps.Staking.AdminBatchStakeForUsers(ctx, from, users, amounts)
				if err != nil {
					return err
				}
				views := make([]stakeView, 0, len(created))
				for _, st := range created {
					views = append(views, newStakeView(st))
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(views, func(w io.Writer) { printStakes(w, views) })
			})
		},
	})
	adminCmd.AddCommand(&cobra.Command{
		Use:   "close <stake-id>",
		Short: "Close a stake; unvested reward stays in the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			id, err := parseStakeID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				st, err := deps.Staking.AdminCloseStake(ctx, from, id)
				if err != nil {
					return err
				}
				return printStake(st)
			})
		},
	})
	rootCmd.AddCommand(adminCmd)

	var withdrawToken string
	withdrawCmd := &cobra.Command{
		Use:   "emergency-withdraw <amount>",
		Short: "Move pool tokens to the administrator (administrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				token := deps.Ledger.Token()
				if withdrawToken != "" {
					if token, err = parseAddress(withdrawToken); err != nil {
						return err
					}
				}
				if err := deps.Staking.EmergencyWithdraw(ctx, from, token, amount); err != nil {
					return err
				}
				fmt.Printf("withdrew %s of %s to %s\n", formatAmount(amount), token.Hex(), from.Hex())
				return nil
			})
		},
	}
	withdrawCmd.Flags().StringVar(&withdrawToken, "token", "", "Token to withdraw (defaults to the staking token)")
	rootCmd.AddCommand(withdrawCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mint <to> <amount>",
		Short: "Issue staking tokens in the ledger's token book (administrator)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := caller()
			if err != nil {
				return err
			}
			to, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if err := deps.Staking.Mint(ctx, from, to, amount); err != nil {
					return err
				}
				fmt.Printf("minted %s to %s\n", formatAmount(amount), to.Hex())
				return nil
			})
		},
	})
}

func printPoolConfig(pc domain.PoolConfig) error {
	p, err := getPrinter()
	if err != nil {
		return err
	}
	v := newConfigView(pc)
	return p.emit(v, func(w io.Writer) { printConfig(w, v) })
}

func readBatchFile(path string) ([]common.Address, []*uint256.Int, error) {
	if path == "-" {
		return readBatchCSV(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return readBatchCSV(f)
}
