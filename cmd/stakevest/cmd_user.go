package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stake <amount>",
		Short: "Stake tokens as --from (requires a prior approve)",
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
				st, err := deps.Staking.Stake(ctx, from, amount)
				if err != nil {
					return err
				}
				return printStake(st)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "claim <stake-id>",
		Short: "Claim everything vested on a stake owned by --from",
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
				paid, err := deps.Staking.Claim(ctx, from, id)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"stake_id": id, "claimed": formatAmount(paid)}, func(w io.Writer) {
					kv(w, "stake", strconv.FormatUint(id, 10), "claimed", formatAmount(paid))
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "approve <amount>",
		Short: "Allow the pool to pull up to amount from --from",
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
				if err := deps.Staking.Approve(ctx, from, amount); err != nil {
					return err
				}
				fmt.Printf("allowance for %s set to %s\n", from.Hex(), formatAmount(amount))
				return nil
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "balance [address]",
		Short: "Show token balance and allowance (defaults to --from)",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := addressArg(args)
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				bal, err := deps.Ledger.BalanceOf(ctx, who)
				if err != nil {
					return err
				}
				allow, err := deps.Ledger.Allowance(ctx, who)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]string{
					"address":   who.Hex(),
					"balance":   formatAmount(bal),
					"allowance": formatAmount(allow),
				}, func(w io.Writer) {
					kv(w, "address", who.Hex(), "balance", formatAmount(bal), "allowance", formatAmount(allow))
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "pending <stake-id>",
		Short: "Show the amount claimable now on a stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseStakeID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				amt, err := deps.Ledger.PendingAmount(ctx, id)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"stake_id": id, "pending": formatAmount(amt)}, func(w io.Writer) {
					fmt.Fprintln(w, formatAmount(amt))
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "record <stake-id>",
		Short: "Show one stake record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseStakeID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				st, err := deps.Ledger.StakeRecord(ctx, id)
				if err != nil {
					return err
				}
				return printStake(st)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stake-ids [address]",
		Short: "List stake ids owned by an address (defaults to --from)",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := addressArg(args)
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				ids, err := deps.Ledger.UserStakeIDs(ctx, who)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(ids, func(w io.Writer) {
					for _, id := range ids {
						fmt.Fprintln(w, id)
					}
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stakes [address]",
		Short: "List stakes owned by an address with vesting progress (defaults to --from)",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := addressArg(args)
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pf, err := deps.Ledger.Portfolio(ctx, who)
				if err != nil {
					return err
				}
				views := make([]stakeView, 0, len(pf.Stakes))
				for _, sp := range pf.Stakes {
					views = append(views, newProgressView(sp))
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(views, func(w io.Writer) { printStakes(w, views) })
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "portfolio [address]",
		Short: "Summarise locked, claimable and claimed rewards (defaults to --from)",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := addressArg(args)
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				pf, err := deps.Ledger.Portfolio(ctx, who)
				if err != nil {
					return err
				}
				views := make([]stakeView, 0, len(pf.Stakes))
				for _, sp := range pf.Stakes {
					views = append(views, newProgressView(sp))
				}
				out := map[string]any{
					"owner":     pf.Owner.Hex(),
					"locked":    formatAmount(pf.Locked),
					"claimable": formatAmount(pf.Claimable),
					"claimed":   formatAmount(pf.Claimed),
					"stakes":    views,
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(out, func(w io.Writer) {
					kv(w,
						"owner", pf.Owner.Hex(),
						"locked", formatAmount(pf.Locked),
						"claimable", formatAmount(pf.Claimable),
						"claimed", formatAmount(pf.Claimed),
						"stakes", strconv.Itoa(len(pf.Stakes)),
					)
				})
			})
		},
	})

	var listLimit, listOffset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every stake in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				stakes, err := deps.Ledger.ListStakes(ctx, domain.ListOpts{Limit: listLimit, Offset: listOffset})
				if err != nil {
					return err
				}
				views := make([]stakeView, 0, len(stakes))
				for _, s := range stakes {
					views = append(views, newStakeView(s))
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(views, func(w io.Writer) { printStakes(w, views) })
			})
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum rows")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "total-staked",
		Short: "Show principal held by open stakes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				total, err := deps.Ledger.TotalStaked(ctx)
				if err != nil {
					return err
				}
				bal, err := deps.Ledger.PoolBalance(ctx)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]string{
					"total_staked": formatAmount(total),
					"pool_balance": formatAmount(bal),
				}, func(w io.Writer) {
					kv(w, "total staked", formatAmount(total), "pool balance", formatAmount(bal))
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "quote-fee <amount>",
		Short: "Quote the withdraw fee on an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				fee, net, err := deps.Ledger.QuoteWithdrawFee(ctx, amount)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]string{"fee": formatAmount(fee), "net": formatAmount(net)}, func(w io.Writer) {
					kv(w, "fee", formatAmount(fee), "net", formatAmount(net))
				})
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Show the time oracle reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				now, err := deps.Ledger.Now(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d (%s)\n", now, unixString(now))
				return nil
			})
		},
	})

	var eventsAfter string
	var eventsCount int
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Replay ledger events from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.Relay == nil {
					return fmt.Errorf("events: redis is not enabled")
				}
				events, next, err := deps.Relay.Replay(ctx, eventsAfter, eventsCount)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(map[string]any{"events": events, "next": next}, func(w io.Writer) {
					fmt.Fprintln(w, "TIME\tTYPE\tSTAKE\tACTOR\tAMOUNT")
					for _, ev := range events {
						fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", unixString(ev.Timestamp), ev.Type, ev.StakeID, ev.Actor.Hex(), baseUnits(ev.Amount))
					}
					fmt.Fprintf(w, "next\t%s\n", next)
				})
			})
		},
	}
	eventsCmd.Flags().StringVar(&eventsAfter, "after", "0", "Stream id to read after")
	eventsCmd.Flags().IntVar(&eventsCount, "count", 50, "Maximum events")
	rootCmd.AddCommand(eventsCmd)
}

// addressArg returns args[0] when present and --from otherwise.
func addressArg(args []string) (common.Address, error) {
	if len(args) == 1 {
		return parseAddress(args[0])
	}
	return caller()
}

func printStake(st domain.Stake) error {
	p, err := getPrinter()
	if err != nil {
		return err
	}
	v := newStakeView(st)
	return p.emit(v, func(w io.Writer) { printStakes(w, []stakeView{v}) })
}
