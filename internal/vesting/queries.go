package vesting

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// PoolConfig returns the live configuration.
func (l *Ledger) PoolConfig(ctx context.Context) (domain.PoolConfig, error) {
	var cfg domain.PoolConfig
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		cfg, err = tx.PoolConfig(ctx)
		return err
	})
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("vesting: pool config: %w", err)
	}
	return cfg, nil
}

// TotalStaked returns the principal held by stakes that are not closed.
func (l *Ledger) TotalStaked(ctx context.Context) (*uint256.Int, error) {
	var total *uint256.Int
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		total, err = tx.TotalStaked(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: total staked: %w", err)
	}
	return total, nil
}

// PoolBalance returns the pool's staking-token balance.
func (l *Ledger) PoolBalance(ctx context.Context) (*uint256.Int, error) {
	return l.BalanceOf(ctx, l.pool)
}

// BalanceOf returns holder's staking-token balance.
func (l *Ledger) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		bal, err = tx.Token(l.token).BalanceOf(ctx, holder)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: balance of %s: %w", holder.Hex(), err)
	}
	return bal, nil
}

// Allowance returns how much of owner's staking tokens the pool may pull.
func (l *Ledger) Allowance(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	var amt *uint256.Int
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		amt, err = tx.Token(l.token).Allowance(ctx, owner, l.pool)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: allowance of %s: %w", owner.Hex(), err)
	}
	return amt, nil
}

// UserStakeIDs returns owner's stake ids in creation order, closed ones
// included.
func (l *Ledger) UserStakeIDs(ctx context.Context, owner common.Address) ([]uint64, error) {
	var ids []uint64
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		ids, err = tx.UserStakeIDs(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: user stake ids %s: %w", owner.Hex(), err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// StakeRecord returns stake id.
func (l *Ledger) StakeRecord(ctx context.Context, id uint64) (domain.Stake, error) {
	var s domain.Stake
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		s, err = tx.GetStake(ctx, id)
		return err
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: stake %d: %w", id, err)
	}
	return s, nil
}

// PendingAmount returns what the owner of stake id could claim right now.
func (l *Ledger) PendingAmount(ctx context.Context, id uint64) (*uint256.Int, error) {
	s, err := l.StakeRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	now, err := l.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("vesting: pending %d: read clock: %w", id, err)
	}
	return Pending(s, now), nil
}

// UserStakes returns every record owned by owner in creation order.
func (l *Ledger) UserStakes(ctx context.Context, owner common.Address) ([]domain.Stake, error) {
	var out []domain.Stake
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		ids, err := tx.UserStakeIDs(ctx, owner)
		if err != nil {
			return err
		}
		out = make([]domain.Stake, 0, len(ids))
		for _, id := range ids {
			s, err := tx.GetStake(ctx, id)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: user stakes %s: %w", owner.Hex(), err)
	}
	return out, nil
}

// Portfolio summarises owner's stakes at the current oracle time.
func (l *Ledger) Portfolio(ctx context.Context, owner common.Address) (domain.Portfolio, error) {
	stakes, err := l.UserStakes(ctx, owner)
	if err != nil {
		return domain.Portfolio{}, err
	}
	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("vesting: portfolio: read clock: %w", err)
	}

	p := domain.Portfolio{
		Owner:     owner,
		Locked:    new(uint256.Int),
		Claimable: new(uint256.Int),
		Claimed:   new(uint256.Int),
		Stakes:    make([]domain.StakeProgress, 0, len(stakes)),
	}
	for _, s := range stakes {
		prog := Progress(s, now)
		p.Claimed.Add(p.Claimed, s.ClaimedAmount)
		p.Claimable.Add(p.Claimable, prog.Pending)
		if !s.Closed {
			p.Locked.Add(p.Locked, new(uint256.Int).Sub(s.TotalReward, prog.Vested))
		}
		p.Stakes = append(p.Stakes, prog)
	}
	return p, nil
}

// QuoteWithdrawFee splits amount by the live withdraw fee rate.
func (l *Ledger) QuoteWithdrawFee(ctx context.Context, amount *uint256.Int) (fee, net *uint256.Int, err error) {
	cfg, err := l.PoolConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	fee, net = WithdrawFee(amount, cfg.WithdrawFeeRateBps)
	return fee, net, nil
}

// ListStakes pages through every stake in id order.
func (l *Ledger) ListStakes(ctx context.Context, opts domain.ListOpts) ([]domain.Stake, error) {
	var out []domain.Stake
	err := l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListStakes(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: list stakes: %w", err)
	}
	return out, nil
}

// Export reads config, every stake and the pool totals from one snapshot of
// the store.
func (l *Ledger) Export(ctx context.Context) (domain.LedgerExport, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.LedgerExport{}, fmt.Errorf("vesting: export: read clock: %w", err)
	}

	exp := domain.LedgerExport{OracleTime: now}
	err = l.store.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		if exp.Config, err = tx.PoolConfig(ctx); err != nil {
			return err
		}
		if exp.Stakes, err = tx.ListStakes(ctx, domain.ListOpts{}); err != nil {
			return err
		}
		if exp.TotalStaked, err = tx.TotalStaked(ctx); err != nil {
			return err
		}
		exp.PoolBalance, err = tx.Token(l.token).BalanceOf(ctx, l.pool)
		return err
	})
	if err != nil {
		return domain.LedgerExport{}, fmt.Errorf("vesting: export: %w", err)
	}
	return exp, nil
}

// Now returns the current oracle time.
func (l *Ledger) Now(ctx context.Context) (uint64, error) {
	return l.clock.Now(ctx)
}
