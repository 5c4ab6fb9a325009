package vesting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// defaultLockTTL bounds how long a per-stake distributed lock may be held.
const defaultLockTTL = 30 * time.Second

// DefaultPoolConfig returns the rates a fresh pool starts with.
func DefaultPoolConfig(admin common.Address) domain.PoolConfig {
	return domain.PoolConfig{
		BonusRateBps:         5000,
		LockDuration:         88 * domain.SecondsPerDay,
		LinearDuration:       270 * domain.SecondsPerDay,
		InitialUnlockRateBps: 1000,
		WithdrawFeeRateBps:   0,
		Administrator:        admin,
	}
}

// Options configures a Ledger.
type Options struct {
	// Token is the staking token the pool accepts and pays out.
	Token common.Address
	// Pool is the identity that holds staked tokens in the token ledger.
	Pool common.Address
	// Genesis seeds the pool config the first time the store is used.
	Genesis domain.PoolConfig
	// IDBase is the id of the first stake. Zero means domain.DefaultStakeIDBase.
	IDBase uint64

	Authorizer Authorizer
	// Locks, when set, adds per-stake mutual exclusion across processes.
	Locks   domain.LockManager
	LockTTL time.Duration
	Logger  *slog.Logger
}

// Ledger is the vesting state machine. Each mutation reads the time oracle
// once, runs inside a single store transaction and either commits in full or
// leaves no trace.
type Ledger struct {
	store  domain.LedgerStore
	clock  Clock
	auth   Authorizer
	locks  domain.LockManager
	token  common.Address
	pool   common.Address
	ttl    time.Duration
	logger *slog.Logger

	genesis domain.PoolConfig
	idBase  uint64

	// mu serializes mutations issued through this instance.
	mu sync.Mutex
}

// New validates opts and returns a Ledger. Call Init before first use.
func New(store domain.LedgerStore, clock Clock, opts Options) (*Ledger, error) {
	if opts.Token == (common.Address{}) {
		return nil, fmt.Errorf("vesting: token: %w", domain.ErrInvalidAddress)
	}
	if opts.Pool == (common.Address{}) {
		return nil, fmt.Errorf("vesting: pool: %w", domain.ErrInvalidAddress)
	}
	if opts.Genesis.Administrator == (common.Address{}) {
		return nil, fmt.Errorf("vesting: administrator: %w", domain.ErrInvalidAddress)
	}
	if err := validateRates(opts.Genesis.InitialUnlockRateBps, opts.Genesis.WithdrawFeeRateBps); err != nil {
		return nil, err
	}
	maxDuration := domain.MaxDurationDays * domain.SecondsPerDay
	if opts.Genesis.LockDuration > maxDuration || opts.Genesis.LinearDuration > maxDuration {
		return nil, fmt.Errorf("vesting: genesis duration out of range: %w", domain.ErrInvalidRate)
	}
	if opts.IDBase == 0 {
		opts.IDBase = domain.DefaultStakeIDBase
	}
	if opts.Authorizer == nil {
		opts.Authorizer = AdminPolicy{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:   store,
		clock:   clock,
		auth:    opts.Authorizer,
		locks:   opts.Locks,
		token:   opts.Token,
		pool:    opts.Pool,
		ttl:     opts.LockTTL,
		logger:  opts.Logger.With(slog.String("component", "vesting_ledger")),
		genesis: opts.Genesis,
		idBase:  opts.IDBase,
	}, nil
}

// Init seeds the genesis config into an empty store. It is a no-op when the
// store already holds a pool.
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("vesting: init: read clock: %w", err)
	}
	return l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		ok, err := tx.Initialized(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		cfg := l.genesis
		cfg.UpdatedAt = time.Unix(int64(now), 0).UTC()
		if err := tx.Initialize(ctx, cfg, l.idBase); err != nil {
			return fmt.Errorf("vesting: init: %w", err)
		}
		l.logger.InfoContext(ctx, "vesting: pool initialized",
			slog.String("administrator", cfg.Administrator.Hex()),
			slog.Uint64("id_base", l.idBase),
		)
		return nil
	})
}

// Token returns the staking token address.
func (l *Ledger) Token() common.Address { return l.token }

// Pool returns the pool identity in the token ledger.
func (l *Ledger) Pool() common.Address { return l.pool }

// Stake pulls amount from caller into the pool and opens a stake that vests
// under the current config.
func (l *Ledger) Stake(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Stake, error) {
	if caller == (common.Address{}) {
		return domain.Stake{}, fmt.Errorf("vesting: stake: caller: %w", domain.ErrInvalidAddress)
	}
	if amount == nil || amount.IsZero() {
		return domain.Stake{}, fmt.Errorf("vesting: stake: amount must be > 0: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: stake: read clock: %w", err)
	}

	var created domain.Stake
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		cfg, err := tx.PoolConfig(ctx)
		if err != nil {
			return err
		}
		if err := tx.Token(l.token).TransferFrom(ctx, l.pool, caller, l.pool, amount); err != nil {
			return fmt.Errorf("pull principal: %w", err)
		}
		created, err = l.openStake(ctx, tx, cfg, caller, amount, domain.OriginUser, now)
		return err
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: stake: %w", err)
	}

	l.logger.InfoContext(ctx, "vesting: stake created",
		slog.Uint64("stake_id", created.ID),
		slog.String("owner", caller.Hex()),
		slog.String("principal", created.Principal.Dec()),
		slog.String("total_reward", created.TotalReward.Dec()),
	)
	return created, nil
}

// AdminStakeForUser opens a stake for user backed by tokens the pool already
// holds. No balance or allowance of user is touched.
func (l *Ledger) AdminStakeForUser(ctx context.Context, caller, user common.Address, amount *uint256.Int) (domain.Stake, error) {
	if err := validateStakeInput(user, amount); err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: admin stake: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: admin stake: read clock: %w", err)
	}

	var created domain.Stake
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		cfg, err := l.authorize(ctx, tx, caller, OpAdminStake)
		if err != nil {
			return err
		}
		created, err = l.openStake(ctx, tx, cfg, user, amount, domain.OriginAdmin, now)
		return err
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: admin stake: %w", err)
	}

	l.logger.InfoContext(ctx, "vesting: admin stake created",
		slog.Uint64("stake_id", created.ID),
		slog.String("owner", user.Hex()),
		slog.String("principal", created.Principal.Dec()),
	)
	return created, nil
}

// AdminBatchStakeForUsers applies AdminStakeForUser to every (user, amount)
// pair in one transaction. Any invalid pair aborts the whole batch.
func (l *Ledger) AdminBatchStakeForUsers(ctx context.Context, caller common.Address, users []common.Address, amounts []*uint256.Int) ([]domain.Stake, error) {
	if len(users) != len(amounts) {
		return nil, fmt.Errorf("vesting: admin batch stake: %d users, %d amounts: %w",
			len(users), len(amounts), domain.ErrArrayLengthMismatch)
	}
	for i := range users {
		if err := validateStakeInput(users[i], amounts[i]); err != nil {
			return nil, fmt.Errorf("vesting: admin batch stake: entry %d: %w", i, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("vesting: admin batch stake: read clock: %w", err)
	}

	var created []domain.Stake
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		created = created[:0]
		cfg, err := l.authorize(ctx, tx, caller, OpAdminBatchStake)
		if err != nil {
			return err
		}
		for i := range users {
			s, err := l.openStake(ctx, tx, cfg, users[i], amounts[i], domain.OriginAdmin, now)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			created = append(created, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: admin batch stake: %w", err)
	}

	l.logger.InfoContext(ctx, "vesting: admin batch stake created",
		slog.Int("count", len(created)),
	)
	return created, nil
}

// Claim pays the caller everything vested and unclaimed on stake id. The
// claimed counter and the token transfer commit together.
func (l *Ledger) Claim(ctx context.Context, caller common.Address, id uint64) (*uint256.Int, error) {
	unlock, err := l.lockStake(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("vesting: claim %d: %w", id, err)
	}
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("vesting: claim %d: read clock: %w", id, err)
	}

	var paid *uint256.Int
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		rec, err := tx.GetStake(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return fmt.Errorf("caller %s: %w", caller.Hex(), domain.ErrNotOwner)
		}
		if rec.Closed {
			return fmt.Errorf("%w: %w", domain.ErrNothingToClaim, domain.ErrStakeClosed)
		}
		if now < rec.LockEnd() {
			return domain.ErrLockedPeriodActive
		}
		pending := Pending(rec, now)
		if pending.IsZero() {
			return domain.ErrNothingToClaim
		}

		rec.ClaimedAmount = new(uint256.Int).Add(rec.ClaimedAmount, pending)
		if err := tx.UpdateStake(ctx, rec); err != nil {
			return err
		}
		if err := tx.Token(l.token).Transfer(ctx, l.pool, caller, pending); err != nil {
			return fmt.Errorf("pay out: %w", err)
		}
		paid = pending
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vesting: claim %d: %w", id, err)
	}

	l.logger.InfoContext(ctx, "vesting: claimed",
		slog.Uint64("stake_id", id),
		slog.String("owner", caller.Hex()),
		slog.String("amount", paid.Dec()),
	)
	return paid, nil
}

// AdminCloseStake terminates stake id. Nothing further can be claimed; the
// unvested and unclaimed remainder stays in the pool.
func (l *Ledger) AdminCloseStake(ctx context.Context, caller common.Address, id uint64) (domain.Stake, error) {
	unlock, err := l.lockStake(ctx, id)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: close %d: %w", id, err)
	}
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: close %d: read clock: %w", id, err)
	}

	var closed domain.Stake
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		if _, err := l.authorize(ctx, tx, caller, OpAdminCloseStake); err != nil {
			return err
		}
		rec, err := tx.GetStake(ctx, id)
		if err != nil {
			return err
		}
		if rec.Closed {
			return domain.ErrStakeClosed
		}
		rec.Closed = true
		rec.ClosedAt = now
		if err := tx.UpdateStake(ctx, rec); err != nil {
			return err
		}
		closed = rec
		return nil
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("vesting: close %d: %w", id, err)
	}

	l.logger.InfoContext(ctx, "vesting: stake closed",
		slog.Uint64("stake_id", id),
		slog.String("forfeited", closed.Outstanding().Dec()),
	)
	return closed, nil
}

// UpdateConfig replaces the live bonus rate and durations. Existing stakes
// keep their snapshot.
func (l *Ledger) UpdateConfig(ctx context.Context, caller common.Address, upd domain.ConfigUpdate) (domain.PoolConfig, error) {
	if upd.LockDays > domain.MaxDurationDays || upd.LinearDays > domain.MaxDurationDays {
		return domain.PoolConfig{}, fmt.Errorf("vesting: update config: duration out of range: %w", domain.ErrInvalidRate)
	}
	if upd.InitialUnlockRateBps != nil {
		if err := validateRates(*upd.InitialUnlockRateBps, 0); err != nil {
			return domain.PoolConfig{}, fmt.Errorf("vesting: update config: %w", err)
		}
	}

	return l.mutateConfig(ctx, caller, OpUpdateConfig, func(cfg *domain.PoolConfig) {
		cfg.BonusRateBps = upd.BonusRateBps
		cfg.LockDuration = upd.LockDays * domain.SecondsPerDay
		cfg.LinearDuration = upd.LinearDays * domain.SecondsPerDay
		if upd.InitialUnlockRateBps != nil {
			cfg.InitialUnlockRateBps = *upd.InitialUnlockRateBps
		}
	})
}

// SetWithdrawFeeRate stores the fee charged by the withdrawal path. It does
// not affect vesting.
func (l *Ledger) SetWithdrawFeeRate(ctx context.Context, caller common.Address, feeRateBps uint64) (domain.PoolConfig, error) {
	if err := validateRates(0, feeRateBps); err != nil {
		return domain.PoolConfig{}, fmt.Errorf("vesting: set withdraw fee: %w", err)
	}
	return l.mutateConfig(ctx, caller, OpSetWithdrawFee, func(cfg *domain.PoolConfig) {
		cfg.WithdrawFeeRateBps = feeRateBps
	})
}

// TransferAdmin hands the administrator role to next.
func (l *Ledger) TransferAdmin(ctx context.Context, caller, next common.Address) (domain.PoolConfig, error) {
	if next == (common.Address{}) {
		return domain.PoolConfig{}, fmt.Errorf("vesting: transfer admin: %w", domain.ErrInvalidAddress)
	}
	return l.mutateConfig(ctx, caller, OpTransferAdmin, func(cfg *domain.PoolConfig) {
		cfg.Administrator = next
	})
}

// EmergencyWithdraw moves amount of token from the pool to the caller. It is
// not checked against outstanding rewards.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, caller, token common.Address, amount *uint256.Int) error {
	if token == (common.Address{}) {
		return fmt.Errorf("vesting: emergency withdraw: token: %w", domain.ErrInvalidAddress)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("vesting: emergency withdraw: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		if _, err := l.authorize(ctx, tx, caller, OpEmergencyWithdraw); err != nil {
			return err
		}
		return tx.Token(token).Transfer(ctx, l.pool, caller, amount)
	})
	if err != nil {
		return fmt.Errorf("vesting: emergency withdraw: %w", err)
	}

	l.logger.WarnContext(ctx, "vesting: emergency withdraw",
		slog.String("token", token.Hex()),
		slog.String("to", caller.Hex()),
		slog.String("amount", amount.Dec()),
	)
	return nil
}

// Mint credits amount of the staking token to `to` in the token ledger. Only
// the administrator may issue tokens.
func (l *Ledger) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	if err := validateStakeInput(to, amount); err != nil {
		return fmt.Errorf("vesting: mint: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		if _, err := l.authorize(ctx, tx, caller, OpMint); err != nil {
			return err
		}
		return tx.Token(l.token).Mint(ctx, to, amount)
	})
	if err != nil {
		return fmt.Errorf("vesting: mint: %w", err)
	}
	return nil
}

// Approve sets the pool's allowance over owner's staking tokens.
func (l *Ledger) Approve(ctx context.Context, owner common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) {
		return fmt.Errorf("vesting: approve: %w", domain.ErrInvalidAddress)
	}
	if amount == nil {
		return fmt.Errorf("vesting: approve: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		return tx.Token(l.token).Approve(ctx, owner, l.pool, amount)
	})
	if err != nil {
		return fmt.Errorf("vesting: approve: %w", err)
	}
	return nil
}

func (l *Ledger) mutateConfig(ctx context.Context, caller common.Address, op Operation, apply func(cfg *domain.PoolConfig)) (domain.PoolConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("vesting: %s: read clock: %w", op, err)
	}

	var updated domain.PoolConfig
	err = l.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		cfg, err := l.authorize(ctx, tx, caller, op)
		if err != nil {
			return err
		}
		apply(&cfg)
		cfg.UpdatedAt = time.Unix(int64(now), 0).UTC()
		if err := tx.SavePoolConfig(ctx, cfg); err != nil {
			return err
		}
		updated = cfg
		return nil
	})
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("vesting: %s: %w", op, err)
	}

	l.logger.InfoContext(ctx, "vesting: pool config updated",
		slog.String("op", string(op)),
		slog.Uint64("bonus_rate_bps", updated.BonusRateBps),
		slog.Uint64("lock_duration", updated.LockDuration),
		slog.Uint64("linear_duration", updated.LinearDuration),
		slog.Uint64("initial_unlock_rate_bps", updated.InitialUnlockRateBps),
		slog.Uint64("withdraw_fee_rate_bps", updated.WithdrawFeeRateBps),
		slog.String("administrator", updated.Administrator.Hex()),
	)
	return updated, nil
}

// openStake snapshots cfg into a new record owned by owner.
func (l *Ledger) openStake(ctx context.Context, tx domain.LedgerTx, cfg domain.PoolConfig, owner common.Address, amount *uint256.Int, origin domain.StakeOrigin, now uint64) (domain.Stake, error) {
	total, err := TotalReward(amount, cfg.BonusRateBps)
	if err != nil {
		return domain.Stake{}, err
	}
	id, err := tx.NextStakeID(ctx)
	if err != nil {
		return domain.Stake{}, err
	}
	s := domain.Stake{
		ID:                   id,
		Owner:                owner,
		Principal:            new(uint256.Int).Set(amount),
		TotalReward:          total,
		StartTime:            now,
		ClaimedAmount:        new(uint256.Int),
		LockDuration:         cfg.LockDuration,
		LinearDuration:       cfg.LinearDuration,
		InitialUnlockRateBps: cfg.InitialUnlockRateBps,
		Origin:               origin,
	}
	if err := tx.InsertStake(ctx, s); err != nil {
		return domain.Stake{}, err
	}
	return s, nil
}

func (l *Ledger) authorize(ctx context.Context, tx domain.LedgerTx, caller common.Address, op Operation) (domain.PoolConfig, error) {
	cfg, err := tx.PoolConfig(ctx)
	if err != nil {
		return domain.PoolConfig{}, err
	}
	if err := l.auth.Authorize(ctx, caller, cfg, op); err != nil {
		return domain.PoolConfig{}, err
	}
	return cfg, nil
}

// lockStake takes the cross-process lock for one stake when a LockManager is
// configured.
func (l *Ledger) lockStake(ctx context.Context, id uint64) (func(), error) {
	if l.locks == nil {
		return func() {}, nil
	}
	unlock, err := l.locks.Acquire(ctx, "stake:"+strconv.FormatUint(id, 10), l.ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			l.logger.WarnContext(ctx, "vesting: stake busy", slog.Uint64("stake_id", id))
		}
		return nil, err
	}
	return unlock, nil
}

func validateStakeInput(owner common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) {
		return domain.ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("amount must be > 0: %w", domain.ErrInvalidAmount)
	}
	return nil
}

func validateRates(initialUnlockBps, feeBps uint64) error {
	if initialUnlockBps > domain.BasisPoints {
		return fmt.Errorf("initial unlock rate %d bps exceeds %d: %w", initialUnlockBps, domain.BasisPoints, domain.ErrInvalidRate)
	}
	if feeBps > domain.BasisPoints {
		return fmt.Errorf("withdraw fee rate %d bps exceeds %d: %w", feeBps, domain.BasisPoints, domain.ErrInvalidRate)
	}
	return nil
}
