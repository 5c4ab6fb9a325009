package vesting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/store/memory"
	"github.com/alanyoungcy/stakevest/internal/vesting"
)

const (
	day   = domain.SecondsPerDay
	start = uint64(1_700_000_000)
)

var (
	token = common.HexToAddress("0x1000000000000000000000000000000000000001")
	pool  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	admin = common.HexToAddress("0xa000000000000000000000000000000000000000")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	carol = common.HexToAddress("0xc000000000000000000000000000000000000003")
)

type fixture struct {
	ledger *vesting.Ledger
	clock  *vesting.ManualClock
	store  *memory.Store
}

func amt(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := domain.ParseUnits(s, domain.TokenDecimals)
	require.NoError(t, err)
	return v
}

func newFixture(t *testing.T, opts ...func(*vesting.Options)) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := vesting.NewManualClock(start)
	store := memory.New()
	o := vesting.Options{
		Token:   token,
		Pool:    pool,
		Genesis: vesting.DefaultPoolConfig(admin),
	}
	for _, fn := range opts {
		fn(&o)
	}
	l, err := vesting.New(store, clock, o)
	require.NoError(t, err)
	require.NoError(t, l.Init(ctx))

	// Reward reserve plus spendable balances for the stakers.
	require.NoError(t, l.Mint(ctx, admin, pool, amt(t, "100000")))
	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, l.Mint(ctx, admin, who, amt(t, "10000")))
		require.NoError(t, l.Approve(ctx, who, amt(t, "10000")))
	}
	return &fixture{ledger: l, clock: clock, store: store}
}

func TestNewRejectsZeroAddresses(t *testing.T) {
	store := memory.New()
	clock := vesting.NewManualClock(start)

	_, err := vesting.New(store, clock, vesting.Options{Pool: pool, Genesis: vesting.DefaultPoolConfig(admin)})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = vesting.New(store, clock, vesting.Options{Token: token, Genesis: vesting.DefaultPoolConfig(admin)})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = vesting.New(store, clock, vesting.Options{Token: token, Pool: pool})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	bad := vesting.DefaultPoolConfig(admin)
	bad.InitialUnlockRateBps = 10_001
	_, err = vesting.New(store, clock, vesting.Options{Token: token, Pool: pool, Genesis: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
}

func TestNewRejectsOversizedGenesisDurations(t *testing.T) {
	store := memory.New()
	clock := vesting.NewManualClock(start)
	limit := domain.MaxDurationDays * day

	long := vesting.DefaultPoolConfig(admin)
	long.LockDuration = limit + 1
	_, err := vesting.New(store, clock, vesting.Options{Token: token, Pool: pool, Genesis: long})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	long = vesting.DefaultPoolConfig(admin)
	long.LinearDuration = limit + 1
	_, err = vesting.New(store, clock, vesting.Options{Token: token, Pool: pool, Genesis: long})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	edge := vesting.DefaultPoolConfig(admin)
	edge.LockDuration = limit
	edge.LinearDuration = limit
	_, err = vesting.New(store, clock, vesting.Options{Token: token, Pool: pool, Genesis: edge})
	assert.NoError(t, err)
}

func TestLongLockStaysLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *vesting.Options) {
		o.Genesis.LockDuration = domain.MaxDurationDays * day
	})

	s, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)

	f.clock.AdvanceSeconds(1000 * 365 * day)
	_, err = f.ledger.Claim(ctx, alice, s.ID)
	assert.ErrorIs(t, err, domain.ErrLockedPeriodActive)

	pending, err := f.ledger.PendingAmount(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsZero())
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{BonusRateBps: 100, LockDays: 1, LinearDays: 1})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Init(ctx))

	cfg, err := f.ledger.PoolConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cfg.BonusRateBps, "second Init must not reset config")
}

func TestStakeAndClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)
	assert.Equal(t, uint64(8888), s.ID)
	assert.Equal(t, amt(t, "1500"), s.TotalReward)
	assert.Equal(t, start, s.StartTime)
	assert.Equal(t, 88*day, s.LockDuration)
	assert.Equal(t, 270*day, s.LinearDuration)
	assert.Equal(t, uint64(1000), s.InitialUnlockRateBps)
	assert.Equal(t, domain.OriginUser, s.Origin)

	bal, err := f.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "9000"), bal)

	_, err = f.ledger.Claim(ctx, alice, s.ID)
	require.ErrorIs(t, err, domain.ErrLockedPeriodActive)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	f.clock.AdvanceSeconds(88 * day)
	paid, err := f.ledger.Claim(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "150"), paid)

	_, err = f.ledger.Claim(ctx, alice, s.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim, "second claim at the same instant pays nothing")

	f.clock.AdvanceSeconds(135 * day)
	pending, err := f.ledger.PendingAmount(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "675"), pending)

	paid, err = f.ledger.Claim(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "675"), paid)

	f.clock.AdvanceSeconds(400 * day)
	paid, err = f.ledger.Claim(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "675"), paid)

	rec, err := f.ledger.StakeRecord(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.TotalReward, rec.ClaimedAmount)

	bal, err = f.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "10500"), bal)
}

func TestSplitClaimsEqualSingleClaim(t *testing.T) {
	ctx := context.Background()
	split := newFixture(t)
	single := newFixture(t)

	for _, f := range []*fixture{split, single} {
		_, err := f.ledger.Stake(ctx, alice, amt(t, "777"))
		require.NoError(t, err)
	}

	split.clock.AdvanceSeconds(100 * day)
	first, err := split.ledger.Claim(ctx, alice, 8888)
	require.NoError(t, err)
	split.clock.AdvanceSeconds(50 * day)
	second, err := split.ledger.Claim(ctx, alice, 8888)
	require.NoError(t, err)

	single.clock.AdvanceSeconds(150 * day)
	once, err := single.ledger.Claim(ctx, alice, 8888)
	require.NoError(t, err)

	assert.Equal(t, once, new(uint256.Int).Add(first, second))
}

func TestConfigChangeDoesNotAffectExistingStakes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)

	rate := uint64(0)
	cfg, err := f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{
		BonusRateBps:         10_000,
		LockDays:             10,
		LinearDays:           20,
		InitialUnlockRateBps: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*day, cfg.LockDuration)
	assert.Equal(t, 20*day, cfg.LinearDuration)
	assert.Zero(t, cfg.InitialUnlockRateBps)

	rec, err := f.ledger.StakeRecord(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, old, rec)

	f.clock.AdvanceSeconds(88 * day)
	pending, err := f.ledger.PendingAmount(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "150"), pending)

	fresh, err := f.ledger.Stake(ctx, bob, amt(t, "1000"))
	require.NoError(t, err)
	assert.Equal(t, amt(t, "2000"), fresh.TotalReward)
	assert.Equal(t, 10*day, fresh.LockDuration)
	assert.Zero(t, fresh.InitialUnlockRateBps)
}

func TestUpdateConfigKeepsInitialRateWhenOmitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cfg, err := f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{BonusRateBps: 1, LockDays: 2, LinearDays: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), cfg.InitialUnlockRateBps)

	bad := uint64(10_001)
	_, err = f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{InitialUnlockRateBps: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	_, err = f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{LockDays: domain.MaxDurationDays + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
	_, err = f.ledger.UpdateConfig(ctx, admin, domain.ConfigUpdate{LinearDays: domain.MaxDurationDays + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	after, err := f.ledger.PoolConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*day, after.LockDuration, "rejected update leaves config unchanged")
}

func TestStakeIDsAreSequentialAndIndexed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []uint64
	for _, who := range []common.Address{alice, bob, alice} {
		s, err := f.ledger.Stake(ctx, who, amt(t, "10"))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint64{8888, 8889, 8890}, ids)

	aliceIDs, err := f.ledger.UserStakeIDs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{8888, 8890}, aliceIDs)

	none, err := f.ledger.UserStakeIDs(ctx, carol)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	total, err := f.ledger.TotalStaked(ctx)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "30"), total)
}

func TestStakeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Stake(ctx, alice, new(uint256.Int))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.ledger.Stake(ctx, common.Address{}, amt(t, "1"))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestStakeInsufficientFundsLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Stake(ctx, carol, amt(t, "1"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds, "no allowance")

	require.NoError(t, f.ledger.Approve(ctx, carol, amt(t, "5")))
	_, err = f.ledger.Stake(ctx, carol, amt(t, "1"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds, "allowance but no balance")

	ids, err := f.ledger.UserStakeIDs(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, ids)

	allow, err := f.ledger.Allowance(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "5"), allow)

	s, err := f.ledger.Stake(ctx, alice, amt(t, "1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(8888), s.ID, "failed stakes do not consume ids")
}

func TestAdminOperationsRequireAdministrator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.ledger.PoolConfig(ctx)
	require.NoError(t, err)

	_, err = f.ledger.UpdateConfig(ctx, alice, domain.ConfigUpdate{BonusRateBps: 1})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.ledger.SetWithdrawFeeRate(ctx, alice, 10)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.ledger.TransferAdmin(ctx, alice, alice)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.ledger.AdminStakeForUser(ctx, alice, alice, amt(t, "1"))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.ledger.AdminBatchStakeForUsers(ctx, bob, []common.Address{alice}, []*uint256.Int{amt(t, "1")})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	err = f.ledger.EmergencyWithdraw(ctx, alice, token, amt(t, "1"))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	err = f.ledger.Mint(ctx, alice, alice, amt(t, "1"))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	after, err := f.ledger.PoolConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ids, err := f.ledger.UserStakeIDs(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestClaimByNonOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.ledger.Stake(ctx, alice, amt(t, "100"))
	require.NoError(t, err)
	f.clock.AdvanceSeconds(400 * day)

	_, err = f.ledger.Claim(ctx, bob, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.ledger.Claim(ctx, alice, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.ledger.PendingAmount(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminStakeForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	poolBefore, err := f.ledger.PoolBalance(ctx)
	require.NoError(t, err)

	s, err := f.ledger.AdminStakeForUser(ctx, admin, carol, amt(t, "50"))
	require.NoError(t, err)
	assert.Equal(t, carol, s.Owner)
	assert.Equal(t, domain.OriginAdmin, s.Origin)

	poolAfter, err := f.ledger.PoolBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, poolBefore, poolAfter, "admin stakes move no tokens")

	f.clock.AdvanceSeconds(88 * day)
	paid, err := f.ledger.Claim(ctx, carol, s.ID)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "7.5"), paid)
}

func TestAdminBatchStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.AdminBatchStakeForUsers(ctx, admin,
		[]common.Address{alice, bob}, []*uint256.Int{amt(t, "1")})
	require.ErrorIs(t, err, domain.ErrArrayLengthMismatch)

	_, err = f.ledger.AdminBatchStakeForUsers(ctx, admin,
		[]common.Address{alice, bob}, []*uint256.Int{amt(t, "1"), new(uint256.Int)})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	for _, who := range []common.Address{alice, bob} {
		ids, err := f.ledger.UserStakeIDs(ctx, who)
		require.NoError(t, err)
		assert.Empty(t, ids, "rejected batch must create nothing")
	}

	created, err := f.ledger.AdminBatchStakeForUsers(ctx, admin,
		[]common.Address{alice, bob, alice}, []*uint256.Int{amt(t, "1"), amt(t, "2"), amt(t, "3")})
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, uint64(8888), created[0].ID)
	assert.Equal(t, uint64(8890), created[2].ID)
	assert.Equal(t, amt(t, "3"), created[1].TotalReward)

	empty, err := f.ledger.AdminBatchStakeForUsers(ctx, admin, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAdminCloseStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.ledger.Stake(ctx, alice, amt(t, "100"))
	require.NoError(t, err)
	keep, err := f.ledger.Stake(ctx, alice, amt(t, "40"))
	require.NoError(t, err)

	_, err = f.ledger.AdminCloseStake(ctx, alice, s.ID)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	f.clock.AdvanceSeconds(day)
	closed, err := f.ledger.AdminCloseStake(ctx, admin, s.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Equal(t, start+day, closed.ClosedAt)

	_, err = f.ledger.AdminCloseStake(ctx, admin, s.ID)
	assert.ErrorIs(t, err, domain.ErrStakeClosed)

	f.clock.AdvanceSeconds(400 * day)
	pending, err := f.ledger.PendingAmount(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsZero(), "closed stake has nothing pending after full vest")

	_, err = f.ledger.Claim(ctx, alice, s.ID)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
	assert.ErrorIs(t, err, domain.ErrStakeClosed)

	ids, err := f.ledger.UserStakeIDs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{s.ID, keep.ID}, ids)

	total, err := f.ledger.TotalStaked(ctx)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "40"), total)

	next, err := f.ledger.Stake(ctx, bob, amt(t, "5"))
	require.NoError(t, err)
	assert.Equal(t, keep.ID+1, next.ID, "closed ids are never reused")
}

func TestTransferAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.TransferAdmin(ctx, admin, common.Address{})
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	cfg, err := f.ledger.TransferAdmin(ctx, admin, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, cfg.Administrator)

	_, err = f.ledger.SetWithdrawFeeRate(ctx, admin, 10)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.ledger.SetWithdrawFeeRate(ctx, bob, 10)
	assert.NoError(t, err)
}

func TestWithdrawFeeRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.SetWithdrawFeeRate(ctx, admin, 10_001)
	require.ErrorIs(t, err, domain.ErrInvalidRate)

	cfg, err := f.ledger.SetWithdrawFeeRate(ctx, admin, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), cfg.WithdrawFeeRateBps)

	fee, net, err := f.ledger.QuoteWithdrawFee(ctx, amt(t, "100"))
	require.NoError(t, err)
	assert.Equal(t, amt(t, "3"), fee)
	assert.Equal(t, amt(t, "97"), net)
}

func TestEmergencyWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)

	all, err := f.ledger.PoolBalance(ctx)
	require.NoError(t, err)
	require.NoError(t, f.ledger.EmergencyWithdraw(ctx, admin, token, all))

	left, err := f.ledger.PoolBalance(ctx)
	require.NoError(t, err)
	assert.True(t, left.IsZero())

	err = f.ledger.EmergencyWithdraw(ctx, admin, token, amt(t, "1"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	f.clock.AdvanceSeconds(88 * day)
	_, err = f.ledger.Claim(ctx, alice, 8888)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds, "drained pool cannot pay")

	rec, err := f.ledger.StakeRecord(ctx, 8888)
	require.NoError(t, err)
	assert.True(t, rec.ClaimedAmount.IsZero(), "failed payout rolls back the claimed counter")
}

func TestPortfolio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)
	f.clock.AdvanceSeconds(88 * day)
	_, err = f.ledger.Claim(ctx, alice, 8888)
	require.NoError(t, err)
	f.clock.AdvanceSeconds(135 * day)
	_, err = f.ledger.Stake(ctx, alice, amt(t, "100"))
	require.NoError(t, err)

	p, err := f.ledger.Portfolio(ctx, alice)
	require.NoError(t, err)
	require.Len(t, p.Stakes, 2)
	assert.Equal(t, amt(t, "150"), p.Claimed)
	assert.Equal(t, amt(t, "675"), p.Claimable)
	assert.Equal(t, amt(t, "825"), p.Locked)
	assert.Equal(t, uint64(5500), p.Stakes[0].ProgressBps)
	assert.Equal(t, p.Stakes[1].Stake.LockEnd(), p.Stakes[1].NextRelease)

	empty, err := f.ledger.Portfolio(ctx, carol)
	require.NoError(t, err)
	assert.True(t, empty.Locked.IsZero())
	assert.Empty(t, empty.Stakes)
}

type busyLocks struct{}

func (busyLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestClaimHonoursStakeLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *vesting.Options) { o.Locks = busyLocks{} })

	_, err := f.ledger.Stake(ctx, alice, amt(t, "1"))
	require.NoError(t, err)
	f.clock.AdvanceSeconds(400 * day)

	_, err = f.ledger.Claim(ctx, alice, 8888)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Stake(ctx, alice, amt(t, "1000"))
	require.NoError(t, err)
	f.clock.AdvanceSeconds(400 * day)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total = new(uint256.Int)
		fails int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid, err := f.ledger.Claim(ctx, alice, 8888)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrNothingToClaim) {
				fails++
				return
			}
			if err == nil {
				total.Add(total, paid)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, amt(t, "1500"), total)
	assert.Equal(t, 7, fails)
}

func TestMonotonicClock(t *testing.T) {
	ctx := context.Background()
	readings := []uint64{100, 90, 120, 110}
	i := 0
	c := vesting.NewMonotonicClock(vesting.ClockFunc(func(context.Context) (uint64, error) {
		v := readings[i]
		i++
		return v, nil
	}))

	var got []uint64
	for range readings {
		v, err := c.Now(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []uint64{100, 100, 120, 120}, got)
}
