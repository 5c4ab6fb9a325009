package domain

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// BasisPoints is the denominator of every rate field.
	BasisPoints uint64 = 10_000
	// SecondsPerDay converts day-denominated config updates to seconds.
	SecondsPerDay uint64 = 86_400
	// DefaultStakeIDBase is the id assigned to the first stake of a ledger.
	DefaultStakeIDBase uint64 = 8888
	// MaxDurationDays bounds lock and linear durations so their conversion to
	// seconds cannot overflow.
	MaxDurationDays uint64 = 1 << 32
)

// StakeOrigin records which operation created a stake.
type StakeOrigin string

const (
	OriginUser  StakeOrigin = "user"
	OriginAdmin StakeOrigin = "admin"
)

// PoolConfig is the live, administrator-mutable configuration of the pool.
// Its rate and duration fields only affect stakes created after a change.
type PoolConfig struct {
	BonusRateBps         uint64
	LockDuration         uint64 // seconds
	LinearDuration       uint64 // seconds
	InitialUnlockRateBps uint64
	WithdrawFeeRateBps   uint64
	Administrator        common.Address
	UpdatedAt            time.Time
}

// ConfigUpdate carries the arguments of updateConfig. Durations are in days.
// A nil InitialUnlockRateBps keeps the current value.
type ConfigUpdate struct {
	BonusRateBps         uint64
	LockDays             uint64
	LinearDays           uint64
	InitialUnlockRateBps *uint64
}

// Stake is a single deposit and the vesting schedule snapshotted at creation.
type Stake struct {
	ID            uint64
	Owner         common.Address
	Principal     *uint256.Int
	TotalReward   *uint256.Int
	StartTime     uint64 // unix seconds from the time oracle
	ClaimedAmount *uint256.Int

	LockDuration         uint64
	LinearDuration       uint64
	InitialUnlockRateBps uint64

	Origin   StakeOrigin
	Closed   bool
	ClosedAt uint64
}

// LockEnd returns the oracle timestamp at which the lock ends, saturating at
// the largest timestamp.
func (s Stake) LockEnd() uint64 {
	return AddSeconds(s.StartTime, s.LockDuration)
}

// VestEnd returns the oracle timestamp at which the full reward is vested.
func (s Stake) VestEnd() uint64 {
	return AddSeconds(s.LockEnd(), s.LinearDuration)
}

// AddSeconds returns t+d, saturating instead of wrapping.
func AddSeconds(t, d uint64) uint64 {
	if t > math.MaxUint64-d {
		return math.MaxUint64
	}
	return t + d
}

// Outstanding returns TotalReward - ClaimedAmount.
func (s Stake) Outstanding() *uint256.Int {
	if s.ClaimedAmount.Gt(s.TotalReward) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(s.TotalReward, s.ClaimedAmount)
}

// Clone returns a deep copy so callers can mutate amounts freely.
func (s Stake) Clone() Stake {
	out := s
	out.Principal = cloneAmount(s.Principal)
	out.TotalReward = cloneAmount(s.TotalReward)
	out.ClaimedAmount = cloneAmount(s.ClaimedAmount)
	return out
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// StakeProgress summarises one stake for presentation.
type StakeProgress struct {
	Stake       Stake
	Pending     *uint256.Int
	Vested      *uint256.Int
	ProgressBps uint64
	NextRelease uint64 // 0 when nothing further will unlock
}

// Portfolio aggregates every stake owned by one identity.
type Portfolio struct {
	Owner     common.Address
	Locked    *uint256.Int // total reward not yet vested
	Claimable *uint256.Int
	Claimed   *uint256.Int
	Stakes    []StakeProgress
}

// LedgerExport is a consistent copy of the whole ledger at one oracle time.
type LedgerExport struct {
	Config      PoolConfig
	Stakes      []Stake
	TotalStaked *uint256.Int
	PoolBalance *uint256.Int
	OracleTime  uint64
}
