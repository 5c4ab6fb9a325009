// Package vesting implements the staking pool's accounting engine: how a
// deposit becomes a reward schedule, how much of that schedule is claimable
// at a given oracle time, and the state transitions that move tokens.
package vesting

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

var bpsDenominator = uint256.NewInt(domain.BasisPoints)

// TotalReward returns principal + principal*bonusRateBps/10000.
func TotalReward(principal *uint256.Int, bonusRateBps uint64) (*uint256.Int, error) {
	bonus, overflow := new(uint256.Int).MulDivOverflow(principal, uint256.NewInt(bonusRateBps), bpsDenominator)
	if overflow {
		return nil, fmt.Errorf("vesting: bonus overflows: %w", domain.ErrInvalidAmount)
	}
	total, overflow := new(uint256.Int).AddOverflow(principal, bonus)
	if overflow {
		return nil, fmt.Errorf("vesting: total reward overflows: %w", domain.ErrInvalidAmount)
	}
	return total, nil
}

// InitialUnlock returns the part of the total reward released the instant the
// lock ends.
func InitialUnlock(s domain.Stake) *uint256.Int {
	initial, overflow := new(uint256.Int).MulDivOverflow(s.TotalReward, uint256.NewInt(s.InitialUnlockRateBps), bpsDenominator)
	if overflow || initial.Gt(s.TotalReward) {
		return new(uint256.Int).Set(s.TotalReward)
	}
	return initial
}

// Vested returns how much of the stake's total reward has unlocked at now,
// using only the rates snapshotted on the stake.
func Vested(s domain.Stake, now uint64) *uint256.Int {
	lockEnd := s.LockEnd()
	if now < lockEnd {
		return new(uint256.Int)
	}

	initial := InitialUnlock(s)
	remainder := new(uint256.Int).Sub(s.TotalReward, initial)

	elapsed := now - lockEnd
	linear := remainder
	if s.LinearDuration > 0 && elapsed < s.LinearDuration {
		// elapsed < duration keeps the quotient below remainder.
		linear, _ = new(uint256.Int).MulDivOverflow(remainder, uint256.NewInt(elapsed), uint256.NewInt(s.LinearDuration))
	}

	vested := new(uint256.Int).Add(initial, linear)
	if vested.Gt(s.TotalReward) {
		vested.Set(s.TotalReward)
	}
	return vested
}

// Pending returns the amount the owner may claim at now. Closed stakes never
// have anything pending.
func Pending(s domain.Stake, now uint64) *uint256.Int {
	if s.Closed {
		return new(uint256.Int)
	}
	vested := Vested(s, now)
	if !vested.Gt(s.ClaimedAmount) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, s.ClaimedAmount)
}

// Progress describes a stake at now for portfolio views.
func Progress(s domain.Stake, now uint64) domain.StakeProgress {
	vested := Vested(s, now)
	p := domain.StakeProgress{
		Stake:   s.Clone(),
		Pending: Pending(s, now),
		Vested:  vested,
	}
	if !s.TotalReward.IsZero() {
		bps, _ := new(uint256.Int).MulDivOverflow(vested, bpsDenominator, s.TotalReward)
		p.ProgressBps = bps.Uint64()
	}
	switch {
	case s.Closed:
	case now < s.LockEnd():
		p.NextRelease = s.LockEnd()
	case now < s.VestEnd():
		p.NextRelease = s.VestEnd()
	}
	return p
}

// WithdrawFee splits amount into the fee charged at feeRateBps and the net
// amount paid out.
func WithdrawFee(amount *uint256.Int, feeRateBps uint64) (fee, net *uint256.Int) {
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(feeRateBps), bpsDenominator)
	if overflow || fee.Gt(amount) {
		fee = new(uint256.Int).Set(amount)
	}
	return fee, new(uint256.Int).Sub(amount, fee)
}
