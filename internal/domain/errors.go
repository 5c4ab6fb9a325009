package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidRate         = errors.New("invalid rate")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrNotOwner            = errors.New("not owner")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrArrayLengthMismatch = errors.New("array length mismatch")
	ErrStakeClosed         = errors.New("stake closed")
	ErrRateLimited         = errors.New("rate limited")

	// ErrLockedPeriodActive is returned by claim before the lock ends. It
	// matches ErrNothingToClaim under errors.Is.
	ErrLockedPeriodActive = fmt.Errorf("%w: locked period active", ErrNothingToClaim)
)
