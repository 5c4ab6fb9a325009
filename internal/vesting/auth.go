package vesting

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// Operation names an administrator-gated ledger operation.
type Operation string

const (
	OpAdminStake        Operation = "admin_stake"
	OpAdminBatchStake   Operation = "admin_batch_stake"
	OpAdminCloseStake   Operation = "admin_close_stake"
	OpUpdateConfig      Operation = "update_config"
	OpSetWithdrawFee    Operation = "set_withdraw_fee_rate"
	OpTransferAdmin     Operation = "transfer_admin"
	OpEmergencyWithdraw Operation = "emergency_withdraw"
	OpMint              Operation = "mint"
)

// Authorizer decides whether caller may run an administrator-gated operation.
// It returns an error wrapping domain.ErrNotAuthorized to refuse.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, cfg domain.PoolConfig, op Operation) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller common.Address, cfg domain.PoolConfig, op Operation) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, caller common.Address, cfg domain.PoolConfig, op Operation) error {
	return f(ctx, caller, cfg, op)
}

// AdminPolicy grants every gated operation to the configured administrator
// and nobody else.
type AdminPolicy struct{}

// Authorize implements Authorizer.
func (AdminPolicy) Authorize(_ context.Context, caller common.Address, cfg domain.PoolConfig, op Operation) error {
	if caller == (common.Address{}) || caller != cfg.Administrator {
		return fmt.Errorf("vesting: %s by %s: %w", op, caller.Hex(), domain.ErrNotAuthorized)
	}
	return nil
}
