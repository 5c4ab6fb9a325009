package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// tokenBook is the token_balances/token_allowances view for one token inside
// a ledger transaction.
type tokenBook struct {
	tx    pgx.Tx
	token string
}

func (b *tokenBook) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	var bal string
	err := b.tx.QueryRow(ctx,
		`SELECT balance::text FROM token_balances WHERE token = $1 AND holder = $2`,
		b.token, encodeAddress(holder),
	).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance of %s: %w", holder.Hex(), err)
	}
	return decodeAmount(bal)
}

func (b *tokenBook) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	var amt string
	err := b.tx.QueryRow(ctx,
		`SELECT amount::text FROM token_allowances WHERE token = $1 AND owner = $2 AND spender = $3`,
		b.token, encodeAddress(owner), encodeAddress(spender),
	).Scan(&amt)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: allowance of %s: %w", owner.Hex(), err)
	}
	return decodeAmount(amt)
}

func (b *tokenBook) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := b.debit(ctx, from, amount); err != nil {
		return err
	}
	return b.credit(ctx, to, amount)
}

func (b *tokenBook) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	const query = `
		UPDATE token_allowances SET amount = amount - $4::numeric
		WHERE token = $1 AND owner = $2 AND spender = $3 AND amount >= $4::numeric`
	tag, err := b.tx.Exec(ctx, query, b.token, encodeAddress(owner), encodeAddress(spender), encodeAmount(amount))
	if err != nil {
		return fmt.Errorf("postgres: spend allowance: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: transfer from %s: allowance below %s: %w", owner.Hex(), amount.Dec(), domain.ErrInsufficientFunds)
	}
	return b.Transfer(ctx, owner, to, amount)
}

func (b *tokenBook) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	const query = `
		INSERT INTO token_allowances (token, owner, spender, amount)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := b.tx.Exec(ctx, query, b.token, encodeAddress(owner), encodeAddress(spender), encodeAmount(amount)); err != nil {
		return fmt.Errorf("postgres: approve: %w", mapErr(err))
	}
	return nil
}

func (b *tokenBook) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return b.credit(ctx, to, amount)
}

func (b *tokenBook) debit(ctx context.Context, from common.Address, amount *uint256.Int) error {
	const query = `
		UPDATE token_balances SET balance = balance - $3::numeric
		WHERE token = $1 AND holder = $2 AND balance >= $3::numeric`
	tag, err := b.tx.Exec(ctx, query, b.token, encodeAddress(from), encodeAmount(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from.Hex(), mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: transfer %s from %s: %w", amount.Dec(), from.Hex(), domain.ErrInsufficientFunds)
	}
	return nil
}

func (b *tokenBook) credit(ctx context.Context, to common.Address, amount *uint256.Int) error {
	const query = `
		INSERT INTO token_balances (token, holder, balance)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (token, holder) DO UPDATE SET balance = token_balances.balance + EXCLUDED.balance`
	if _, err := b.tx.Exec(ctx, query, b.token, encodeAddress(to), encodeAmount(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to.Hex(), mapErr(err))
	}
	return nil
}

var _ domain.TokenLedger = (*tokenBook)(nil)
