package memory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// tokenBook is the in-memory balance and allowance table for one token.
type tokenBook struct {
	tx    *tx
	token common.Address
}

func (b *tokenBook) balances() map[common.Address]*uint256.Int {
	m, ok := b.tx.st.balances[b.token]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		if !b.tx.readOnly {
			b.tx.st.balances[b.token] = m
		}
	}
	return m
}

func (b *tokenBook) allowances() map[allowanceKey]*uint256.Int {
	m, ok := b.tx.st.allowances[b.token]
	if !ok {
		m = make(map[allowanceKey]*uint256.Int)
		if !b.tx.readOnly {
			b.tx.st.allowances[b.token] = m
		}
	}
	return m
}

func (b *tokenBook) BalanceOf(_ context.Context, holder common.Address) (*uint256.Int, error) {
	if v, ok := b.balances()[holder]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return new(uint256.Int), nil
}

func (b *tokenBook) Allowance(_ context.Context, owner, spender common.Address) (*uint256.Int, error) {
	if v, ok := b.allowances()[allowanceKey{owner, spender}]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return new(uint256.Int), nil
}

func (b *tokenBook) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	if b.tx.readOnly {
		return errReadOnly
	}
	return b.move(from, to, amount)
}

func (b *tokenBook) TransferFrom(_ context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if b.tx.readOnly {
		return errReadOnly
	}
	allow := b.allowances()
	key := allowanceKey{owner, spender}
	cur, ok := allow[key]
	if !ok || cur.Lt(amount) {
		return fmt.Errorf("memory: transfer from %s: allowance below %s: %w", owner.Hex(), amount.Dec(), domain.ErrInsufficientFunds)
	}
	if err := b.move(owner, to, amount); err != nil {
		return err
	}
	allow[key] = new(uint256.Int).Sub(cur, amount)
	return nil
}

func (b *tokenBook) Approve(_ context.Context, owner, spender common.Address, amount *uint256.Int) error {
	if b.tx.readOnly {
		return errReadOnly
	}
	b.allowances()[allowanceKey{owner, spender}] = new(uint256.Int).Set(amount)
	return nil
}

func (b *tokenBook) Mint(_ context.Context, to common.Address, amount *uint256.Int) error {
	if b.tx.readOnly {
		return errReadOnly
	}
	bal := b.balances()
	cur, ok := bal[to]
	if !ok {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("memory: mint to %s: %w", to.Hex(), domain.ErrInvalidAmount)
	}
	bal[to] = next
	return nil
}

func (b *tokenBook) move(from, to common.Address, amount *uint256.Int) error {
	bal := b.balances()
	src, ok := bal[from]
	if !ok || src.Lt(amount) {
		return fmt.Errorf("memory: transfer %s from %s: %w", amount.Dec(), from.Hex(), domain.ErrInsufficientFunds)
	}
	bal[from] = new(uint256.Int).Sub(src, amount)
	dst, ok := bal[to]
	if !ok {
		dst = new(uint256.Int)
	}
	bal[to] = new(uint256.Int).Add(dst, amount)
	return nil
}

var _ domain.TokenLedger = (*tokenBook)(nil)
