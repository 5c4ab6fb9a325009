package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists pool configuration, stake records and the token book.
// Every mutation runs inside Atomic; an error returned from fn discards every
// write made through the transaction, token movements included.
type LedgerStore interface {
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the transactional view handed to Atomic and View callbacks.
type LedgerTx interface {
	// Initialized reports whether Initialize has run.
	Initialized(ctx context.Context) (bool, error)
	// Initialize seeds the pool config and the first stake id.
	Initialize(ctx context.Context, cfg PoolConfig, idBase uint64) error
	PoolConfig(ctx context.Context) (PoolConfig, error)
	SavePoolConfig(ctx context.Context, cfg PoolConfig) error

	// NextStakeID allocates the next id. Allocation is undone on rollback.
	NextStakeID(ctx context.Context) (uint64, error)
	InsertStake(ctx context.Context, s Stake) error
	UpdateStake(ctx context.Context, s Stake) error
	GetStake(ctx context.Context, id uint64) (Stake, error)
	UserStakeIDs(ctx context.Context, owner common.Address) ([]uint64, error)
	ListStakes(ctx context.Context, opts ListOpts) ([]Stake, error)
	TotalStaked(ctx context.Context) (*uint256.Int, error)

	// Token returns the book for one token, bound to this transaction.
	Token(token common.Address) TokenLedger
}

// TokenLedger is the fungible balance/transfer/allowance authority. Transfer
// failures surface as ErrInsufficientFunds.
type TokenLedger interface {
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount from owner to `to` using spender's allowance.
	TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
