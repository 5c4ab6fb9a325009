package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Atomic runs in a read-committed
// transaction that row-locks the state and stake rows it reads; View runs in
// a read-only repeatable-read snapshot.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Atomic implements domain.LedgerStore.
func (s *LedgerStore) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx, lock: true})
	})
}

// View implements domain.LedgerStore.
func (s *LedgerStore) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *ledgerTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (t *ledgerTx) Initialized(ctx context.Context) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_state WHERE id = 1)`).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: ledger initialized: %w", err)
	}
	return ok, nil
}

func (t *ledgerTx) Initialize(ctx context.Context, cfg domain.PoolConfig, idBase uint64) error {
	const query = `
		INSERT INTO ledger_state (
			id, bonus_rate_bps, lock_duration, linear_duration,
			initial_unlock_rate_bps, withdraw_fee_rate_bps, administrator,
			next_stake_id, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	_, err := t.tx.Exec(ctx, query,
		int64(cfg.BonusRateBps), int64(cfg.LockDuration), int64(cfg.LinearDuration),
		int64(cfg.InitialUnlockRateBps), int64(cfg.WithdrawFeeRateBps),
		encodeAddress(cfg.Administrator), int64(idBase), cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: initialize ledger: %w", mapErr(err))
	}
	return nil
}

func (t *ledgerTx) PoolConfig(ctx context.Context) (domain.PoolConfig, error) {
	query := `
		SELECT bonus_rate_bps, lock_duration, linear_duration,
		       initial_unlock_rate_bps, withdraw_fee_rate_bps,
		       administrator, updated_at
		FROM ledger_state WHERE id = 1` + t.forUpdate()

	var (
		cfg                                  domain.PoolConfig
		bonus, lock, linear, initial, feeBps int64
		admin                                string
		updatedAt                            time.Time
	)
	err := t.tx.QueryRow(ctx, query).Scan(&bonus, &lock, &linear, &initial, &feeBps, &admin, &updatedAt)
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("postgres: pool config: %w", mapErr(err))
	}
	cfg.BonusRateBps = uint64(bonus)
	cfg.LockDuration = uint64(lock)
	cfg.LinearDuration = uint64(linear)
	cfg.InitialUnlockRateBps = uint64(initial)
	cfg.WithdrawFeeRateBps = uint64(feeBps)
	cfg.Administrator = common.HexToAddress(admin)
	cfg.UpdatedAt = updatedAt.UTC()
	return cfg, nil
}

func (t *ledgerTx) SavePoolConfig(ctx context.Context, cfg domain.PoolConfig) error {
	const query = `
		UPDATE ledger_state SET
			bonus_rate_bps = $1, lock_duration = $2, linear_duration = $3,
			initial_unlock_rate_bps = $4, withdraw_fee_rate_bps = $5,
			administrator = $6, updated_at = $7
		WHERE id = 1`
	tag, err := t.tx.Exec(ctx, query,
		int64(cfg.BonusRateBps), int64(cfg.LockDuration), int64(cfg.LinearDuration),
		int64(cfg.InitialUnlockRateBps), int64(cfg.WithdrawFeeRateBps),
		encodeAddress(cfg.Administrator), cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save pool config: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save pool config: %w", domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) NextStakeID(ctx context.Context) (uint64, error) {
	const query = `
		UPDATE ledger_state SET next_stake_id = next_stake_id + 1
		WHERE id = 1
		RETURNING next_stake_id - 1`
	var id int64
	if err := t.tx.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next stake id: %w", mapErr(err))
	}
	return uint64(id), nil
}

const stakeSelectCols = `id, owner, principal::text, total_reward::text, start_time,
	claimed_amount::text, lock_duration, linear_duration, initial_unlock_rate_bps,
	origin, closed, closed_at`

func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		s                                    domain.Stake
		id, start, lock, linear, initial, at int64
		owner, principal, total, claimed     string
		origin                               string
	)
	if err := row.Scan(&id, &owner, &principal, &total, &start, &claimed,
		&lock, &linear, &initial, &origin, &s.Closed, &at); err != nil {
		return domain.Stake{}, err
	}

	var err error
	if s.Principal, err = decodeAmount(principal); err != nil {
		return domain.Stake{}, err
	}
	if s.TotalReward, err = decodeAmount(total); err != nil {
		return domain.Stake{}, err
	}
	if s.ClaimedAmount, err = decodeAmount(claimed); err != nil {
		return domain.Stake{}, err
	}
	s.ID = uint64(id)
	s.Owner = common.HexToAddress(owner)
	s.StartTime = uint64(start)
	s.LockDuration = uint64(lock)
	s.LinearDuration = uint64(linear)
	s.InitialUnlockRateBps = uint64(initial)
	s.Origin = domain.StakeOrigin(origin)
	s.ClosedAt = uint64(at)
	return s, nil
}

func (t *ledgerTx) InsertStake(ctx context.Context, s domain.Stake) error {
	const query = `
		INSERT INTO stakes (
			id, owner, principal, total_reward, start_time, claimed_amount,
			lock_duration, linear_duration, initial_unlock_rate_bps,
			origin, closed, closed_at
		) VALUES (
			$1, $2, $3::numeric, $4::numeric, $5, $6::numeric,
			$7, $8, $9,
			$10, $11, $12
		)`
	_, err := t.tx.Exec(ctx, query,
		int64(s.ID), encodeAddress(s.Owner),
		encodeAmount(s.Principal), encodeAmount(s.TotalReward), int64(s.StartTime), encodeAmount(s.ClaimedAmount),
		int64(s.LockDuration), int64(s.LinearDuration), int64(s.InitialUnlockRateBps),
		string(s.Origin), s.Closed, int64(s.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert stake %d: %w", s.ID, mapErr(err))
	}
	return nil
}

// UpdateStake writes the mutable columns of a stake. Schedule fields are
// immutable after insert.
func (t *ledgerTx) UpdateStake(ctx context.Context, s domain.Stake) error {
	const query = `
		UPDATE stakes SET claimed_amount = $2::numeric, closed = $3, closed_at = $4
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query, int64(s.ID), encodeAmount(s.ClaimedAmount), s.Closed, int64(s.ClosedAt))
	if err != nil {
		return fmt.Errorf("postgres: update stake %d: %w", s.ID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update stake %d: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) GetStake(ctx context.Context, id uint64) (domain.Stake, error) {
	query := `SELECT ` + stakeSelectCols + ` FROM stakes WHERE id = $1` + t.forUpdate()
	s, err := scanStake(t.tx.QueryRow(ctx, query, int64(id)))
	if err != nil {
		return domain.Stake{}, fmt.Errorf("postgres: get stake %d: %w", id, mapErr(err))
	}
	return s, nil
}

func (t *ledgerTx) UserStakeIDs(ctx context.Context, owner common.Address) ([]uint64, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM stakes WHERE owner = $1 ORDER BY id`, encodeAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("postgres: user stake ids: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan stake id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: user stake ids rows: %w", err)
	}
	return ids, nil
}

func (t *ledgerTx) ListStakes(ctx context.Context, opts domain.ListOpts) ([]domain.Stake, error) {
	query := `SELECT ` + stakeSelectCols + ` FROM stakes WHERE 1=1`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY id"
	page, args := pageClause(opts, args)
	query += page

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes: %w", err)
	}
	defer rows.Close()

	var out []domain.Stake
	for rows.Next() {
		s, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stakes rows: %w", err)
	}
	return out, nil
}

func (t *ledgerTx) TotalStaked(ctx context.Context) (*uint256.Int, error) {
	var total string
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(principal), 0)::text FROM stakes WHERE NOT closed`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("postgres: total staked: %w", err)
	}
	return decodeAmount(total)
}

func (t *ledgerTx) Token(token common.Address) domain.TokenLedger {
	return &tokenBook{tx: t.tx, token: encodeAddress(token)}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
