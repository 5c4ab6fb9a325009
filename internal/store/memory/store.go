// Package memory implements domain.LedgerStore in process memory. Each Atomic
// call works on a private copy of the state that replaces the live state only
// when the callback succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type state struct {
	initialized bool
	cfg         domain.PoolConfig
	nextID      uint64
	stakes      map[uint64]domain.Stake
	byOwner     map[common.Address][]uint64
	balances    map[common.Address]map[common.Address]*uint256.Int
	allowances  map[common.Address]map[allowanceKey]*uint256.Int
}

func newState() *state {
	return &state{
		stakes:     make(map[uint64]domain.Stake),
		byOwner:    make(map[common.Address][]uint64),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[allowanceKey]*uint256.Int),
	}
}

func (s *state) clone() *state {
	out := &state{
		initialized: s.initialized,
		cfg:         s.cfg,
		nextID:      s.nextID,
		stakes:      make(map[uint64]domain.Stake, len(s.stakes)),
		byOwner:     make(map[common.Address][]uint64, len(s.byOwner)),
		balances:    make(map[common.Address]map[common.Address]*uint256.Int, len(s.balances)),
		allowances:  make(map[common.Address]map[allowanceKey]*uint256.Int, len(s.allowances)),
	}
	for id, st := range s.stakes {
		out.stakes[id] = st.Clone()
	}
	for owner, ids := range s.byOwner {
		out.byOwner[owner] = slices.Clone(ids)
	}
	for token, book := range s.balances {
		cp := make(map[common.Address]*uint256.Int, len(book))
		for k, v := range book {
			cp[k] = new(uint256.Int).Set(v)
		}
		out.balances[token] = cp
	}
	for token, book := range s.allowances {
		cp := make(map[allowanceKey]*uint256.Int, len(book))
		for k, v := range book {
			cp[k] = new(uint256.Int).Set(v)
		}
		out.allowances[token] = cp
	}
	return out
}

// Store is an in-memory domain.LedgerStore. Atomic calls are serialized.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// Atomic implements domain.LedgerStore.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// View implements domain.LedgerStore.
func (s *Store) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{st: s.st, readOnly: true})
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) Initialized(context.Context) (bool, error) {
	return t.st.initialized, nil
}

func (t *tx) Initialize(_ context.Context, cfg domain.PoolConfig, idBase uint64) error {
	if t.readOnly {
		return errReadOnly
	}
	if t.st.initialized {
		return fmt.Errorf("memory: ledger already initialized")
	}
	t.st.initialized = true
	t.st.cfg = cfg
	t.st.nextID = idBase
	return nil
}

func (t *tx) PoolConfig(context.Context) (domain.PoolConfig, error) {
	if !t.st.initialized {
		return domain.PoolConfig{}, fmt.Errorf("memory: pool config: %w", domain.ErrNotFound)
	}
	return t.st.cfg, nil
}

func (t *tx) SavePoolConfig(_ context.Context, cfg domain.PoolConfig) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.cfg = cfg
	return nil
}

func (t *tx) NextStakeID(context.Context) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	if !t.st.initialized {
		return 0, fmt.Errorf("memory: next stake id: %w", domain.ErrNotFound)
	}
	id := t.st.nextID
	t.st.nextID++
	return id, nil
}

func (t *tx) InsertStake(_ context.Context, s domain.Stake) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.st.stakes[s.ID]; ok {
		return fmt.Errorf("memory: insert stake %d: duplicate id", s.ID)
	}
	t.st.stakes[s.ID] = s.Clone()
	t.st.byOwner[s.Owner] = append(t.st.byOwner[s.Owner], s.ID)
	return nil
}

func (t *tx) UpdateStake(_ context.Context, s domain.Stake) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.st.stakes[s.ID]; !ok {
		return fmt.Errorf("memory: update stake %d: %w", s.ID, domain.ErrNotFound)
	}
	t.st.stakes[s.ID] = s.Clone()
	return nil
}

func (t *tx) GetStake(_ context.Context, id uint64) (domain.Stake, error) {
	s, ok := t.st.stakes[id]
	if !ok {
		return domain.Stake{}, fmt.Errorf("memory: stake %d: %w", id, domain.ErrNotFound)
	}
	return s.Clone(), nil
}

func (t *tx) UserStakeIDs(_ context.Context, owner common.Address) ([]uint64, error) {
	return slices.Clone(t.st.byOwner[owner]), nil
}

func (t *tx) ListStakes(_ context.Context, opts domain.ListOpts) ([]domain.Stake, error) {
	ids := slices.Sorted(maps.Keys(t.st.stakes))
	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			return nil, nil
		}
		ids = ids[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}
	out := make([]domain.Stake, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.st.stakes[id].Clone())
	}
	return out, nil
}

func (t *tx) TotalStaked(context.Context) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, s := range t.st.stakes {
		if !s.Closed {
			total.Add(total, s.Principal)
		}
	}
	return total, nil
}

func (t *tx) Token(token common.Address) domain.TokenLedger {
	return &tokenBook{tx: t, token: token}
}
