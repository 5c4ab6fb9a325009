package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/vesting"
)

// RateLimit bounds user-initiated mutations per caller. Zero Requests
// disables it.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// StakingService runs ledger operations and, once they commit, publishes a
// LedgerEvent on the bus and stream and writes the audit log. Side-channel
// failures are logged and never fail the operation.
type StakingService struct {
	ledger  *vesting.Ledger
	bus     domain.SignalBus
	audit   domain.AuditStore
	limiter domain.RateLimiter
	limit   RateLimit
	logger  *slog.Logger
}

// NewStakingService creates a StakingService. bus, audit and limiter may be
// nil.
func NewStakingService(
	ledger *vesting.Ledger,
	bus domain.SignalBus,
	audit domain.AuditStore,
	limiter domain.RateLimiter,
	limit RateLimit,
	logger *slog.Logger,
) *StakingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StakingService{
		ledger:  ledger,
		bus:     bus,
		audit:   audit,
		limiter: limiter,
		limit:   limit,
		logger:  logger,
	}
}

// Ledger exposes the underlying ledger for read-only queries.
func (s *StakingService) Ledger() *vesting.Ledger {
	return s.ledger
}

// Stake deposits amount for caller.
func (s *StakingService) Stake(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Stake, error) {
	if err := s.throttle(ctx, caller); err != nil {
		return domain.Stake{}, err
	}
	st, err := s.ledger.Stake(ctx, caller, amount)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("staking_service: stake: %w", err)
	}
	s.emit(ctx, stakeEvent(domain.EventStakeCreated, caller, st))
	return st, nil
}

// AdminStakeForUser opens a pool-funded stake for user.
func (s *StakingService) AdminStakeForUser(ctx context.Context, caller, user common.Address, amount *uint256.Int) (domain.Stake, error) {
	st, err := s.ledger.AdminStakeForUser(ctx, caller, user, amount)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("staking_service: admin stake: %w", err)
	}
	s.emit(ctx, stakeEvent(domain.EventAdminStakeCreated, caller, st))
	return st, nil
}

// AdminBatchStakeForUsers opens one pool-funded stake per (user, amount).
func (s *StakingService) AdminBatchStakeForUsers(ctx context.Context, caller common.Address, users []common.Address, amounts []*uint256.Int) ([]domain.Stake, error) {
	created, err := s.ledger.AdminBatchStakeForUsers(ctx, caller, users, amounts)
	if err != nil {
		return nil, fmt.Errorf("staking_service: admin batch stake: %w", err)
	}
	for _, st := range created {
		ev := stakeEvent(domain.EventAdminStakeCreated, caller, st)
		ev.Detail["batch_size"] = strconv.Itoa(len(created))
		s.emit(ctx, ev)
	}
	return created, nil
}

// Claim pays out everything currently vested on stake id.
func (s *StakingService) Claim(ctx context.Context, caller common.Address, id uint64) (*uint256.Int, error) {
	if err := s.throttle(ctx, caller); err != nil {
		return nil, err
	}
	paid, err := s.ledger.Claim(ctx, caller, id)
	if err != nil {
		return nil, fmt.Errorf("staking_service: claim: %w", err)
	}
	s.emit(ctx, domain.LedgerEvent{
		Type:      domain.EventClaimed,
		StakeID:   id,
		Actor:     caller,
		Subject:   caller,
		Amount:    paid.Dec(),
		Timestamp: s.oracleNow(ctx),
	})
	return paid, nil
}

// AdminCloseStake terminates stake id.
func (s *StakingService) AdminCloseStake(ctx context.Context, caller common.Address, id uint64) (domain.Stake, error) {
	st, err := s.ledger.AdminCloseStake(ctx, caller, id)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("staking_service: close stake: %w", err)
	}
	s.emit(ctx, domain.LedgerEvent{
		Type:      domain.EventStakeClosed,
		StakeID:   id,
		Actor:     caller,
		Subject:   st.Owner,
		Amount:    st.Outstanding().Dec(),
		Detail:    map[string]string{"claimed": st.ClaimedAmount.Dec()},
		Timestamp: st.ClosedAt,
	})
	return st, nil
}

// UpdateConfig changes the rates and durations applied to new stakes.
func (s *StakingService) UpdateConfig(ctx context.Context, caller common.Address, upd domain.ConfigUpdate) (domain.PoolConfig, error) {
	cfg, err := s.ledger.UpdateConfig(ctx, caller, upd)
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("staking_service: update config: %w", err)
	}
	s.emit(ctx, configEvent(domain.EventConfigUpdated, caller, cfg))
	return cfg, nil
}

// SetWithdrawFeeRate stores a new withdraw fee rate.
func (s *StakingService) SetWithdrawFeeRate(ctx context.Context, caller common.Address, feeRateBps uint64) (domain.PoolConfig, error) {
	cfg, err := s.ledger.SetWithdrawFeeRate(ctx, caller, feeRateBps)
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("staking_service: set withdraw fee: %w", err)
	}
	s.emit(ctx, configEvent(domain.EventFeeRateUpdated, caller, cfg))
	return cfg, nil
}

// TransferAdmin hands the administrator role to next.
func (s *StakingService) TransferAdmin(ctx context.Context, caller, next common.Address) (domain.PoolConfig, error) {
	cfg, err := s.ledger.TransferAdmin(ctx, caller, next)
	if err != nil {
		return domain.PoolConfig{}, fmt.Errorf("staking_service: transfer admin: %w", err)
	}
	ev := configEvent(domain.EventAdminTransferred, caller, cfg)
	ev.Subject = next
	s.emit(ctx, ev)
	return cfg, nil
}

// EmergencyWithdraw moves pool tokens to the administrator.
func (s *StakingService) EmergencyWithdraw(ctx context.Context, caller, token common.Address, amount *uint256.Int) error {
	if err := s.ledger.EmergencyWithdraw(ctx, caller, token, amount); err != nil {
		return fmt.Errorf("staking_service: emergency withdraw: %w", err)
	}
	s.emit(ctx, domain.LedgerEvent{
		Type:      domain.EventEmergencyWithdraw,
		Actor:     caller,
		Subject:   caller,
		Amount:    amount.Dec(),
		Detail:    map[string]string{"token": token.Hex()},
		Timestamp: s.oracleNow(ctx),
	})
	return nil
}

// Mint issues staking tokens. Minting is bookkeeping and emits no event.
func (s *StakingService) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	if err := s.ledger.Mint(ctx, caller, to, amount); err != nil {
		return fmt.Errorf("staking_service: mint: %w", err)
	}
	s.logger.InfoContext(ctx, "staking_service: minted",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.Dec()),
	)
	return nil
}

// Approve sets the pool's allowance over owner's tokens.
func (s *StakingService) Approve(ctx context.Context, owner common.Address, amount *uint256.Int) error {
	if err := s.ledger.Approve(ctx, owner, amount); err != nil {
		return fmt.Errorf("staking_service: approve: %w", err)
	}
	return nil
}

func (s *StakingService) throttle(ctx context.Context, caller common.Address) error {
	if s.limiter == nil || s.limit.Requests <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "caller:"+caller.Hex(), s.limit.Requests, s.limit.Window)
	if err != nil {
		// Fail open: the ledger stays usable when Redis is degraded.
		s.logger.WarnContext(ctx, "staking_service: rate limiter unavailable",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		return fmt.Errorf("staking_service: %s: %w", caller.Hex(), domain.ErrRateLimited)
	}
	return nil
}

func (s *StakingService) oracleNow(ctx context.Context) uint64 {
	now, err := s.ledger.Now(ctx)
	if err != nil {
		return uint64(time.Now().Unix())
	}
	return now
}

// emit publishes ev and records it in the audit log.
func (s *StakingService) emit(ctx context.Context, ev domain.LedgerEvent) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "staking_service: marshal event failed",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, domain.EventChannel, payload); pubErr != nil {
			s.logger.WarnContext(ctx, "staking_service: publish event failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", pubErr.Error()),
			)
		}
		if streamErr := s.bus.StreamAppend(ctx, domain.EventStream, payload); streamErr != nil {
			s.logger.WarnContext(ctx, "staking_service: stream append failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", streamErr.Error()),
			)
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"event_id":  ev.ID,
			"actor":     ev.Actor.Hex(),
			"subject":   ev.Subject.Hex(),
			"timestamp": ev.Timestamp,
		}
		if ev.StakeID != 0 {
			detail["stake_id"] = ev.StakeID
		}
		if ev.Amount != "" {
			detail["amount"] = ev.Amount
		}
		for k, v := range ev.Detail {
			detail[k] = v
		}
		if auditErr := s.audit.Log(ctx, string(ev.Type), detail); auditErr != nil {
			s.logger.WarnContext(ctx, "staking_service: audit log failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "staking_service: "+string(ev.Type),
		slog.String("event_id", ev.ID),
		slog.Uint64("stake_id", ev.StakeID),
		slog.String("actor", ev.Actor.Hex()),
		slog.String("amount", ev.Amount),
	)
}

func stakeEvent(typ domain.EventType, actor common.Address, st domain.Stake) domain.LedgerEvent {
	return domain.LedgerEvent{
		Type:    typ,
		StakeID: st.ID,
		Actor:   actor,
		Subject: st.Owner,
		Amount:  st.Principal.Dec(),
		Detail: map[string]string{
			"total_reward":            st.TotalReward.Dec(),
			"lock_duration":           strconv.FormatUint(st.LockDuration, 10),
			"linear_duration":         strconv.FormatUint(st.LinearDuration, 10),
			"initial_unlock_rate_bps": strconv.FormatUint(st.InitialUnlockRateBps, 10),
		},
		Timestamp: st.StartTime,
	}
}

func configEvent(typ domain.EventType, actor common.Address, cfg domain.PoolConfig) domain.LedgerEvent {
	return domain.LedgerEvent{
		Type:    typ,
		Actor:   actor,
		Subject: cfg.Administrator,
		Detail: map[string]string{
			"bonus_rate_bps":          strconv.FormatUint(cfg.BonusRateBps, 10),
			"lock_duration":           strconv.FormatUint(cfg.LockDuration, 10),
			"linear_duration":         strconv.FormatUint(cfg.LinearDuration, 10),
			"initial_unlock_rate_bps": strconv.FormatUint(cfg.InitialUnlockRateBps, 10),
			"withdraw_fee_rate_bps":   strconv.FormatUint(cfg.WithdrawFeeRateBps, 10),
		},
		Timestamp: uint64(cfg.UpdatedAt.Unix()),
	}
}
