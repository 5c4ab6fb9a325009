package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a committed ledger mutation.
type EventType string

const (
	EventStakeCreated      EventType = "stake_created"
	EventAdminStakeCreated EventType = "admin_stake_created"
	EventClaimed           EventType = "claimed"
	EventStakeClosed       EventType = "stake_closed"
	EventConfigUpdated     EventType = "config_updated"
	EventFeeRateUpdated    EventType = "fee_rate_updated"
	EventAdminTransferred  EventType = "admin_transferred"
	EventEmergencyWithdraw EventType = "emergency_withdraw"
)

// LedgerEvent is published after a mutation commits. Amounts are decimal
// strings in base units.
type LedgerEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	StakeID   uint64            `json:"stake_id,omitempty"`
	Actor     common.Address    `json:"actor"`
	Subject   common.Address    `json:"subject"`
	Amount    string            `json:"amount,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp uint64            `json:"timestamp"`
	CreatedAt time.Time         `json:"created_at"`
}

const (
	// EventChannel is the Pub/Sub channel ledger events are published on.
	EventChannel = "ledger_events"
	// EventStream is the durable stream ledger events are appended to.
	EventStream = "ledger:events"
)
