package notify

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

var eventTitles = map[domain.EventType]string{
	domain.EventStakeCreated:      "New stake",
	domain.EventAdminStakeCreated: "Admin stake",
	domain.EventClaimed:           "Reward claimed",
	domain.EventStakeClosed:       "Stake closed",
	domain.EventConfigUpdated:     "Pool config updated",
	domain.EventFeeRateUpdated:    "Withdraw fee updated",
	domain.EventAdminTransferred:  "Administrator changed",
	domain.EventEmergencyWithdraw: "EMERGENCY WITHDRAW",
}

// FormatEvent renders ev as a title and a plain-text body. Amounts are shown
// in whole tokens with the given decimals.
func FormatEvent(ev domain.LedgerEvent, decimals int) (title, message string) {
	title, ok := eventTitles[ev.Type]
	if !ok {
		title = string(ev.Type)
	}

	var b strings.Builder
	if ev.StakeID != 0 {
		fmt.Fprintf(&b, "stake: %d\n", ev.StakeID)
	}
	fmt.Fprintf(&b, "by: %s\n", ev.Actor.Hex())
	if ev.Subject != ev.Actor && ev.Subject != (common.Address{}) {
		fmt.Fprintf(&b, "for: %s\n", ev.Subject.Hex())
	}
	if ev.Amount != "" {
		fmt.Fprintf(&b, "amount: %s\n", humanAmount(ev.Amount, decimals))
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Detail)) {
		fmt.Fprintf(&b, "%s: %s\n", k, ev.Detail[k])
	}
	fmt.Fprintf(&b, "oracle time: %d", ev.Timestamp)
	return title, b.String()
}

func humanAmount(raw string, decimals int) string {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return raw
	}
	return domain.FormatUnits(v, decimals)
}
