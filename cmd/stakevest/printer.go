package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// printer renders command results as text tables or JSON.
type printer struct {
	w    io.Writer
	json bool
}

func getPrinter() (*printer, error) {
	switch flagOutput {
	case "json":
		return &printer{w: os.Stdout, json: true}, nil
	case "text", "":
		return &printer{w: os.Stdout}, nil
	default:
		return nil, fmt.Errorf("invalid --output: %s (use json|text)", flagOutput)
	}
}

// emit writes v as JSON, or calls text to render it.
func (p *printer) emit(v any, text func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

type stakeView struct {
	ID                   uint64 `json:"id"`
	Owner                string `json:"owner"`
	Principal            string `json:"principal"`
	TotalReward          string `json:"total_reward"`
	Claimed              string `json:"claimed"`
	Pending              string `json:"pending,omitempty"`
	StartTime            uint64 `json:"start_time"`
	LockEnd              uint64 `json:"lock_end"`
	VestEnd              uint64 `json:"vest_end"`
	InitialUnlockRateBps uint64 `json:"initial_unlock_rate_bps"`
	ProgressBps          uint64 `json:"progress_bps,omitempty"`
	NextRelease          uint64 `json:"next_release,omitempty"`
	Origin               string `json:"origin"`
	Closed               bool   `json:"closed"`
}

func newStakeView(s domain.Stake) stakeView {
	return stakeView{
		ID:                   s.ID,
		Owner:                s.Owner.Hex(),
		Principal:            formatAmount(s.Principal),
		TotalReward:          formatAmount(s.TotalReward),
		Claimed:              formatAmount(s.ClaimedAmount),
		StartTime:            s.StartTime,
		LockEnd:              s.LockEnd(),
		VestEnd:              s.VestEnd(),
		InitialUnlockRateBps: s.InitialUnlockRateBps,
		Origin:               string(s.Origin),
		Closed:               s.Closed,
	}
}

func newProgressView(p domain.StakeProgress) stakeView {
	v := newStakeView(p.Stake)
	v.Pending = formatAmount(p.Pending)
	v.ProgressBps = p.ProgressBps
	v.NextRelease = p.NextRelease
	return v
}

func printStakes(w io.Writer, views []stakeView) {
	fmt.Fprintln(w, "ID\tOWNER\tPRINCIPAL\tREWARD\tCLAIMED\tPENDING\tLOCK END\tVEST END\tSTATUS")
	for _, v := range views {
		status := "open"
		if v.Closed {
			status = "closed"
		}
		pending := v.Pending
		if pending == "" {
			pending = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Owner, v.Principal, v.TotalReward, v.Claimed, pending,
			unixString(v.LockEnd), unixString(v.VestEnd), status)
	}
}

type configView struct {
	BonusRateBps         uint64    `json:"bonus_rate_bps"`
	LockDuration         uint64    `json:"lock_duration"`
	LinearDuration       uint64    `json:"linear_duration"`
	InitialUnlockRateBps uint64    `json:"initial_unlock_rate_bps"`
	WithdrawFeeRateBps   uint64    `json:"withdraw_fee_rate_bps"`
	Administrator        string    `json:"administrator"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func newConfigView(c domain.PoolConfig) configView {
	return configView{
		BonusRateBps:         c.BonusRateBps,
		LockDuration:         c.LockDuration,
		LinearDuration:       c.LinearDuration,
		InitialUnlockRateBps: c.InitialUnlockRateBps,
		WithdrawFeeRateBps:   c.WithdrawFeeRateBps,
		Administrator:        c.Administrator.Hex(),
		UpdatedAt:            c.UpdatedAt,
	}
}

func printConfig(w io.Writer, c configView) {
	fmt.Fprintf(w, "administrator\t%s\n", c.Administrator)
	fmt.Fprintf(w, "bonus rate\t%s\n", bpsString(c.BonusRateBps))
	fmt.Fprintf(w, "lock duration\t%s\n", daysString(c.LockDuration))
	fmt.Fprintf(w, "linear duration\t%s\n", daysString(c.LinearDuration))
	fmt.Fprintf(w, "initial unlock\t%s\n", bpsString(c.InitialUnlockRateBps))
	fmt.Fprintf(w, "withdraw fee\t%s\n", bpsString(c.WithdrawFeeRateBps))
	fmt.Fprintf(w, "updated\t%s\n", c.UpdatedAt.Format(time.RFC3339))
}

func bpsString(bps uint64) string {
	return fmt.Sprintf("%d.%02d%% (%d bps)", bps/100, bps%100, bps)
}

func daysString(seconds uint64) string {
	d := seconds / domain.SecondsPerDay
	rem := seconds % domain.SecondsPerDay
	if rem == 0 {
		return fmt.Sprintf("%dd", d)
	}
	return fmt.Sprintf("%dd %s", d, (time.Duration(rem) * time.Second).String())
}

func unixString(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04")
}

// kv prints aligned key/value lines.
func kv(w io.Writer, pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(w, "%s\t%s\n", pairs[i], strings.TrimSpace(pairs[i+1]))
	}
}
