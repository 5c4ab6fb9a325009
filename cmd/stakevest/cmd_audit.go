package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

func init() {
	var since, until string
	var limit, offset int

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries, newest first",
		Long:  "List audit log entries. --since and --until take an RFC 3339 time or a duration before now (e.g. 24h).",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := auditListOpts(since, until, limit, offset, time.Now().UTC())
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				views, err := listAudit(ctx, deps.AuditStore, opts)
				if err != nil {
					return err
				}
				p, err := getPrinter()
				if err != nil {
					return err
				}
				return p.emit(views, func(w io.Writer) { printAudit(w, views) })
			})
		},
	}
	auditCmd.Flags().StringVar(&since, "since", "", "Oldest entry time (RFC 3339 or duration ago)")
	auditCmd.Flags().StringVar(&until, "until", "", "Newest entry time (RFC 3339 or duration ago)")
	auditCmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	auditCmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	rootCmd.AddCommand(auditCmd)
}

type auditView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	CreatedAt time.Time      `json:"created_at"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// auditListOpts turns the audit flags into list options relative to now.
func auditListOpts(since, until string, limit, offset int, now time.Time) (domain.ListOpts, error) {
	if limit < 0 || offset < 0 {
		return domain.ListOpts{}, fmt.Errorf("audit: limit and offset must not be negative")
	}
	opts := domain.ListOpts{Limit: limit, Offset: offset}
	var err error
	if opts.Since, err = parseTimeFlag(since, now); err != nil {
		return domain.ListOpts{}, fmt.Errorf("audit: --since: %w", err)
	}
	if opts.Until, err = parseTimeFlag(until, now); err != nil {
		return domain.ListOpts{}, fmt.Errorf("audit: --until: %w", err)
	}
	if opts.Since != nil && opts.Until != nil && opts.Since.After(*opts.Until) {
		return domain.ListOpts{}, fmt.Errorf("audit: --since is after --until")
	}
	return opts, nil
}

func parseTimeFlag(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid time %q", s)
	}
	t := now.Add(-d)
	return &t, nil
}

func listAudit(ctx context.Context, store domain.AuditStore, opts domain.ListOpts) ([]auditView, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: no audit store configured")
	}
	entries, err := store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	views := make([]auditView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditView{ID: e.ID, Event: e.Event, CreatedAt: e.CreatedAt, Detail: e.Detail})
	}
	return views, nil
}

func printAudit(w io.Writer, views []auditView) {
	fmt.Fprintln(w, "ID\tTIME\tEVENT\tDETAIL")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", v.ID, v.CreatedAt.Format(time.RFC3339), v.Event, detailString(v.Detail))
	}
}

// detailString renders detail as key=value pairs in key order.
func detailString(detail map[string]any) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var val string
		switch v := detail[k].(type) {
		case string:
			val = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				val = fmt.Sprint(v)
			} else {
				val = string(b)
			}
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, " ")
}
