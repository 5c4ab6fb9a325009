package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// SnapshotMode writes a ledger snapshot every snapshot.interval and prunes
// old ones down to snapshot.retain.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snapshot mode")
	if deps.Snapshotter == nil {
		return errors.New("snapshot mode: s3 is not enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runSnapshotLoop(ctx, deps.Snapshotter)
	})
	return g.Wait()
}

// RelayMode forwards ledger events from Redis to the configured notifiers.
func (a *App) RelayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting relay mode")
	if deps.Relay == nil {
		return errors.New("relay mode: redis is not enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(deps.Relay.Run(ctx))
	})
	return g.Wait()
}

// FullMode runs every background worker whose backend is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if deps.Relay != nil {
		g.Go(func() error {
			return ignoreCanceled(deps.Relay.Run(ctx))
		})
	} else {
		a.logger.InfoContext(ctx, "full mode: redis disabled, event relay not started")
	}

	if deps.Snapshotter != nil {
		g.Go(func() error {
			return a.runSnapshotLoop(ctx, deps.Snapshotter)
		})
	} else {
		a.logger.InfoContext(ctx, "full mode: s3 disabled, snapshots not scheduled")
	}

	if deps.Postgres != nil || deps.Redis != nil {
		g.Go(func() error {
			return a.runHealthLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// runSnapshotLoop snapshots immediately and then on every tick until ctx is
// cancelled. A failed snapshot is logged and retried on the next tick.
func (a *App) runSnapshotLoop(ctx context.Context, snap domain.Snapshotter) error {
	interval := a.cfg.Snapshot.Interval.Duration
	retain := a.cfg.Snapshot.Retain

	runOnce := func() {
		info, err := snap.Snapshot(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "snapshot: write failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "snapshot: written",
			slog.String("prefix", info.Prefix),
			slog.Int("stakes", info.Stakes),
			slog.Uint64("oracle_time", info.OracleTime),
		)
		if retain <= 0 {
			return
		}
		removed, err := snap.Prune(ctx, retain)
		if err != nil {
			a.logger.WarnContext(ctx, "snapshot: prune failed", slog.String("error", err.Error()))
			return
		}
		if removed > 0 {
			a.logger.InfoContext(ctx, "snapshot: pruned", slog.Int("removed", removed), slog.Int("retain", retain))
		}
	}

	a.logger.InfoContext(ctx, "snapshot worker started",
		slog.Duration("interval", interval),
		slog.Int("retain", retain),
	)

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// runHealthLoop pings Postgres and Redis once a minute and logs whichever
// is unreachable.
func (a *App) runHealthLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if deps.Postgres != nil {
				if err := deps.Postgres.Health(ctx); err != nil && ctx.Err() == nil {
					a.logger.ErrorContext(ctx, "health: postgres unreachable", slog.String("error", err.Error()))
				}
			}
			if deps.Redis != nil {
				if err := deps.Redis.Ping(ctx); err != nil && ctx.Err() == nil {
					a.logger.ErrorContext(ctx, "health: redis unreachable", slog.String("error", err.Error()))
				}
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}
