package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

var errNoS3 = errors.New("snapshot: s3 is not enabled")

func init() {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export and inspect ledger snapshots in object storage",
	}

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of the whole ledger now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.Snapshotter == nil {
					return errNoS3
				}
				info, err := deps.Snapshotter.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printSnapshots([]domain.SnapshotInfo{info})
			})
		},
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.Snapshotter == nil {
					return errNoS3
				}
				snaps, err := deps.Snapshotter.List(ctx)
				if err != nil {
					return err
				}
				return printSnapshots(snaps)
			}, app.WithoutSigner())
		},
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "verify <prefix>",
		Short: "Check a snapshot's stakes hash and attestation signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.Snapshotter == nil {
					return errNoS3
				}
				signer, err := deps.Snapshotter.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("ok: %s signed by %s\n", args[0], signer.Hex())
				return nil
			}, app.WithoutSigner())
		},
	})

	var pruneKeep int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest --keep snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pruneKeep < 1 {
				return errors.New("prune: --keep must be >= 1")
			}
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.Snapshotter == nil {
					return errNoS3
				}
				removed, err := deps.Snapshotter.Prune(ctx, pruneKeep)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d snapshot(s)\n", removed)
				return nil
			}, app.WithoutSigner())
		},
	}
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "Snapshots to keep")
	_ = pruneCmd.MarkFlagRequired("keep")
	snapshotCmd.AddCommand(pruneCmd)

	rootCmd.AddCommand(snapshotCmd)
}

func printSnapshots(snaps []domain.SnapshotInfo) error {
	p, err := getPrinter()
	if err != nil {
		return err
	}
	return p.emit(snaps, func(w io.Writer) {
		fmt.Fprintln(w, "PREFIX\tSTAKES\tORACLE TIME\tTAKEN")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Prefix, s.Stakes, unixString(s.OracleTime), s.TakenAt.UTC().Format("2006-01-02 15:04:05"))
		}
	})
}
