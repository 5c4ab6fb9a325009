package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/config"
	"github.com/alanyoungcy/stakevest/internal/store/postgres"
)

func init() {
	var runMode string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run background workers (snapshot scheduler, event relay)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if runMode != "" {
				cfg.Mode = runMode
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger.Info("stakevest starting",
				slog.String("mode", cfg.Mode),
				slog.String("config", flagConfig),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			if err := application.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("stakevest stopped")
			return nil
		},
	}
	runCmd.Flags().StringVar(&runMode, "mode", "", "Override mode: snapshot|relay|full")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	})
}

func migrate(ctx context.Context, cfg *config.Config) error {
	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: 2,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	applied, err := client.RunMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("schema up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	return nil
}
