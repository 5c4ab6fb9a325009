// Command stakevest operates a vesting staking ledger. It loads configuration,
// validates it, wires dependencies and either runs the background workers or
// executes a single ledger operation on behalf of the caller given by --from.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/app"
	"github.com/alanyoungcy/stakevest/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "stakevest",
	Short:         "Vesting staking ledger",
	Long:          "Stake tokens for a fixed bonus released after a lock period and then linearly, claim vested rewards and administer the pool.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig string
	flagOutput string
	flagFrom   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "config.toml", "Path to configuration file (empty for defaults + env)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagFrom, "from", "", "Caller address the operation is performed as")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and installs the JSON
// logger at the configured level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config %s not found (use --config \"\" for defaults + env)", flagConfig)
		}
		return nil, nil, fmt.Errorf("load config %s: %w", flagConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr so command output on stdout stays machine-readable.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// withDeps loads config, wires dependencies and runs fn. Resources are
// released when fn returns.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, deps *app.Dependencies) error, opts ...app.WireOption) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	application := app.New(cfg, logger)
	defer application.Close()

	ctx := cmd.Context()
	deps, err := application.Wire(ctx, opts...)
	if err != nil {
		return err
	}
	return fn(ctx, deps)
}
