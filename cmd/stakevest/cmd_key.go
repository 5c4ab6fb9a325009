package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakevest/internal/chain"
	"github.com/alanyoungcy/stakevest/internal/crypto"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

func init() {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the snapshot signing key",
	}

	var encOut, encKey, encPassword string
	encryptCmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a private key into a password-protected JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if encKey == "" {
				encKey = os.Getenv("STAKEVEST_WALLET_PRIVATE_KEY")
			}
			if encPassword == "" {
				encPassword = os.Getenv("STAKEVEST_WALLET_KEY_PASSWORD")
			}
			if encKey == "" || encPassword == "" {
				return errors.New("key encrypt: --key and --password (or STAKEVEST_WALLET_PRIVATE_KEY and STAKEVEST_WALLET_KEY_PASSWORD) are required")
			}
			blob, err := crypto.EncryptKey(encKey, encPassword)
			if err != nil {
				return err
			}
			if err := os.WriteFile(encOut, blob, 0o600); err != nil {
				return fmt.Errorf("key encrypt: write %s: %w", encOut, err)
			}
			fmt.Printf("wrote %s\n", encOut)
			return nil
		},
	}
	encryptCmd.Flags().StringVar(&encOut, "out", "stakevest-key.json", "Output file")
	encryptCmd.Flags().StringVar(&encKey, "key", "", "Hex private key")
	encryptCmd.Flags().StringVar(&encPassword, "password", "", "Encryption password")
	keyCmd.AddCommand(encryptCmd)

	keyCmd.AddCommand(&cobra.Command{
		Use:   "address",
		Short: "Print the address of the configured signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			signer, err := crypto.LoadSigner(crypto.KeyConfig{
				RawPrivateKey:    cfg.Wallet.PrivateKey,
				EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
				KeyPassword:      cfg.Wallet.KeyPassword,
			}, cfg.Chain.ChainID)
			if err != nil {
				return err
			}
			fmt.Println(signer.Address().Hex())
			return nil
		},
	})
	rootCmd.AddCommand(keyCmd)

	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect or drive the block-time oracle",
	}
	chainCmd.AddCommand(&cobra.Command{
		Use:   "advance <span>",
		Short: "Move a development node's clock forward (e.g. 88d, 36h, 3600)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := parseSpan(args[0])
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Chain.RPCURL == "" {
				return errors.New("chain advance: chain.rpc_url is not set")
			}
			client, err := chain.Dial(cmd.Context(), cfg.Chain.RPCURL)
			if err != nil {
				return err
			}
			defer client.Close()

			now, err := client.IncreaseTime(cmd.Context(), seconds)
			if err != nil {
				return err
			}
			fmt.Printf("block time now %d (%s)\n", now, unixString(now))
			return nil
		},
	})
	chainCmd.AddCommand(&cobra.Command{
		Use:   "id",
		Short: "Print the node's chain id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Chain.RPCURL == "" {
				return errors.New("chain id: chain.rpc_url is not set")
			}
			client, err := chain.Dial(cmd.Context(), cfg.Chain.RPCURL)
			if err != nil {
				return err
			}
			defer client.Close()
			id, err := client.ChainID(cmd.Context())
			if err != nil {
				return err
			}
			if id != cfg.Chain.ChainID {
				fmt.Printf("%d (config says %d)\n", id, cfg.Chain.ChainID)
				return nil
			}
			fmt.Println(id)
			return nil
		},
	})
	rootCmd.AddCommand(chainCmd)
}

// parseSpan reads "<n>d", a Go duration, or plain seconds.
func parseSpan(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseUint(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("span %q: %w", s, err)
		}
		return n * domain.SecondsPerDay, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("span %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("span %q: negative", s)
	}
	return uint64(d / time.Second), nil
}
