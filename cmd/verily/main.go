// Package main is the entry point for the verily server binary.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ifiokjr/verily/internal/app"
	"github.com/ifiokjr/verily/internal/platform/crypto"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for verily
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "verily",
		Short: "Verily account server",
		Long: `Verily serves account sign up, login and token refresh over HTTP.

Configuration is read from the environment and an optional .env file.

Example:
  DATABASE_URL=postgres://verily@localhost/verily JWT_SECRET=... verily serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newKeygenCmd(), newPubkeyCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if info.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated from version %d to %d\n", info.CurrentVersion, info.FinalVersion)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date at version %d\n", info.FinalVersion)
			}
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print freshly generated secrets in .env format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{"JWT_SECRET", "ENCRYPTION_KEY"} {
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, key)
			}
			return nil
		},
	}
}

func newPubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey <seed-hex>",
		Short: "Print the ed25519 public key derived from a hex seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.ParseKeypair(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(kp.Public()))
			return nil
		},
	}
}
