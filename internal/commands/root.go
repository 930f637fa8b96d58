// Package commands implements the ledgerd CLI. It is a thin front-end: all
// prompting, formatting, and retry logic lives here, and every state change
// goes through the engine's operation surface.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerd/ledgerd/internal/version"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ledgerd",
		Short:   "Durable embedded bank ledger",
		Version: fmt.Sprintf("%s (built: %s)", version.Version, version.BuildTime),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "ledgerd.json", "path to config file")
	rootCmd.PersistentFlags().String("data", "", "data directory (overrides config)")

	rootCmd.AddCommand(
		newCreateCommand(),
		newDepositCommand(),
		newWithdrawCommand(),
		newTransferCommand(),
		newBalanceCommand(),
		newHistoryCommand(),
		newInterestCommand(),
		newAccountsCommand(),
		newPasswdCommand(),
		newMenuCommand(),
	)

	return rootCmd
}
