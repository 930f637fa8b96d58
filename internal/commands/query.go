package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerd/ledgerd/internal/engine"
	"github.com/ledgerd/ledgerd/internal/ledger"
)

func newBalanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Check the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := verifyAccount(cmd, e, args[0]); err != nil {
				return err
			}
			return printBalance(e, args[0])
		},
	}

	cmd.Flags().String("password", "", "account password (prompted if omitted)")
	return cmd
}

func printBalance(e *engine.Engine, id string) error {
	balance, err := e.GetBalance(id)
	if err != nil {
		return err
	}
	fmt.Printf("Account Number: %s\nCurrent Balance: %s\n", id, formatAmount(balance))
	return nil
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "View transaction history for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := verifyAccount(cmd, e, args[0]); err != nil {
				return err
			}

			txns, err := e.GetHistory(args[0])
			if err != nil {
				return err
			}
			printHistory(args[0], txns)
			return nil
		},
	}

	cmd.Flags().String("password", "", "account password (prompted if omitted)")
	return cmd
}

func printHistory(id string, txns []ledger.Transaction) {
	if len(txns) == 0 {
		fmt.Println("No transactions found for this account")
		return
	}
	fmt.Printf("Transaction History for Account %s:\n", id)
	fmt.Printf("%-14s %-12s %-20s %s\n", "Type", "Amount", "Date & Time", "Description")
	for _, txn := range txns {
		fmt.Printf("%-14s %-12s %-20s %s\n",
			txn.Kind,
			formatAmount(txn.AmountMinorUnits),
			txn.Timestamp.Format("2006-01-02 15:04:05"),
			txn.Description,
		)
	}
}

func newAccountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			printAccounts(e)
			return nil
		},
	}
}

func printAccounts(e *engine.Engine) {
	accounts := e.ListAccounts()
	if len(accounts) == 0 {
		fmt.Println("No accounts found in the system")
		return
	}
	fmt.Printf("%-15s %-25s %s\n", "Account Number", "Account Holder", "Balance")
	for _, acct := range accounts {
		fmt.Printf("%-15s %-25s %s\n", acct.ID, acct.HolderName, formatAmount(acct.BalanceMinorUnits))
	}
}
