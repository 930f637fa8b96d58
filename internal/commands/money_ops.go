package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDepositCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "deposit <account> <amount>",
		Short: "Deposit money into an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := verifyAccount(cmd, e, args[0]); err != nil {
				return err
			}

			balance, err := e.Deposit(args[0], amount, description)
			if err != nil {
				return err
			}
			fmt.Printf("Deposit successful\nNew balance: %s\n", formatAmount(balance))
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	cmd.Flags().String("password", "", "account password (prompted if omitted)")

	return cmd
}

func newWithdrawCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "withdraw <account> <amount>",
		Short: "Withdraw money from an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := verifyAccount(cmd, e, args[0]); err != nil {
				return err
			}

			balance, err := e.Withdraw(args[0], amount, description)
			if err != nil {
				return err
			}
			fmt.Printf("Withdrawal successful\nNew balance: %s\n", formatAmount(balance))
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	cmd.Flags().String("password", "", "account password (prompted if omitted)")

	return cmd
}

func newTransferCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Transfer money between accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := verifyAccount(cmd, e, args[0]); err != nil {
				return err
			}

			fromBalance, _, err := e.Transfer(args[0], args[1], amount, description)
			if err != nil {
				return err
			}
			fmt.Printf("Transfer successful\nNew balance for account %s: %s\n", args[0], formatAmount(fromBalance))
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	cmd.Flags().String("password", "", "sender's account password (prompted if omitted)")

	return cmd
}
