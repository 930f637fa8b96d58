package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCommand() *cobra.Command {
	var holder string
	var balance string
	var password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			initial := int64(0)
			if balance != "" {
				var err error
				initial, err = parseAmount(balance)
				if err != nil {
					return err
				}
			}
			if password == "" {
				var err error
				password, err = promptPassword("Create a password for this account: ")
				if err != nil {
					return err
				}
			}

			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := e.CreateAccount(holder, initial, password)
			if err != nil {
				return err
			}

			fmt.Printf("Account created successfully\n")
			fmt.Printf("Account Number: %s\n", id)
			fmt.Printf("Account Holder: %s\n", holder)
			fmt.Printf("Initial Balance: %s\n", formatAmount(initial))
			return nil
		},
	}

	cmd.Flags().StringVar(&holder, "holder", "", "account holder name (required)")
	_ = cmd.MarkFlagRequired("holder")
	cmd.Flags().StringVar(&balance, "balance", "", "initial balance, e.g. 100.00")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted if omitted)")

	return cmd
}
