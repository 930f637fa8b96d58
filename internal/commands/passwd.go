package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPasswdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd <account>",
		Short: "Change an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPassword, _ := cmd.Flags().GetString("password")
			if oldPassword == "" {
				var err error
				oldPassword, err = promptPassword("Enter current password: ")
				if err != nil {
					return err
				}
			}
			newPassword, _ := cmd.Flags().GetString("new-password")
			if newPassword == "" {
				var err error
				newPassword, err = promptPassword("Enter new password: ")
				if err != nil {
					return err
				}
			}

			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.ChangePassword(args[0], oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Println("Password changed successfully")
			return nil
		},
	}

	cmd.Flags().String("password", "", "current password (prompted if omitted)")
	cmd.Flags().String("new-password", "", "new password (prompted if omitted)")
	return cmd
}
