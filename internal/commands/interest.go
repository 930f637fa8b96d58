package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInterestCommand() *cobra.Command {
	var rateBps int64

	cmd := &cobra.Command{
		Use:   "interest",
		Short: "Apply daily interest to all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if rateBps == 0 {
				rateBps = cfg.InterestRateBasisPoints
			}
			credited, err := e.ApplyInterest(rateBps, time.Now())
			if err != nil {
				return err
			}
			if credited == 0 {
				fmt.Println("No interest applied today")
				return nil
			}
			fmt.Printf("Interest applied to %d account(s)\n", credited)
			return nil
		},
	}

	cmd.Flags().Int64Var(&rateBps, "rate-bps", 0, "annual rate in basis points (default from config)")
	return cmd
}
