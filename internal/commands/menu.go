package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ledgerd/ledgerd/internal/config"
	"github.com/ledgerd/ledgerd/internal/engine"
	"github.com/ledgerd/ledgerd/internal/scheduler"
)

const loginAttempts = 5

func newMenuCommand() *cobra.Command {
	var adminUser string
	var adminPassword string

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Run the interactive banking menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			session := &menuSession{e: e, in: bufio.NewReader(os.Stdin)}
			if adminPassword != "" {
				if !session.login(adminUser, adminPassword) {
					return fmt.Errorf("too many failed login attempts")
				}
			}

			// Scheduled maintenance runs for the lifetime of the session.
			sched, err := scheduler.New(e, scheduler.Options{
				InterestCronSpec:        cfg.InterestCronSpec,
				InterestRateBasisPoints: cfg.InterestRateBasisPoints,
			})
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			return session.run(cfg)
		},
	}

	cmd.Flags().StringVar(&adminUser, "admin-user", "admin", "username for the session login gate")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "enable the login gate with this password")
	return cmd
}

type menuSession struct {
	e  *engine.Engine
	in *bufio.Reader
}

func (s *menuSession) login(user, password string) bool {
	for attempt := 0; attempt < loginAttempts; attempt++ {
		fmt.Println("\nLogin required")
		u, err := s.readLine("Enter username: ")
		if err != nil {
			return false
		}
		p, err := s.readPassword("Enter password: ")
		if err != nil {
			return false
		}
		if u == user && p == password {
			fmt.Println("Login successful")
			return true
		}
		fmt.Printf("Invalid credentials. %d attempts remaining\n", loginAttempts-attempt-1)
	}
	return false
}

func (s *menuSession) run(cfg *config.Config) error {
	fmt.Println("Welcome to ledgerd")
	for {
		fmt.Println("\n1. Create Account")
		fmt.Println("2. Deposit Money")
		fmt.Println("3. Withdraw Money")
		fmt.Println("4. Check Balance")
		fmt.Println("5. Transaction History")
		fmt.Println("6. Transfer Money")
		fmt.Println("7. Calculate Interest")
		fmt.Println("8. List All Accounts")
		fmt.Println("9. Change Account Password")
		fmt.Println("10. Exit")

		choice, err := s.readLine("Enter your choice (1-10): ")
		if err != nil {
			return nil // EOF ends the session
		}

		var actionErr error
		switch choice {
		case "1":
			actionErr = s.createAccount()
		case "2":
			actionErr = s.deposit()
		case "3":
			actionErr = s.withdraw()
		case "4":
			actionErr = s.balance()
		case "5":
			actionErr = s.history()
		case "6":
			actionErr = s.transfer()
		case "7":
			actionErr = s.interest(cfg.InterestRateBasisPoints)
		case "8":
			printAccounts(s.e)
		case "9":
			actionErr = s.changePassword()
		case "10":
			fmt.Println("Goodbye")
			return nil
		default:
			fmt.Println("Invalid choice. Please try again")
		}
		if actionErr != nil {
			fmt.Printf("Error: %v\n", actionErr)
		}
	}
}

func (s *menuSession) createAccount() error {
	holder, err := s.readLine("Enter account holder name: ")
	if err != nil {
		return err
	}
	balanceStr, err := s.readLine("Enter initial balance: $")
	if err != nil {
		return err
	}
	balance, err := parseAmount(balanceStr)
	if err != nil {
		return err
	}
	password, err := s.readPassword("Create a password for this account: ")
	if err != nil {
		return err
	}

	id, err := s.e.CreateAccount(holder, balance, password)
	if err != nil {
		return err
	}
	fmt.Printf("Account created successfully\nAccount Number: %s\n", id)
	return nil
}

func (s *menuSession) deposit() error {
	id, err := s.verifiedAccount()
	if err != nil {
		return err
	}
	amount, err := s.readAmount("Enter deposit amount: $")
	if err != nil {
		return err
	}
	description, err := s.readLine("Enter description (optional): ")
	if err != nil {
		return err
	}
	balance, err := s.e.Deposit(id, amount, description)
	if err != nil {
		return err
	}
	fmt.Printf("Deposit successful\nNew balance: %s\n", formatAmount(balance))
	return nil
}

func (s *menuSession) withdraw() error {
	id, err := s.verifiedAccount()
	if err != nil {
		return err
	}
	amount, err := s.readAmount("Enter withdrawal amount: $")
	if err != nil {
		return err
	}
	description, err := s.readLine("Enter description (optional): ")
	if err != nil {
		return err
	}
	balance, err := s.e.Withdraw(id, amount, description)
	if err != nil {
		return err
	}
	fmt.Printf("Withdrawal successful\nNew balance: %s\n", formatAmount(balance))
	return nil
}

func (s *menuSession) balance() error {
	id, err := s.verifiedAccount()
	if err != nil {
		return err
	}
	return printBalance(s.e, id)
}

func (s *menuSession) history() error {
	id, err := s.verifiedAccount()
	if err != nil {
		return err
	}
	txns, err := s.e.GetHistory(id)
	if err != nil {
		return err
	}
	printHistory(id, txns)
	return nil
}

func (s *menuSession) transfer() error {
	from, err := s.verifiedAccount()
	if err != nil {
		return err
	}
	to, err := s.readLine("Enter recipient's account number: ")
	if err != nil {
		return err
	}
	amount, err := s.readAmount("Enter transfer amount: $")
	if err != nil {
		return err
	}
	description, err := s.readLine("Enter description (optional): ")
	if err != nil {
		return err
	}
	fromBalance, _, err := s.e.Transfer(from, to, amount, description)
	if err != nil {
		return err
	}
	fmt.Printf("Transfer successful\nNew balance for account %s: %s\n", from, formatAmount(fromBalance))
	return nil
}

func (s *menuSession) interest(rateBps int64) error {
	credited, err := s.e.ApplyInterest(rateBps, time.Now())
	if err != nil {
		return err
	}
	if credited == 0 {
		fmt.Println("No interest applied today")
		return nil
	}
	fmt.Printf("Interest applied to %d account(s)\n", credited)
	return nil
}

func (s *menuSession) changePassword() error {
	id, err := s.readLine("Enter account number: ")
	if err != nil {
		return err
	}
	oldPassword, err := s.readPassword("Enter current password: ")
	if err != nil {
		return err
	}
	newPassword, err := s.readPassword("Enter new password: ")
	if err != nil {
		return err
	}
	if err := s.e.ChangePassword(id, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Println("Password changed successfully")
	return nil
}

// verifiedAccount prompts for an account number and password and
// authenticates before any sensitive operation.
func (s *menuSession) verifiedAccount() (string, error) {
	id, err := s.readLine("Enter account number: ")
	if err != nil {
		return "", err
	}
	password, err := s.readPassword("Enter account password: ")
	if err != nil {
		return "", err
	}
	ok, err := s.e.Authenticate(id, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("incorrect password for account %s", id)
	}
	return id, nil
}

func (s *menuSession) readLine(label string) (string, error) {
	fmt.Print(label)
	line, err := s.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *menuSession) readAmount(label string) (int64, error) {
	line, err := s.readLine(label)
	if err != nil {
		return 0, err
	}
	return parseAmount(line)
}

// readPassword avoids echo on a real terminal; piped input (tests, scripts)
// falls back to the session's line reader.
func (s *menuSession) readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(label)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return s.readLine(label)
}
