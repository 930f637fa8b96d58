package ledger

import "errors"

// Domain errors surfaced by the engine. Validation and not-found failures
// abort the operation with no side effects.
var (
	// ErrAccountNotFound indicates an unknown account id.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidAmount indicates a zero or negative operation amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrNegativeBalance indicates a negative initial balance at creation.
	ErrNegativeBalance = errors.New("ledger: initial balance cannot be negative")
	// ErrInsufficientFunds indicates a withdrawal or transfer exceeding the balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrSameAccount indicates a transfer where sender and recipient match.
	ErrSameAccount = errors.New("ledger: cannot transfer to the same account")
	// ErrAccountExists indicates an id collision at account creation.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrBadCredentials indicates a password mismatch.
	ErrBadCredentials = errors.New("ledger: invalid credentials")
)
