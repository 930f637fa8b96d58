// Package ledger defines the account and transaction types shared by the
// storage engine packages. All money is integer minor units (cents); floats
// never enter the engine.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date format used for interest accounting.
const DateLayout = "2006-01-02"

// Kind identifies the type of a ledger transaction.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdrawal  Kind = "withdrawal"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
	KindInterest    Kind = "interest"
)

// Transaction is a single money movement on one account. Amounts are always
// positive; Kind says which direction the money moves. A transaction is
// immutable once appended to an account.
type Transaction struct {
	ID               uuid.UUID
	Kind             Kind
	AmountMinorUnits int64
	Timestamp        time.Time
	Description      string
	// Counterparty is the other account's id for transfer legs, empty otherwise.
	Counterparty string
}

// Account is the full state of one bank account.
// Invariant: BalanceMinorUnits >= 0 after every committed operation.
type Account struct {
	ID                string
	HolderName        string
	BalanceMinorUnits int64
	PasswordHash      []byte
	CreatedAt         time.Time
	// LastInterestDate guards interest against double application: at most
	// one interest credit per account per calendar date.
	LastInterestDate string
	Transactions     []Transaction
}

// Clone returns a deep copy safe to hand outside the store.
func (a *Account) Clone() *Account {
	cp := *a
	if a.PasswordHash != nil {
		cp.PasswordHash = append([]byte(nil), a.PasswordHash...)
	}
	if a.Transactions != nil {
		cp.Transactions = append([]Transaction(nil), a.Transactions...)
	}
	return &cp
}
