package engine

import (
	"fmt"
	"time"

	"github.com/ledgerd/ledgerd/internal/ledger"
	"github.com/ledgerd/ledgerd/internal/metrics"
	"github.com/ledgerd/ledgerd/internal/wal"
)

const daysPerYear = 365

// Deposit credits amount to the account and returns the new balance.
func (e *Engine) Deposit(id string, amount int64, description string) (balance int64, err error) {
	defer func() { metrics.ObserveOp("deposit", err) }()

	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	if description == "" {
		description = "Deposit"
	}

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	if !e.store.Exists(id) {
		return 0, ledger.ErrAccountNotFound
	}

	txn := e.newTxn(ledger.KindDeposit, amount, description, "")
	if err := e.append(walRecord(wal.OpDeposit, id, txn)); err != nil {
		return 0, err
	}
	return e.store.Apply(id, amount, txn)
}

// Withdraw debits amount from the account and returns the new balance. The
// balance check happens under the account lock, so a committed withdrawal
// can never take the balance negative.
func (e *Engine) Withdraw(id string, amount int64, description string) (balance int64, err error) {
	defer func() { metrics.ObserveOp("withdraw", err) }()

	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	if description == "" {
		description = "Withdrawal"
	}

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	if amount > acct.BalanceMinorUnits {
		return 0, ledger.ErrInsufficientFunds
	}

	txn := e.newTxn(ledger.KindWithdrawal, amount, description, "")
	if err := e.append(walRecord(wal.OpWithdraw, id, txn)); err != nil {
		return 0, err
	}
	return e.store.Apply(id, -amount, txn)
}

// Transfer atomically moves amount between two accounts and returns both new
// balances. Both locks are taken in ascending id order, and both transaction
// legs are committed as one WAL batch: after any crash either both legs are
// replayed or neither is.
func (e *Engine) Transfer(fromID, toID string, amount int64, description string) (fromBalance, toBalance int64, err error) {
	defer func() { metrics.ObserveOp("transfer", err) }()

	if fromID == toID {
		return 0, 0, ledger.ErrSameAccount
	}
	if amount <= 0 {
		return 0, 0, ledger.ErrInvalidAmount
	}
	if description == "" {
		description = "Transfer"
	}

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.locks.LockPair(fromID, toID)
	defer e.locks.UnlockPair(fromID, toID)

	from, err := e.store.Get(fromID)
	if err != nil {
		return 0, 0, err
	}
	if !e.store.Exists(toID) {
		return 0, 0, ledger.ErrAccountNotFound
	}
	if amount > from.BalanceMinorUnits {
		return 0, 0, ledger.ErrInsufficientFunds
	}

	out := e.newTxn(ledger.KindTransferOut, amount, fmt.Sprintf("%s to acct#%s", description, toID), toID)
	in := e.newTxn(ledger.KindTransferIn, amount, fmt.Sprintf("%s from acct#%s", description, fromID), fromID)
	if err := e.append(walRecord(wal.OpTransferOut, fromID, out), walRecord(wal.OpTransferIn, toID, in)); err != nil {
		return 0, 0, err
	}

	fromBalance, err = e.store.Apply(fromID, -amount, out)
	if err != nil {
		return 0, 0, err
	}
	toBalance, err = e.store.Apply(toID, amount, in)
	if err != nil {
		return 0, 0, err
	}
	return fromBalance, toBalance, nil
}

// ApplyInterest credits daily interest to every account that has not yet
// received it for asOf's calendar date, at the given annual rate in basis
// points. Each account's update is independently atomic; LastInterestDate
// makes the batch idempotent per account per day, so re-running after a
// crash mid-batch is safe. Interest is floor(balance * rate / 365) in pure
// integer arithmetic. Returns how many accounts were credited.
func (e *Engine) ApplyInterest(rateBasisPoints int64, asOf time.Time) (credited int, err error) {
	defer func() { metrics.ObserveOp("apply_interest", err) }()

	if rateBasisPoints < 0 {
		return 0, ledger.ErrInvalidAmount
	}
	date := asOf.Format(ledger.DateLayout)
	description := fmt.Sprintf("Daily interest at %d.%02d%% annual rate", rateBasisPoints/100, rateBasisPoints%100)

	for _, id := range e.store.IDs() {
		ok, err := e.applyInterestTo(id, rateBasisPoints, date, description)
		if err != nil {
			return credited, err
		}
		if ok {
			credited++
		}
	}

	e.logger.Info("interest applied", "date", date, "rate_bps", rateBasisPoints, "credited", credited)
	return credited, nil
}

// dailyInterest computes floor(balance * rate / (10000 * 365)) in integer
// arithmetic. The quotient/remainder split keeps the intermediate product
// from overflowing int64 even at the maximum representable balance.
func dailyInterest(balance, rateBasisPoints int64) int64 {
	const denom = 10_000 * daysPerYear
	q, r := balance/denom, balance%denom
	return q*rateBasisPoints + r*rateBasisPoints/denom
}

func (e *Engine) applyInterestTo(id string, rateBasisPoints int64, date, description string) (bool, error) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return false, nil
	}
	if acct.LastInterestDate == date {
		return false, nil
	}
	interest := dailyInterest(acct.BalanceMinorUnits, rateBasisPoints)
	if interest <= 0 {
		return false, nil
	}

	txn := e.newTxn(ledger.KindInterest, interest, description, "")
	rec := walRecord(wal.OpInterest, id, txn)
	rec.Date = date
	if err := e.append(rec); err != nil {
		return false, err
	}
	if _, err := e.store.Apply(id, interest, txn); err != nil {
		return false, err
	}
	return true, e.store.SetInterestDate(id, date)
}
