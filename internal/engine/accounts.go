package engine

import (
	"math/rand"
	"strconv"

	"github.com/ledgerd/ledgerd/internal/ledger"
	"github.com/ledgerd/ledgerd/internal/metrics"
	"github.com/ledgerd/ledgerd/internal/wal"
)

// CreateAccount creates a new account with a unique 8-digit id and returns
// the id. The password is stored only as a bcrypt hash. A positive initial
// balance is recorded as an initial deposit in the same WAL batch as the
// creation, so both or neither survive a crash.
func (e *Engine) CreateAccount(holderName string, initialBalance int64, password string) (id string, err error) {
	defer func() { metrics.ObserveOp("create_account", err) }()

	if initialBalance < 0 {
		return "", ledger.ErrNegativeBalance
	}
	hash, err := e.hashPassword(password)
	if err != nil {
		return "", err
	}

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.createMu.Lock()
	defer e.createMu.Unlock()

	id = e.generateID()
	now := e.now()

	recs := []wal.Record{{
		Type:         wal.OpCreateAccount,
		AccountID:    id,
		HolderName:   holderName,
		PasswordHash: hash,
		UnixMilli:    now.UnixMilli(),
		Date:         now.Format(ledger.DateLayout),
	}}
	var initial *ledger.Transaction
	if initialBalance > 0 {
		txn := e.newTxn(ledger.KindDeposit, initialBalance, "Initial deposit", "")
		recs = append(recs, walRecord(wal.OpDeposit, id, txn))
		initial = &txn
	}
	if err := e.append(recs...); err != nil {
		return "", err
	}

	if err := e.store.Create(&ledger.Account{
		ID:               id,
		HolderName:       holderName,
		PasswordHash:     hash,
		CreatedAt:        now,
		LastInterestDate: now.Format(ledger.DateLayout),
	}); err != nil {
		return "", err
	}
	if initial != nil {
		if _, err := e.store.Apply(id, initialBalance, *initial); err != nil {
			return "", err
		}
	}

	e.logger.Info("account created", "id", id, "holder", holderName)
	return id, nil
}

// generateID returns an unused random 8-digit account number. Caller holds
// createMu, so the collision check cannot race another creation.
func (e *Engine) generateID() string {
	for {
		id := strconv.Itoa(10000000 + rand.Intn(90000000))
		if !e.store.Exists(id) {
			return id
		}
	}
}

// Authenticate checks a password against the account's stored hash using
// bcrypt's constant-time comparison. It never exposes the hash and changes
// no state.
func (e *Engine) Authenticate(id, password string) (ok bool, err error) {
	defer func() { metrics.ObserveOp("authenticate", err) }()

	e.locks.RLock(id)
	defer e.locks.RUnlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return false, err
	}
	return checkPassword(acct.PasswordHash, password)
}

// ChangePassword verifies the old password and durably replaces the hash.
func (e *Engine) ChangePassword(id, oldPassword, newPassword string) (err error) {
	defer func() { metrics.ObserveOp("change_password", err) }()

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return err
	}
	ok, err := checkPassword(acct.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrBadCredentials
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}
	rec := wal.Record{
		Type:         wal.OpChangePassword,
		AccountID:    id,
		PasswordHash: hash,
		UnixMilli:    e.now().UnixMilli(),
	}
	if err := e.append(rec); err != nil {
		return err
	}
	return e.store.SetPasswordHash(id, hash)
}

// GetBalance returns the account's current balance in minor units.
func (e *Engine) GetBalance(id string) (balance int64, err error) {
	defer func() { metrics.ObserveOp("get_balance", err) }()

	e.locks.RLock(id)
	defer e.locks.RUnlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	return acct.BalanceMinorUnits, nil
}

// GetHistory returns the account's transactions in chronological order.
func (e *Engine) GetHistory(id string) (txns []ledger.Transaction, err error) {
	defer func() { metrics.ObserveOp("get_history", err) }()

	e.locks.RLock(id)
	defer e.locks.RUnlock(id)

	acct, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	return acct.Transactions, nil
}

// ListAccounts returns a copy of every account, in ascending id order. Each
// account is read under its own lock; the listing as a whole is not a
// consistent cut across accounts.
func (e *Engine) ListAccounts() []ledger.Account {
	defer metrics.ObserveOp("list_accounts", nil)

	ids := e.store.IDs()
	out := make([]ledger.Account, 0, len(ids))
	for _, id := range ids {
		e.locks.RLock(id)
		acct, err := e.store.Get(id)
		e.locks.RUnlock(id)
		if err != nil {
			continue
		}
		out = append(out, *acct)
	}
	return out
}
