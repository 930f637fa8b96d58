// Package store provides the in-memory account index. It owns the ledger
// aggregate and serves reads and validated mutations; durability is the
// WAL's job, not the store's. Callers mutating an account must hold that
// account's lock in the coordinator and must have committed the matching WAL
// batch first.
package store

import (
	"sort"
	"sync"

	"github.com/ledgerd/ledgerd/internal/ledger"
)

// Store is the in-memory index of account state, rebuilt from snapshot and
// WAL replay at startup. The mutex guards the map itself; per-account
// serialisation is the coordinator's job.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account
}

// New creates an empty Store.
func New() *Store {
	return &Store{accounts: make(map[string]*ledger.Account)}
}

// Create adds a new account. The id must not already exist.
func (s *Store) Create(acct *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.ID]; ok {
		return ledger.ErrAccountExists
	}
	s.accounts[acct.ID] = acct.Clone()
	return nil
}

// Get returns a deep copy of the account, or ErrAccountNotFound.
func (s *Store) Get(id string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

// Exists reports whether an account id is known.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// Apply adjusts the account balance by delta and appends txn, returning the
// new balance. The resulting balance must not go negative; a delta that
// would do so is rejected without mutating anything.
func (s *Store) Apply(id string, delta int64, txn ledger.Transaction) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	if acct.BalanceMinorUnits+delta < 0 {
		return 0, ledger.ErrInsufficientFunds
	}
	acct.BalanceMinorUnits += delta
	acct.Transactions = append(acct.Transactions, txn)
	return acct.BalanceMinorUnits, nil
}

// SetPasswordHash replaces the account's password hash.
func (s *Store) SetPasswordHash(id string, hash []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	acct.PasswordHash = append([]byte(nil), hash...)
	return nil
}

// SetInterestDate records the calendar date interest was last credited.
func (s *Store) SetInterestDate(id, date string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	acct.LastInterestDate = date
	return nil
}

// IDs returns all account ids in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns deep copies of all accounts in ascending id order.
func (s *Store) List() []ledger.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ledger.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.accounts[id].Clone())
	}
	return out
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// TotalBalance returns the sum of all balances. Useful for conservation
// checks: transfers must never change it.
func (s *Store) TotalBalance() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, acct := range s.accounts {
		total += acct.BalanceMinorUnits
	}
	return total
}
