// Package locks provides per-account mutual exclusion for the engine.
// Operations on one account serialise on that account's lock; operations on
// disjoint accounts proceed in parallel. Two-account operations acquire both
// locks in ascending id order, so opposite-direction transfers cannot
// deadlock.
package locks

import "sync"

// Table is a lazily-populated map of per-account read-write locks.
// Accounts are never deleted, so entries live for the process lifetime.
type Table struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string]*sync.RWMutex)}
}

func (t *Table) get(id string) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[id] = l
	}
	return l
}

// Lock acquires the account's write lock.
func (t *Table) Lock(id string) {
	t.get(id).Lock()
}

// Unlock releases the account's write lock.
func (t *Table) Unlock(id string) {
	t.get(id).Unlock()
}

// RLock acquires the account's read lock. Readers share it but block on a
// concurrent writer, so a partially-applied mutation is never observed.
func (t *Table) RLock(id string) {
	t.get(id).RLock()
}

// RUnlock releases the account's read lock.
func (t *Table) RUnlock(id string) {
	t.get(id).RUnlock()
}

// LockPair acquires both accounts' write locks in canonical (ascending id)
// order. The ids must differ.
func (t *Table) LockPair(a, b string) {
	if b < a {
		a, b = b, a
	}
	t.get(a).Lock()
	t.get(b).Lock()
}

// UnlockPair releases both accounts' write locks.
func (t *Table) UnlockPair(a, b string) {
	t.get(a).Unlock()
	t.get(b).Unlock()
}
