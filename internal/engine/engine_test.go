package engine

import (
	"math"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerd/ledgerd/internal/ledger"
	"github.com/ledgerd/ledgerd/internal/metrics"
	"github.com/ledgerd/ledgerd/internal/wal"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := New(Options{DataDir: dir, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return e, dir
}

func reopen(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := New(Options{DataDir: dir, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return e
}

// assertSameState compares two full-ledger listings field by field.
func assertSameState(t *testing.T, want, got []ledger.Account) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.HolderName, g.HolderName)
		assert.Equal(t, w.BalanceMinorUnits, g.BalanceMinorUnits)
		assert.Equal(t, w.PasswordHash, g.PasswordHash)
		assert.Equal(t, w.LastInterestDate, g.LastInterestDate)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt), "CreatedAt mismatch for %s", w.ID)
		require.Len(t, g.Transactions, len(w.Transactions))
		for j := range w.Transactions {
			wt, gt := w.Transactions[j], g.Transactions[j]
			assert.Equal(t, wt.ID, gt.ID)
			assert.Equal(t, wt.Kind, gt.Kind)
			assert.Equal(t, wt.AmountMinorUnits, gt.AmountMinorUnits)
			assert.Equal(t, wt.Description, gt.Description)
			assert.Equal(t, wt.Counterparty, gt.Counterparty)
			assert.True(t, wt.Timestamp.Equal(gt.Timestamp))
		}
	}
}

func TestEngine_CreateAccount(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}$`), id)

	bal, err := e.GetBalance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), bal)

	history, err := e.GetHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.KindDeposit, history[0].Kind)
	assert.Equal(t, "Initial deposit", history[0].Description)
}

func TestEngine_CreateAccountZeroBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Bob", 0, "secret")
	require.NoError(t, err)

	history, err := e.GetHistory(id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_CreateAccountNegativeBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	_, err := e.CreateAccount("Eve", -1, "secret")
	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)
}

func TestEngine_PasswordNeverStoredPlaintext(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Alice", 0, "hunter2")
	require.NoError(t, err)

	accounts := e.ListAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, id, accounts[0].ID)
	assert.NotContains(t, string(accounts[0].PasswordHash), "hunter2")
}

func TestEngine_Authenticate(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Alice", 0, "secret")
	require.NoError(t, err)

	ok, err := e.Authenticate(id, "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Authenticate(id, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Authenticate("99999999", "secret")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestEngine_DepositAndWithdraw(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)

	bal, err := e.Deposit(id, 500, "paycheck")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal)

	bal, err = e.Withdraw(id, 200, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1300), bal)

	history, err := e.GetHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.KindWithdrawal, history[2].Kind)
	assert.Equal(t, "Withdrawal", history[2].Description)
}

func TestEngine_MutationValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	id, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)

	_, err = e.Deposit(id, 0, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.Deposit(id, -5, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.Deposit("99999999", 100, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = e.Withdraw(id, 0, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.Withdraw("99999999", 100, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// A failed operation has no side effects.
	bal, err := e.GetBalance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	history, err := e.GetHistory(id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEngine_OversizedDescriptionRejected(t *testing.T) {
	e, dir := newTestEngine(t)

	id, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)

	// A description exceeding the WAL field limit is rejected up front:
	// nothing commits, nothing applies, and the log stays replayable.
	_, err = e.Deposit(id, 100, strings.Repeat("x", 2<<20))
	assert.ErrorIs(t, err, wal.ErrTooLarge)

	bal, err := e.GetBalance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	history, err := e.GetHistory(id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	require.NoError(t, e.Close())

	e2 := reopen(t, dir)
	defer e2.Close()
	bal, err = e2.GetBalance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
}

// The worked example: A starts with 1000 minor units, B with 0.
func TestEngine_TransferScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	a, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)
	b, err := e.CreateAccount("Bob", 0, "secret")
	require.NoError(t, err)

	fromBal, toBal, err := e.Transfer(a, b, 300, "")
	require.NoError(t, err)
	assert.Equal(t, int64(700), fromBal)
	assert.Equal(t, int64(300), toBal)

	aHist, err := e.GetHistory(a)
	require.NoError(t, err)
	require.Len(t, aHist, 2)
	assert.Equal(t, ledger.KindTransferOut, aHist[1].Kind)
	assert.Equal(t, int64(300), aHist[1].AmountMinorUnits)
	assert.Equal(t, b, aHist[1].Counterparty)
	assert.Equal(t, "Transfer to acct#"+b, aHist[1].Description)

	bHist, err := e.GetHistory(b)
	require.NoError(t, err)
	require.Len(t, bHist, 1)
	assert.Equal(t, ledger.KindTransferIn, bHist[0].Kind)
	assert.Equal(t, a, bHist[0].Counterparty)

	// Withdrawal beyond the balance fails and changes nothing.
	_, err = e.Withdraw(a, 800, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	aBal, err := e.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(700), aBal)
	bBal, err := e.GetBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bBal)
}

func TestEngine_TransferValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	a, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)
	b, err := e.CreateAccount("Bob", 0, "secret")
	require.NoError(t, err)

	_, _, err = e.Transfer(a, a, 100, "")
	assert.ErrorIs(t, err, ledger.ErrSameAccount)
	_, _, err = e.Transfer(a, b, 0, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, _, err = e.Transfer("99999999", b, 100, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, _, err = e.Transfer(a, "99999999", 100, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, _, err = e.Transfer(a, b, 5000, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	aBal, err := e.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), aBal)
}

func TestEngine_ApplyInterest(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	// 100000 minor units at 8.00% annual: floor(100000*800/3650000) = 21.
	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	// Small balance computes to zero interest and is skipped.
	b, err := e.CreateAccount("Bob", 10, "secret")
	require.NoError(t, err)

	asOf := time.Now().AddDate(0, 0, 1)
	credited, err := e.ApplyInterest(800, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	aBal, err := e.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(100021), aBal)

	aHist, err := e.GetHistory(a)
	require.NoError(t, err)
	last := aHist[len(aHist)-1]
	assert.Equal(t, ledger.KindInterest, last.Kind)
	assert.Equal(t, int64(21), last.AmountMinorUnits)
	assert.Equal(t, "Daily interest at 8.00% annual rate", last.Description)

	bBal, err := e.GetBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bBal)
}

func TestEngine_ApplyInterestIdempotentPerDay(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)

	asOf := time.Now().AddDate(0, 0, 1)
	credited, err := e.ApplyInterest(800, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	credited, err = e.ApplyInterest(800, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	bal, err := e.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(100021), bal)

	// The next calendar day accrues again.
	credited, err = e.ApplyInterest(800, asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, credited)
}

func TestDailyInterest(t *testing.T) {
	assert.Equal(t, int64(21), dailyInterest(100000, 800))
	assert.Equal(t, int64(0), dailyInterest(10, 800))
	assert.Equal(t, int64(0), dailyInterest(0, 800))

	// The maximum balance must not overflow the intermediate product.
	want := new(big.Int).Mul(big.NewInt(math.MaxInt64), big.NewInt(800))
	want.Quo(want, big.NewInt(10_000*365))
	assert.Equal(t, want.Int64(), dailyInterest(math.MaxInt64, 800))
}

func TestEngine_CreationDayAccruesNoInterest(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)

	credited, err := e.ApplyInterest(800, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	bal, err := e.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), bal)
}

func TestEngine_ChangePassword(t *testing.T) {
	e, dir := newTestEngine(t)

	id, err := e.CreateAccount("Alice", 0, "old-pass")
	require.NoError(t, err)

	err = e.ChangePassword(id, "wrong", "new-pass")
	assert.ErrorIs(t, err, ledger.ErrBadCredentials)

	require.NoError(t, e.ChangePassword(id, "old-pass", "new-pass"))

	ok, err := e.Authenticate(id, "new-pass")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Authenticate(id, "old-pass")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, e.Close())

	// The change survives a restart.
	e2 := reopen(t, dir)
	defer e2.Close()
	ok, err = e2.Authenticate(id, "new-pass")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_ReplayEquivalence(t *testing.T) {
	e, dir := newTestEngine(t)

	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	b, err := e.CreateAccount("Bob", 50000, "secret")
	require.NoError(t, err)

	_, err = e.Deposit(a, 2500, "paycheck")
	require.NoError(t, err)
	_, _, err = e.Transfer(a, b, 30000, "rent")
	require.NoError(t, err)
	_, err = e.Withdraw(b, 1000, "coffee")
	require.NoError(t, err)
	_, err = e.ApplyInterest(800, time.Now().AddDate(0, 0, 1))
	require.NoError(t, err)

	before := e.ListAccounts()
	require.NoError(t, e.Close())

	e2 := reopen(t, dir)
	defer e2.Close()
	assertSameState(t, before, e2.ListAccounts())
}

func TestEngine_SnapshotAndRecovery(t *testing.T) {
	e, dir := newTestEngine(t)

	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	b, err := e.CreateAccount("Bob", 0, "secret")
	require.NoError(t, err)
	_, _, err = e.Transfer(a, b, 40000, "")
	require.NoError(t, err)

	require.NoError(t, e.Snapshot())

	// Mutations after the snapshot land in the new WAL segment.
	_, err = e.Deposit(b, 123, "")
	require.NoError(t, err)

	before := e.ListAccounts()
	require.NoError(t, e.Close())

	e2 := reopen(t, dir)
	defer e2.Close()
	assertSameState(t, before, e2.ListAccounts())

	bBal, err := e2.GetBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(40123), bBal)
}

func TestEngine_SnapshotTruncatesWAL(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	_, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	require.Greater(t, e.wal.Size(), int64(0))

	require.NoError(t, e.Snapshot())

	assert.Equal(t, int64(0), e.wal.Size())
	records, err := e.wal.Replay(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEngine_SnapshotResetsSegmentGauge(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	_, err := e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)
	require.Greater(t, testutil.ToFloat64(metrics.WALSegmentBytes), 0.0)

	require.NoError(t, e.Snapshot())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WALSegmentBytes))
}

func TestEngine_CorruptedWALFailsStartup(t *testing.T) {
	e, dir := newTestEngine(t)
	_, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	walPath := filepath.Join(dir, "wal", "wal-00000001.log")
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(walPath, data, 0o644))

	_, err = New(Options{DataDir: dir, BcryptCost: bcrypt.MinCost})
	assert.Error(t, err)
}

func TestEngine_ConcurrentTransfersConserveTotal(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	const perAccount = 10000
	ids := make([]string, 6)
	for i := range ids {
		id, err := e.CreateAccount("Holder", perAccount, "secret")
		require.NoError(t, err)
		ids[i] = id
	}
	want := int64(perAccount * len(ids))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				from := ids[rng.Intn(len(ids))]
				to := ids[rng.Intn(len(ids))]
				amount := int64(rng.Intn(500) + 1)
				_, _, err := e.Transfer(from, to, amount, "shuffle")
				if err != nil && err != ledger.ErrSameAccount && err != ledger.ErrInsufficientFunds {
					t.Errorf("unexpected transfer error: %v", err)
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()

	var total int64
	for _, id := range ids {
		bal, err := e.GetBalance(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal, int64(0))
		total += bal
	}
	assert.Equal(t, want, total)
	assert.Equal(t, want, e.store.TotalBalance())
}

func TestEngine_OppositeTransfersDoNotDeadlock(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	a, err := e.CreateAccount("Alice", 100000, "secret")
	require.NoError(t, err)
	b, err := e.CreateAccount("Bob", 100000, "secret")
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.Transfer(a, b, 1, "ping")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.Transfer(b, a, 1, "pong")
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("opposite transfers deadlocked")
	}

	aBal, err := e.GetBalance(a)
	require.NoError(t, err)
	bBal, err := e.GetBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), aBal+bBal)
}

func TestEngine_BackgroundSnapshotOnWALSize(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{DataDir: dir, BcryptCost: bcrypt.MinCost, SnapshotWALBytes: 1})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.CreateAccount("Alice", 1000, "secret")
	require.NoError(t, err)

	snapDir := filepath.Join(dir, "snapshots")
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(snapDir)
		if err != nil {
			return false
		}
		for _, entry := range entries {
			if filepath.Ext(entry.Name()) == ".snap" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "no background snapshot appeared")
}

func TestEngine_ListAccountsSorted(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Close()

	for i := 0; i < 5; i++ {
		_, err := e.CreateAccount("Holder", 100, "secret")
		require.NoError(t, err)
	}

	accounts := e.ListAccounts()
	require.Len(t, accounts, 5)
	for i := 1; i < len(accounts); i++ {
		assert.Less(t, accounts[i-1].ID, accounts[i].ID)
	}
}
