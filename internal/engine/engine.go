// Package engine provides the ledger storage engine that coordinates the
// account store, per-account locks, WAL, and snapshots. Every mutation
// follows the pattern: validate -> lock -> re-validate -> WAL append ->
// apply -> respond. The WAL is authoritative: state is only ever rebuilt
// from snapshot plus replay, so nothing is applied in memory unless its
// record committed first.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerd/ledgerd/internal/ledger"
	"github.com/ledgerd/ledgerd/internal/locks"
	"github.com/ledgerd/ledgerd/internal/metrics"
	"github.com/ledgerd/ledgerd/internal/snapshot"
	"github.com/ledgerd/ledgerd/internal/store"
	"github.com/ledgerd/ledgerd/internal/wal"
)

// Options configures an Engine. Zero values get sensible defaults from New.
type Options struct {
	// DataDir holds the WAL segments and snapshot files.
	DataDir string
	// BcryptCost is the password hashing cost (bcrypt.DefaultCost if zero).
	BcryptCost int
	// SnapshotInterval triggers a background snapshot this long after the
	// previous one. Zero disables the time trigger.
	SnapshotInterval time.Duration
	// SnapshotWALBytes triggers a background snapshot once the current WAL
	// segment grows past this size. Zero disables the size trigger.
	SnapshotWALBytes int64
	// SnapshotKeep is how many snapshots to retain (default 3).
	SnapshotKeep int
	Logger       *slog.Logger
}

// Engine is the embedded ledger engine. It is safe for concurrent use by
// multiple goroutines: operations on the same account serialise on that
// account's lock, disjoint accounts proceed in parallel.
type Engine struct {
	// snapMu is held shared by every mutation and exclusively by Snapshot,
	// so a snapshot plus WAL rotation never observes a torn operation.
	snapMu sync.RWMutex
	// createMu serialises id generation with account creation.
	createMu sync.Mutex

	store  *store.Store
	wal    *wal.WAL
	locks  *locks.Table
	snaps  *snapshot.Manager
	logger *slog.Logger
	opts   Options

	lastSnapMu sync.Mutex
	lastSnap   time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New opens or creates an engine in opts.DataDir and recovers state from the
// latest snapshot plus WAL replay. A corrupted WAL aborts startup: the
// engine refuses to serve rather than silently losing committed history.
func New(opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.SnapshotKeep == 0 {
		opts.SnapshotKeep = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	w, err := wal.Open(filepath.Join(opts.DataDir, "wal"))
	if err != nil {
		return nil, fmt.Errorf("engine: open WAL: %w", err)
	}
	sm, err := snapshot.NewManager(filepath.Join(opts.DataDir, "snapshots"))
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("engine: init snapshot manager: %w", err)
	}

	e := &Engine{
		store:    store.New(),
		wal:      w,
		locks:    locks.NewTable(),
		snaps:    sm,
		logger:   opts.Logger,
		opts:     opts,
		lastSnap: time.Now(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := e.recover(); err != nil {
		w.Close()
		return nil, fmt.Errorf("engine: recover: %w", err)
	}

	if opts.SnapshotInterval > 0 || opts.SnapshotWALBytes > 0 {
		go e.snapshotLoop()
	} else {
		close(e.doneCh)
	}
	return e, nil
}

// recover rebuilds the account store from the latest snapshot and replays
// every WAL record committed after it, in commit order.
func (e *Engine) recover() error {
	snap, err := e.snaps.Latest()
	if err != nil {
		return err
	}

	sinceEpoch := 0
	if snap != nil {
		sinceEpoch = snap.Epoch
		for i := range snap.Accounts {
			if err := e.store.Create(&snap.Accounts[i]); err != nil {
				return fmt.Errorf("load snapshot %s: %w", snap.ID, err)
			}
		}
		// A crash between snapshot creation and WAL rotation leaves the
		// sealed epoch current; its contents are already in the snapshot,
		// so finish the rotation before accepting new appends.
		if e.wal.Epoch() <= snap.Epoch {
			if _, err := e.wal.Rotate(); err != nil {
				return err
			}
		}
		if err := e.wal.RemoveThrough(snap.Epoch); err != nil {
			e.logger.Warn("could not remove stale WAL segments", "err", err)
		}
	}

	records, err := e.wal.Replay(sinceEpoch)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := e.applyRecord(rec); err != nil {
			return fmt.Errorf("apply WAL record: %w", err)
		}
	}

	e.logger.Info("recovery complete",
		"accounts", e.store.Len(),
		"total_balance", e.store.TotalBalance(),
		"replayed_records", len(records),
		"wal_epoch", e.wal.Epoch(),
	)
	return nil
}

// applyRecord applies one committed WAL record to the in-memory store.
// Used only during single-threaded recovery, so no locks are taken.
func (e *Engine) applyRecord(rec wal.Record) error {
	switch rec.Type {
	case wal.OpCreateAccount:
		return e.store.Create(&ledger.Account{
			ID:               rec.AccountID,
			HolderName:       rec.HolderName,
			PasswordHash:     rec.PasswordHash,
			CreatedAt:        time.UnixMilli(rec.UnixMilli),
			LastInterestDate: rec.Date,
		})
	case wal.OpDeposit, wal.OpTransferIn:
		_, err := e.store.Apply(rec.AccountID, rec.Amount, txnFromRecord(rec))
		return err
	case wal.OpWithdraw, wal.OpTransferOut:
		_, err := e.store.Apply(rec.AccountID, -rec.Amount, txnFromRecord(rec))
		return err
	case wal.OpInterest:
		if _, err := e.store.Apply(rec.AccountID, rec.Amount, txnFromRecord(rec)); err != nil {
			return err
		}
		return e.store.SetInterestDate(rec.AccountID, rec.Date)
	case wal.OpChangePassword:
		return e.store.SetPasswordHash(rec.AccountID, rec.PasswordHash)
	default:
		return fmt.Errorf("unknown WAL record type 0x%02x", rec.Type)
	}
}

// Snapshot takes a consistent point-in-time copy of the account store,
// persists it, rotates the WAL, and removes segments the snapshot covers.
// It excludes all mutations for its duration.
func (e *Engine) Snapshot() error {
	start := time.Now()

	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	snap := &snapshot.Snapshot{
		Epoch:    e.wal.Epoch(),
		Accounts: e.store.List(),
	}
	meta, err := e.snaps.Create(snap)
	if err != nil {
		return fmt.Errorf("engine: write snapshot: %w", err)
	}

	sealed, err := e.wal.Rotate()
	if err != nil {
		// The snapshot is durable; recovery finishes the rotation.
		return fmt.Errorf("engine: rotate WAL after snapshot: %w", err)
	}
	if err := e.wal.RemoveThrough(sealed); err != nil {
		e.logger.Warn("could not remove sealed WAL segments", "err", err)
	}
	if err := e.snaps.Prune(e.opts.SnapshotKeep); err != nil {
		e.logger.Warn("could not prune snapshots", "err", err)
	}

	e.lastSnapMu.Lock()
	e.lastSnap = time.Now()
	e.lastSnapMu.Unlock()

	metrics.SnapshotsTotal.Inc()
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	// Rotation started a fresh segment; the gauge must not keep reporting
	// the sealed one until the next append.
	metrics.WALSegmentBytes.Set(0)
	e.logger.Info("snapshot complete",
		"id", meta.ID,
		"accounts", len(snap.Accounts),
		"sealed_epoch", sealed,
		"bytes", meta.SizeBytes,
	)
	return nil
}

// snapshotLoop runs snapshots on the configured time and WAL-size triggers.
func (e *Engine) snapshotLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if !e.snapshotDue() {
				continue
			}
			if err := e.Snapshot(); err != nil {
				e.logger.Error("background snapshot failed", "err", err)
			}
		}
	}
}

func (e *Engine) snapshotDue() bool {
	if e.opts.SnapshotWALBytes > 0 && e.wal.Size() >= e.opts.SnapshotWALBytes {
		return true
	}
	if e.opts.SnapshotInterval > 0 {
		e.lastSnapMu.Lock()
		due := time.Since(e.lastSnap) >= e.opts.SnapshotInterval
		e.lastSnapMu.Unlock()
		return due
	}
	return false
}

// Close stops the snapshot loop and closes the WAL. The engine must not be
// used after Close.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
	return e.wal.Close()
}

// now returns the current time truncated to millisecond precision, matching
// what the WAL encodes so replayed state is identical to live state.
func (e *Engine) now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}

func (e *Engine) newTxn(kind ledger.Kind, amount int64, description, counterparty string) ledger.Transaction {
	return ledger.Transaction{
		ID:               uuid.New(),
		Kind:             kind,
		AmountMinorUnits: amount,
		Timestamp:        e.now(),
		Description:      description,
		Counterparty:     counterparty,
	}
}

func txnFromRecord(rec wal.Record) ledger.Transaction {
	var kind ledger.Kind
	switch rec.Type {
	case wal.OpDeposit:
		kind = ledger.KindDeposit
	case wal.OpWithdraw:
		kind = ledger.KindWithdrawal
	case wal.OpTransferOut:
		kind = ledger.KindTransferOut
	case wal.OpTransferIn:
		kind = ledger.KindTransferIn
	case wal.OpInterest:
		kind = ledger.KindInterest
	}
	return ledger.Transaction{
		ID:               uuid.UUID(rec.TxnID),
		Kind:             kind,
		AmountMinorUnits: rec.Amount,
		Timestamp:        time.UnixMilli(rec.UnixMilli),
		Description:      rec.Description,
		Counterparty:     rec.Counterparty,
	}
}

func walRecord(typ byte, id string, txn ledger.Transaction) wal.Record {
	return wal.Record{
		Type:         typ,
		TxnID:        [16]byte(txn.ID),
		AccountID:    id,
		Amount:       txn.AmountMinorUnits,
		UnixMilli:    txn.Timestamp.UnixMilli(),
		Description:  txn.Description,
		Counterparty: txn.Counterparty,
	}
}

// append commits a batch to the WAL. On failure nothing may be applied in
// memory; the caller returns the error to the front-end and the system stays
// usable for other operations.
func (e *Engine) append(recs ...wal.Record) error {
	pos, err := e.wal.Append(recs...)
	if err != nil {
		return fmt.Errorf("engine: WAL append: %w", err)
	}
	metrics.WALAppendsTotal.Inc()
	metrics.WALSegmentBytes.Set(float64(pos.Offset))
	return nil
}
