// Package snapshot persists point-in-time copies of the account ledger so
// WAL replay stays bounded. Snapshots are gob-encoded files in a directory,
// written to a temp file and renamed so a crash mid-write never leaves a
// half-snapshot behind.
package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ledgerd/ledgerd/internal/ledger"
)

// Snapshot is the full serialisable ledger state captured at a moment in time.
// Epoch is the newest WAL segment whose effects the snapshot contains;
// recovery replays only segments after it.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Epoch     int
	Accounts  []ledger.Account
}

// Meta describes a snapshot without loading the full data.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	FilePath  string    `json:"file_path"`
}

// Manager handles snapshot CRUD backed by a directory on disk.
type Manager struct {
	dir string
}

// NewManager creates a Manager that stores snapshots in dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	return &Manager{dir: dir}, nil
}

// Create serialises snap to disk and returns its metadata.
func (m *Manager) Create(snap *Snapshot) (Meta, error) {
	if snap.ID == "" {
		snap.ID = fmt.Sprintf("snap-%013d", time.Now().UnixMilli())
	}
	snap.CreatedAt = time.Now()

	path := filepath.Join(m.dir, snap.ID+".snap")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: create file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return Meta{}, fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return Meta{}, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Meta{}, fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Meta{}, fmt.Errorf("snapshot: rename: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: stat: %w", err)
	}
	return Meta{
		ID:        snap.ID,
		CreatedAt: snap.CreatedAt,
		SizeBytes: info.Size(),
		FilePath:  path,
	}, nil
}

// List returns metadata for all snapshots, sorted newest first.
func (m *Manager) List() ([]Meta, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list dir: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".snap")
		metas = append(metas, Meta{
			ID:        id,
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
			FilePath:  filepath.Join(m.dir, e.Name()),
		})
	}

	// IDs embed a zero-padded creation timestamp, so lexical order is
	// creation order.
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ID > metas[j].ID
	})
	return metas, nil
}

// Load reads and decodes a snapshot from disk by ID.
func (m *Manager) Load(id string) (*Snapshot, error) {
	path := filepath.Join(m.dir, id+".snap")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", id, err)
	}
	defer f.Close()

	var snap Snapshot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", id, err)
	}
	return &snap, nil
}

// Latest loads the most recent snapshot, or returns nil if none exist.
func (m *Manager) Latest() (*Snapshot, error) {
	metas, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, nil
	}
	return m.Load(metas[0].ID)
}

// Delete removes a snapshot file by ID.
func (m *Manager) Delete(id string) error {
	path := filepath.Join(m.dir, id+".snap")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", id, err)
	}
	return nil
}

// Prune removes all but the keep most recent snapshots.
func (m *Manager) Prune(keep int) error {
	metas, err := m.List()
	if err != nil {
		return err
	}
	for i := keep; i < len(metas); i++ {
		if err := m.Delete(metas[i].ID); err != nil {
			return err
		}
	}
	return nil
}
