// Package wal provides the write-ahead log that makes ledger mutations
// durable. Records are grouped into batch frames: every Append call writes a
// single CRC32-checked frame with one fsync, so a multi-record commit (the
// two legs of a transfer) survives a crash as a unit or not at all.
//
// The log is split into epoch-numbered segment files. The snapshot path
// seals the current segment when it takes a snapshot; recovery replays only
// the segments newer than the snapshot's epoch.
package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Operation types for WAL records.
const (
	OpCreateAccount  byte = 0x01
	OpDeposit        byte = 0x02
	OpWithdraw       byte = 0x03
	OpTransferOut    byte = 0x04
	OpTransferIn     byte = 0x05
	OpInterest       byte = 0x06
	OpChangePassword byte = 0x07
)

// Frame header: CRC32 (4) + PayloadLen (4) + RecordCount (4) = 12 bytes.
const frameHeaderSize = 12

// Fixed record prefix: Type (1) + TxnID (16) + Amount (8) + UnixMilli (8) = 33 bytes.
const recordFixedSize = 33

const (
	maxFramePayload = 1 << 26
	maxFrameRecords = 1 << 16
	maxFieldLen     = 1 << 20
)

var (
	// ErrCorrupted indicates a fully-written frame that fails its checksum or
	// cannot be decoded. Replay treats this as fatal: the log must not be
	// served from until an operator resolves it.
	ErrCorrupted = errors.New("wal: corrupted record")
	// ErrEmptyBatch indicates an Append call with no records.
	ErrEmptyBatch = errors.New("wal: empty batch")
	// ErrTooLarge indicates a record or batch exceeding the size limits.
	// Append rejects it before writing; nothing Append accepts can later
	// fail replay on size.
	ErrTooLarge = errors.New("wal: record exceeds size limit")
)

// Record is one logged ledger mutation. Only the fields relevant to the
// operation type are populated; the rest encode as empty.
type Record struct {
	Type         byte
	TxnID        [16]byte
	AccountID    string
	Amount       int64
	UnixMilli    int64
	Description  string
	Counterparty string
	HolderName   string
	PasswordHash []byte
	Date         string
}

// Position identifies a committed batch: the segment epoch it lives in and
// the byte offset of the end of its frame.
type Position struct {
	Epoch  int
	Offset int64
}

// WAL is an append-only log over a directory of segment files.
// It is safe for concurrent use by multiple goroutines.
type WAL struct {
	mu    sync.Mutex
	dir   string
	file  *os.File
	epoch int
	size  int64
}

// Open opens the write-ahead log in dir, creating the directory and the
// first segment if needed. Appends go to the highest-numbered segment.
func Open(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	epochs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	epoch := 1
	if len(epochs) > 0 {
		epoch = epochs[len(epochs)-1]
	}

	w := &WAL{dir: dir}
	if err := w.openSegment(epoch); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WAL) openSegment(epoch int) error {
	path := segmentPath(w.dir, epoch)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("wal: stat segment: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return fmt.Errorf("wal: seek to end: %w", err)
	}
	w.file = file
	w.epoch = epoch
	w.size = info.Size()
	return nil
}

// Append durably persists recs as a single atomic frame. The frame is synced
// to disk before returning; on error nothing from the batch is visible to
// Replay and the caller must not apply the mutation in memory. Append
// enforces the same size limits Replay does, so a committed frame always
// decodes.
func (w *WAL) Append(recs ...Record) (Position, error) {
	if len(recs) == 0 {
		return Position{}, ErrEmptyBatch
	}
	if len(recs) > maxFrameRecords {
		return Position{}, ErrTooLarge
	}
	for i := range recs {
		if err := validateRecord(&recs[i]); err != nil {
			return Position{}, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Seek to end before writing
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return Position{}, fmt.Errorf("wal: seek to end: %w", err)
	}

	data := encodeFrame(recs)
	if len(data)-frameHeaderSize > maxFramePayload {
		return Position{}, ErrTooLarge
	}
	if _, err := w.file.Write(data); err != nil {
		return Position{}, fmt.Errorf("wal: write frame: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return Position{}, fmt.Errorf("wal: sync: %w", err)
	}

	w.size += int64(len(data))
	return Position{Epoch: w.epoch, Offset: w.size}, nil
}

// Replay returns every committed record in segments newer than sinceEpoch,
// in commit order. A torn frame at the tail of the newest segment is a crash
// artifact and is truncated away; a checksum failure anywhere else returns
// ErrCorrupted.
func (w *WAL) Replay(sinceEpoch int) ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	epochs, err := listSegments(w.dir)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, epoch := range epochs {
		if epoch <= sinceEpoch {
			continue
		}
		recs, valid, torn, err := readSegment(segmentPath(w.dir, epoch))
		if err != nil {
			return nil, fmt.Errorf("wal: segment %d: %w", epoch, err)
		}
		if torn {
			if epoch != w.epoch {
				return nil, fmt.Errorf("wal: segment %d: torn frame before log tail: %w", epoch, ErrCorrupted)
			}
			if err := w.file.Truncate(valid); err != nil {
				return nil, fmt.Errorf("wal: truncate torn tail: %w", err)
			}
			if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
				return nil, fmt.Errorf("wal: seek to end: %w", err)
			}
			w.size = valid
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Rotate seals the current segment and starts the next one, returning the
// sealed epoch. The caller must ensure no Append races a snapshot that
// depends on the sealed epoch's contents.
func (w *WAL) Rotate() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("wal: sync before rotate: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return 0, fmt.Errorf("wal: close segment: %w", err)
	}

	sealed := w.epoch
	if err := w.openSegment(sealed + 1); err != nil {
		return 0, err
	}
	return sealed, nil
}

// RemoveThrough deletes all segments numbered epoch or lower. The current
// segment is never removed.
func (w *WAL) RemoveThrough(epoch int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	epochs, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, e := range epochs {
		if e > epoch || e == w.epoch {
			continue
		}
		if err := os.Remove(segmentPath(w.dir, e)); err != nil {
			return fmt.Errorf("wal: remove segment %d: %w", e, err)
		}
	}
	return nil
}

// Size returns the byte size of the current segment.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Epoch returns the current segment's epoch.
func (w *WAL) Epoch() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

// Close syncs and closes the current segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync on close: %w", err)
	}
	return w.file.Close()
}

func segmentPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("wal-%08d.log", epoch))
}

func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}
	var epochs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "wal-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		epoch, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "wal-"), ".log"))
		if err != nil || epoch <= 0 {
			continue
		}
		epochs = append(epochs, epoch)
	}
	sort.Ints(epochs)
	return epochs, nil
}

// readSegment reads all frames from the segment at path. It returns the
// decoded records, the offset of the end of the last complete frame, and
// whether a torn (incomplete) frame follows it.
func readSegment(path string) ([]Record, int64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	var records []Record
	var valid int64
	for {
		recs, n, err := readFrame(f)
		if err == io.EOF {
			return records, valid, false, nil
		}
		if err == io.ErrUnexpectedEOF {
			return records, valid, true, nil
		}
		if err != nil {
			return nil, 0, false, err
		}
		records = append(records, recs...)
		valid += int64(n)
	}
}

// readFrame reads one batch frame. io.EOF means a clean end of segment,
// io.ErrUnexpectedEOF a torn frame.
func readFrame(r io.Reader) ([]Record, int, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("read frame header: %w", err)
	}

	storedCRC := binary.LittleEndian.Uint32(header[0:4])
	payloadLen := binary.LittleEndian.Uint32(header[4:8])
	count := binary.LittleEndian.Uint32(header[8:12])
	if payloadLen > maxFramePayload || count == 0 || count > maxFrameRecords {
		return nil, 0, ErrCorrupted
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return nil, 0, fmt.Errorf("read frame payload: %w", err)
	}

	// CRC covers everything after the checksum field.
	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)
	if crc.Sum32() != storedCRC {
		return nil, 0, ErrCorrupted
	}

	recs := make([]Record, 0, count)
	br := bytes.NewReader(payload)
	for i := uint32(0); i < count; i++ {
		rec, err := decodeRecord(br)
		if err != nil {
			return nil, 0, ErrCorrupted
		}
		recs = append(recs, rec)
	}
	if br.Len() != 0 {
		return nil, 0, ErrCorrupted
	}
	return recs, frameHeaderSize + int(payloadLen), nil
}

// encodeFrame serialises a batch into a single frame with CRC32 checksum.
// Format: CRC32 (4) + PayloadLen (4) + Count (4) + Payload.
func encodeFrame(recs []Record) []byte {
	var payload bytes.Buffer
	for i := range recs {
		encodeRecord(&payload, &recs[i])
	}

	data := make([]byte, frameHeaderSize+payload.Len())
	binary.LittleEndian.PutUint32(data[4:8], uint32(payload.Len()))
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(recs)))
	copy(data[frameHeaderSize:], payload.Bytes())

	checksum := crc32.ChecksumIEEE(data[4:])
	binary.LittleEndian.PutUint32(data[0:4], checksum)
	return data
}

// validateRecord mirrors the read-side field limits so Append can reject a
// record the decoder would refuse.
func validateRecord(rec *Record) error {
	for _, f := range [][]byte{
		[]byte(rec.AccountID),
		[]byte(rec.Description),
		[]byte(rec.Counterparty),
		[]byte(rec.HolderName),
		rec.PasswordHash,
		[]byte(rec.Date),
	} {
		if len(f) > maxFieldLen {
			return ErrTooLarge
		}
	}
	return nil
}

func encodeRecord(buf *bytes.Buffer, rec *Record) {
	fixed := make([]byte, recordFixedSize)
	fixed[0] = rec.Type
	copy(fixed[1:17], rec.TxnID[:])
	binary.LittleEndian.PutUint64(fixed[17:25], uint64(rec.Amount))
	binary.LittleEndian.PutUint64(fixed[25:33], uint64(rec.UnixMilli))
	buf.Write(fixed)

	writeField(buf, []byte(rec.AccountID))
	writeField(buf, []byte(rec.Description))
	writeField(buf, []byte(rec.Counterparty))
	writeField(buf, []byte(rec.HolderName))
	writeField(buf, rec.PasswordHash)
	writeField(buf, []byte(rec.Date))
}

func writeField(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func decodeRecord(r *bytes.Reader) (Record, error) {
	fixed := make([]byte, recordFixedSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return Record{}, err
	}

	var rec Record
	rec.Type = fixed[0]
	copy(rec.TxnID[:], fixed[1:17])
	rec.Amount = int64(binary.LittleEndian.Uint64(fixed[17:25]))
	rec.UnixMilli = int64(binary.LittleEndian.Uint64(fixed[25:33]))

	fields := make([][]byte, 6)
	for i := range fields {
		b, err := readField(r)
		if err != nil {
			return Record{}, err
		}
		fields[i] = b
	}
	rec.AccountID = string(fields[0])
	rec.Description = string(fields[1])
	rec.Counterparty = string(fields[2])
	rec.HolderName = string(fields[3])
	rec.PasswordHash = fields[4]
	rec.Date = string(fields[5])
	return rec, nil
}

func readField(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFieldLen {
		return nil, ErrCorrupted
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
