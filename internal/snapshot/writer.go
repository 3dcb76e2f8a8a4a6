// Package snapshot implements the append-only, gzip-compressed,
// newline-delimited JSON persistence shared by book snapshots and price
// history flushes.
package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PersistenceError wraps a file/gzip/IO failure from a write attempt. It is
// always logged, never fatal — the in-memory book remains authoritative.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error writing %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer appends one gzip member per flush to a single deterministically
// named file, opened lazily on first write. MaybeWrite and Close are
// serialized by an internal mutex, so concurrent calls are safe; in the
// engine each Writer is owned by a single batch worker anyway.
type Writer struct {
	path          string
	writeInterval time.Duration
	log           *zap.Logger

	mu            sync.Mutex
	file          *os.File
	hasWritten    bool
	lastWriteTime time.Time
}

// FileName builds the deterministic snapshot/price-history file name:
// "<prefix>_<symbol>_<ISO8601-with-colons-replaced>.jsonl.gz".
func FileName(prefix, symbol string, sessionStart time.Time) string {
	stamp := strings.ReplaceAll(sessionStart.UTC().Format(time.RFC3339), ":", "-")
	return fmt.Sprintf("%s_%s_%s.jsonl.gz", prefix, symbol, stamp)
}

// New returns a Writer for dir/FileName(prefix, symbol, sessionStart),
// gated to at most one write per writeInterval.
func New(dir, prefix, symbol string, sessionStart time.Time, writeInterval time.Duration, log *zap.Logger) *Writer {
	return &Writer{
		path:          filepath.Join(dir, FileName(prefix, symbol, sessionStart)),
		writeInterval: writeInterval,
		log:           log.Named("snapshot-writer").With(zap.String("symbol", symbol)),
	}
}

// MaybeWrite calls producer and appends its JSON encoding as one
// newline-terminated gzip member iff now - last_write_time >= write_interval
// (or this is the first write); otherwise it is a no-op. Write failures are
// logged and returned as *PersistenceError — the caller never treats them
// as fatal to ingestion.
func (w *Writer) MaybeWrite(now time.Time, producer func() any) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasWritten && now.Sub(w.lastWriteTime) < w.writeInterval {
		return false, nil
	}

	payload := producer()
	line, err := json.Marshal(payload)
	if err != nil {
		perr := &PersistenceError{Path: w.path, Err: err}
		w.log.Warn("failed to encode snapshot record", zap.Error(perr))
		return false, perr
	}

	if err := w.ensureOpen(); err != nil {
		perr := &PersistenceError{Path: w.path, Err: err}
		w.log.Warn("failed to open snapshot file", zap.Error(perr))
		return false, perr
	}

	if err := w.appendLine(line); err != nil {
		perr := &PersistenceError{Path: w.path, Err: err}
		w.log.Warn("failed to write snapshot record", zap.Error(perr))
		return false, perr
	}

	w.lastWriteTime = now
	w.hasWritten = true
	return true, nil
}

func (w *Writer) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	return nil
}

func (w *Writer) appendLine(line []byte) error {
	gz := gzip.NewWriter(w.file)
	if _, err := gz.Write(line); err != nil {
		gz.Close()
		return err
	}
	if _, err := gz.Write([]byte("\n")); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// Close releases the underlying file handle, if open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
