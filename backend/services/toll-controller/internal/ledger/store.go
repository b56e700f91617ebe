package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"tollbooth/backend/services/toll-controller/internal/metrics"
)

var (
	// ErrCorrupt is returned by Open when the ledger file exists but cannot be parsed.
	ErrCorrupt = errors.New("ledger: file is corrupt")
	// ErrWriteFailed is returned when the ledger file could not be rewritten. The
	// in-memory ledger still holds the record.
	ErrWriteFailed = errors.New("ledger: write failed")
)

// Store is the append-only transaction ledger. Memory is authoritative; the file at path
// is rewritten in full after every append so it always holds the complete history.
type Store struct {
	path    string
	metrics *metrics.Metrics

	// writeMu serialises file rewrites so an older snapshot never lands after a newer one.
	writeMu   sync.Mutex
	writeFile func(path string, data []byte) error

	mu      sync.RWMutex
	records []Record
	dirty   bool
	lastErr error
}

// Option customises a Store.
type Option func(*Store)

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open loads the ledger at path. A missing file yields an empty ledger; a file that exists
// but does not hold a valid record array yields ErrCorrupt.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      path,
		writeFile: writeFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := load(path)
	if err != nil {
		return nil, err
	}
	s.records = records
	s.metrics.LedgerLoaded(len(records))
	return s, nil
}

func load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s does not hold a record array", ErrCorrupt, path)
	}

	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %v", ErrCorrupt, path, i, err)
		}
	}
	return records, nil
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

// Append commits rec to memory and rewrites the file. If the rewrite fails the record stays
// committed in memory, the store is marked dirty and an error wrapping ErrWriteFailed is
// returned. Invalid records are rejected with ErrInvalidRecord and not stored.
func (s *Store) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.records = append(s.records, rec)
	count := len(s.records)
	data, err := encode(s.records)
	s.mu.Unlock()

	s.metrics.LedgerAppended(count, rec.Amount)
	if err != nil {
		return s.finishWrite(err)
	}
	return s.finishWrite(s.writeFile(s.path, data))
}

// Flush retries the file rewrite when a previous write failed. It is a no-op on a clean store.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	if !s.dirty {
		s.mu.RUnlock()
		return nil
	}
	data, err := encode(s.records)
	s.mu.RUnlock()

	if err != nil {
		return s.finishWrite(err)
	}
	return s.finishWrite(s.writeFile(s.path, data))
}

func (s *Store) finishWrite(err error) error {
	s.metrics.LedgerWrite(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dirty = true
		s.lastErr = err
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.dirty = false
	s.lastErr = nil
	return nil
}

// Snapshot returns a copy of the full ledger in append order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Recent returns at most limit records, newest first. limit <= 0 returns all of them.
func (s *Store) Recent(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Len returns the number of committed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dirty reports whether the file is behind memory.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// LastError returns the error of the last failed write, or nil once a write succeeds.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// writeFileAtomic replaces path with data via a temp file in the same directory, so a
// concurrent reader sees either the old or the new complete file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp ledger file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp ledger file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp ledger file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	success = true
	return nil
}
