package csvlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/xyproto/mouselog/internal/core/storage"
)

// logFile is the part of *os.File the sink uses.
type logFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
	Close() error
}

// Sink appends records to a CSV file, one `key,value,total` line per bucket.
// The file is opened in append mode and never truncated below what was
// already acknowledged; every Append is synced to disk before it returns.
//
// A failed Append rolls the file back to its previous size, so a partial
// line never survives and the next Append starts on a clean line.
type Sink struct {
	mu   sync.Mutex
	path string
	file logFile
	size int64
}

// Open creates the file if needed and positions writes at its end.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv log %s: %w", path, err)
	}

	s, err := newSink(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	slog.Info("[CSVLog] Opened durable log", "path", path, "size", s.size)
	return s, nil
}

func newSink(path string, f logFile) (*Sink, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat csv log %s: %w", path, err)
	}
	return &Sink{path: path, file: f, size: info.Size()}, nil
}

// Path returns the file the sink writes to.
func (s *Sink) Path() string { return s.path }

// Append writes one record as a single line and fsyncs the file.
func (s *Sink) Append(ctx context.Context, rec storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := encodeLine(rec)
	if err != nil {
		return fmt.Errorf("csv log: encode bucket %d: %w", rec.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return storage.ErrClosed
	}

	n, err := s.file.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return s.rollback(rec.Key, "write", err)
	}
	if err := s.file.Sync(); err != nil {
		return s.rollback(rec.Key, "sync", err)
	}

	s.size += int64(n)
	return nil
}

// rollback truncates the file to the last acknowledged size.
func (s *Sink) rollback(key int64, op string, cause error) error {
	if terr := s.file.Truncate(s.size); terr != nil {
		slog.Error("[CSVLog] Failed to roll back partial record",
			"path", s.path,
			"bucket_key", key,
			"size", s.size,
			"error", terr)
		return fmt.Errorf("csv log: %s bucket %d: %w (rollback failed: %v)", op, key, cause, terr)
	}
	slog.Warn("[CSVLog] Rolled back failed record", "path", s.path, "bucket_key", key, "error", cause)
	return fmt.Errorf("csv log: %s bucket %d: %w", op, key, cause)
}

// ReadRecords re-reads the file the sink appends to.
func (s *Sink) ReadRecords(ctx context.Context) ([]storage.Record, error) {
	return ReadFile(ctx, s.path)
}

// Close closes the file. Appends after Close return storage.ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("csv log: close: %w", err)
	}
	return nil
}

// encodeLine renders one record as a complete CSV line.
func encodeLine(rec storage.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(FormatRecord(rec)); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatRecord renders a record as its three CSV fields. Floats use the
// shortest representation that parses back to the same value.
func FormatRecord(rec storage.Record) []string {
	return []string{
		strconv.FormatInt(rec.Key, 10),
		strconv.FormatFloat(rec.Value, 'f', -1, 64),
		strconv.FormatFloat(rec.Total, 'f', -1, 64),
	}
}
