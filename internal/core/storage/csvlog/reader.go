package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xyproto/mouselog/internal/core/storage"
)

// ErrMalformedRecord is returned for a line that is not `int,float,float`.
var ErrMalformedRecord = errors.New("malformed log record")

// ReadFile parses every record in the log at path, in file order.
func ReadFile(ctx context.Context, path string) ([]storage.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv log %s: %w", path, err)
	}
	defer f.Close()

	return Read(ctx, f)
}

// Read parses records from r until EOF.
func Read(ctx context.Context, r io.Reader) ([]storage.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.ReuseRecord = true

	var out []storage.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		rec, err := ParseRecord(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

// ParseRecord is the inverse of FormatRecord.
func ParseRecord(fields []string) (storage.Record, error) {
	if len(fields) != 3 {
		return storage.Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedRecord, len(fields))
	}
	key, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: key %q", ErrMalformedRecord, fields[0])
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: value %q", ErrMalformedRecord, fields[1])
	}
	total, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: total %q", ErrMalformedRecord, fields[2])
	}
	return storage.Record{Key: key, Value: value, Total: total}, nil
}
