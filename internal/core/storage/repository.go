package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned when a record is appended to a sink that has been closed.
var ErrClosed = errors.New("sink is closed")

// Record is one flushed bucket as it appears in the durable log.
type Record struct {
	// Key is the bucket key: whole seconds elapsed since collection start.
	Key int64
	// Value is the distance accumulated in the bucket at flush time.
	Value float64
	// Total is the grand total at flush time, independent of bucketing.
	Total float64
}

// RecordSink appends flushed buckets to a durable, append-only log.
type RecordSink interface {
	// Append writes one record and makes it visible to readers before returning.
	// A nil error is the acknowledgement the accumulator relies on to never
	// write the same bucket twice.
	Append(ctx context.Context, rec Record) error
}

// RecordReader reads back records in the order they were appended.
type RecordReader interface {
	ReadRecords(ctx context.Context) ([]Record, error)
}
