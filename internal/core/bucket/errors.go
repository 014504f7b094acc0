package bucket

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyWindow is returned when stats are requested over zero buckets.
	ErrEmptyWindow = errors.New("no buckets in stats window")

	// ErrStateInvariant marks a programming error in the driving loop: ingesting
	// into a flushed bucket or moving the bucket key backwards.
	ErrStateInvariant = errors.New("accumulator state invariant violated")

	// ErrSinkWrite matches every *SinkWriteError.
	ErrSinkWrite = errors.New("sink write failed")
)

// SinkWriteError reports the first bucket a Flush could not write.
type SinkWriteError struct {
	Key int64
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("flush bucket %d: %v", e.Key, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }
