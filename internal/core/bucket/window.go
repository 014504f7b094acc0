package bucket

import (
	"fmt"
	"time"
)

// KeyFor maps time elapsed since collection start to a bucket key: whole
// seconds, truncated. Negative durations map to 0.
// Example: KeyFor(61.9s) → 61
func KeyFor(elapsed time.Duration) int64 {
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Second)
}

// ParseInterval parses a bucket interval. Intervals shorter than one second
// are rejected: two advances must never produce the same key, otherwise the
// next ingest would land in an already flushed bucket.
func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("bucket interval must not be empty")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bucket interval %q: %w", s, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("bucket interval must be at least 1s, got %q", s)
	}
	return d, nil
}
