package bucket

import (
	"context"
	"fmt"
	"sync"

	"github.com/xyproto/mouselog/internal/core/motion"
	"github.com/xyproto/mouselog/internal/core/storage"
)

// DefaultTerminalWidth is the bar length given to the busiest bucket of a window.
const DefaultTerminalWidth = 40

// entry is one bucket in chronological order.
type entry struct {
	key   int64
	value float64
}

// Accumulator converts motion samples into per-bucket distance totals and
// tracks which buckets have been durably written.
//
// Keys only ever increase, so buckets are appended at the tail and the slice
// order is the chronological order. The index gives O(1) lookup by key.
//
// Mutations come from a single driving loop. Reads (RenderStats, Snapshot)
// take the reader lock and may run concurrently with ingestion.
type Accumulator struct {
	mu sync.RWMutex

	buckets []entry
	index   map[int64]int
	flushed map[int64]struct{}
	total   float64
	current int64

	terminalWidth int
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithTerminalWidth sets the bar length of the busiest bucket in RenderStats.
// Non-positive widths fall back to DefaultTerminalWidth.
func WithTerminalWidth(width int) Option {
	return func(a *Accumulator) {
		if width > 0 {
			a.terminalWidth = width
		}
	}
}

// New returns an empty accumulator positioned at bucket key 0.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{
		index:         make(map[int64]int),
		flushed:       make(map[int64]struct{}),
		terminalWidth: DefaultTerminalWidth,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest adds the sample's magnitude to the grand total and to the current
// bucket, creating the bucket on first use. It returns the sample distance.
func (a *Accumulator) Ingest(s motion.Sample) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, done := a.flushed[a.current]; done {
		return 0, fmt.Errorf("%w: ingest into flushed bucket %d", ErrStateInvariant, a.current)
	}

	distance := s.Magnitude()
	a.total += distance

	i, ok := a.index[a.current]
	if !ok {
		i = len(a.buckets)
		a.buckets = append(a.buckets, entry{key: a.current})
		a.index[a.current] = i
	}
	a.buckets[i].value += distance

	return distance, nil
}

// Advance moves the current bucket key forward. Advancing to the current key
// is a no-op; moving backwards is an invariant violation. No bucket is created
// until the next Ingest.
func (a *Accumulator) Advance(newKey int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if newKey < a.current {
		return fmt.Errorf("%w: advance from %d to %d", ErrStateInvariant, a.current, newKey)
	}
	a.current = newKey
	return nil
}

// Flush writes every bucket that has not been written yet, in ascending key
// order, as (key, value, grand total). A key is marked flushed as soon as its
// own write succeeds. On the first failure Flush stops and returns a
// *SinkWriteError naming that key; the failed key and every later key stay
// pending for the next call.
func (a *Accumulator) Flush(ctx context.Context, sink storage.RecordSink) error {
	pending := a.pending()

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return &SinkWriteError{Key: rec.Key, Err: err}
		}
		if err := sink.Append(ctx, rec); err != nil {
			return &SinkWriteError{Key: rec.Key, Err: err}
		}

		a.mu.Lock()
		a.flushed[rec.Key] = struct{}{}
		a.mu.Unlock()
	}
	return nil
}

// pending captures the unflushed buckets under the reader lock so sink I/O
// runs without blocking readers.
func (a *Accumulator) pending() []storage.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []storage.Record
	for _, b := range a.buckets {
		if _, done := a.flushed[b.key]; done {
			continue
		}
		out = append(out, storage.Record{Key: b.key, Value: b.value, Total: a.total})
	}
	return out
}

// GrandTotal returns the sum of every sample magnitude ingested so far.
func (a *Accumulator) GrandTotal() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}

// CurrentKey returns the active bucket key.
func (a *Accumulator) CurrentKey() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Len returns the number of buckets created so far.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buckets)
}

// IsFlushed reports whether the bucket has been written to a sink.
func (a *Accumulator) IsFlushed(key int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.flushed[key]
	return ok
}
