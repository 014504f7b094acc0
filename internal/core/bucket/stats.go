package bucket

import (
	"math"
	"strconv"
	"strings"
)

// barMarker is repeated to draw each bucket's bar.
const barMarker = "*"

// BucketValue is a read-only copy of one bucket.
type BucketValue struct {
	Key      int64   `json:"key"`
	Distance float64 `json:"distance"`
	Flushed  bool    `json:"flushed"`
}

// RenderStats draws a bar chart of either every bucket (full) or the most
// recent windowSize buckets, normalized so the busiest bucket in the window
// gets terminalWidth markers. Two summary lines follow: the distance of the
// last bucket in the window and the grand total, both truncated to integers.
//
// The last bucket is reported as-is even when it is still empty.
func (a *Accumulator) RenderStats(windowSize int, full bool) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sel := a.window(windowSize, full)
	if len(sel) == 0 {
		return "", ErrEmptyWindow
	}

	maxValue := 0.0
	for _, b := range sel {
		if b.value > maxValue {
			maxValue = b.value
		}
	}

	var sb strings.Builder
	for _, b := range sel {
		bars := 0
		if maxValue > 0 {
			bars = int(math.Floor(b.value / maxValue * float64(a.terminalWidth)))
		}
		sb.WriteString(strconv.FormatInt(b.key, 10))
		sb.WriteString(": ")
		sb.WriteString(strings.Repeat(barMarker, bars))
		sb.WriteByte('\n')
	}
	sb.WriteString("Last distance: ")
	sb.WriteString(strconv.FormatInt(int64(sel[len(sel)-1].value), 10))
	sb.WriteByte('\n')
	sb.WriteString("Total distance: ")
	sb.WriteString(strconv.FormatInt(int64(a.total), 10))

	return sb.String(), nil
}

// Snapshot copies the same selection RenderStats would draw.
func (a *Accumulator) Snapshot(windowSize int, full bool) []BucketValue {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sel := a.window(windowSize, full)
	out := make([]BucketValue, 0, len(sel))
	for _, b := range sel {
		_, flushed := a.flushed[b.key]
		out = append(out, BucketValue{Key: b.key, Distance: b.value, Flushed: flushed})
	}
	return out
}

// window returns a view of the selected buckets. Callers must hold the lock
// and must not modify the result.
func (a *Accumulator) window(windowSize int, full bool) []entry {
	if full {
		return a.buckets
	}
	if windowSize <= 0 {
		return nil
	}
	if n := len(a.buckets); n > windowSize {
		return a.buckets[n-windowSize:]
	}
	return a.buckets
}
