package projection

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xyproto/mouselog/internal/core/storage"
)

// SpanTotal is the distance travelled over a run of consecutive bucket keys.
type SpanTotal struct {
	// Start is the first key (inclusive) of the span, a multiple of the span width.
	Start int64 `json:"start"`
	// End is the first key after the span.
	End      int64   `json:"end"`
	Distance float64 `json:"distance"`
	Buckets  int     `json:"buckets"`
}

// Rollup groups flushed records into spans of width keys (seconds), summing
// each span with exact decimal arithmetic. Records must be in key order, as
// every RecordReader returns them. Spans without records are omitted.
func Rollup(records []storage.Record, width int64) ([]SpanTotal, error) {
	if width <= 0 {
		return nil, fmt.Errorf("rollup width must be > 0, got %d", width)
	}

	var (
		out   []SpanTotal
		sum   decimal.Decimal
		cur   SpanTotal
		open  bool
		prevK int64 = -1
	)
	closeSpan := func() {
		cur.Distance = sum.InexactFloat64()
		out = append(out, cur)
	}

	for _, rec := range records {
		if rec.Key <= prevK {
			return nil, fmt.Errorf("records out of order: key %d after %d", rec.Key, prevK)
		}
		prevK = rec.Key

		start := rec.Key - rec.Key%width
		if !open || start != cur.Start {
			if open {
				closeSpan()
			}
			cur = SpanTotal{Start: start, End: start + width}
			sum = decimal.Zero
			open = true
		}
		sum = sum.Add(decimal.NewFromFloat(rec.Value))
		cur.Buckets++
	}
	if open {
		closeSpan()
	}
	return out, nil
}

// CurrentSession returns the trailing run of records with strictly increasing
// keys. Keys restart at 0 for every collection session, so a log that several
// sessions appended to splits wherever a key fails to increase.
func CurrentSession(records []storage.Record) []storage.Record {
	start := 0
	for i := 1; i < len(records); i++ {
		if records[i].Key <= records[i-1].Key {
			start = i
		}
	}
	return records[start:]
}

// History reads a durable log and rolls up the current session.
type History struct {
	reader storage.RecordReader
}

func NewHistory(reader storage.RecordReader) *History {
	if reader == nil {
		panic("projection: reader must not be nil")
	}
	return &History{reader: reader}
}

// Spans reads the log and groups the current session's records by width.
func (h *History) Spans(ctx context.Context, width int64) ([]SpanTotal, error) {
	records, err := h.reader.ReadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return Rollup(CurrentSession(records), width)
}
