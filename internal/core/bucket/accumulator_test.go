package bucket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/mouselog/internal/core/motion"
	"github.com/xyproto/mouselog/internal/core/storage"
	storagemocks "github.com/xyproto/mouselog/internal/mocks/storage"
)

// memSink records every append in order.
type memSink struct {
	records []storage.Record
}

func (s *memSink) Append(_ context.Context, rec storage.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func TestAccumulator_IngestAddsMagnitudeToTotalAndBucket(t *testing.T) {
	samples := []motion.Sample{
		{DX: 3, DY: 4},
		{DX: -1, DY: 1},
		{DX: 0, DY: 0},
		{DX: -128, DY: -128},
	}

	acc := New()
	for _, s := range samples {
		totalBefore := acc.GrandTotal()
		bucketBefore := bucketValue(acc, acc.CurrentKey())

		d, err := acc.Ingest(s)
		require.NoError(t, err)
		require.Equal(t, s.Magnitude(), d)
		require.InDelta(t, totalBefore+d, acc.GrandTotal(), 1e-9)
		require.InDelta(t, bucketBefore+d, bucketValue(acc, acc.CurrentKey()), 1e-9)
	}
}

func TestAccumulator_TotalIndependentOfBucketing(t *testing.T) {
	samples := []motion.Sample{{DX: 1, DY: 2}, {DX: 5, DY: 5}, {DX: -7, DY: 3}, {DX: 2, DY: 0}, {DX: 9, DY: -9}}

	want := 0.0
	for _, s := range samples {
		want += s.Magnitude()
	}

	oneBucket := New()
	manyBuckets := New()
	for i, s := range samples {
		_, err := oneBucket.Ingest(s)
		require.NoError(t, err)

		require.NoError(t, manyBuckets.Advance(int64(i*3)))
		_, err = manyBuckets.Ingest(s)
		require.NoError(t, err)
	}

	require.InDelta(t, want, oneBucket.GrandTotal(), 1e-9)
	require.InDelta(t, want, manyBuckets.GrandTotal(), 1e-9)
	require.Equal(t, 1, oneBucket.Len())
	require.Equal(t, len(samples), manyBuckets.Len())

	sum := 0.0
	for _, b := range manyBuckets.Snapshot(0, true) {
		sum += b.Distance
	}
	require.InDelta(t, manyBuckets.GrandTotal(), sum, 1e-9)
}

func TestAccumulator_AdvanceIsIdempotent(t *testing.T) {
	once := New()
	twice := New()
	for _, acc := range []*Accumulator{once, twice} {
		_, err := acc.Ingest(motion.Sample{DX: 2, DY: 2})
		require.NoError(t, err)
	}

	require.NoError(t, once.Advance(5))
	require.NoError(t, twice.Advance(5))
	require.NoError(t, twice.Advance(5))

	require.Equal(t, once.CurrentKey(), twice.CurrentKey())
	require.Equal(t, once.Len(), twice.Len())
	require.Equal(t, once.GrandTotal(), twice.GrandTotal())
	require.Equal(t, once.Snapshot(0, true), twice.Snapshot(0, true))
}

func TestAccumulator_AdvanceDoesNotCreateBucket(t *testing.T) {
	acc := New()
	require.NoError(t, acc.Advance(3))
	require.Equal(t, 0, acc.Len())
	require.Equal(t, int64(3), acc.CurrentKey())
}

func TestAccumulator_AdvanceBackwardsIsInvariantViolation(t *testing.T) {
	acc := New()
	require.NoError(t, acc.Advance(10))

	err := acc.Advance(9)
	require.ErrorIs(t, err, ErrStateInvariant)
	require.Equal(t, int64(10), acc.CurrentKey())
}

func TestAccumulator_IngestIntoFlushedBucketFails(t *testing.T) {
	acc := New()
	_, err := acc.Ingest(motion.Sample{DX: 1})
	require.NoError(t, err)
	require.NoError(t, acc.Flush(context.Background(), &memSink{}))

	_, err = acc.Ingest(motion.Sample{DX: 1})
	require.ErrorIs(t, err, ErrStateInvariant)
	require.Equal(t, 1.0, acc.GrandTotal())
}

func TestAccumulator_FlushWritesPendingInKeyOrder(t *testing.T) {
	acc := New()
	ingest(t, acc, 0, motion.Sample{DX: 3, DY: 4})
	ingest(t, acc, 1, motion.Sample{DX: 6, DY: 8})
	ingest(t, acc, 4, motion.Sample{DX: 0, DY: 2})

	sink := &memSink{}
	require.NoError(t, acc.Flush(context.Background(), sink))

	require.Equal(t, []storage.Record{
		{Key: 0, Value: 5, Total: 17},
		{Key: 1, Value: 10, Total: 17},
		{Key: 4, Value: 2, Total: 17},
	}, sink.records)
	for _, k := range []int64{0, 1, 4} {
		require.True(t, acc.IsFlushed(k))
	}
}

func TestAccumulator_FlushTwiceWritesNothingNew(t *testing.T) {
	acc := New()
	ingest(t, acc, 0, motion.Sample{DX: 1, DY: 1})
	ingest(t, acc, 1, motion.Sample{DX: 1, DY: 1})

	sink := &memSink{}
	require.NoError(t, acc.Flush(context.Background(), sink))
	require.Len(t, sink.records, 2)

	require.NoError(t, acc.Flush(context.Background(), sink))
	require.Len(t, sink.records, 2)
}

func TestAccumulator_FlushCapturesLatestValue(t *testing.T) {
	acc := New()
	ingest(t, acc, 0, motion.Sample{DX: 1})
	ingest(t, acc, 0, motion.Sample{DX: 2})
	require.NoError(t, acc.Advance(1))
	ingest(t, acc, 1, motion.Sample{DX: 4})
	ingest(t, acc, 1, motion.Sample{DX: 8})

	sink := &memSink{}
	require.NoError(t, acc.Flush(context.Background(), sink))

	require.Equal(t, []storage.Record{
		{Key: 0, Value: 3, Total: 15},
		{Key: 1, Value: 12, Total: 15},
	}, sink.records)
}

func TestAccumulator_FlushPartialFailure(t *testing.T) {
	acc := New()
	ingest(t, acc, 0, motion.Sample{DX: 1})
	ingest(t, acc, 1, motion.Sample{DX: 2})
	ingest(t, acc, 2, motion.Sample{DX: 3})

	diskFull := errors.New("disk full")
	sink := storagemocks.NewRecordSink(t)
	sink.EXPECT().Append(mock.Anything, storage.Record{Key: 0, Value: 1, Total: 6}).Return(nil).Once()
	sink.EXPECT().Append(mock.Anything, storage.Record{Key: 1, Value: 2, Total: 6}).Return(diskFull).Once()

	err := acc.Flush(context.Background(), sink)
	require.ErrorIs(t, err, ErrSinkWrite)
	require.ErrorIs(t, err, diskFull)

	var swe *SinkWriteError
	require.True(t, errors.As(err, &swe))
	require.Equal(t, int64(1), swe.Key)

	require.True(t, acc.IsFlushed(0))
	require.False(t, acc.IsFlushed(1))
	require.False(t, acc.IsFlushed(2))

	retry := &memSink{}
	require.NoError(t, acc.Flush(context.Background(), retry))
	require.Equal(t, []storage.Record{
		{Key: 1, Value: 2, Total: 6},
		{Key: 2, Value: 3, Total: 6},
	}, retry.records)
}

func TestAccumulator_FlushCancelledContext(t *testing.T) {
	acc := New()
	ingest(t, acc, 0, motion.Sample{DX: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := storagemocks.NewRecordSink(t)
	err := acc.Flush(ctx, sink)
	require.ErrorIs(t, err, ErrSinkWrite)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, acc.IsFlushed(0))
}

func TestAccumulator_FlushEmptyIsNoop(t *testing.T) {
	sink := storagemocks.NewRecordSink(t)
	require.NoError(t, New().Flush(context.Background(), sink))
}

func TestKeyFor(t *testing.T) {
	require.Equal(t, int64(0), KeyFor(-5))
	require.Equal(t, int64(0), KeyFor(999_999_999))
	require.Equal(t, int64(61), KeyFor(61_900_000_000))
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("1m")
	require.NoError(t, err)
	require.Equal(t, float64(60), d.Seconds())

	_, err = ParseInterval("500ms")
	require.Error(t, err)

	_, err = ParseInterval("")
	require.Error(t, err)

	_, err = ParseInterval("soon")
	require.Error(t, err)
}

func ingest(t *testing.T, acc *Accumulator, key int64, s motion.Sample) {
	t.Helper()
	require.NoError(t, acc.Advance(key))
	_, err := acc.Ingest(s)
	require.NoError(t, err)
}

func bucketValue(acc *Accumulator, key int64) float64 {
	for _, b := range acc.Snapshot(0, true) {
		if b.Key == key {
			return b.Distance
		}
	}
	return 0
}
