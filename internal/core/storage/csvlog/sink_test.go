package csvlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/mouselog/internal/core/bucket"
	"github.com/xyproto/mouselog/internal/core/motion"
	"github.com/xyproto/mouselog/internal/core/storage"
)

func TestSink_AppendWritesOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	sink, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, storage.Record{Key: 0, Value: 5, Total: 5}))
	require.NoError(t, sink.Append(ctx, storage.Record{Key: 1, Value: 1.4142135623730951, Total: 6.414213562373095}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0,5,5\n1,1.4142135623730951,6.414213562373095\n", string(data))
}

func TestSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, storage.Record{Key: 0, Value: 1, Total: 1}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Append(ctx, storage.Record{Key: 60, Value: 2, Total: 3}))

	recs, err := second.ReadRecords(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Close())
	require.Equal(t, []storage.Record{
		{Key: 0, Value: 1, Total: 1},
		{Key: 60, Value: 2, Total: 3},
	}, recs)
}

// flakyFile fails its first Write after writing half the bytes, or its first
// Sync, then behaves like the real file.
type flakyFile struct {
	*os.File
	failWrite bool
	failSync  bool
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if f.failWrite {
		f.failWrite = false
		n, _ := f.File.Write(p[:len(p)/2])
		return n, syscall.ENOSPC
	}
	return f.File.Write(p)
}

func (f *flakyFile) Sync() error {
	if f.failSync {
		f.failSync = false
		return syscall.EIO
	}
	return f.File.Sync()
}

func openFlaky(t *testing.T, path string, ff *flakyFile) *Sink {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	ff.File = f
	sink, err := newSink(path, ff)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSink_RecoversAfterFailedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	ctx := context.Background()

	sink := openFlaky(t, path, &flakyFile{failWrite: true})

	err := sink.Append(ctx, storage.Record{Key: 0, Value: 5, Total: 5})
	require.ErrorIs(t, err, syscall.ENOSPC)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, string(data))

	require.NoError(t, sink.Append(ctx, storage.Record{Key: 0, Value: 5, Total: 5}))
	require.NoError(t, sink.Append(ctx, storage.Record{Key: 1, Value: 2, Total: 7}))

	recs, err := ReadFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []storage.Record{
		{Key: 0, Value: 5, Total: 5},
		{Key: 1, Value: 2, Total: 7},
	}, recs)
}

func TestSink_FailedSyncRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,1,1\n"), 0o644))
	ctx := context.Background()

	sink := openFlaky(t, path, &flakyFile{failSync: true})

	err := sink.Append(ctx, storage.Record{Key: 1, Value: 3, Total: 4})
	require.ErrorIs(t, err, syscall.EIO)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0,1,1\n", string(data))

	require.NoError(t, sink.Append(ctx, storage.Record{Key: 1, Value: 3, Total: 4}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0,1,1\n1,3,4\n", string(data))
}

func TestSink_FlushRetryThroughAccumulator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	ctx := context.Background()
	sink := openFlaky(t, path, &flakyFile{failWrite: true})

	acc := bucket.New()
	_, err := acc.Ingest(motion.Sample{DX: 3, DY: 4})
	require.NoError(t, err)

	err = acc.Flush(ctx, sink)
	require.ErrorIs(t, err, bucket.ErrSinkWrite)
	require.False(t, acc.IsFlushed(0))

	require.NoError(t, acc.Advance(1))
	_, err = acc.Ingest(motion.Sample{DX: 1})
	require.NoError(t, err)
	require.NoError(t, acc.Flush(ctx, sink))

	recs, err := ReadFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []storage.Record{
		{Key: 0, Value: 5, Total: 6},
		{Key: 1, Value: 1, Total: 6},
	}, recs)
}

func TestSink_AppendAfterClose(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "output.csv"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Append(context.Background(), storage.Record{})
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestSink_OpenFailure(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "output.csv"))
	require.Error(t, err)
}

func TestRoundTrip_AccumulatorFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	sink, err := Open(path)
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	acc := bucket.New()
	tee := &teeSink{next: sink}

	samples := [][]motion.Sample{
		{{DX: 1, DY: 1}, {DX: -3, DY: 7}},
		{{DX: 5, DY: -2}},
		{},
		{{DX: 127, DY: -128}, {DX: 0, DY: 1}, {DX: 2, DY: 3}},
	}
	for i, batch := range samples {
		require.NoError(t, acc.Advance(int64(i)))
		for _, s := range batch {
			_, err := acc.Ingest(s)
			require.NoError(t, err)
		}
		require.NoError(t, acc.Flush(ctx, tee))
	}

	got, err := ReadFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, tee.written, got)
	require.Len(t, got, 3)
}

func TestRead_MalformedLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "too few fields", input: "1,2\n"},
		{name: "bad key", input: "x,1,1\n"},
		{name: "bad value", input: "1,nope,1\n"},
		{name: "bad total", input: "1,1,\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(context.Background(), strings.NewReader(tc.input))
			require.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

type teeSink struct {
	next    storage.RecordSink
	written []storage.Record
}

func (s *teeSink) Append(ctx context.Context, rec storage.Record) error {
	if err := s.next.Append(ctx, rec); err != nil {
		return err
	}
	s.written = append(s.written, rec)
	return nil
}
