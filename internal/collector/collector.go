package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xyproto/mouselog/internal/core/bucket"
	"github.com/xyproto/mouselog/internal/core/motion"
	"github.com/xyproto/mouselog/internal/core/storage"
)

const (
	defaultStatLines        = 40
	defaultMaxFlushFailures = 3
)

// Clock abstracts wall time so tests can drive bucket boundaries by hand.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options controls a collection run.
type Options struct {
	// Interval is the bucket length. Must be at least one second so that
	// consecutive advances always produce a new key.
	Interval time.Duration
	// Continue is evaluated with the elapsed time before every bucket.
	// Nil keeps collecting until the context is cancelled.
	Continue func(elapsed time.Duration) bool
	// StatLines is the window rendered after each bucket when Verbose is set.
	StatLines int
	// Verbose receives the rendered window after every flush. Nil disables it.
	Verbose io.Writer
	// MaxFlushFailures is how many consecutive failed flushes end the run.
	MaxFlushFailures int
	Clock            Clock
}

func (o Options) normalized() Options {
	n := o
	if n.Continue == nil {
		n.Continue = func(time.Duration) bool { return true }
	}
	if n.StatLines <= 0 {
		n.StatLines = defaultStatLines
	}
	if n.MaxFlushFailures <= 0 {
		n.MaxFlushFailures = defaultMaxFlushFailures
	}
	if n.Clock == nil {
		n.Clock = realClock{}
	}
	return n
}

// Result summarizes a finished run.
type Result struct {
	Buckets int
	Samples int
	Skipped int
	Elapsed time.Duration
}

// Collector is the driving loop around one accumulator: it draws samples,
// ingests them into the current bucket, and at every bucket boundary
// advances, flushes and optionally prints the recent window.
type Collector struct {
	source motion.SampleSource
	sink   storage.RecordSink
	acc    *bucket.Accumulator
	opts   Options
}

// New wires a collector. The accumulator is owned by the caller so it can be
// read concurrently (dashboard, final stats) while Run is active.
func New(source motion.SampleSource, sink storage.RecordSink, acc *bucket.Accumulator, opts Options) (*Collector, error) {
	if source == nil {
		return nil, errors.New("collector: sample source must not be nil")
	}
	if sink == nil {
		return nil, errors.New("collector: sink must not be nil")
	}
	if acc == nil {
		return nil, errors.New("collector: accumulator must not be nil")
	}
	if opts.Interval < time.Second {
		return nil, fmt.Errorf("collector: interval must be at least 1s, got %s", opts.Interval)
	}
	return &Collector{
		source: source,
		sink:   sink,
		acc:    acc,
		opts:   opts.normalized(),
	}, nil
}

// sampleResult is one read handed from the reader goroutine to the loop.
type sampleResult struct {
	sample motion.Sample
	err    error
}

// Run collects until Continue returns false, the context is cancelled, the
// device fails, or too many flushes fail in a row. After cancellation no
// further ingest, advance or flush happens; the partial bucket stays in
// memory for the caller's final stats.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	clock := c.opts.Clock
	start := clock.Now()
	var res Result

	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	samples := make(chan sampleResult)
	go c.read(readCtx, samples)

	slog.Info("[Collector] Starting collection",
		"interval", c.opts.Interval,
		"stat_lines", c.opts.StatLines,
		"verbose", c.opts.Verbose != nil,
	)

	flushFailures := 0
	for c.opts.Continue(clock.Now().Sub(start)) {
		deadline := clock.After(c.opts.Interval)

	bucketLoop:
		for {
			select {
			case <-ctx.Done():
				res.Elapsed = clock.Now().Sub(start)
				slog.Info("[Collector] Stopping (context cancelled)", "buckets", res.Buckets, "samples", res.Samples)
				return res, ctx.Err()

			case <-deadline:
				break bucketLoop

			case r := <-samples:
				if r.err != nil {
					if errors.Is(r.err, motion.ErrMalformedPacket) {
						res.Skipped++
						slog.Warn("[Collector] Skipping malformed packet", "error", r.err, "skipped", res.Skipped)
						continue
					}
					res.Elapsed = clock.Now().Sub(start)
					return res, fmt.Errorf("read sample: %w", r.err)
				}
				if _, err := c.acc.Ingest(r.sample); err != nil {
					res.Elapsed = clock.Now().Sub(start)
					return res, fmt.Errorf("ingest: %w", err)
				}
				res.Samples++
			}
		}

		key := bucket.KeyFor(clock.Now().Sub(start))
		if err := c.acc.Advance(key); err != nil {
			res.Elapsed = clock.Now().Sub(start)
			return res, fmt.Errorf("advance: %w", err)
		}
		res.Buckets++

		if err := c.acc.Flush(ctx, c.sink); err != nil {
			flushFailures++
			slog.Error("[Collector] Flush failed",
				"error", err,
				"bucket_key", key,
				"consecutive_failures", flushFailures,
			)
			if flushFailures >= c.opts.MaxFlushFailures || ctx.Err() != nil {
				res.Elapsed = clock.Now().Sub(start)
				return res, fmt.Errorf("flush: %w", err)
			}
		} else {
			flushFailures = 0
		}

		c.printWindow()
	}

	res.Elapsed = clock.Now().Sub(start)
	slog.Info("[Collector] Collection finished",
		"buckets", res.Buckets,
		"samples", res.Samples,
		"skipped", res.Skipped,
		"grand_total", c.acc.GrandTotal(),
	)
	return res, nil
}

// read pumps samples from the source until an unrecoverable error or
// cancellation. Malformed packets are forwarded and reading continues.
func (c *Collector) read(ctx context.Context, out chan<- sampleResult) {
	for {
		s, err := c.source.NextSample(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- sampleResult{sample: s, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, motion.ErrMalformedPacket) {
			return
		}
	}
}

func (c *Collector) printWindow() {
	if c.opts.Verbose == nil {
		return
	}
	out, err := c.acc.RenderStats(c.opts.StatLines, false)
	if errors.Is(err, bucket.ErrEmptyWindow) {
		slog.Debug("[Collector] No buckets to display yet")
		return
	}
	if err != nil {
		slog.Warn("[Collector] Rendering stats failed", "error", err)
		return
	}
	fmt.Fprintln(c.opts.Verbose, out)
}
