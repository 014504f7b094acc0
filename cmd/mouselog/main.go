package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xyproto/mouselog/internal/collector"
	"github.com/xyproto/mouselog/internal/core/bucket"
	corecfg "github.com/xyproto/mouselog/internal/core/config"
	"github.com/xyproto/mouselog/internal/core/motion"
	"github.com/xyproto/mouselog/internal/core/storage"
	"github.com/xyproto/mouselog/internal/core/storage/csvlog"
	"github.com/xyproto/mouselog/internal/core/storage/postgres"
	"github.com/xyproto/mouselog/internal/migrations"
	"github.com/xyproto/mouselog/internal/projection"
	"github.com/xyproto/mouselog/internal/server"
	"github.com/xyproto/mouselog/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	outputPath := flag.String("o", "", "CSV output path (overrides output.path)")
	interval := flag.String("interval", "", "Bucket interval, e.g. 1s or 1m (overrides collector.bucket_interval)")
	verbose := flag.Bool("verbose", false, "Print the recent buckets after every interval")
	flag.Parse()

	// 0. Bootstrap logger; replaced once the configured level is known.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// 1. Load Configuration; flags win over file and env
	cfg, err := corecfg.Load(*configPath, flagOverrides(flag.CommandLine, *outputPath, *interval, *verbose))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)
	slog.Info("Loaded config", "config", cfg)

	if err := run(cfg); err != nil {
		slog.Error("mouselog stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

// flagOverrides copies the flags that were set on fs into the config.
func flagOverrides(fs *flag.FlagSet, outputPath, interval string, verbose bool) corecfg.Override {
	return func(cfg *corecfg.Config) {
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "o":
				cfg.Output.Path = outputPath
			case "interval":
				cfg.Collector.BucketInterval = interval
			case "verbose":
				cfg.Collector.Verbose = verbose
			}
		})
	}
}

// recordSink is what main needs from either sink implementation.
type recordSink interface {
	storage.RecordSink
	storage.RecordReader
	io.Closer
}

func run(cfg *corecfg.Config) error {
	sessionID := uuid.New()
	startedAt := time.Now().UTC()

	// 2. Open the device
	dev, err := motion.OpenDevice(cfg.Device.Path)
	if err != nil {
		return err
	}
	defer dev.Close()

	// 3. Open the sink
	sink, health, err := openSink(cfg, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("Failed to close sink", "error", err)
		}
	}()

	// 4. Accumulator + driving loop
	acc := bucket.New(bucket.WithTerminalWidth(cfg.Collector.TerminalWidth))

	opts := collector.Options{
		Interval:  cfg.Collector.Interval(),
		StatLines: cfg.Collector.StatLines,
	}
	if limit := cfg.Collector.RunFor(); limit > 0 {
		opts.Continue = func(elapsed time.Duration) bool { return elapsed < limit }
	}
	if cfg.Collector.Verbose {
		opts.Verbose = os.Stdout
	}
	coll, err := collector.New(motion.NewDeviceSource(dev), sink, acc, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → cancels the collector and the dashboard.
	interrupted := make(chan struct{})
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("Signal received, shutting down...")
			close(interrupted)
			cancel()
		case <-ctx.Done():
		}
	}()

	// 5. Run the collector and, if enabled, the dashboard
	var (
		result     collector.Result
		collectErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		result, collectErr = coll.Run(gctx)
		if errors.Is(collectErr, context.Canceled) {
			return nil
		}
		return collectErr
	})
	if cfg.Server.Enabled {
		srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), cfg.Server.Mode, acc, health, cfg.Collector.StatLines).
			WithHistory(projection.NewHistory(sink))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	} else {
		slog.Info("Dashboard disabled by config")
	}
	runErr := g.Wait()

	// 6. Final summary
	if summary, err := acc.RenderStats(0, true); err == nil {
		fmt.Println(summary)
	} else if !errors.Is(err, bucket.ErrEmptyWindow) {
		slog.Warn("Failed to render final stats", "error", err)
	}

	if cfg.Session.ManifestPath != "" {
		m := session.Manifest{
			SessionID:      sessionID,
			Device:         cfg.Device.Path,
			Sink:           cfg.Output.Sink,
			BucketInterval: cfg.Collector.BucketInterval,
			StartedAt:      startedAt,
			EndedAt:        time.Now().UTC(),
			Buckets:        result.Buckets,
			Samples:        result.Samples,
			Skipped:        result.Skipped,
			GrandTotal:     acc.GrandTotal(),
			StopReason:     stopReason(interrupted, collectErr),
		}
		if cfg.Output.Sink == corecfg.SinkCSV {
			m.Output = cfg.Output.Path
		}
		if err := session.Write(cfg.Session.ManifestPath, m); err != nil {
			slog.Error("Failed to write session manifest", "error", err)
		} else {
			slog.Info("Session manifest written", "path", cfg.Session.ManifestPath)
		}
	}

	return runErr
}

func openSink(cfg *corecfg.Config, sessionID uuid.UUID) (recordSink, server.HealthChecker, error) {
	switch cfg.Output.Sink {
	case corecfg.SinkPostgres:
		db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Apply(db, cfg.Database.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, err
		}
		sink, err := postgres.NewRecordSink(context.Background(), db, sessionID)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return sink, db, nil
	default:
		sink, err := csvlog.Open(cfg.Output.Path)
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	}
}

func stopReason(interrupted <-chan struct{}, err error) string {
	select {
	case <-interrupted:
		return "interrupted"
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return "error"
	}
	return "completed"
}
