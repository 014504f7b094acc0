package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xyproto/mouselog/internal/core/bucket"
	httperr "github.com/xyproto/mouselog/internal/core/errors"
	"github.com/xyproto/mouselog/internal/projection"
)

const shutdownTimeout = 5 * time.Second

// StatsReader is the read-only view of an accumulator the dashboard serves.
// Every method must be safe to call while the collector is ingesting.
type StatsReader interface {
	RenderStats(windowSize int, full bool) (string, error)
	Snapshot(windowSize int, full bool) []bucket.BucketValue
	GrandTotal() float64
	CurrentKey() int64
}

// HistoryReader rolls the durable log up into spans of width seconds.
type HistoryReader interface {
	Spans(ctx context.Context, width int64) ([]projection.SpanTotal, error)
}

// HealthChecker is an interface for components that can report their health status.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	Engine *gin.Engine
	Addr   string

	stats         StatsReader
	health        HealthChecker
	history       HistoryReader
	defaultWindow int
}

// New builds the dashboard. health may be nil when the sink has no remote
// dependency to check.
func New(addr, mode string, stats StatsReader, health HealthChecker, defaultWindow int) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	if defaultWindow <= 0 {
		defaultWindow = 10
	}
	s := &Server{
		Engine:        r,
		Addr:          addr,
		stats:         stats,
		health:        health,
		defaultWindow: defaultWindow,
	}

	r.GET("/health", s.healthHandler)
	r.GET("/v1/stats", s.statsHandler)
	r.GET("/v1/buckets", s.bucketsHandler)
	r.GET("/v1/history", s.historyHandler)

	return s
}

// WithHistory enables /v1/history backed by h.
func (s *Server) WithHistory(h HistoryReader) *Server {
	s.history = h
	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.health != nil {
		if err := s.health.PingContext(ctx); err != nil {
			slog.Error("[Server] Health check failed: sink unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "sink unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"current_key": s.stats.CurrentKey(),
	})
}

type windowQuery struct {
	Window *int `form:"window" binding:"omitempty,min=1"`
	Full   bool `form:"full"`
}

func (s *Server) bindWindow(c *gin.Context) (int, bool, bool) {
	var q windowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return 0, false, false
	}
	window := s.defaultWindow
	if q.Window != nil {
		window = *q.Window
	}
	return window, q.Full, true
}

// statsHandler handles GET /v1/stats?window=N&full=bool and returns the bar chart as text.
func (s *Server) statsHandler(c *gin.Context) {
	window, full, ok := s.bindWindow(c)
	if !ok {
		return
	}

	out, err := s.stats.RenderStats(window, full)
	if err != nil {
		if errors.Is(err, bucket.ErrEmptyWindow) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpEmptyWindowError,
				Message:   "No buckets recorded yet",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to render stats",
			Details:   err.Error(),
		})
		return
	}

	c.String(http.StatusOK, out+"\n")
}

// bucketsHandler handles GET /v1/buckets?window=N&full=bool and returns the raw bucket values.
func (s *Server) bucketsHandler(c *gin.Context) {
	window, full, ok := s.bindWindow(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current_key": s.stats.CurrentKey(),
		"grand_total": s.stats.GrandTotal(),
		"buckets":     s.stats.Snapshot(window, full),
	})
}

type historyQuery struct {
	Span int64 `form:"span" binding:"omitempty,min=1"`
}

// historyHandler handles GET /v1/history?span=N and returns flushed buckets
// grouped into spans of N seconds (default 60).
func (s *Server) historyHandler(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpHistoryUnavailableError,
			Message:   "The configured sink cannot be read back",
		})
		return
	}

	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}
	if q.Span == 0 {
		q.Span = 60
	}

	spans, err := s.history.Spans(c.Request.Context(), q.Span)
	if err != nil {
		slog.Error("[Server] Failed to read history", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read history",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"span":  q.Span,
		"spans": spans,
	})
}

// Run serves the dashboard until ctx is cancelled, then drains open requests
// for up to shutdownTimeout. A failure to bind is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		slog.Info("[Server] Dashboard listening", "address", ln.Addr().String())
		served <- srv.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve dashboard: %w", err)
	case <-ctx.Done():
	}

	slog.Info("[Server] Stopping dashboard")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Server] Dashboard forced to shut down", "error", err)
		return err
	}
	return nil
}
