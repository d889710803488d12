// Package tracing buffers tool-call spans in memory and flushes them to the
// session ledger in batches, optionally mirroring them to an external OTLP
// backend.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	previewMaxLen        = 500
)

// Span is one recorded tool invocation.
type Span struct {
	ID            string
	SessionID     string
	ToolName      string
	ParamsSummary string
	Success       bool
	ErrorMessage  string
	StartedAt     time.Time
	DurationMs    int64
}

// SpanExporter receives span batches alongside the ledger write. Keeping
// this as an interface confines the OTel dependency to a sub-package.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []Span)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans and periodically flushes them to the ledger.
// Emit never blocks; spans are dropped when the buffer is full.
type Collector struct {
	store *db.DB

	spanCh chan Span
	stopCh chan struct{}
	wg     sync.WaitGroup

	exporter SpanExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a collector backed by the session ledger.
func NewCollector(store *db.DB) *Collector {
	return &Collector{
		store:  store,
		spanCh: make(chan Span, defaultBufferSize),
		stopCh: make(chan struct{}),
	}
}

// SetExporter attaches an external span exporter. When set, spans are also
// exported during each flush cycle.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started")
}

// Stop drains the buffer and shuts down the exporter.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}
	slog.Info("tracing collector stopped")
}

// Emit enqueues a span for async batch insertion.
func (c *Collector) Emit(span Span) {
	if span.ID == "" {
		span.ID = ids.NewSessionID().String()
	}
	if span.StartedAt.IsZero() {
		span.StartedAt = time.Now().UTC()
	}
	span.ParamsSummary = truncatePreview(span.ParamsSummary)
	span.ErrorMessage = truncatePreview(span.ErrorMessage)

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span",
			"tool", span.ToolName, "session", span.SessionID)
	}
}

// RecordToolCall adapts a finished tool execution into a span. The tool
// registry calls this after every execution.
func (c *Collector) RecordToolCall(sessionID, toolName, paramsSummary string, success bool, errMsg string, duration time.Duration) {
	c.Emit(Span{
		SessionID:     sessionID,
		ToolName:      toolName,
		ParamsSummary: paramsSummary,
		Success:       success,
		ErrorMessage:  errMsg,
		StartedAt:     time.Now().UTC().Add(-duration),
		DurationMs:    duration.Milliseconds(),
	})
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

// Flush synchronously drains the buffer. The background loop calls it on
// every tick; shutdown paths and tests call it directly.
func (c *Collector) Flush() { c.flush() }

func (c *Collector) flush() {
	var spans []Span
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			goto done
		}
	}
done:

	if len(spans) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	written := 0
	for _, span := range spans {
		tc := &db.ToolCall{
			ID:            span.ID,
			SessionID:     span.SessionID,
			ToolName:      span.ToolName,
			ParamsSummary: span.ParamsSummary,
			Success:       span.Success,
			ErrorMessage:  span.ErrorMessage,
			DurationMs:    span.DurationMs,
			CreatedAt:     span.StartedAt.Unix(),
		}
		if err := c.store.InsertToolCall(ctx, tc); err != nil {
			slog.Warn("tracing: span insert failed", "tool", span.ToolName, "error", err)
			continue
		}
		written++
	}
	slog.Debug("tracing: flushed spans", "count", written)

	if c.exporter != nil {
		c.exporter.ExportSpans(ctx, spans)
	}
}

// truncatePreview sanitizes and truncates a string to previewMaxLen bytes.
func truncatePreview(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= previewMaxLen {
		return s
	}
	maxLen := previewMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
