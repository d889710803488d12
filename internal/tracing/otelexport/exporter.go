// Package otelexport mirrors tool-call spans to an OTLP backend.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcbridge/mcbridge/internal/tracing"
)

// Config configures the OTLP/HTTP exporter.
type Config struct {
	Endpoint    string            // e.g. "localhost:4318"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // defaults to "mcbridge"
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts tool-call spans to OTel spans and exports them over
// OTLP. It implements tracing.SpanExporter.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mcbridge"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	return &Exporter{provider: tp, tracer: tp.Tracer("mcbridge")}, nil
}

// ExportSpans converts and exports a flushed span batch. Errors are logged
// by the SDK's batcher, never propagated to the flush path.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.Span) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("mcbridge.tool.name", s.ToolName),
		attribute.String("mcbridge.span_id", s.ID),
	}
	if s.SessionID != "" {
		attrs = append(attrs, attribute.String("mcbridge.session_id", s.SessionID))
	}
	if s.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("mcbridge.duration_ms", s.DurationMs))
	}
	if s.ParamsSummary != "" {
		attrs = append(attrs, attribute.String("mcbridge.params", s.ParamsSummary))
	}

	_, span := e.tracer.Start(ctx, s.ToolName,
		trace.WithTimestamp(s.StartedAt),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if s.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, s.ErrorMessage)
		if s.ErrorMessage != "" {
			span.RecordError(fmt.Errorf("%s", s.ErrorMessage))
		}
	}
	span.End(trace.WithTimestamp(s.StartedAt.Add(time.Duration(s.DurationMs) * time.Millisecond)))
}

// Shutdown flushes remaining spans and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
