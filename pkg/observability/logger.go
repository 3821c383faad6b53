package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrVersion = "version"
	attrEnv     = "env"
	attrMode    = "mode"

	// spanEventLevel is the lowest level mirrored onto the active span as an event.
	spanEventLevel = slog.LevelWarn
)

// TracingHandler is an [slog.Handler] that stamps every record with the
// active trace and span IDs and with service metadata. Records at warn level
// and above are also added to the active span as events, so a trace shows
// the problems its batch logged.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner. The service, version, env and mode
// attributes are bound before any group so they stay at the top level.
func NewTracingHandler(inner slog.Handler, cfg Config) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, cfg.ServiceName),
		slog.String(attrMode, string(cfg.Mode)),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, slog.String(attrVersion, cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, slog.String(attrEnv, cfg.Environment))
	}

	return &TracingHandler{inner: inner.WithAttrs(attrs)}
}

// NewLogger builds the text or JSON logger described by cfg.
func NewLogger(cfg Config) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg))
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds trace context attributes from the span context, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	span := trace.SpanFromContext(ctx)

	sc := span.SpanContext()
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if record.Level >= spanEventLevel && span.IsRecording() {
		span.AddEvent(record.Message, trace.WithAttributes(
			attribute.String("log.severity", record.Level.String()),
		))
	}

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new TracingHandler with additional attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: th.inner.WithAttrs(attrs)}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}
