package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OperationLogger logs the phases of one operation against a connection,
// carrying the trace and span ids of the active span.
type OperationLogger struct {
	logger    *zap.Logger
	operation string
	startTime time.Time
}

// StartOperation returns a logger for operation scoped to the connection
// name and adapter, correlated with the span in ctx.
func StartOperation(ctx context.Context, base *zap.Logger, operation, connection, adapter string) *OperationLogger {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("connection", connection),
	)
	if adapter != "" {
		fields = append(fields, zap.String("adapter", adapter))
	}
	fields = append(fields, TraceFields(ctx)...)

	return &OperationLogger{
		logger:    base.With(fields...),
		operation: operation,
		startTime: time.Now(),
	}
}

// TraceFields returns trace_id and span_id fields for the span in ctx, or
// nothing when ctx carries no valid span.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// LogStart logs the start of an operation
func (ol *OperationLogger) LogStart(msg string, fields ...zap.Field) {
	allFields := append(fields, zap.String("phase", "start"))
	ol.logger.Debug(msg, allFields...)
}

// LogComplete logs the completion of an operation
func (ol *OperationLogger) LogComplete(msg string, fields ...zap.Field) {
	allFields := append(fields,
		zap.String("phase", "complete"),
		zap.Duration("total_duration", time.Since(ol.startTime)),
	)
	ol.logger.Info(msg, allFields...)
}

// LogError logs an operation error
func (ol *OperationLogger) LogError(msg string, err error, fields ...zap.Field) {
	allFields := append(fields,
		zap.String("phase", "error"),
		zap.Duration("duration_before_error", time.Since(ol.startTime)),
		zap.Error(err),
	)
	ol.logger.Error(msg, allFields...)
}
