package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	fieldsKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithFields attaches fields that every FromCtx logger for ctx will carry.
// Fields accumulate across calls.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(fieldsKey).([]zap.Field)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey, merged)
}

// FromCtx returns the global logger enriched with the request id and any
// fields stored by WithFields.
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if fields, ok := ctx.Value(fieldsKey).([]zap.Field); ok {
		l = l.With(fields...)
	}
	return l
}
