package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if ownerID := OwnerIDFromContext(ctx); ownerID != "" {
		fields = append(fields, zap.String("owner.id", ownerID))
	}
	return fields
}

type requestCtxKey struct{}
type ownerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ValidateID checks a correlation identifier before it is attached to context.
func ValidateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// WithRequestID adds a request ID to context. Invalid IDs are dropped.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ValidateID(requestID, "requestID") != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithOwnerID adds the authenticated owner to context. Invalid IDs are dropped.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	if ValidateID(ownerID, "ownerID") != nil {
		return ctx
	}
	return context.WithValue(ctx, ownerCtxKey{}, ownerID)
}

// OwnerIDFromContext extracts the owner ID from context.
func OwnerIDFromContext(ctx context.Context) string {
	if o, ok := ctx.Value(ownerCtxKey{}).(string); ok {
		return o
	}
	return ""
}
