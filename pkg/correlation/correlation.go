package correlation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header is the HTTP header carrying the correlation id across service boundaries.
const Header = "X-Correlation-ID"

type contextKey struct{}

// WithID returns a context carrying the given correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id stored in the context, or an empty
// string if none is set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// EnsureID returns the context's correlation id, generating and attaching a
// new one when the context carries none. Used at every ingress point.
func EnsureID(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithID(ctx, id), id
}

// Field returns a zap field for the context's correlation id so every log
// line within one business transaction can be grouped.
func Field(ctx context.Context) zap.Field {
	return zap.String("correlation_id", FromContext(ctx))
}
