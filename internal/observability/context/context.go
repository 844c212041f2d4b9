// Package context carries request-scoped identifiers used by logs, traces and audit rows.
package context

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
	parentAccountKey
	subjectKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// EnsureCorrelationID keeps an inbound correlation id or mints a ULID.
func EnsureCorrelationID(ctx context.Context, inbound string) (context.Context, string) {
	id := inbound
	if id == "" {
		id = CorrelationIDFromContext(ctx)
	}
	if id == "" {
		id = ulid.Make().String()
	}
	return context.WithValue(ctx, correlationIDKey, id), id
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithPrincipal is set by the auth middleware so logs show who acted.
func WithPrincipal(ctx context.Context, parentAccountID, subject string) context.Context {
	ctx = context.WithValue(ctx, parentAccountKey, parentAccountID)
	return context.WithValue(ctx, subjectKey, subject)
}

func PrincipalFromContext(ctx context.Context) (parentAccountID, subject string) {
	return stringValue(ctx, parentAccountKey), stringValue(ctx, subjectKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
