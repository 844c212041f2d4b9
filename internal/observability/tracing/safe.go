package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/warebill/internal/apperror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"share_token":   {},
	"authorization": {},
	"http.url":      {},
}

// SafeAttributes drops keys that may carry credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if _, blocked := blockedAttributeKeys[a.Key]; blocked {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SafeError reduces err to its stable code so spans never record causes with row data.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(string(apperror.CodeOf(err)))
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
