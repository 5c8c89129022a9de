package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "yaksok"

// StartRoundSpan starts a span for one round transition.
func StartRoundSpan(ctx context.Context, contractID string, round int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "negotiation.round",
		trace.WithAttributes(
			attribute.String("contract.id", contractID),
			attribute.Int("negotiation.round", round),
		),
	)
}

// StartRevisionSpan starts a span for one clause revision call.
func StartRevisionSpan(ctx context.Context, contractID string, round, order int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "negotiation.revision",
		trace.WithAttributes(
			attribute.String("contract.id", contractID),
			attribute.Int("negotiation.round", round),
			attribute.Int("clause.order", order),
		),
	)
}
