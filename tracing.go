package respcache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer gives the otel/trace dependency (imported but unused by the
// teacher package) an actual home: a span around every cache round-trip
// (GET/SET/UNLINK/FLUSHALL), tagged with the operation and, where
// relevant, the key count (§2 "Data flows").
var tracer = otel.Tracer("github.com/stumble/respcache")

// startCacheSpan opens a span for a single cache-internal round-trip.
// Callers end it when the corresponding reply (or failure) is delivered.
func startCacheSpan(ctx context.Context, op CacheOp, keyCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "respcache."+op.String(),
		trace.WithAttributes(
			attribute.String("respcache.op", op.String()),
			attribute.Int("respcache.key_count", keyCount),
		),
	)
}
