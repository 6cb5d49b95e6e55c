// Package lookuptrace creates spans around the processing of a single hop of
// a Chord lookup chain. There is no grpc layer to carry an interceptor, so
// tracing is per-process only: each node that initiates a lookup or handles
// a LookupPublish frame opens its own span for the duration of handling it,
// tagged with the shared transaction sequence number so the
// hops can be correlated after the fact in the trace backend.
package lookuptrace

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "overlaysearch/lookuptrace"

var tracer = otel.Tracer(tracerName)

type lookupMarkerKey struct{}

// WithLookup marks ctx as belonging to a Chord lookup chain, so hops
// processed under it get their own span.
func WithLookup(ctx context.Context) context.Context {
	return context.WithValue(ctx, lookupMarkerKey{}, true)
}

// IsLookup reports whether ctx was marked by WithLookup.
func IsLookup(ctx context.Context) bool {
	v, _ := ctx.Value(lookupMarkerKey{}).(bool)
	return v
}

// StartHop opens a span named op for this node's handling of one lookup
// hop, tagged with the shared transaction sequence number. If ctx was not
// marked as a lookup and op does not contain "lookup", it returns ctx
// unchanged and a no-op span; otherwise it marks ctx and opens the span.
func StartHop(ctx context.Context, op string, txnSeq uint32) (context.Context, trace.Span) {
	if !IsLookup(ctx) && !strings.Contains(op, "lookup") {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx = WithLookup(ctx)
	return tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int64("chord.txn_seq", int64(txnSeq))),
	)
}
