package telemetry

import (
	"overlaysearch/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// IdAttributes renders a ring ID as decimal, hex, and binary span attributes
// under the given prefix, so traces can be filtered by any of the three.
func IdAttributes(prefix string, id domain.ID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".dec", id.ToBigInt().String()),
		attribute.String(prefix+".hex", id.ToHexString(true)),
		attribute.String(prefix+".bin", id.ToBinaryString(true)),
	}
}
