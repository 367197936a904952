package stream

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/fwojciec/relay/stream"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	unrecognizedEvents = mustCounter("relay.stream.unrecognized_events",
		"Frames skipped because their event name matched no known event.")
	droppedFrames = mustCounter("relay.stream.dropped_frames",
		"Frames dropped by the decoder or discarded after a terminal event.")
	schemaViolations = mustCounter("relay.stream.schema_violations",
		"Schema violations found in completed structured outputs.")
	outcomes = mustCounter("relay.stream.outcomes",
		"Streams that reached a terminal state, by status.")
)

func mustCounter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		panic(err)
	}
	return c
}
