package relay

import (
	"context"
	"encoding/json"
)

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateIdle      StreamState = iota // Before the first frame is decoded.
	StreamStateStreaming                    // Mid-stream, receiving events.
	StreamStateCompleted                    // Terminal: producer signalled success.
	StreamStateFailed                       // Terminal: transport, decode, protocol or remote failure.
	StreamStateCancelled                    // Terminal: caller cancelled or closed the stream.
	StreamStateRefused                      // Terminal: producer refused the request.
)

// String returns the lower-case state name.
func (s StreamState) String() string {
	switch s {
	case StreamStateIdle:
		return "idle"
	case StreamStateStreaming:
		return "streaming"
	case StreamStateCompleted:
		return "completed"
	case StreamStateFailed:
		return "failed"
	case StreamStateCancelled:
		return "cancelled"
	case StreamStateRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is absorbing.
func (s StreamState) Terminal() bool {
	return s >= StreamStateCompleted
}

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed at construction and through Close.
//
// Next returns events in arrival order. After the terminal event has been
// returned, Next returns io.EOF for StreamStateCompleted and
// StreamStateRefused, and the recorded *Error for StreamStateFailed and
// StreamStateCancelled.
//
// Result returns the aggregate. Behavior by stream state:
//   - StreamStateIdle: zero-value result, ErrStreamNotReady.
//   - StreamStateStreaming: snapshot of completed values so far, nil error.
//   - StreamStateCompleted: complete result, nil error.
//   - StreamStateFailed, StreamStateCancelled: completed values plus
//     best-effort Partial buffers, Status flags the outcome, nil error.
//   - StreamStateRefused: refusal reason, no tool calls, nil error.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Result() (Result, error)
	Close() error
}

// ChunkSource yields raw byte chunks from a transport. Chunk boundaries are
// arbitrary. Next returns io.EOF when the underlying stream closes and must
// return ctx.Err() promptly when ctx is done.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Classifier turns one frame into zero or one event.
// It returns ErrEndOfStream for the sentinel frame, an error wrapping
// ErrUnrecognizedEvent for unknown event names (recoverable), and an error
// wrapping ErrMalformedPayload for payloads that do not parse (fatal).
// A nil event with a nil error means the frame is known but carries no
// semantic content.
type Classifier interface {
	Classify(f Frame) (Event, error)
}

// Validator checks completed structured payloads against registered
// schemas. Implementations must be safe for concurrent use.
// Validate returns an error wrapping ErrSchemaNotFound when nothing is
// registered under name. Schema violations are reported in the result,
// not as errors.
type Validator interface {
	Validate(name string, data json.RawMessage) (ValidationResult, error)
}
