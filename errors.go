package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a configuration value failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Result() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrFrameTooLarge indicates a field line exceeded the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMissingData indicates a frame had fields but no data line.
	// Decoders report it as a warning and drop the frame.
	ErrMissingData = errors.New("frame has no data field")

	// ErrUnrecognizedEvent indicates a frame's event name matched no known
	// variant. It is recoverable: the frame is skipped.
	ErrUnrecognizedEvent = errors.New("unrecognized event")

	// ErrMalformedPayload indicates a payload did not parse into the
	// structure its event name declares.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrEndOfStream is returned by classifiers for the sentinel frame.
	ErrEndOfStream = errors.New("end of stream")

	// ErrUnexpectedStreamEnd indicates the stream ended before a terminal event.
	ErrUnexpectedStreamEnd = errors.New("unexpected end of stream")

	// ErrOutOfOrderDelta indicates a delta whose sequence number does not
	// exceed the buffer's counter.
	ErrOutOfOrderDelta = errors.New("out-of-order delta")

	// ErrDuplicateCompletion indicates a second completion for one key.
	ErrDuplicateCompletion = errors.New("duplicate completion")

	// ErrDuplicateStart indicates a second started event for one key.
	ErrDuplicateStart = errors.New("duplicate start")

	// ErrUnknownKey indicates a completion for a key that was never opened.
	ErrUnknownKey = errors.New("completion for unknown key")

	// ErrDeltaAfterCompletion indicates a delta for an already completed key.
	ErrDeltaAfterCompletion = errors.New("delta after completion")

	// ErrUnfinishedToolCall indicates a function call buffer was still open
	// when the stream ended.
	ErrUnfinishedToolCall = errors.New("unfinished tool call")

	// ErrInactivityTimeout indicates no chunk arrived within the configured
	// inactivity timeout.
	ErrInactivityTimeout = errors.New("inactivity timeout")

	// ErrResponseFailed indicates the producer signalled a failed response.
	ErrResponseFailed = errors.New("response failed")

	// ErrCyclicSchema indicates a chain of schema references that never
	// descends into the value.
	ErrCyclicSchema = errors.New("cyclic schema")

	// ErrUnknownReference indicates a $ref that does not resolve.
	ErrUnknownReference = errors.New("unknown schema reference")

	// ErrSchemaNotFound indicates no schema is registered under a name.
	ErrSchemaNotFound = errors.New("schema not found")
)

// ErrorKind is the taxonomy category of a fatal stream error.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
	KindProtocol  ErrorKind = "protocol"
	KindRemote    ErrorKind = "remote"
	KindCancelled ErrorKind = "cancelled"
)

// Error tags a fatal stream error with its category.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Errorf returns an *Error of the given kind with a formatted message.
// The format may use %w.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
