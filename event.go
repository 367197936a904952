package relay

import "encoding/json"

// Event is a sealed interface representing a classified streaming event.
// Events are purely semantic. Transport, decode and protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations, so every
// new wire event type needs a new variant here and a decision in every
// consumer's type switch.
type Event interface {
	event()
}

// EventStreamStarted signals that the producer accepted the request.
type EventStreamStarted struct {
	ResponseID string
}

func (EventStreamStarted) event() {}

// EventOutputTextStarted opens the text buffer for one content part of an
// output item. Producers may skip it; the first delta opens the buffer as
// well.
type EventOutputTextStarted struct {
	ItemIndex    int
	ContentIndex int
}

func (EventOutputTextStarted) event() {}

// EventOutputTextDelta represents a text fragment for one content part.
// Sequence is the producer's sequence number; zero means absent.
type EventOutputTextDelta struct {
	ItemIndex    int
	ContentIndex int
	Delta        string
	Sequence     int64
}

func (EventOutputTextDelta) event() {}

// EventOutputTextCompleted signals that a content part's text is final.
type EventOutputTextCompleted struct {
	ItemIndex    int
	ContentIndex int
	Text         string
}

func (EventOutputTextCompleted) event() {}

// EventFunctionCallStarted signals the start of a function call.
type EventFunctionCallStarted struct {
	CallID string
	Name   string
}

func (EventFunctionCallStarted) event() {}

// EventFunctionCallArgumentsDelta represents an argument fragment for a
// function call. Sequence is the producer's sequence number; zero means absent.
type EventFunctionCallArgumentsDelta struct {
	CallID   string
	Delta    string
	Sequence int64
}

func (EventFunctionCallArgumentsDelta) event() {}

// EventFunctionCallCompleted signals that a function call's arguments are
// final. Name is filled from the matching started event when the wire
// payload omits it.
type EventFunctionCallCompleted struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

func (EventFunctionCallCompleted) event() {}

// EventRefusalDelta represents a fragment of a refusal message.
type EventRefusalDelta struct {
	ItemIndex int
	Delta     string
}

func (EventRefusalDelta) event() {}

// EventResponseCompleted is the successful terminal event.
type EventResponseCompleted struct {
	ResponseID string
	Usage      Usage
}

func (EventResponseCompleted) event() {}

// EventResponseFailed is the terminal event for a producer-reported failure.
type EventResponseFailed struct {
	Code   string
	Reason string
}

func (EventResponseFailed) event() {}

// EventRefused is the terminal event for a safety refusal.
type EventRefused struct {
	Reason string
}

func (EventRefused) event() {}

// IsTerminal reports whether e ends the stream.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case EventResponseCompleted, EventResponseFailed, EventRefused:
		return true
	default:
		return false
	}
}

// Interface compliance checks.
var (
	_ Event = EventStreamStarted{}
	_ Event = EventOutputTextStarted{}
	_ Event = EventOutputTextDelta{}
	_ Event = EventOutputTextCompleted{}
	_ Event = EventFunctionCallStarted{}
	_ Event = EventFunctionCallArgumentsDelta{}
	_ Event = EventFunctionCallCompleted{}
	_ Event = EventRefusalDelta{}
	_ Event = EventResponseCompleted{}
	_ Event = EventResponseFailed{}
	_ Event = EventRefused{}
)
