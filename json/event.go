// Package json encodes events and results for tooling: JSON lines for
// event logs and a versioned envelope for results.
package json

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/relay"
)

// eventDTO is the JSON representation of an Event with a type discriminator.
type eventDTO struct {
	Type         string          `json:"type"`
	ResponseID   *string         `json:"response_id,omitempty"`
	ItemIndex    *int            `json:"item_index,omitempty"`
	ContentIndex *int            `json:"content_index,omitempty"`
	CallID       *string         `json:"call_id,omitempty"`
	Name         *string         `json:"name,omitempty"`
	Delta        *string         `json:"delta,omitempty"`
	Sequence     *int64          `json:"sequence,omitempty"`
	Text         *string         `json:"text,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Code         *string         `json:"code,omitempty"`
	Reason       *string         `json:"reason,omitempty"`
	Usage        *usageDTO       `json:"usage,omitempty"`
}

// MarshalEvent serializes an Event as a single JSON object.
func MarshalEvent(evt relay.Event) ([]byte, error) {
	dto, err := marshalEvent(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto)
}

// UnmarshalEvent deserializes an Event written by MarshalEvent.
func UnmarshalEvent(data []byte) (relay.Event, error) {
	var dto eventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return unmarshalEvent(dto)
}

// Encoder writes events as JSON lines.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes evt followed by a newline.
func (e *Encoder) Encode(evt relay.Event) error {
	dto, err := marshalEvent(evt)
	if err != nil {
		return err
	}
	return e.enc.Encode(dto)
}

func marshalEvent(evt relay.Event) (eventDTO, error) {
	switch e := evt.(type) {
	case relay.EventStreamStarted:
		return eventDTO{Type: "stream_started", ResponseID: &e.ResponseID}, nil
	case relay.EventOutputTextStarted:
		return eventDTO{Type: "output_text_started", ItemIndex: &e.ItemIndex, ContentIndex: &e.ContentIndex}, nil
	case relay.EventOutputTextDelta:
		return eventDTO{
			Type:         "output_text_delta",
			ItemIndex:    &e.ItemIndex,
			ContentIndex: &e.ContentIndex,
			Delta:        &e.Delta,
			Sequence:     &e.Sequence,
		}, nil
	case relay.EventOutputTextCompleted:
		return eventDTO{Type: "output_text_completed", ItemIndex: &e.ItemIndex, ContentIndex: &e.ContentIndex, Text: &e.Text}, nil
	case relay.EventFunctionCallStarted:
		return eventDTO{Type: "function_call_started", CallID: &e.CallID, Name: &e.Name}, nil
	case relay.EventFunctionCallArgumentsDelta:
		return eventDTO{Type: "function_call_arguments_delta", CallID: &e.CallID, Delta: &e.Delta, Sequence: &e.Sequence}, nil
	case relay.EventFunctionCallCompleted:
		return eventDTO{Type: "function_call_completed", CallID: &e.CallID, Name: &e.Name, Arguments: e.Arguments}, nil
	case relay.EventRefusalDelta:
		return eventDTO{Type: "refusal_delta", ItemIndex: &e.ItemIndex, Delta: &e.Delta}, nil
	case relay.EventResponseCompleted:
		return eventDTO{Type: "response_completed", ResponseID: &e.ResponseID, Usage: marshalUsage(e.Usage)}, nil
	case relay.EventResponseFailed:
		return eventDTO{Type: "response_failed", Code: &e.Code, Reason: &e.Reason}, nil
	case relay.EventRefused:
		return eventDTO{Type: "refused", Reason: &e.Reason}, nil
	default:
		return eventDTO{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func unmarshalEvent(dto eventDTO) (relay.Event, error) {
	switch dto.Type {
	case "stream_started":
		return relay.EventStreamStarted{ResponseID: deref(dto.ResponseID)}, nil
	case "output_text_started":
		return relay.EventOutputTextStarted{ItemIndex: deref(dto.ItemIndex), ContentIndex: deref(dto.ContentIndex)}, nil
	case "output_text_delta":
		return relay.EventOutputTextDelta{
			ItemIndex:    deref(dto.ItemIndex),
			ContentIndex: deref(dto.ContentIndex),
			Delta:        deref(dto.Delta),
			Sequence:     deref(dto.Sequence),
		}, nil
	case "output_text_completed":
		return relay.EventOutputTextCompleted{
			ItemIndex:    deref(dto.ItemIndex),
			ContentIndex: deref(dto.ContentIndex),
			Text:         deref(dto.Text),
		}, nil
	case "function_call_started":
		return relay.EventFunctionCallStarted{CallID: deref(dto.CallID), Name: deref(dto.Name)}, nil
	case "function_call_arguments_delta":
		return relay.EventFunctionCallArgumentsDelta{
			CallID:   deref(dto.CallID),
			Delta:    deref(dto.Delta),
			Sequence: deref(dto.Sequence),
		}, nil
	case "function_call_completed":
		return relay.EventFunctionCallCompleted{CallID: deref(dto.CallID), Name: deref(dto.Name), Arguments: dto.Arguments}, nil
	case "refusal_delta":
		return relay.EventRefusalDelta{ItemIndex: deref(dto.ItemIndex), Delta: deref(dto.Delta)}, nil
	case "response_completed":
		return relay.EventResponseCompleted{ResponseID: deref(dto.ResponseID), Usage: unmarshalUsage(dto.Usage)}, nil
	case "response_failed":
		return relay.EventResponseFailed{Code: deref(dto.Code), Reason: deref(dto.Reason)}, nil
	case "refused":
		return relay.EventRefused{Reason: deref(dto.Reason)}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", dto.Type)
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
