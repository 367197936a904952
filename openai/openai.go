// Package openai implements [relay.Classifier] for the Responses API
// streaming wire format.
//
// Each frame's event name selects a payload type; the payload is decoded
// and mapped to one semantic [relay.Event]. When a frame carries no event
// name, the payload's "type" field names the event. Function-call argument
// events reference the output item id rather than the call id, so the
// classifier keeps an item-id to call-id alias table filled from
// "response.output_item.added". That table is its only state.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Classifier = (*Classifier)(nil)

// Classifier maps Responses API frames to [relay.Event] values.
// It is not safe for concurrent use; use one per stream.
type Classifier struct {
	aliases map[string]string // output item id -> call id
}

// NewClassifier creates a [Classifier].
func NewClassifier() *Classifier {
	return &Classifier{aliases: make(map[string]string)}
}

// Classify maps one frame to zero or one event.
func (c *Classifier) Classify(f relay.Frame) (relay.Event, error) {
	if f.IsTerminator() {
		return nil, relay.ErrEndOfStream
	}

	name := f.Event
	data := []byte(f.Data)
	if name == "" {
		t, err := jsonparser.GetString(data, "type")
		if err != nil {
			return nil, fmt.Errorf("openai: frame without event name or type: %w: %v", relay.ErrMalformedPayload, err)
		}
		name = t
	}

	switch name {
	case eventResponseCreated:
		return c.handleCreated(name, data)
	case eventResponseQueued, eventResponseInProgress,
		eventOutputItemDone, eventContentPartDone, eventOutputTextAnnotation:
		return nil, nil
	case eventOutputItemAdded:
		return c.handleOutputItemAdded(name, data)
	case eventContentPartAdded:
		return c.handleContentPartAdded(name, data)
	case eventOutputTextDelta:
		return c.handleTextDelta(name, data)
	case eventOutputTextDone:
		return c.handleTextDone(name, data)
	case eventFunctionArgsDelta:
		return c.handleArgumentsDelta(name, data)
	case eventFunctionArgsDone:
		return c.handleArgumentsDone(name, data)
	case eventRefusalDelta:
		return c.handleRefusalDelta(name, data)
	case eventRefusalDone:
		return c.handleRefusalDone(name, data)
	case eventResponseCompleted:
		return c.handleCompleted(name, data)
	case eventResponseFailed, eventResponseIncomplete:
		return c.handleFailed(name, data)
	case eventError:
		return c.handleError(name, data)
	default:
		return nil, fmt.Errorf("openai: %w: %q", relay.ErrUnrecognizedEvent, name)
	}
}

func decode(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return malformed(name, err)
	}
	return nil
}

func malformed(name string, err error) error {
	return fmt.Errorf("openai: %s: %w: %v", name, relay.ErrMalformedPayload, err)
}

func (c *Classifier) handleCreated(name string, data []byte) (relay.Event, error) {
	var evt sseResponseEnvelope
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	if evt.Response.ID == "" {
		return nil, malformed(name, errors.New("missing response.id"))
	}
	return relay.EventStreamStarted{ResponseID: evt.Response.ID}, nil
}

func (c *Classifier) handleOutputItemAdded(name string, data []byte) (relay.Event, error) {
	var evt sseOutputItemAdded
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	if evt.Item.Type != "function_call" {
		// Messages open their text buffers through content parts.
		return nil, nil
	}
	if evt.Item.CallID == "" {
		return nil, malformed(name, errors.New("missing item.call_id"))
	}
	if evt.Item.ID != "" {
		c.aliases[evt.Item.ID] = evt.Item.CallID
	}
	return relay.EventFunctionCallStarted{CallID: evt.Item.CallID, Name: evt.Item.Name}, nil
}

func (c *Classifier) handleContentPartAdded(name string, data []byte) (relay.Event, error) {
	var evt sseContentPartAdded
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	if evt.Part.Type != "output_text" {
		return nil, nil
	}
	return relay.EventOutputTextStarted{ItemIndex: evt.OutputIndex, ContentIndex: evt.ContentIndex}, nil
}

func (c *Classifier) handleTextDelta(name string, data []byte) (relay.Event, error) {
	var evt sseTextDelta
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	if evt.OutputIndex == nil {
		return nil, malformed(name, errors.New("missing output_index"))
	}
	return relay.EventOutputTextDelta{
		ItemIndex:    *evt.OutputIndex,
		ContentIndex: evt.ContentIndex,
		Delta:        evt.Delta,
		Sequence:     evt.SequenceNumber,
	}, nil
}

func (c *Classifier) handleTextDone(name string, data []byte) (relay.Event, error) {
	var evt sseTextDone
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	if evt.OutputIndex == nil {
		return nil, malformed(name, errors.New("missing output_index"))
	}
	return relay.EventOutputTextCompleted{
		ItemIndex:    *evt.OutputIndex,
		ContentIndex: evt.ContentIndex,
		Text:         evt.Text,
	}, nil
}

// callID resolves the call id for an arguments event.
func (c *Classifier) callID(callID, itemID string) string {
	if callID != "" {
		return callID
	}
	if id, ok := c.aliases[itemID]; ok {
		return id
	}
	return itemID
}

func (c *Classifier) handleArgumentsDelta(name string, data []byte) (relay.Event, error) {
	var evt sseArgumentsDelta
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	id := c.callID(evt.CallID, evt.ItemID)
	if id == "" {
		return nil, malformed(name, errors.New("missing item_id"))
	}
	return relay.EventFunctionCallArgumentsDelta{
		CallID:   id,
		Delta:    evt.Delta,
		Sequence: evt.SequenceNumber,
	}, nil
}

func (c *Classifier) handleArgumentsDone(name string, data []byte) (relay.Event, error) {
	var evt sseArgumentsDone
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	id := c.callID(evt.CallID, evt.ItemID)
	if id == "" {
		return nil, malformed(name, errors.New("missing item_id"))
	}
	var args json.RawMessage
	if evt.Arguments != "" {
		args = json.RawMessage(evt.Arguments)
	}
	return relay.EventFunctionCallCompleted{CallID: id, Name: evt.Name, Arguments: args}, nil
}

func (c *Classifier) handleRefusalDelta(name string, data []byte) (relay.Event, error) {
	var evt sseRefusalDelta
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	return relay.EventRefusalDelta{ItemIndex: evt.OutputIndex, Delta: evt.Delta}, nil
}

func (c *Classifier) handleRefusalDone(name string, data []byte) (relay.Event, error) {
	var evt sseRefusalDone
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	return relay.EventRefused{Reason: evt.Refusal}, nil
}

func (c *Classifier) handleCompleted(name string, data []byte) (relay.Event, error) {
	var evt sseResponseEnvelope
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	out := relay.EventResponseCompleted{ResponseID: evt.Response.ID}
	if u := evt.Response.Usage; u != nil {
		out.Usage = relay.Usage{
			InputTokens:     max(0, u.InputTokens-u.InputTokensDetails.CachedTokens),
			CacheReadTokens: u.InputTokensDetails.CachedTokens,
			OutputTokens:    u.OutputTokens,
			ReasoningTokens: u.OutputTokensDetails.ReasoningTokens,
		}
	}
	return out, nil
}

func (c *Classifier) handleFailed(name string, data []byte) (relay.Event, error) {
	var evt sseResponseEnvelope
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	r := evt.Response
	switch {
	case r.Error != nil:
		return relay.EventResponseFailed{Code: r.Error.Code, Reason: r.Error.Message}, nil
	case r.IncompleteDetails != nil:
		return relay.EventResponseFailed{Code: "incomplete", Reason: r.IncompleteDetails.Reason}, nil
	case name == eventResponseIncomplete:
		return relay.EventResponseFailed{Code: "incomplete", Reason: "response incomplete"}, nil
	default:
		return relay.EventResponseFailed{Reason: "response failed"}, nil
	}
}

func (c *Classifier) handleError(name string, data []byte) (relay.Event, error) {
	var evt sseErrorEvent
	if err := decode(name, data, &evt); err != nil {
		return nil, err
	}
	out := relay.EventResponseFailed{Reason: evt.Message}
	if evt.Code != nil {
		out.Code = *evt.Code
	}
	return out, nil
}
