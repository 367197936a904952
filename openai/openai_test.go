package openai_test

import (
	"encoding/json"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, c *openai.Classifier, event, data string) relay.Event {
	t.Helper()
	evt, err := c.Classify(relay.Frame{Event: event, Data: data})
	require.NoError(t, err)
	return evt
}

func TestClassify_TextResponse(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()

	frames := []relay.Frame{
		{Event: "response.created", Data: `{"type":"response.created","sequence_number":0,"response":{"id":"resp_1","status":"in_progress"}}`},
		{Event: "response.in_progress", Data: `{"type":"response.in_progress","sequence_number":1,"response":{"id":"resp_1","status":"in_progress"}}`},
		{Event: "response.output_item.added", Data: `{"type":"response.output_item.added","sequence_number":2,"output_index":0,"item":{"type":"message","id":"msg_1","role":"assistant","content":[]}}`},
		{Event: "response.content_part.added", Data: `{"type":"response.content_part.added","sequence_number":3,"item_id":"msg_1","output_index":0,"content_index":0,"part":{"type":"output_text","text":""}}`},
		{Event: "response.output_text.delta", Data: `{"type":"response.output_text.delta","sequence_number":4,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hello"}`},
		{Event: "response.output_text.delta", Data: `{"type":"response.output_text.delta","sequence_number":5,"item_id":"msg_1","output_index":0,"content_index":0,"delta":" world"}`},
		{Event: "response.output_text.done", Data: `{"type":"response.output_text.done","sequence_number":6,"item_id":"msg_1","output_index":0,"content_index":0,"text":"Hello world"}`},
		{Event: "response.content_part.done", Data: `{"type":"response.content_part.done","sequence_number":7,"item_id":"msg_1","output_index":0,"content_index":0,"part":{"type":"output_text","text":"Hello world"}}`},
		{Event: "response.output_item.done", Data: `{"type":"response.output_item.done","sequence_number":8,"output_index":0,"item":{"type":"message","id":"msg_1"}}`},
		{Event: "response.completed", Data: `{"type":"response.completed","sequence_number":9,"response":{"id":"resp_1","status":"completed","usage":{"input_tokens":100,"input_tokens_details":{"cached_tokens":30},"output_tokens":12,"output_tokens_details":{"reasoning_tokens":4},"total_tokens":112}}}`},
	}

	var events []relay.Event
	for _, f := range frames {
		evt, err := c.Classify(f)
		require.NoError(t, err, f.Event)
		if evt != nil {
			events = append(events, evt)
		}
	}

	want := []relay.Event{
		relay.EventStreamStarted{ResponseID: "resp_1"},
		relay.EventOutputTextStarted{ItemIndex: 0},
		relay.EventOutputTextDelta{ItemIndex: 0, Delta: "Hello", Sequence: 4},
		relay.EventOutputTextDelta{ItemIndex: 0, Delta: " world", Sequence: 5},
		relay.EventOutputTextCompleted{ItemIndex: 0, Text: "Hello world"},
		relay.EventResponseCompleted{ResponseID: "resp_1", Usage: relay.Usage{
			InputTokens:     70,
			CacheReadTokens: 30,
			OutputTokens:    12,
			ReasoningTokens: 4,
		}},
	}
	assert.Equal(t, want, events)
}

func TestClassify_TextContentParts(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()

	got := classify(t, c, "response.content_part.added",
		`{"item_id":"msg_1","output_index":0,"content_index":1,"part":{"type":"output_text","text":""}}`)
	assert.Equal(t, relay.EventOutputTextStarted{ItemIndex: 0, ContentIndex: 1}, got)

	got = classify(t, c, "response.output_text.delta",
		`{"item_id":"msg_1","output_index":0,"content_index":1,"sequence_number":9,"delta":"b"}`)
	assert.Equal(t, relay.EventOutputTextDelta{ItemIndex: 0, ContentIndex: 1, Delta: "b", Sequence: 9}, got)

	got = classify(t, c, "response.output_text.done",
		`{"item_id":"msg_1","output_index":0,"content_index":1,"text":"b"}`)
	assert.Equal(t, relay.EventOutputTextCompleted{ItemIndex: 0, ContentIndex: 1, Text: "b"}, got)

	got = classify(t, c, "response.content_part.added",
		`{"item_id":"msg_1","output_index":0,"content_index":2,"part":{"type":"refusal","refusal":""}}`)
	assert.Nil(t, got, "refusal parts open no text buffer")
}

func TestClassify_FunctionCallResolvesItemAlias(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()

	got := classify(t, c, "response.output_item.added",
		`{"type":"response.output_item.added","output_index":1,"item":{"type":"function_call","id":"fc_1","call_id":"call_A","name":"get_weather","arguments":""}}`)
	assert.Equal(t, relay.EventFunctionCallStarted{CallID: "call_A", Name: "get_weather"}, got)

	got = classify(t, c, "response.function_call_arguments.delta",
		`{"type":"response.function_call_arguments.delta","sequence_number":3,"item_id":"fc_1","output_index":1,"delta":"{\"city\":"}`)
	assert.Equal(t, relay.EventFunctionCallArgumentsDelta{CallID: "call_A", Delta: `{"city":`, Sequence: 3}, got)

	got = classify(t, c, "response.function_call_arguments.done",
		`{"type":"response.function_call_arguments.done","item_id":"fc_1","output_index":1,"arguments":"{\"city\":\"Paris\"}"}`)
	assert.Equal(t, relay.EventFunctionCallCompleted{CallID: "call_A", Arguments: json.RawMessage(`{"city":"Paris"}`)}, got)
}

func TestClassify_ArgumentsKeyFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("explicit call_id wins", func(t *testing.T) {
		t.Parallel()
		c := openai.NewClassifier()
		got := classify(t, c, "response.function_call_arguments.delta",
			`{"item_id":"fc_9","call_id":"call_Z","delta":"{}"}`)
		assert.Equal(t, "call_Z", got.(relay.EventFunctionCallArgumentsDelta).CallID)
	})

	t.Run("unaliased item id is used as key", func(t *testing.T) {
		t.Parallel()
		c := openai.NewClassifier()
		got := classify(t, c, "response.function_call_arguments.delta",
			`{"item_id":"fc_9","delta":"{}"}`)
		assert.Equal(t, "fc_9", got.(relay.EventFunctionCallArgumentsDelta).CallID)
	})

	t.Run("no key is malformed", func(t *testing.T) {
		t.Parallel()
		c := openai.NewClassifier()
		_, err := c.Classify(relay.Frame{Event: "response.function_call_arguments.delta", Data: `{"delta":"{}"}`})
		assert.ErrorIs(t, err, relay.ErrMalformedPayload)
	})

	t.Run("empty arguments stay empty", func(t *testing.T) {
		t.Parallel()
		c := openai.NewClassifier()
		got := classify(t, c, "response.function_call_arguments.done", `{"item_id":"fc_1","arguments":""}`)
		assert.Nil(t, got.(relay.EventFunctionCallCompleted).Arguments)
	})
}

func TestClassify_TypeFromPayloadWhenEventNameMissing(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	got := classify(t, c, "", `{"type":"response.output_text.delta","output_index":2,"delta":"x"}`)
	assert.Equal(t, relay.EventOutputTextDelta{ItemIndex: 2, Delta: "x"}, got)
}

func TestClassify_Terminator(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	_, err := c.Classify(relay.Frame{Data: relay.DoneSentinel})
	assert.ErrorIs(t, err, relay.ErrEndOfStream)
}

func TestClassify_UnrecognizedEvent(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	_, err := c.Classify(relay.Frame{Event: "response.audio.delta", Data: `{}`})
	require.ErrorIs(t, err, relay.ErrUnrecognizedEvent)
	assert.Contains(t, err.Error(), "response.audio.delta")
}

func TestClassify_MalformedPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame relay.Frame
	}{
		{"invalid json", relay.Frame{Event: "response.output_text.delta", Data: `{"delta":`}},
		{"wrong field type", relay.Frame{Event: "response.output_text.delta", Data: `{"output_index":"zero","delta":"x"}`}},
		{"missing output index", relay.Frame{Event: "response.output_text.delta", Data: `{"delta":"x"}`}},
		{"missing response id", relay.Frame{Event: "response.created", Data: `{"response":{}}`}},
		{"function call without call id", relay.Frame{Event: "response.output_item.added", Data: `{"item":{"type":"function_call","id":"fc_1"}}`}},
		{"no name and no type", relay.Frame{Data: `{"delta":"x"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := openai.NewClassifier().Classify(tt.frame)
			assert.ErrorIs(t, err, relay.ErrMalformedPayload)
		})
	}
}

func TestClassify_KnownEventsWithoutContent(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	for _, name := range []string{
		"response.queued",
		"response.in_progress",
		"response.output_item.done",
		"response.content_part.done",
		"response.output_text.annotation.added",
	} {
		evt, err := c.Classify(relay.Frame{Event: name, Data: `{}`})
		require.NoError(t, err, name)
		assert.Nil(t, evt, name)
	}

	evt := classify(t, c, "response.content_part.added", `{"output_index":0,"part":{"type":"refusal"}}`)
	assert.Nil(t, evt)
}

func TestClassify_Refusal(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	got := classify(t, c, "response.refusal.delta", `{"output_index":0,"delta":"I can't"}`)
	assert.Equal(t, relay.EventRefusalDelta{ItemIndex: 0, Delta: "I can't"}, got)

	got = classify(t, c, "response.refusal.done", `{"output_index":0,"refusal":"I can't help with that."}`)
	assert.Equal(t, relay.EventRefused{Reason: "I can't help with that."}, got)
	assert.True(t, relay.IsTerminal(got))
}

func TestClassify_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame relay.Frame
		want  relay.EventResponseFailed
	}{
		{
			"response failed",
			relay.Frame{Event: "response.failed", Data: `{"response":{"id":"resp_1","status":"failed","error":{"code":"server_error","message":"boom"}}}`},
			relay.EventResponseFailed{Code: "server_error", Reason: "boom"},
		},
		{
			"response incomplete",
			relay.Frame{Event: "response.incomplete", Data: `{"response":{"id":"resp_1","status":"incomplete","incomplete_details":{"reason":"max_output_tokens"}}}`},
			relay.EventResponseFailed{Code: "incomplete", Reason: "max_output_tokens"},
		},
		{
			"error event",
			relay.Frame{Event: "error", Data: `{"type":"error","code":"rate_limit_exceeded","message":"slow down","param":null}`},
			relay.EventResponseFailed{Code: "rate_limit_exceeded", Reason: "slow down"},
		},
		{
			"error event without code",
			relay.Frame{Event: "error", Data: `{"type":"error","code":null,"message":"oops"}`},
			relay.EventResponseFailed{Reason: "oops"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := openai.NewClassifier().Classify(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_CachedTokensClampedAtZero(t *testing.T) {
	t.Parallel()
	c := openai.NewClassifier()
	got := classify(t, c, "response.completed",
		`{"response":{"id":"r","usage":{"input_tokens":5,"input_tokens_details":{"cached_tokens":9},"output_tokens":1}}}`)
	u := got.(relay.EventResponseCompleted).Usage
	assert.Equal(t, 0, u.InputTokens)
	assert.Equal(t, 9, u.CacheReadTokens)
}
