package openai

// Event names of the Responses API streaming wire format.
const (
	eventResponseCreated      = "response.created"
	eventResponseQueued       = "response.queued"
	eventResponseInProgress   = "response.in_progress"
	eventResponseCompleted    = "response.completed"
	eventResponseFailed       = "response.failed"
	eventResponseIncomplete   = "response.incomplete"
	eventOutputItemAdded      = "response.output_item.added"
	eventOutputItemDone       = "response.output_item.done"
	eventContentPartAdded     = "response.content_part.added"
	eventContentPartDone      = "response.content_part.done"
	eventOutputTextDelta      = "response.output_text.delta"
	eventOutputTextDone       = "response.output_text.done"
	eventOutputTextAnnotation = "response.output_text.annotation.added"
	eventFunctionArgsDelta    = "response.function_call_arguments.delta"
	eventFunctionArgsDone     = "response.function_call_arguments.done"
	eventRefusalDelta         = "response.refusal.delta"
	eventRefusalDone          = "response.refusal.done"
	eventError                = "error"
)

// SSE payload types.

type sseResponseEnvelope struct {
	Type           string      `json:"type"`
	SequenceNumber int64       `json:"sequence_number"`
	Response       sseResponse `json:"response"`
}

type sseResponse struct {
	ID                string                `json:"id"`
	Status            string                `json:"status"`
	Error             *sseError             `json:"error"`
	IncompleteDetails *sseIncompleteDetails `json:"incomplete_details"`
	Usage             *sseUsage             `json:"usage"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sseIncompleteDetails struct {
	Reason string `json:"reason"`
}

// sseUsage reports cached tokens as a subset of input tokens and
// reasoning tokens as a subset of output tokens.
type sseUsage struct {
	InputTokens        int `json:"input_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
}

type sseOutputItemAdded struct {
	Type           string        `json:"type"`
	SequenceNumber int64         `json:"sequence_number"`
	OutputIndex    int           `json:"output_index"`
	Item           sseOutputItem `json:"item"`
}

// sseOutputItem is an output item. Different fields are populated
// depending on Type.
type sseOutputItem struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type sseContentPartAdded struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Part           struct {
		Type string `json:"type"`
	} `json:"part"`
}

type sseTextDelta struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	OutputIndex    *int   `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Delta          string `json:"delta"`
}

type sseTextDone struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	OutputIndex    *int   `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Text           string `json:"text"`
}

type sseArgumentsDelta struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	CallID         string `json:"call_id,omitempty"`
	OutputIndex    int    `json:"output_index"`
	Delta          string `json:"delta"`
}

type sseArgumentsDone struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	CallID         string `json:"call_id,omitempty"`
	Name           string `json:"name,omitempty"`
	OutputIndex    int    `json:"output_index"`
	Arguments      string `json:"arguments"`
}

type sseRefusalDelta struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	Delta          string `json:"delta"`
}

type sseRefusalDone struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	Refusal        string `json:"refusal"`
}

type sseErrorEvent struct {
	Type    string  `json:"type"`
	Code    *string `json:"code"`
	Message string  `json:"message"`
	Param   *string `json:"param"`
}
