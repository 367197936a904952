package relay

import (
	"encoding/json"
	"sort"
	"strings"
)

// Output is a sealed interface for a value finalized from an accumulation
// buffer. The unexported marker method prevents external implementations.
type Output interface {
	output()
}

// TextOutput is the final text of one content part of an output item.
type TextOutput struct {
	ItemIndex    int
	ContentIndex int
	Text         string
}

func (TextOutput) output() {}

// ToolCall is a completed function call. Validation is nil when no schema
// is registered for Name.
type ToolCall struct {
	ID         string
	Name       string
	Arguments  json.RawMessage
	Validation *ValidationResult
}

func (ToolCall) output() {}

// Valid reports whether the arguments passed schema validation, or no
// schema applied.
func (c ToolCall) Valid() bool {
	return c.Validation == nil || c.Validation.Valid()
}

// Partial is the best-effort content of a buffer that was still open when
// the stream stopped. CallID is empty for text buffers.
type Partial struct {
	CallID       string
	Name         string
	ItemIndex    int
	ContentIndex int
	Content      string
}

// IsCall reports whether the partial belongs to a function call.
func (p Partial) IsCall() bool {
	return p.CallID != ""
}

// Result is the aggregate of one logical response.
type Result struct {
	StreamID   string
	ResponseID string
	Status     Status
	Reason     string // failure reason or refusal message
	Err        error  // fatal error for StatusFailed and StatusCancelled
	Outputs    []TextOutput
	ToolCalls  []ToolCall
	Partial    []Partial
	Usage      Usage

	// OutputValidation is set when Config.OutputSchema names a schema.
	OutputValidation *ValidationResult
}

// Text returns all completed output text in item and content part order.
func (r Result) Text() string {
	outs := make([]TextOutput, len(r.Outputs))
	copy(outs, r.Outputs)
	sort.SliceStable(outs, func(i, j int) bool {
		if outs[i].ItemIndex != outs[j].ItemIndex {
			return outs[i].ItemIndex < outs[j].ItemIndex
		}
		return outs[i].ContentIndex < outs[j].ContentIndex
	})
	var sb strings.Builder
	for _, o := range outs {
		sb.WriteString(o.Text)
	}
	return sb.String()
}

// ToolCall returns the completed call with the given id.
func (r Result) ToolCall(id string) (ToolCall, bool) {
	for _, c := range r.ToolCalls {
		if c.ID == id {
			return c, true
		}
	}
	return ToolCall{}, false
}

// PartialCall returns the unfinished call with the given id.
func (r Result) PartialCall(id string) (Partial, bool) {
	for _, p := range r.Partial {
		if p.IsCall() && p.CallID == id {
			return p, true
		}
	}
	return Partial{}, false
}

// Interface compliance checks.
var (
	_ Output = TextOutput{}
	_ Output = ToolCall{}
)
