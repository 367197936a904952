package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwojciec/relay"
)

// envelope is the v1 wire format for a stream result.
type envelope struct {
	Version          int            `json:"version"`
	StreamID         string         `json:"stream_id"`
	ResponseID       string         `json:"response_id,omitempty"`
	Status           string         `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	Error            *errorDTO      `json:"error,omitempty"`
	Outputs          []outputDTO    `json:"outputs"`
	ToolCalls        []toolCallDTO  `json:"tool_calls"`
	Partial          []partialDTO   `json:"partial,omitempty"`
	Usage            *usageDTO      `json:"usage"`
	OutputValidation *validationDTO `json:"output_validation,omitempty"`
}

type errorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type outputDTO struct {
	ItemIndex    int    `json:"item_index"`
	ContentIndex int    `json:"content_index,omitempty"`
	Text         string `json:"text"`
}

type toolCallDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Validation *validationDTO  `json:"validation,omitempty"`
}

type partialDTO struct {
	CallID       string `json:"call_id,omitempty"`
	Name         string `json:"name,omitempty"`
	ItemIndex    int    `json:"item_index"`
	ContentIndex int    `json:"content_index,omitempty"`
	Content      string `json:"content"`
}

// validationDTO omits the decoded value; the document is already carried
// by the arguments or outputs it was decoded from.
type validationDTO struct {
	Schema     string         `json:"schema,omitempty"`
	Valid      bool           `json:"valid"`
	Violations []violationDTO `json:"violations,omitempty"`
}

type violationDTO struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// MarshalResult serializes a Result in v1 envelope format.
func MarshalResult(r relay.Result) ([]byte, error) {
	env := envelope{
		Version:          1,
		StreamID:         r.StreamID,
		ResponseID:       r.ResponseID,
		Status:           string(r.Status),
		Reason:           r.Reason,
		Error:            marshalError(r.Err),
		Outputs:          make([]outputDTO, len(r.Outputs)),
		ToolCalls:        make([]toolCallDTO, len(r.ToolCalls)),
		Usage:            marshalUsage(r.Usage),
		OutputValidation: marshalValidation(r.OutputValidation),
	}
	for i, o := range r.Outputs {
		env.Outputs[i] = outputDTO(o)
	}
	for i, c := range r.ToolCalls {
		env.ToolCalls[i] = toolCallDTO{
			ID:         c.ID,
			Name:       c.Name,
			Arguments:  c.Arguments,
			Validation: marshalValidation(c.Validation),
		}
	}
	for _, p := range r.Partial {
		env.Partial = append(env.Partial, partialDTO(p))
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalResult deserializes a Result from v1 envelope format. The
// error, when present, is restored as a *relay.Error carrying the recorded
// kind and message; sentinel identity is not preserved.
func UnmarshalResult(data []byte) (relay.Result, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return relay.Result{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return relay.Result{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	r := relay.Result{
		StreamID:         env.StreamID,
		ResponseID:       env.ResponseID,
		Status:           relay.Status(env.Status),
		Reason:           env.Reason,
		Usage:            unmarshalUsage(env.Usage),
		OutputValidation: unmarshalValidation(env.OutputValidation),
	}
	if env.Error != nil {
		r.Err = &relay.Error{Kind: relay.ErrorKind(env.Error.Kind), Err: errors.New(env.Error.Message)}
	}
	for _, o := range env.Outputs {
		r.Outputs = append(r.Outputs, relay.TextOutput(o))
	}
	for _, c := range env.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, relay.ToolCall{
			ID:         c.ID,
			Name:       c.Name,
			Arguments:  c.Arguments,
			Validation: unmarshalValidation(c.Validation),
		})
	}
	for _, p := range env.Partial {
		r.Partial = append(r.Partial, relay.Partial(p))
	}
	return r, nil
}

// Save writes a Result to a JSON file, creating parent directories as needed.
func Save(path string, r relay.Result) error {
	data, err := MarshalResult(r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Result from a JSON file.
func Load(path string) (relay.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return relay.Result{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalResult(data)
}

func marshalError(err error) *errorDTO {
	if err == nil {
		return nil
	}
	var e *relay.Error
	if errors.As(err, &e) {
		return &errorDTO{Kind: string(e.Kind), Message: e.Err.Error()}
	}
	return &errorDTO{Message: err.Error()}
}

func marshalValidation(v *relay.ValidationResult) *validationDTO {
	if v == nil {
		return nil
	}
	dto := &validationDTO{Schema: v.Schema, Valid: v.Valid()}
	for _, viol := range v.Violations {
		dto.Violations = append(dto.Violations, violationDTO(viol))
	}
	return dto
}

func unmarshalValidation(dto *validationDTO) *relay.ValidationResult {
	if dto == nil {
		return nil
	}
	v := &relay.ValidationResult{Schema: dto.Schema}
	for _, viol := range dto.Violations {
		v.Violations = append(v.Violations, relay.Violation(viol))
	}
	return v
}

// MarshalValidation serializes a single validation result.
func MarshalValidation(v relay.ValidationResult) ([]byte, error) {
	return json.MarshalIndent(marshalValidation(&v), "", "  ")
}
