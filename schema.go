package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Type names recognized by the "type" keyword.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// TypeList is the "type" keyword: one type name or a list of them.
type TypeList []string

// Has reports whether name is in the list.
func (t TypeList) Has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts a string or an array of strings.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = TypeList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type must be a string or a list of strings: %w", err)
	}
	*t = many
	return nil
}

// MarshalJSON writes a single name as a string.
func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Schema is a recursive structural description of a JSON value.
// Schemas are immutable once handed to a validator and may be shared
// read-only across goroutines.
//
// Properties keeps declaration order; validators walk it in that order so
// violation lists are deterministic. Numeric bounds are kept as decimal
// text and compared exactly. Enum and Const hold raw JSON.
type Schema struct {
	Ref         string
	Type        TypeList
	Title       string
	Description string

	Properties           *orderedmap.OrderedMap[string, *Schema]
	Required             []string
	AdditionalProperties *bool   // nil = governed by SchemaOptions
	AdditionalSchema     *Schema // set when additionalProperties is a schema

	Items    *Schema
	MinItems *int
	MaxItems *int

	MinLength *int
	MaxLength *int
	Pattern   string
	Format    string

	Minimum          json.Number
	Maximum          json.Number
	ExclusiveMinimum json.Number
	ExclusiveMaximum json.Number
	MultipleOf       json.Number

	Enum  []json.RawMessage
	Const json.RawMessage

	AnyOf []*Schema
	AllOf []*Schema
	Not   *Schema

	Defs map[string]*Schema // $defs and definitions
}

// schemaJSON is the wire form of Schema.
type schemaJSON struct {
	Ref                  string                                  `json:"$ref,omitempty"`
	Type                 TypeList                                `json:"type,omitempty"`
	Title                string                                  `json:"title,omitempty"`
	Description          string                                  `json:"description,omitempty"`
	Properties           *orderedmap.OrderedMap[string, *Schema] `json:"properties,omitempty"`
	Required             []string                                `json:"required,omitempty"`
	AdditionalProperties json.RawMessage                         `json:"additionalProperties,omitempty"`
	Items                *Schema                                 `json:"items,omitempty"`
	MinItems             *int                                    `json:"minItems,omitempty"`
	MaxItems             *int                                    `json:"maxItems,omitempty"`
	MinLength            *int                                    `json:"minLength,omitempty"`
	MaxLength            *int                                    `json:"maxLength,omitempty"`
	Pattern              string                                  `json:"pattern,omitempty"`
	Format               string                                  `json:"format,omitempty"`
	Minimum              json.Number                             `json:"minimum,omitempty"`
	Maximum              json.Number                             `json:"maximum,omitempty"`
	ExclusiveMinimum     json.Number                             `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum     json.Number                             `json:"exclusiveMaximum,omitempty"`
	MultipleOf           json.Number                             `json:"multipleOf,omitempty"`
	Enum                 []json.RawMessage                       `json:"enum,omitempty"`
	Const                json.RawMessage                         `json:"const,omitempty"`
	AnyOf                []*Schema                               `json:"anyOf,omitempty"`
	AllOf                []*Schema                               `json:"allOf,omitempty"`
	Not                  *Schema                                 `json:"not,omitempty"`
	Defs                 map[string]*Schema                      `json:"$defs,omitempty"`
	Definitions          map[string]*Schema                      `json:"definitions,omitempty"`
}

// UnmarshalJSON decodes a JSON Schema document. Boolean schemas decode to
// an empty schema (true) or one that rejects everything (false).
func (s *Schema) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*s = Schema{}
		return nil
	case "false":
		*s = Schema{Not: &Schema{}}
		return nil
	}

	var w schemaJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Schema{
		Ref:              w.Ref,
		Type:             w.Type,
		Title:            w.Title,
		Description:      w.Description,
		Properties:       w.Properties,
		Required:         w.Required,
		Items:            w.Items,
		MinItems:         w.MinItems,
		MaxItems:         w.MaxItems,
		MinLength:        w.MinLength,
		MaxLength:        w.MaxLength,
		Pattern:          w.Pattern,
		Format:           w.Format,
		Minimum:          w.Minimum,
		Maximum:          w.Maximum,
		ExclusiveMinimum: w.ExclusiveMinimum,
		ExclusiveMaximum: w.ExclusiveMaximum,
		MultipleOf:       w.MultipleOf,
		Enum:             w.Enum,
		Const:            w.Const,
		AnyOf:            w.AnyOf,
		AllOf:            w.AllOf,
		Not:              w.Not,
	}

	if len(w.AdditionalProperties) > 0 {
		switch string(bytes.TrimSpace(w.AdditionalProperties)) {
		case "true":
			s.AdditionalProperties = boolPtr(true)
		case "false":
			s.AdditionalProperties = boolPtr(false)
		default:
			var sub Schema
			if err := json.Unmarshal(w.AdditionalProperties, &sub); err != nil {
				return fmt.Errorf("additionalProperties: %w", err)
			}
			s.AdditionalProperties = boolPtr(true)
			s.AdditionalSchema = &sub
		}
	}

	if len(w.Defs)+len(w.Definitions) > 0 {
		s.Defs = make(map[string]*Schema, len(w.Defs)+len(w.Definitions))
		for k, v := range w.Definitions {
			s.Defs[k] = v
		}
		for k, v := range w.Defs {
			s.Defs[k] = v
		}
	}
	return nil
}

// MarshalJSON encodes the schema with $defs for definitions.
func (s Schema) MarshalJSON() ([]byte, error) {
	w := schemaJSON{
		Ref:              s.Ref,
		Type:             s.Type,
		Title:            s.Title,
		Description:      s.Description,
		Properties:       s.Properties,
		Required:         s.Required,
		Items:            s.Items,
		MinItems:         s.MinItems,
		MaxItems:         s.MaxItems,
		MinLength:        s.MinLength,
		MaxLength:        s.MaxLength,
		Pattern:          s.Pattern,
		Format:           s.Format,
		Minimum:          s.Minimum,
		Maximum:          s.Maximum,
		ExclusiveMinimum: s.ExclusiveMinimum,
		ExclusiveMaximum: s.ExclusiveMaximum,
		MultipleOf:       s.MultipleOf,
		Enum:             s.Enum,
		Const:            s.Const,
		AnyOf:            s.AnyOf,
		AllOf:            s.AllOf,
		Not:              s.Not,
		Defs:             s.Defs,
	}
	switch {
	case s.AdditionalSchema != nil:
		raw, err := json.Marshal(s.AdditionalSchema)
		if err != nil {
			return nil, err
		}
		w.AdditionalProperties = raw
	case s.AdditionalProperties != nil:
		w.AdditionalProperties = json.RawMessage(fmt.Sprintf("%t", *s.AdditionalProperties))
	}
	return json.Marshal(w)
}

// SchemaDefinition is one registered structured-output expectation.
type SchemaDefinition struct {
	Name    string
	Schema  *Schema
	Options SchemaOptions
}

// Violation is one failed check, located by a JSON pointer from the root
// of the validated value. The root itself is the empty pointer.
type Violation struct {
	Path   string
	Reason string
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return path + ": " + v.Reason
}

// ValidationResult is either a validated value (no violations) or the
// complete, ordered list of violations found in one pass.
type ValidationResult struct {
	Schema     string // registered name, empty for ad-hoc validation
	Value      any    // decoded value; numbers are json.Number
	Violations []Violation
}

// Valid reports whether no violations were found.
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

func boolPtr(b bool) *bool { return &b }
