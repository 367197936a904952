// Package schema validates structured payloads against registered JSON
// Schemas.
//
// A [Validator] is compiled once from a [relay.SchemaDefinition]: patterns
// are compiled, enum and const values decoded, every $ref resolved, and
// reference chains that never descend into the value are rejected with
// [relay.ErrCyclicSchema]. Compiled validators are immutable and safe for
// concurrent use. A [Registry] maps names to validators and implements
// [relay.Validator].
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/fwojciec/relay"
)

// Validator checks values against one compiled schema.
type Validator struct {
	name  string
	root  *relay.Schema
	opts  relay.SchemaOptions
	nodes map[*relay.Schema]*node
	refs  map[string]*relay.Schema
}

// node holds the compiled form of one schema's keywords.
type node struct {
	pattern  *regexp.Regexp
	enum     []any
	konst    any
	hasConst bool
}

// Compile prepares def for validation.
func Compile(def relay.SchemaDefinition) (*Validator, error) {
	if def.Schema == nil {
		return nil, fmt.Errorf("schema %q: nil schema: %w", def.Name, relay.ErrValidation)
	}
	if err := def.Options.Validate(); err != nil {
		return nil, fmt.Errorf("schema %q: %w", def.Name, err)
	}
	v := &Validator{
		name:  def.Name,
		root:  def.Schema,
		opts:  def.Options,
		nodes: make(map[*relay.Schema]*node),
		refs:  make(map[string]*relay.Schema),
	}
	var order []*relay.Schema
	if err := v.collect(def.Schema, &order); err != nil {
		return nil, fmt.Errorf("schema %q: %w", def.Name, err)
	}
	if err := v.checkCycles(order); err != nil {
		return nil, fmt.Errorf("schema %q: %w", def.Name, err)
	}
	return v, nil
}

// Name returns the registered name of the schema.
func (v *Validator) Name() string { return v.name }

// Schema returns the root schema.
func (v *Validator) Schema() *relay.Schema { return v.root }

// collect compiles every schema reachable from s.
func (v *Validator) collect(s *relay.Schema, order *[]*relay.Schema) error {
	if s == nil {
		return nil
	}
	if _, ok := v.nodes[s]; ok {
		return nil
	}
	n := &node{}
	v.nodes[s] = n
	*order = append(*order, s)

	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", s.Pattern, err)
		}
		n.pattern = re
	}
	for _, raw := range s.Enum {
		val, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("enum: %w", err)
		}
		n.enum = append(n.enum, val)
	}
	if len(s.Const) > 0 {
		val, err := decodeValue(s.Const)
		if err != nil {
			return fmt.Errorf("const: %w", err)
		}
		n.konst, n.hasConst = val, true
	}
	for _, b := range bounds(s) {
		if b.num == "" {
			continue
		}
		if _, err := parseRat(b.num); err != nil {
			return fmt.Errorf("%s: %w %q", b.keyword, err, b.num)
		}
	}
	if m := s.MultipleOf.String(); m != "" {
		r, err := parseRat(m)
		if err != nil || r.Sign() <= 0 {
			return fmt.Errorf("multipleOf: must be a positive number, got %q", m)
		}
	}
	if s.Ref != "" {
		target, err := v.resolve(s.Ref)
		if err != nil {
			return err
		}
		v.refs[s.Ref] = target
	}

	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if err := v.collect(pair.Value, order); err != nil {
				return fmt.Errorf("properties/%s: %w", pair.Key, err)
			}
		}
	}
	children := []*relay.Schema{s.AdditionalSchema, s.Items, s.Not}
	children = append(children, s.AnyOf...)
	children = append(children, s.AllOf...)
	for _, c := range children {
		if err := v.collect(c, order); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(s.Defs) {
		if err := v.collect(s.Defs[name], order); err != nil {
			return fmt.Errorf("$defs/%s: %w", name, err)
		}
	}
	return nil
}

// resolve looks up a local reference: "#", "#/$defs/NAME" or
// "#/definitions/NAME".
func (v *Validator) resolve(ref string) (*relay.Schema, error) {
	if ref == "#" {
		return v.root, nil
	}
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		name, ok := strings.CutPrefix(ref, prefix)
		if !ok {
			continue
		}
		name = unescapePointer(name)
		if target, ok := v.root.Defs[name]; ok && target != nil {
			return target, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", relay.ErrUnknownReference, ref)
}

// inPlace returns the subschemas applied to the same value as s, without
// descending into it.
func (v *Validator) inPlace(s *relay.Schema) []*relay.Schema {
	var out []*relay.Schema
	if s.Ref != "" {
		out = append(out, v.refs[s.Ref])
	}
	out = append(out, s.AllOf...)
	out = append(out, s.AnyOf...)
	if s.Not != nil {
		out = append(out, s.Not)
	}
	return out
}

// checkCycles rejects chains of in-place subschemas that lead back to
// themselves, whatever their length.
func (v *Validator) checkCycles(order []*relay.Schema) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*relay.Schema]int, len(order))
	var visit func(s *relay.Schema, chain []string) error
	visit = func(s *relay.Schema, chain []string) error {
		color[s] = grey
		for _, next := range v.inPlace(s) {
			if next == nil {
				continue
			}
			step := chain
			if s.Ref != "" && next == v.refs[s.Ref] {
				step = append(chain[:len(chain):len(chain)], s.Ref)
			}
			switch color[next] {
			case grey:
				return fmt.Errorf("%w: %s", relay.ErrCyclicSchema, describeChain(step))
			case white:
				if err := visit(next, step); err != nil {
					return err
				}
			}
		}
		color[s] = black
		return nil
	}
	for _, s := range order {
		if color[s] == white {
			if err := visit(s, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func describeChain(refs []string) string {
	if len(refs) == 0 {
		return "schema applies itself"
	}
	return "reference chain " + strings.Join(refs, " -> ")
}

// Validate checks a Go value. The value is encoded to JSON first so that
// numbers are compared as decimal text.
func (v *Validator) Validate(value any) (relay.ValidationResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return relay.ValidationResult{}, fmt.Errorf("schema %q: encode value: %w", v.name, err)
	}
	return v.ValidateJSON(data)
}

// ValidateJSON checks a JSON document. A document that does not parse is
// reported as a violation at the root.
func (v *Validator) ValidateJSON(data []byte) (relay.ValidationResult, error) {
	res := relay.ValidationResult{Schema: v.name}
	val, err := decodeValue(data)
	if err != nil {
		res.Violations = []relay.Violation{{Reason: "invalid JSON: " + err.Error()}}
		return res, nil
	}
	res.Value = val
	w := &walker{v: v}
	if err := w.validate(v.root, val, "", make(map[*relay.Schema]bool)); err != nil {
		return relay.ValidationResult{}, fmt.Errorf("schema %q: %w", v.name, err)
	}
	res.Violations = w.violations
	return res, nil
}

// Validate compiles def and checks value against it.
func Validate(def relay.SchemaDefinition, value any) (relay.ValidationResult, error) {
	v, err := Compile(def)
	if err != nil {
		return relay.ValidationResult{}, err
	}
	return v.Validate(value)
}

// decodeValue decodes exactly one JSON value, keeping numbers as text.
func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return val, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

// Interface compliance check.
var _ relay.Validator = (*Registry)(nil)

// Registry maps schema names to compiled validators. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	validators map[string]*Validator
}

// NewRegistry compiles every definition. Names must be unique.
func NewRegistry(defs ...relay.SchemaDefinition) (*Registry, error) {
	r := &Registry{validators: make(map[string]*Validator, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("schema without name: %w", relay.ErrValidation)
		}
		if _, ok := r.validators[def.Name]; ok {
			return nil, fmt.Errorf("schema %q registered twice: %w", def.Name, relay.ErrValidation)
		}
		v, err := Compile(def)
		if err != nil {
			return nil, err
		}
		r.validators[def.Name] = v
	}
	return r, nil
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (*Validator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return sortedKeys(r.validators)
}

// Validate checks data against the schema registered under name.
func (r *Registry) Validate(name string, data json.RawMessage) (relay.ValidationResult, error) {
	v, ok := r.validators[name]
	if !ok {
		return relay.ValidationResult{}, fmt.Errorf("%w: %q", relay.ErrSchemaNotFound, name)
	}
	return v.ValidateJSON(data)
}
