package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fwojciec/relay"
)

// walker collects violations for one validation pass.
type walker struct {
	v          *Validator
	violations []relay.Violation
	refDepth   int
}

func (w *walker) add(path, reason string) {
	w.violations = append(w.violations, relay.Violation{Path: path, Reason: reason})
}

// sub runs fn on a fresh walker and returns its violations.
func (w *walker) sub(fn func(*walker) error) ([]relay.Violation, error) {
	s := &walker{v: w.v, refDepth: w.refDepth}
	err := fn(s)
	return s.violations, err
}

// validate walks val against s depth-first. seen holds the schemas applied
// to this same value since the last descent; meeting one again means the
// schema never makes progress.
func (w *walker) validate(s *relay.Schema, val any, path string, seen map[*relay.Schema]bool) error {
	if s == nil {
		return nil
	}
	if seen[s] {
		return fmt.Errorf("%w: at %q", relay.ErrCyclicSchema, pointerOrRoot(path))
	}
	seen[s] = true
	defer delete(seen, s)

	if s.Ref != "" {
		target, ok := w.v.refs[s.Ref]
		if !ok {
			return fmt.Errorf("%w: %q", relay.ErrUnknownReference, s.Ref)
		}
		if limit := w.v.opts.DepthLimit(); w.refDepth >= limit {
			w.add(path, fmt.Sprintf("reference depth exceeds %d", limit))
			return nil
		}
		w.refDepth++
		err := w.validate(target, val, path, seen)
		w.refDepth--
		if err != nil {
			return err
		}
	}

	if len(s.Type) > 0 && !typeMatches(s.Type, val) {
		w.add(path, fmt.Sprintf("expected %s, got %s", describeTypes(s.Type), kindOf(val)))
		return nil
	}

	n := w.v.nodes[s]
	if n != nil && n.hasConst && !equal(n.konst, val) {
		w.add(path, "must equal "+string(s.Const))
	}
	if n != nil && len(n.enum) > 0 && !inEnum(n.enum, val) {
		w.add(path, "must be one of "+describeEnum(s.Enum))
	}

	var err error
	switch x := val.(type) {
	case string:
		w.checkString(s, n, x, path)
	case json.Number:
		w.checkNumber(s, x, path)
	case map[string]any:
		err = w.checkObject(s, x, path)
	case []any:
		err = w.checkArray(s, x, path)
	}
	if err != nil {
		return err
	}

	for _, sub := range s.AllOf {
		if err := w.validate(sub, val, path, seen); err != nil {
			return err
		}
	}
	if len(s.AnyOf) > 0 {
		matched := false
		for _, sub := range s.AnyOf {
			vs, err := w.sub(func(b *walker) error { return b.validate(sub, val, path, seen) })
			if err != nil {
				return err
			}
			if len(vs) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			w.add(path, fmt.Sprintf("must match at least one of %d anyOf schemas", len(s.AnyOf)))
		}
	}
	if s.Not != nil {
		vs, err := w.sub(func(b *walker) error { return b.validate(s.Not, val, path, seen) })
		if err != nil {
			return err
		}
		if len(vs) == 0 {
			w.add(path, "must not match schema")
		}
	}
	return nil
}

func (w *walker) checkString(s *relay.Schema, n *node, str, path string) {
	length := utf8.RuneCountInString(str)
	if s.MinLength != nil && length < *s.MinLength {
		w.add(path, fmt.Sprintf("length %d is less than minLength %d", length, *s.MinLength))
	}
	if s.MaxLength != nil && length > *s.MaxLength {
		w.add(path, fmt.Sprintf("length %d exceeds maxLength %d", length, *s.MaxLength))
	}
	if n != nil && n.pattern != nil && !n.pattern.MatchString(str) {
		w.add(path, fmt.Sprintf("does not match pattern %q", s.Pattern))
	}
	if check, ok := formats[s.Format]; ok && !check(str) {
		w.add(path, fmt.Sprintf("is not a valid %s", s.Format))
	}
}

// checkObject reports missing required properties in declaration order,
// then validates declared properties in schema order, then handles
// undeclared properties in sorted order.
func (w *walker) checkObject(s *relay.Schema, obj map[string]any, path string) error {
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			w.add(path+"/"+escapePointer(name), "required property is missing")
		}
	}

	declared := make(map[string]bool)
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			declared[pair.Key] = true
			val, ok := obj[pair.Key]
			if !ok {
				continue
			}
			child := path + "/" + escapePointer(pair.Key)
			if err := w.validate(pair.Value, val, child, make(map[*relay.Schema]bool)); err != nil {
				return err
			}
		}
	}

	var unknown []string
	for k := range obj {
		if !declared[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		child := path + "/" + escapePointer(k)
		switch {
		case w.v.opts.Strict:
			w.add(child, "unknown property")
		case s.AdditionalSchema != nil:
			if err := w.validate(s.AdditionalSchema, obj[k], child, make(map[*relay.Schema]bool)); err != nil {
				return err
			}
		case w.v.opts.AllowUnknown:
		case s.AdditionalProperties != nil && !*s.AdditionalProperties:
			w.add(child, "unknown property")
		}
	}
	return nil
}

func (w *walker) checkArray(s *relay.Schema, arr []any, path string) error {
	if s.MinItems != nil && len(arr) < *s.MinItems {
		w.add(path, fmt.Sprintf("has %d items, fewer than minItems %d", len(arr), *s.MinItems))
	}
	if s.MaxItems != nil && len(arr) > *s.MaxItems {
		w.add(path, fmt.Sprintf("has %d items, more than maxItems %d", len(arr), *s.MaxItems))
	}
	if s.Items == nil {
		return nil
	}
	for i, item := range arr {
		child := path + "/" + strconv.Itoa(i)
		if err := w.validate(s.Items, item, child, make(map[*relay.Schema]bool)); err != nil {
			return err
		}
	}
	return nil
}

// kindOf names the JSON type of a decoded value.
func kindOf(val any) string {
	switch x := val.(type) {
	case nil:
		return relay.TypeNull
	case bool:
		return relay.TypeBoolean
	case string:
		return relay.TypeString
	case json.Number:
		if isInteger(x) {
			return relay.TypeInteger
		}
		return relay.TypeNumber
	case map[string]any:
		return relay.TypeObject
	case []any:
		return relay.TypeArray
	default:
		return fmt.Sprintf("%T", val)
	}
}

func typeMatches(types relay.TypeList, val any) bool {
	kind := kindOf(val)
	if types.Has(kind) {
		return true
	}
	return kind == relay.TypeInteger && types.Has(relay.TypeNumber)
}

func describeTypes(types relay.TypeList) string {
	if len(types) == 1 {
		return types[0]
	}
	return "one of [" + strings.Join(types, ", ") + "]"
}

func inEnum(enum []any, val any) bool {
	for _, e := range enum {
		if equal(e, val) {
			return true
		}
	}
	return false
}

func describeEnum(raw []json.RawMessage) string {
	parts := make([]string, len(raw))
	for i, r := range raw {
		parts[i] = string(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func pointerOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
