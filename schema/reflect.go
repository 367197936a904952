package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/invopop/jsonschema"
)

// FromType reflects T into a schema definition. Struct tags follow
// encoding/json and invopop/jsonschema conventions: fields without
// omitempty are required, and structs reject undeclared properties.
// An empty name uses the type name.
func FromType[T any](name string, opts relay.SchemaOptions) (relay.SchemaDefinition, error) {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name == "" {
		name = t.Name()
	}

	reflector := jsonschema.Reflector{}
	js := reflector.ReflectFromType(t)
	data, err := json.Marshal(js)
	if err != nil {
		return relay.SchemaDefinition{}, fmt.Errorf("schema %q: encode reflected schema: %w", name, err)
	}
	var s relay.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return relay.SchemaDefinition{}, fmt.Errorf("schema %q: decode reflected schema: %w", name, err)
	}
	return relay.SchemaDefinition{Name: name, Schema: &s, Options: opts}, nil
}

// MustFromType is like FromType but panics on error. It is intended for
// package-level schema registration.
func MustFromType[T any](name string, opts relay.SchemaOptions) relay.SchemaDefinition {
	def, err := FromType[T](name, opts)
	if err != nil {
		panic(err)
	}
	return def
}

// Decode converts a valid result into T. Invalid results return an error
// wrapping [relay.ErrValidation] that lists every violation.
func Decode[T any](res relay.ValidationResult) (T, error) {
	var out T
	if !res.Valid() {
		reasons := make([]string, len(res.Violations))
		for i, v := range res.Violations {
			reasons[i] = v.String()
		}
		return out, fmt.Errorf("schema %q: %s: %w", res.Schema, strings.Join(reasons, "; "), relay.ErrValidation)
	}
	data, err := json.Marshal(res.Value)
	if err != nil {
		return out, fmt.Errorf("schema %q: encode value: %w", res.Schema, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("schema %q: decode into %T: %w", res.Schema, out, err)
	}
	return out, nil
}
