package schema_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSchema(t *testing.T, doc string) *relay.Schema {
	t.Helper()
	var s relay.Schema
	require.NoError(t, json.Unmarshal([]byte(doc), &s))
	return &s
}

func compile(t *testing.T, doc string, opts relay.SchemaOptions) *schema.Validator {
	t.Helper()
	v, err := schema.Compile(relay.SchemaDefinition{Name: "test", Schema: parseSchema(t, doc), Options: opts})
	require.NoError(t, err)
	return v
}

func violations(t *testing.T, v *schema.Validator, doc string) []relay.Violation {
	t.Helper()
	res, err := v.ValidateJSON([]byte(doc))
	require.NoError(t, err)
	return res.Violations
}

const weatherSchema = `{
	"type": "object",
	"properties": {
		"city": {"type": "string", "minLength": 1},
		"unit": {"enum": ["celsius", "fahrenheit"]},
		"days": {"type": "integer", "minimum": 1, "maximum": 14}
	},
	"required": ["city", "unit"]
}`

func TestValidate_ValidDocument(t *testing.T) {
	t.Parallel()
	v := compile(t, weatherSchema, relay.SchemaOptions{})
	res, err := v.ValidateJSON([]byte(`{"city":"Paris","unit":"celsius","days":3}`))
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, "test", res.Schema)
	assert.Equal(t, map[string]any{"city": "Paris", "unit": "celsius", "days": json.Number("3")}, res.Value)
}

func TestValidate_CollectsAllViolationsInOrder(t *testing.T) {
	t.Parallel()
	v := compile(t, weatherSchema, relay.SchemaOptions{Strict: true})
	got := violations(t, v, `{"zeta":1,"days":0.5,"city":"","alpha":true}`)
	want := []relay.Violation{
		{Path: "/unit", Reason: "required property is missing"},
		{Path: "/city", Reason: "length 0 is less than minLength 1"},
		{Path: "/days", Reason: "expected integer, got number"},
		{Path: "/alpha", Reason: "unknown property"},
		{Path: "/zeta", Reason: "unknown property"},
	}
	assert.Equal(t, want, got)
}

func TestValidate_Deterministic(t *testing.T) {
	t.Parallel()
	v := compile(t, weatherSchema, relay.SchemaOptions{Strict: true})
	doc := `{"d":1,"c":2,"b":3,"a":4,"unit":"kelvin","days":99}`
	first := violations(t, v, doc)
	for range 20 {
		assert.Equal(t, first, violations(t, v, doc))
	}
}

func TestValidate_UnknownPropertyPolicy(t *testing.T) {
	t.Parallel()
	const closed = `{"type":"object","properties":{"a":{}},"additionalProperties":false}`
	const open = `{"type":"object","properties":{"a":{}}}`
	const typed = `{"type":"object","properties":{"a":{}},"additionalProperties":{"type":"integer"}}`
	doc := `{"a":1,"b":"x"}`

	tests := []struct {
		name   string
		schema string
		opts   relay.SchemaOptions
		want   []relay.Violation
	}{
		{"default ignores", open, relay.SchemaOptions{}, nil},
		{"default honors additionalProperties false", closed, relay.SchemaOptions{}, []relay.Violation{{Path: "/b", Reason: "unknown property"}}},
		{"strict rejects", open, relay.SchemaOptions{Strict: true}, []relay.Violation{{Path: "/b", Reason: "unknown property"}}},
		{"allow unknown overrides additionalProperties false", closed, relay.SchemaOptions{AllowUnknown: true}, nil},
		{"additional schema validates", typed, relay.SchemaOptions{}, []relay.Violation{{Path: "/b", Reason: "expected integer, got string"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := compile(t, tt.schema, tt.opts)
			assert.Equal(t, tt.want, violations(t, v, doc))
		})
	}
}

func TestValidate_Arrays(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"type":"array","items":{"type":"string","pattern":"^[a-z]+$"},"minItems":1,"maxItems":3}`, relay.SchemaOptions{})

	assert.Empty(t, violations(t, v, `["a","bc"]`))
	assert.Equal(t, []relay.Violation{
		{Path: "", Reason: "has 4 items, more than maxItems 3"},
		{Path: "/1", Reason: `does not match pattern "^[a-z]+$"`},
		{Path: "/3", Reason: "expected string, got integer"},
	}, violations(t, v, `["ok","NO","fine",7]`))
	assert.Equal(t, []relay.Violation{
		{Path: "", Reason: "has 0 items, fewer than minItems 1"},
	}, violations(t, v, `[]`))
}

func TestValidate_TypeMismatchStopsAtNode(t *testing.T) {
	t.Parallel()
	v := compile(t, weatherSchema, relay.SchemaOptions{})
	assert.Equal(t, []relay.Violation{{Path: "", Reason: "expected object, got array"}}, violations(t, v, `[1,2]`))
}

func TestValidate_TypeList(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"type":["string","null"]}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `"x"`))
	assert.Empty(t, violations(t, v, `null`))
	assert.Equal(t, []relay.Violation{{Reason: "expected one of [string, null], got boolean"}}, violations(t, v, `true`))
}

func TestValidate_IntegerAcceptsIntegralDecimal(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"type":"integer"}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `1.0`))
	assert.Empty(t, violations(t, v, `1e2`))
	assert.NotEmpty(t, violations(t, v, `1.5`))
}

func TestValidate_ExactDecimalBounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		schema string
		value  string
		valid  bool
	}{
		{`{"maximum":0.3}`, `0.3`, true},
		{`{"maximum":0.3}`, `0.30000000000000001`, false},
		{`{"exclusiveMaximum":0.3}`, `0.3`, false},
		{`{"minimum":0.1}`, `0.1`, true},
		{`{"exclusiveMinimum":0.1}`, `0.1000000000000000000001`, true},
		{`{"multipleOf":0.01}`, `19.99`, true},
		{`{"multipleOf":0.01}`, `0.3`, true},
		{`{"multipleOf":0.01}`, `19.991`, false},
		{`{"multipleOf":0.1}`, `0.7`, true},
		{`{"minimum":1e2}`, `100`, true},
		{`{"maximum":12345678901234567890}`, `12345678901234567891`, false},
	}
	for _, tt := range tests {
		t.Run(tt.schema+" "+tt.value, func(t *testing.T) {
			t.Parallel()
			v := compile(t, tt.schema, relay.SchemaOptions{})
			res, err := v.ValidateJSON([]byte(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid(), "%v", res.Violations)
		})
	}
}

func TestValidate_HugeExponents(t *testing.T) {
	t.Parallel()
	bounded := compile(t, `{"type":"number","maximum":10}`, relay.SchemaOptions{})
	assert.Equal(t, []relay.Violation{
		{Path: "", Reason: "number exponent out of supported range 1e100000000"},
	}, violations(t, bounded, `1e100000000`))
	assert.Equal(t, []relay.Violation{{Path: "", Reason: "must be <= 10"}}, violations(t, bounded, `1e100000`))

	integer := compile(t, `{"type":"integer"}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, integer, `1e100000000`))
	assert.Empty(t, violations(t, integer, `2.5E+100000000`))
	assert.Empty(t, violations(t, integer, `0e-100000000`))
	assert.NotEmpty(t, violations(t, integer, `1e-100000000`))

	_, err := schema.Compile(relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{Minimum: "1e999999999"}})
	assert.ErrorContains(t, err, "number exponent out of supported range")
}

func TestValidate_EnumAndConst(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"properties":{"n":{"enum":[1,"one",{"k":[true]}]},"c":{"const":2.50}}}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `{"n":1.0,"c":2.5}`))
	assert.Empty(t, violations(t, v, `{"n":{"k":[true]}}`))
	assert.Equal(t, []relay.Violation{
		{Path: "/n", Reason: `must be one of [1, "one", {"k":[true]}]`},
		{Path: "/c", Reason: "must equal 2.50"},
	}, violations(t, v, `{"n":"two","c":3}`))
}

func TestValidate_Formats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		good   string
		bad    string
	}{
		{"date-time", "2024-05-01T12:30:00Z", "2024-05-01 12:30"},
		{"date", "2024-05-01", "05/01/2024"},
		{"email", "ada@example.com", "Ada <ada@example.com>"},
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"},
		{"uri", "https://example.com/x", "example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			v := compile(t, fmt.Sprintf(`{"type":"string","format":%q}`, tt.format), relay.SchemaOptions{})
			assert.Empty(t, violations(t, v, fmt.Sprintf("%q", tt.good)))
			assert.Equal(t, []relay.Violation{{Reason: "is not a valid " + tt.format}}, violations(t, v, fmt.Sprintf("%q", tt.bad)))
		})
	}

	v := compile(t, `{"format":"hostname"}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `"anything goes"`), "unknown formats are annotations")
}

func TestValidate_Combinators(t *testing.T) {
	t.Parallel()
	v := compile(t, `{
		"anyOf": [{"type":"string"}, {"type":"integer","minimum":0}],
		"allOf": [{"not": {"const": "forbidden"}}]
	}`, relay.SchemaOptions{})

	assert.Empty(t, violations(t, v, `"fine"`))
	assert.Empty(t, violations(t, v, `3`))
	assert.Equal(t, []relay.Violation{{Reason: "must match at least one of 2 anyOf schemas"}}, violations(t, v, `-1`))
	assert.Equal(t, []relay.Violation{{Reason: "must not match schema"}}, violations(t, v, `"forbidden"`))
}

func TestValidate_BooleanSchemas(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"properties":{"yes":true,"no":false}}`, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `{"yes":1}`))
	assert.Equal(t, []relay.Violation{{Path: "/no", Reason: "must not match schema"}}, violations(t, v, `{"no":1}`))
}

func TestValidate_RecursiveReference(t *testing.T) {
	t.Parallel()
	const tree = `{
		"$ref": "#/$defs/node",
		"$defs": {
			"node": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"children": {"type": "array", "items": {"$ref": "#/$defs/node"}}
				},
				"required": ["name"]
			}
		}
	}`
	v := compile(t, tree, relay.SchemaOptions{})
	assert.Empty(t, violations(t, v, `{"name":"root","children":[{"name":"a"},{"name":"b","children":[]}]}`))
	assert.Equal(t, []relay.Violation{
		{Path: "/children/1/name", Reason: "required property is missing"},
	}, violations(t, v, `{"name":"root","children":[{"name":"a"},{"children":[]}]}`))
}

func TestValidate_MaxDepthBoundsReferenceExpansion(t *testing.T) {
	t.Parallel()
	const list = `{"type":"object","properties":{"next":{"$ref":"#"}}}`
	nested := func(depth int) string {
		return strings.Repeat(`{"next":`, depth) + "{}" + strings.Repeat("}", depth)
	}

	v := compile(t, list, relay.SchemaOptions{MaxDepth: 3})
	assert.Empty(t, violations(t, v, nested(3)))
	assert.Equal(t, []relay.Violation{
		{Path: "/next/next/next/next", Reason: "reference depth exceeds 3"},
	}, violations(t, v, nested(4)))
}

func TestCompile_CyclicSchema(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{"self reference", `{"$ref":"#"}`},
		{"two definitions", `{"$ref":"#/$defs/a","$defs":{"a":{"$ref":"#/$defs/b"},"b":{"$ref":"#/$defs/a"}}}`},
		{"through allOf", `{"$defs":{"a":{"allOf":[{"$ref":"#/$defs/a"}]}}}`},
		{"through anyOf", `{"anyOf":[{"type":"string"},{"$ref":"#"}]}`},
		{"through not", `{"not":{"$ref":"#"}}`},
		{"legacy definitions", `{"definitions":{"x":{"$ref":"#/definitions/x"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schema.Compile(relay.SchemaDefinition{Name: "c", Schema: parseSchema(t, tt.doc)})
			assert.ErrorIs(t, err, relay.ErrCyclicSchema)
		})
	}
}

func TestCompile_CycleOfAnyLength(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 3, 10, 100} {
		defs := make([]string, n)
		for i := range n {
			defs[i] = fmt.Sprintf(`"d%d":{"$ref":"#/$defs/d%d"}`, i, (i+1)%n)
		}
		doc := `{"$ref":"#/$defs/d0","$defs":{` + strings.Join(defs, ",") + `}}`
		_, err := schema.Compile(relay.SchemaDefinition{Name: "c", Schema: parseSchema(t, doc)})
		assert.ErrorIs(t, err, relay.ErrCyclicSchema, "cycle length %d", n)
	}
}

func TestValidate_DetectsCycleInProgrammaticSchema(t *testing.T) {
	t.Parallel()
	s := &relay.Schema{}
	s.AllOf = []*relay.Schema{s}
	_, err := schema.Validate(relay.SchemaDefinition{Name: "loop", Schema: s}, 1)
	assert.ErrorIs(t, err, relay.ErrCyclicSchema)
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		def  relay.SchemaDefinition
		want error
	}{
		{"nil schema", relay.SchemaDefinition{Name: "x"}, relay.ErrValidation},
		{"conflicting options", relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{}, Options: relay.SchemaOptions{Strict: true, AllowUnknown: true}}, relay.ErrValidation},
		{"negative depth", relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{}, Options: relay.SchemaOptions{MaxDepth: -1}}, relay.ErrValidation},
		{"unknown reference", relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{Ref: "#/$defs/missing"}}, relay.ErrUnknownReference},
		{"remote reference", relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{Ref: "https://example.com/s.json"}}, relay.ErrUnknownReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schema.Compile(tt.def)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := schema.Compile(relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{Pattern: "("}})
	assert.Error(t, err)
	_, err = schema.Compile(relay.SchemaDefinition{Name: "x", Schema: &relay.Schema{MultipleOf: "0"}})
	assert.Error(t, err)
}

func TestValidateJSON_InvalidDocument(t *testing.T) {
	t.Parallel()
	v := compile(t, `{}`, relay.SchemaOptions{})
	for _, doc := range []string{`{"a":`, `{} {}`, ``} {
		res, err := v.ValidateJSON([]byte(doc))
		require.NoError(t, err)
		require.Len(t, res.Violations, 1, "%q", doc)
		assert.Equal(t, "", res.Violations[0].Path)
		assert.Contains(t, res.Violations[0].Reason, "invalid JSON")
	}
}

func TestValidate_EscapesPointerSegments(t *testing.T) {
	t.Parallel()
	v := compile(t, `{"required":["a/b","c~d"]}`, relay.SchemaOptions{})
	assert.Equal(t, []relay.Violation{
		{Path: "/a~1b", Reason: "required property is missing"},
		{Path: "/c~0d", Reason: "required property is missing"},
	}, violations(t, v, `{}`))
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r, err := schema.NewRegistry(
		relay.SchemaDefinition{Name: "weather", Schema: parseSchema(t, weatherSchema)},
		relay.SchemaDefinition{Name: "any", Schema: &relay.Schema{}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"any", "weather"}, r.Names())

	res, err := r.Validate("weather", json.RawMessage(`{"city":"Oslo"}`))
	require.NoError(t, err)
	assert.Equal(t, "weather", res.Schema)
	assert.Equal(t, []relay.Violation{{Path: "/unit", Reason: "required property is missing"}}, res.Violations)

	_, err = r.Validate("missing", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, relay.ErrSchemaNotFound)

	_, ok := r.Lookup("any")
	assert.True(t, ok)

	_, err = schema.NewRegistry(
		relay.SchemaDefinition{Name: "dup", Schema: &relay.Schema{}},
		relay.SchemaDefinition{Name: "dup", Schema: &relay.Schema{}},
	)
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	t.Parallel()
	r, err := schema.NewRegistry(relay.SchemaDefinition{Name: "weather", Schema: parseSchema(t, weatherSchema)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := fmt.Sprintf(`{"city":"c%d","unit":"celsius","days":%d}`, i, i%14+1)
			res, err := r.Validate("weather", json.RawMessage(doc))
			assert.NoError(t, err)
			assert.True(t, res.Valid(), "%v", res.Violations)
		}()
	}
	wg.Wait()
}
