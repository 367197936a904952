package schema

import (
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/fwojciec/relay"
)

// bound is one numeric range keyword of a schema.
type bound struct {
	keyword string
	num     string
	ok      func(cmp int) bool // reports whether value.Cmp(bound) satisfies the keyword
	reason  string
}

func bounds(s *relay.Schema) []bound {
	return []bound{
		{"minimum", s.Minimum.String(), func(c int) bool { return c >= 0 }, "must be >= "},
		{"exclusiveMinimum", s.ExclusiveMinimum.String(), func(c int) bool { return c > 0 }, "must be > "},
		{"maximum", s.Maximum.String(), func(c int) bool { return c <= 0 }, "must be <= "},
		{"exclusiveMaximum", s.ExclusiveMaximum.String(), func(c int) bool { return c < 0 }, "must be < "},
	}
}

// maxExponent bounds the decimal exponent accepted for exact arithmetic.
// Larger exponents are valid JSON but would need unbounded memory.
const maxExponent = 100_000

var (
	errInvalidNumber = errors.New("invalid number")
	errExponentRange = errors.New("number exponent out of supported range")
)

// parseRat parses decimal text, with optional exponent, exactly.
func parseRat(s string) (*big.Rat, error) {
	if s == "" {
		return nil, errInvalidNumber
	}
	if _, exp, ok := splitExponent(s); ok {
		if exp > maxExponent || exp < -maxExponent {
			return nil, errExponentRange
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errInvalidNumber
	}
	return r, nil
}

// splitExponent splits number text at its exponent marker. Exponents that
// overflow int64 saturate.
func splitExponent(s string) (mantissa string, exp int64, ok bool) {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return s, 0, false
	}
	exp, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return s, 0, false
	}
	return s[:i], exp, true
}

func isInteger(n json.Number) bool {
	r, err := parseRat(n.String())
	if errors.Is(err, errExponentRange) {
		return hugeIsInteger(n.String())
	}
	return err == nil && r.IsInt()
}

// hugeIsInteger decides integrality from the text of a number whose
// exponent is out of range: a positive exponent covers every fractional
// digit, a negative one leaves a fraction unless the mantissa is zero.
func hugeIsInteger(s string) bool {
	mantissa, exp, _ := splitExponent(s)
	digits := strings.Trim(strings.Replace(strings.TrimLeft(mantissa, "-"), ".", "", 1), "0")
	if digits == "" {
		return true
	}
	if exp < 0 {
		return false
	}
	_, frac, _ := strings.Cut(mantissa, ".")
	return exp >= int64(len(strings.TrimRight(frac, "0")))
}

// checkNumber appends violations for the numeric keywords of s.
// A value that cannot be compared exactly is a violation only when the
// schema has a keyword to compare it against.
func (w *walker) checkNumber(s *relay.Schema, n json.Number, path string) {
	var active []bound
	for _, b := range bounds(s) {
		if b.num != "" {
			active = append(active, b)
		}
	}
	m := s.MultipleOf.String()
	if len(active) == 0 && m == "" {
		return
	}
	val, err := parseRat(n.String())
	if err != nil {
		w.add(path, err.Error()+" "+n.String())
		return
	}
	for _, b := range active {
		limit, _ := parseRat(b.num)
		if !b.ok(val.Cmp(limit)) {
			w.add(path, b.reason+b.num)
		}
	}
	if m != "" {
		div, _ := parseRat(m)
		if !new(big.Rat).Quo(val, div).IsInt() {
			w.add(path, "must be a multiple of "+m)
		}
	}
}

// equal compares decoded JSON values; numbers compare by value.
func equal(a, b any) bool {
	switch x := a.(type) {
	case json.Number:
		y, ok := b.(json.Number)
		if !ok {
			return false
		}
		rx, errx := parseRat(x.String())
		ry, erry := parseRat(y.String())
		if errx != nil || erry != nil {
			return x == y
		}
		return rx.Cmp(ry) == 0
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equal(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
