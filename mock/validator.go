package mock

import (
	"encoding/json"

	"github.com/fwojciec/relay"
)

// Validator is a test double for relay.Validator.
// Set ValidateFn before calling Validate.
type Validator struct {
	ValidateFn func(name string, data json.RawMessage) (relay.ValidationResult, error)
}

// Validate delegates to ValidateFn.
func (v *Validator) Validate(name string, data json.RawMessage) (relay.ValidationResult, error) {
	return v.ValidateFn(name, data)
}
