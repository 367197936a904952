package relay

import (
	"fmt"
	"time"
)

// DefaultMaxLineLength bounds a single field line when Config leaves it zero.
const DefaultMaxLineLength = 1 << 20

// DefaultMaxDepth bounds reference expansion when SchemaOptions leaves it zero.
const DefaultMaxDepth = 32

// Config carries engine limits. Zero values select defaults.
type Config struct {
	MaxLineLength     int           // 0 = DefaultMaxLineLength
	InactivityTimeout time.Duration // 0 = no inactivity timeout
	OutputSchema      string        // schema name for the final output text; empty = none
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxLineLength < 0 {
		return fmt.Errorf("max_line_length must be non-negative, got %d: %w", c.MaxLineLength, ErrValidation)
	}
	if c.InactivityTimeout < 0 {
		return fmt.Errorf("inactivity_timeout must be non-negative, got %s: %w", c.InactivityTimeout, ErrValidation)
	}
	return nil
}

// LineLimit returns the effective maximum field line length.
func (c Config) LineLimit() int {
	if c.MaxLineLength == 0 {
		return DefaultMaxLineLength
	}
	return c.MaxLineLength
}

// SchemaOptions governs how a registered schema treats its input.
//
// Strict rejects properties not declared by an object schema; AllowUnknown
// ignores them even where the schema sets additionalProperties to false.
// With neither set, an object's own additionalProperties decides and
// undeclared properties are otherwise ignored.
type SchemaOptions struct {
	Strict       bool
	AllowUnknown bool
	MaxDepth     int // bound on nested $ref expansion; 0 = DefaultMaxDepth
}

// Validate checks the options.
func (o SchemaOptions) Validate() error {
	if o.Strict && o.AllowUnknown {
		return fmt.Errorf("strict and allow_unknown are mutually exclusive: %w", ErrValidation)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative, got %d: %w", o.MaxDepth, ErrValidation)
	}
	return nil
}

// DepthLimit returns the effective reference expansion bound.
func (o SchemaOptions) DepthLimit() int {
	if o.MaxDepth == 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}
