package mock

import "github.com/fwojciec/relay"

// Interface compliance check.
var _ relay.Stream = (*Stream)(nil)

// Stream is a test double for relay.Stream.
// Set the function fields for the methods you need. NextFn and ResultFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because test code commonly calls defer stream.Close().
type Stream struct {
	NextFn   func() (relay.Event, error)
	StateFn  func() relay.StreamState
	ResultFn func() (relay.Result, error)
	CloseFn  func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (relay.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateIdle when StateFn is nil.
func (s *Stream) State() relay.StreamState {
	if s.StateFn == nil {
		return relay.StreamStateIdle
	}
	return s.StateFn()
}

// Result delegates to ResultFn.
func (s *Stream) Result() (relay.Result, error) {
	return s.ResultFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
