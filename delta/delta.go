// Package delta merges streamed fragments into completed values.
//
// An [Accumulator] owns one buffer per logical unit: the output item and
// content part indexes for text, and the call id for function calls.
// Buffers are created by a started event or by the first delta, receive
// fragments in sequence order, and are finalized exactly once by the
// matching completed event. Buffers are fully independent; fragments of
// one key never reach another.
package delta

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/fwojciec/relay"
)

type keyKind int

const (
	kindText keyKind = iota
	kindCall
)

type key struct {
	kind    keyKind
	index   int    // text: output item
	content int    // text: content part
	call    string // function call
}

func textKey(item, part int) key {
	return key{kind: kindText, index: item, content: part}
}

func (k key) String() string {
	if k.kind == kindText {
		return fmt.Sprintf("output item %d part %d", k.index, k.content)
	}
	return fmt.Sprintf("call %q", k.call)
}

// buffer tracks the state of one value being assembled.
type buffer struct {
	key       key
	name      string
	fragments []string
	seq       int64 // last accepted sequence number
	order     int   // creation order, for deterministic reporting
}

func (b *buffer) content() string {
	return strings.Join(b.fragments, "")
}

// Accumulator holds the live buffers of one stream. It is not safe for
// concurrent use; a stream mutates it from its single consuming path.
type Accumulator struct {
	live      map[key]*buffer
	completed map[key]bool
	names     map[string]string // call id -> function name, kept after completion
	next      int
	refusal   strings.Builder
}

// NewAccumulator creates an empty [Accumulator].
func NewAccumulator() *Accumulator {
	return &Accumulator{
		live:      make(map[key]*buffer),
		completed: make(map[key]bool),
		names:     make(map[string]string),
	}
}

// Apply merges one event. It returns the finalized value for completed
// events and nil otherwise. Protocol violations are returned as errors and
// leave every buffer unchanged.
func (a *Accumulator) Apply(evt relay.Event) (relay.Output, error) {
	switch e := evt.(type) {
	case relay.EventOutputTextStarted:
		_, err := a.start(textKey(e.ItemIndex, e.ContentIndex), "")
		return nil, err
	case relay.EventOutputTextDelta:
		return nil, a.append(textKey(e.ItemIndex, e.ContentIndex), e.Delta, e.Sequence)
	case relay.EventOutputTextCompleted:
		b, err := a.finish(textKey(e.ItemIndex, e.ContentIndex))
		if err != nil {
			return nil, err
		}
		text := b.content()
		if len(b.fragments) == 0 {
			text = e.Text
		}
		return relay.TextOutput{ItemIndex: e.ItemIndex, ContentIndex: e.ContentIndex, Text: text}, nil
	case relay.EventFunctionCallStarted:
		_, err := a.start(key{kind: kindCall, call: e.CallID}, e.Name)
		return nil, err
	case relay.EventFunctionCallArgumentsDelta:
		return nil, a.append(key{kind: kindCall, call: e.CallID}, e.Delta, e.Sequence)
	case relay.EventFunctionCallCompleted:
		b, err := a.finish(key{kind: kindCall, call: e.CallID})
		if err != nil {
			return nil, err
		}
		name := b.name
		if name == "" {
			name = e.Name
		}
		args := json.RawMessage(b.content())
		if len(b.fragments) == 0 {
			args = e.Arguments
		}
		if len(args) == 0 {
			args = nil
		}
		return relay.ToolCall{ID: e.CallID, Name: name, Arguments: args}, nil
	case relay.EventRefusalDelta:
		a.refusal.WriteString(e.Delta)
		return nil, nil
	case relay.EventStreamStarted, relay.EventResponseCompleted,
		relay.EventResponseFailed, relay.EventRefused:
		return nil, nil
	default:
		return nil, fmt.Errorf("delta: unhandled event %T", evt)
	}
}

func (a *Accumulator) start(k key, name string) (*buffer, error) {
	if _, ok := a.live[k]; ok || a.completed[k] {
		return nil, fmt.Errorf("delta: %s: %w", k, relay.ErrDuplicateStart)
	}
	b := a.open(k)
	b.name = name
	if k.kind == kindCall && name != "" {
		a.names[k.call] = name
	}
	return b, nil
}

func (a *Accumulator) open(k key) *buffer {
	b := &buffer{key: k, order: a.next}
	a.next++
	a.live[k] = b
	return b
}

func (a *Accumulator) append(k key, fragment string, seq int64) error {
	if a.completed[k] {
		return fmt.Errorf("delta: %s: %w", k, relay.ErrDeltaAfterCompletion)
	}
	b, ok := a.live[k]
	var last int64
	if ok {
		last = b.seq
	}
	switch {
	case seq == 0:
		seq = last + 1
	case seq <= last:
		return fmt.Errorf("delta: %s: %w: sequence %d after %d", k, relay.ErrOutOfOrderDelta, seq, last)
	}
	if !ok {
		b = a.open(k)
	}
	b.fragments = append(b.fragments, fragment)
	b.seq = seq
	return nil
}

func (a *Accumulator) finish(k key) (*buffer, error) {
	if a.completed[k] {
		return nil, fmt.Errorf("delta: %s: %w", k, relay.ErrDuplicateCompletion)
	}
	b, ok := a.live[k]
	if !ok {
		return nil, fmt.Errorf("delta: %s: %w", k, relay.ErrUnknownKey)
	}
	delete(a.live, k)
	a.completed[k] = true
	return b, nil
}

// Name returns the function name recorded for a call id.
func (a *Accumulator) Name(callID string) string {
	return a.names[callID]
}

// Refusal returns the refusal text accumulated so far.
func (a *Accumulator) Refusal() string {
	return a.refusal.String()
}

// Len returns the number of open buffers.
func (a *Accumulator) Len() int {
	return len(a.live)
}

// OpenCalls returns the ids of function calls still open, in open order.
func (a *Accumulator) OpenCalls() []string {
	var ids []string
	for _, b := range a.sorted() {
		if b.key.kind == kindCall {
			ids = append(ids, b.key.call)
		}
	}
	return ids
}

// Open returns the best-effort content of every open buffer, in open
// order. Buffers stay open.
func (a *Accumulator) Open() []relay.Partial {
	var out []relay.Partial
	for _, b := range a.sorted() {
		p := relay.Partial{Content: b.content()}
		if b.key.kind == kindCall {
			p.CallID = b.key.call
			p.Name = b.name
		} else {
			p.ItemIndex = b.key.index
			p.ContentIndex = b.key.content
		}
		out = append(out, p)
	}
	return out
}

// FinalizeText completes every open text buffer with its accumulated
// content, in open order. Function call buffers stay open.
func (a *Accumulator) FinalizeText() []relay.TextOutput {
	var out []relay.TextOutput
	for _, b := range a.sorted() {
		if b.key.kind != kindText {
			continue
		}
		delete(a.live, b.key)
		a.completed[b.key] = true
		out = append(out, relay.TextOutput{ItemIndex: b.key.index, ContentIndex: b.key.content, Text: b.content()})
	}
	return out
}

// Discard drops every open buffer.
func (a *Accumulator) Discard() {
	clear(a.live)
}

func (a *Accumulator) sorted() []*buffer {
	bs := make([]*buffer, 0, len(a.live))
	for _, b := range a.live {
		bs = append(bs, b)
	}
	slices.SortFunc(bs, func(x, y *buffer) int { return cmp.Compare(x.order, y.order) })
	return bs
}
