// Package sse decodes the line-oriented event framing used by streaming
// response APIs into [relay.Frame] values.
//
// A line "event: NAME" sets the frame's event name, each "data: VALUE" line
// appends to the payload (joined with newlines), "id: VALUE" sets the frame
// id, lines starting with ':' are comments, and a blank line ends the frame.
// One optional space after the colon is stripped and CRLF line endings are
// accepted. The decoder performs no I/O.
package sse

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/relay"
)

// Decoder turns byte chunks with arbitrary boundaries into frames.
// It is single-pass and not safe for concurrent use.
type Decoder struct {
	maxLine int
	warn    func(error)

	buf []byte // bytes of the current, not yet terminated line

	event     string
	id        string
	data      strings.Builder
	hasData   bool
	hasFields bool

	err error // sticky fatal error
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithMaxLineLength bounds the length of a single field line. Longer lines
// fail the decode with [relay.ErrFrameTooLarge].
func WithMaxLineLength(n int) Option {
	return func(d *Decoder) { d.maxLine = n }
}

// WithWarnHandler receives non-fatal decode warnings, such as frames
// dropped for lacking a data field.
func WithWarnHandler(fn func(error)) Option {
	return func(d *Decoder) { d.warn = fn }
}

// NewDecoder creates a [Decoder] with the given options.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxLine: relay.DefaultMaxLineLength}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed appends chunk and returns every frame it completes. A trailing
// partial frame stays buffered for the next call. On a fatal error Feed
// returns the frames completed before the offending line together with the
// error, and every later call returns the same error.
func (d *Decoder) Feed(chunk []byte) ([]relay.Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, chunk...)

	var frames []relay.Frame
	rest := d.buf
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(rest[:i], []byte{'\r'})
		rest = rest[i+1:]
		if err := d.checkLen(line); err != nil {
			return frames, err
		}
		if f, ok := d.line(line); ok {
			frames = append(frames, f)
		}
	}
	if err := d.checkLen(rest); err != nil {
		return frames, err
	}
	// Copy the partial line so the consumed prefix can be collected.
	d.buf = append([]byte(nil), rest...)
	return frames, nil
}

// Flush ends the input: a buffered partial line is processed and a frame
// still holding data is returned, as if a blank line had followed.
func (d *Decoder) Flush() ([]relay.Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	var frames []relay.Frame
	if len(d.buf) > 0 {
		line := bytes.TrimSuffix(d.buf, []byte{'\r'})
		d.buf = nil
		if f, ok := d.line(line); ok {
			frames = append(frames, f)
		}
	}
	if f, ok := d.dispatch(); ok {
		frames = append(frames, f)
	}
	return frames, nil
}

func (d *Decoder) checkLen(line []byte) error {
	if len(line) <= d.maxLine {
		return nil
	}
	d.err = fmt.Errorf("sse: line of %d bytes exceeds limit of %d: %w", len(line), d.maxLine, relay.ErrFrameTooLarge)
	d.buf = nil
	return d.err
}

// line processes one line and reports a frame when the line completes one.
func (d *Decoder) line(line []byte) (relay.Frame, bool) {
	if len(line) == 0 {
		return d.dispatch()
	}
	if line[0] == ':' {
		return relay.Frame{}, false
	}

	field, value := line, []byte(nil)
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field, value = line[:i], line[i+1:]
		value = bytes.TrimPrefix(value, []byte{' '})
	}

	switch string(field) {
	case "event":
		d.event = string(value)
		d.hasFields = true
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.Write(value)
		d.hasData = true
		d.hasFields = true
	case "id":
		d.id = string(value)
		d.hasFields = true
	default:
		// "retry" and unknown fields are ignored.
	}
	return relay.Frame{}, false
}

// dispatch completes the current frame and resets field state.
func (d *Decoder) dispatch() (relay.Frame, bool) {
	defer d.reset()
	if !d.hasFields {
		// Blank keep-alive lines or comment-only blocks.
		return relay.Frame{}, false
	}
	if !d.hasData {
		if d.warn != nil {
			d.warn(fmt.Errorf("sse: dropped frame (event %q): %w", d.event, relay.ErrMissingData))
		}
		return relay.Frame{}, false
	}
	return relay.Frame{Event: d.event, Data: d.data.String(), ID: d.id}, true
}

func (d *Decoder) reset() {
	d.event = ""
	d.id = ""
	d.data.Reset()
	d.hasData = false
	d.hasFields = false
}

// Reader decodes frames from an [io.Reader] one at a time.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	buf     []byte
	pending []relay.Frame
	eof     bool
}

// NewReader creates a [Reader] over r. Options configure the underlying
// [Decoder].
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{r: r, dec: NewDecoder(opts...), buf: make([]byte, 4096)}
}

// Next returns the next frame, or io.EOF once the input is exhausted.
func (r *Reader) Next() (relay.Frame, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return relay.Frame{}, io.EOF
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			frames, ferr := r.dec.Feed(r.buf[:n])
			r.pending = append(r.pending, frames...)
			if ferr != nil && len(r.pending) == 0 {
				return relay.Frame{}, ferr
			}
		}
		if err == io.EOF {
			r.eof = true
			frames, ferr := r.dec.Flush()
			r.pending = append(r.pending, frames...)
			if ferr != nil && len(r.pending) == 0 {
				return relay.Frame{}, ferr
			}
		} else if err != nil {
			return relay.Frame{}, fmt.Errorf("sse: %w", err)
		}
	}
	f := r.pending[0]
	r.pending = r.pending[1:]
	return f, nil
}
