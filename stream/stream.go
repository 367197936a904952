// Package stream implements the stream controller: it pulls byte chunks
// from a [relay.ChunkSource], decodes frames, classifies them into events,
// accumulates deltas, validates completed structured outputs and exposes
// the result as a [relay.Stream].
//
// All work for one chunk runs to completion before the next chunk is
// awaited. Cancellation and the inactivity timeout are observed only at
// that await.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/delta"
	"github.com/fwojciec/relay/openai"
	"github.com/fwojciec/relay/sse"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Interface compliance check.
var _ relay.Stream = (*Stream)(nil)

// Stream is the controller for one logical response. Next, Result and
// Close must be called from a single goroutine; Cancel may be called from
// any goroutine.
type Stream struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	span   trace.Span

	src relay.ChunkSource
	dec *sse.Decoder
	cls relay.Classifier
	acc *delta.Accumulator
	val relay.Validator
	cfg relay.Config
	log *slog.Logger
	id  string

	state   relay.StreamState
	err     *relay.Error
	result  relay.Result
	pending []relay.Event
	closed  bool
}

// Option configures a [Stream].
type Option func(*Stream)

// WithConfig sets engine limits.
func WithConfig(cfg relay.Config) Option {
	return func(s *Stream) { s.cfg = cfg }
}

// WithValidator sets the validator for tool-call arguments and the final
// output text. Without one, nothing is validated.
func WithValidator(v relay.Validator) Option {
	return func(s *Stream) { s.val = v }
}

// WithLogger replaces the default OpenTelemetry-bridged logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.log = l }
}

// WithClassifier replaces the default Responses API classifier.
func WithClassifier(c relay.Classifier) Option {
	return func(s *Stream) { s.cls = c }
}

// WithStreamID sets the id reported in results, logs and traces.
func WithStreamID(id string) Option {
	return func(s *Stream) { s.id = id }
}

// New creates a [Stream] reading from src. The stream is cancelled when
// ctx is done.
func New(ctx context.Context, src relay.ChunkSource, opts ...Option) (*Stream, error) {
	s := &Stream{
		src:   src,
		acc:   delta.NewAccumulator(),
		log:   logger,
		state: relay.StreamStateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	if s.cls == nil {
		s.cls = openai.NewClassifier()
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.log = s.log.With(slog.String("stream_id", s.id))
	s.dec = sse.NewDecoder(
		sse.WithMaxLineLength(s.cfg.LineLimit()),
		sse.WithWarnHandler(s.warnDropped),
	)

	ctx, s.span = tracer.Start(ctx, "relay.stream", trace.WithAttributes(attribute.String("stream.id", s.id)))
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	s.result.StreamID = s.id
	return s, nil
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Next returns the next event. Events produced from one chunk are returned
// before cancellation is observed. After the terminal event it returns
// io.EOF for completed and refused streams and the recorded *relay.Error
// otherwise.
func (s *Stream) Next() (relay.Event, error) {
	for {
		if len(s.pending) > 0 {
			evt := s.pending[0]
			s.pending = s.pending[1:]
			return evt, nil
		}
		if s.state.Terminal() {
			return nil, s.finalErr()
		}
		s.pump()
	}
}

// All returns an iterator over the remaining events. Iteration stops after
// the first error; io.EOF is not yielded.
func (s *Stream) All() iter.Seq2[relay.Event, error] {
	return func(yield func(relay.Event, error) bool) {
		for {
			evt, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(evt, err) || err != nil {
				return
			}
		}
	}
}

// State returns the current stream state.
func (s *Stream) State() relay.StreamState {
	return s.state
}

// Result returns a snapshot of the aggregate. See [relay.Stream].
func (s *Stream) Result() (relay.Result, error) {
	if s.state == relay.StreamStateIdle {
		return relay.Result{}, relay.ErrStreamNotReady
	}
	r := s.result
	r.Status = relay.StatusOf(s.state)
	r.Outputs = slices.Clone(r.Outputs)
	r.ToolCalls = slices.Clone(r.ToolCalls)
	r.Partial = slices.Clone(r.Partial)
	if s.err != nil {
		r.Err = s.err
	}
	return r, nil
}

// Cancel requests cancellation. It is observed at the next chunk await.
func (s *Stream) Cancel() {
	s.cancel(nil)
}

// Close cancels the stream if it has not terminated, discards undelivered
// events and releases the chunk source.
func (s *Stream) Close() error {
	s.pending = nil
	if !s.state.Terminal() {
		s.terminate(relay.StreamStateCancelled, relay.Errorf(relay.KindCancelled, "%w", relay.ErrStreamClosed))
	}
	s.cancel(relay.ErrStreamClosed)
	return s.release()
}

func (s *Stream) release() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

func (s *Stream) finalErr() error {
	switch s.state {
	case relay.StreamStateCompleted, relay.StreamStateRefused:
		return io.EOF
	default:
		return s.err
	}
}

// pump awaits one chunk and processes it completely.
func (s *Stream) pump() {
	if s.ctx.Err() != nil {
		s.cancelled()
		return
	}

	ctx := s.ctx
	if d := s.cfg.InactivityTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, d)
		defer cancel()
	}

	chunk, err := s.src.Next(ctx)
	if len(chunk) > 0 {
		s.feed(chunk)
	}
	if err == nil || s.state.Terminal() {
		return
	}
	switch {
	case err == io.EOF:
		s.endOfInput()
	case s.ctx.Err() != nil:
		s.cancelled()
	case ctx.Err() != nil:
		s.fail(relay.Errorf(relay.KindTransport, "%w: no chunk within %s", relay.ErrInactivityTimeout, s.cfg.InactivityTimeout))
	default:
		s.fail(relay.Errorf(relay.KindTransport, "read chunk: %w", err))
	}
}

func (s *Stream) feed(chunk []byte) {
	frames, err := s.dec.Feed(chunk)
	s.handleFrames(frames)
	if err != nil && !s.state.Terminal() {
		s.fail(relay.Errorf(relay.KindDecode, "%w", err))
	}
}

func (s *Stream) endOfInput() {
	frames, err := s.dec.Flush()
	s.handleFrames(frames)
	if s.state.Terminal() {
		return
	}
	if err != nil {
		s.fail(relay.Errorf(relay.KindDecode, "%w", err))
		return
	}
	s.unexpectedEnd("transport closed")
}

func (s *Stream) handleFrames(frames []relay.Frame) {
	for i, f := range frames {
		if s.state.Terminal() {
			discarded := len(frames) - i
			droppedFrames.Add(s.ctx, int64(discarded), metric.WithAttributes(attribute.String("reason", "after_terminal")))
			s.log.Debug("discarded frames after terminal event", slog.Int("count", discarded))
			return
		}
		s.handleFrame(f)
	}
}

func (s *Stream) handleFrame(f relay.Frame) {
	if s.state == relay.StreamStateIdle {
		s.state = relay.StreamStateStreaming
	}
	evt, err := s.cls.Classify(f)
	switch {
	case errors.Is(err, relay.ErrEndOfStream):
		s.unexpectedEnd("end-of-stream marker")
		return
	case errors.Is(err, relay.ErrUnrecognizedEvent):
		unrecognizedEvents.Add(s.ctx, 1, metric.WithAttributes(attribute.String("event", f.Event)))
		s.log.Warn("skipped unrecognized event", slog.String("event", f.Event))
		return
	case err != nil:
		s.fail(relay.Errorf(relay.KindDecode, "%w", err))
		return
	case evt == nil:
		return
	}
	s.log.Debug("event", slog.String("type", fmt.Sprintf("%T", evt)))
	s.apply(evt)
}

// apply runs one event through the accumulator and queues what the caller
// sees.
func (s *Stream) apply(evt relay.Event) {
	out, err := s.acc.Apply(evt)
	if err != nil {
		s.fail(relay.Errorf(relay.KindProtocol, "%w", err))
		return
	}

	switch o := out.(type) {
	case relay.TextOutput:
		s.result.Outputs = append(s.result.Outputs, o)
		evt = relay.EventOutputTextCompleted{ItemIndex: o.ItemIndex, ContentIndex: o.ContentIndex, Text: o.Text}
	case relay.ToolCall:
		s.validateCall(&o)
		s.result.ToolCalls = append(s.result.ToolCalls, o)
		evt = relay.EventFunctionCallCompleted{CallID: o.ID, Name: o.Name, Arguments: o.Arguments}
	}

	switch e := evt.(type) {
	case relay.EventStreamStarted:
		s.result.ResponseID = e.ResponseID
		s.span.SetAttributes(attribute.String("response.id", e.ResponseID))
	case relay.EventResponseCompleted:
		s.complete(e)
		return
	case relay.EventResponseFailed:
		s.pending = append(s.pending, evt)
		s.result.Reason = e.Reason
		s.terminate(relay.StreamStateFailed, relay.Errorf(relay.KindRemote, "%w: %s", relay.ErrResponseFailed, describeFailure(e)))
		return
	case relay.EventRefused:
		s.refuse(e)
		return
	}
	s.pending = append(s.pending, evt)
}

// complete handles the successful terminal event. Refusal text without
// its done event turns the outcome into a refusal. Open text buffers are
// finalized; an open function call downgrades the outcome to failed.
func (s *Stream) complete(e relay.EventResponseCompleted) {
	if e.ResponseID != "" {
		s.result.ResponseID = e.ResponseID
	}
	s.result.Usage = e.Usage
	if refusal := s.acc.Refusal(); refusal != "" {
		s.refuse(relay.EventRefused{Reason: refusal})
		return
	}

	for _, t := range s.acc.FinalizeText() {
		s.result.Outputs = append(s.result.Outputs, t)
		s.pending = append(s.pending, relay.EventOutputTextCompleted{ItemIndex: t.ItemIndex, ContentIndex: t.ContentIndex, Text: t.Text})
	}

	if open := s.acc.OpenCalls(); len(open) > 0 {
		s.fail(relay.Errorf(relay.KindProtocol, "%w: %s at response completion", relay.ErrUnfinishedToolCall, quoteAll(open)))
		return
	}
	s.validateOutput()
	s.pending = append(s.pending, e)
	s.terminate(relay.StreamStateCompleted, nil)
}

func (s *Stream) refuse(e relay.EventRefused) {
	if e.Reason == "" {
		e.Reason = s.acc.Refusal()
	}
	s.acc.Discard()
	s.result.ToolCalls = nil
	s.result.Reason = e.Reason
	s.pending = append(s.pending, e)
	s.terminate(relay.StreamStateRefused, nil)
}

func (s *Stream) unexpectedEnd(cause string) {
	if open := s.acc.OpenCalls(); len(open) > 0 {
		s.fail(relay.Errorf(relay.KindProtocol, "%w: %w: %s (%s)", relay.ErrUnexpectedStreamEnd, relay.ErrUnfinishedToolCall, quoteAll(open), cause))
		return
	}
	s.fail(relay.Errorf(relay.KindProtocol, "%w (%s)", relay.ErrUnexpectedStreamEnd, cause))
}

func (s *Stream) cancelled() {
	cause := context.Cause(s.ctx)
	if cause == nil {
		cause = context.Canceled
	}
	s.terminate(relay.StreamStateCancelled, relay.Errorf(relay.KindCancelled, "%w", cause))
}

func (s *Stream) fail(err *relay.Error) {
	if s.result.Reason == "" {
		s.result.Reason = err.Err.Error()
	}
	s.terminate(relay.StreamStateFailed, err)
}

// terminate records the terminal state once. Failed and cancelled streams
// keep open buffers as best-effort partial results.
func (s *Stream) terminate(state relay.StreamState, err *relay.Error) {
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.err = err
	if err != nil {
		s.result.Partial = s.acc.Open()
		if s.result.Reason == "" {
			s.result.Reason = err.Err.Error()
		}
	}
	status := relay.StatusOf(state)
	outcomes.Add(s.ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))

	names := make([]string, len(s.result.ToolCalls))
	for i, c := range s.result.ToolCalls {
		names[i] = c.Name
	}
	s.span.SetAttributes(
		attribute.String("stream.status", string(status)),
		attribute.StringSlice("stream.tool_calls", names),
	)
	attrs := []any{slog.String("status", string(status)), slog.Int("tool_calls", len(names))}
	switch state {
	case relay.StreamStateFailed:
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.log.Error("stream failed", append(attrs, slog.String("kind", string(err.Kind)), slog.Any("error", err.Err))...)
	case relay.StreamStateCancelled:
		s.span.AddEvent("cancelled")
		s.log.Info("stream cancelled", append(attrs, slog.Any("cause", err.Err))...)
	case relay.StreamStateRefused:
		s.span.AddEvent("refused")
		s.log.Info("stream refused", attrs...)
	default:
		s.span.SetStatus(codes.Ok, "")
		s.log.Info("stream completed", append(attrs, slog.Int("tokens", s.result.Usage.Total()))...)
	}
	s.span.End()

	if rerr := s.release(); rerr != nil {
		s.log.Warn("close chunk source", slog.Any("error", rerr))
	}
}

// validateCall attaches schema validation for the call's function name.
func (s *Stream) validateCall(c *relay.ToolCall) {
	if s.val == nil {
		return
	}
	res, err := s.val.Validate(c.Name, c.Arguments)
	if errors.Is(err, relay.ErrSchemaNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("validate tool call", slog.String("call_id", c.ID), slog.Any("error", err))
		return
	}
	c.Validation = &res
	s.recordViolations(res, slog.String("call_id", c.ID))
}

func (s *Stream) validateOutput() {
	if s.val == nil || s.cfg.OutputSchema == "" {
		return
	}
	res, err := s.val.Validate(s.cfg.OutputSchema, json.RawMessage(s.result.Text()))
	if err != nil {
		s.log.Warn("validate output", slog.String("schema", s.cfg.OutputSchema), slog.Any("error", err))
		return
	}
	s.result.OutputValidation = &res
	s.recordViolations(res, slog.String("output", "text"))
}

func (s *Stream) recordViolations(res relay.ValidationResult, attr slog.Attr) {
	if res.Valid() {
		return
	}
	schemaViolations.Add(s.ctx, int64(len(res.Violations)), metric.WithAttributes(attribute.String("schema", res.Schema)))
	s.log.Warn("schema violations", attr, slog.String("schema", res.Schema), slog.Int("count", len(res.Violations)))
}

func (s *Stream) warnDropped(err error) {
	droppedFrames.Add(s.ctx, 1, metric.WithAttributes(attribute.String("reason", "missing_data")))
	s.log.Warn("dropped frame", slog.Any("error", err))
}

func describeFailure(e relay.EventResponseFailed) string {
	if e.Code == "" {
		return e.Reason
	}
	return e.Code + ": " + e.Reason
}

func quoteAll(ids []string) string {
	q := make([]string, len(ids))
	for i, id := range ids {
		q[i] = fmt.Sprintf("call %q", id)
	}
	return strings.Join(q, ", ")
}
