// Package mock provides test doubles for relay interfaces using function fields.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.ChunkSource = (*ChunkSource)(nil)
	_ relay.Classifier  = (*Classifier)(nil)
	_ relay.Validator   = (*Validator)(nil)
)

// ChunkSource is a test double for relay.ChunkSource.
// Set NextFn before calling Next. CloseFn is nil-safe.
type ChunkSource struct {
	NextFn  func(ctx context.Context) ([]byte, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *ChunkSource) Next(ctx context.Context) ([]byte, error) {
	return s.NextFn(ctx)
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *ChunkSource) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Chunks returns a ChunkSource that yields each chunk in order, then
// io.EOF. It honors ctx cancellation like a real transport.
func Chunks(chunks ...string) *ChunkSource {
	var mu sync.Mutex
	i := 0
	return &ChunkSource{
		NextFn: func(ctx context.Context) ([]byte, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			mu.Lock()
			defer mu.Unlock()
			if i >= len(chunks) {
				return nil, io.EOF
			}
			c := chunks[i]
			i++
			return []byte(c), nil
		},
	}
}

// Classifier is a test double for relay.Classifier.
// Set ClassifyFn before calling Classify.
type Classifier struct {
	ClassifyFn func(f relay.Frame) (relay.Event, error)
}

// Classify delegates to ClassifyFn.
func (c *Classifier) Classify(f relay.Frame) (relay.Event, error) {
	return c.ClassifyFn(f)
}
