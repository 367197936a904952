package stream

import (
	"context"
	"io"
	"sync"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.ChunkSource = (*ReaderSource)(nil)

// DefaultChunkSize is the read buffer size of a [ReaderSource].
const DefaultChunkSize = 4096

// ReaderSource adapts an [io.Reader] to [relay.ChunkSource]. A background
// goroutine performs the blocking reads so that Next can honor context
// cancellation; Close stops it and closes the reader if it is an
// [io.Closer].
type ReaderSource struct {
	r    io.Reader
	size int

	start  sync.Once
	stop   sync.Once
	chunks chan readResult
	done   chan struct{}
}

type readResult struct {
	data []byte
	err  error
}

// FromReader creates a [ReaderSource] reading chunks of at most size bytes.
// A size of zero or less uses [DefaultChunkSize].
func FromReader(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ReaderSource{
		r:      r,
		size:   size,
		chunks: make(chan readResult),
		done:   make(chan struct{}),
	}
}

// Next returns the next chunk, io.EOF at the end of input, or ctx.Err()
// when ctx is done first.
func (rs *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-rs.done:
		return nil, relay.ErrStreamClosed
	default:
	}
	rs.start.Do(func() { go rs.read() })
	select {
	case res, ok := <-rs.chunks:
		if !ok {
			return nil, io.EOF
		}
		return res.data, res.err
	case <-rs.done:
		return nil, relay.ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (rs *ReaderSource) read() {
	defer close(rs.chunks)
	for {
		buf := make([]byte, rs.size)
		n, err := rs.r.Read(buf)
		if n > 0 {
			select {
			case rs.chunks <- readResult{data: buf[:n]}:
			case <-rs.done:
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			select {
			case rs.chunks <- readResult{err: err}:
			case <-rs.done:
			}
			return
		}
	}
}

// Close stops reading. It is safe to call more than once.
func (rs *ReaderSource) Close() error {
	var err error
	rs.stop.Do(func() {
		close(rs.done)
		if c, ok := rs.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
