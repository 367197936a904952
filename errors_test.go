package relay_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorf(t *testing.T) {
	t.Parallel()
	err := relay.Errorf(relay.KindProtocol, "call %q: %w", "call_1", relay.ErrDuplicateCompletion)
	assert.Equal(t, `protocol: call "call_1": duplicate completion`, err.Error())
	assert.ErrorIs(t, err, relay.ErrDuplicateCompletion)
	assert.Equal(t, relay.KindProtocol, err.Kind)
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	inner := relay.Errorf(relay.KindTransport, "read: %w", errors.New("connection reset"))
	wrapped := fmt.Errorf("stream s1: %w", inner)

	assert.Equal(t, relay.KindTransport, relay.KindOf(wrapped))
	assert.Equal(t, relay.ErrorKind(""), relay.KindOf(errors.New("plain")))
	assert.Equal(t, relay.ErrorKind(""), relay.KindOf(nil))

	var target *relay.Error
	require.ErrorAs(t, wrapped, &target)
	assert.Same(t, inner, target)
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	err := &relay.Error{Kind: relay.KindCancelled, Err: relay.ErrStreamClosed}
	assert.ErrorIs(t, err, relay.ErrStreamClosed)
	assert.Equal(t, "cancelled: stream closed", err.Error())
}
