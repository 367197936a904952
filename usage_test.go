package relay_test

import (
	"testing"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/assert"
)

func TestUsage_ZeroValue(t *testing.T) {
	t.Parallel()
	var u relay.Usage
	assert.Equal(t, 0, u.Total())
}

func TestUsage_Total(t *testing.T) {
	t.Parallel()
	u := relay.Usage{InputTokens: 80, CacheReadTokens: 20, OutputTokens: 30, ReasoningTokens: 12}
	assert.Equal(t, 130, u.Total(), "reasoning tokens are part of output tokens")
}

func TestStreamState_ZeroValue(t *testing.T) {
	t.Parallel()
	var s relay.StreamState
	assert.Equal(t, relay.StreamStateIdle, s)
	assert.False(t, s.Terminal())
}

func TestStreamState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state    relay.StreamState
		name     string
		terminal bool
		status   relay.Status
	}{
		{relay.StreamStateIdle, "idle", false, relay.StatusInProgress},
		{relay.StreamStateStreaming, "streaming", false, relay.StatusInProgress},
		{relay.StreamStateCompleted, "completed", true, relay.StatusCompleted},
		{relay.StreamStateFailed, "failed", true, relay.StatusFailed},
		{relay.StreamStateCancelled, "cancelled", true, relay.StatusCancelled},
		{relay.StreamStateRefused, "refused", true, relay.StatusRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
			assert.Equal(t, tt.status, relay.StatusOf(tt.state))
		})
	}
	assert.Equal(t, "unknown", relay.StreamState(99).String())
}
