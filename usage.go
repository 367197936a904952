package relay

// Usage tracks token consumption reported by the terminal event.
//
// Invariant:
//
//	InputTokens     = non-cached input tokens
//	CacheReadTokens = input tokens served from cache
//	OutputTokens    = all output tokens, ReasoningTokens included
//
// Total input tokens = InputTokens + CacheReadTokens. The Responses API
// reports cached tokens as a subset of input_tokens; classifiers subtract
// and clamp to zero: max(0, input_tokens - cached_tokens).
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	ReasoningTokens int
}

// Total returns all input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.CacheReadTokens + u.OutputTokens
}
