package relay

// DoneSentinel is the data payload that signals logical end-of-stream.
const DoneSentinel = "[DONE]"

// Frame is one decoded unit of the line-oriented event framing.
// Multiple data lines are joined with a newline in source order.
type Frame struct {
	Event string // value of the last "event:" line, empty if none
	Data  string
	ID    string // value of the last "id:" line, empty if none
}

// IsTerminator reports whether the frame carries the end-of-stream sentinel.
func (f Frame) IsTerminator() bool {
	return f.Data == DoneSentinel
}
