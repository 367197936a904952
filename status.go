package relay

// Status is the overall outcome recorded in a Result.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefused    Status = "refused"
)

// StatusOf maps a stream state to the status it reports.
func StatusOf(s StreamState) Status {
	switch s {
	case StreamStateCompleted:
		return StatusCompleted
	case StreamStateFailed:
		return StatusFailed
	case StreamStateCancelled:
		return StatusCancelled
	case StreamStateRefused:
		return StatusRefused
	default:
		return StatusInProgress
	}
}
