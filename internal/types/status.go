package types

// Status is the processing state of a summary
type Status string

// Summary lifecycle
const (
	StatusInQueue            Status = "IN_QUEUE"
	StatusFetchingTranscript Status = "FETCHING_TRANSCRIPT"
	StatusGeneratingSummary  Status = "GENERATING_SUMMARY"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusInQueue,
	StatusFetchingTranscript,
	StatusGeneratingSummary,
	StatusCompleted,
	StatusFailed,
}

// ActiveStatuses lists the non-terminal statuses
var ActiveStatuses = []Status{
	StatusInQueue,
	StatusFetchingTranscript,
	StatusGeneratingSummary,
}

var nextStatus = map[Status]Status{
	StatusInQueue:            StatusFetchingTranscript,
	StatusFetchingTranscript: StatusGeneratingSummary,
	StatusGeneratingSummary:  StatusCompleted,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Next returns the forward successor of s, or "" for terminal states
func (s Status) Next() Status {
	return nextStatus[s]
}

// CanTransition reports whether the processor may move a summary from one
// status to another. FAILED -> IN_QUEUE is not included: only CanRetry allows it.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() || !from.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return nextStatus[from] == to
}

// CanRetry reports whether a user-triggered retry may requeue a summary in from
func CanRetry(from Status) bool {
	return from == StatusFailed
}
