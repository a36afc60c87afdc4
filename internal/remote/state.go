package remote

import "strings"

// State is the lifecycle of one remote asset as seen by the processor.
type State string

const (
	StateUploading  State = "UPLOADING"
	StateProcessing State = "PROCESSING"
	StateReady      State = "READY"
	StateAnalyzing  State = "ANALYZING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// FromServiceState maps a Files API state onto the processor lifecycle.
// Deleting and deleted files can never become ready, so they count as failed.
func FromServiceState(s string) State {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return StateReady
	case "FAILED", "DELETING", "DELETED":
		return StateFailed
	default:
		return StateProcessing
	}
}
