package domain

// State is a download session lifecycle state
type State string

// Session states
const (
	StateIdle        State = "IDLE"
	StateSkipped     State = "SKIPPED"
	StateStarted     State = "STARTED"
	StateDownloading State = "DOWNLOADING"
	StateRetry       State = "RETRY"
	StatePaused      State = "PAUSED"
	StateResumed     State = "RESUMED"
	StateStopped     State = "STOPPED"
	StateFinished    State = "FINISHED"
	StateFailed      State = "FAILED"
)

// IsTerminal returns true for states that end a call chain
func (s State) IsTerminal() bool {
	switch s {
	case StateFinished, StateFailed, StateStopped, StateSkipped:
		return true
	}
	return false
}

// IsActive returns true while a request, a stream or a retry delay may be in flight
func (s State) IsActive() bool {
	switch s {
	case StateStarted, StateDownloading, StateRetry, StateResumed:
		return true
	}
	return false
}

// String returns the state name
func (s State) String() string {
	return string(s)
}
