package event

import (
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// Event names
const (
	NameStart             = "start"
	NameDownload          = "download"
	NameProgress          = "progress"
	NameProgressThrottled = "progress.throttled"
	NameRetry             = "retry"
	NameEnd               = "end"
	NameSkip              = "skip"
	NameError             = "error"
	NameTimeout           = "timeout"
	NamePause             = "pause"
	NameResume            = "resume"
	NameStop              = "stop"
	NameRenamed           = "renamed"
	NameRedirected        = "redirected"
	NameStateChanged      = "stateChanged"
	NameWarning           = "warning"

	// NameAll subscribes a handler to every event
	NameAll = "*"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func now() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Started is raised when a fresh call chain issues its first request
type Started struct {
	BaseEvent
}

// EventName returns the event name
func (e Started) EventName() string { return NameStart }

// NewStarted creates a new Started event
func NewStarted() Started {
	return Started{BaseEvent: now()}
}

// DownloadBegan is raised once the response headers are accepted and the file sink is open
type DownloadBegan struct {
	BaseEvent
	FileName       string
	FilePath       string
	TotalSize      int64
	IsResumed      bool
	DownloadedSize int64
}

// EventName returns the event name
func (e DownloadBegan) EventName() string { return NameDownload }

// NewDownloadBegan creates a new DownloadBegan event
func NewDownloadBegan(fileName, filePath string, total int64, resumed bool, downloaded int64) DownloadBegan {
	return DownloadBegan{
		BaseEvent:      now(),
		FileName:       fileName,
		FilePath:       filePath,
		TotalSize:      total,
		IsResumed:      resumed,
		DownloadedSize: downloaded,
	}
}

// Progress is raised for every received chunk
type Progress struct {
	BaseEvent
	domain.Stats
}

// EventName returns the event name
func (e Progress) EventName() string { return NameProgress }

// ProgressThrottled is raised at most once per throttle interval and on completion
type ProgressThrottled struct {
	BaseEvent
	domain.Stats
}

// EventName returns the event name
func (e ProgressThrottled) EventName() string { return NameProgressThrottled }

// NewProgress creates the per-chunk progress event
func NewProgress(stats domain.Stats) Progress {
	return Progress{BaseEvent: now(), Stats: stats}
}

// NewProgressThrottled creates the rate limited progress event
func NewProgressThrottled(stats domain.Stats) ProgressThrottled {
	return ProgressThrottled{BaseEvent: now(), Stats: stats}
}

// Retried is raised before the retry delay starts
type Retried struct {
	BaseEvent
	Attempt    int
	MaxRetries int
	Delay      time.Duration
	Err        error
}

// EventName returns the event name
func (e Retried) EventName() string { return NameRetry }

// NewRetried creates a new Retried event
func NewRetried(attempt, maxRetries int, delay time.Duration, err error) Retried {
	return Retried{
		BaseEvent:  now(),
		Attempt:    attempt,
		MaxRetries: maxRetries,
		Delay:      delay,
		Err:        err,
	}
}

// Ended is raised when the file sink finished and the session reached FINISHED
type Ended struct {
	BaseEvent
	domain.DownloadResult
}

// EventName returns the event name
func (e Ended) EventName() string { return NameEnd }

// NewEnded creates a new Ended event
func NewEnded(result domain.DownloadResult) Ended {
	return Ended{BaseEvent: now(), DownloadResult: result}
}

// Skipped is raised when an existing destination file is left untouched
type Skipped struct {
	BaseEvent
	TotalSize      int64
	FileName       string
	FilePath       string
	DownloadedSize int64
}

// EventName returns the event name
func (e Skipped) EventName() string { return NameSkip }

// NewSkipped creates a new Skipped event
func NewSkipped(total int64, fileName, filePath string, onDisk int64) Skipped {
	return Skipped{
		BaseEvent:      now(),
		TotalSize:      total,
		FileName:       fileName,
		FilePath:       filePath,
		DownloadedSize: onDisk,
	}
}

// Failed is raised when the session gives up
type Failed struct {
	BaseEvent
	Err        error
	StatusCode int
	Body       string
}

// EventName returns the event name
func (e Failed) EventName() string { return NameError }

// NewFailed creates a new Failed event, copying status and body from response errors
func NewFailed(err error) Failed {
	f := Failed{BaseEvent: now(), Err: err, StatusCode: domain.StatusCode(err)}
	if f.StatusCode != 0 {
		f.Body = responseBody(err)
	}
	return f
}

// TimedOut is raised when the inactivity timer fires
type TimedOut struct {
	BaseEvent
	After time.Duration
}

// EventName returns the event name
func (e TimedOut) EventName() string { return NameTimeout }

// NewTimedOut creates a new TimedOut event
func NewTimedOut(after time.Duration) TimedOut {
	return TimedOut{BaseEvent: now(), After: after}
}

// Paused is raised after pause() closed the file sink
type Paused struct {
	BaseEvent
}

// EventName returns the event name
func (e Paused) EventName() string { return NamePause }

// NewPaused creates a new Paused event
func NewPaused() Paused {
	return Paused{BaseEvent: now()}
}

// Resumed is raised when a continuation request is issued
type Resumed struct {
	BaseEvent
	// Ranged is true when the request asks for the remaining bytes only
	Ranged bool
}

// EventName returns the event name
func (e Resumed) EventName() string { return NameResume }

// NewResumed creates a new Resumed event
func NewResumed(ranged bool) Resumed {
	return Resumed{BaseEvent: now(), Ranged: ranged}
}

// Stopped is raised after stop()
type Stopped struct {
	BaseEvent
}

// EventName returns the event name
func (e Stopped) EventName() string { return NameStop }

// NewStopped creates a new Stopped event
func NewStopped() Stopped {
	return Stopped{BaseEvent: now()}
}

// Renamed is raised when the destination was suffixed to avoid a collision
type Renamed struct {
	BaseEvent
	Path         string
	FileName     string
	PrevPath     string
	PrevFileName string
}

// EventName returns the event name
func (e Renamed) EventName() string { return NameRenamed }

// NewRenamed creates a new Renamed event
func NewRenamed(path, fileName, prevPath, prevFileName string) Renamed {
	return Renamed{
		BaseEvent:    now(),
		Path:         path,
		FileName:     fileName,
		PrevPath:     prevPath,
		PrevFileName: prevFileName,
	}
}

// Redirected is raised for every followed redirect hop
type Redirected struct {
	BaseEvent
	From       string
	To         string
	StatusCode int
}

// EventName returns the event name
func (e Redirected) EventName() string { return NameRedirected }

// NewRedirected creates a new Redirected event
func NewRedirected(from, to string, status int) Redirected {
	return Redirected{BaseEvent: now(), From: from, To: to, StatusCode: status}
}

// StateChanged is raised on every state mutation
type StateChanged struct {
	BaseEvent
	State domain.State
}

// EventName returns the event name
func (e StateChanged) EventName() string { return NameStateChanged }

// NewStateChanged creates a new StateChanged event
func NewStateChanged(state domain.State) StateChanged {
	return StateChanged{BaseEvent: now(), State: state}
}

// Warning carries a non-fatal problem
type Warning struct {
	BaseEvent
	Err error
}

// EventName returns the event name
func (e Warning) EventName() string { return NameWarning }

// NewWarning creates a new Warning event
func NewWarning(err error) Warning {
	return Warning{BaseEvent: now(), Err: err}
}
