// Package downloader implements a resumable, retryable single-stream HTTP
// download session.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/domain/event"
	"github.com/vertextoedge/dlhelper/internal/port"
	"github.com/vertextoedge/dlhelper/internal/progress"
	"github.com/vertextoedge/dlhelper/internal/request"
)

// Session downloads one URL into a destination directory. All methods are
// safe for concurrent use. Events are delivered synchronously and in order
// by whichever goroutine finds the queue idle, so an event raised by Pause or
// Stop may reach handlers shortly after the call returns. Handlers may call
// Pause, Stop, Pipe and the accessors but must not block on Start or Resume.
type Session struct {
	id      string
	destDir string

	mu      sync.Mutex
	opts    options
	logger  *zap.Logger
	fs      port.FileSystem
	builder *request.Builder

	url        string
	requestURL string
	params     request.Params

	state      domain.State
	acct       *progress.Accountant
	resumable  bool
	redirected bool
	redirects  int
	retryCount int
	incomplete int

	// resumed marks the next stream phase as a ranged append
	resumed     bool
	rangeHeader string
	lastRanged  bool

	filePath string
	fileName string
	// chainBase is the un-suffixed path of the file this call chain
	// created, so a fresh retry writes to filePath again instead of renaming
	chainBase  string
	// forceOverride writes over an existing file for this chain only
	forceOverride bool
	sinkOpened    bool
	sink       port.Sink

	pipes []*pipeEntry

	gen    uint64
	cancel context.CancelCauseFunc
	timer  *time.Timer
	// timerSeq identifies the armed timer so a fired but stale one is ignored
	timerSeq uint64
	chain    *chain

	dispatcher *event.InMemoryDispatcher
	notify     notifier
	pending    []func()
}

// chain is the outcome shared by the Start/Resume calls of one download
type chain struct {
	done chan struct{}
	once sync.Once
	ok   bool
	err  error
}

func newChain() *chain {
	return &chain{done: make(chan struct{})}
}

func (c *chain) settle(ok bool, err error) {
	c.once.Do(func() {
		c.ok, c.err = ok, err
		close(c.done)
	})
}

func (c *chain) settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// New validates the URL and destination directory and creates an idle session
func New(rawURL, destDir string, opts ...Option) (*Session, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, domain.NewValidationError("url", "URL couldn't be empty")
	}
	if strings.TrimSpace(destDir) == "" {
		return nil, domain.NewValidationError("destFolder", "destination folder couldn't be empty")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	if err := o.fs.CheckDir(destDir); err != nil {
		return nil, &domain.ValidationError{Field: "destFolder", Err: fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)}
	}

	params, err := request.Build(rawURL, o.method, o.header, o.body)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:         id,
		destDir:    destDir,
		url:        rawURL,
		requestURL: rawURL,
		params:     params,
		state:      domain.StateIdle,
		acct:       progress.New(o.progressThrottle),
	}
	s.applyOptionsLocked(o)

	baseLogger := s.logger
	s.dispatcher = event.NewInMemoryDispatcher(func(e event.DomainEvent, err error) {
		baseLogger.Warn("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})

	return s, nil
}

func (s *Session) applyOptionsLocked(o options) {
	s.opts = o
	s.fs = o.fs
	s.logger = o.logger.With(zap.String("session", s.id), zap.String("url", s.url))
	if s.builder != nil {
		s.builder.CloseIdleConnections()
	}
	s.builder = request.NewBuilder(o.httpOverrides, o.httpsOverrides)
	s.acct.SetThrottle(o.progressThrottle)
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// URL returns the original target
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// RequestURL returns the current target after redirects
func (s *Session) RequestURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestURL
}

// State returns the current state
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsResumable reports whether the server accepts range requests. It is
// known once the first response arrived.
func (s *Session) IsResumable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumable
}

// ResumedWithRange reports whether the last resume used a range request
func (s *Session) ResumedWithRange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRanged
}

// DownloadPath returns the destination path, empty until resolved
func (s *Session) DownloadPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filePath
}

// Stats returns the current progress
func (s *Session) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.Stats(s.fileName)
}

// ResumeState returns a snapshot a later session can resume from
func (s *Session) ResumeState() domain.ResumeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ResumeState{
		Downloaded: s.acct.Downloaded(),
		FilePath:   s.filePath,
		FileName:   s.fileName,
		Total:      s.acct.Total(),
	}
}

// Subscribe registers an event handler
func (s *Session) Subscribe(h event.EventHandler) {
	s.dispatcher.Subscribe(h)
}

// Unsubscribe removes an event handler
func (s *Session) Unsubscribe(h event.EventHandler) {
	s.dispatcher.Unsubscribe(h)
}

// On subscribes fn to the named event ("*" for all) and returns the handler
// for Unsubscribe
func (s *Session) On(name string, fn func(event.DomainEvent)) event.EventHandler {
	h := event.On(fn, name)
	s.dispatcher.Subscribe(h)
	return h
}

// UpdateOptions merges opts into the current options and optionally retargets
// the session. It is rejected while a download is in flight; between Pause
// and Resume it is allowed.
func (s *Session) UpdateOptions(rawURL string, opts ...Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsActive() {
		return fmt.Errorf("%w: cannot update options while %s", domain.ErrInvalidStateTransition, s.state)
	}

	o := s.opts.clone()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return err
	}

	target := s.url
	if rawURL != "" {
		target = rawURL
	}
	params, err := request.Build(target, o.method, o.header, o.body)
	if err != nil {
		return err
	}

	s.url = target
	s.requestURL = target
	s.params = params
	s.applyOptionsLocked(o)
	return nil
}

// Start downloads the URL and blocks until the call chain settles: it
// returns true when the whole file was received, or the file was skipped or
// the session stopped. Cancelling ctx pauses the session and returns
// ctx.Err(); a later Resume continues the same chain.
func (s *Session) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if err := s.checkStartableLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	probe := s.opts.resumeIfFileExists
	s.mu.Unlock()

	if probe {
		if handled, ok, err := s.resumeExisting(ctx); handled {
			return ok, err
		}
	}

	s.mu.Lock()
	if err := s.checkStartableLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	c := newChain()
	s.chain = c
	s.resetLocked()
	s.startLocked()
	s.unlock()

	return s.wait(ctx, c)
}

func (s *Session) checkStartableLocked() error {
	if s.state == domain.StateIdle || s.state.IsTerminal() {
		return nil
	}
	return fmt.Errorf("%w: cannot start while %s", domain.ErrInvalidStateTransition, s.state)
}

// resetLocked clears per-chain state for a fresh download
func (s *Session) resetLocked() {
	s.retryCount = 0
	s.incomplete = 0
	s.redirects = 0
	s.redirected = false
	s.resumed = false
	s.rangeHeader = ""
	s.lastRanged = false
	s.resumable = false
	s.chainBase = ""
	s.forceOverride = false
	s.sinkOpened = false
	s.filePath = ""
	s.fileName = ""
	s.requestURL = s.url
	if p, err := request.Build(s.url, s.opts.method, s.opts.header, s.opts.body); err == nil {
		s.params = p
	}
	s.acct.Reset(domain.UnknownSize)
}

// Resume continues a paused download, with a range request when the server
// supports it, and blocks like Start
func (s *Session) Resume(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != domain.StatePaused {
		state := s.state
		s.mu.Unlock()
		return false, fmt.Errorf("%w: cannot resume while %s", domain.ErrInvalidStateTransition, state)
	}

	c := s.chain
	if c == nil || c.settled() {
		c = newChain()
		s.chain = c
	}
	s.resumeLocked()
	s.unlock()

	return s.wait(ctx, c)
}

// Pause aborts the in-flight request and closes the file. Pipes stay
// registered. Pausing a paused session returns true without a new event;
// pausing an idle or finished session does nothing and returns false.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	if s.state == domain.StatePaused {
		s.mu.Unlock()
		return true, nil
	}
	if !s.state.IsActive() {
		s.mu.Unlock()
		return false, nil
	}

	s.abortLocked()
	if err := s.closeSinkLocked(); err != nil {
		s.logger.Warn("failed to close file on pause", zap.Error(err))
		s.emit(event.NewWarning(err))
	}
	s.setState(domain.StatePaused)
	s.emit(event.NewPaused())
	s.logger.Info("download paused", zap.Int64("downloaded", s.acct.Downloaded()))
	s.unlock()
	return true, nil
}

// Stop aborts the download, removes the partial file when configured to and
// settles a pending Start with true. Stopping a finished, skipped, failed or
// stopped session returns false.
func (s *Session) Stop() (bool, error) {
	s.mu.Lock()
	switch s.state {
	case domain.StateFinished, domain.StateSkipped, domain.StateFailed, domain.StateStopped:
		s.mu.Unlock()
		return false, nil
	}

	s.abortLocked()
	if err := s.closeSinkLocked(); err != nil {
		s.logger.Warn("failed to close file on stop", zap.Error(err))
	}

	if s.opts.removeOnStop && s.filePath != "" && s.fs.Exists(s.filePath) {
		if err := s.fs.Remove(s.filePath); err != nil {
			err = &domain.SinkError{Op: "remove", Path: s.filePath, Err: err}
			s.setState(domain.StateFailed)
			s.releasePipesLocked(false)
			s.emit(event.NewFailed(err))
			s.settleLocked(false, err)
			s.unlock()
			return false, err
		}
	}

	s.setState(domain.StateStopped)
	s.releasePipesLocked(false)
	s.emit(event.NewStopped())
	s.settleLocked(true, nil)
	s.logger.Info("download stopped")
	s.unlock()
	return true, nil
}

func (s *Session) wait(ctx context.Context, c *chain) (bool, error) {
	select {
	case <-c.done:
		return c.ok, c.err
	case <-ctx.Done():
		select {
		case <-c.done:
			return c.ok, c.err
		default:
		}
		s.Pause()
		return false, ctx.Err()
	}
}

// unlock releases the session and delivers the events queued while it was held
func (s *Session) unlock() {
	s.notify.enqueue(s.pending)
	s.pending = nil
	s.mu.Unlock()
	s.notify.drain()
}

func (s *Session) emit(e event.DomainEvent) {
	s.pending = append(s.pending, func() { s.dispatcher.Dispatch(e) })
}

func (s *Session) setState(state domain.State) {
	if s.state == state {
		return
	}
	s.logger.Debug("state changed", zap.String("from", s.state.String()), zap.String("to", state.String()))
	s.state = state
	s.emit(event.NewStateChanged(state))
}

// settleLocked resolves the current chain after the events queued so far
func (s *Session) settleLocked(ok bool, err error) {
	c := s.chain
	if c == nil {
		return
	}
	s.chain = nil
	s.pending = append(s.pending, func() { c.settle(ok, err) })
}

// abortLocked invalidates the in-flight attempt or retry wait
func (s *Session) abortLocked() {
	s.gen++
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel(domain.ErrAborted)
		s.cancel = nil
	}
}

func (s *Session) closeSinkLocked() error {
	if s.sink == nil {
		return nil
	}
	sink := s.sink
	s.sink = nil
	if err := sink.Close(); err != nil {
		return &domain.SinkError{Op: "close", Path: sink.Path(), Err: err}
	}
	return nil
}

func (s *Session) stopTimerLocked() {
	s.timerSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrTooManyRedirects) ||
		domain.IsValidation(err) ||
		domain.IsConfiguration(err)
}
