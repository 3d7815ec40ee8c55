package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/domain/event"
	"github.com/vertextoedge/dlhelper/internal/filename"
	"github.com/vertextoedge/dlhelper/internal/port"
	"github.com/vertextoedge/dlhelper/internal/request"
	"github.com/vertextoedge/dlhelper/internal/retry"
)

const (
	chunkSize = 32 * 1024

	// maxErrorBody bounds how much of a failed response is kept for the error event
	maxErrorBody = 64 * 1024
)

// attempt is one request issued by the session
type attempt struct {
	ctx         context.Context
	gen         uint64
	params      request.Params
	rangeHeader string
	builder     *request.Builder
}

// startLocked issues a request for the current params. The start event is
// raised once per call chain, not for redirect hops or resumes.
func (s *Session) startLocked() {
	if !s.redirected && s.state != domain.StateResumed {
		s.setState(domain.StateStarted)
		s.emit(event.NewStarted())
	}
	s.launchLocked()
}

func (s *Session) launchLocked() {
	s.abortLocked()
	if err := s.closeSinkLocked(); err != nil {
		s.logger.Warn("failed to close previous file", zap.Error(err))
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	s.cancel = cancel
	a := attempt{
		ctx:         ctx,
		gen:         s.gen,
		params:      s.params,
		rangeHeader: s.rangeHeader,
		builder:     s.builder,
	}
	s.armTimerLocked(a.gen)

	s.logger.Debug("issuing request",
		zap.String("method", a.params.Method),
		zap.String("host", a.params.Host),
		zap.String("port", a.params.Port),
		zap.String("path", a.params.Path),
		zap.String("range", a.rangeHeader),
	)
	go s.run(a)
}

func (s *Session) run(a attempt) {
	req, err := a.builder.NewRequest(a.ctx, a.params)
	if err != nil {
		s.attemptFailed(a.gen, &domain.ValidationError{Field: "request", Err: err})
		return
	}
	if a.rangeHeader != "" {
		req.Header.Set("Range", a.rangeHeader)
	}

	resp, err := a.builder.Client(a.params).Do(req)
	if err != nil {
		s.attemptFailed(a.gen, classify(a.ctx, err))
		return
	}
	s.handleResponse(a, resp)
}

// classify maps a request or body error to the session error taxonomy
func classify(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		var te *domain.TimeoutError
		if errors.As(cause, &te) {
			return te
		}
		return cause
	}
	return &domain.TransportError{Err: err}
}

func (s *Session) attemptFailed(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.handleErrorLocked(err)
	s.unlock()
}

func (s *Session) handleResponse(a attempt, resp *http.Response) {
	code := resp.StatusCode
	success := code == http.StatusOK || code == http.StatusPartialContent

	var body string
	if !success {
		if !isRedirect(resp) {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			body = string(b)
		}
		resp.Body.Close()
	}

	s.mu.Lock()
	if s.gen != a.gen {
		s.mu.Unlock()
		if success {
			resp.Body.Close()
		}
		return
	}

	switch {
	case isRedirect(resp):
		s.followRedirectLocked(code, resp.Header.Get("Location"))
		s.unlock()
		return
	case code == http.StatusRequestedRangeNotSatisfiable && s.resumed &&
		s.acct.Total() >= 0 && s.acct.Downloaded() >= s.acct.Total():
		s.finishLocked()
		s.unlock()
		return
	case !success:
		s.handleErrorLocked(&domain.ResponseStatusError{StatusCode: code, Body: body})
		s.unlock()
		return
	}

	if !s.beginStreamLocked(resp) {
		resp.Body.Close()
		s.unlock()
		return
	}
	s.unlock()

	s.stream(a, resp.Body)
}

// beginStreamLocked opens the file for a successful response. It returns
// false when nothing should be read from the body.
func (s *Session) beginStreamLocked(resp *http.Response) bool {
	ar := resp.Header.Get("Accept-Ranges")
	s.resumable = s.opts.forceResume || (ar != "" && ar != "none") ||
		resp.StatusCode == http.StatusPartialContent

	var (
		sink port.Sink
		err  error
	)
	ranged := s.resumed && s.filePath != ""
	switch {
	case ranged && resp.StatusCode == http.StatusOK:
		s.logger.Warn("range request ignored", zap.Int64("offset", s.acct.Downloaded()))
		s.emit(event.NewWarning(domain.ErrRangeIgnored))
		s.acct.Reset(contentLength(resp))
		ranged = false
		sink, err = s.fs.Create(s.filePath)
	case ranged:
		if s.acct.Total() < 0 && resp.ContentLength >= 0 {
			s.acct.Restore(s.acct.Downloaded()+resp.ContentLength, s.acct.Downloaded())
		}
		sink, err = s.fs.Append(s.filePath)
	default:
		var skipped bool
		skipped, sink, err = s.openFreshLocked(resp)
		if skipped {
			return false
		}
	}
	if err != nil {
		if !domain.IsValidation(err) {
			err = &domain.SinkError{Op: "open", Path: s.filePath, Err: err}
		}
		s.handleErrorLocked(err)
		return false
	}

	s.warnDiskSpaceLocked()

	s.sink = sink
	s.sinkOpened = true
	s.retryCount = 0
	s.resumed = false
	s.redirected = false
	s.rangeHeader = ""

	s.setState(domain.StateDownloading)
	s.emit(event.NewDownloadBegan(s.fileName, s.filePath, s.acct.Total(), ranged, s.acct.Downloaded()))
	s.acct.Begin()
	s.resetTimerLocked()
	return true
}

// openFreshLocked resolves the destination name and creates the file, or
// skips the download when the override policy says so
func (s *Session) openFreshLocked(resp *http.Response) (bool, port.Sink, error) {
	total := contentLength(resp)
	s.acct.Reset(total)

	derived := filename.Derive(resp.Header.Get("Content-Disposition"), s.params.URL)
	name := filename.Apply(s.opts.fileName, derived, s.destDir, resp.Header.Get("Content-Type"))
	path := filepath.Join(s.destDir, name)

	reuse := s.filePath != "" && (s.state == domain.StateResumed || path == s.chainBase)
	switch {
	case reuse:
		path, name = s.filePath, s.fileName
	case !s.opts.override.active() && !s.forceOverride:
		if s.chainBase == "" {
			s.chainBase = path
		}
		unique, err := filename.Unique(path, s.fs.Exists)
		if err != nil {
			return false, nil, &domain.ValidationError{Field: "fileName", Err: err}
		}
		if unique != path {
			s.emit(event.NewRenamed(unique, filepath.Base(unique), path, name))
			path, name = unique, filepath.Base(unique)
		}
	default:
		if s.chainBase == "" {
			s.chainBase = path
		}
		if s.opts.override.Skip && s.fs.Exists(path) {
			onDisk, _ := s.fs.Size(path)
			if s.opts.override.SkipSmaller || (total >= 0 && onDisk >= total) {
				s.filePath, s.fileName = path, name
				s.skipLocked(total, onDisk)
				return true, nil, nil
			}
		}
	}

	s.filePath, s.fileName = path, name
	sink, err := s.fs.Create(path)
	return false, sink, err
}

func (s *Session) skipLocked(total, onDisk int64) {
	s.abortLocked()
	s.logger.Info("destination exists, skipping", zap.String("path", s.filePath), zap.Int64("on_disk", onDisk))
	s.setState(domain.StateSkipped)
	s.releasePipesLocked(false)
	s.emit(event.NewSkipped(total, s.fileName, s.filePath, onDisk))
	s.settleLocked(true, nil)
}

func (s *Session) warnDiskSpaceLocked() {
	remaining := s.acct.Remaining()
	if remaining <= 0 {
		return
	}
	du, err := s.fs.DiskUsage(s.destDir)
	if err != nil {
		return
	}
	if du.Free < uint64(remaining) {
		s.emit(event.NewWarning(fmt.Errorf("%w: need %s, %s free", domain.ErrInsufficientSpace,
			humanize.IBytes(uint64(remaining)), humanize.IBytes(du.Free))))
	}
}

func (s *Session) stream(a attempt, body io.ReadCloser) {
	defer body.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 && !s.writeChunk(a.gen, buf[:n]) {
			return
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			s.onStreamEnd(a.gen)
		case errors.Is(err, io.ErrUnexpectedEOF) && context.Cause(a.ctx) == nil && s.knownTotal():
			s.onStreamEnd(a.gen)
		default:
			s.attemptFailed(a.gen, classify(a.ctx, err))
		}
		return
	}
}

// knownTotal reports whether the server announced a size. A body cut short
// without one is a dropped connection rather than an incomplete stream.
func (s *Session) knownTotal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.Total() != domain.UnknownSize
}

func (s *Session) writeChunk(gen uint64, p []byte) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.resetTimerLocked()

	s.fanOutLocked(p)
	if _, err := s.sink.Write(p); err != nil {
		s.handleErrorLocked(&domain.SinkError{Op: "write", Path: s.filePath, Err: err})
		s.unlock()
		return false
	}

	n := len(p)
	if rem := s.acct.Remaining(); rem >= 0 && int64(n) > rem {
		n = int(rem)
	}
	due := s.acct.Add(n)
	stats := s.acct.Stats(s.fileName)
	s.emit(event.NewProgress(stats))
	if due {
		s.emit(event.NewProgressThrottled(stats))
	}
	s.unlock()
	return true
}

func (s *Session) onStreamEnd(gen uint64) {
	s.mu.Lock()
	defer s.unlock()
	if s.gen != gen {
		return
	}

	s.stopTimerLocked()
	if err := s.closeSinkLocked(); err != nil {
		s.handleErrorLocked(err)
		return
	}

	total, downloaded := s.acct.Total(), s.acct.Downloaded()
	if total >= 0 && downloaded < total && s.opts.resumeOnIncomplete && s.resumable &&
		s.incomplete < s.opts.resumeOnIncompleteMaxRetry {
		s.incomplete++
		warn := &domain.IncompleteTransferWarning{Downloaded: downloaded, Total: total, Attempt: s.incomplete}
		s.logger.Warn("stream ended early", zap.Error(warn))
		s.emit(event.NewWarning(warn))
		s.resumeLocked()
		return
	}
	s.finishLocked()
}

func (s *Session) finishLocked() {
	s.abortLocked()
	if err := s.closeSinkLocked(); err != nil {
		s.handleErrorLocked(err)
		return
	}

	total, downloaded := s.acct.Total(), s.acct.Downloaded()
	onDisk, err := s.fs.Size(s.filePath)
	if err != nil {
		onDisk = 0
	}
	incomplete := total >= 0 && downloaded != total

	s.setState(domain.StateFinished)
	s.releasePipesLocked(true)
	s.emit(event.NewEnded(domain.DownloadResult{
		FileName:       s.fileName,
		FilePath:       s.filePath,
		TotalSize:      total,
		DownloadedSize: downloaded,
		OnDiskSize:     onDisk,
		Incomplete:     incomplete,
	}))
	s.logger.Info("download finished",
		zap.String("path", s.filePath),
		zap.Int64("downloaded", downloaded),
		zap.Bool("incomplete", incomplete),
	)
	s.settleLocked(!incomplete, nil)
}

// handleErrorLocked tears down the attempt and either schedules a retry or
// fails the session
func (s *Session) handleErrorLocked(err error) {
	if s.state == domain.StateStopped || s.state == domain.StateFailed {
		return
	}

	s.abortLocked()
	if cerr := s.closeSinkLocked(); cerr != nil {
		s.logger.Warn("failed to close file", zap.Error(cerr))
	}

	if isFatal(err) {
		s.failLocked(err)
		return
	}

	action, derr := retry.Decide(s.opts.retry, s.retryCount, s.acct.Downloaded(), err)
	if action == retry.Fail {
		s.failLocked(derr)
		return
	}

	policy := *s.opts.retry
	s.retryCount++
	s.setState(domain.StateRetry)
	s.emit(event.NewRetried(s.retryCount, policy.MaxRetries, policy.Delay, err))
	s.logger.Warn("retrying",
		zap.Int("attempt", s.retryCount),
		zap.Int("max_retries", policy.MaxRetries),
		zap.String("action", action.String()),
		zap.Error(err),
	)

	ctx, cancel := context.WithCancelCause(context.Background())
	s.cancel = cancel
	gen := s.gen
	go func() {
		if retry.Wait(ctx, policy.Delay) != nil {
			return
		}
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.cancel = nil
		if action == retry.Resume {
			s.resumeLocked()
		} else {
			s.redirected = false
			s.startLocked()
		}
		s.unlock()
	}()
}

func (s *Session) failLocked(err error) {
	s.abortLocked()
	if cerr := s.closeSinkLocked(); cerr != nil {
		s.logger.Warn("failed to close file", zap.Error(cerr))
	}

	if s.opts.removeOnFail && s.sinkOpened && s.filePath != "" {
		if rerr := s.fs.Remove(s.filePath); rerr != nil {
			s.logger.Warn("failed to remove file", zap.String("path", s.filePath), zap.Error(rerr))
		}
	}

	s.logger.Error("download failed", zap.Error(err))
	s.setState(domain.StateFailed)
	s.releasePipesLocked(false)
	s.emit(event.NewFailed(err))
	s.settleLocked(false, err)
}

// resumeLocked re-issues the request, ranged from the received offset when
// the server supports it
func (s *Session) resumeLocked() {
	s.setState(domain.StateResumed)
	s.resumed = false
	s.rangeHeader = ""
	if s.resumable && s.filePath != "" {
		s.resumed = true
		s.rangeHeader = fmt.Sprintf("bytes=%d-", s.acct.Downloaded())
	}
	s.lastRanged = s.resumed
	s.emit(event.NewResumed(s.resumed))
	s.startLocked()
}

func (s *Session) armTimerLocked(gen uint64) {
	s.stopTimerLocked()
	if s.opts.timeout <= 0 {
		return
	}
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.opts.timeout, func() { s.onTimeout(gen, seq) })
}

// resetTimerLocked re-arms the inactivity timer. A timer that already fired
// may be waiting on mu, so it is replaced rather than Reset.
func (s *Session) resetTimerLocked() {
	if s.timer != nil {
		s.armTimerLocked(s.gen)
	}
}

func (s *Session) onTimeout(gen, seq uint64) {
	s.mu.Lock()
	if s.gen != gen || s.timerSeq != seq {
		s.mu.Unlock()
		return
	}
	after := s.opts.timeout
	cancel := s.cancel
	s.logger.Warn("no data received", zap.Duration("after", after))
	s.emit(event.NewTimedOut(after))
	s.unlock()

	if cancel != nil {
		cancel(&domain.TimeoutError{After: after})
	}
}

func contentLength(resp *http.Response) int64 {
	if resp.ContentLength < 0 {
		return domain.UnknownSize
	}
	return resp.ContentLength
}
