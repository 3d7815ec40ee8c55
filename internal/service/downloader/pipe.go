package downloader

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/domain/event"
)

// PipeOptions configures a fan-out destination
type PipeOptions struct {
	// End closes the writer when the download finishes, and when it fails or
	// is stopped. Writers with an Abort() method are aborted on those paths
	// instead of closed.
	End bool
}

type pipeEntry struct {
	w    io.Writer
	opts PipeOptions
}

type aborter interface {
	Abort()
}

// Pipe registers w to receive every chunk before it reaches the file, in
// registration order. Pipes persist across pause, resume and retry and are
// dropped when the session reaches FINISHED, FAILED or STOPPED. w is written
// while the session is locked: it must not call back into the session.
func (s *Session) Pipe(w io.Writer, opts *PipeOptions) io.Writer {
	entry := &pipeEntry{w: w}
	if opts != nil {
		entry.opts = *opts
	}

	s.mu.Lock()
	s.pipes = append(s.pipes, entry)
	s.mu.Unlock()
	return w
}

// Unpipe detaches w, or every pipe when w is nil. Detached writers are not closed.
func (s *Session) Unpipe(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w == nil {
		s.pipes = nil
		return
	}
	for i, p := range s.pipes {
		if p.w == w {
			s.pipes = append(s.pipes[:i:i], s.pipes[i+1:]...)
			return
		}
	}
}

// fanOutLocked writes p to every pipe. A failing pipe is detached and
// reported as a warning; the download goes on.
func (s *Session) fanOutLocked(p []byte) {
	if len(s.pipes) == 0 {
		return
	}

	kept := s.pipes[:0]
	for _, entry := range s.pipes {
		if _, err := entry.w.Write(p); err != nil {
			s.logger.Warn("pipe write failed, detaching", zap.Error(err))
			s.emit(event.NewWarning(fmt.Errorf("pipe detached: %w", err)))
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(s.pipes); i++ {
		s.pipes[i] = nil
	}
	s.pipes = kept
}

// releasePipesLocked drops all pipes, ending the ones registered with End.
// On success they are closed, otherwise aborted when they support it.
func (s *Session) releasePipesLocked(success bool) {
	for _, entry := range s.pipes {
		if !entry.opts.End {
			continue
		}
		if !success {
			if a, ok := entry.w.(aborter); ok {
				a.Abort()
				continue
			}
		}
		c, ok := entry.w.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close pipe", zap.Error(err))
			s.emit(event.NewWarning(fmt.Errorf("close pipe: %w", err)))
		}
	}
	s.pipes = nil
}
