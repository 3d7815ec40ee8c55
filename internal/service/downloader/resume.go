package downloader

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/filename"
	"github.com/vertextoedge/dlhelper/internal/request"
)

// TotalSize asks the server for the size and name of the target with a HEAD
// request, following redirects. Total is domain.UnknownSize when the server
// does not send a Content-Length.
func (s *Session) TotalSize(ctx context.Context) (domain.TotalSize, error) {
	s.mu.Lock()
	b, o, target, destDir := s.builder, s.opts, s.url, s.destDir
	s.mu.Unlock()

	for hops := 0; ; hops++ {
		p, err := request.Build(target, http.MethodHead, o.header, nil)
		if err != nil {
			return domain.TotalSize{}, err
		}
		req, err := b.NewRequest(ctx, p)
		if err != nil {
			return domain.TotalSize{}, err
		}
		resp, err := b.Client(p).Do(req)
		if err != nil {
			return domain.TotalSize{}, &domain.TransportError{Err: err}
		}
		resp.Body.Close()

		if isRedirect(resp) {
			if hops >= o.maxRedirects {
				return domain.TotalSize{}, fmt.Errorf("%w: more than %d", domain.ErrTooManyRedirects, o.maxRedirects)
			}
			if target, err = resolveLocation(p.URL, resp.Header.Get("Location")); err != nil {
				return domain.TotalSize{}, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return domain.TotalSize{}, &domain.ResponseStatusError{StatusCode: resp.StatusCode}
		}

		derived := filename.Derive(resp.Header.Get("Content-Disposition"), p.URL)
		return domain.TotalSize{
			Name:  filename.Apply(o.fileName, derived, destDir, resp.Header.Get("Content-Type")),
			Total: contentLength(resp),
		}, nil
	}
}

// ResumeFromFile continues a download into an existing partial file, for
// example one recorded with ResumeState by an earlier session. Missing total
// and name are probed with TotalSize; a zero Downloaded means the file size.
// It blocks like Start.
func (s *Session) ResumeFromFile(ctx context.Context, path string, state *domain.ResumeState) (bool, error) {
	s.mu.Lock()
	err := s.checkStartableLocked()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	var st domain.ResumeState
	if state != nil {
		st = *state
	}
	if st.Total <= 0 || st.FileName == "" {
		ts, err := s.TotalSize(ctx)
		if err != nil {
			return false, err
		}
		if st.Total <= 0 {
			st.Total = ts.Total
		}
		if st.FileName == "" {
			st.FileName = ts.Name
		}
	}
	if st.Downloaded <= 0 {
		size, err := s.fs.Size(path)
		if err != nil {
			return false, &domain.SinkError{Op: "stat", Path: path, Err: err}
		}
		st.Downloaded = size
	}
	if st.FileName == "" {
		st.FileName = filepath.Base(path)
	}

	s.mu.Lock()
	if err := s.checkStartableLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	c := newChain()
	s.chain = c
	s.resetLocked()
	s.forceOverride = true
	s.filePath, s.fileName = path, st.FileName
	s.chainBase = path
	s.resumable = true
	s.acct.Restore(st.Total, st.Downloaded)
	s.logger.Info("resuming from file",
		zap.String("path", path),
		zap.Int64("downloaded", st.Downloaded),
		zap.Int64("total", st.Total),
	)

	if st.Total > 0 && st.Downloaded == st.Total {
		s.finishLocked()
	} else {
		s.resumeLocked()
	}
	s.unlock()

	return s.wait(ctx, c)
}

// resumeExisting continues a partial file left at the destination by an
// earlier run. handled is false when Start should download from scratch.
func (s *Session) resumeExisting(ctx context.Context) (handled, ok bool, err error) {
	ts, err := s.TotalSize(ctx)
	if err != nil {
		s.logger.Debug("size probe failed, starting fresh", zap.Error(err))
		return false, false, nil
	}
	if ts.Total <= 0 {
		return false, false, nil
	}

	path := filepath.Join(s.destDir, ts.Name)
	if !s.fs.Exists(path) {
		return false, false, nil
	}
	size, err := s.fs.Size(path)
	if err != nil || size <= 0 || size >= ts.Total {
		return false, false, nil
	}

	ok, err = s.ResumeFromFile(ctx, path, &domain.ResumeState{
		Downloaded: size,
		FilePath:   path,
		FileName:   ts.Name,
		Total:      ts.Total,
	})
	return true, ok, err
}
