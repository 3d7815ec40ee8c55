package downloader

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/domain/event"
	"github.com/vertextoedge/dlhelper/internal/request"
)

func isRedirect(resp *http.Response) bool {
	return resp.StatusCode > 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != ""
}

// resolveLocation resolves a Location header against the URL that returned it
func resolveLocation(base *url.URL, location string) (string, error) {
	next, err := base.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location %q: %w", location, err)
	}
	return next.String(), nil
}

// followRedirectLocked retargets the session at location and re-issues the
// request. The hop keeps the current state and does not raise start again.
func (s *Session) followRedirectLocked(code int, location string) {
	s.redirects++
	if s.redirects > s.opts.maxRedirects {
		s.handleErrorLocked(fmt.Errorf("%w: more than %d", domain.ErrTooManyRedirects, s.opts.maxRedirects))
		return
	}

	next, err := resolveLocation(s.params.URL, location)
	if err != nil {
		s.handleErrorLocked(&domain.ValidationError{Field: "location", Err: err})
		return
	}
	params, err := request.Build(next, s.opts.method, s.opts.header, s.opts.body)
	if err != nil {
		s.handleErrorLocked(err)
		return
	}

	from := s.requestURL
	s.requestURL = next
	s.params = params
	s.redirected = true
	s.emit(event.NewRedirected(from, next, code))
	s.startLocked()
}
