// Package request turns a URL and the session options into transport
// parameters and picks the client for them.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// Version is reported in the default User-Agent
var Version = "1.0.0"

// Params describes one outgoing request
type Params struct {
	URL    *url.URL
	Scheme string
	Host   string
	Port   string
	Path   string
	Method string
	Header http.Header
	Body   []byte
	Secure bool
}

// Build computes the parameters for rawURL. The header is cloned.
func Build(rawURL, method string, header http.Header, body []byte) (Params, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Params{}, domain.NewValidationError("url", err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Params{}, domain.NewValidationError("url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return Params{}, domain.NewValidationError("url", "missing host")
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}

	if method == "" {
		method = http.MethodGet
	}

	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}

	return Params{
		URL:    u,
		Scheme: scheme,
		Host:   u.Hostname(),
		Port:   port,
		Path:   u.RequestURI(),
		Method: strings.ToUpper(method),
		Header: h,
		Body:   body,
		Secure: scheme == "https",
	}, nil
}

// Overrides customizes the transport for one scheme. Transport runs on a
// fresh pooled transport; Header values replace computed ones.
type Overrides struct {
	Transport func(*http.Transport)
	Header    http.Header
}

// Builder holds one client per scheme
type Builder struct {
	plain        *http.Client
	secure       *http.Client
	plainHeader  http.Header
	secureHeader http.Header
}

// NewBuilder creates clients for http and https with the given overrides
func NewBuilder(httpOv, httpsOv Overrides) *Builder {
	return &Builder{
		plain:        newClient(httpOv),
		secure:       newClient(httpsOv),
		plainHeader:  httpOv.Header.Clone(),
		secureHeader: httpsOv.Header.Clone(),
	}
}

func newClient(ov Overrides) *http.Client {
	transport := cleanhttp.DefaultPooledTransport()
	if ov.Transport != nil {
		ov.Transport(transport)
	}
	return &http.Client{
		Transport: transport,
		// redirects are followed by the session so it can report them
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// CloseIdleConnections releases pooled connections of both clients
func (b *Builder) CloseIdleConnections() {
	b.plain.CloseIdleConnections()
	b.secure.CloseIdleConnections()
}

// Client returns the client matching the scheme of p
func (b *Builder) Client(p Params) *http.Client {
	if p.Secure {
		return b.secure
	}
	return b.plain
}

// NewRequest builds the request for p. Scheme override headers take
// precedence over p.Header; a default User-Agent is set when none is given.
func (b *Builder) NewRequest(ctx context.Context, p Params) (*http.Request, error) {
	var body io.Reader
	if len(p.Body) > 0 {
		body = bytes.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range p.Header {
		req.Header[k] = append([]string(nil), vs...)
	}

	ov := b.plainHeader
	if p.Secure {
		ov = b.secureHeader
	}
	for k, vs := range ov {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "dlhelper/"+Version)
	}
	return req, nil
}
