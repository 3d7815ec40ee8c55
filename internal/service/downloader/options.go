package downloader

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/adapter/filesystem"
	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/filename"
	"github.com/vertextoedge/dlhelper/internal/port"
	"github.com/vertextoedge/dlhelper/internal/progress"
	"github.com/vertextoedge/dlhelper/internal/request"
	"github.com/vertextoedge/dlhelper/internal/retry"
)

const (
	defaultMaxRedirects               = 10
	defaultResumeOnIncompleteMaxRetry = 5
)

// OverridePolicy controls what happens when the destination file exists.
//
// Enabled writes over the existing file instead of picking a " (n)" name.
// Skip leaves an existing file untouched when it is at least as large as the
// remote total, or always when SkipSmaller is set. Skip implies Enabled.
type OverridePolicy struct {
	Enabled     bool
	Skip        bool
	SkipSmaller bool
}

func (o OverridePolicy) active() bool {
	return o.Enabled || o.Skip
}

// Option configures a Session
type Option func(*options)

type options struct {
	method           string
	header           http.Header
	body             []byte
	fileName         filename.Policy
	retry            *retry.Policy
	timeout          time.Duration
	forceResume      bool
	removeOnStop     bool
	removeOnFail     bool
	override         OverridePolicy
	progressThrottle time.Duration
	maxRedirects     int

	resumeOnIncomplete         bool
	resumeOnIncompleteMaxRetry int
	resumeIfFileExists         bool

	httpOverrides  request.Overrides
	httpsOverrides request.Overrides

	logger *zap.Logger
	fs     port.FileSystem
}

func defaultOptions() options {
	return options{
		method:                     http.MethodGet,
		header:                     make(http.Header),
		removeOnStop:               true,
		removeOnFail:               true,
		progressThrottle:           progress.DefaultThrottle,
		maxRedirects:               defaultMaxRedirects,
		resumeOnIncomplete:         true,
		resumeOnIncompleteMaxRetry: defaultResumeOnIncompleteMaxRetry,
		logger:                     zap.NewNop(),
		fs:                         filesystem.NewManager(),
	}
}

func (o options) clone() options {
	c := o
	c.header = o.header.Clone()
	if c.header == nil {
		c.header = make(http.Header)
	}
	if o.retry != nil {
		r := *o.retry
		c.retry = &r
	}
	return c
}

func (o *options) validate() error {
	if err := o.retry.Validate(); err != nil {
		return err
	}
	if o.timeout < 0 {
		return &domain.ConfigurationError{Option: "timeout", Err: errors.New("must not be negative")}
	}
	if o.maxRedirects < 0 {
		return &domain.ConfigurationError{Option: "redirect", Err: errors.New("max redirects must not be negative")}
	}
	if o.resumeOnIncompleteMaxRetry < 0 {
		return &domain.ConfigurationError{Option: "resumeOnIncomplete", Err: errors.New("max retry must not be negative")}
	}
	if o.progressThrottle < 0 {
		o.progressThrottle = progress.DefaultThrottle
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.fs == nil {
		o.fs = filesystem.NewManager()
	}
	return nil
}

// WithMethod sets the HTTP method, GET by default
func WithMethod(method string) Option {
	return func(o *options) { o.method = method }
}

// WithHeaders merges h into the request headers
func WithHeaders(h http.Header) Option {
	return func(o *options) {
		for k, vs := range h {
			o.header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
}

// WithBody sets the request body sent with every attempt
func WithBody(body []byte) Option {
	return func(o *options) { o.body = body }
}

// WithFileName overrides the derived destination name
func WithFileName(p filename.Policy) Option {
	return func(o *options) { o.fileName = p }
}

// WithRetry enables retrying failed attempts. A nil policy disables it.
func WithRetry(p *retry.Policy) Option {
	return func(o *options) {
		if p == nil {
			o.retry = nil
			return
		}
		r := *p
		o.retry = &r
	}
}

// WithTimeout aborts an attempt after d without receiving data. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithForceResume treats the server as range capable regardless of accept-ranges
func WithForceResume(force bool) Option {
	return func(o *options) { o.forceResume = force }
}

// WithRemoveOnStop deletes the partial file on Stop (default true)
func WithRemoveOnStop(remove bool) Option {
	return func(o *options) { o.removeOnStop = remove }
}

// WithRemoveOnFail deletes the partial file on fatal failure (default true)
func WithRemoveOnFail(remove bool) Option {
	return func(o *options) { o.removeOnFail = remove }
}

// WithOverride sets the existing-file policy
func WithOverride(p OverridePolicy) Option {
	return func(o *options) { o.override = p }
}

// WithProgressThrottle sets the interval of throttled progress events.
// Negative values restore the default.
func WithProgressThrottle(d time.Duration) Option {
	return func(o *options) { o.progressThrottle = d }
}

// WithResumeOnIncomplete resumes a stream that ended short, at most maxRetry times
func WithResumeOnIncomplete(enabled bool, maxRetry int) Option {
	return func(o *options) {
		o.resumeOnIncomplete = enabled
		o.resumeOnIncompleteMaxRetry = maxRetry
	}
}

// WithResumeIfFileExists makes Start continue a partial file left at the
// destination by an earlier run
func WithResumeIfFileExists(enabled bool) Option {
	return func(o *options) { o.resumeIfFileExists = enabled }
}

// WithHTTPOverrides customizes the transport used for http URLs
func WithHTTPOverrides(ov request.Overrides) Option {
	return func(o *options) { o.httpOverrides = ov }
}

// WithHTTPSOverrides customizes the transport used for https URLs
func WithHTTPSOverrides(ov request.Overrides) Option {
	return func(o *options) { o.httpsOverrides = ov }
}

// WithMaxRedirects bounds the redirect chain of one attempt (default 10)
func WithMaxRedirects(n int) Option {
	return func(o *options) { o.maxRedirects = n }
}

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFileSystem replaces the local file system
func WithFileSystem(fs port.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}
