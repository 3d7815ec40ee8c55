// Package filename derives destination file names from response headers and
// URLs and applies caller naming policies and collision avoidance.
package filename

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// maxUniqueAttempts bounds the collision search
const maxUniqueAttempts = 10000

var (
	extendedRe = regexp.MustCompile(`(?i).*filename\*=.*?''([^"].+?[^"])(?:(?:;)|$)`)
	quotedRe   = regexp.MustCompile(`(?i).*filename="(.*?)";?`)
	unquotedRe = regexp.MustCompile(`(?i).*filename=([^"].+?[^"])(?:(?:;)|$)`)

	suffixRe = regexp.MustCompile(`^(.*?)\s*\((\d+)\)$`)

	// ErrNoUniqueName is returned when no free name is found within the bound
	ErrNoUniqueName = errors.New("no unique file name available")
)

// FromHeader extracts a file name from a content-disposition value. The
// extended RFC 5987 form wins over the quoted form, which wins over the
// unquoted form. Path separators are removed from the result.
func FromHeader(contentDisposition string) (string, bool) {
	cd := strings.TrimSpace(contentDisposition)
	if cd == "" {
		return "", false
	}

	var name string
	if m := extendedRe.FindStringSubmatch(cd); m != nil {
		name = m[1]
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
	} else if m := quotedRe.FindStringSubmatch(cd); m != nil {
		name = m[1]
	} else if m := unquotedRe.FindStringSubmatch(cd); m != nil {
		name = m[1]
	} else {
		return "", false
	}

	name = strings.NewReplacer("/", "", `\`, "").Replace(name)
	return name, true
}

// FromURL uses the last path segment of u, or "<host>.html" when the path
// has none. Trailing dots are stripped.
func FromURL(u *url.URL) string {
	var name string
	if u != nil {
		trimmed := strings.TrimRight(u.Path, "/")
		if trimmed != "" {
			name = path.Base(trimmed)
		}
	}

	name = strings.TrimRight(name, ".")
	if name == "" && u != nil {
		name = u.Hostname() + ".html"
	}
	return name
}

// Derive picks the header name when the content-disposition yields one and
// falls back to the URL otherwise
func Derive(contentDisposition string, u *url.URL) string {
	if name, ok := FromHeader(contentDisposition); ok && name != "" {
		return name
	}
	return FromURL(u)
}

// Unique returns p unchanged when nothing exists there. Otherwise it appends
// " (n)" before the extension, continuing from an existing "(n)" suffix, until
// exists reports a free path.
func Unique(p string, exists func(string) bool) (string, error) {
	if p == "" || !exists(p) {
		return p, nil
	}

	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)

	n := 0
	if m := suffixRe.FindStringSubmatch(stem); m != nil {
		if parsed, err := strconv.Atoi(m[2]); err == nil {
			stem = m[1]
			n = parsed
		}
	}

	for i := 0; i < maxUniqueAttempts; i++ {
		n++
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoUniqueName, p)
}
