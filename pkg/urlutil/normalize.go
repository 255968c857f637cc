package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

/*
Normalization semantics

- scheme-relative input (//host/path) is given the https scheme
- path-absolute input (/path) resolves against the base's scheme+host
- relative input resolves against the base's directory
- host is lowercased, path case is preserved
- fragment is dropped
- a trailing "/" is stripped only when the path is exactly "/"

The result is absolute, scheme http or https, with a non-empty host.
Normalize is idempotent: Normalize(Normalize(u, b), b) == Normalize(u, b).
*/

// validURLPattern accepts absolute http(s) URLs with a dotted or bare host,
// optional port, path, query, and fragment, and no embedded whitespace.
var validURLPattern = regexp.MustCompile(
	`(?i)^(https?:\/\/)[^\s\/:?#]+(\.[^\s\/:?#]+)*(?::\d+)?(\/[^\s?#]*)?(\?[^\s#]*)?(#[^\s]*)?$`,
)

// Normalize resolves raw (already sanitized) into a canonical absolute URL.
// base may be nil for absolute input; relative input without a base is an
// error.
func Normalize(raw string, base *url.URL) (url.URL, error) {
	raw = Sanitize(raw)
	if raw == "" {
		return url.URL{}, &URLError{Cause: ErrCauseEmptyInput}
	}

	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, &URLError{Cause: ErrCauseUnparseable, Message: err.Error()}
	}

	if !parsed.IsAbs() {
		if base == nil {
			return url.URL{}, &URLError{Cause: ErrCauseNoBase, Message: raw}
		}
		parsed = base.ResolveReference(parsed)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return url.URL{}, &URLError{Cause: ErrCauseUnsupportedScheme, Message: parsed.Scheme}
	}

	parsed.Host = lowerASCII(parsed.Host)
	if parsed.Host == "" {
		return url.URL{}, &URLError{Cause: ErrCauseEmptyHost, Message: raw}
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path == "/" {
		parsed.Path = ""
	}

	return *parsed, nil
}

// IsValid reports whether raw is an acceptable absolute http(s) URL.
func IsValid(raw string) bool {
	return validURLPattern.MatchString(raw)
}

// Host extracts the host (with port, if any) from an absolute URL string.
// Returns empty string for unparseable input.
func Host(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return lowerASCII(parsed.Host)
}
