// Package canonical maps raw URLs to the canonical form used as the
// catalog's deduplication key.
//
// Canonicalization lowercases the scheme and host (converting
// internationalized hosts to their ASCII form), strips default ports,
// drops the fragment and trailing slashes on the path, and keeps
// the query string exactly as given. Two URLs that differ only in the
// order of their query parameters are distinct canonical URLs.
package canonical

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/runnerr0/linktrail/internal/errors"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Canonicalize returns the canonical form of rawURL. It fails with an
// INVALID_URL error for empty, unparseable, hostless, or non-web URLs.
func Canonicalize(rawURL string) (string, error) {
	u, err := parse(rawURL)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(u.Host)

	// All trailing slashes go, so a canonical URL canonicalizes to itself.
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))

	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}

	return b.String(), nil
}

// Valid reports whether rawURL canonicalizes without error.
func Valid(rawURL string) bool {
	_, err := Canonicalize(rawURL)
	return err == nil
}

// Host returns the lowercase host of a URL without port, or "" when the
// URL cannot be parsed.
func Host(rawURL string) string {
	u, err := parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Domain returns the host of a URL without port and without a leading
// "www.", as used for statistics and display.
func Domain(rawURL string) string {
	return strings.TrimPrefix(Host(rawURL), "www.")
}

// parse validates rawURL and returns it with scheme and host normalized.
func parse(rawURL string) (*url.URL, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, errors.InvalidURLf("empty url")
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidURL, "parse %q", truncate(s))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[u.Scheme]; !ok {
		return nil, errors.InvalidURLf("unsupported scheme %q in %q", u.Scheme, truncate(s))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, errors.InvalidURLf("missing host in %q", truncate(s))
	}
	if !isASCII(host) {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidURL, "host %q", host)
		}
		host = ascii
	}

	port := u.Port()
	if port == defaultPorts[u.Scheme] {
		port = ""
	}

	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
