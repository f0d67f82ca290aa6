// Package filter evaluates canonical URLs against exclusion rules.
//
// Rules are independent: a URL is excluded when any active rule matches.
// A rule that fails to compile is dropped from the compiled Set and
// reported, never fatal for the other rules.
package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/runnerr0/linktrail/internal/canonical"
	"github.com/runnerr0/linktrail/internal/errors"
)

// Kind selects how a rule's pattern is matched.
type Kind string

// Supported rule kinds.
const (
	KindDomain   Kind = "domain"
	KindPrefix   Kind = "prefix"
	KindContains Kind = "contains"
	KindRegex    Kind = "regex"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindDomain, KindPrefix, KindContains, KindRegex}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.Validationf("unknown filter kind %q (use domain, prefix, contains, or regex)", s)
}

// Rule is an exclusion rule as stored in the catalog.
type Rule struct {
	ID      string
	Pattern string
	Kind    Kind
	Active  bool
}

// Options tunes rule evaluation.
type Options struct {
	// SubdomainMatch makes a domain rule for "example.com" also match
	// "docs.example.com".
	SubdomainMatch bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{SubdomainMatch: true}
}

// matcher is one compiled rule.
type matcher struct {
	rule   Rule
	domain string
	re     *regexp.Regexp
}

// Set is a compiled, immutable group of active rules. It is safe for
// concurrent use.
type Set struct {
	opts     Options
	matchers []matcher
}

// Compile builds a Set from rules. Inactive rules are skipped. Rules that
// fail to compile are skipped and returned as FILTER_COMPILE errors.
func Compile(rules []Rule, opts Options) (*Set, []error) {
	s := &Set{opts: opts}
	var errs []error

	for _, r := range rules {
		if !r.Active {
			continue
		}
		m, err := compileRule(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.matchers = append(s.matchers, m)
	}

	return s, errs
}

// Empty returns a Set that excludes nothing.
func Empty() *Set {
	return &Set{opts: DefaultOptions()}
}

// Len returns the number of compiled rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.matchers)
}

// Excluded reports whether any rule matches canonicalURL.
func (s *Set) Excluded(canonicalURL string) bool {
	_, ok := s.Match(canonicalURL)
	return ok
}

// Match returns the first rule matching canonicalURL.
func (s *Set) Match(canonicalURL string) (Rule, bool) {
	if s == nil || len(s.matchers) == 0 {
		return Rule{}, false
	}

	host := strings.TrimPrefix(canonical.Host(canonicalURL), "www.")
	for _, m := range s.matchers {
		if m.matches(canonicalURL, host, s.opts) {
			return m.rule, true
		}
	}
	return Rule{}, false
}

// IsExcluded reports whether canonicalURL is excluded by set.
func IsExcluded(canonicalURL string, set *Set) bool {
	return set.Excluded(canonicalURL)
}

// Test evaluates a single pattern against a sample URL without touching
// any stored state. The sample is canonicalized first so the result
// matches what a scan would decide.
func Test(pattern string, kind Kind, sampleURL string, opts Options) (bool, error) {
	m, err := compileRule(Rule{Pattern: pattern, Kind: kind, Active: true})
	if err != nil {
		return false, err
	}
	canon, err := canonical.Canonicalize(sampleURL)
	if err != nil {
		return false, err
	}
	host := strings.TrimPrefix(canonical.Host(canon), "www.")
	return m.matches(canon, host, opts), nil
}

// Validate checks that a pattern compiles for kind.
func Validate(pattern string, kind Kind) error {
	_, err := compileRule(Rule{Pattern: pattern, Kind: kind, Active: true})
	return err
}

func compileRule(r Rule) (matcher, error) {
	m := matcher{rule: r}
	if strings.TrimSpace(r.Pattern) == "" {
		return m, compileError(r, fmt.Errorf("empty pattern"))
	}

	switch r.Kind {
	case KindDomain:
		d := normalizeDomain(r.Pattern)
		if d == "" {
			return m, compileError(r, fmt.Errorf("no host in %q", r.Pattern))
		}
		m.domain = d
	case KindPrefix, KindContains:
	case KindRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return m, compileError(r, err)
		}
		m.re = re
	default:
		return m, compileError(r, fmt.Errorf("unknown kind %q", r.Kind))
	}
	return m, nil
}

func (m matcher) matches(canonicalURL, host string, opts Options) bool {
	switch m.rule.Kind {
	case KindDomain:
		if host == m.domain {
			return true
		}
		return opts.SubdomainMatch && strings.HasSuffix(host, "."+m.domain)
	case KindPrefix:
		return strings.HasPrefix(canonicalURL, m.rule.Pattern)
	case KindContains:
		return strings.Contains(canonicalURL, m.rule.Pattern)
	case KindRegex:
		return m.re.MatchString(canonicalURL)
	}
	return false
}

// normalizeDomain reduces a domain pattern, which may be written as a bare
// host, a wildcard ("*.example.com"), or a full URL, to a lowercase host.
func normalizeDomain(pattern string) string {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			p = u.Hostname()
		}
	}
	p = strings.TrimPrefix(p, "*")
	p = strings.Trim(p, "./")
	if i := strings.IndexAny(p, "/:"); i >= 0 {
		p = p[:i]
	}
	return strings.TrimPrefix(p, "www.")
}

func compileError(r Rule, err error) error {
	return errors.Wrapf(err, errors.CodeFilterCompile, "filter %s (%s %q)", ruleLabel(r), r.Kind, r.Pattern).
		WithDetails(map[string]string{"id": r.ID, "kind": string(r.Kind), "pattern": r.Pattern})
}

func ruleLabel(r Rule) string {
	if r.ID == "" {
		return "<unsaved>"
	}
	return r.ID
}
