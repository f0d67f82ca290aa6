package history

import (
	"fmt"
	"time"
)

// Source identifies one browser profile whose history is scanned.
type Source struct {
	Browser string `yaml:"browser" json:"browser"`
	Profile string `yaml:"profile" json:"profile"` // profile directory name, e.g. "Profile 2"
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Path    string `yaml:"path" json:"path"` // profile directory containing the History file
}

// Key returns the stable identity of the source, "browser/profile".
func (s Source) Key() string {
	return s.Browser + "/" + s.Profile
}

// String implements fmt.Stringer, preferring the browser's display name
// for the profile when known.
func (s Source) String() string {
	if s.Name != "" && s.Name != s.Profile {
		return fmt.Sprintf("%s - %s (%s)", s.Browser, s.Name, s.Profile)
	}
	return fmt.Sprintf("%s - %s", s.Browser, s.Profile)
}

// Observation is one URL row read from a source at scan time. VisitCount
// is the source's cumulative counter for the URL over the profile's
// whole lifetime, not a per-scan increment.
type Observation struct {
	Browser    string
	Profile    string
	URL        string
	Title      string
	VisitCount int64
	LastVisit  time.Time
}

// SourceKey returns the key of the source the observation came from.
func (o Observation) SourceKey() string {
	return o.Browser + "/" + o.Profile
}

// ReadOptions narrows a read.
type ReadOptions struct {
	// Since, when non-zero, limits the read to URLs whose last visit is at
	// or after Since.
	Since time.Time
}

// chromeEpochOffset is the number of microseconds between 1601-01-01 and
// 1970-01-01, the two epochs of Chromium and Unix time.
const chromeEpochOffset = int64(11644473600) * 1_000_000

// FromChromeTime converts a Chromium timestamp (microseconds since
// 1601-01-01 UTC) to a time.Time. Non-positive values mean "unknown" and
// map to the zero time.
func FromChromeTime(us int64) time.Time {
	if us <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(us - chromeEpochOffset).UTC()
}

// ToChromeTime converts t to a Chromium timestamp. The zero time maps to 0.
func ToChromeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro() + chromeEpochOffset
}
