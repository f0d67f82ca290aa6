package storage

import (
	"time"

	"github.com/runnerr0/linktrail/internal/filter"
)

// Link is one catalog entry, keyed by its canonical URL.
type Link struct {
	ID           string
	CanonicalURL string
	RawURL       string
	Title        string
	Domain       string
	VisitCount   int64
	FirstSeenAt  time.Time
	LastVisitAt  time.Time // zero when unknown
	CategoryID   string
	CategoryName string
	Tags         []string
	Note         string
	Favorite     bool
	LastSource   string // "browser/profile" of the last scan that touched the link
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Trashed reports whether the link is soft-deleted.
func (l *Link) Trashed() bool {
	return l.DeletedAt != nil
}

// Sort orders for ListLinks.
const (
	SortRecent    = "recent"
	SortVisits    = "visits"
	SortTitle     = "title"
	SortFirstSeen = "first_seen"
)

// LinkQuery defines filters for listing links.
type LinkQuery struct {
	Text          string // matched against title, URL and note
	CategoryID    string
	Category      string // category name
	Tag           string
	Domain        string
	FavoritesOnly bool
	Trashed       bool // list the trash instead of active links
	Since         time.Time
	Sort          string
	Limit         int // <= 0 means no limit
	Offset        int
}

// LinkUpdate carries user edits; nil fields are left unchanged. An empty
// CategoryID clears the category.
type LinkUpdate struct {
	Title      *string
	Note       *string
	Favorite   *bool
	CategoryID *string
	Tags       *[]string
	VisitCount *int64
}

// Category is a user-defined label with a display color.
type Category struct {
	ID        string
	Name      string
	Color     string
	LinkCount int64
	CreatedAt time.Time
}

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#808080"

// Tag is a user-defined label, many-to-many with links.
type Tag struct {
	ID        string
	Name      string
	LinkCount int64
	CreatedAt time.Time
}

// Filter is a stored exclusion rule.
type Filter struct {
	ID          string
	Pattern     string
	Kind        filter.Kind
	Description string
	Active      bool
	IsDefault   bool
	CreatedAt   time.Time
}

// Rule converts the stored filter to its evaluation form.
func (f Filter) Rule() filter.Rule {
	return filter.Rule{ID: f.ID, Pattern: f.Pattern, Kind: f.Kind, Active: f.Active}
}

// SourceState is the registry row of one scanned (browser, profile).
type SourceState struct {
	Browser          string
	Profile          string
	Name             string
	Path             string
	LastScannedAt    time.Time
	Watermark        time.Time // highest last-visit time read from the source
	LastErrorCode    string
	LastError        string
	LastObservations int
}

// Key returns "browser/profile".
func (s SourceState) Key() string {
	return s.Browser + "/" + s.Profile
}

// Checkpoint is the last cumulative state read from one source for one
// raw URL.
type Checkpoint struct {
	Browser         string
	Profile         string
	URL             string
	CumulativeCount int64
	LastVisitAt     time.Time
}

// Stats holds aggregate statistics about the catalog.
type Stats struct {
	TotalLinks        int64
	ActiveLinks       int64
	TrashedLinks      int64
	FavoriteLinks     int64
	TotalVisits       int64
	Categories        int64
	Tags              int64
	Filters           int64
	ActiveFilters     int64
	Sources           int64
	DatabaseSizeBytes int64
	TopDomains        []DomainCount
}

// DomainCount pairs a domain with its link count.
type DomainCount struct {
	Domain string
	Count  int64
}
