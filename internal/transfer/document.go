// Package transfer exports the catalog to a portable JSON document and
// merges such documents back in.
package transfer

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DocumentVersion is written to every export. Imports accept any 1.x
// document.
const DocumentVersion = "1.0"

// Document is the export/import file. Unknown fields are ignored on
// import.
type Document struct {
	Version    string           `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Categories []CategoryRecord `json:"categories"`
	Tags       []string         `json:"tags"`
	Links      []LinkRecord     `json:"links"`
}

// CategoryRecord is a category as written to a document.
type CategoryRecord struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// LinkRecord is a link as written to a document. Source checkpoints are
// never part of it.
type LinkRecord struct {
	URL         string     `json:"url" validate:"required,max=8192"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Note        string     `json:"note"`
	Favorite    bool       `json:"favorite"`
	VisitCount  int64      `json:"visit_count" validate:"gte=0"`
	LastVisitAt *time.Time `json:"last_visit_at"`
	FirstSeenAt *time.Time `json:"first_seen_at"`
}

var validate = validator.New()

func supportedVersion(v string) bool {
	return v == "" || v == "1" || strings.HasPrefix(v, "1.")
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
