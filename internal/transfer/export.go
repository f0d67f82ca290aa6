package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/runnerr0/linktrail/internal/storage"
)

// ExportSource is the read side of the catalog an export needs.
type ExportSource interface {
	ExportLinks(ctx context.Context) ([]storage.Link, error)
	ListCategories(ctx context.Context) ([]storage.Category, error)
	ListTags(ctx context.Context) ([]storage.Tag, error)
}

// Build assembles a Document of every non-trashed link, with category and
// tag references resolved to names.
func Build(ctx context.Context, src ExportSource, now time.Time) (*Document, error) {
	links, err := src.ExportLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export links: %w", err)
	}
	cats, err := src.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}
	tags, err := src.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("export tags: %w", err)
	}

	doc := &Document{
		Version:    DocumentVersion,
		ExportedAt: now.UTC(),
		Categories: make([]CategoryRecord, 0, len(cats)),
		Tags:       make([]string, 0, len(tags)),
		Links:      make([]LinkRecord, 0, len(links)),
	}
	for _, c := range cats {
		doc.Categories = append(doc.Categories, CategoryRecord{Name: c.Name, Color: c.Color})
	}
	for _, t := range tags {
		doc.Tags = append(doc.Tags, t.Name)
	}
	for _, l := range links {
		recTags := l.Tags
		if recTags == nil {
			recTags = []string{}
		}
		doc.Links = append(doc.Links, LinkRecord{
			URL:         l.CanonicalURL,
			Title:       l.Title,
			Category:    l.CategoryName,
			Tags:        recTags,
			Note:        l.Note,
			Favorite:    l.Favorite,
			VisitCount:  l.VisitCount,
			LastVisitAt: timePtr(l.LastVisitAt),
			FirstSeenAt: timePtr(l.FirstSeenAt),
		})
	}
	return doc, nil
}

// Export writes the catalog as an indented JSON document and returns the
// number of links written.
func Export(ctx context.Context, src ExportSource, w io.Writer) (int, error) {
	doc, err := Build(ctx, src, time.Now())
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(doc.Links), nil
}
