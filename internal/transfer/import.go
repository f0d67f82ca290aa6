package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/runnerr0/linktrail/internal/canonical"
	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/logger"
	"github.com/runnerr0/linktrail/internal/reconcile"
	"github.com/runnerr0/linktrail/internal/storage"
)

// ImportReport summarizes one import.
type ImportReport struct {
	Records         int `json:"records"`
	Created         int `json:"created"`
	Merged          int `json:"merged"`
	MergedTrashed   int `json:"merged_trashed"`
	SkippedInvalid  int `json:"skipped_invalid"`
	SkippedFiltered int `json:"skipped_filtered"`
}

// rawDocument defers decoding of records so one malformed record is
// skipped instead of failing the whole document.
type rawDocument struct {
	Version    string            `json:"version"`
	Categories []json.RawMessage `json:"categories"`
	Tags       []json.RawMessage `json:"tags"`
	Links      []json.RawMessage `json:"links"`
}

// Importer merges documents into the catalog.
type Importer struct {
	store  reconcile.TxRunner
	logger logger.Logger
}

// NewImporter creates an Importer writing through store.
func NewImporter(store reconcile.TxRunner, log logger.Logger) *Importer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Importer{store: store, logger: log}
}

// Import reads a document from r and merges it into the catalog in one
// transaction. Records whose URL is excluded by filters are skipped.
// Source checkpoints are never read or written, so a later scan still adds
// only what the browsers report beyond their own last checkpoint.
func (im *Importer) Import(ctx context.Context, r io.Reader, filters *filter.Set) (*ImportReport, error) {
	var doc rawDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "decode import document")
	}
	if !supportedVersion(doc.Version) {
		return nil, errors.Validationf("unsupported document version %q", doc.Version)
	}

	report := ImportReport{Records: len(doc.Links)}
	err := im.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := im.importCategories(ctx, tx, doc.Categories); err != nil {
			return err
		}
		if err := im.importTags(ctx, tx, doc.Tags); err != nil {
			return err
		}

		for i, raw := range doc.Links {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, canon, err := decodeLink(raw)
			if err != nil {
				report.SkippedInvalid++
				im.logger.Debug("skipping invalid record", logger.Int("index", i), logger.Error(err))
				continue
			}
			if filters.Excluded(canon) {
				report.SkippedFiltered++
				continue
			}

			existing, err := tx.LinkByCanonical(ctx, canon)
			if err != nil {
				return err
			}
			switch {
			case existing == nil:
				if err := createLink(ctx, tx, canon, rec); err != nil {
					return err
				}
				report.Created++
			case existing.Trashed():
				if err := tx.SaveLink(ctx, mergeRaw(existing, rec)); err != nil {
					return err
				}
				report.MergedTrashed++
			default:
				if err := mergeLink(ctx, tx, existing, rec); err != nil {
					return err
				}
				report.Merged++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.logger.Info("imported document",
		logger.Int("records", report.Records),
		logger.Int("created", report.Created),
		logger.Int("merged", report.Merged),
		logger.Int("merged_trashed", report.MergedTrashed),
		logger.Int("skipped_invalid", report.SkippedInvalid),
		logger.Int("skipped_filtered", report.SkippedFiltered))
	return &report, nil
}

func (im *Importer) importCategories(ctx context.Context, tx *storage.Tx, raws []json.RawMessage) error {
	for _, raw := range raws {
		var c CategoryRecord
		if err := json.Unmarshal(raw, &c); err != nil {
			im.logger.Debug("skipping invalid category", logger.Error(err))
			continue
		}
		c.Name = strings.TrimSpace(c.Name)
		if err := validate.Struct(c); err != nil {
			if c.Name == "" {
				im.logger.Debug("skipping invalid category", logger.Error(err))
				continue
			}
			c.Color = ""
		}
		if _, err := tx.EnsureCategory(ctx, c.Name, normalizeColor(c.Color)); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) importTags(ctx context.Context, tx *storage.Tx, raws []json.RawMessage) error {
	for _, raw := range raws {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := tx.EnsureTag(ctx, strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	return nil
}

// decodeLink decodes, validates and canonicalizes one link record.
func decodeLink(raw json.RawMessage) (LinkRecord, string, error) {
	var rec LinkRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, "", errors.Wrap(err, errors.CodeValidation, "decode link record")
	}
	rec.URL = strings.TrimSpace(rec.URL)
	if err := validate.Struct(rec); err != nil {
		return rec, "", errors.Wrap(err, errors.CodeValidation, "link record")
	}
	canon, err := canonical.Canonicalize(rec.URL)
	if err != nil {
		return rec, "", err
	}
	return rec, canon, nil
}

func createLink(ctx context.Context, tx *storage.Tx, canon string, rec LinkRecord) error {
	title := reconcile.NormalizeTitle(rec.Title)
	if title == "" {
		title = canon
	}
	l := &storage.Link{
		CanonicalURL: canon,
		RawURL:       rec.URL,
		Title:        title,
		Domain:       canonical.Domain(canon),
		VisitCount:   rec.VisitCount,
		FirstSeenAt:  timeOrZero(rec.FirstSeenAt),
		LastVisitAt:  timeOrZero(rec.LastVisitAt),
		Note:         rec.Note,
		Favorite:     rec.Favorite,
	}
	if l.FirstSeenAt.IsZero() {
		l.FirstSeenAt = l.LastVisitAt
	}
	if err := setCategory(ctx, tx, l, rec.Category); err != nil {
		return err
	}
	if err := tx.InsertLink(ctx, l); err != nil {
		return err
	}
	if len(rec.Tags) > 0 {
		return tx.SetLinkTags(ctx, l.ID, rec.Tags)
	}
	return nil
}

// mergeRaw folds the record's counters and display fields into l. User
// fields are left alone.
func mergeRaw(l *storage.Link, rec LinkRecord) *storage.Link {
	l.VisitCount = reconcile.AddVisits(l.VisitCount, rec.VisitCount)
	incoming := timeOrZero(rec.LastVisitAt)
	if !incoming.Before(l.LastVisitAt) {
		l.RawURL = rec.URL
		if title := reconcile.NormalizeTitle(rec.Title); title != "" {
			l.Title = title
		}
	}
	if incoming.After(l.LastVisitAt) {
		l.LastVisitAt = incoming
	}
	return l
}

// mergeLink merges rec into an active link. Local user fields win; the
// record only fills the ones that are empty.
func mergeLink(ctx context.Context, tx *storage.Tx, l *storage.Link, rec LinkRecord) error {
	mergeRaw(l, rec)

	if l.Note == "" {
		l.Note = rec.Note
	}
	if rec.Favorite {
		l.Favorite = true
	}
	if l.CategoryID == "" {
		if err := setCategory(ctx, tx, l, rec.Category); err != nil {
			return err
		}
	}
	if err := tx.SaveLink(ctx, l); err != nil {
		return err
	}

	if len(rec.Tags) == 0 {
		return nil
	}
	tags, err := tx.LinkTags(ctx, l.ID)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		return nil
	}
	return tx.SetLinkTags(ctx, l.ID, rec.Tags)
}

func setCategory(ctx context.Context, tx *storage.Tx, l *storage.Link, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	c, err := tx.EnsureCategory(ctx, name, "")
	if err != nil {
		return fmt.Errorf("category %q: %w", name, err)
	}
	l.CategoryID = c.ID
	l.CategoryName = c.Name
	return nil
}

// normalizeColor expands #rgb to #rrggbb; anything else is passed through.
func normalizeColor(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if len(c) == 4 && c[0] == '#' {
		return "#" + string([]byte{c[1], c[1], c[2], c[2], c[3], c[3]})
	}
	return c
}
