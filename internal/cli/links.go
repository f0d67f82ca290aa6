package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/runnerr0/linktrail/internal/storage"
	"github.com/runnerr0/linktrail/internal/transfer"
)

type linkJSON struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	RawURL      string   `json:"raw_url"`
	Title       string   `json:"title"`
	Domain      string   `json:"domain"`
	VisitCount  int64    `json:"visit_count"`
	FirstSeenAt string   `json:"first_seen_at"`
	LastVisitAt string   `json:"last_visit_at,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags"`
	Note        string   `json:"note,omitempty"`
	Favorite    bool     `json:"favorite"`
	LastSource  string   `json:"last_source,omitempty"`
	DeletedAt   string   `json:"deleted_at,omitempty"`
}

func toLinkJSON(l storage.Link) linkJSON {
	out := linkJSON{
		ID:          l.ID,
		URL:         l.CanonicalURL,
		RawURL:      l.RawURL,
		Title:       l.Title,
		Domain:      l.Domain,
		VisitCount:  l.VisitCount,
		FirstSeenAt: rfc3339(l.FirstSeenAt),
		LastVisitAt: rfc3339(l.LastVisitAt),
		Category:    l.CategoryName,
		Tags:        l.Tags,
		Note:        l.Note,
		Favorite:    l.Favorite,
		LastSource:  l.LastSource,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if l.DeletedAt != nil {
		out.DeletedAt = rfc3339(*l.DeletedAt)
	}
	return out
}

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a)
}

// run adds the link through the import merge path, so adding a URL that is
// already cataloged merges into it instead of failing.
func (c *AddCommand) run(ctx context.Context, a *app) error {
	now := time.Now().UTC()
	rec := transfer.LinkRecord{
		URL:         c.Args.URL,
		Title:       c.Title,
		Category:    c.Category,
		Tags:        c.Tags,
		Note:        c.Note,
		Favorite:    c.Favorite,
		FirstSeenAt: &now,
	}
	doc, err := json.Marshal(transfer.Document{Version: transfer.DocumentVersion, ExportedAt: now, Links: []transfer.LinkRecord{rec}})
	if err != nil {
		return err
	}

	filters, err := a.activeFilters(ctx)
	if err != nil {
		return err
	}
	rep, err := transfer.NewImporter(a.store, a.log).Import(ctx, strings.NewReader(string(doc)), filters)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	if c.jsonOutput() {
		return printJSON(rep)
	}
	switch {
	case rep.SkippedInvalid > 0:
		return fmt.Errorf("invalid url %q", c.Args.URL)
	case rep.SkippedFiltered > 0:
		fmt.Printf("Not added: %s is excluded by a filter\n", c.Args.URL)
	case rep.Created > 0:
		fmt.Printf("Added %s\n", c.Args.URL)
	case rep.MergedTrashed > 0:
		fmt.Printf("%s is in the trash; use restore to bring it back\n", c.Args.URL)
	default:
		fmt.Printf("Merged into existing link for %s\n", c.Args.URL)
	}
	return nil
}

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store, args)
}

func (c *ListCommand) run(ctx context.Context, store storage.Store, args []string) error {
	q := storage.LinkQuery{
		Text:          strings.Join(args, " "),
		Category:      c.Category,
		Tag:           c.Tag,
		Domain:        c.Domain,
		FavoritesOnly: c.Favorites,
		Trashed:       c.Trash,
		Sort:          c.Sort,
		Limit:         c.Limit,
		Offset:        c.Offset,
	}
	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", c.Since, err)
		}
		q.Since = time.Now().Add(-dur)
	}

	links, err := store.ListLinks(ctx, q)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	total, err := store.CountLinks(ctx, q)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if c.jsonOutput() {
		out := struct {
			Count int        `json:"count"`
			Total int64      `json:"total"`
			Links []linkJSON `json:"links"`
		}{Count: len(links), Total: total, Links: make([]linkJSON, len(links))}
		for i, l := range links {
			out.Links[i] = toLinkJSON(l)
		}
		return printJSON(out)
	}

	if len(links) == 0 {
		fmt.Println("No links found")
		return nil
	}

	fmt.Printf("Showing %d of %s %s\n\n", len(links), formatNumber(total), plural(int(total), "link", "links"))
	for i, l := range links {
		star := ""
		if l.Favorite {
			star = "* "
		}
		fmt.Printf("%d. %s%s\n", i+1+c.Offset, star, l.Title)
		fmt.Printf("   %s\n", l.CanonicalURL)

		meta := []string{l.ID, fmt.Sprintf("%s %s", formatNumber(l.VisitCount), plural(int(l.VisitCount), "visit", "visits")), formatTime(l.LastVisitAt)}
		if l.CategoryName != "" {
			meta = append(meta, "["+l.CategoryName+"]")
		}
		if len(l.Tags) > 0 {
			meta = append(meta, "#"+strings.Join(l.Tags, " #"))
		}
		fmt.Printf("   %s\n", strings.Join(meta, " · "))

		if i < len(links)-1 {
			fmt.Println()
		}
	}
	return nil
}

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *ShowCommand) run(ctx context.Context, store storage.Store) error {
	l, err := store.GetLink(ctx, c.Args.ID)
	if err != nil {
		return err
	}

	if c.jsonOutput() || c.Format == "json" {
		return printJSON(toLinkJSON(*l))
	}
	if c.Format == "url" {
		fmt.Println(l.CanonicalURL)
		return nil
	}

	fmt.Println(l.ID)
	fmt.Printf("Title:       %s\n", l.Title)
	fmt.Printf("URL:         %s\n", l.CanonicalURL)
	if l.RawURL != l.CanonicalURL {
		fmt.Printf("Raw URL:     %s\n", l.RawURL)
	}
	fmt.Printf("Domain:      %s\n", l.Domain)
	fmt.Printf("Visits:      %s\n", formatNumber(l.VisitCount))
	fmt.Printf("First seen:  %s\n", formatTime(l.FirstSeenAt))
	fmt.Printf("Last visit:  %s\n", formatTime(l.LastVisitAt))
	if l.LastSource != "" {
		fmt.Printf("Source:      %s\n", l.LastSource)
	}
	if l.CategoryName != "" {
		fmt.Printf("Category:    %s\n", l.CategoryName)
	}
	if len(l.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(l.Tags, ", "))
	}
	if l.Favorite {
		fmt.Println("Favorite:    yes")
	}
	if l.DeletedAt != nil {
		fmt.Printf("Trashed:     %s\n", formatTime(*l.DeletedAt))
	}
	if l.Note != "" {
		fmt.Println()
		fmt.Println(l.Note)
	}
	return nil
}

// Execute implements the go-flags Commander interface for EditCommand.
func (c *EditCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *EditCommand) update(ctx context.Context, store storage.Store) (storage.LinkUpdate, error) {
	var u storage.LinkUpdate
	if (c.Favorite && c.Unfavorite) || (c.Toggle && (c.Favorite || c.Unfavorite)) {
		return u, fmt.Errorf("--favorite, --unfavorite and --toggle-favorite are mutually exclusive")
	}

	if c.Title != "" {
		u.Title = &c.Title
	}
	switch {
	case c.ClearNote:
		empty := ""
		u.Note = &empty
	case c.Note != "":
		u.Note = &c.Note
	}
	if c.Favorite || c.Unfavorite {
		fav := c.Favorite
		u.Favorite = &fav
	}
	switch {
	case c.ClearCategory:
		empty := ""
		u.CategoryID = &empty
	case c.Category != "":
		cat, err := store.CategoryByName(ctx, c.Category)
		if err != nil {
			return u, fmt.Errorf("%w (create it with: linktrail category add %q)", err, c.Category)
		}
		u.CategoryID = &cat.ID
	}
	switch {
	case c.ClearTags:
		none := []string{}
		u.Tags = &none
	case len(c.Tags) > 0:
		u.Tags = &c.Tags
	}
	if c.Visits >= 0 {
		u.VisitCount = &c.Visits
	}
	return u, nil
}

func (c *EditCommand) run(ctx context.Context, store storage.Store) error {
	u, err := c.update(ctx, store)
	if err != nil {
		return err
	}
	if c.Toggle {
		if _, err := store.ToggleFavorite(ctx, c.Args.ID); err != nil {
			return err
		}
	}
	l, err := store.UpdateLink(ctx, c.Args.ID, u)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(toLinkJSON(*l))
	}
	fmt.Printf("Updated %s\n", l.ID)
	return nil
}

// Execute implements the go-flags Commander interface for TrashCommand.
func (c *TrashCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *TrashCommand) run(ctx context.Context, store storage.Store) error {
	n, err := store.TrashLinks(ctx, c.Args.IDs)
	if err != nil {
		return fmt.Errorf("trash failed: %w", err)
	}
	if c.jsonOutput() {
		return printJSON(map[string]int64{"trashed": n})
	}
	fmt.Printf("Moved %d %s to the trash\n", n, plural(int(n), "link", "links"))
	return nil
}

// Execute implements the go-flags Commander interface for RestoreCommand.
func (c *RestoreCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *RestoreCommand) run(ctx context.Context, store storage.Store) error {
	n, err := store.RestoreLinks(ctx, c.Args.IDs)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if c.jsonOutput() {
		return printJSON(map[string]int64{"restored": n})
	}
	fmt.Printf("Restored %d %s\n", n, plural(int(n), "link", "links"))
	return nil
}
