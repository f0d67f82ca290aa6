package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/storage"
)

type categoryJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	LinkCount int64  `json:"link_count"`
}

type tagJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LinkCount int64  `json:"link_count"`
}

// resolveCategory finds a category by ID or by name, ignoring case.
func resolveCategory(ctx context.Context, store storage.Store, ref string) (*storage.Category, error) {
	cats, err := store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cats {
		if cats[i].ID == ref || strings.EqualFold(cats[i].Name, ref) {
			return &cats[i], nil
		}
	}
	return nil, errors.NotFoundf("category %q not found", ref)
}

// Execute implements the go-flags Commander interface for CategoryAddCommand.
func (c *CategoryAddCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *CategoryAddCommand) run(ctx context.Context, store storage.Store) error {
	cat, err := store.CreateCategory(ctx, c.Args.Name, c.Color)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(categoryJSON{ID: cat.ID, Name: cat.Name, Color: cat.Color})
	}
	fmt.Printf("Created category %s (%s)\n", cat.Name, cat.Color)
	return nil
}

// Execute implements the go-flags Commander interface for CategoryListCommand.
func (c *CategoryListCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *CategoryListCommand) run(ctx context.Context, store storage.Store) error {
	cats, err := store.ListCategories(ctx)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		out := make([]categoryJSON, len(cats))
		for i, cat := range cats {
			out[i] = categoryJSON{ID: cat.ID, Name: cat.Name, Color: cat.Color, LinkCount: cat.LinkCount}
		}
		return printJSON(out)
	}
	if len(cats) == 0 {
		fmt.Println("No categories")
		return nil
	}
	for _, cat := range cats {
		fmt.Printf("%-24s %s  %8s  %s\n", cat.Name, cat.Color, formatNumber(cat.LinkCount), cat.ID)
	}
	return nil
}

// Execute implements the go-flags Commander interface for CategoryEditCommand.
func (c *CategoryEditCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *CategoryEditCommand) run(ctx context.Context, store storage.Store) error {
	if c.Name == "" && c.Color == "" {
		return fmt.Errorf("nothing to change: pass --name and/or --color")
	}
	cat, err := resolveCategory(ctx, store, c.Args.Category)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = cat.Name
	}
	updated, err := store.UpdateCategory(ctx, cat.ID, name, c.Color)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(categoryJSON{ID: updated.ID, Name: updated.Name, Color: updated.Color})
	}
	fmt.Printf("Updated category %s (%s)\n", updated.Name, updated.Color)
	return nil
}

// Execute implements the go-flags Commander interface for CategoryRmCommand.
func (c *CategoryRmCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *CategoryRmCommand) run(ctx context.Context, store storage.Store) error {
	cat, err := resolveCategory(ctx, store, c.Args.Category)
	if err != nil {
		return err
	}
	if err := store.DeleteCategory(ctx, cat.ID); err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(map[string]string{"deleted": cat.ID})
	}
	fmt.Printf("Removed category %s; %s %s now uncategorized\n",
		cat.Name, formatNumber(cat.LinkCount), plural(int(cat.LinkCount), "link is", "links are"))
	return nil
}

// Execute implements the go-flags Commander interface for TagListCommand.
func (c *TagListCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *TagListCommand) run(ctx context.Context, store storage.Store) error {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		out := make([]tagJSON, len(tags))
		for i, t := range tags {
			out[i] = tagJSON{ID: t.ID, Name: t.Name, LinkCount: t.LinkCount}
		}
		return printJSON(out)
	}
	if len(tags) == 0 {
		fmt.Println("No tags")
		return nil
	}
	for _, t := range tags {
		fmt.Printf("%-24s %8s\n", t.Name, formatNumber(t.LinkCount))
	}
	return nil
}

// Execute implements the go-flags Commander interface for TagRmCommand.
func (c *TagRmCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *TagRmCommand) run(ctx context.Context, store storage.Store) error {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t.ID != c.Args.Name && !strings.EqualFold(t.Name, c.Args.Name) {
			continue
		}
		if err := store.DeleteTag(ctx, t.ID); err != nil {
			return err
		}
		if c.jsonOutput() {
			return printJSON(map[string]string{"deleted": t.ID})
		}
		fmt.Printf("Removed tag %s\n", t.Name)
		return nil
	}
	return errors.NotFoundf("tag %q not found", c.Args.Name)
}
