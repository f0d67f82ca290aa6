package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/storage"
)

type filterJSON struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	Default     bool   `json:"default"`
}

func toFilterJSON(f storage.Filter) filterJSON {
	return filterJSON{
		ID:          f.ID,
		Pattern:     f.Pattern,
		Kind:        string(f.Kind),
		Description: f.Description,
		Active:      f.Active,
		Default:     f.IsDefault,
	}
}

// Execute implements the go-flags Commander interface for FilterAddCommand.
func (c *FilterAddCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *FilterAddCommand) run(ctx context.Context, store storage.Store) error {
	f, err := store.AddFilter(ctx, storage.Filter{
		Pattern:     c.Args.Pattern,
		Kind:        filter.Kind(c.Kind),
		Description: c.Description,
		Active:      !c.Inactive,
	})
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(toFilterJSON(*f))
	}
	fmt.Printf("Added %s filter %q (%s)\n", f.Kind, f.Pattern, f.ID)
	if f.Active {
		fmt.Println("Matching URLs will be skipped from the next scan on; existing links are kept.")
	}
	return nil
}

// Execute implements the go-flags Commander interface for FilterListCommand.
func (c *FilterListCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *FilterListCommand) run(ctx context.Context, store storage.Store) error {
	filters, err := store.ListFilters(ctx, c.Active)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		out := make([]filterJSON, len(filters))
		for i, f := range filters {
			out[i] = toFilterJSON(f)
		}
		return printJSON(out)
	}
	if len(filters) == 0 {
		fmt.Println("No filters")
		return nil
	}
	for _, f := range filters {
		state := "on "
		if !f.Active {
			state = "off"
		}
		fmt.Printf("%s  %-8s %-36s %s\n", state, f.Kind, f.Pattern, f.ID)
		if f.Description != "" {
			fmt.Printf("     %s\n", f.Description)
		}
	}
	return nil
}

// Execute implements the go-flags Commander interface for FilterToggleCommand.
func (c *FilterToggleCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *FilterToggleCommand) run(ctx context.Context, store storage.Store) error {
	if err := store.SetFilterActive(ctx, c.Args.ID, c.active); err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(map[string]any{"id": c.Args.ID, "active": c.active})
	}
	if c.active {
		fmt.Printf("Enabled filter %s\n", c.Args.ID)
	} else {
		fmt.Printf("Disabled filter %s\n", c.Args.ID)
	}
	return nil
}

// Execute implements the go-flags Commander interface for FilterRmCommand.
func (c *FilterRmCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *FilterRmCommand) run(ctx context.Context, store storage.Store) error {
	if err := store.DeleteFilter(ctx, c.Args.ID); err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(map[string]string{"deleted": c.Args.ID})
	}
	fmt.Printf("Removed filter %s\n", c.Args.ID)
	return nil
}

// Execute implements the go-flags Commander interface for FilterTestCommand.
// It needs the config only for the subdomain setting and never opens the
// catalog.
func (c *FilterTestCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.run(filter.Options{SubdomainMatch: cfg.Filters.SubdomainMatch})
}

func (c *FilterTestCommand) run(opts filter.Options) error {
	matched, err := filter.Test(c.Args.Pattern, filter.Kind(c.Kind), c.Args.URL, opts)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return printJSON(map[string]any{"pattern": c.Args.Pattern, "kind": c.Kind, "url": c.Args.URL, "matched": matched})
	}
	if matched {
		fmt.Printf("excluded: %s filter %q matches %s\n", c.Kind, c.Args.Pattern, c.Args.URL)
	} else {
		fmt.Printf("kept: %s filter %q does not match %s\n", c.Kind, c.Args.Pattern, c.Args.URL)
	}
	return nil
}
