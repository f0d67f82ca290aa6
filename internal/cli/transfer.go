package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/runnerr0/linktrail/internal/metrics"
	"github.com/runnerr0/linktrail/internal/transfer"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a)
}

func (c *ExportCommand) run(ctx context.Context, a *app) error {
	if c.Out == "" || c.Out == "-" {
		_, err := transfer.Export(ctx, a.store, os.Stdout)
		return err
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	n, err := transfer.Export(ctx, a.store, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if c.jsonOutput() {
		return printJSON(map[string]any{"path": c.Out, "links": n})
	}
	fmt.Printf("Exported %s %s to %s\n", formatNumber(int64(n)), plural(n, "link", "links"), c.Out)
	return nil
}

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a)
}

func (c *ImportCommand) run(ctx context.Context, a *app) error {
	var in io.Reader = os.Stdin
	if c.In != "" && c.In != "-" {
		f, err := os.Open(c.In)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()
		in = f
	}

	filters, err := a.activeFilters(ctx)
	if err != nil {
		return err
	}
	rep, err := transfer.NewImporter(a.store, a.log).Import(ctx, in, filters)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if path := a.metricsPath("import"); path != "" {
		m := metrics.New()
		m.Imported(rep)
		if err := m.WriteTextfile(path); err != nil {
			a.log.Warnf("failed to write metrics: %v", err)
		}
	}

	if c.jsonOutput() {
		return printJSON(rep)
	}
	fmt.Printf("Imported %s %s\n", formatNumber(int64(rep.Records)), plural(rep.Records, "record", "records"))
	fmt.Printf("  created:        %d\n", rep.Created)
	fmt.Printf("  merged:         %d\n", rep.Merged)
	fmt.Printf("  merged (trash): %d\n", rep.MergedTrashed)
	fmt.Printf("  invalid:        %d\n", rep.SkippedInvalid)
	fmt.Printf("  filtered:       %d\n", rep.SkippedFiltered)
	return nil
}
