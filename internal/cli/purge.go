package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/linktrail/internal/storage"
)

// Execute implements the go-flags Commander interface for PurgeTrashCommand.
func (c *PurgeTrashCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store)
}

func (c *PurgeTrashCommand) run(ctx context.Context, store storage.Store) error {
	trashed, err := store.CountLinks(ctx, storage.LinkQuery{Trashed: true})
	if err != nil {
		return err
	}
	if trashed == 0 {
		if c.jsonOutput() {
			return printJSON(map[string]int64{"purged": 0})
		}
		fmt.Println("Trash is empty.")
		return nil
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Printf("⚠ WARNING: This will permanently delete %s trashed %s.\n",
			formatNumber(trashed), plural(int(trashed), "link", "links"))
		fmt.Println("  - Their notes, tags and categories")
		fmt.Println("  - Their visit counts")
		fmt.Println()
		fmt.Println("This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		var in io.Reader = os.Stdin
		if c.in != nil {
			in = c.in
		}
		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	n, err := store.PurgeTrash(ctx)
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.jsonOutput() {
		return printJSON(map[string]int64{"purged": n})
	}
	fmt.Printf("Purged %d %s from the trash.\n", n, plural(int(n), "link", "links"))
	return nil
}
