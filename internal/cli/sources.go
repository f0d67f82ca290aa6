package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/storage"
)

type sourceJSON struct {
	Source           string `json:"source"`
	Browser          string `json:"browser"`
	Profile          string `json:"profile"`
	Name             string `json:"name,omitempty"`
	Path             string `json:"path"`
	Discovered       bool   `json:"discovered"`
	LastScannedAt    string `json:"last_scanned_at,omitempty"`
	Watermark        string `json:"watermark,omitempty"`
	LastObservations int    `json:"last_observations"`
	LastErrorCode    string `json:"last_error_code,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// Execute implements the go-flags Commander interface for SourcesCommand.
func (c *SourcesCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.run(context.Background(), a.store, a.finder().Sources(a.cfg))
}

// run merges the profiles discovered now with the registry of past scans.
// Registry rows whose profile is no longer discovered are still listed.
func (c *SourcesCommand) run(ctx context.Context, store storage.Store, discovered []history.Source) error {
	states, err := store.ListSources(ctx)
	if err != nil {
		return err
	}
	byKey := make(map[string]storage.SourceState, len(states))
	for _, st := range states {
		byKey[st.Key()] = st
	}

	var out []sourceJSON
	seen := make(map[string]bool)
	for _, src := range discovered {
		seen[src.Key()] = true
		row := sourceJSON{Source: src.Key(), Browser: src.Browser, Profile: src.Profile, Name: src.Name, Path: src.Path, Discovered: true}
		if st, ok := byKey[src.Key()]; ok {
			fillSourceState(&row, st)
		}
		out = append(out, row)
	}
	for _, st := range states {
		if seen[st.Key()] {
			continue
		}
		row := sourceJSON{Source: st.Key(), Browser: st.Browser, Profile: st.Profile, Name: st.Name, Path: st.Path}
		fillSourceState(&row, st)
		out = append(out, row)
	}

	if c.jsonOutput() {
		if out == nil {
			out = []sourceJSON{}
		}
		return printJSON(out)
	}
	if len(out) == 0 {
		fmt.Println("No browser profiles found")
		return nil
	}

	for _, row := range out {
		label := history.Source{Browser: row.Browser, Profile: row.Profile, Name: row.Name}.String()
		fmt.Println(label)
		fmt.Printf("  Path:         %s\n", row.Path)
		if !row.Discovered {
			fmt.Println("  Status:       not found on this machine")
		}
		if row.LastScannedAt == "" {
			fmt.Println("  Last scan:    never")
			continue
		}
		st := byKey[row.Source]
		fmt.Printf("  Last scan:    %s (%s %s)\n", formatTime(st.LastScannedAt),
			formatNumber(int64(st.LastObservations)), plural(st.LastObservations, "url", "urls"))
		if !st.Watermark.IsZero() {
			fmt.Printf("  Newest visit: %s\n", formatTime(st.Watermark))
		}
		if st.LastError != "" {
			fmt.Printf("  Last error:   %s\n", st.LastError)
		}
	}
	return nil
}

func fillSourceState(row *sourceJSON, st storage.SourceState) {
	row.LastScannedAt = rfc3339(st.LastScannedAt)
	row.Watermark = rfc3339(st.Watermark)
	row.LastObservations = st.LastObservations
	row.LastErrorCode = st.LastErrorCode
	row.LastError = st.LastError
}
