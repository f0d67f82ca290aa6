package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" short:"c" description:"Path to config file" default:""`
	DB      string `long:"db" description:"Path to the catalog database (overrides config)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" short:"v" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// baseCommand is embedded in every command.
type baseCommand struct {
	globals *GlobalFlags
	version string
}

func (b baseCommand) jsonOutput() bool {
	return b.globals != nil && b.globals.JSON
}

// ScanCommand: read all sources once and reconcile.
type ScanCommand struct {
	Full bool `long:"full" description:"Re-read every URL instead of only those visited since the last scan"`

	baseCommand
}

// WatchCommand: scan on a schedule until interrupted.
type WatchCommand struct {
	Interval int    `long:"interval" description:"Override scan interval in seconds"`
	Schedule string `long:"schedule" description:"Override cron schedule, e.g. \"*/15 * * * *\""`

	baseCommand
}

// AddCommand: add one link by hand.
type AddCommand struct {
	Title    string   `long:"title" description:"Link title"`
	Category string   `long:"category" description:"Category name (created if missing)"`
	Tags     []string `long:"tag" description:"Tag (repeatable)"`
	Note     string   `long:"note" description:"Free-form note"`
	Favorite bool     `long:"favorite" description:"Mark as favorite"`
	Args     struct {
		URL string `positional-arg-name:"url" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// ListCommand: list links with search and filters.
type ListCommand struct {
	Category  string `long:"category" description:"Only links in this category"`
	Tag       string `long:"tag" description:"Only links with this tag"`
	Domain    string `long:"domain" description:"Only links on this domain"`
	Favorites bool   `long:"favorites" description:"Only favorite links"`
	Trash     bool   `long:"trash" description:"List the trash instead"`
	Since     string `long:"since" description:"Only links visited within duration (e.g., 7d, 24h, 2w)"`
	Sort      string `long:"sort" description:"Sort order" choice:"recent" choice:"visits" choice:"title" choice:"first_seen" default:"recent"`
	Limit     int    `long:"limit" description:"Maximum results" default:"50"`
	Offset    int    `long:"offset" description:"Skip first N results" default:"0"`

	baseCommand
}

// ShowCommand: print one link.
type ShowCommand struct {
	Format string `long:"format" description:"Output format" choice:"full" choice:"url" choice:"json" default:"full"`
	Args   struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// EditCommand: change user fields of a link.
type EditCommand struct {
	Title         string   `long:"title" description:"New title"`
	Note          string   `long:"note" description:"New note"`
	ClearNote     bool     `long:"clear-note" description:"Remove the note"`
	Favorite      bool     `long:"favorite" description:"Mark as favorite"`
	Unfavorite    bool     `long:"unfavorite" description:"Unmark as favorite"`
	Toggle        bool     `long:"toggle-favorite" description:"Flip the favorite flag"`
	Category      string   `long:"category" description:"Move to category (by name)"`
	ClearCategory bool     `long:"clear-category" description:"Remove the category"`
	Tags          []string `long:"tag" description:"Replace tags (repeatable)"`
	ClearTags     bool     `long:"clear-tags" description:"Remove all tags"`
	Visits        int64    `long:"visits" description:"Correct the visit count" default:"-1"`
	Args          struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// TrashCommand: soft-delete links.
type TrashCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"id" required:"1"`
	} `positional-args:"yes"`

	baseCommand
}

// RestoreCommand: restore trashed links.
type RestoreCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"id" required:"1"`
	} `positional-args:"yes"`

	baseCommand
}

// PurgeTrashCommand: permanently delete trashed links with safety confirmation.
type PurgeTrashCommand struct {
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	baseCommand
	in io.Reader // injectable for testing; nil means os.Stdin
}

// CategoryAddCommand: create a category.
type CategoryAddCommand struct {
	Color string `long:"color" description:"Display color as #rrggbb"`
	Args  struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// CategoryListCommand: list categories.
type CategoryListCommand struct {
	baseCommand
}

// CategoryEditCommand: rename or recolor a category.
type CategoryEditCommand struct {
	Name  string `long:"name" description:"New name"`
	Color string `long:"color" description:"New color as #rrggbb"`
	Args  struct {
		Category string `positional-arg-name:"category" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// CategoryRmCommand: remove a category.
type CategoryRmCommand struct {
	Args struct {
		Category string `positional-arg-name:"category" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// TagListCommand: list tags.
type TagListCommand struct {
	baseCommand
}

// TagRmCommand: remove a tag.
type TagRmCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// FilterAddCommand: add an exclusion filter.
type FilterAddCommand struct {
	Kind        string `long:"kind" description:"Match kind" choice:"domain" choice:"prefix" choice:"contains" choice:"regex" default:"domain"`
	Description string `long:"description" description:"Why the filter exists"`
	Inactive    bool   `long:"inactive" description:"Add the filter disabled"`
	Args        struct {
		Pattern string `positional-arg-name:"pattern" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// FilterListCommand: list filters.
type FilterListCommand struct {
	Active bool `long:"active" description:"Only active filters"`

	baseCommand
}

// FilterToggleCommand: enable or disable a filter.
type FilterToggleCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
	active bool
}

// FilterRmCommand: remove a filter.
type FilterRmCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// FilterTestCommand: evaluate a pattern against a sample URL.
type FilterTestCommand struct {
	Kind string `long:"kind" description:"Match kind" choice:"domain" choice:"prefix" choice:"contains" choice:"regex" default:"domain"`
	Args struct {
		Pattern string `positional-arg-name:"pattern" required:"yes"`
		URL     string `positional-arg-name:"url" required:"yes"`
	} `positional-args:"yes"`

	baseCommand
}

// ExportCommand: write the catalog document.
type ExportCommand struct {
	Out string `long:"out" short:"o" description:"Output file (- for stdout)" default:"-"`

	baseCommand
}

// ImportCommand: merge a catalog document.
type ImportCommand struct {
	In string `long:"in" short:"i" description:"Input file (- for stdin)" default:"-"`

	baseCommand
}

// SourcesCommand: list browser profiles.
type SourcesCommand struct {
	baseCommand
}

// StatusCommand: show catalog statistics and configuration summary.
type StatusCommand struct {
	baseCommand
}
