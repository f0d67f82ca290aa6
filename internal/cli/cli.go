package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Scan       *ScanCommand
	Watch      *WatchCommand
	Add        *AddCommand
	List       *ListCommand
	Show       *ShowCommand
	Edit       *EditCommand
	Trash      *TrashCommand
	Restore    *RestoreCommand
	PurgeTrash *PurgeTrashCommand

	CategoryAdd  *CategoryAddCommand
	CategoryList *CategoryListCommand
	CategoryEdit *CategoryEditCommand
	CategoryRm   *CategoryRmCommand
	TagList      *TagListCommand
	TagRm        *TagRmCommand

	FilterAdd     *FilterAddCommand
	FilterList    *FilterListCommand
	FilterEnable  *FilterToggleCommand
	FilterDisable *FilterToggleCommand
	FilterRm      *FilterRmCommand
	FilterTest    *FilterTestCommand

	Export  *ExportCommand
	Import  *ImportCommand
	Sources *SourcesCommand
	Status  *StatusCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "linktrail"
	parser.LongDescription = "Catalog the links you visit across your Chromium-family browser profiles."

	base := baseCommand{globals: &globals, version: version}
	cmds := &commands{
		Scan:       &ScanCommand{baseCommand: base},
		Watch:      &WatchCommand{baseCommand: base},
		Add:        &AddCommand{baseCommand: base},
		List:       &ListCommand{baseCommand: base},
		Show:       &ShowCommand{baseCommand: base},
		Edit:       &EditCommand{baseCommand: base},
		Trash:      &TrashCommand{baseCommand: base},
		Restore:    &RestoreCommand{baseCommand: base},
		PurgeTrash: &PurgeTrashCommand{baseCommand: base},

		CategoryAdd:  &CategoryAddCommand{baseCommand: base},
		CategoryList: &CategoryListCommand{baseCommand: base},
		CategoryEdit: &CategoryEditCommand{baseCommand: base},
		CategoryRm:   &CategoryRmCommand{baseCommand: base},
		TagList:      &TagListCommand{baseCommand: base},
		TagRm:        &TagRmCommand{baseCommand: base},

		FilterAdd:     &FilterAddCommand{baseCommand: base},
		FilterList:    &FilterListCommand{baseCommand: base},
		FilterEnable:  &FilterToggleCommand{baseCommand: base, active: true},
		FilterDisable: &FilterToggleCommand{baseCommand: base, active: false},
		FilterRm:      &FilterRmCommand{baseCommand: base},
		FilterTest:    &FilterTestCommand{baseCommand: base},

		Export:  &ExportCommand{baseCommand: base},
		Import:  &ImportCommand{baseCommand: base},
		Sources: &SourcesCommand{baseCommand: base},
		Status:  &StatusCommand{baseCommand: base},
	}

	parser.AddCommand("scan", "Scan browser profiles now", "Read every discovered browser profile and merge new visits into the catalog.", cmds.Scan)
	parser.AddCommand("watch", "Scan on a schedule", "Scan on the configured interval or cron schedule until interrupted. Press Enter to scan immediately.", cmds.Watch)
	parser.AddCommand("add", "Add a link by hand", "Add a link to the catalog, or merge into the existing entry for the same URL.", cmds.Add)
	parser.AddCommand("list", "List links", "List catalog links, newest visit first, with optional search and filters.", cmds.List)
	parser.AddCommand("show", "Show one link", "Print every stored field of a link.", cmds.Show)
	parser.AddCommand("edit", "Edit a link", "Change the title, note, favorite flag, category, tags, or visit count of a link.", cmds.Edit)
	parser.AddCommand("trash", "Move links to the trash", "Soft-delete links. Trashed links keep counting visits but are hidden from listings.", cmds.Trash)
	parser.AddCommand("restore", "Restore links from the trash", "Restore soft-deleted links.", cmds.Restore)
	parser.AddCommand("purge-trash", "Permanently delete trashed links", "Permanently delete every trashed link. Destructive operation with safety prompt.", cmds.PurgeTrash)

	category, _ := parser.AddCommand("category", "Manage categories", "Create, list, edit and remove categories.", &struct{}{})
	category.AddCommand("add", "Create a category", "Create a category.", cmds.CategoryAdd)
	category.AddCommand("list", "List categories", "List categories with their link counts.", cmds.CategoryList)
	category.AddCommand("edit", "Rename or recolor a category", "Rename or recolor a category.", cmds.CategoryEdit)
	category.AddCommand("rm", "Remove a category", "Remove a category. Its links become uncategorized.", cmds.CategoryRm)

	tag, _ := parser.AddCommand("tag", "Manage tags", "List and remove tags.", &struct{}{})
	tag.AddCommand("list", "List tags", "List tags with their link counts.", cmds.TagList)
	tag.AddCommand("rm", "Remove a tag", "Remove a tag from every link and delete it.", cmds.TagRm)

	flt, _ := parser.AddCommand("filter", "Manage exclusion filters", "Add, list, toggle, remove and test URL exclusion filters.", &struct{}{})
	flt.AddCommand("add", "Add a filter", "Add an exclusion filter. Kinds: domain, prefix, contains, regex.", cmds.FilterAdd)
	flt.AddCommand("list", "List filters", "List exclusion filters.", cmds.FilterList)
	flt.AddCommand("enable", "Enable a filter", "Enable a filter.", cmds.FilterEnable)
	flt.AddCommand("disable", "Disable a filter", "Disable a filter.", cmds.FilterDisable)
	flt.AddCommand("rm", "Remove a filter", "Remove a filter.", cmds.FilterRm)
	flt.AddCommand("test", "Test a pattern against a URL", "Check whether a pattern would exclude a sample URL, without saving anything.", cmds.FilterTest)

	parser.AddCommand("export", "Export the catalog", "Write every non-trashed link, category and tag as a JSON document.", cmds.Export)
	parser.AddCommand("import", "Import a catalog document", "Merge a JSON document produced by export into the catalog.", cmds.Import)
	parser.AddCommand("sources", "List browser profiles", "List discovered browser profiles and the outcome of their last scan.", cmds.Sources)
	parser.AddCommand("status", "Show catalog statistics", "Show catalog statistics, database size and configuration summary.", cmds.Status)

	return parser, &globals, cmds
}

// Run is the main entry point for the linktrail CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("linktrail %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
