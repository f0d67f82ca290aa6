package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/storage"
)

func TestAdd_CreatesThenMerges(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	cmd := &AddCommand{Title: "Go", Category: "Dev", Tags: []string{"lang"}, Favorite: true}
	cmd.Args.URL = "HTTPS://Go.dev/doc/#intro"
	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a))
	})
	assert.Contains(t, output, "Added HTTPS://Go.dev/doc/#intro")

	links, err := a.store.ListLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	l := links[0]
	assert.Equal(t, "https://go.dev/doc", l.CanonicalURL)
	assert.Equal(t, "Go", l.Title)
	assert.Equal(t, "Dev", l.CategoryName)
	assert.Equal(t, []string{"lang"}, l.Tags)
	assert.True(t, l.Favorite)

	again := &AddCommand{}
	again.Args.URL = "https://go.dev/doc/"
	output = captureOutput(t, func() {
		require.NoError(t, again.run(ctx, a))
	})
	assert.Contains(t, output, "Merged into existing link")

	n, err := a.store.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdd_InvalidURL(t *testing.T) {
	a := newTestApp(t)
	cmd := &AddCommand{}
	cmd.Args.URL = "ftp://example.com/file"
	var err error
	captureOutput(t, func() {
		err = cmd.run(context.Background(), a)
	})
	assert.ErrorContains(t, err, "invalid url")
}

func TestAdd_Filtered(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.store.AddFilter(ctx, storage.Filter{Pattern: "example.com", Kind: "domain", Active: true})
	require.NoError(t, err)

	cmd := &AddCommand{}
	cmd.Args.URL = "https://www.example.com/private"
	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a))
	})
	assert.Contains(t, output, "Not added")

	n, err := a.store.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_TrashedLinkStaysTrashed(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	l := addLink(t, a, "https://example.org/a", "Alpha")
	_, err := a.store.TrashLinks(ctx, []string{l.ID})
	require.NoError(t, err)

	cmd := &AddCommand{}
	cmd.Args.URL = l.CanonicalURL
	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a))
	})
	assert.Contains(t, output, "is in the trash")

	got, err := a.store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}

func TestList_EmptyAndPopulated(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	output := captureOutput(t, func() {
		require.NoError(t, (&ListCommand{}).run(ctx, a.store, nil))
	})
	assert.Contains(t, output, "No links found")

	addLink(t, a, "https://example.org/a", "Alpha page")
	addLink(t, a, "https://example.org/b", "Beta page")

	output = captureOutput(t, func() {
		require.NoError(t, (&ListCommand{Limit: 50}).run(ctx, a.store, []string{"beta"}))
	})
	assert.Contains(t, output, "Showing 1 of 1 link")
	assert.Contains(t, output, "Beta page")
	assert.Contains(t, output, "https://example.org/b")
	assert.NotContains(t, output, "Alpha page")
}

func TestList_JSON(t *testing.T) {
	a := newTestApp(t)
	addLink(t, a, "https://example.org/a", "Alpha")
	addLink(t, a, "https://example.org/b", "Beta")

	cmd := &ListCommand{Limit: 1, baseCommand: jsonBase()}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(context.Background(), a.store, nil))
	})

	var out struct {
		Count int        `json:"count"`
		Total int64      `json:"total"`
		Links []linkJSON `json:"links"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, int64(2), out.Total)
	require.Len(t, out.Links, 1)
	assert.NotNil(t, out.Links[0].Tags)
}

func TestList_InvalidSince(t *testing.T) {
	a := newTestApp(t)
	err := (&ListCommand{Since: "soon"}).run(context.Background(), a.store, nil)
	assert.ErrorContains(t, err, "invalid --since")
}

func TestShow_Formats(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	l := addLink(t, a, "https://example.org/a?b=1#frag", "Alpha")

	show := &ShowCommand{Format: "full"}
	show.Args.ID = l.ID
	output := captureOutput(t, func() {
		require.NoError(t, show.run(ctx, a.store))
	})
	assert.Contains(t, output, "Title:       Alpha")
	assert.Contains(t, output, "URL:         https://example.org/a?b=1")
	assert.Contains(t, output, "Raw URL:     https://example.org/a?b=1#frag")

	show.Format = "url"
	output = captureOutput(t, func() {
		require.NoError(t, show.run(ctx, a.store))
	})
	assert.Equal(t, "https://example.org/a?b=1\n", output)

	show.Args.ID = "missing"
	assert.Error(t, show.run(ctx, a.store))
}

func TestEdit_UpdatesUserFields(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	l := addLink(t, a, "https://example.org/a", "Alpha")
	_, err := a.store.CreateCategory(ctx, "Reading", "")
	require.NoError(t, err)

	cmd := &EditCommand{Title: "Renamed", Note: "later", Category: "reading", Tags: []string{"x", "y"}, Visits: 42}
	cmd.Args.ID = l.ID
	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a.store))
	})
	assert.Contains(t, output, "Updated "+l.ID)

	got, err := a.store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "later", got.Note)
	assert.Equal(t, "Reading", got.CategoryName)
	assert.Equal(t, []string{"x", "y"}, got.Tags)
	assert.Equal(t, int64(42), got.VisitCount)

	clearAll := &EditCommand{ClearNote: true, ClearCategory: true, ClearTags: true, Toggle: true, Visits: -1}
	clearAll.Args.ID = l.ID
	captureOutput(t, func() {
		require.NoError(t, clearAll.run(ctx, a.store))
	})
	got, err = a.store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Note)
	assert.Empty(t, got.CategoryName)
	assert.Empty(t, got.Tags)
	assert.True(t, got.Favorite)
	assert.Equal(t, int64(42), got.VisitCount)
}

func TestEdit_Errors(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	l := addLink(t, a, "https://example.org/a", "Alpha")

	cmd := &EditCommand{Favorite: true, Unfavorite: true, Visits: -1}
	cmd.Args.ID = l.ID
	assert.ErrorContains(t, cmd.run(ctx, a.store), "mutually exclusive")

	cmd = &EditCommand{Category: "Nope", Visits: -1}
	cmd.Args.ID = l.ID
	assert.ErrorContains(t, cmd.run(ctx, a.store), "category add")
}

func TestTrashAndRestore(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	l1 := addLink(t, a, "https://example.org/a", "Alpha")
	l2 := addLink(t, a, "https://example.org/b", "Beta")

	trash := &TrashCommand{}
	trash.Args.IDs = []string{l1.ID, l2.ID, "unknown"}
	output := captureOutput(t, func() {
		require.NoError(t, trash.run(ctx, a.store))
	})
	assert.Contains(t, output, "Moved 2 links to the trash")

	output = captureOutput(t, func() {
		require.NoError(t, (&ListCommand{Trash: true, Limit: 10}).run(ctx, a.store, nil))
	})
	assert.Contains(t, output, "Showing 2 of 2 links")

	restore := &RestoreCommand{baseCommand: jsonBase()}
	restore.Args.IDs = []string{l1.ID}
	output = captureOutput(t, func() {
		require.NoError(t, restore.run(ctx, a.store))
	})
	assert.JSONEq(t, `{"restored": 1}`, output)

	n, err := a.store.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPurgeTrash(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	output := captureOutput(t, func() {
		require.NoError(t, (&PurgeTrashCommand{}).run(ctx, a.store))
	})
	assert.Contains(t, output, "Trash is empty.")

	keep := addLink(t, a, "https://example.org/keep", "Keep")
	gone := addLink(t, a, "https://example.org/gone", "Gone")
	_, err := a.store.TrashLinks(ctx, []string{gone.ID})
	require.NoError(t, err)

	t.Run("wrong confirmation", func(t *testing.T) {
		cmd := &PurgeTrashCommand{in: strings.NewReader("purge\n")}
		var err error
		output := captureOutput(t, func() {
			err = cmd.run(ctx, a.store)
		})
		assert.ErrorContains(t, err, "did not match")
		assert.Contains(t, output, "permanently delete 1 trashed link")
	})

	t.Run("no input", func(t *testing.T) {
		cmd := &PurgeTrashCommand{in: strings.NewReader("")}
		var err error
		captureOutput(t, func() {
			err = cmd.run(ctx, a.store)
		})
		assert.ErrorContains(t, err, "no input")
	})

	cmd := &PurgeTrashCommand{in: strings.NewReader("PURGE\n")}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a.store))
	})
	assert.Contains(t, output, "Purged 1 link from the trash.")

	_, err = a.store.GetLink(ctx, gone.ID)
	assert.Error(t, err)
	_, err = a.store.GetLink(ctx, keep.ID)
	assert.NoError(t, err)
}
