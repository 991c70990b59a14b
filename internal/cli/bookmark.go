package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/library"
)

// Execute implements the go-flags Commander interface for BookmarkAddCommand.
func (c *BookmarkAddCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for bookmark add")
	}
	if c.Title == "" {
		return fmt.Errorf("--title is required for bookmark add")
	}
	return withHandle(c.globals, c.executeWith)
}

// executeWith saves the bookmark against an open handle (used by tests).
func (c *BookmarkAddCommand) executeWith(ctx context.Context, h *core.Handle) error {
	parsed, err := url.ParseRequestURI(c.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", c.URL)
	}

	if c.Body != "" && c.BodyFile != "" {
		return fmt.Errorf("--body and --body-file are mutually exclusive")
	}
	body := c.Body
	if c.BodyFile != "" {
		data, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return fmt.Errorf("reading body file: %w", err)
		}
		body = string(data)
	}

	b, err := h.Bookmarks().Save(ctx, c.URL, c.Title, body, c.Tags)
	if err != nil {
		return fmt.Errorf("saving bookmark: %w", err)
	}

	if c.globals.JSON {
		return printJSON(toBookmarkJSON(b))
	}

	fmt.Printf("Saved bookmark %s\n", b.URL)
	fmt.Printf("  Title: %s\n", b.Title)
	if len(b.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(b.Tags, ", "))
	}
	return nil
}

// Execute implements the go-flags Commander interface for BookmarkListCommand.
func (c *BookmarkListCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

func (c *BookmarkListCommand) executeWith(ctx context.Context, h *core.Handle) error {
	bms, err := h.Bookmarks().List(ctx)
	if err != nil {
		return fmt.Errorf("list bookmarks: %w", err)
	}
	if c.Tag != "" {
		urls, err := h.Bookmarks().KeysForTerm(ctx, "tag", c.Tag)
		if err != nil {
			return fmt.Errorf("lookup tag: %w", err)
		}
		bms = slices.DeleteFunc(bms, func(b library.Bookmark) bool {
			return !slices.Contains(urls, b.URL)
		})
	}

	if c.globals.JSON {
		return printBookmarksJSON(bms)
	}
	if len(bms) == 0 {
		fmt.Println("No bookmarks.")
		return nil
	}
	printBookmarks(bms)
	return nil
}

// Execute implements the go-flags Commander interface for BookmarkDeleteCommand.
func (c *BookmarkDeleteCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("bookmark delete requires at least one URL")
	}
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args)
	})
}

func (c *BookmarkDeleteCommand) executeWith(ctx context.Context, h *core.Handle, urls []string) error {
	n, err := h.Bookmarks().DeleteMany(ctx, urls)
	if err != nil {
		return fmt.Errorf("delete bookmarks: %w", err)
	}
	if c.globals.JSON {
		return printJSON(map[string]int{"deleted": n})
	}
	fmt.Printf("Deleted %d %s.\n", n, plural(n, "bookmark"))
	return nil
}

type bookmarkJSON struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Body  string   `json:"body,omitempty"`
	Tags  []string `json:"tags"`
}

func toBookmarkJSON(b library.Bookmark) bookmarkJSON {
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	return bookmarkJSON{URL: b.URL, Title: b.Title, Body: b.Body, Tags: tags}
}

func printBookmarksJSON(bms []library.Bookmark) error {
	out := make([]bookmarkJSON, len(bms))
	for i, b := range bms {
		out[i] = toBookmarkJSON(b)
	}
	return printJSON(out)
}

func printBookmarks(bms []library.Bookmark) {
	for i, b := range bms {
		fmt.Printf("%d. %s\n", i+1, b.Title)
		fmt.Printf("   %s\n", b.URL)
		if len(b.Tags) > 0 {
			fmt.Printf("   [%s]\n", strings.Join(b.Tags, ", "))
		}
	}
}
