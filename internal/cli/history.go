package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/library"
)

// Execute implements the go-flags Commander interface for HistoryAddCommand.
func (c *HistoryAddCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for history add")
	}
	return withHandle(c.globals, c.executeWith)
}

// executeWith records the visit against an open handle (used by tests).
func (c *HistoryAddCommand) executeWith(ctx context.Context, h *core.Handle) error {
	parsed, err := url.ParseRequestURI(c.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", c.URL)
	}

	var at time.Time
	if c.At != "" {
		at, err = time.Parse(time.RFC3339, c.At)
		if err != nil {
			return fmt.Errorf("invalid --at value %q: %w", c.At, err)
		}
	}

	rec, recorded, err := h.RecordVisit(ctx, core.Visit{
		OriginalURI: c.OriginalURL,
		URI:         c.URL,
		Title:       c.Title,
		At:          at,
	})
	if err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}
	// The CLI user gets an explicit error where the browser is silently skipped.
	if !recorded {
		return fmt.Errorf("domain %q is excluded by the denylist", parsed.Hostname())
	}

	if c.globals.JSON {
		return printJSON(toHistoryJSON(rec))
	}

	fmt.Printf("Added visit %s (%s)\n", rec.ID, rec.Timestamp.Format(time.RFC3339))
	fmt.Printf("  URL: %s\n", rec.URI)
	fmt.Printf("  Title: %s\n", rec.Title)
	return nil
}

// Execute implements the go-flags Commander interface for HistoryListCommand.
func (c *HistoryListCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

func (c *HistoryListCommand) executeWith(ctx context.Context, h *core.Handle) error {
	recs, err := h.History().List(ctx)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if c.Limit > 0 && len(recs) > c.Limit {
		recs = recs[:c.Limit]
	}

	if c.globals.JSON {
		return printHistoryJSON("", recs)
	}
	if len(recs) == 0 {
		fmt.Println("History is empty.")
		return nil
	}
	for i, r := range recs {
		printHistoryRecord(i+1, r)
		if i < len(recs)-1 {
			fmt.Println()
		}
	}
	return nil
}

// Execute implements the go-flags Commander interface for HistoryShowCommand.
func (c *HistoryShowCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for history show")
	}
	return withHandle(c.globals, c.executeWith)
}

func (c *HistoryShowCommand) executeWith(ctx context.Context, h *core.Handle) error {
	rec, found, err := h.History().Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get visit: %w", err)
	}
	if !found {
		return fmt.Errorf("visit not found: %s", c.ID)
	}

	if c.globals.JSON {
		return printJSON(toHistoryJSON(rec))
	}

	switch c.Format {
	case "url":
		fmt.Println(rec.URI)
	case "title":
		fmt.Println(rec.Title)
	case "md":
		outputMarkdown(rec)
	default: // "full"
		outputFull(rec)
	}
	return nil
}

func outputFull(rec library.HistoryRecord) {
	fmt.Println(rec.ID)
	fmt.Printf("Title:     %s\n", rec.Title)
	fmt.Printf("URL:       %s\n", rec.URI)
	if rec.OriginalURI != "" {
		fmt.Printf("Original:  %s\n", rec.OriginalURI)
	}
	fmt.Printf("Domain:    %s\n", rec.Domain())
	fmt.Printf("Visited:   %s\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
}

func outputMarkdown(rec library.HistoryRecord) {
	fmt.Println("---")
	fmt.Printf("id: %s\n", rec.ID)
	fmt.Printf("title: %s\n", rec.Title)
	fmt.Printf("url: %s\n", rec.URI)
	if rec.OriginalURI != "" {
		fmt.Printf("original_url: %s\n", rec.OriginalURI)
	}
	fmt.Printf("domain: %s\n", rec.Domain())
	fmt.Printf("visited: %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	fmt.Println("---")
	fmt.Println()
	fmt.Printf("[%s](%s)\n", rec.Title, rec.URI)
}

// Execute implements the go-flags Commander interface for HistoryDeleteCommand.
func (c *HistoryDeleteCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("history delete requires at least one visit ID")
	}
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args)
	})
}

func (c *HistoryDeleteCommand) executeWith(ctx context.Context, h *core.Handle, ids []string) error {
	n, err := h.History().DeleteMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("delete visits: %w", err)
	}
	if c.globals.JSON {
		return printJSON(map[string]int{"deleted": n})
	}
	fmt.Printf("Deleted %d %s.\n", n, plural(n, "visit"))
	return nil
}
