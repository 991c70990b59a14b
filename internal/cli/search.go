package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/library"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args)
	})
}

// executeWith runs the search against an open handle (for testing).
func (c *SearchCommand) executeWith(ctx context.Context, h *core.Handle, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("search requires a query")
	}
	if c.Bookmarks {
		return c.searchBookmarks(ctx, h, query)
	}

	var since time.Time
	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", c.Since, err)
		}
		since = time.Now().Add(-dur)
	}

	// Over-fetch when filtering so the limit still applies to what is shown.
	fetch := c.Limit
	if !since.IsZero() || c.Domain != "" {
		fetch = c.Limit * 5
	}
	recs, err := h.History().Search(ctx, query, fetch)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := recs[:0]
	for _, r := range recs {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		if c.Domain != "" && !strings.EqualFold(r.Domain(), c.Domain) {
			continue
		}
		results = append(results, r)
		if c.Limit > 0 && len(results) == c.Limit {
			break
		}
	}

	if c.globals != nil && c.globals.JSON {
		return printHistoryJSON(query, results)
	}
	return c.printHuman(query, results)
}

func (c *SearchCommand) printHuman(query string, results []library.HistoryRecord) error {
	if len(results) == 0 {
		fmt.Printf("No results found for %q\n", query)
		return nil
	}

	fmt.Printf("Found %d %s for %q\n\n", len(results), plural(len(results), "result"), query)
	for i, r := range results {
		printHistoryRecord(i+1, r)
		if i < len(results)-1 {
			fmt.Println()
		}
	}
	return nil
}

func printHistoryRecord(n int, r library.HistoryRecord) {
	title := r.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%d. %s", n, title)
	if d := r.Domain(); d != "" {
		fmt.Printf(" \u2014 %s", d)
	}
	fmt.Println()
	fmt.Printf("   %s\n", r.URI)
	meta := r.Timestamp.Local().Format("2006-01-02 15:04") + " \u00b7 " + r.ID
	if r.OriginalURI != "" && r.OriginalURI != r.URI {
		meta += " \u00b7 via " + r.OriginalURI
	}
	fmt.Printf("   %s\n", meta)
}

type historyJSON struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	OriginalURI string `json:"original_uri,omitempty"`
	Title       string `json:"title"`
	Domain      string `json:"domain"`
	Timestamp   string `json:"timestamp"`
}

type historySearchJSON struct {
	Count   int           `json:"count"`
	Query   string        `json:"query,omitempty"`
	Results []historyJSON `json:"results"`
}

func toHistoryJSON(r library.HistoryRecord) historyJSON {
	return historyJSON{
		ID:          r.ID,
		URI:         r.URI,
		OriginalURI: r.OriginalURI,
		Title:       r.Title,
		Domain:      r.Domain(),
		Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func printHistoryJSON(query string, results []library.HistoryRecord) error {
	out := historySearchJSON{
		Count:   len(results),
		Query:   query,
		Results: make([]historyJSON, len(results)),
	}
	for i, r := range results {
		out.Results[i] = toHistoryJSON(r)
	}
	return printJSON(out)
}

func (c *SearchCommand) searchBookmarks(ctx context.Context, h *core.Handle, query string) error {
	bms, err := h.Bookmarks().Search(ctx, query, c.Limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if c.globals != nil && c.globals.JSON {
		return printBookmarksJSON(bms)
	}
	if len(bms) == 0 {
		fmt.Printf("No bookmarks found for %q\n", query)
		return nil
	}
	fmt.Printf("Found %d %s for %q\n\n", len(bms), plural(len(bms), "bookmark"), query)
	printBookmarks(bms)
	return nil
}

// Execute implements the go-flags Commander interface for SuggestCommand.
func (c *SuggestCommand) Execute(args []string) error {
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args)
	})
}

type suggestionJSON struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

func (c *SuggestCommand) executeWith(ctx context.Context, h *core.Handle, args []string) error {
	query := strings.Join(args, " ")
	items, err := h.Suggest(ctx, query)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]suggestionJSON, len(items))
		for i, it := range items {
			out[i] = suggestionJSON{Title: it.Title, URI: it.URI}
		}
		return printJSON(out)
	}

	if len(items) == 0 {
		fmt.Println("No suggestions.")
		return nil
	}
	for _, it := range items {
		if it.Title != "" {
			fmt.Printf("%s  %s\n", it.URI, it.Title)
		} else {
			fmt.Println(it.URI)
		}
	}
	return nil
}
