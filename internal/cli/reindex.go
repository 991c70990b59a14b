package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/trailmark/internal/core"
)

// Execute implements the go-flags Commander interface for ReindexCommand.
func (c *ReindexCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

func (c *ReindexCommand) executeWith(ctx context.Context, h *core.Handle) error {
	history, bookmarks, err := h.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	if c.globals.JSON {
		return printJSON(map[string]int{"history": history, "bookmarks": bookmarks})
	}
	fmt.Printf("Reindexed %s %s and %s %s.\n",
		formatNumber(history), plural(history, "visit"),
		formatNumber(bookmarks), plural(bookmarks, "bookmark"))
	return nil
}
