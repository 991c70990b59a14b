package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/library"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

// executeWith prunes against an open handle (used by tests).
func (c *PruneCommand) executeWith(ctx context.Context, h *core.Handle) error {
	var period time.Duration
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
		}
		period = d
	} else {
		days := h.Config().Retention.Days
		if days <= 0 {
			fmt.Println("Retention is disabled; nothing to prune.")
			return nil
		}
		period = time.Duration(days) * 24 * time.Hour
	}
	cutoff := time.Now().Add(-period)

	var (
		n   int
		err error
	)
	if c.DryRun {
		err = h.History().Scan(ctx, func(r library.HistoryRecord) error {
			if r.Timestamp.Before(cutoff) {
				n++
			}
			return nil
		})
	} else {
		n, err = h.PruneOlderThan(ctx, cutoff)
	}
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	if c.globals.JSON {
		return printJSON(map[string]any{
			"dry_run": c.DryRun,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
			"visits":  n,
		})
	}

	verb := "Pruned"
	if c.DryRun {
		verb = "Would prune"
	}
	fmt.Printf("%s %d %s older than %s.\n", verb, n, plural(n, "visit"), formatDurationHuman(period))
	return nil
}
