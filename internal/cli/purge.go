package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/trailmark/internal/core"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}
	if !c.Force {
		if err := confirmPurge(os.Stdin); err != nil {
			return err
		}
	}
	return withHandle(c.globals, c.executeWith)
}

// confirmPurge prints the warning and reads the confirmation word from in.
func confirmPurge(in io.Reader) error {
	fmt.Println("\u26a0 WARNING: This will permanently delete ALL trailmark data.")
	fmt.Println("  - All visit history")
	fmt.Println("  - All bookmarks")
	fmt.Println("  - All permission decisions")
	fmt.Println("  - All saved sessions")
	fmt.Println()
	fmt.Println("This action cannot be undone.")
	fmt.Println()
	fmt.Print(`Type "PURGE" to confirm: `)

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != "PURGE" {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

// executeWith purges an open handle (used by tests).
func (c *PurgeCommand) executeWith(ctx context.Context, h *core.Handle) error {
	if err := h.Purge(ctx); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.globals.JSON {
		return printJSON(map[string]any{
			"purged":  true,
			"message": "all data deleted",
		})
	}

	fmt.Println("Purged all data. Trailmark is empty.")
	return nil
}
