package core

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/trailmark/internal/policy"
)

// PruneExpired deletes history older than the configured retention. It is
// a no-op when retention is zero.
func (h *Handle) PruneExpired(ctx context.Context) (int, error) {
	days := h.cfg.Retention.Days
	if days <= 0 {
		return 0, nil
	}
	return h.PruneOlderThan(ctx, time.Now().AddDate(0, 0, -days))
}

// PruneOlderThan deletes history stamped before cutoff.
func (h *Handle) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := h.history.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		h.logger.Info("pruned history", "records", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

// Purge deletes all history, bookmarks, permission decisions and session
// graphs.
func (h *Handle) Purge(ctx context.Context) error {
	if err := h.history.Clear(ctx); err != nil {
		return fmt.Errorf("purge history: %w", err)
	}
	if err := h.bookmarks.Clear(ctx); err != nil {
		return fmt.Errorf("purge bookmarks: %w", err)
	}
	if err := h.store.DropTable(ctx, policy.Table.Prefix()); err != nil {
		return fmt.Errorf("purge policies: %w", err)
	}
	if err := h.sessions.Purge(); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	h.logger.Info("all data purged")
	return nil
}

// Reindex rebuilds both text indices from the store.
func (h *Handle) Reindex(ctx context.Context) (history, bookmarks int, err error) {
	history, err = h.history.Reindex(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reindex history: %w", err)
	}
	bookmarks, err = h.bookmarks.Reindex(ctx)
	if err != nil {
		return history, 0, fmt.Errorf("reindex bookmarks: %w", err)
	}
	return history, bookmarks, nil
}
