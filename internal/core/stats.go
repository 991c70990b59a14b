package core

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"github.com/runnerr0/trailmark/internal/library"
)

// topDomainCount is how many domains Stats reports.
const topDomainCount = 10

// Stats holds aggregate statistics about the core's data.
type Stats struct {
	HistoryRecords    int
	HistoryIndexDocs  int
	Bookmarks         int
	BookmarkIndexDocs int
	PolicyOrigins     int
	Sessions          int
	OldestVisit       time.Time
	NewestVisit       time.Time
	DataSizeBytes     int64
	TopDomains        []DomainCount
}

// DomainCount pairs a domain with its visit count.
type DomainCount struct {
	Domain string
	Count  int
}

// Stats scans the history and reports counts, the visit time range and the
// most visited domains.
func (h *Handle) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var err error

	if stats.HistoryRecords, err = h.history.Count(ctx); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	if stats.HistoryIndexDocs, err = h.history.IndexCount(ctx); err != nil {
		return nil, fmt.Errorf("count history index: %w", err)
	}
	if stats.Bookmarks, err = h.bookmarks.Count(ctx); err != nil {
		return nil, fmt.Errorf("count bookmarks: %w", err)
	}
	if stats.BookmarkIndexDocs, err = h.bookmarks.IndexCount(ctx); err != nil {
		return nil, fmt.Errorf("count bookmark index: %w", err)
	}
	settings, err := h.policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	stats.PolicyOrigins = len(settings)
	stats.Sessions = len(h.sessions.List())

	domains := make(map[string]int)
	err = h.history.Scan(ctx, func(r library.HistoryRecord) error {
		if stats.OldestVisit.IsZero() || r.Timestamp.Before(stats.OldestVisit) {
			stats.OldestVisit = r.Timestamp
		}
		if r.Timestamp.After(stats.NewestVisit) {
			stats.NewestVisit = r.Timestamp
		}
		if d := r.Domain(); d != "" {
			domains[d]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	stats.TopDomains = topDomains(domains, topDomainCount)
	stats.DataSizeBytes = dirSize(h.dataDir)
	return stats, nil
}

func topDomains(counts map[string]int, n int) []DomainCount {
	out := make([]DomainCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, DomainCount{Domain: d, Count: c})
	}
	slices.SortFunc(out, func(a, b DomainCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dirSize sums regular file sizes under dir. Unreadable entries are skipped.
func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
