package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/runnerr0/trailmark/internal/core"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DataDir           string            `json:"data_dir"`
	DataSizeBytes     int64             `json:"data_size_bytes"`
	HistoryRecords    int               `json:"history_records"`
	HistoryIndexDocs  int               `json:"history_index_docs"`
	Bookmarks         int               `json:"bookmarks"`
	BookmarkIndexDocs int               `json:"bookmark_index_docs"`
	PolicyOrigins     int               `json:"policy_origins"`
	Sessions          int               `json:"sessions"`
	OldestVisit       string            `json:"oldest_visit,omitempty"`
	NewestVisit       string            `json:"newest_visit,omitempty"`
	RetentionDays     int               `json:"retention_days"`
	Sources           []string          `json:"suggestion_sources"`
	TopDomains        []domainCountJSON `json:"top_domains"`
}

type domainCountJSON struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

// executeWith runs status against an open handle (for testing).
func (c *StatusCommand) executeWith(ctx context.Context, h *core.Handle) error {
	stats, err := h.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		err = c.printStatusJSON(h, stats)
	} else {
		err = c.printStatusHuman(h, stats)
	}
	if err != nil || !c.Metrics {
		return err
	}
	return printMetrics(h)
}

func (c *StatusCommand) printStatusHuman(h *core.Handle, stats *core.Stats) error {
	fmt.Println("Trailmark Status")
	fmt.Println("================")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Data:          %s (%s)\n", h.DataDir(), formatBytes(stats.DataSizeBytes))
	fmt.Printf("History:       %s\n", formatNumber(stats.HistoryRecords))
	fmt.Printf("Bookmarks:     %s\n", formatNumber(stats.Bookmarks))
	fmt.Printf("Permissions:   %s %s\n", formatNumber(stats.PolicyOrigins), plural(stats.PolicyOrigins, "origin"))
	fmt.Printf("Sessions:      %s\n", formatNumber(stats.Sessions))

	if stats.HistoryRecords > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestVisit.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestVisit.Local().Format("2006-01-02"))
	}

	if days := h.Config().Retention.Days; days > 0 {
		fmt.Printf("Retention:     %d days\n", days)
	} else {
		fmt.Println("Retention:     forever")
	}

	fmt.Println()
	fmt.Printf("History index:  %s\n", indexHealth(stats.HistoryIndexDocs, stats.HistoryRecords))
	fmt.Printf("Bookmark index: %s\n", indexHealth(stats.BookmarkIndexDocs, stats.Bookmarks))

	if len(stats.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-20s %s\n", d.Domain, formatNumber(d.Count))
		}
	}

	return nil
}

func indexHealth(docs, records int) string {
	if docs == records {
		return fmt.Sprintf("ok (%s documents)", formatNumber(docs))
	}
	return fmt.Sprintf("out of sync (%s documents, %s records); run reindex", formatNumber(docs), formatNumber(records))
}

func (c *StatusCommand) printStatusJSON(h *core.Handle, stats *core.Stats) error {
	out := statusJSON{
		Version:           c.version,
		DataDir:           h.DataDir(),
		DataSizeBytes:     stats.DataSizeBytes,
		HistoryRecords:    stats.HistoryRecords,
		HistoryIndexDocs:  stats.HistoryIndexDocs,
		Bookmarks:         stats.Bookmarks,
		BookmarkIndexDocs: stats.BookmarkIndexDocs,
		PolicyOrigins:     stats.PolicyOrigins,
		Sessions:          stats.Sessions,
		RetentionDays:     h.Config().Retention.Days,
		Sources:           h.Suggestions().Sources(),
		TopDomains:        make([]domainCountJSON, len(stats.TopDomains)),
	}

	if stats.HistoryRecords > 0 {
		out.OldestVisit = stats.OldestVisit.UTC().Format(time.RFC3339)
		out.NewestVisit = stats.NewestVisit.UTC().Format(time.RFC3339)
	}

	for i, d := range stats.TopDomains {
		out.TopDomains[i] = domainCountJSON{Domain: d.Domain, Count: d.Count}
	}

	return printJSON(out)
}

// printMetrics writes every gathered metric family in the Prometheus text
// exposition format.
func printMetrics(h *core.Handle) error {
	mfs, err := h.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Println()
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
