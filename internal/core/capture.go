package core

import (
	"context"
	"time"

	"github.com/runnerr0/trailmark/internal/library"
)

// Visit is a finished top-level page load reported by the browser.
type Visit struct {
	OriginalURI string
	URI         string
	Title       string
	At          time.Time
	Private     bool
}

// RecordVisit stores a visit in history unless it came from a private tab
// or its domain is denylisted. recorded is false when the visit was skipped.
func (h *Handle) RecordVisit(ctx context.Context, v Visit) (rec library.HistoryRecord, recorded bool, err error) {
	if v.Private && h.cfg.Capture.ExcludePrivate {
		return rec, false, nil
	}
	if h.exclusions.Excluded(v.URI) || (v.OriginalURI != "" && h.exclusions.Excluded(v.OriginalURI)) {
		h.logger.Debug("visit excluded", "domain", library.ExtractDomain(v.URI))
		return rec, false, nil
	}
	rec, err = h.history.Record(ctx, v.OriginalURI, v.URI, v.Title, v.At)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}
