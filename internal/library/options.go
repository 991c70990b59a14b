package library

import (
	"io"
	"log/slog"

	"github.com/runnerr0/trailmark/internal/metrics"
)

// Index directory names under the data directory.
const (
	HistoryIndexDir  = "history_index"
	BookmarkIndexDir = "bookmark_index"
)

// Options configures the record collections.
type Options struct {
	TitleWeight float64
	URLWeight   float64
	SearchLimit int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.TitleWeight <= 0 {
		o.TitleWeight = 2
	}
	if o.URLWeight <= 0 {
		o.URLWeight = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	return o
}
