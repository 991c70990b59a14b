// Package suggest fuses address-bar candidates from several sources.
//
// Sources are queried concurrently and merged in a fixed order: history,
// bookmarks, the external provider, then the session prefix index. Each
// source ranks its own hits; no cross-source score normalization is done.
// The first occurrence of a URI wins.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
)

// Favicon is raw icon image data.
type Favicon []byte

// FaviconResolver looks up the icon for a page.
type FaviconResolver interface {
	FaviconFor(ctx context.Context, uri string) (Favicon, error)
}

// Item is one suggestion.
type Item struct {
	Title   string
	URI     string
	Favicon Favicon
}

// ErrAllSourcesFailed is returned when no source produced a result.
var ErrAllSourcesFailed = errors.New("all suggestion sources failed")

const (
	DefaultLimit         = 8
	DefaultSourceTimeout = 250 * time.Millisecond

	faviconConcurrency = 4
)

// Options configures a Feed.
type Options struct {
	// Limit caps the number of hits requested from each source. The
	// merged list is not truncated; callers trim it to fit.
	Limit int

	// SourceTimeout bounds each source independently.
	SourceTimeout time.Duration

	Favicons FaviconResolver
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Feed runs suggestion queries.
type Feed struct {
	sources  []Source
	limit    int
	timeout  time.Duration
	favicons FaviconResolver
	logger   *slog.Logger
	metrics  *metrics.Metrics

	iconGroup singleflight.Group
}

// NewFeed returns a feed over sources, merged in the order given. Nil
// sources are skipped.
func NewFeed(opts Options, sources ...Source) *Feed {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	f := &Feed{
		limit:    opts.Limit,
		timeout:  opts.SourceTimeout,
		favicons: opts.Favicons,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	for _, s := range sources {
		if s != nil {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

// Sources returns the source names in merge order.
func (f *Feed) Sources() []string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return names
}

// Query fans out to every source and returns the merged, de-duplicated
// list. A failing source contributes nothing; Query fails only when every
// source fails, or with ErrCancelled when ctx ends.
func (f *Feed) Query(ctx context.Context, query string) ([]Item, error) {
	start := time.Now()
	defer func() { f.metrics.SuggestSeconds.Observe(time.Since(start).Seconds()) }()

	query = strings.TrimSpace(query)
	if query == "" || len(f.sources) == 0 {
		return []Item{}, nil
	}

	results := make([][]Item, len(f.sources))
	errs := make([]error, len(f.sources))

	var g errgroup.Group
	for i, src := range f.sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			results[i], errs[i] = src.Suggest(sctx, query, f.limit)
			return nil
		})
	}
	g.Wait()

	if err := coreerr.FromContext(ctx, "suggest"); err != nil {
		return nil, err
	}

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		name := f.sources[i].Name()
		errs[i] = fmt.Errorf("%s: %w", name, err)
		f.metrics.SuggestSourceErrors.WithLabelValues(name).Inc()
		f.logger.Warn("suggestion source failed", "source", name, "error", err)
	}
	if failed == len(f.sources) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	items := merge(results)
	f.attachFavicons(ctx, items)
	return items, nil
}

// merge concatenates per-source lists in order, keeping the first item for
// each URI.
func merge(results [][]Item) []Item {
	seen := make(map[string]struct{})
	out := []Item{}
	for _, items := range results {
		for _, it := range items {
			if it.URI == "" {
				continue
			}
			if _, dup := seen[it.URI]; dup {
				continue
			}
			seen[it.URI] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}

// attachFavicons fills Favicon for items that lack one. Concurrent lookups
// of the same URI share one resolver call. Failures leave the icon empty.
func (f *Feed) attachFavicons(ctx context.Context, items []Item) {
	if f.favicons == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(faviconConcurrency)
	for i := range items {
		if len(items[i].Favicon) > 0 {
			continue
		}
		g.Go(func() error {
			uri := items[i].URI
			v, err, _ := f.iconGroup.Do(uri, func() (any, error) {
				sctx, cancel := context.WithTimeout(ctx, f.timeout)
				defer cancel()
				return f.favicons.FaviconFor(sctx, uri)
			})
			if err != nil {
				f.logger.Debug("favicon lookup failed", "uri", uri, "error", err)
				return nil
			}
			items[i].Favicon = v.(Favicon)
			return nil
		})
	}
	g.Wait()
}
