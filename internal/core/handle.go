// Package core assembles the record store, the indexed collections, the
// permission store, the session graphs and the suggestion feed into one
// Handle. Open builds it once; Close tears it down.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/trailmark/internal/config"
	"github.com/runnerr0/trailmark/internal/library"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/policy"
	"github.com/runnerr0/trailmark/internal/session"
	"github.com/runnerr0/trailmark/internal/storage"
	"github.com/runnerr0/trailmark/internal/suggest"
)

// Directory names under the data directory.
const (
	DatabaseDir = "database"
	SessionsDir = "sessions"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	registry  *prometheus.Registry
	external  suggest.UserContentProvider
	favicons  suggest.FaviconResolver
	canon     policy.Canonicalizer
	sessionID string
}

// WithLogger overrides the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry registers metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithUserContentProvider plugs an external content search into suggestions.
func WithUserContentProvider(p suggest.UserContentProvider) Option {
	return func(o *options) { o.external = p }
}

// WithFaviconResolver attaches icons to suggestions.
func WithFaviconResolver(r suggest.FaviconResolver) Option {
	return func(o *options) { o.favicons = r }
}

// WithCanonicalizer replaces the default security origin mapping.
func WithCanonicalizer(c policy.Canonicalizer) Option {
	return func(o *options) { o.canon = c }
}

// WithSessionID resumes an existing session as the current one.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// Handle is the opened knowledge core.
type Handle struct {
	cfg      *config.Config
	dataDir  string
	logger   *slog.Logger
	logClose io.Closer
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store      *storage.Store
	history    *library.History
	bookmarks  *library.Bookmarks
	policies   *policy.Store
	sessions   *session.Manager
	feed       *suggest.Feed
	exclusions *library.Exclusions
}

// Open creates the data directory layout if needed and opens every
// component. Indices that disagree with the store are rebuilt before Open
// returns.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Handle, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dataDir, err := config.ExpandPath(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	h := &Handle{cfg: cfg, dataDir: dataDir, logClose: nopCloser{}}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	h.logger = o.logger
	if h.logger == nil {
		h.logger, h.logClose, err = NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	h.registry = o.registry
	if h.registry == nil {
		h.registry = prometheus.NewRegistry()
	}
	if cfg.Metrics.Enabled {
		h.metrics = metrics.New(h.registry)
	} else {
		h.metrics = metrics.New(nil)
	}

	h.store, err = storage.Open(storage.Config{
		Dir:            filepath.Join(dataDir, DatabaseDir),
		SyncWrites:     cfg.Storage.SyncWrites,
		GCInterval:     cfg.Storage.GCInterval(),
		GCDiscardRatio: cfg.Storage.GCDiscardRatio,
		Logger:         h.logger.With("component", "store"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	libOpts := library.Options{
		TitleWeight: cfg.Index.TitleWeight,
		URLWeight:   cfg.Index.URLWeight,
		SearchLimit: cfg.Index.SearchLimit,
		Logger:      h.logger.With("component", "history"),
		Metrics:     h.metrics,
	}
	h.history, err = library.OpenHistory(ctx, h.store, dataDir, libOpts)
	if err != nil {
		return nil, err
	}
	libOpts.Logger = h.logger.With("component", "bookmarks")
	h.bookmarks, err = library.OpenBookmarks(ctx, h.store, dataDir, libOpts)
	if err != nil {
		return nil, err
	}

	policyOpts := []policy.Option{
		policy.WithLogger(h.logger.With("component", "policy")),
		policy.WithMetrics(h.metrics),
	}
	if o.canon != nil {
		policyOpts = append(policyOpts, policy.WithCanonicalizer(o.canon))
	}
	h.policies = policy.New(h.store, policyOpts...)

	h.sessions, err = session.Open(session.Options{
		Dir:          filepath.Join(dataDir, SessionsDir),
		CurrentID:    o.sessionID,
		SaveInterval: cfg.Session.SaveInterval(),
		SaveBurst:    cfg.Session.SaveBurst,
		PrefixLimit:  cfg.Session.PrefixLimit,
		Logger:       h.logger.With("component", "session"),
		Metrics:      h.metrics,
	})
	if err != nil {
		return nil, err
	}

	sources := []suggest.Source{
		suggest.HistorySource(h.history),
		suggest.BookmarkSource(h.bookmarks),
	}
	if o.external != nil {
		sources = append(sources, suggest.ExternalSource(o.external))
	}
	if cfg.Suggest.IncludeSessions {
		sources = append(sources, suggest.SessionSource(h.sessions))
	}
	h.feed = suggest.NewFeed(suggest.Options{
		Limit:         cfg.Suggest.Limit,
		SourceTimeout: cfg.Suggest.SourceTimeout(),
		Favicons:      o.favicons,
		Logger:        h.logger.With("component", "suggest"),
		Metrics:       h.metrics,
	}, sources...)

	var invalid []string
	h.exclusions, invalid = library.NewExclusions(cfg.Capture.Domains(), cfg.Capture.Patterns())
	for _, p := range invalid {
		h.logger.Warn("ignoring invalid denylist pattern", "pattern", p)
	}

	h.logger.Debug("core opened", "data_dir", dataDir)
	return h, nil
}

// Close releases every component. It is safe to call on a partially
// opened handle.
func (h *Handle) Close() error {
	var errs []error
	if h.sessions != nil {
		errs = append(errs, h.sessions.Close())
	}
	if h.bookmarks != nil {
		errs = append(errs, h.bookmarks.Close())
	}
	if h.history != nil {
		errs = append(errs, h.history.Close())
	}
	if h.store != nil {
		errs = append(errs, h.store.Close())
	}
	if h.logClose != nil {
		errs = append(errs, h.logClose.Close())
	}
	return errors.Join(errs...)
}

func (h *Handle) Config() *config.Config { return h.cfg }
func (h *Handle) DataDir() string { return h.dataDir }
func (h *Handle) Logger() *slog.Logger { return h.logger }
func (h *Handle) Registry() *prometheus.Registry { return h.registry }
func (h *Handle) History() *library.History { return h.history }
func (h *Handle) Bookmarks() *library.Bookmarks { return h.bookmarks }
func (h *Handle) Policies() *policy.Store { return h.policies }
func (h *Handle) Sessions() *session.Manager { return h.sessions }
func (h *Handle) Suggestions() *suggest.Feed { return h.feed }
func (h *Handle) Exclusions() *library.Exclusions { return h.exclusions }

// PrivatePolicies returns a fresh in-memory policy overlay for a private
// window.
func (h *Handle) PrivatePolicies() *policy.Overlay {
	return h.policies.Ephemeral()
}

// Suggest runs an address-bar query.
func (h *Handle) Suggest(ctx context.Context, query string) ([]suggest.Item, error) {
	return h.feed.Query(ctx, query)
}
