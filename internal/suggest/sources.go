package suggest

import (
	"context"

	"github.com/runnerr0/trailmark/internal/library"
	"github.com/runnerr0/trailmark/internal/session"
)

// Source names, in fusion order.
const (
	SourceHistory   = "history"
	SourceBookmarks = "bookmarks"
	SourceExternal  = "external"
	SourceSession   = "session"
)

// Source yields ranked candidates for a query.
type Source interface {
	Name() string
	Suggest(ctx context.Context, query string, limit int) ([]Item, error)
}

// UserContentProvider is the peer-to-peer content search plugged into the
// address bar.
type UserContentProvider interface {
	Search(ctx context.Context, query string) ([]Item, error)
}

type funcSource struct {
	name string
	fn   func(ctx context.Context, query string, limit int) ([]Item, error)
}

func (s funcSource) Name() string { return s.name }

func (s funcSource) Suggest(ctx context.Context, query string, limit int) ([]Item, error) {
	return s.fn(ctx, query, limit)
}

// NewSource adapts a function to Source.
func NewSource(name string, fn func(ctx context.Context, query string, limit int) ([]Item, error)) Source {
	return funcSource{name: name, fn: fn}
}

// HistorySource searches the visit history.
func HistorySource(h *library.History) Source {
	return NewSource(SourceHistory, func(ctx context.Context, query string, limit int) ([]Item, error) {
		recs, err := h.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(recs))
		for _, r := range recs {
			items = append(items, Item{Title: r.Title, URI: r.URI})
		}
		return items, nil
	})
}

// BookmarkSource searches bookmarks.
func BookmarkSource(b *library.Bookmarks) Source {
	return NewSource(SourceBookmarks, func(ctx context.Context, query string, limit int) ([]Item, error) {
		bms, err := b.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(bms))
		for _, bm := range bms {
			items = append(items, Item{Title: bm.Title, URI: bm.URL})
		}
		return items, nil
	})
}

// ExternalSource wraps a UserContentProvider.
func ExternalSource(p UserContentProvider) Source {
	return NewSource(SourceExternal, func(ctx context.Context, query string, limit int) ([]Item, error) {
		items, err := p.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		return items, nil
	})
}

// SessionSource queries the session prefix index.
func SessionSource(m *session.Manager) Source {
	return NewSource(SourceSession, func(ctx context.Context, query string, limit int) ([]Item, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits := m.PrefixQuery(query, 0)
		items := make([]Item, 0, len(hits))
		for _, h := range hits {
			items = append(items, Item{Title: h.Title, URI: h.URI})
		}
		return items, nil
	})
}
