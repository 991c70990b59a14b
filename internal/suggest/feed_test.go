package suggest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/library"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/session"
	"github.com/runnerr0/trailmark/internal/storage"
)

type fakeProvider struct {
	items []Item
	err   error
}

func (p fakeProvider) Search(ctx context.Context, query string) ([]Item, error) {
	return p.items, p.err
}

func static(name string, uris ...string) Source {
	return NewSource(name, func(ctx context.Context, query string, limit int) ([]Item, error) {
		items := make([]Item, 0, len(uris))
		for _, u := range uris {
			items = append(items, Item{Title: u, URI: u})
		}
		return items, nil
	})
}

func failing(name string) Source {
	return NewSource(name, func(ctx context.Context, query string, limit int) ([]Item, error) {
		return nil, errors.New(name + " down")
	})
}

func uris(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URI
	}
	return out
}

func openLibrary(t *testing.T) (*library.History, *library.Bookmarks) {
	t.Helper()
	s, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dir := t.TempDir()
	ctx := context.Background()
	h, err := library.OpenHistory(ctx, s, dir, library.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	b, err := library.OpenBookmarks(ctx, s, dir, library.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return h, b
}

func TestFeed_FusionOrder(t *testing.T) {
	h, b := openLibrary(t)
	ctx := context.Background()

	_, err := h.Record(ctx, "", "https://a.test", "A", time.Time{})
	require.NoError(t, err)
	_, err = b.Save(ctx, "https://b.test", "B", "", nil)
	require.NoError(t, err)

	ext := fakeProvider{items: []Item{{Title: "C", URI: "https://c.test"}}}
	feed := NewFeed(Options{}, HistorySource(h), BookmarkSource(b), ExternalSource(ext))

	got, err := feed.Query(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test", "https://c.test"}, uris(got))

	ext.items = append(ext.items, Item{Title: "dup", URI: "https://a.test"})
	feed = NewFeed(Options{}, HistorySource(h), BookmarkSource(b), ExternalSource(ext))
	got, err = feed.Query(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test", "https://c.test"}, uris(got))
	assert.Equal(t, "A", got[0].Title, "first occurrence wins")
}

func TestFeed_DistinctURIs(t *testing.T) {
	feed := NewFeed(Options{},
		static("one", "u1", "u2", "u1"),
		static("two", "u2", "u3"),
		static("three", "u3", "u4", "u1"),
	)
	got, err := feed.Query(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, uris(got))
}

func TestFeed_FailingSourceContributesNothing(t *testing.T) {
	m := metrics.New(nil)
	feed := NewFeed(Options{Metrics: m}, static("one", "u1"), failing("two"), static("three", "u3"))

	got, err := feed.Query(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, uris(got))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestSourceErrors.WithLabelValues("two")))
}

func TestFeed_AllSourcesFail(t *testing.T) {
	feed := NewFeed(Options{}, failing("one"), failing("two"))
	_, err := feed.Query(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllSourcesFailed))
	assert.Contains(t, err.Error(), "one down")
	assert.Contains(t, err.Error(), "two down")
}

func TestFeed_EmptyQuery(t *testing.T) {
	feed := NewFeed(Options{}, failing("one"))
	got, err := feed.Query(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFeed_SlowSourceTimesOut(t *testing.T) {
	slow := NewSource("slow", func(ctx context.Context, query string, limit int) ([]Item, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	feed := NewFeed(Options{SourceTimeout: 20 * time.Millisecond}, slow, static("fast", "u1"))

	got, err := feed.Query(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, uris(got))
}

func TestFeed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	feed := NewFeed(Options{}, static("one", "u1"))
	_, err := feed.Query(ctx, "u")
	assert.True(t, errors.Is(err, coreerr.ErrCancelled))
}

func TestFeed_PassesLimitToSources(t *testing.T) {
	var seen atomic.Int64
	src := NewSource("x", func(ctx context.Context, query string, limit int) ([]Item, error) {
		seen.Store(int64(limit))
		return nil, nil
	})
	feed := NewFeed(Options{Limit: 3}, src)
	_, err := feed.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.EqualValues(t, 3, seen.Load())

	ext := ExternalSource(fakeProvider{items: []Item{{URI: "1"}, {URI: "2"}, {URI: "3"}, {URI: "4"}}})
	items, err := ext.Suggest(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

type countingResolver struct {
	calls atomic.Int64
}

func (r *countingResolver) FaviconFor(ctx context.Context, uri string) (Favicon, error) {
	r.calls.Add(1)
	if uri == "broken" {
		return nil, errors.New("no icon")
	}
	return Favicon("icon:" + uri), nil
}

func TestFeed_Favicons(t *testing.T) {
	r := &countingResolver{}
	feed := NewFeed(Options{Favicons: r}, static("one", "u1", "broken"))

	got, err := feed.Query(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Favicon("icon:u1"), got[0].Favicon)
	assert.Nil(t, got[1].Favicon)
	assert.EqualValues(t, 2, r.calls.Load())
}

func TestFeed_SessionSource(t *testing.T) {
	mgr, err := session.Open(session.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	mgr.Current().RecordNavigation("https://start.test", "https://docs.test/guide")

	feed := NewFeed(Options{}, static("history", "https://docs.test/guide"), SessionSource(mgr))
	got, err := feed.Query(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.test/guide"}, uris(got), "session hit deduped against history")
	assert.Equal(t, []string{"history", SourceSession}, feed.Sources())
}

func TestMerge_SkipsEmptyURIs(t *testing.T) {
	got := merge([][]Item{{{URI: ""}, {URI: "a"}}, {{URI: "a"}, {URI: "b"}}})
	assert.Equal(t, []string{"a", "b"}, uris(got))
}
