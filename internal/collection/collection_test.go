package collection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/storage"
	"github.com/runnerr0/trailmark/internal/textindex"
)

type page struct {
	URL     string
	Title   string
	Tags    []string
	Visited int64
}

var pages = storage.NewTable[page]("page", storage.KindBookmark, func(p page) []byte { return []byte(p.URL) })

var pageSchema = textindex.Schema{
	Name:            "pages",
	KeyField:        "url",
	KeyIsSearchable: true,
	SortField:       "visited",
	Fields: []textindex.Field{
		{Name: "title", Searchable: true},
		{Name: "tag", Searchable: true},
		{Name: "visited"},
	},
}

func pageDoc(p page) textindex.Document {
	return textindex.Document{
		Key:    p.URL,
		Fields: map[string]string{"title": p.Title, "tag": textindex.JoinValues(p.Tags)},
		Sort:   p.Visited,
	}
}

type fixture struct {
	store    *storage.Store
	index    *textindex.Index
	indexDir string
	metrics  *metrics.Metrics
	coll     *Collection[page]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, indexDir: t.TempDir(), metrics: metrics.New(nil)}
	f.open(t)
	return f
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	ix, err := textindex.Open(f.indexDir, pageSchema, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	c, err := New(context.Background(), Options[page]{
		Name:     "pages",
		Store:    f.store,
		Table:    pages,
		Index:    ix,
		Document: pageDoc,
		Compare:  func(a, b page) int { return cmp.Compare(b.Visited, a.Visited) },
		Metrics:  f.metrics,
	})
	require.NoError(t, err)
	f.index = ix
	f.coll = c
}

// assertConsistent checks that store and index agree and every key is
// findable through the index.
func assertConsistent(t *testing.T, c *Collection[page]) {
	t.Helper()
	ctx := context.Background()

	rows, err := c.Count(ctx)
	require.NoError(t, err)
	docs, err := c.IndexCount(ctx)
	require.NoError(t, err)
	require.Equal(t, rows, docs, "store rows and index documents must match")

	all, err := c.List(ctx)
	require.NoError(t, err)
	for _, p := range all {
		keys, err := c.KeysForTerm(ctx, "url", p.URL)
		require.NoError(t, err)
		require.Equal(t, []string{p.URL}, keys)
	}
}

// --- Upsert / Search ---

func TestUpsert_ThenSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://example.org/a", Title: "Example A", Visited: 1}))

	got, err := f.coll.Search(ctx, "Example", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.org/a", got[0].URL)

	got, err = f.coll.Search(ctx, "nonexistent", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsert_RetagReplacesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://x.test", Title: "X", Tags: []string{"t1"}}))
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://x.test", Title: "X", Tags: []string{"t2"}}))

	all, err := f.coll.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := f.coll.Search(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.coll.Search(ctx, "t2", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"t2"}, got[0].Tags)

	assertConsistent(t, f.coll)
}

func TestUpsertMany_LaterRecordWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coll.UpsertMany(ctx, []page{
		{URL: "https://a.test", Title: "first"},
		{URL: "https://b.test", Title: "bee"},
		{URL: "https://a.test", Title: "second"},
	}))

	got, _, err := f.coll.Get(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)

	hits, err := f.coll.Search(ctx, "first", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assertConsistent(t, f.coll)
}

func TestSearch_MalformedQueryIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test", Title: "Alpha"}))

	got, err := f.coll.Search(ctx, `"unterminated`, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_DropsMissingPrimaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test", Title: "Alpha"}))

	// Remove the record behind the index's back.
	err := f.store.Update(ctx, func(txn *storage.WriteTxn) error {
		_, err := pages.Delete(txn, []byte("https://a.test"))
		return err
	})
	require.NoError(t, err)

	got, err := f.coll.Search(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_DefaultLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var batch []page
	for i := 0; i < 15; i++ {
		batch = append(batch, page{URL: fmt.Sprintf("https://p%02d.test", i), Title: "shared title"})
	}
	require.NoError(t, f.coll.UpsertMany(ctx, batch))

	got, err := f.coll.Search(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultSearchLimit)
}

func TestSearch_ConfiguredLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := New(ctx, Options[page]{
		Store:       f.store,
		Table:       pages,
		Index:       f.index,
		Document:    pageDoc,
		SearchLimit: 3,
	})
	require.NoError(t, err)

	var batch []page
	for i := 0; i < 5; i++ {
		batch = append(batch, page{URL: fmt.Sprintf("https://p%02d.test", i), Title: "shared title"})
	}
	require.NoError(t, c.UpsertMany(ctx, batch))

	got, err := c.Search(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = c.Search(ctx, "shared", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5, "an explicit limit wins")
}

func TestSearch_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coll.Search(ctx, "alpha", 0)
	assert.True(t, errors.Is(err, coreerr.ErrCancelled))
}

// --- Delete ---

func TestDelete_ThenGetAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test", Title: "Alpha"}))

	removed, err := f.coll.Delete(ctx, "https://a.test")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := f.coll.Get(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, found)

	removed, err = f.coll.Delete(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, removed)

	assertConsistent(t, f.coll)
}

func TestDeleteWhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.UpsertMany(ctx, []page{
		{URL: "https://old.test", Visited: 1},
		{URL: "https://older.test", Visited: 2},
		{URL: "https://new.test", Visited: 10},
	}))

	n, err := f.coll.DeleteWhere(ctx, func(p page) bool { return p.Visited < 5 })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.coll.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://new.test", all[0].URL)
	assertConsistent(t, f.coll)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.UpsertMany(ctx, []page{{URL: "https://a.test"}, {URL: "https://b.test"}}))

	require.NoError(t, f.coll.Clear(ctx))

	n, err := f.coll.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertConsistent(t, f.coll)
}

// --- Ordering ---

func TestList_UsesCompare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.UpsertMany(ctx, []page{
		{URL: "https://a.test", Visited: 1},
		{URL: "https://b.test", Visited: 3},
		{URL: "https://c.test", Visited: 2},
	}))

	all, err := f.coll.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://b.test", all[0].URL)
	assert.Equal(t, "https://c.test", all[1].URL)
	assert.Equal(t, "https://a.test", all[2].URL)
}

// --- Concurrency and cancellation ---

func TestUpsert_BusyWhileIndexWriterHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.index.TryAcquireWriter()
	require.NoError(t, err)

	err = f.coll.Upsert(ctx, page{URL: "https://a.test"})
	assert.True(t, errors.Is(err, coreerr.ErrBusy))
	w.Abort()

	_, found, err := f.coll.Get(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, found, "a busy upsert leaves the store untouched")
}

func TestUpsert_CancelledLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.coll.Upsert(ctx, page{URL: "https://a.test"})
	assert.True(t, errors.Is(err, coreerr.ErrCancelled))

	n, err := f.coll.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assertConsistent(t, f.coll)
}

// --- Change channel ---

func TestSubscribe_CoalescesSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, cancel := f.coll.Subscribe()
	defer cancel()

	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test"}))
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://b.test"}))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestSubscribe_SignalImpliesVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, cancel := f.coll.Subscribe()
	defer cancel()

	go func() {
		_ = f.coll.Upsert(ctx, page{URL: "https://a.test", Title: "Visible"})
	}()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal")
	}
	got, err := f.coll.Search(ctx, "visible", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.coll.Subscribe()
	assert.Equal(t, 1, f.coll.changes.subscribers())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, f.coll.changes.subscribers())
}

func TestSubscribe_NoSignalWithoutChange(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.coll.Subscribe()
	defer cancel()

	_, err := f.coll.Delete(context.Background(), "https://missing.test")
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("deleting nothing must not signal")
	default:
	}
}

// --- Rebuild on mismatch ---

func TestNew_RebuildsEmptyIndex(t *testing.T) {
	s, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	titles := []string{"Alpha Centauri", "Bravo Company", "Charlie Chaplin", "Delta Force", "Echo Chamber"}
	err = s.Update(context.Background(), func(txn *storage.WriteTxn) error {
		for i, title := range titles {
			if _, _, err := pages.Upsert(txn, page{URL: fmt.Sprintf("https://%d.test", i), Title: title}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	f := &fixture{store: s, indexDir: t.TempDir(), metrics: metrics.New(nil)}
	f.open(t)

	assertConsistent(t, f.coll)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexRebuilds.WithLabelValues("pages", "mismatch")))

	for _, title := range titles {
		for _, word := range strings.Fields(title) {
			got, err := f.coll.Search(context.Background(), word[:3], 0)
			require.NoError(t, err)
			found := false
			for _, p := range got {
				if p.Title == title {
					found = true
				}
			}
			assert.True(t, found, "search %q should return %q", word[:3], title)
		}
	}
}

func TestNew_RebuildsStaleIndexOnReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test", Title: "Alpha"}))

	// A record written while the index was not watching.
	err := f.store.Update(ctx, func(txn *storage.WriteTxn) error {
		_, _, err := pages.Upsert(txn, page{URL: "https://b.test", Title: "Bravo"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, f.index.Close())

	f.open(t)
	assertConsistent(t, f.coll)

	got, err := f.coll.Search(ctx, "bravo", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReindex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.UpsertMany(ctx, []page{{URL: "https://a.test"}, {URL: "https://b.test"}}))

	n, err := f.coll.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assertConsistent(t, f.coll)
}

// --- Property: random mutation sequences keep store and index in step ---

func TestProperty_RandomMutationsStayConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 150; step++ {
		url := fmt.Sprintf("https://site%d.test", rng.Intn(12))
		switch rng.Intn(4) {
		case 0, 1:
			require.NoError(t, f.coll.Upsert(ctx, page{
				URL:     url,
				Title:   fmt.Sprintf("title %d", rng.Intn(5)),
				Tags:    []string{fmt.Sprintf("tag%d", rng.Intn(3))},
				Visited: int64(step),
			}))
		case 2:
			_, err := f.coll.Delete(ctx, url)
			require.NoError(t, err)
		case 3:
			require.NoError(t, f.coll.UpsertMany(ctx, []page{
				{URL: url, Title: "batch"},
				{URL: fmt.Sprintf("https://site%d.test", rng.Intn(12)), Title: "batch"},
			}))
		}
		if step%10 == 0 {
			assertConsistent(t, f.coll)
		}
	}
	assertConsistent(t, f.coll)
}

// --- Metrics ---

func TestMetrics_CountOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coll.Upsert(ctx, page{URL: "https://a.test"}))
	_, err := f.coll.Search(ctx, "a", 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CollectionOps.WithLabelValues("pages", "upsert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CollectionOps.WithLabelValues("pages", "search", "ok")))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Options[page]{})
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
}
