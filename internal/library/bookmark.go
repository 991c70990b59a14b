package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/runnerr0/trailmark/internal/collection"
	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/storage"
	"github.com/runnerr0/trailmark/internal/textindex"
)

// Bookmark is a user-saved page. URL is unique.
type Bookmark struct {
	URL   string
	Title string
	Body  string
	Tags  []string
}

// NewBookmark validates url and normalizes tags into a sorted set.
func NewBookmark(url, title, body string, tags []string) (Bookmark, error) {
	if strings.TrimSpace(url) == "" {
		return Bookmark{}, coreerr.New(coreerr.ErrInvalidInput, "new bookmark", errors.New("empty url"))
	}
	return Bookmark{URL: url, Title: title, Body: body, Tags: NormalizeTags(tags)}, nil
}

// NormalizeTags trims, drops empties and duplicates, and sorts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// BookmarkTable stores bookmarks keyed by URL.
var BookmarkTable = storage.NewTable[Bookmark]("bookmark", storage.KindBookmark,
	func(b Bookmark) []byte { return []byte(b.URL) })

// BookmarkSchema describes the bookmark index. Every field is searchable.
func BookmarkSchema(titleWeight float64) textindex.Schema {
	return textindex.Schema{
		Name:        "bookmark",
		KeyField:        "url",
		KeyIsSearchable: true,
		Fields: []textindex.Field{
			{Name: "title", Searchable: true, Weight: titleWeight},
			{Name: "body", Searchable: true},
			{Name: "tag", Searchable: true},
		},
	}
}

func bookmarkDocument(b Bookmark) textindex.Document {
	return textindex.Document{
		Key: b.URL,
		Fields: map[string]string{
			"title": b.Title,
			"body":  b.Body,
			"tag":   textindex.JoinValues(b.Tags),
		},
	}
}

// byTitle orders bookmarks by case-folded title, then URL.
func byTitle(a, b Bookmark) int {
	if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
		return c
	}
	return strings.Compare(a.URL, b.URL)
}

// Bookmarks is the indexed bookmark collection.
type Bookmarks struct {
	*collection.Collection[Bookmark]
	index *textindex.Index
}

// OpenBookmarks opens the bookmark index under dir and binds it to the
// store.
func OpenBookmarks(ctx context.Context, store *storage.Store, dir string, opts Options) (*Bookmarks, error) {
	opts = opts.withDefaults()
	ix, err := textindex.Open(filepath.Join(dir, BookmarkIndexDir), BookmarkSchema(opts.TitleWeight), opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("open bookmark index: %w", err)
	}
	c, err := collection.New(ctx, collection.Options[Bookmark]{
		Name:        "bookmark",
		Store:       store,
		Table:       BookmarkTable,
		Index:       ix,
		Document:    bookmarkDocument,
		Compare:     byTitle,
		SearchLimit: opts.SearchLimit,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		ix.Close()
		return nil, err
	}
	return &Bookmarks{Collection: c, index: ix}, nil
}

// Save validates and upserts a bookmark, replacing any bookmark with the
// same URL.
func (b *Bookmarks) Save(ctx context.Context, url, title, body string, tags []string) (Bookmark, error) {
	bm, err := NewBookmark(url, title, body, tags)
	if err != nil {
		return Bookmark{}, err
	}
	if err := b.Upsert(ctx, bm); err != nil {
		return Bookmark{}, err
	}
	return bm, nil
}

// Close closes the bookmark index.
func (b *Bookmarks) Close() error {
	return b.index.Close()
}
