// Package library defines the browser's indexed record kinds: visit history
// and bookmarks.
package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/trailmark/internal/collection"
	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/storage"
	"github.com/runnerr0/trailmark/internal/textindex"
)

// HistoryRecord is one finished top-level navigation.
type HistoryRecord struct {
	ID          string
	OriginalURI string
	URI         string
	Title       string
	Timestamp   time.Time
}

// NewHistoryRecord stamps a visit with a time-ordered ID. A zero ts means
// now. Timestamps are stored in UTC at microsecond resolution.
func NewHistoryRecord(originalURI, uri, title string, ts time.Time) (HistoryRecord, error) {
	if strings.TrimSpace(uri) == "" {
		return HistoryRecord{}, coreerr.New(coreerr.ErrInvalidInput, "new history record", errors.New("empty uri"))
	}
	if originalURI == "" {
		originalURI = uri
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("generate ID: %w", err)
	}
	return HistoryRecord{
		ID:          id.String(),
		OriginalURI: originalURI,
		URI:         uri,
		Title:       title,
		Timestamp:   ts.UTC().Truncate(time.Microsecond),
	}, nil
}

// Domain returns the host of the final URI.
func (r HistoryRecord) Domain() string {
	return ExtractDomain(r.URI)
}

// HistoryTable stores history keyed by ID.
var HistoryTable = storage.NewTable[HistoryRecord]("history", storage.KindHistory,
	func(r HistoryRecord) []byte { return []byte(r.ID) })

// HistorySchema describes the history index.
func HistorySchema(titleWeight, urlWeight float64) textindex.Schema {
	return textindex.Schema{
		Name:        "history",
		KeyField:  "id",
		SortField: "timestamp",
		Fields: []textindex.Field{
			{Name: "original_uri", Searchable: true, Weight: urlWeight},
			{Name: "uri", Searchable: true, Weight: urlWeight},
			{Name: "title", Searchable: true, Weight: titleWeight},
			{Name: "timestamp"},
		},
	}
}

func historyDocument(r HistoryRecord) textindex.Document {
	return textindex.Document{
		Key: r.ID,
		Fields: map[string]string{
			"original_uri": r.OriginalURI,
			"uri":          r.URI,
			"title":        r.Title,
		},
		Sort: r.Timestamp.UnixMicro(),
	}
}

// newestFirst orders history by timestamp descending, then ID descending.
func newestFirst(a, b HistoryRecord) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// History is the indexed visit history.
type History struct {
	*collection.Collection[HistoryRecord]
	index *textindex.Index
}

// OpenHistory opens the history index under dir and binds it to the store.
func OpenHistory(ctx context.Context, store *storage.Store, dir string, opts Options) (*History, error) {
	opts = opts.withDefaults()
	ix, err := textindex.Open(filepath.Join(dir, HistoryIndexDir), HistorySchema(opts.TitleWeight, opts.URLWeight), opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("open history index: %w", err)
	}
	c, err := collection.New(ctx, collection.Options[HistoryRecord]{
		Name:        "history",
		Store:       store,
		Table:       HistoryTable,
		Index:       ix,
		Document:    historyDocument,
		Compare:     newestFirst,
		SearchLimit: opts.SearchLimit,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		ix.Close()
		return nil, err
	}
	return &History{Collection: c, index: ix}, nil
}

// Record stores a new visit and returns it.
func (h *History) Record(ctx context.Context, originalURI, uri, title string, ts time.Time) (HistoryRecord, error) {
	rec, err := NewHistoryRecord(originalURI, uri, title, ts)
	if err != nil {
		return HistoryRecord{}, err
	}
	if err := h.Upsert(ctx, rec); err != nil {
		return HistoryRecord{}, err
	}
	return rec, nil
}

// PruneOlderThan deletes every visit stamped before cutoff.
func (h *History) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return h.DeleteWhere(ctx, func(r HistoryRecord) bool {
		return r.Timestamp.Before(cutoff)
	})
}

// Close closes the history index.
func (h *History) Close() error {
	return h.index.Close()
}
