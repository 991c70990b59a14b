// Package textindex implements rebuildable full-text indices over SQLite FTS4.
//
// Each index lives in its own directory and mirrors one record table. The
// index is never the source of truth: a damaged or outdated index is wiped
// and rebuilt from the records it mirrors.
package textindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// DBFile is the database file name inside an index directory.
const DBFile = "index.db"

const dsnParams = "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

var errSchemaChanged = errors.New("schema fingerprint changed")

// Index is a full-text index with one writer and concurrent readers.
// Readers observe the last committed state.
type Index struct {
	db       *sql.DB
	schema   Schema
	cols     []string
	weights  string
	logger   *slog.Logger
	path     string
	writeSem chan struct{}

	generation atomic.Uint64
	recreated  bool
	closed     atomic.Bool
}

// Open opens the index in dir, creating it if needed. An index whose
// layout does not match schema, or whose file is unreadable, is wiped and
// recreated empty; Recreated then reports true.
func Open(dir string, schema Schema, logger *slog.Logger) (*Index, error) {
	if err := schema.validate(); err != nil {
		return nil, coreerr.New(coreerr.ErrInvalidInput, "open index", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("index", schema.Name))

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, coreerr.New(coreerr.ErrIO, "open index", fmt.Errorf("create directory %s: %w", dir, err))
	}
	path := filepath.Join(dir, DBFile)

	registerDriver()

	recreated := false
	db, err := openDB(path)
	if err == nil {
		err = checkFingerprint(db, schema)
	}
	if err == nil {
		_, err = NewMigrationRunner(db, schema, logger).Run()
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		kind := coreerr.KindOf(mapErr("open index", err))
		if !errors.Is(err, errSchemaChanged) && kind != coreerr.ErrCorruption {
			return nil, mapErr("open index", err)
		}
		logger.Warn("recreating text index", slog.String("reason", err.Error()))
		if err := removeDBFiles(path); err != nil {
			return nil, coreerr.New(coreerr.ErrIO, "open index", err)
		}
		db, err = openDB(path)
		if err != nil {
			return nil, mapErr("open index", err)
		}
		if _, err := NewMigrationRunner(db, schema, logger).Run(); err != nil {
			db.Close()
			return nil, mapErr("migrate index", err)
		}
		recreated = true
	}

	ws := schema.columnWeights()
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = fmt.Sprintf("%.4f", w)
	}

	return &Index{
		db:        db,
		schema:    schema,
		cols:      schema.searchableColumns(),
		weights:   strings.Join(parts, ", "),
		logger:    logger,
		path:      path,
		writeSem:  make(chan struct{}, 1),
		recreated: recreated,
	}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path+dsnParams)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// checkFingerprint compares the stored layout with schema. A database
// without a meta table is fresh and passes.
func checkFingerprint(db *sql.DB, schema Schema) error {
	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'`,
	).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return errSchemaChanged
	}
	if err != nil {
		return err
	}
	if stored != schema.fingerprint() {
		return fmt.Errorf("%w: have %q, want %q", errSchemaChanged, stored, schema.fingerprint())
	}
	return nil
}

func removeDBFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Schema returns the schema the index was opened with.
func (ix *Index) Schema() Schema {
	return ix.schema
}

// Recreated reports whether Open discarded an existing index.
func (ix *Index) Recreated() bool {
	return ix.recreated
}

// Generation counts commits since Open.
func (ix *Index) Generation() uint64 {
	return ix.generation.Load()
}

// Close closes the database. Safe to call twice.
func (ix *Index) Close() error {
	if !ix.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := ix.db.Close(); err != nil {
		return coreerr.New(coreerr.ErrIO, "close index", err)
	}
	return nil
}

// DocCount returns the number of committed documents.
func (ix *Index) DocCount(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, mapErr("count documents", err)
	}
	return n, nil
}

// Search returns up to limit hits ordered by relevance, ties broken by the
// sort field, larger first. An empty query returns no hits.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	terms, err := parseQuery(query, ix.schema)
	if err != nil {
		return nil, err
	}
	expr, err := matchExpr(terms)
	if err != nil {
		return nil, err
	}
	if expr == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`
		SELECT d.doc_key, f.score
		FROM (
			SELECT docid, %s(matchinfo(documents_fts, '%s'), %s) AS score
			FROM documents_fts
			WHERE documents_fts MATCH ?
		) AS f
		JOIN documents d ON d.docid = f.docid
		ORDER BY f.score DESC, d.sort_value DESC, d.docid DESC
	`, rankFunc, matchinfoFmt, ix.weights)

	rows, err := ix.db.QueryContext(ctx, q, expr)
	if err != nil {
		return nil, mapErr("search", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Key, &h.Score); err != nil {
			return nil, mapErr("search", err)
		}
		// Stale duplicates of a key rank below the live one.
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("search", err)
	}
	return hits, nil
}

// KeysForTerm returns the keys of committed documents whose field holds
// exactly value.
func (ix *Index) KeysForTerm(ctx context.Context, field, value string) ([]string, error) {
	matches, err := ix.termDocs(ctx, ix.db, field, value)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.key)
	}
	return keys, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type docRef struct {
	docid int64
	key   string
}

// termDocs finds documents whose field equals value, or whose
// multi-valued field contains value.
func (ix *Index) termDocs(ctx context.Context, q queryer, field, value string) ([]docRef, error) {
	if field == ix.schema.KeyField {
		rows, err := q.QueryContext(ctx, `SELECT docid, doc_key FROM documents WHERE doc_key = ?`, value)
		if err != nil {
			return nil, mapErr("term lookup", err)
		}
		defer rows.Close()
		var out []docRef
		for rows.Next() {
			var r docRef
			if err := rows.Scan(&r.docid, &r.key); err != nil {
				return nil, mapErr("term lookup", err)
			}
			out = append(out, r)
		}
		return out, mapErr("term lookup", rows.Err())
	}

	if !ix.schema.isSearchable(field) {
		return nil, coreerr.New(coreerr.ErrInvalidInput, "term lookup", fmt.Errorf("field %q is not indexed", field))
	}

	// The MATCH narrows candidates; exact comparison happens below.
	var (
		rows *sql.Rows
		err  error
	)
	if toks := tokenize(value); len(toks) > 0 {
		rows, err = q.QueryContext(ctx, fmt.Sprintf(`
			SELECT d.docid, d.doc_key, f.val
			FROM (SELECT docid, %[1]s AS val FROM documents_fts WHERE %[1]s MATCH ?) AS f
			JOIN documents d ON d.docid = f.docid
		`, field), `"`+strings.Join(toks, " ")+`"`)
	} else {
		rows, err = q.QueryContext(ctx, fmt.Sprintf(`
			SELECT d.docid, d.doc_key, f.%[1]s
			FROM documents_fts f
			JOIN documents d ON d.docid = f.docid
		`, field))
	}
	if err != nil {
		return nil, mapErr("term lookup", err)
	}
	defer rows.Close()

	var out []docRef
	for rows.Next() {
		var (
			r   docRef
			val sql.NullString
		)
		if err := rows.Scan(&r.docid, &r.key, &val); err != nil {
			return nil, mapErr("term lookup", err)
		}
		if holdsValue(val.String, value) {
			out = append(out, r)
		}
	}
	return out, mapErr("term lookup", rows.Err())
}

func holdsValue(stored, value string) bool {
	if stored == value {
		return true
	}
	for _, v := range strings.Split(stored, MultiValueSeparator) {
		if v == value {
			return true
		}
	}
	return false
}

// mapErr classifies a sqlite error.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if coreerr.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return coreerr.New(coreerr.ErrCancelled, op, err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return coreerr.New(coreerr.ErrBusy, op, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return coreerr.New(coreerr.ErrCorruption, op, err)
		}
		if strings.Contains(se.Error(), "malformed MATCH") {
			return coreerr.New(coreerr.ErrQueryParse, op, err)
		}
	}
	return coreerr.New(coreerr.ErrIO, op, err)
}
