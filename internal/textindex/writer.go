package textindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// Writer stages additions and deletions. Nothing is visible to readers
// until Commit. Exactly one Writer exists per index at a time.
type Writer struct {
	ix   *Index
	tx   *sql.Tx
	done bool
}

// TryAcquireWriter returns the index writer or ErrBusy if another writer
// is outstanding.
func (ix *Index) TryAcquireWriter() (*Writer, error) {
	if ix.closed.Load() {
		return nil, coreerr.New(coreerr.ErrIO, "acquire writer", errors.New("index closed"))
	}
	select {
	case ix.writeSem <- struct{}{}:
	default:
		return nil, coreerr.New(coreerr.ErrBusy, "acquire writer", nil)
	}
	return ix.begin()
}

// AcquireWriter waits for the index writer. It returns ErrCancelled if ctx
// ends first.
func (ix *Index) AcquireWriter(ctx context.Context) (*Writer, error) {
	if ix.closed.Load() {
		return nil, coreerr.New(coreerr.ErrIO, "acquire writer", errors.New("index closed"))
	}
	select {
	case ix.writeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, coreerr.New(coreerr.ErrCancelled, "acquire writer", ctx.Err())
	}
	return ix.begin()
}

func (ix *Index) begin() (*Writer, error) {
	// The transaction outlives any single caller context; statements carry
	// their own.
	tx, err := ix.db.BeginTx(context.Background(), nil)
	if err != nil {
		<-ix.writeSem
		return nil, mapErr("acquire writer", err)
	}
	return &Writer{ix: ix, tx: tx}, nil
}

// AddDocument stages doc. Fields not declared by the schema are rejected.
func (w *Writer) AddDocument(ctx context.Context, doc Document) error {
	if w.done {
		return coreerr.New(coreerr.ErrInvalidInput, "add document", errWriterFinished)
	}
	if doc.Key == "" {
		return coreerr.New(coreerr.ErrInvalidInput, "add document", errors.New("empty key"))
	}
	for name := range doc.Fields {
		if !w.ix.schema.hasField(name) {
			return coreerr.New(coreerr.ErrInvalidInput, "add document", fmt.Errorf("unknown field %q", name))
		}
	}

	res, err := w.tx.ExecContext(ctx,
		`INSERT INTO documents (doc_key, sort_value) VALUES (?, ?)`, doc.Key, doc.Sort)
	if err != nil {
		return mapErr("add document", err)
	}
	docid, err := res.LastInsertId()
	if err != nil {
		return mapErr("add document", err)
	}

	args := make([]any, 0, len(w.ix.cols)+1)
	args = append(args, docid)
	for _, c := range w.ix.cols {
		if c == w.ix.schema.KeyField {
			args = append(args, doc.Key)
			continue
		}
		args = append(args, doc.Fields[c])
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	q := fmt.Sprintf(`INSERT INTO documents_fts (docid, %s) VALUES (%s)`,
		strings.Join(w.ix.cols, ", "), placeholders)
	if _, err := w.tx.ExecContext(ctx, q, args...); err != nil {
		return mapErr("add document", err)
	}
	return nil
}

// DeleteTerm stages deletion of every document whose field holds exactly
// value, including documents added earlier in this writer. It returns the
// number of documents removed.
func (w *Writer) DeleteTerm(ctx context.Context, field, value string) (int, error) {
	if w.done {
		return 0, coreerr.New(coreerr.ErrInvalidInput, "delete term", errWriterFinished)
	}
	refs, err := w.ix.termDocs(ctx, w.tx, field, value)
	if err != nil {
		return 0, err
	}
	for _, r := range refs {
		if err := w.deleteDoc(ctx, r.docid); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// DeleteAll stages removal of every document.
func (w *Writer) DeleteAll(ctx context.Context) error {
	if w.done {
		return coreerr.New(coreerr.ErrInvalidInput, "delete all", errWriterFinished)
	}
	for _, stmt := range []string{`DELETE FROM documents_fts`, `DELETE FROM documents`} {
		if _, err := w.tx.ExecContext(ctx, stmt); err != nil {
			return mapErr("delete all", err)
		}
	}
	return nil
}

func (w *Writer) deleteDoc(ctx context.Context, docid int64) error {
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE docid = ?`, docid); err != nil {
		return mapErr("delete document", err)
	}
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM documents WHERE docid = ?`, docid); err != nil {
		return mapErr("delete document", err)
	}
	return nil
}

// Commit publishes the staged changes and releases the writer.
func (w *Writer) Commit() error {
	if w.done {
		return coreerr.New(coreerr.ErrInvalidInput, "commit index", errWriterFinished)
	}
	w.done = true
	defer func() { <-w.ix.writeSem }()

	if err := w.tx.Commit(); err != nil {
		return mapErr("commit index", err)
	}
	w.ix.generation.Add(1)
	return nil
}

// Abort discards the staged changes and releases the writer. Safe to call
// after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tx.Rollback() //nolint:errcheck
	<-w.ix.writeSem
}

var errWriterFinished = errors.New("writer already committed or aborted")

// Rebuild replaces the index contents with the documents produced by each.
// It waits for the writer.
func (ix *Index) Rebuild(ctx context.Context, each func(yield func(Document) error) error) (int, error) {
	w, err := ix.AcquireWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer w.Abort()

	if err := w.DeleteAll(ctx); err != nil {
		return 0, err
	}
	n := 0
	err = each(func(doc Document) error {
		if err := w.AddDocument(ctx, doc); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := w.Commit(); err != nil {
		return 0, err
	}
	ix.logger.Info("text index rebuilt", slog.Int("documents", n))
	return n, nil
}
