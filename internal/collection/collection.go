// Package collection binds one record table to one text index and keeps
// the two consistent across every mutation.
//
// Writes follow a fixed order: the index writer is claimed, the store
// transaction commits, the index commits, and subscribers are signalled.
// A subscriber that receives a signal therefore sees the change in any
// following Get or Search.
package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/storage"
	"github.com/runnerr0/trailmark/internal/textindex"
)

// DefaultSearchLimit applies when Search is called with limit <= 0.
const DefaultSearchLimit = 10

// Options configures a Collection.
type Options[T any] struct {
	// Name labels logs and metrics ("history", "bookmark").
	Name string

	Store *storage.Store
	Table storage.Table[T]
	Index *textindex.Index

	// Document maps a record to its index document. The document key must
	// equal the table key.
	Document func(T) textindex.Document

	// Compare orders List results. Nil keeps key order.
	Compare func(a, b T) int

	// SearchLimit applies when Search is called with limit <= 0. Zero
	// means DefaultSearchLimit.
	SearchLimit int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Collection is an indexed, observable record table.
type Collection[T any] struct {
	name     string
	store    *storage.Store
	table    storage.Table[T]
	index    *textindex.Index
	document func(T) textindex.Document
	compare  func(a, b T) int
	limit    int
	keyField string
	logger   *slog.Logger
	metrics  *metrics.Metrics

	changes broadcaster
}

// New builds a collection. If the index was recreated, or its document
// count differs from the table's row count, the index is rebuilt from the
// table before New returns.
func New[T any](ctx context.Context, opts Options[T]) (*Collection[T], error) {
	if opts.Store == nil || opts.Index == nil || opts.Document == nil {
		return nil, coreerr.New(coreerr.ErrInvalidInput, "new collection", errors.New("store, index and document mapper are required"))
	}
	if opts.Name == "" {
		opts.Name = opts.Table.Name()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}

	c := &Collection[T]{
		name:     opts.Name,
		store:    opts.Store,
		table:    opts.Table,
		index:    opts.Index,
		document: opts.Document,
		compare:  opts.Compare,
		limit:    opts.SearchLimit,
		keyField: opts.Index.Schema().KeyField,
		logger:   opts.Logger.With(slog.String("collection", opts.Name)),
		metrics:  opts.Metrics,
	}

	if err := c.reconcile(ctx); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", opts.Name, err)
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) reconcile(ctx context.Context) error {
	reason := ""
	if c.index.Recreated() {
		reason = "recreated"
	} else {
		rows, err := c.Count(ctx)
		if err != nil {
			return err
		}
		docs, err := c.index.DocCount(ctx)
		if err != nil {
			return err
		}
		if rows != docs {
			c.logger.Warn("index out of sync with store",
				slog.Int("records", rows), slog.Int("documents", docs))
			reason = "mismatch"
		}
	}
	if reason == "" {
		return nil
	}
	_, err := c.rebuild(ctx, reason)
	return err
}

// rebuild replaces the index contents with the table. The snapshot is
// taken after the index writer is held, so no upsert can fall between the
// two.
func (c *Collection[T]) rebuild(ctx context.Context, reason string) (int, error) {
	n, err := c.index.Rebuild(ctx, func(yield func(textindex.Document) error) error {
		txn := c.store.BeginRead()
		defer txn.Discard()
		return c.table.Scan(txn, func(rec T) error {
			return yield(c.document(rec))
		})
	})
	if err != nil {
		return 0, err
	}
	c.metrics.IndexRebuilds.WithLabelValues(c.name, reason).Inc()
	c.metrics.IndexDocuments.WithLabelValues(c.name).Set(float64(n))
	c.logger.Info("index rebuilt from store", slog.String("reason", reason), slog.Int("documents", n))
	return n, nil
}

// indexOp is one staged index mutation: remove every document for key,
// then add doc when it is non-nil.
type indexOp struct {
	key string
	doc *textindex.Document
}

// write runs stage inside the store write transaction and mirrors the
// resulting ops into the index. Cancellation before the store commit
// leaves no trace; after it, the index work runs to completion.
func (c *Collection[T]) write(ctx context.Context, op string, stage func(txn *storage.WriteTxn) ([]indexOp, error)) (changed bool, err error) {
	start := time.Now()
	defer func() {
		c.metrics.CollectionOps.WithLabelValues(c.name, op, metrics.Result(err)).Inc()
		c.metrics.CollectionOpSeconds.WithLabelValues(c.name, op).Observe(time.Since(start).Seconds())
	}()

	if err := coreerr.FromContext(ctx, op); err != nil {
		return false, err
	}

	w, err := c.index.TryAcquireWriter()
	if err != nil {
		return false, err
	}
	defer w.Abort()

	txn, err := c.store.BeginWrite(ctx)
	if err != nil {
		return false, err
	}
	defer txn.Abort()

	ops, err := stage(txn)
	if err != nil {
		return false, err
	}
	if len(ops) == 0 {
		return false, nil
	}
	if err := coreerr.FromContext(ctx, op); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}

	ictx := context.WithoutCancel(ctx)
	if err := applyOps(ictx, w, c.keyField, ops); err != nil {
		w.Abort()
		c.logger.Error("index update failed after store commit, rebuilding",
			slog.String("op", op), slog.String("error", err.Error()))
		if _, rerr := c.rebuild(ictx, "repair"); rerr != nil {
			return true, fmt.Errorf("%s: index repair: %w", op, errors.Join(err, rerr))
		}
	}

	c.changes.notify()
	return true, nil
}

func applyOps(ctx context.Context, w *textindex.Writer, keyField string, ops []indexOp) error {
	for _, o := range ops {
		if _, err := w.DeleteTerm(ctx, keyField, o.key); err != nil {
			return err
		}
		if o.doc != nil {
			if err := w.AddDocument(ctx, *o.doc); err != nil {
				return err
			}
		}
	}
	return w.Commit()
}

// Upsert writes rec, replacing any record with the same key and its index
// document. It returns ErrBusy if another write holds the index writer.
func (c *Collection[T]) Upsert(ctx context.Context, rec T) error {
	_, err := c.write(ctx, "upsert", func(txn *storage.WriteTxn) ([]indexOp, error) {
		return c.stageUpserts(txn, []T{rec})
	})
	return err
}

// UpsertMany writes recs in one store transaction and one index commit.
// Later records win over earlier ones with the same key.
func (c *Collection[T]) UpsertMany(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := c.write(ctx, "upsert_many", func(txn *storage.WriteTxn) ([]indexOp, error) {
		return c.stageUpserts(txn, recs)
	})
	return err
}

func (c *Collection[T]) stageUpserts(txn *storage.WriteTxn, recs []T) ([]indexOp, error) {
	ops := make([]indexOp, 0, len(recs))
	for _, rec := range recs {
		if _, _, err := c.table.Upsert(txn, rec); err != nil {
			return nil, err
		}
		doc := c.document(rec)
		ops = append(ops, indexOp{key: string(c.table.KeyOf(rec)), doc: &doc})
	}
	return ops, nil
}

// Delete removes the record under key and its index document. It reports
// whether a record was removed.
func (c *Collection[T]) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.DeleteMany(ctx, []string{key})
	return n > 0, err
}

// DeleteMany removes the records under keys in one transaction and returns
// how many existed.
func (c *Collection[T]) DeleteMany(ctx context.Context, keys []string) (int, error) {
	removed := 0
	_, err := c.write(ctx, "delete", func(txn *storage.WriteTxn) ([]indexOp, error) {
		ops := make([]indexOp, 0, len(keys))
		for _, k := range keys {
			ok, err := c.table.Delete(txn, []byte(k))
			if err != nil {
				return nil, err
			}
			if ok {
				removed++
				ops = append(ops, indexOp{key: k})
			}
		}
		return ops, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteWhere removes every record for which match returns true.
func (c *Collection[T]) DeleteWhere(ctx context.Context, match func(T) bool) (int, error) {
	removed := 0
	_, err := c.write(ctx, "delete_where", func(txn *storage.WriteTxn) ([]indexOp, error) {
		var keys [][]byte
		err := c.table.Scan(txn, func(rec T) error {
			if match(rec) {
				keys = append(keys, c.table.KeyOf(rec))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		ops := make([]indexOp, 0, len(keys))
		for _, k := range keys {
			if _, err := c.table.Delete(txn, k); err != nil {
				return nil, err
			}
			ops = append(ops, indexOp{key: string(k)})
		}
		removed = len(keys)
		return ops, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear removes every record and every index document.
func (c *Collection[T]) Clear(ctx context.Context) (err error) {
	defer func() {
		c.metrics.CollectionOps.WithLabelValues(c.name, "clear", metrics.Result(err)).Inc()
	}()

	w, err := c.index.TryAcquireWriter()
	if err != nil {
		return err
	}
	defer w.Abort()

	if err := c.store.DropTable(ctx, c.table.Prefix()); err != nil {
		return err
	}

	ictx := context.WithoutCancel(ctx)
	if err := w.DeleteAll(ictx); err != nil {
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}
	c.changes.notify()
	c.logger.Info("collection cleared")
	return nil
}

// Get reads one record. found is false when the key is absent.
func (c *Collection[T]) Get(ctx context.Context, key string) (rec T, found bool, err error) {
	err = c.store.View(ctx, func(txn *storage.ReadTxn) error {
		rec, found, err = c.table.Get(txn, []byte(key))
		return err
	})
	return rec, found, err
}

// List returns every record in the collection's order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	err := c.store.View(ctx, func(txn *storage.ReadTxn) error {
		var err error
		out, err = c.table.All(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c.compare != nil {
		slices.SortStableFunc(out, c.compare)
	}
	return out, nil
}

// Scan visits every record in key order.
func (c *Collection[T]) Scan(ctx context.Context, fn func(T) error) error {
	return c.store.View(ctx, func(txn *storage.ReadTxn) error {
		return c.table.Scan(txn, fn)
	})
}

// Count returns the number of stored records.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	var n int
	err := c.store.View(ctx, func(txn *storage.ReadTxn) error {
		var err error
		n, err = c.table.Count(txn)
		return err
	})
	return n, err
}

// IndexCount returns the number of committed index documents.
func (c *Collection[T]) IndexCount(ctx context.Context) (int, error) {
	return c.index.DocCount(ctx)
}

// Search returns up to limit records matching query, most relevant first.
// Records are re-read from the store; hits whose record is gone are
// dropped. A malformed query yields no results and no error.
func (c *Collection[T]) Search(ctx context.Context, query string, limit int) (out []T, err error) {
	start := time.Now()
	defer func() {
		c.metrics.CollectionOps.WithLabelValues(c.name, "search", metrics.Result(err)).Inc()
		c.metrics.CollectionOpSeconds.WithLabelValues(c.name, "search").Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		limit = c.limit
	}
	if err := coreerr.FromContext(ctx, "search"); err != nil {
		return nil, err
	}

	hits, err := c.index.Search(ctx, query, limit)
	if errors.Is(err, coreerr.ErrQueryParse) {
		c.logger.Debug("ignoring malformed query", slog.String("query", query), slog.String("error", err.Error()))
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}

	out = make([]T, 0, len(hits))
	err = c.store.View(ctx, func(txn *storage.ReadTxn) error {
		for _, h := range hits {
			rec, found, err := c.table.Get(txn, []byte(h.Key))
			if err != nil {
				return err
			}
			if found {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := coreerr.FromContext(ctx, "search"); err != nil {
		return nil, err
	}
	return out, nil
}

// KeysForTerm returns the keys of index documents whose field holds value.
func (c *Collection[T]) KeysForTerm(ctx context.Context, field, value string) ([]string, error) {
	return c.index.KeysForTerm(ctx, field, value)
}

// Reindex rebuilds the index from the store and returns the document count.
func (c *Collection[T]) Reindex(ctx context.Context) (int, error) {
	n, err := c.rebuild(ctx, "manual")
	if err != nil {
		return 0, err
	}
	c.changes.notify()
	return n, nil
}

// Subscribe returns a change channel and a cancel func. The channel holds
// at most one pending signal: a receiver learns that something changed,
// not what. cancel closes the channel.
func (c *Collection[T]) Subscribe() (<-chan struct{}, func()) {
	return c.changes.subscribe()
}
