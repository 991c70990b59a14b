// Package storage is the durable record store: typed tables over an
// embedded badger database with one writer and many snapshot readers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// Store is a transactional key-value store. Write transactions are
// serialized; read transactions run concurrently against the last commit.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	writeSem chan struct{}
	closed   atomic.Bool

	gcStop chan struct{}
	gcDone chan struct{}

	dir      string
	inMemory bool
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) a store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, coreerr.New(coreerr.ErrInvalidInput, "open store", errors.New("directory is required for a persistent store"))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, coreerr.New(coreerr.ErrIO, "open store", fmt.Errorf("create directory %s: %w", cfg.Dir, err))
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.With(slog.String("component", "badger"))})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, coreerr.New(coreerr.ErrIO, "open store", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		writeSem: make(chan struct{}, 1),
		dir:      cfg.Dir,
		inMemory: cfg.InMemory,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// Dir returns the store directory, or "" for in-memory stores.
func (s *Store) Dir() string {
	return s.dir
}

// Close stops background GC and closes the database. Safe to call twice.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	if err := s.db.Close(); err != nil {
		return coreerr.New(coreerr.ErrIO, "close store", err)
	}
	return nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err == nil {
				s.logger.Debug("value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

// BeginRead opens a snapshot read transaction. Callers must Discard it.
func (s *Store) BeginRead() *ReadTxn {
	return &ReadTxn{txn: s.db.NewTransaction(false)}
}

// BeginWrite opens the write transaction, waiting for the current writer to
// finish. It returns ErrCancelled if ctx ends first.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTxn, error) {
	if s.closed.Load() {
		return nil, coreerr.New(coreerr.ErrIO, "begin write", errors.New("store closed"))
	}
	select {
	case s.writeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, coreerr.New(coreerr.ErrCancelled, "begin write", ctx.Err())
	}
	return s.newWriteTxn(), nil
}

// TryBeginWrite opens the write transaction or returns ErrBusy at once.
func (s *Store) TryBeginWrite() (*WriteTxn, error) {
	if s.closed.Load() {
		return nil, coreerr.New(coreerr.ErrIO, "begin write", errors.New("store closed"))
	}
	select {
	case s.writeSem <- struct{}{}:
	default:
		return nil, coreerr.New(coreerr.ErrBusy, "begin write", nil)
	}
	return s.newWriteTxn(), nil
}

func (s *Store) newWriteTxn() *WriteTxn {
	return &WriteTxn{
		ReadTxn: ReadTxn{txn: s.db.NewTransaction(true)},
		store:   s,
	}
}

func (s *Store) releaseWriter() {
	<-s.writeSem
}

// View runs fn inside a read transaction.
func (s *Store) View(ctx context.Context, fn func(txn *ReadTxn) error) error {
	if err := coreerr.FromContext(ctx, "view"); err != nil {
		return err
	}
	txn := s.BeginRead()
	defer txn.Discard()
	return fn(txn)
}

// Update runs fn inside the write transaction and commits if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(txn *WriteTxn) error) error {
	txn, err := s.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer txn.Abort()

	if err := fn(txn); err != nil {
		return err
	}
	if err := coreerr.FromContext(ctx, "update"); err != nil {
		return err
	}
	return txn.Commit()
}

// DropTable removes every record of a table while holding the writer slot.
func (s *Store) DropTable(ctx context.Context, prefix []byte) error {
	if s.closed.Load() {
		return coreerr.New(coreerr.ErrIO, "drop table", errors.New("store closed"))
	}
	select {
	case s.writeSem <- struct{}{}:
	case <-ctx.Done():
		return coreerr.New(coreerr.ErrCancelled, "drop table", ctx.Err())
	}
	defer s.releaseWriter()

	if err := s.db.DropPrefix(prefix); err != nil {
		return coreerr.New(coreerr.ErrIO, "drop table", err)
	}
	return nil
}

// mapErr classifies a badger error.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return coreerr.New(coreerr.ErrBusy, op, err)
	case coreerr.KindOf(err) != nil:
		return err
	default:
		return coreerr.New(coreerr.ErrIO, op, err)
	}
}
