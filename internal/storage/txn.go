package storage

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// Reader is satisfied by both read and write transactions.
type Reader interface {
	badgerTxn() *badger.Txn
}

// ReadTxn is a snapshot of the last committed state.
type ReadTxn struct {
	txn *badger.Txn
}

func (r *ReadTxn) badgerTxn() *badger.Txn { return r.txn }

// Discard releases the snapshot. Safe to call more than once.
func (r *ReadTxn) Discard() {
	r.txn.Discard()
}

// WriteTxn is the single write transaction. Abort is idempotent, so callers
// defer it right after BeginWrite and call Commit on success.
type WriteTxn struct {
	ReadTxn
	store *Store
	done  bool
}

// Commit makes the writes durable and visible and releases the writer slot.
func (w *WriteTxn) Commit() error {
	if w.done {
		return coreerr.New(coreerr.ErrInvalidInput, "commit", errTxnFinished)
	}
	w.done = true
	defer w.store.releaseWriter()

	if err := w.txn.Commit(); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// Abort discards pending writes and releases the writer slot.
func (w *WriteTxn) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.txn.Discard()
	w.store.releaseWriter()
}

func (w *WriteTxn) set(key, value []byte) error {
	if err := w.txn.Set(key, value); err != nil {
		return mapErr("set", err)
	}
	return nil
}

func (w *WriteTxn) delete(key []byte) error {
	if err := w.txn.Delete(key); err != nil {
		return mapErr("delete", err)
	}
	return nil
}

// Discard is Abort; it shadows ReadTxn.Discard so the writer slot is
// always released.
func (w *WriteTxn) Discard() {
	w.Abort()
}

var errTxnFinished = errors.New("transaction already finished")
