package storage

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// Table is a typed view over the keys sharing one prefix. Values of type T
// are stored with the table's kind and RecordVersion in their header.
type Table[T any] struct {
	name   string
	kind   Kind
	prefix []byte
	keyOf  func(T) []byte
}

// NewTable declares a table. keyOf returns the primary key of a record.
func NewTable[T any](name string, kind Kind, keyOf func(T) []byte) Table[T] {
	return Table[T]{
		name:   name,
		kind:   kind,
		prefix: []byte(name + "/"),
		keyOf:  keyOf,
	}
}

// Name returns the table name.
func (t Table[T]) Name() string { return t.name }

// Kind returns the record kind written into every value.
func (t Table[T]) Kind() Kind { return t.kind }

// Prefix returns the key prefix owned by the table.
func (t Table[T]) Prefix() []byte { return t.prefix }

// KeyOf returns the primary key of rec.
func (t Table[T]) KeyOf(rec T) []byte { return t.keyOf(rec) }

func (t Table[T]) storageKey(key []byte) []byte {
	out := make([]byte, 0, len(t.prefix)+len(key))
	out = append(out, t.prefix...)
	return append(out, key...)
}

// Get reads one record. found is false when the key is absent.
func (t Table[T]) Get(r Reader, key []byte) (rec T, found bool, err error) {
	item, err := r.badgerTxn().Get(t.storageKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, mapErr("get "+t.name, err)
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return rec, false, mapErr("get "+t.name, err)
	}
	if err := decodeRecord(data, t.kind, RecordVersion, &rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Scan visits every record in ascending key order. Returning an error from
// fn stops the scan and returns that error.
func (t Table[T]) Scan(r Reader, fn func(T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = t.prefix

	it := r.badgerTxn().NewIterator(opts)
	defer it.Close()

	for it.Seek(t.prefix); it.ValidForPrefix(t.prefix); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return mapErr("scan "+t.name, err)
		}
		var rec T
		if err := decodeRecord(data, t.kind, RecordVersion, &rec); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// All returns every record in ascending key order.
func (t Table[T]) All(r Reader) ([]T, error) {
	out := []T{}
	err := t.Scan(r, func(rec T) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of records without decoding values.
func (t Table[T]) Count(r Reader) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = t.prefix
	opts.PrefetchValues = false

	it := r.badgerTxn().NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(t.prefix); it.ValidForPrefix(t.prefix); it.Next() {
		n++
	}
	return n, nil
}

// Upsert writes rec, returning the record it replaced if there was one.
func (t Table[T]) Upsert(w *WriteTxn, rec T) (prior T, existed bool, err error) {
	key := t.keyOf(rec)
	if len(key) == 0 {
		return prior, false, coreerr.New(coreerr.ErrInvalidInput, "upsert "+t.name, errors.New("empty primary key"))
	}

	prior, existed, err = t.Get(w, key)
	if err != nil && !errors.Is(err, coreerr.ErrCorruption) {
		return prior, false, err
	}

	data, err := encodeRecord(t.kind, RecordVersion, rec)
	if err != nil {
		return prior, existed, coreerr.New(coreerr.ErrInvalidInput, "upsert "+t.name, err)
	}
	if err := w.set(t.storageKey(key), data); err != nil {
		return prior, existed, err
	}
	return prior, existed, nil
}

// Delete removes the record stored under key and reports whether it existed.
func (t Table[T]) Delete(w *WriteTxn, key []byte) (bool, error) {
	_, err := w.badgerTxn().Get(t.storageKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapErr("delete "+t.name, err)
	}
	if err := w.delete(t.storageKey(key)); err != nil {
		return false, err
	}
	return true, nil
}
