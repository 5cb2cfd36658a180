package store

import (
	"mvcckv/pkg/mvcc"
	"mvcckv/pkg/skiplist"
)

// Iterator provides a snapshot-read interface over a Table. It wraps a
// skip-list iterator for traversal and a StreamReadOp for the actual
// value read, both bound to the snapshot taken when the Iterator was
// constructed.
type Iterator struct {
	it     skiplist.Iterator[*mvcc.Row]
	stream *mvcc.StreamReadOp
	owned  *mvcc.Version
}

func (t *Table) newIterator(it skiplist.Iterator[*mvcc.Row]) *Iterator {
	v := t.coordinator.StartStreamRead()
	var row *mvcc.Row
	if it.Valid() {
		row = it.Value()
	}
	return &Iterator{it: it, stream: mvcc.NewStreamReadOp(row, v), owned: v}
}

// Valid reports whether the iterator points at a live key.
func (i *Iterator) Valid() bool {
	return i.it.Valid()
}

// Key returns the key at the iterator's current position.
func (i *Iterator) Key() string {
	return i.it.Key()
}

// Read returns the value at the iterator's current position, relative
// to the snapshot the iterator was created with.
func (i *Iterator) Read() (string, error) {
	return i.stream.Read()
}

// Next advances the iterator to the next live key on the primary
// index's bottom level.
func (i *Iterator) Next() {
	i.it = i.it.Next()
	for !i.it.Valid() && i.it != skiplist.End[*mvcc.Row]() {
		i.it = i.it.Next()
	}
	var row *mvcc.Row
	if i.it.Valid() {
		row = i.it.Value()
	}
	i.stream.Next(row)
}

// Close releases the snapshot version the iterator holds. Callers
// that exhaust an iterator by driving it to End do not need to call
// Close; it is provided for early abandonment.
func (i *Iterator) Close() {
	i.owned.Release()
}
