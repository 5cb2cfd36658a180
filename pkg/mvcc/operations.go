package mvcc

import "fmt"

// ReadOp is a one-shot snapshot read bound to a read-only Version. It
// allocates nothing: the version it holds just pins the sequence
// number the read is relative to.
type ReadOp struct {
	row     *Row
	version *Version
}

// NewReadOp constructs a read bound to row at version.
func NewReadOp(row *Row, version *Version) *ReadOp {
	return &ReadOp{row: row, version: version}
}

// Read returns the value visible to this operation's version.
func (o *ReadOp) Read() (string, error) {
	if o.row == nil {
		return "", ErrNotFound
	}
	return o.row.Read(o.version.Number())
}

// StreamReadOp is a ReadOp that can be retargeted to a new row,
// letting a single snapshot version be reused across an iteration
// without reallocating one per row.
type StreamReadOp struct {
	row     *Row
	version *Version
}

// NewStreamReadOp constructs a stream read bound to row at version.
func NewStreamReadOp(row *Row, version *Version) *StreamReadOp {
	return &StreamReadOp{row: row, version: version}
}

// Read returns the value visible to this operation's version.
func (o *StreamReadOp) Read() (string, error) {
	if o.row == nil {
		return "", ErrNotFound
	}
	return o.row.Read(o.version.Number())
}

// Next retargets this operation at a different row, keeping the same
// snapshot version.
func (o *StreamReadOp) Next(row *Row) {
	o.row = row
}

// WriteOp appends a new value to a row and commits it immediately. A
// DeleteOp is a WriteOp writing the empty value.
type WriteOp struct {
	row     *Row
	value   string
	version *Version
	waitMS  int
}

// NewWriteOp constructs a write of value to row, allocating no new
// version: callers pass one obtained from a Coordinator.
func NewWriteOp(row *Row, value string, version *Version, waitMS int) *WriteOp {
	return &WriteOp{row: row, value: value, version: version, waitMS: waitMS}
}

// NewDeleteOp constructs a delete of row: a write of the empty value.
func NewDeleteOp(row *Row, version *Version, waitMS int) *WriteOp {
	return NewWriteOp(row, "", version, waitMS)
}

// Write appends the record and commits it. Returns ErrLockTimeout if
// the row's writer lock could not be acquired within waitMS.
func (o *WriteOp) Write() error {
	if o.row == nil {
		return ErrInvalidArgument
	}

	rec, ok := o.row.Write(o.value, o.version.Number(), o.waitMS)
	if !ok {
		return ErrLockTimeout
	}

	o.version.recordOperation(rec)
	if !o.version.Commit() {
		return fmt.Errorf("%w: write could not commit", ErrTransactionAborted)
	}
	return nil
}

type bulkEntry struct {
	row   *Row
	value string
}

// BulkWriteOp applies a batch of writes under one version, stopping at
// the first failure. It never rolls back writes that already
// succeeded: a BulkWriteOp is a best-effort batch, not a transaction.
type BulkWriteOp struct {
	version *Version
	waitMS  int
	entries []bulkEntry
}

// NewBulkWriteOp constructs an empty batch bound to version.
func NewBulkWriteOp(version *Version, waitMS int) *BulkWriteOp {
	return &BulkWriteOp{version: version, waitMS: waitMS}
}

// Append queues a write of value to row.
func (b *BulkWriteOp) Append(row *Row, value string) {
	b.entries = append(b.entries, bulkEntry{row: row, value: value})
}

// Run executes every queued write in order, stopping at the first
// failure. It returns the number of writes that succeeded and, if the
// batch did not finish, the error that stopped it. Run clears the
// queue so a BulkWriteOp runs at most once.
func (b *BulkWriteOp) Run() (int, error) {
	entries := b.entries
	b.entries = nil

	for i, e := range entries {
		op := NewWriteOp(e.row, e.value, b.version, b.waitMS)
		if err := op.Write(); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

type transactionWrite struct {
	row   *Row
	value string
}

// TransactionOp is a two-phase-locked batch of writes sharing one
// version: lock every row, apply every write without committing,
// commit every row one at a time, then unlock every row. Any failure
// in the lock or execute phase undoes and unlocks everything and
// leaves no row changed. A failure partway through the commit phase
// still undoes and unlocks every row, but since commit iterates rows
// one at a time with no barrier between them, a concurrent reader can
// observe some rows committed and others not: commit across rows in a
// transaction is not atomic.
type TransactionOp struct {
	version *Version
	waitMS  int
	writes  []transactionWrite
}

// NewTransactionOp constructs an empty transaction bound to version.
func NewTransactionOp(version *Version, waitMS int) *TransactionOp {
	return &TransactionOp{version: version, waitMS: waitMS}
}

// AppendWrite queues a write of value to row for this transaction.
func (t *TransactionOp) AppendWrite(row *Row, value string) {
	t.writes = append(t.writes, transactionWrite{row: row, value: value})
}

// Commit runs the lock, execute, commit, and release phases. On
// success every queued write is visible and every row is unlocked. On
// failure every recorded record is undone and every row locked so far
// is unlocked, and the transaction's queue is left empty either way.
func (t *TransactionOp) Commit() error {
	writes := t.writes
	t.writes = nil

	locked := make([]*Row, 0, len(writes))
	for _, w := range writes {
		if w.row == nil {
			t.abort(locked)
			return ErrInvalidArgument
		}
		if !w.row.GetLock(t.waitMS) {
			t.abort(locked)
			return fmt.Errorf("%w: %v", ErrTransactionAborted, ErrLockTimeout)
		}
		locked = append(locked, w.row)
	}

	for _, w := range writes {
		rec := w.row.UpdateValue(w.value, t.version.Number())
		t.version.recordOperation(rec)
	}

	if !t.version.Commit() {
		t.abort(locked)
		return fmt.Errorf("%w: commit phase failed", ErrTransactionAborted)
	}

	for _, row := range locked {
		row.Unlock()
	}
	return nil
}

func (t *TransactionOp) abort(locked []*Row) {
	t.version.Undo()
	for _, row := range locked {
		row.Unlock()
	}
}
