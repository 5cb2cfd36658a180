package mvcc

import (
	"sync/atomic"
	"time"
)

// DefaultWaitMS is the default bound, in milliseconds, a writer waits
// to acquire a row's lock before giving up.
const DefaultWaitMS = 50

// Row is a per-key version chain: a singly-linked list of Record
// values ordered newest-first, guarded by a single writer lock so that
// at most one writer touches a row at a time. Reads never take the
// lock; they walk the chain following the atomic `latest` pointer.
type Row struct {
	sem           chan struct{}
	latest        atomic.Pointer[Record]
	memUse        atomic.Int64
	inTransaction atomic.Bool
}

// NewRow constructs an empty row with no committed value.
func NewRow() *Row {
	return &Row{sem: make(chan struct{}, 1)}
}

// NewRowWithValue constructs a row whose head record is already
// Committed at the given version, for seeding a table or cloning
// another row.
func NewRowWithValue(value string, version int64) *Row {
	r := NewRow()
	rec := newRecord(value, version, nil)
	rec.status.Store(int32(StatusCommitted))
	r.latest.Store(rec)
	r.memUse.Add(int64(len(value)) + 16)
	return r
}

func (r *Row) tryLock(waitMS int) bool {
	select {
	case r.sem <- struct{}{}:
		return true
	case <-time.After(time.Duration(waitMS) * time.Millisecond):
		return false
	}
}

func (r *Row) unlockRaw() {
	select {
	case <-r.sem:
	default:
	}
}

// Write appends a new Uncommitted record with value at version,
// waiting up to waitMS for the row's lock. The lock is released before
// returning: callers finalize visibility separately via Record.commit
// (through a Version), which is why write and commit are allowed to
// race in the single-write path the same way the transaction path
// commits rows one at a time.
func (r *Row) Write(value string, version int64, waitMS int) (*Record, bool) {
	if !r.tryLock(waitMS) {
		return nil, false
	}
	defer r.unlockRaw()

	rec := newRecord(value, version, r.latest.Load())
	r.latest.Store(rec)
	r.memUse.Add(int64(len(value)) + 16)
	return rec, true
}

// Remove appends an empty-valued record, the row's delete marker.
func (r *Row) Remove(version int64, waitMS int) (*Record, bool) {
	return r.Write("", version, waitMS)
}

// Read returns the value visible at version, or ErrNotFound if no
// committed record is visible. A Deleted record terminates the walk
// regardless of its own version: once a row has been deleted, no
// record behind that point is visible to any snapshot.
func (r *Row) Read(version int64) (string, error) {
	node := r.latest.Load()
	for node != nil {
		status := Status(node.status.Load())
		if status == StatusCommitted && node.version <= version {
			return node.value, nil
		}
		if status == StatusDeleted {
			return "", ErrNotFound
		}
		node = node.prev.Load()
	}
	return "", ErrNotFound
}

// ReadLatest returns the current value regardless of any version
// bound, the "read committed" counterpart to Read's snapshot
// semantics. Nothing else in this module calls it; the table facade's
// Exist consults the index, not the row.
func (r *Row) ReadLatest() (string, error) {
	node := r.latest.Load()
	for node != nil {
		status := Status(node.status.Load())
		if status == StatusCommitted {
			return node.value, nil
		}
		if status == StatusDeleted {
			return "", ErrNotFound
		}
		node = node.prev.Load()
	}
	return "", ErrNotFound
}

// GetLock acquires the row's writer lock for the duration of a
// transaction, distinct from the scoped lock Write/Remove take and
// release internally. Must be paired with Unlock.
func (r *Row) GetLock(waitMS int) bool {
	if !r.tryLock(waitMS) {
		return false
	}
	r.inTransaction.Store(true)
	return true
}

// Unlock releases a lock taken by GetLock. Safe to call on a row that
// was never locked by GetLock: it is then a no-op, mirroring the
// original's tolerance for unconditional unlock calls during
// transaction cleanup.
func (r *Row) Unlock() {
	if r.inTransaction.CompareAndSwap(true, false) {
		r.unlockRaw()
	}
}

// UpdateValue appends a new Uncommitted record without taking the
// row's lock. Only valid while the caller already holds the lock via
// GetLock, as the execute phase of a two-phase-locked transaction
// does.
func (r *Row) UpdateValue(value string, version int64) *Record {
	rec := newRecord(value, version, r.latest.Load())
	r.latest.Store(rec)
	r.memUse.Add(int64(len(value)) + 16)
	return rec
}

// MemoryUse returns the approximate number of bytes this row's chain
// has ever accounted for. Informational only; records freed by commit
// pruning are not subtracted, matching the accounting the original
// structure keeps.
func (r *Row) MemoryUse() int64 {
	return r.memUse.Load()
}

// Clone copies the row's current committed value into a fresh row.
// Returns ErrUnsupportedCopy if the head record has not reached
// Committed (an uncommitted or deleted head cannot be meaningfully
// snapshotted into a brand new chain).
func (r *Row) Clone() (*Row, error) {
	head := r.latest.Load()
	if head == nil || Status(head.status.Load()) != StatusCommitted {
		return nil, ErrUnsupportedCopy
	}
	clone := NewRowWithValue(head.value, head.version)
	return clone, nil
}

// headStatus reports the status of the row's newest record, or
// StatusUndo if the row has no records at all (treated as invisible).
func (r *Row) headStatus() Status {
	head := r.latest.Load()
	if head == nil {
		return StatusUndo
	}
	return Status(head.status.Load())
}
