package mvcc

import "sync/atomic"

// Status is the lifecycle state of a Record. Every record starts
// Uncommitted and moves to exactly one terminal state.
type Status int32

const (
	// StatusUncommitted marks a record just appended by a writer, not
	// yet visible to snapshot reads.
	StatusUncommitted Status = iota
	// StatusCommitted marks a record whose value is visible to reads
	// at or after its version.
	StatusCommitted
	// StatusDeleted marks a committed record written with an empty
	// value, terminating visibility for the row at this point in the
	// chain regardless of the version a reader asked for.
	StatusDeleted
	// StatusUndo marks a record whose writer rolled back; permanently
	// invisible.
	StatusUndo
)

// Record is one entry in a row's version chain: a value tagged with
// the version that produced it and a link to the previous record.
type Record struct {
	value   string
	version int64
	status  atomic.Int32
	prev    atomic.Pointer[Record]
}

func newRecord(value string, version int64, prev *Record) *Record {
	r := &Record{value: value, version: version}
	r.status.Store(int32(StatusUncommitted))
	if prev != nil {
		r.prev.Store(prev)
	}
	return r
}

func (r *Record) Status() Status {
	return Status(r.status.Load())
}

func (r *Record) Version() int64 {
	return r.version
}

// commit transitions an Uncommitted record to Committed (or Deleted,
// for an empty value) and prunes every ancestor older than lowest that
// has itself reached a terminal state, stopping at the first ancestor
// that hasn't. Returns false if the record was not Uncommitted.
func (r *Record) commit(lowest int64) bool {
	if Status(r.status.Load()) != StatusUncommitted {
		return false
	}

	prev := r.prev.Load()
	for prev != nil && prev.version < lowest && Status(prev.status.Load()) != StatusUncommitted {
		next := prev.prev.Load()
		r.prev.Store(nil)
		prev = next
	}

	if r.value == "" {
		r.status.Store(int32(StatusDeleted))
	} else {
		r.status.Store(int32(StatusCommitted))
	}
	return true
}

// undo transitions a record to Undo, making it permanently invisible.
func (r *Record) undo() bool {
	r.status.Store(int32(StatusUndo))
	return true
}
