package mvcc

import "sync/atomic"

// Version is the handle an operation uses to bind a set of Record
// mutations to a single version number. Every Version is created by a
// Coordinator and must be released by its owner: defer v.Release()
// immediately after obtaining one. If neither Commit nor Undo was
// called explicitly before Release, Release undoes every recorded
// record itself, the same safety net std::unique_ptr-style RAII gives
// the original C++ handle and database/sql.Tx gives a forgotten
// transaction.
type Version struct {
	coordinator *Coordinator
	number      int64
	refer       bool
	useCount    *atomic.Int32
	records     []*Record
	done        bool
}

func newVersion(c *Coordinator, number int64, refer bool) *Version {
	uc := &atomic.Int32{}
	uc.Store(1)
	return &Version{coordinator: c, number: number, refer: refer, useCount: uc}
}

// Number returns the version sequence number this handle was assigned.
func (v *Version) Number() int64 {
	return v.number
}

// recordOperation associates a mutated record with this version so
// Commit/Undo/Release can later finalize it.
func (v *Version) recordOperation(r *Record) {
	v.records = append(v.records, r)
}

// Commit finalizes every recorded record. Records already committed by
// an earlier Commit on this version are left as they are, so a version
// shared by several writes can be committed after each one. A refer
// version (used for reads, which never mutate anything) never commits
// and always returns false.
func (v *Version) Commit() bool {
	if v.refer {
		return false
	}
	v.done = true
	lowest := v.coordinator.LowestVersion()
	ok := true
	for _, r := range v.records {
		if s := r.Status(); s == StatusCommitted || s == StatusDeleted {
			continue
		}
		if !r.commit(lowest) {
			ok = false
		}
	}
	return ok
}

// Undo rolls back every recorded record. A refer version never records
// anything, so this is a no-op for reads.
func (v *Version) Undo() {
	if v.refer {
		return
	}
	v.done = true
	for _, r := range v.records {
		r.undo()
	}
}

// Release drops this handle. If the owner never called Commit or Undo,
// Release undoes every recorded record first. Once the shared use
// count of an owning (non-refer) handle reaches zero, the coordinator
// is notified so it can retire the version number from its live set;
// refer handles were never registered there and notify nothing.
func (v *Version) Release() {
	if !v.done {
		v.done = true
		for _, r := range v.records {
			r.undo()
		}
	}
	if v.useCount.Add(-1) == 0 && !v.refer {
		v.coordinator.releaseNotify(v.number)
	}
}

// clone returns a new handle sharing this version's number and use
// count, with its own empty record list, for handing the same version
// to more than one holder. Nothing in this module calls it: a stream
// read retargets its single handle with StreamReadOp.Next instead.
func (v *Version) clone() *Version {
	v.useCount.Add(1)
	return &Version{coordinator: v.coordinator, number: v.number, refer: v.refer, useCount: v.useCount}
}
