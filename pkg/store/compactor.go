package store

import (
	"sync/atomic"
	"time"
)

const (
	statusIdle int32 = iota
	statusCompacting
	statusDraining
)

// status is the compactor's three-state machine, CAS-guarded so that
// at most one compaction runs at a time.
type status struct {
	v atomic.Int32
}

func (s *status) Load() int32 {
	return s.v.Load()
}

func (s *status) compareAndSwap(old, new int32) bool {
	return s.v.CompareAndSwap(old, new)
}

const drainPollInterval = 100 * time.Millisecond

// tryCompact auto-triggers Compact when the fraction of deleted keys
// exceeds the table's configured threshold. Best-effort: it never
// blocks the caller on the background compaction work.
func (t *Table) tryCompact() {
	if t.percent >= 1 {
		return
	}
	size := t.main.Size()
	if size == 0 {
		return
	}
	if float64(t.deletedNum.Load())/float64(size) > t.percent {
		t.Compact()
	}
}

// Compact starts the compaction protocol and returns once it has
// either been rejected or handed off to a background task: it never
// blocks the caller for the duration of a drain. The precondition
// checks and the CAS from Idle to Compacting happen synchronously, so
// the caller can tell immediately whether compaction actually started;
// the rest of the protocol (physically removing lazily deleted nodes
// from main, redirecting writes to buffer while draining in-flight
// readers and writers, merging buffer back into main, and returning to
// Idle) runs on a spawned goroutine. A concurrent call while
// compaction is already running, or while the buffer is non-empty from
// a previous run, is a silent no-op.
func (t *Table) Compact() {
	if t.buffer.Size() != 0 {
		return
	}
	if t.coordinator.AliveOperations() != 0 {
		return
	}
	if !t.status.compareAndSwap(statusIdle, statusCompacting) {
		return
	}

	go t.runCompaction()
}

// runCompaction carries out the drain-and-merge body of the protocol.
// Only called after the caller has already CAS'd the table into
// statusCompacting.
func (t *Table) runCompaction() {
	deletedCount := t.deletedNum.Load()

	t.main.Compact()

	t.status.compareAndSwap(statusCompacting, statusDraining)

	t.waitForDrain()

	t.main.Merge(t.buffer)
	t.deletedNum.Add(-deletedCount)

	t.status.compareAndSwap(statusDraining, statusIdle)

	t.waitForDrain()

	t.buffer.Clear()
}

// waitForDrain blocks until no transaction that began before this call
// is still outstanding, polling the coordinator's live-version set at
// drainPollInterval.
func (t *Table) waitForDrain() {
	for t.coordinator.NewestVersion() != t.coordinator.LowestVersion() {
		time.Sleep(drainPollInterval)
	}
}
