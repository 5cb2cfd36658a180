package mvcc

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Coordinator allocates version numbers and tracks which versions are
// still alive, so that committed records can be pruned once no
// outstanding operation can still observe them. A Coordinator is an
// ordinary constructible value, not global state: callers own one and
// obtain from it the Version every operation they create is bound to.
type Coordinator struct {
	sequence atomic.Int64

	mu   sync.Mutex
	live []int64
}

// NewCoordinator constructs a coordinator with no live versions and a
// sequence starting at zero.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// allocate bumps the sequence counter and registers the new version
// number as live, returning an owning (non-refer) handle.
func (c *Coordinator) allocate() *Version {
	n := c.sequence.Add(1)

	c.mu.Lock()
	c.insertLocked(n)
	c.mu.Unlock()

	return newVersion(c, n, false)
}

// snapshot returns a non-owning, read-only handle at the current
// newest version number. Read operations never allocate a new version
// or register themselves in the live set: they borrow the coordinator's
// current sequence value for the duration of the read.
func (c *Coordinator) snapshot() *Version {
	return newVersion(c, c.sequence.Load(), true)
}

func (c *Coordinator) insertLocked(n int64) {
	i := sort.Search(len(c.live), func(i int) bool { return c.live[i] >= n })
	c.live = append(c.live, 0)
	copy(c.live[i+1:], c.live[i:])
	c.live[i] = n
}

// releaseNotify removes a version number from the live set. Called by
// Version.Release once the last outstanding handle for that version
// number has dropped. A no-op for version numbers that were never
// registered (refer/read handles).
func (c *Coordinator) releaseNotify(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.live), func(i int) bool { return c.live[i] >= n })
	if i < len(c.live) && c.live[i] == n {
		c.live = append(c.live[:i], c.live[i+1:]...)
	}
}

// NewestVersion returns the highest version number ever allocated.
func (c *Coordinator) NewestVersion() int64 {
	return c.sequence.Load()
}

// LowestVersion returns the lowest version number any live operation
// still depends on. Falls back to the current sequence value when no
// operation is currently live, matching a table with no outstanding
// writers or transactions.
func (c *Coordinator) LowestVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.live) == 0 {
		return c.sequence.Load()
	}
	return c.live[0]
}

// AliveOperations returns the number of version numbers currently
// live.
func (c *Coordinator) AliveOperations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// StartRead returns a read-only handle at the current newest version,
// for use with a single row read.
func (c *Coordinator) StartRead() *Version {
	return c.snapshot()
}

// StartStreamRead returns a read-only handle suitable for retargeting
// across a sequence of rows during iteration.
func (c *Coordinator) StartStreamRead() *Version {
	return c.snapshot()
}

// StartWrite allocates a fresh version for a single write.
func (c *Coordinator) StartWrite() *Version {
	return c.allocate()
}

// StartDelete allocates a fresh version for a single delete.
func (c *Coordinator) StartDelete() *Version {
	return c.allocate()
}

// StartBulkWrite allocates a fresh version shared by every write in a
// best-effort batch.
func (c *Coordinator) StartBulkWrite() *Version {
	return c.allocate()
}

// StartTransaction allocates a fresh version shared by every write in
// a two-phase-locked transaction.
func (c *Coordinator) StartTransaction() *Version {
	return c.allocate()
}
