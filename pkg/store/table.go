// Package store provides the public, read-write concurrent table built
// on top of the skip-list index and the mvcc version chain. The read
// strategy is read-latest-committed; write operations on the same key
// are serialized by the key's Row.
package store

import (
	"sync/atomic"

	"mvcckv/pkg/cache"
	"mvcckv/pkg/mvcc"
	"mvcckv/pkg/skiplist"
)

// CleanThreshold describes the garbage cleanup trigger level.
type CleanThreshold int

const (
	// High starts cleanup once 50% of keys are deleted.
	High CleanThreshold = iota
	// Medium starts cleanup at 30%.
	Medium
	// Low starts cleanup at 15%.
	Low
	// Never disables auto-compaction entirely.
	Never
)

func (t CleanThreshold) percent() float64 {
	switch t {
	case High:
		return 0.5
	case Medium:
		return 0.3
	case Low:
		return 0.15
	default:
		return 1
	}
}

// DefaultMaxLevel matches the table-level skip-list height used by the
// reference table, distinct from the lower default used by a bare
// SkipList.
const DefaultMaxLevel = 18

// Table is a read-write concurrent key-value container. All operations
// are thread safe.
type Table struct {
	status status

	main   *skiplist.SkipList[*mvcc.Row]
	buffer *skiplist.SkipList[*mvcc.Row]

	coordinator *mvcc.Coordinator
	budget      *cache.MemoryBudget

	threshold  CleanThreshold
	percent    float64
	deletedNum atomic.Int64

	waitMS int
}

// NewTable constructs an empty Table using the given skip-list level and
// auto-compaction threshold.
func NewTable(maxLevel int, threshold CleanThreshold) *Table {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxLevel
	}
	return &Table{
		main:        skiplist.New[*mvcc.Row](maxLevel),
		buffer:      skiplist.New[*mvcc.Row](maxLevel),
		coordinator: mvcc.NewCoordinator(),
		budget:      cache.NewMemoryBudget(0),
		threshold:   threshold,
		percent:     threshold.percent(),
		waitMS:      mvcc.DefaultWaitMS,
	}
}

// Size returns the number of live keys in the primary index.
func (t *Table) Size() int {
	return t.main.Size()
}

// MemoryUse returns the approximate number of bytes ever tracked for
// this table's row values. Informational only.
func (t *Table) MemoryUse() int64 {
	return t.budget.ComponentUsage("rows")
}

// Exist reports whether key currently has a live entry.
func (t *Table) Exist(key string) bool {
	return t.main.Find(key).Valid()
}

// Update writes value at key, creating the row if absent. Returns
// ErrInvalidArgument if key is empty.
func (t *Table) Update(key, value string) error {
	if key == "" {
		return mvcc.ErrInvalidArgument
	}

	row := t.rowFor(key)

	v := t.coordinator.StartWrite()
	defer v.Release()

	if err := mvcc.NewWriteOp(row, value, v, t.waitMS).Write(); err != nil {
		return err
	}

	t.budget.Track("rows", int64(len(key)+len(value)))
	return nil
}

// Emplace is an alias for Update: the reference table does not
// distinguish insert from update, since update auto-creates the row.
func (t *Table) Emplace(key, value string) error {
	return t.Update(key, value)
}

// Read returns the current value at key, or ErrNotFound if key is
// absent.
func (t *Table) Read(key string) (string, error) {
	it := t.main.Find(key)
	if !it.Valid() {
		return "", mvcc.ErrNotFound
	}

	row := it.Value()
	v := t.coordinator.StartRead()
	defer v.Release()

	return mvcc.NewReadOp(row, v).Read()
}

// Erase lazily deletes key. Physical removal happens at the next
// Compact. Increments the deleted-row counter that drives
// auto-compaction.
func (t *Table) Erase(key string) bool {
	ok := t.main.EraseKey(key)
	if ok {
		t.deletedNum.Add(1)
		t.tryCompact()
	}
	return ok
}

// Find returns an Iterator positioned at key, or End if key is absent
// from both the primary index and, while draining, the overflow
// buffer.
func (t *Table) Find(key string) *Iterator {
	it := t.main.Find(key)
	if !it.Valid() {
		if t.status.Load() == statusIdle {
			return t.End()
		}
		it = t.buffer.Find(key)
		if !it.Valid() {
			return t.End()
		}
	}
	return t.newIterator(it)
}

// Begin returns an iterator to the first live key in the primary index.
func (t *Table) Begin() *Iterator {
	it := t.main.Begin()
	for !it.Valid() && it != skiplist.End[*mvcc.Row]() {
		it = it.Next()
	}
	return t.newIterator(it)
}

// End returns an iterator pointing nowhere.
func (t *Table) End() *Iterator {
	return t.newIterator(skiplist.End[*mvcc.Row]())
}

// BulkWrite applies every key-value pair in order, stopping at the
// first key that does not already exist or the first write failure.
// Keys must pre-exist: BulkWrite never creates a row.
func (t *Table) BulkWrite(kvs []KV) error {
	v := t.coordinator.StartBulkWrite()
	defer v.Release()

	bulk := mvcc.NewBulkWriteOp(v, t.waitMS)
	for _, kv := range kvs {
		it := t.main.Find(kv.Key)
		if !it.Valid() {
			if _, err := bulk.Run(); err != nil {
				return err
			}
			return mvcc.ErrNotFound
		}
		bulk.Append(it.Value(), kv.Value)
	}

	if _, err := bulk.Run(); err != nil {
		return err
	}
	return nil
}

// Transaction applies every key-value pair atomically per row under
// two-phase locking. Keys must pre-exist: Transaction never creates a
// row, mirroring BulkWrite.
func (t *Table) Transaction(kvs []KV) error {
	rows := make([]*mvcc.Row, 0, len(kvs))
	for _, kv := range kvs {
		it := t.main.Find(kv.Key)
		if !it.Valid() {
			return mvcc.ErrNotFound
		}
		rows = append(rows, it.Value())
	}

	v := t.coordinator.StartTransaction()
	defer v.Release()

	tx := mvcc.NewTransactionOp(v, t.waitMS)
	for i, kv := range kvs {
		tx.AppendWrite(rows[i], kv.Value)
	}
	return tx.Commit()
}

// KV is a key-value pair passed to BulkWrite and Transaction.
type KV struct {
	Key   string
	Value string
}

// rowFor returns the row for key, consulting and inserting into
// whichever index is currently active for writes.
func (t *Table) rowFor(key string) *mvcc.Row {
	target := t.writeTarget()

	it := target.Find(key)
	if it.Valid() {
		return it.Value()
	}

	it, inserted := target.InsertIfNotExist(key, mvcc.NewRow())
	if !inserted {
		it = target.Find(key)
	}
	return it.Value()
}

func (t *Table) writeTarget() *skiplist.SkipList[*mvcc.Row] {
	if t.status.Load() == statusCompacting {
		return t.main
	}
	if t.status.Load() == statusDraining {
		return t.buffer
	}
	return t.main
}
