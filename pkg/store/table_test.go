package store

import (
	"fmt"
	"testing"
	"time"

	"mvcckv/pkg/mvcc"
)

func TestTableReadMissingKeyReturnsNotFound(t *testing.T) {
	table := NewTable(0, Never)

	if _, err := table.Read("1"); err != mvcc.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if table.Exist("1") {
		t.Fatal("expected key 1 not to exist yet")
	}
}

func TestTableEmplaceReadEraseLifecycle(t *testing.T) {
	table := NewTable(0, Never)

	if err := table.Emplace("1", "1"); err != nil {
		t.Fatalf("expected emplace to succeed, got %v", err)
	}
	if got, err := table.Read("1"); err != nil || got != "1" {
		t.Fatalf("expected %q, got %q (err=%v)", "1", got, err)
	}

	if !table.Erase("1") {
		t.Fatal("expected erase to succeed")
	}
	if table.Exist("1") {
		t.Fatal("expected key 1 to no longer exist after erase")
	}
}

func TestTableEmplaceOverwritesExistingKey(t *testing.T) {
	table := NewTable(0, Never)

	if err := table.Emplace("2", "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := table.Emplace("2", "100"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := table.Emplace("33", "33"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := table.Emplace("22", "22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, err := table.Read("2"); err != nil || got != "100" {
		t.Fatalf("expected the second emplace to overwrite, got %q (err=%v)", got, err)
	}
	if table.Size() != 3 {
		t.Fatalf("expected 3 keys, got %d", table.Size())
	}
}

func TestTableUpdateRejectsEmptyKey(t *testing.T) {
	table := NewTable(0, Never)
	if err := table.Update("", "x"); err != mvcc.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTableFreshReadAlwaysSeesLatestCommittedValue(t *testing.T) {
	table := NewTable(0, Never)
	if err := table.Emplace("k", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := table.Read("k"); err != nil || got != "a" {
		t.Fatalf("expected %q, got %q (err=%v)", "a", got, err)
	}

	if err := table.Emplace("k", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := table.Read("k"); err != nil || got != "b" {
		t.Fatalf("expected a fresh read to see the latest committed value %q, got %q (err=%v)", "b", got, err)
	}
}

func TestTableIterationCoversAllLiveKeys(t *testing.T) {
	table := NewTable(0, Never)
	for _, k := range []string{"1", "2", "3", "12"} {
		if err := table.Emplace(k, k); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	seen := map[string]bool{}
	for it := table.Begin(); it.Valid(); it.Next() {
		seen[it.Key()] = true
	}

	for _, k := range []string{"1", "2", "3", "12"} {
		if !seen[k] {
			t.Errorf("expected iteration to cover key %q", k)
		}
	}
}

func TestTableBulkWriteRequiresExistingKeys(t *testing.T) {
	table := NewTable(0, Never)
	if err := table.Emplace("a", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := table.BulkWrite([]KV{{Key: "a", Value: "2"}, {Key: "missing", Value: "3"}})
	if err != mvcc.ErrNotFound {
		t.Fatalf("expected ErrNotFound for a missing key, got %v", err)
	}

	if got, _ := table.Read("a"); got != "2" {
		t.Fatalf("expected the entry before the missing key to have been written, got %q", got)
	}
}

func TestTableTransactionRequiresExistingKeysAndIsAllOrNothing(t *testing.T) {
	table := NewTable(0, Never)
	if err := table.Emplace("a", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := table.Emplace("b", "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := table.Transaction([]KV{{Key: "a", Value: "11"}, {Key: "b", Value: "22"}}); err != nil {
		t.Fatalf("expected transaction over existing keys to succeed, got %v", err)
	}
	if got, _ := table.Read("a"); got != "11" {
		t.Errorf("expected %q, got %q", "11", got)
	}
	if got, _ := table.Read("b"); got != "22" {
		t.Errorf("expected %q, got %q", "22", got)
	}

	err := table.Transaction([]KV{{Key: "a", Value: "111"}, {Key: "nope", Value: "x"}})
	if err != mvcc.ErrNotFound {
		t.Fatalf("expected ErrNotFound when a transaction key is missing, got %v", err)
	}
	if got, _ := table.Read("a"); got != "11" {
		t.Errorf("expected key a untouched by the rejected transaction, got %q", got)
	}
}

func TestCompactionRemovesErasedKeysAndKeepsSurvivors(t *testing.T) {
	table := NewTable(0, Never)

	const total = 1000
	const erased = 600

	for i := 0; i < total; i++ {
		key := keyFor(i)
		if err := table.Emplace(key, key); err != nil {
			t.Fatalf("unexpected error emplacing %q: %v", key, err)
		}
	}
	for i := 0; i < erased; i++ {
		if !table.Erase(keyFor(i)) {
			t.Fatalf("expected erase to succeed for %q", keyFor(i))
		}
	}

	table.Compact()
	waitForIdle(t, table)

	for i := 0; i < erased; i++ {
		key := keyFor(i)
		if _, err := table.Read(key); err != mvcc.ErrNotFound {
			t.Errorf("expected erased key %q to read as not found, got err=%v", key, err)
		}
	}
	for i := erased; i < total; i++ {
		key := keyFor(i)
		if got, err := table.Read(key); err != nil || got != key {
			t.Errorf("expected surviving key %q to read %q, got %q (err=%v)", key, key, got, err)
		}
	}

	if table.Size() != total-erased {
		t.Fatalf("expected size %d after compaction, got %d", total-erased, table.Size())
	}
}

func keyFor(i int) string {
	return fmt.Sprintf("k%d", i)
}

// waitForIdle polls until a background Compact has returned the table
// to statusIdle, since Compact itself only hands the drain-and-merge
// work off to a goroutine and returns immediately.
func waitForIdle(t *testing.T, table *Table) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if table.status.Load() == statusIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for compaction to return to idle")
}
