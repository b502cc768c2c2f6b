package shm

import (
	"testing"
	"time"
)

func TestAllocTxnIDUnique(t *testing.T) {
	c := New(time.Second)
	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		id, err := c.AllocTxnID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate txn id %d", id)
		}
		seen[id] = true
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	c := New(time.Second)
	id, err := c.AllocTxnID()
	if err != nil {
		t.Fatal(err)
	}
	if ids := c.ActiveTxnIDs(); len(ids) != 1 {
		t.Fatalf("ActiveTxnIDs() = %v, want 1 entry", ids)
	}
	c.ReleaseTxn(id)
	if ids := c.ActiveTxnIDs(); len(ids) != 0 {
		t.Fatalf("ActiveTxnIDs() after release = %v, want none", ids)
	}
}

func TestTryLockPageExclusive(t *testing.T) {
	c := New(time.Second)
	if err := c.TryLockPage(1, 100); err != nil {
		t.Fatal(err)
	}
	if err := c.TryLockPage(1, 200); err == nil {
		t.Fatal("expected second transaction's lock attempt to fail")
	}
	c.UnlockPage(1, 100)
	if err := c.TryLockPage(1, 200); err != nil {
		t.Fatalf("expected lock to succeed after release: %v", err)
	}
}

func TestStaleLeaseReclaimed(t *testing.T) {
	c := New(1 * time.Millisecond)
	id, err := c.AllocTxnID()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	reclaimed := c.ReclaimStaleLeases()
	if len(reclaimed) != 1 || reclaimed[0] != id {
		t.Fatalf("ReclaimStaleLeases() = %v, want [%d]", reclaimed, id)
	}
}

func TestCommitSeqMonotonic(t *testing.T) {
	c := New(time.Second)
	a := c.AdvanceCommitSeq()
	b := c.AdvanceCommitSeq()
	if b != a+1 {
		t.Fatalf("commit seq not monotonic: %d then %d", a, b)
	}
}
