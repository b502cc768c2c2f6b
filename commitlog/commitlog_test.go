package commitlog

import (
	"testing"

	"github.com/leftmike/frankensqlite/mvcc"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogCommitAndGet(t *testing.T) {
	l := openTestLog(t)

	if err := l.LogCommit(mvcc.TxnId(7), mvcc.CommitSeq(1), []uint32{2, 5, 9}); err != nil {
		t.Fatal(err)
	}

	rec, found, err := l.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("seq 1 not found")
	}
	if rec.TxnID != 7 || rec.CommitSeq != 1 {
		t.Fatalf("got txn %d seq %d", rec.TxnID, rec.CommitSeq)
	}
	if len(rec.Pages) != 3 || rec.Pages[0] != 2 || rec.Pages[2] != 9 {
		t.Fatalf("got pages %v", rec.Pages)
	}
}

func TestGetMissing(t *testing.T) {
	l := openTestLog(t)
	_, found, err := l.Get(99)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("found a commit that never happened")
	}
}

func TestScanInCommitOrder(t *testing.T) {
	l := openTestLog(t)

	// Append out of key order; the scan must come back ordered by seq.
	for _, seq := range []uint64{3, 1, 2} {
		if err := l.LogCommit(mvcc.TxnId(seq*10), mvcc.CommitSeq(seq), []uint32{uint32(seq)}); err != nil {
			t.Fatal(err)
		}
	}

	var seqs []uint64
	err := l.Scan(0, func(rec Record) bool {
		seqs = append(seqs, rec.CommitSeq)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", seqs)
	}
}

func TestScanStopsEarly(t *testing.T) {
	l := openTestLog(t)
	for seq := uint64(1); seq <= 5; seq++ {
		if err := l.LogCommit(mvcc.TxnId(seq), mvcc.CommitSeq(seq), nil); err != nil {
			t.Fatal(err)
		}
	}
	var count int
	err := l.Scan(2, func(rec Record) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("visited %d records, want 2", count)
	}
}
