package pager

import (
	"testing"

	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/vfs"
)

func openTestPager(t *testing.T) (*Pager, *vfs.FS) {
	t.Helper()
	fs := vfs.Memory()
	f, err := fs.Open("test.db", vfs.OpenFlags{Create: true, ReadWrite: true})
	if err != nil {
		t.Fatal(err)
	}
	engine := mvcc.New(mvcc.Config{Serializable: true}, nil, nil)
	p, err := Open(f, nil, engine, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p, fs
}

func TestAllocateAndWriteRoundTrip(t *testing.T) {
	p, _ := openTestPager(t)
	h := p.Begin(ModeImmediate)

	pgno, err := h.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, p.PageSize())
	copy(data, []byte("hello"))
	if err := h.WritePage(pgno, data); err != nil {
		t.Fatal(err)
	}
	got, err := h.GetPage(pgno)
	if err != nil {
		t.Fatal(err)
	}
	if string(got[:5]) != "hello" {
		t.Fatalf("got %q, want hello prefix", got[:5])
	}
	if err := h.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestFreeListRoundTrip(t *testing.T) {
	p, _ := openTestPager(t)
	h := p.Begin(ModeImmediate)

	pgno, err := h.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := h.FreePage(pgno); err != nil {
		t.Fatal(err)
	}
	again, ok, err := h.popFreeList()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || again != pgno {
		t.Fatalf("popFreeList() = (%d, %v), want (%d, true)", again, ok, pgno)
	}
}

func TestWriteOnAbortedTxnFails(t *testing.T) {
	p, _ := openTestPager(t)
	h := p.Begin(ModeImmediate)
	h.Rollback()

	if err := h.WritePage(1, make([]byte, p.PageSize())); err == nil {
		t.Fatal("expected write on a rolled-back transaction to fail")
	}
}
