package wal_test

import (
	"testing"

	"github.com/leftmike/frankensqlite/vfs"
	"github.com/leftmike/frankensqlite/wal"
)

func openWAL(t *testing.T) (*vfs.FS, *vfs.File) {
	t.Helper()
	fs := vfs.Memory()
	f, err := fs.Open("test.wal", vfs.OpenFlags{Create: true})
	if err != nil {
		t.Fatal(err)
	}
	return fs, f
}

func TestAppendAndReadPage(t *testing.T) {
	_, f := openWAL(t)
	defer f.Close()

	l, err := wal.Create(f, 4096, 111, 222)
	if err != nil {
		t.Fatal(err)
	}

	page := make([]byte, 4096)
	copy(page, "hello page one")
	if err := l.Append(1, 10, page, true, 1); err != nil {
		t.Fatal(err)
	}

	data, ok, err := l.ReadPage(1, func(cs uint64) bool { return cs <= 10 })
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected page to be found")
	}
	if string(data[:14]) != "hello page one" {
		t.Errorf("got %q", data[:14])
	}

	_, ok, err = l.ReadPage(1, func(cs uint64) bool { return cs < 10 })
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("page committed at 10 should not be visible to snapshot < 10")
	}
}

func TestChecksumChains(t *testing.T) {
	s0, s1 := wal.Checksum(1, 2, make([]byte, 8))
	s0b, s1b := wal.Checksum(1, 2, make([]byte, 8))
	if s0 != s0b || s1 != s1b {
		t.Fatal("checksum must be deterministic")
	}

	other, other1 := wal.Checksum(3, 4, make([]byte, 8))
	if s0 == other && s1 == other1 {
		t.Fatal("different seeds should (almost always) produce different checksums")
	}
}

func TestFECRepairsOneLostFrame(t *testing.T) {
	frames := [][]byte{
		[]byte("frame-zero-AAAA"),
		[]byte("frame-one--BBBB"),
		[]byte("frame-two--CCCC"),
	}
	symbols, err := wal.EncodeGroup(frames, 1)
	if err != nil {
		t.Fatal(err)
	}

	corrupted := make([][]byte, len(frames))
	for i, f := range frames {
		corrupted[i] = append([]byte(nil), f...)
	}
	original := append([]byte(nil), corrupted[1]...)
	corrupted[1] = make([]byte, len(corrupted[1]))

	bad := []bool{false, true, false}
	if err := wal.Repair(corrupted, bad, symbols); err != nil {
		t.Fatal(err)
	}
	if string(corrupted[1]) != string(original) {
		t.Errorf("got %q, want %q", corrupted[1], original)
	}
}

func TestCheckpointPassiveSkipsNeededPages(t *testing.T) {
	_, f := openWAL(t)
	defer f.Close()
	l, err := wal.Create(f, 4096, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	page := make([]byte, 4096)
	if err := l.Append(1, 5, page, true, 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(2, 5, page, true, 1); err != nil {
		t.Fatal(err)
	}

	var written []uint32
	copied, err := l.Checkpoint(wal.Passive, 10, func(pn uint32) bool { return pn == 2 },
		func(pn uint32, data []byte) error {
			written = append(written, pn)
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if copied != 1 || len(written) != 1 || written[0] != 1 {
		t.Errorf("got copied=%d written=%v, want only page 1", copied, written)
	}
}
