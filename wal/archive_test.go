package wal_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/leftmike/frankensqlite/wal"
)

func TestArchiveRoundTrip(t *testing.T) {
	_, f := openWAL(t)
	defer f.Close()

	l, err := wal.Create(f, 4096, 11, 22)
	if err != nil {
		t.Fatal(err)
	}

	const n = 5
	for i := uint32(1); i <= n; i++ {
		page := make([]byte, 4096)
		copy(page, fmt.Sprintf("page-%d", i))
		commit := i == n
		if err := l.Append(i, 1, page, commit, n); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	frames, err := l.ArchiveSegment(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if frames != n {
		t.Fatalf("archived %d frames, want %d", frames, n)
	}
	if buf.Len() >= n*(wal.FrameHeaderSize+4096) {
		t.Fatalf("archive (%d bytes) is no smaller than the raw segment", buf.Len())
	}

	var got []uint32
	h, count, err := wal.ReadArchive(&buf, func(fh *wal.FrameHeader, data []byte) error {
		got = append(got, fh.PageNo)
		want := fmt.Sprintf("page-%d", fh.PageNo)
		if string(data[:len(want)]) != want {
			return fmt.Errorf("frame %d body mismatch: %q", fh.PageNo, data[:len(want)])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.PageSize != 4096 || h.Salt1 != 11 || h.Salt2 != 22 {
		t.Fatalf("archive header round trip: %+v", h)
	}
	if count != n {
		t.Fatalf("read back %d frames, want %d", count, n)
	}
	for i, pn := range got {
		if pn != uint32(i+1) {
			t.Fatalf("frame order: got page %d at position %d", pn, i)
		}
	}
}

func TestReadArchiveRejectsGarbage(t *testing.T) {
	_, _, err := wal.ReadArchive(bytes.NewReader([]byte("not a zstd stream")), nil)
	if err == nil {
		t.Fatal("expected an error reading a non-archive stream")
	}
}
