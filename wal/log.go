package wal

import (
	"sync"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/metrics"
	"github.com/leftmike/frankensqlite/vfs"
)

// CheckpointMode selects how aggressively Checkpoint copies WAL frames
// back into the main database file.
type CheckpointMode int

const (
	Passive CheckpointMode = iota
	Full
	Restart
	Truncate
)

// PageWriter writes a checkpointed page image back into the main database
// file; Checkpoint calls it once for each page it migrates.
type PageWriter func(pageNo uint32, data []byte) error

// Log is a single WAL file: header plus the append-only frame sequence,
// guarded by a single append mutex held only for the memcpy + write +
// index update. The mutex is NOT held across SSI/FCW validation, which
// happens in the MVCC layer before Append is ever called.
type Log struct {
	f     *vfs.File
	index *Index

	appendMu sync.Mutex
	header   Header
	tail     int64  // next write offset
	s0, s1   uint32 // running checksum chain state

	pageSize uint32
}

// Create initializes a fresh WAL file with a random-ish salt pair (callers
// should seed salts from a real RNG; tests may pass fixed values).
func Create(f *vfs.File, pageSize uint32, salt1, salt2 uint32) (*Log, error) {
	h := Header{
		Magic:         MagicBE,
		FormatVersion: FormatVersion,
		PageSize:      pageSize,
		Salt1:         salt1,
		Salt2:         salt2,
	}
	if err := f.WriteAt(EncodeHeader(&h), 0); err != nil {
		return nil, err
	}
	return &Log{
		f:        f,
		index:    NewIndex(),
		header:   h,
		tail:     HeaderSize,
		s0:       salt1,
		s1:       salt2,
		pageSize: pageSize,
	}, nil
}

// Open reads an existing WAL file's header and returns a Log positioned for
// append at the tail the caller supplies (normally the tail Recover found).
func Open(f *vfs.File, tail int64) (*Log, error) {
	buf := make([]byte, HeaderSize)
	if err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Log{
		f:        f,
		index:    NewIndex(),
		header:   *h,
		tail:     tail,
		s0:       h.ChecksumHi,
		s1:       h.ChecksumLo,
		pageSize: h.PageSize,
	}, nil
}

func (l *Log) Index() *Index { return l.index }

// Append writes one frame (page_no, data), chaining its checksum onto the
// running state. txnID tags the frame in the index for snapshot-visible
// reads; commit must be true, with dbSizePages nonzero, exactly on the
// last frame of a commit group.
func (l *Log) Append(pageNo uint32, txnID uint64, data []byte, commit bool,
	dbSizePages uint32) error {

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	fh := FrameHeader{
		PageNo: pageNo,
		Salt1:  l.header.Salt1,
		Salt2:  l.header.Salt2,
	}
	if commit {
		fh.SizeAfterCommit = dbSizePages
	}
	s0, s1 := FrameChecksum(l.s0, l.s1, &fh, data)
	fh.ChecksumHi, fh.ChecksumLo = s0, s1

	off := l.tail
	if err := l.f.WriteAt(EncodeFrameHeader(&fh), off); err != nil {
		return err
	}
	if err := l.f.WriteAt(data, off+FrameHeaderSize); err != nil {
		return err
	}

	l.s0, l.s1 = s0, s1
	l.tail = off + FrameHeaderSize + int64(len(data))
	l.index.Put(pageNo, txnID, off)

	metrics.WALAppends.Inc()
	metrics.WALBytesWritten.Add(float64(FrameHeaderSize) + float64(len(data)))
	return nil
}

// Sync durability-barriers everything appended so far.
func (l *Log) Sync(mode vfs.SyncMode) error {
	return l.f.Sync(mode)
}

// ReadFrame reads the frame at offset, returning its header and page body.
func (l *Log) ReadFrame(offset int64) (*FrameHeader, []byte, error) {
	hdrBuf := make([]byte, FrameHeaderSize)
	if err := l.f.ReadAt(hdrBuf, offset); err != nil {
		return nil, nil, err
	}
	fh, err := DecodeFrameHeader(hdrBuf)
	if err != nil {
		return nil, nil, err
	}
	data := make([]byte, l.pageSize)
	if err := l.f.ReadAt(data, offset+FrameHeaderSize); err != nil {
		return nil, nil, err
	}
	return fh, data, nil
}

// ReadPage resolves the newest frame for pageNo visible under visible,
// returning (data, true) or (nil, false) if no WAL frame qualifies --
// callers then fall through to the main file at implicit TxnId(0).
func (l *Log) ReadPage(pageNo uint32, visible Visible) ([]byte, bool, error) {
	off, ok := l.index.Lookup(pageNo, visible)
	if !ok {
		return nil, false, nil
	}
	_, data, err := l.ReadFrame(off)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Tail returns the current append offset.
func (l *Log) Tail() int64 { return l.tail }

// Checkpoint copies committed frames at or below horizon back into the
// main file via writeBack, per mode. Passive only copies
// pages no active reader still needs (stillNeeded reports that); Full
// additionally requires the caller to have already blocked new writers and
// waited out old readers before calling; Restart/Truncate additionally
// reset the WAL after the copy.
func (l *Log) Checkpoint(mode CheckpointMode, horizon uint64, stillNeeded func(pageNo uint32) bool,
	writeBack PageWriter) (copied int, err error) {

	pages := l.index.PagesBelow(horizon)
	for _, pn := range pages {
		if mode == Passive && stillNeeded != nil && stillNeeded(pn) {
			continue
		}
		off, ok := l.index.Lookup(pn, func(cs uint64) bool { return cs <= horizon })
		if !ok {
			continue
		}
		_, data, err := l.ReadFrame(off)
		if err != nil {
			return copied, err
		}
		if err := writeBack(pn, data); err != nil {
			return copied, err
		}
		copied++
	}

	switch mode {
	case Restart, Truncate:
		if mode == Full || mode == Restart || mode == Truncate {
			if remaining := l.index.PagesBelow(^uint64(0)); len(remaining) > len(pages) {
				// Pages still referenced above the horizon remain dirty in
				// the WAL; a true restart cannot discard them. Report
				// Busy so the caller retries once those readers close.
				return copied, dberr.New(dberr.Busy,
					"checkpoint: %d pages still needed, cannot reset WAL",
					len(remaining)-len(pages))
			}
		}
		l.index.Reset()
		l.tail = HeaderSize
		l.header.CheckpointSeq++
		if err := l.f.WriteAt(EncodeHeader(&l.header), 0); err != nil {
			return copied, err
		}
		if mode == Truncate {
			if err := l.f.Truncate(HeaderSize); err != nil {
				return copied, err
			}
		}
	}
	metrics.WALCheckpoints.Inc()
	return copied, nil
}
