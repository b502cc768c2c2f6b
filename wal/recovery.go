package wal

import (
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/vfs"
)

// RecoveryState names the states of the recovery state machine:
// Scan -> ValidateFrames -> MaybeRepair -> RebuildIndex -> Ready.
type RecoveryState int

const (
	StateScan RecoveryState = iota
	StateValidateFrames
	StateMaybeRepair
	StateRebuildIndex
	StateReady
)

// GroupRepair supplies repair symbols for the commit group ending at
// groupEnd (the offset just past its commit frame), if any were recorded
// in a sidecar; recovery without FEC wired up simply returns ok=false.
type GroupRepair func(groupEnd int64) (symbols []RepairSymbol, ok bool)

// Recover replays the WAL from byte HeaderSize, validating the checksum
// chain frame by frame. On a mismatch it attempts FEC repair of the
// in-flight commit group (MaybeRepair); if repair symbols are absent or
// insufficient, recovery stops at the last clean commit boundary
// (RebuildIndex) rather than discarding the whole file.
func Recover(f *vfs.File, repair GroupRepair) (*Log, RecoveryState, error) {
	buf := make([]byte, HeaderSize)
	if err := f.ReadAt(buf, 0); err != nil {
		if dberr.Is(err, dberr.ShortRead) {
			return nil, StateReady, dberr.New(dberr.ShortRead, "wal: no header, treat as absent")
		}
		return nil, StateScan, err
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, StateScan, err
	}

	l := &Log{f: f, index: NewIndex(), header: *h, pageSize: h.PageSize}
	s0, s1 := h.Salt1, h.Salt2
	off := int64(HeaderSize)
	lastGoodTail := off

	state := StateValidateFrames
	var pendingGroup [][]byte
	var pendingOffsets []int64
	groupStart := off

	size, err := f.FileSize()
	if err != nil {
		return nil, StateScan, err
	}

	for off+FrameHeaderSize <= size {
		hdrBuf := make([]byte, FrameHeaderSize)
		if err := f.ReadAt(hdrBuf, off); err != nil {
			break
		}
		fh, err := DecodeFrameHeader(hdrBuf)
		if err != nil || fh.Salt1 != h.Salt1 || fh.Salt2 != h.Salt2 {
			break
		}
		if off+FrameHeaderSize+int64(h.PageSize) > size {
			break
		}
		page := make([]byte, h.PageSize)
		if err := f.ReadAt(page, off+FrameHeaderSize); err != nil {
			break
		}

		wantS0, wantS1 := FrameChecksum(s0, s1, fh, page)
		frameBytes := append(append([]byte(nil), hdrBuf...), page...)
		if wantS0 != fh.ChecksumHi || wantS1 != fh.ChecksumLo {
			state = StateMaybeRepair
			if repair == nil {
				break
			}
			symbols, ok := repair(off)
			if !ok {
				break
			}
			bad := make([]bool, len(pendingGroup)+1)
			bad[len(pendingGroup)] = true
			group := append(append([][]byte(nil), pendingGroup...), frameBytes)
			if err := Repair(group, bad, symbols); err != nil {
				break
			}
			frameBytes = group[len(group)-1]
			fh, err = DecodeFrameHeader(frameBytes[:FrameHeaderSize])
			if err != nil {
				break
			}
			page = frameBytes[FrameHeaderSize:]
			state = StateValidateFrames
		}

		s0, s1 = wantS0, wantS1
		pendingGroup = append(pendingGroup, frameBytes)
		pendingOffsets = append(pendingOffsets, off)

		if fh.SizeAfterCommit != 0 {
			// Commit boundary: the whole pending group is durable.
			for i, fb := range pendingGroup {
				pfh, _ := DecodeFrameHeader(fb[:FrameHeaderSize])
				l.index.Put(pfh.PageNo, 0, pendingOffsets[i])
			}
			pendingGroup = nil
			pendingOffsets = nil
			lastGoodTail = off + FrameHeaderSize + int64(h.PageSize)
			groupStart = lastGoodTail
		}

		off += FrameHeaderSize + int64(h.PageSize)
	}
	_ = groupStart
	_ = state

	l.tail = lastGoodTail
	l.s0, l.s1 = s0, s1
	return l, StateReady, nil
}
