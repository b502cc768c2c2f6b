// Package wal implements the write-ahead log:
// header + frame append protocol, checksum hash chain, an in-memory index
// mapping (page_no, txn_id) to frame offset, checkpoint modes, and a
// forward-error-corrected sidecar for commit groups.
package wal

import (
	"encoding/binary"

	"github.com/leftmike/frankensqlite/dberr"
)

const (
	HeaderSize      = 32
	FrameHeaderSize = 24

	MagicBE = 0x377F0682
	MagicLE = 0x377F0683

	FormatVersion = 3007000
)

// Header is the 32-byte WAL file header.
type Header struct {
	Magic         uint32
	FormatVersion uint32
	PageSize      uint32
	CheckpointSeq uint32
	Salt1         uint32
	Salt2         uint32
	ChecksumHi    uint32
	ChecksumLo    uint32
}

func EncodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.FormatVersion)
	binary.BigEndian.PutUint32(buf[8:12], h.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], h.CheckpointSeq)
	binary.BigEndian.PutUint32(buf[16:20], h.Salt1)
	binary.BigEndian.PutUint32(buf[20:24], h.Salt2)
	binary.BigEndian.PutUint32(buf[24:28], h.ChecksumHi)
	binary.BigEndian.PutUint32(buf[28:32], h.ChecksumLo)
	return buf
}

func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, dberr.New(dberr.ShortRead, "wal header: %d bytes", len(buf))
	}
	h := &Header{
		Magic:         binary.BigEndian.Uint32(buf[0:4]),
		FormatVersion: binary.BigEndian.Uint32(buf[4:8]),
		PageSize:      binary.BigEndian.Uint32(buf[8:12]),
		CheckpointSeq: binary.BigEndian.Uint32(buf[12:16]),
		Salt1:         binary.BigEndian.Uint32(buf[16:20]),
		Salt2:         binary.BigEndian.Uint32(buf[20:24]),
		ChecksumHi:    binary.BigEndian.Uint32(buf[24:28]),
		ChecksumLo:    binary.BigEndian.Uint32(buf[28:32]),
	}
	if h.Magic != MagicBE && h.Magic != MagicLE {
		return nil, dberr.New(dberr.Corrupt, "wal: bad magic 0x%08x", h.Magic)
	}
	return h, nil
}

// FrameHeader is the 24-byte per-frame header. SizeAfterCommit
// is nonzero only on the last frame of a commit group.
type FrameHeader struct {
	PageNo          uint32
	SizeAfterCommit uint32
	Salt1           uint32
	Salt2           uint32
	ChecksumHi      uint32
	ChecksumLo      uint32
}

func EncodeFrameHeader(fh *FrameHeader) []byte {
	buf := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], fh.PageNo)
	binary.BigEndian.PutUint32(buf[4:8], fh.SizeAfterCommit)
	binary.BigEndian.PutUint32(buf[8:12], fh.Salt1)
	binary.BigEndian.PutUint32(buf[12:16], fh.Salt2)
	binary.BigEndian.PutUint32(buf[16:20], fh.ChecksumHi)
	binary.BigEndian.PutUint32(buf[20:24], fh.ChecksumLo)
	return buf
}

func DecodeFrameHeader(buf []byte) (*FrameHeader, error) {
	if len(buf) < FrameHeaderSize {
		return nil, dberr.New(dberr.ShortRead, "wal frame header: %d bytes", len(buf))
	}
	return &FrameHeader{
		PageNo:          binary.BigEndian.Uint32(buf[0:4]),
		SizeAfterCommit: binary.BigEndian.Uint32(buf[4:8]),
		Salt1:           binary.BigEndian.Uint32(buf[8:12]),
		Salt2:           binary.BigEndian.Uint32(buf[12:16]),
		ChecksumHi:      binary.BigEndian.Uint32(buf[16:20]),
		ChecksumLo:      binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// Checksum implements the SQLite-compatible chained checksum:
// a running sum over big-endian 32-bit words, each pair folding the
// previous checksum back in so frame N's checksum depends on frame N-1's.
// data must have an even number of 32-bit words.
func Checksum(s0, s1 uint32, data []byte) (uint32, uint32) {
	for i := 0; i+8 <= len(data); i += 8 {
		x0 := binary.BigEndian.Uint32(data[i : i+4])
		x1 := binary.BigEndian.Uint32(data[i+4 : i+8])
		s0 += x0 + s1
		s1 += x1 + s0
	}
	return s0, s1
}

// FrameChecksum folds a frame's header (sans its own checksum field) and
// body into the running (s0, s1) chain.
func FrameChecksum(s0, s1 uint32, fh *FrameHeader, page []byte) (uint32, uint32) {
	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], fh.PageNo)
	binary.BigEndian.PutUint32(hdr[4:8], fh.SizeAfterCommit)
	binary.BigEndian.PutUint32(hdr[8:12], fh.Salt1)
	binary.BigEndian.PutUint32(hdr[12:16], fh.Salt2)
	s0, s1 = Checksum(s0, s1, hdr[:])
	s0, s1 = Checksum(s0, s1, page)
	return s0, s1
}
