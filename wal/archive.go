package wal

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/metrics"
)

// Segment archival: before a Restart or Truncate checkpoint rewinds the
// WAL, the retired segment -- header plus every frame up to the tail -- can
// be compressed into an archive stream. Page images compress well (mostly
// zero fill and repeated cell structure), so a zstd archive keeps a history
// of checkpointed frames at a fraction of the raw segment size.

// ArchiveSegment compresses the current WAL segment into w. Callers run it
// after the copy-back phase of a checkpoint and before the reset rewinds
// the tail; the append mutex is held so no frame lands mid-archive.
func (l *Log) ArchiveSegment(w io.Writer) (frames int, err error) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, dberr.Wrap(dberr.Internal, err, "wal: archive encoder")
	}
	if _, err := enc.Write(EncodeHeader(&l.header)); err != nil {
		enc.Close()
		return 0, err
	}

	frameSize := int64(FrameHeaderSize) + int64(l.pageSize)
	for off := int64(HeaderSize); off+frameSize <= l.tail; off += frameSize {
		fh, data, err := l.ReadFrame(off)
		if err != nil {
			enc.Close()
			return frames, err
		}
		if _, err := enc.Write(EncodeFrameHeader(fh)); err != nil {
			enc.Close()
			return frames, err
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return frames, err
		}
		frames++
	}
	if err := enc.Close(); err != nil {
		return frames, err
	}
	metrics.WALArchivedFrames.Add(float64(frames))
	return frames, nil
}

// ReadArchive decompresses an archived segment from r, calling fn for each
// frame in append order. It returns the archived segment's header and the
// number of frames visited.
func ReadArchive(r io.Reader, fn func(*FrameHeader, []byte) error) (*Header, int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Corrupt, err, "wal: archive decoder")
	}
	defer dec.Close()

	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(dec, hdrBuf); err != nil {
		return nil, 0, dberr.Wrap(dberr.ShortRead, err, "wal: archive header")
	}
	h, err := DecodeHeader(hdrBuf)
	if err != nil {
		return nil, 0, err
	}

	frameHdr := make([]byte, FrameHeaderSize)
	data := make([]byte, h.PageSize)
	frames := 0
	for {
		if _, err := io.ReadFull(dec, frameHdr); err == io.EOF {
			return h, frames, nil
		} else if err != nil {
			return h, frames, dberr.Wrap(dberr.ShortRead, err, "wal: archive frame %d", frames)
		}
		fh, err := DecodeFrameHeader(frameHdr)
		if err != nil {
			return h, frames, err
		}
		if _, err := io.ReadFull(dec, data); err != nil {
			return h, frames, dberr.Wrap(dberr.ShortRead, err, "wal: archive frame %d body", frames)
		}
		body := append([]byte(nil), data...)
		if err := fn(fh, body); err != nil {
			return h, frames, err
		}
		frames++
	}
}
