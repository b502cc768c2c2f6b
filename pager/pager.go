// Package pager implements the atomic unit the upper layers see: it
// resolves page reads through write-set -> version chain -> WAL -> main
// file, and coordinates commit and rollback across the mvcc engine, the
// write-ahead log, and the on-disk file.
package pager

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/pagecache"
	"github.com/leftmike/frankensqlite/pragma"
	"github.com/leftmike/frankensqlite/record"
	"github.com/leftmike/frankensqlite/vfs"
	"github.com/leftmike/frankensqlite/wal"
)

// Mode selects the lock level a Handle's transaction begins under.
type Mode int

const (
	ModeDeferred Mode = iota
	ModeImmediate
	ModeConcurrent
)

// Pager owns the main database file, the WAL, the page cache, and the mvcc
// engine, and hands out per-transaction Handles.
type Pager struct {
	log *logrus.Entry

	mu       sync.Mutex
	file     *vfs.File
	wal      *wal.Log
	cache    *pagecache.Cache
	engine   *mvcc.Engine
	pageSize uint32

	header record.FileHeader
}

const (
	defaultPageSize = 4096

	// ghostCap bounds the ARC ghost lists' key-only metadata.
	ghostCap = 4096
)

// Open opens (or initializes, if empty) a database file through f, wiring
// it to wal for the durability path and engine for version resolution.
// A nil cache gets one sized from the cache_size pragma, fetching baseline
// pages from f; a nil wal can be installed later with SetWAL once the
// page size is known (the WAL header records it).
func Open(f *vfs.File, w *wal.Log, engine *mvcc.Engine, cache *pagecache.Cache, log *logrus.Entry) (*Pager, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	size, err := f.FileSize()
	if err != nil {
		return nil, err
	}

	p := &Pager{log: log, file: f, wal: w, cache: cache, engine: engine}

	if size == 0 {
		p.header = record.FileHeader{
			PageSize:     defaultPageSize,
			WriteVersion: 2,
			ReadVersion:  2,
			SchemaFormat: 4,
			TextEncoding: 1,
			SizeInPages:  1,
		}
		buf := make([]byte, defaultPageSize)
		record.EncodeFileHeader(buf, &p.header)
		if err := f.WriteAt(buf, 0); err != nil {
			return nil, err
		}
		p.pageSize = p.header.PageSize
	} else {
		buf := make([]byte, record.FileHeaderSize)
		if err := f.ReadAt(buf, 0); err != nil {
			return nil, err
		}
		hdr, err := record.DecodeFileHeader(buf)
		if err != nil {
			return nil, err
		}
		p.header = *hdr
		p.pageSize = hdr.PageSize
	}

	if p.cache == nil {
		pages := pragma.CacheSize
		if pages <= 0 {
			pages = 2000
		}
		c, err := pagecache.New(pages*int64(p.pageSize), ghostCap, p.readBaseline)
		if err != nil {
			return nil, err
		}
		p.cache = c
	}
	return p, nil
}

func (p *Pager) PageSize() uint32 { return p.pageSize }

// SetWAL installs the write-ahead log after open. The engine layer creates
// or recovers the WAL once the pager has settled the page size, then wires
// it here and into the mvcc engine's commit publication.
func (p *Pager) SetWAL(w *wal.Log) { p.wal = w }

// readBaseline is the cache's fetch path: the file-resident image of a
// page at implicit TxnId(0). A page past the current end of file reads as
// all-zero (it has never been written).
func (p *Pager) readBaseline(key pagecache.CacheKey) ([]byte, error) {
	off := int64(key.PageNo-1) * int64(p.pageSize)
	size, err := p.file.FileSize()
	if err != nil {
		return nil, err
	}
	if off+int64(p.pageSize) > size {
		return make([]byte, p.pageSize), nil
	}
	buf := make([]byte, p.pageSize)
	if err := p.file.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBaseline copies a committed page image into the main database file,
// used by checkpoint write-back. The cached baseline for the page is
// invalidated so the next read sees the new image, and header growth is
// flushed so a reopen sees a consistent size.
func (p *Pager) WriteBaseline(pgno uint32, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.WriteAt(data, int64(pgno-1)*int64(p.pageSize)); err != nil {
		return err
	}
	if pgno > p.header.SizeInPages {
		p.header.SizeInPages = pgno
	}
	p.cache.Invalidate(pagecache.CacheKey{PageNo: pgno})
	buf := make([]byte, record.FileHeaderSize)
	record.EncodeFileHeader(buf, &p.header)
	return p.file.WriteAt(buf, 0)
}

// Handle is a transaction's view through the pager: a thin wrapper over
// an *mvcc.Txn adding page resolution, allocation, and the file-backed
// fallback read path.
type Handle struct {
	p    *Pager
	txn  *mvcc.Txn
	mode Mode

	mu    sync.Mutex
	dirty map[uint32]bool
}

// PageSize returns the database's fixed page size, used by the btree
// layer to size cells and overflow chains.
func (h *Handle) PageSize() uint32 { return h.p.pageSize }

// Begin starts a transaction, returning a pager-level Handle.
func (p *Pager) Begin(mode Mode) *Handle {
	return &Handle{p: p, txn: p.engine.Begin(), mode: mode, dirty: map[uint32]bool{}}
}

// GetPage resolves a read through write-set, version chain, WAL, and
// finally the main file, in that order.
func (h *Handle) GetPage(pgno uint32) ([]byte, error) {
	if err := checkPageNumber(pgno); err != nil {
		return nil, err
	}

	// Steps 1-2: transaction write-set, then the mvcc version chain.
	if data, ok := h.p.engine.ReadPage(h.txn, pgno); ok {
		return data, nil
	}

	// Step 3: WAL index lookup, snapshot-aware.
	if h.p.wal != nil {
		visible := func(commitSeq uint64) bool {
			return h.txn.Snapshot.Visible(mvcc.TxnId(commitSeq))
		}
		if data, ok, err := h.p.wal.ReadPage(pgno, visible); err != nil {
			return nil, err
		} else if ok {
			return data, nil
		}
	}

	// Step 4: main database file, implicit TxnId(0), through the ARC
	// cache. The buffer is copied out so the caller can mutate freely
	// while the cached image stays shared.
	pg, err := h.p.cache.Get(pagecache.CacheKey{PageNo: pgno})
	if err != nil {
		return nil, err
	}
	buf := append([]byte(nil), pg.Data...)
	pg.Unpin()
	return buf, nil
}

// WritePage routes the write through the mvcc engine, then marks the
// page locally dirty for cache bookkeeping.
func (h *Handle) WritePage(pgno uint32, data []byte) error {
	if err := h.p.engine.WritePage(h.txn, pgno, data); err != nil {
		return err
	}
	h.mu.Lock()
	h.dirty[pgno] = true
	h.mu.Unlock()
	return nil
}

// AllocatePage consults the free list first, then extends the file.
func (h *Handle) AllocatePage() (uint32, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()

	if pgno, ok, err := h.popFreeList(); err != nil {
		return 0, err
	} else if ok {
		return pgno, nil
	}

	h.p.header.SizeInPages++
	pgno := h.p.header.SizeInPages
	if err := h.WritePage(pgno, make([]byte, h.p.pageSize)); err != nil {
		return 0, err
	}
	return pgno, nil
}

// FreePage pushes pgno onto the free-list trunk rooted at header offset 32.
func (h *Handle) FreePage(pgno uint32) error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	return h.pushFreeList(pgno)
}

// Savepoint, RollbackTo, and Release delegate to the mvcc engine.
func (h *Handle) Savepoint(name string) { h.txn.Savepoint(name) }

func (h *Handle) RollbackTo(name string) error { return h.p.engine.RollbackTo(h.txn, name) }

func (h *Handle) Release(name string) error { return h.txn.Release(name) }

// Commit delegates to the mvcc engine, which runs SSI, FCW, the optional
// merge ladder, and WAL publication, then
// flushes the (in-memory, pager-owned) file header -- size, free-list root,
// schema cookie -- back to the start of page 1 so a reopen sees consistent allocation
// state.
func (h *Handle) Commit() error {
	if err := h.p.engine.Commit(h.txn); err != nil {
		return err
	}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	buf := make([]byte, record.FileHeaderSize)
	record.EncodeFileHeader(buf, &h.p.header)
	return h.p.file.WriteAt(buf, 0)
}

// Rollback discards the transaction without publishing any version.
func (h *Handle) Rollback() {
	h.p.engine.Rollback(h.txn)
}

// Txn exposes the underlying mvcc transaction, e.g. for LogIntent calls
// from the btree layer.
func (h *Handle) Txn() *mvcc.Txn { return h.txn }
