// Package engine is the embeddable entry point: opening a database file
// wires the storage stack (vfs, pager, wal, mvcc, page cache) together
// behind a single handle.
package engine

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/leftmike/frankensqlite/catalog"
	"github.com/leftmike/frankensqlite/commitlog"
	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/pragma"
	"github.com/leftmike/frankensqlite/vfs"
	"github.com/leftmike/frankensqlite/wal"
)

// DB is an open FrankenSQLite database: the main file, its WAL, the pager
// and mvcc engine over them, and a background GC sweeping superseded page
// versions. Disk databases carry two sidecars: a catalog (schema metadata,
// so table roots survive a reopen) and a commit log (the per-commit record
// ledger).
type DB struct {
	fs   *vfs.FS
	f    *vfs.File
	wf   *vfs.File
	w    *wal.Log
	eng  *mvcc.Engine
	gc   *mvcc.GC
	pgr  *pager.Pager
	cat  *catalog.Catalog
	clog *commitlog.Log
}

// Open opens, creating if necessary, the database file at path on disk,
// along with its WAL at path+"-wal" and its catalog and commit-log
// sidecars at path+"-catalog" and path+"-commitlog".
func Open(path string) (*DB, error) {
	cat, err := catalog.Open(path + "-catalog")
	if err != nil {
		return nil, err
	}
	clog, err := commitlog.Open(path + "-commitlog")
	if err != nil {
		cat.Close()
		return nil, err
	}
	db, err := open(vfs.Default(), path, clog)
	if err != nil {
		cat.Close()
		clog.Close()
		return nil, err
	}
	db.cat = cat
	db.clog = clog
	return db, nil
}

// OpenMemory opens an in-memory database under name, for short-lived tools
// and tests that don't need a file on disk. The WAL lives in the same
// in-memory filesystem; there is no catalog or commit-log sidecar, since a
// memory database's schema dies with the process anyway.
func OpenMemory(name string) (*DB, error) {
	return open(vfs.Memory(), name, nil)
}

func open(fs *vfs.FS, name string, clog *commitlog.Log) (*DB, error) {
	f, err := fs.Open(name, vfs.OpenFlags{Create: true, ReadWrite: true})
	if err != nil {
		return nil, err
	}
	// fsqlite.serializable (pragma.go) governs whether the mvcc engine runs
	// SSI validation at all; raptorq_write_merge enables the merge ladder.
	var logger mvcc.CommitLogger
	if clog != nil {
		logger = clog
	}
	eng := mvcc.New(mvcc.Config{
		Serializable: pragma.Serializable,
		EnableMerge:  pragma.WriteMergeLadder,
	}, nil, logger)
	p, err := pager.Open(f, nil, eng, nil, nil)
	if err != nil {
		f.Close()
		return nil, err
	}

	// The WAL is created (or recovered, if a previous run left frames
	// behind) only after the pager has settled the page size, which the
	// WAL header records.
	wf, err := fs.Open(name+"-wal", vfs.OpenFlags{Create: true, ReadWrite: true})
	if err != nil {
		f.Close()
		return nil, err
	}
	w, err := openWAL(wf, p.PageSize())
	if err != nil {
		wf.Close()
		f.Close()
		return nil, err
	}
	eng.SetWAL(w)
	p.SetWAL(w)

	gc := mvcc.NewGC(eng, 0)
	eng.SetGC(gc)
	gc.Start()

	return &DB{fs: fs, f: f, wf: wf, w: w, eng: eng, gc: gc, pgr: p}, nil
}

func openWAL(wf *vfs.File, pageSize uint32) (*wal.Log, error) {
	size, err := wf.FileSize()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		var salts [8]byte
		if _, err := rand.Read(salts[:]); err != nil {
			return nil, err
		}
		return wal.Create(wf, pageSize,
			binary.BigEndian.Uint32(salts[:4]), binary.BigEndian.Uint32(salts[4:]))
	}
	w, _, err := wal.Recover(wf, nil)
	return w, err
}

// Begin starts a new transaction handle at the given lock-acquisition mode.
func (db *DB) Begin(mode pager.Mode) *pager.Handle {
	return db.pgr.Begin(mode)
}

// Checkpoint copies committed WAL frames back into the main database file
// per mode, returning the number of pages migrated. The horizon is the
// engine's GC horizon, so frames a still-open snapshot may need stay in
// the WAL.
func (db *DB) Checkpoint(mode wal.CheckpointMode) (int, error) {
	return db.w.Checkpoint(mode, uint64(db.eng.GCHorizon()), nil, db.pgr.WriteBaseline)
}

// Catalog returns the schema sidecar, or nil for an in-memory database.
func (db *DB) Catalog() *catalog.Catalog { return db.cat }

// CommitLog returns the commit-record ledger, or nil for an in-memory
// database.
func (db *DB) CommitLog() *commitlog.Log { return db.clog }

// Close stops the GC, syncs and releases the WAL and main file, and closes
// any sidecars.
func (db *DB) Close() error {
	db.gc.Stop()
	err := db.w.Sync(vfs.SyncFull)
	if cerr := db.wf.Close(); err == nil {
		err = cerr
	}
	if cerr := db.f.Close(); err == nil {
		err = cerr
	}
	if db.cat != nil {
		if cerr := db.cat.Close(); err == nil {
			err = cerr
		}
	}
	if db.clog != nil {
		if cerr := db.clog.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
