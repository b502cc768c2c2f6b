// Package vfs implements the virtual filesystem contract: file
// open/read/write-at-offset/sync/truncate/size plus the SQLite advisory
// file-locking state machine, layered over pebble's vfs.FS.
package vfs

import (
	"io"
	"sync"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/leftmike/frankensqlite/dberr"
)

// LockLevel is the SQLite advisory file-locking protocol: None < Shared <
// Reserved < Pending < Exclusive.
type LockLevel int

const (
	LockNone LockLevel = iota
	LockShared
	LockReserved
	LockPending
	LockExclusive
)

// SyncMode governs how aggressively sync durability-barriers the file.
type SyncMode int

const (
	SyncNormal SyncMode = iota
	SyncFull
	SyncOff
)

// FS is the filesystem contract's open entry point. A FrankenSQLite FS wraps a
// pebble vfs.FS, adding the advisory lock table pebble/vfs has no opinion
// on.
type FS struct {
	inner vfs.FS

	mu    sync.Mutex
	locks map[string]*fileLockState
}

type fileLockState struct {
	level   LockLevel
	sharers int
}

// Default returns the POSIX-backed FS, built on pebble's platform file
// layer.
func Default() *FS {
	return &FS{inner: vfs.Default, locks: map[string]*fileLockState{}}
}

// Memory returns an in-memory FS for tests and transient databases.
func Memory() *FS {
	return &FS{inner: vfs.NewMem(), locks: map[string]*fileLockState{}}
}

// OpenFlags mirror the subset of os.O_* flags the pager needs.
type OpenFlags struct {
	Create    bool
	ReadWrite bool
}

// File is a single open file with VFS-level read/write/sync/lock
// operations. Reads and writes are always at an explicit offset: there is
// no implicit file cursor.
type File struct {
	fs   *FS
	name string
	f    vfs.File

	mu    sync.Mutex
	level LockLevel
}

// Open opens path per flags, returning a *File. Failure modes: NotFound,
// IoError.
func (fs *FS) Open(path string, flags OpenFlags) (*File, error) {
	var f vfs.File
	var err error
	if flags.Create {
		f, err = fs.inner.Create(path)
	} else {
		f, err = fs.inner.Open(path)
	}
	if err != nil {
		return nil, dberr.Wrap(dberr.IoError, err, "open %s", path)
	}
	return &File{fs: fs, name: path, f: f}, nil
}

// Remove deletes path.
func (fs *FS) Remove(path string) error {
	if err := fs.inner.Remove(path); err != nil {
		return dberr.Wrap(dberr.IoError, err, "remove %s", path)
	}
	return nil
}

// ReadAt reads len(buf) bytes at offset. A short read at or past EOF
// returns dberr.ShortRead rather than io.EOF, since callers treat a
// too-small page image as corruption, not end-of-stream.
func (f *File) ReadAt(buf []byte, offset int64) error {
	n, err := f.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return dberr.Wrap(dberr.IoError, err, "read %s at %d", f.name, offset)
	}
	if n < len(buf) {
		return dberr.New(dberr.ShortRead, "%s: read %d of %d bytes at %d", f.name, n, len(buf),
			offset)
	}
	return nil
}

// WriteAt writes buf at offset. Write-read coherence within this file is
// guaranteed without an explicit sync; the
// durability barrier is Sync, not WriteAt.
func (f *File) WriteAt(buf []byte, offset int64) error {
	w, ok := f.f.(io.WriterAt)
	if !ok {
		return dberr.New(dberr.IoError, "%s: write-at unsupported", f.name)
	}
	if _, err := w.WriteAt(buf, offset); err != nil {
		return dberr.Wrap(dberr.IoError, err, "write %s at %d", f.name, offset)
	}
	return nil
}

// Sync is a durability barrier: every WriteAt that returned before this
// call is durable once Sync returns.
func (f *File) Sync(mode SyncMode) error {
	if mode == SyncOff {
		return nil
	}
	if err := f.f.Sync(); err != nil {
		return dberr.Wrap(dberr.IoError, err, "sync %s", f.name)
	}
	return nil
}

// Truncate resizes the file, used by WAL checkpoint(truncate).
func (f *File) Truncate(size int64) error {
	type truncator interface {
		Truncate(int64) error
	}
	if t, ok := f.f.(truncator); ok {
		if err := t.Truncate(size); err != nil {
			return dberr.Wrap(dberr.IoError, err, "truncate %s", f.name)
		}
		return nil
	}
	return dberr.New(dberr.IoError, "%s: truncate unsupported", f.name)
}

// FileSize returns the current size of the file in bytes.
func (f *File) FileSize() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, dberr.Wrap(dberr.IoError, err, "stat %s", f.name)
	}
	return fi.Size(), nil
}

// Close releases the underlying OS file handle. It does not itself release
// advisory locks: Unlock(LockNone) does that explicitly, matching SQLite's
// separation of "close the fd" from "drop the lock".
func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return dberr.Wrap(dberr.IoError, err, "close %s", f.name)
	}
	return nil
}

// Lock attempts to raise this file's advisory lock to level. It returns
// dberr.Busy if a conflicting lock is held elsewhere. The table is
// process-wide; file-range locking through it is the fallback
// coordination path when no shared-memory coordinator is attached.
func (f *File) Lock(level LockLevel) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	st, ok := f.fs.locks[f.name]
	if !ok {
		st = &fileLockState{}
		f.fs.locks[f.name] = st
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if level <= f.level {
		return nil
	}

	switch level {
	case LockShared:
		if st.level == LockPending || st.level == LockExclusive {
			return dberr.New(dberr.Busy, "%s: shared lock blocked", f.name)
		}
		st.sharers++
		st.level = LockShared
	case LockReserved:
		if st.level >= LockReserved && f.level < LockReserved {
			return dberr.New(dberr.Busy, "%s: reserved lock held", f.name)
		}
		st.level = LockReserved
	case LockPending, LockExclusive:
		if st.level >= LockPending && f.level < LockPending {
			return dberr.New(dberr.Busy, "%s: exclusive lock blocked", f.name)
		}
		if level == LockExclusive && st.sharers > 1 {
			st.level = LockPending
			f.level = LockPending
			return dberr.New(dberr.Busy, "%s: other readers present", f.name)
		}
		st.level = level
	}
	f.level = level
	return nil
}

// Unlock lowers this file's lock to level (LockNone releases entirely).
func (f *File) Unlock(level LockLevel) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	if level >= f.level {
		return nil
	}
	if st, ok := f.fs.locks[f.name]; ok {
		if f.level == LockShared && st.sharers > 0 {
			st.sharers--
		}
		if st.sharers == 0 {
			st.level = level
		}
		if level == LockNone && st.sharers == 0 {
			delete(f.fs.locks, f.name)
		}
	}
	f.level = level
	return nil
}

// Level reports the file's current advisory lock level.
func (f *File) Level() LockLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}
