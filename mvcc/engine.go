package mvcc

import (
	"sync"
	"sync/atomic"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/vfs"
)

// WAL is the subset of *wal.Log the engine needs for commit publication,
// kept as an interface so tests can swap in a recorder.
type WAL interface {
	Append(pageNo uint32, txnID uint64, data []byte, commit bool, dbSizePages uint32) error
	Sync(mode vfs.SyncMode) error
}

// CommitLogger records one ledger entry per committed transaction, kept
// separate from the page-level WAL (see the commitlog package); nil
// disables it.
type CommitLogger interface {
	LogCommit(id TxnId, seq CommitSeq, pages []uint32) error
}

// Config tunes the engine's optional behaviors, set from their pragmas.
type Config struct {
	Serializable bool // fsqlite.serializable: run SSI validation at all
	EnableMerge  bool // fsqlite.raptorq_write_merge: try the merge ladder before aborting on FCW loss
	SyncMode     vfs.SyncMode
}

// Engine is the MVCC engine: transaction lifecycle, snapshots, the page
// version store, the page-lock and SIREAD tables, SSI/FCW validation, the
// merge ladder, and garbage collection.
type Engine struct {
	cfg Config

	active *activeSet
	locks  *LockTable
	siread *SIReadTable
	store  *Store
	wal    WAL
	logger CommitLogger

	commitSeq uint64 // atomic

	committedMu sync.RWMutex
	committedAt map[TxnId]CommitSeq // txn id -> commit seq, for SSI edge queries

	retainedMu sync.Mutex
	retained   map[TxnId][]byte // snappy-compressed intent logs

	gcHorizon uint64 // atomic, cached TxnId

	rebaser Rebaser
	gc      *GC
	coord   Coordination
}

// SetGC wires a background GC so commit publication can feed it the pages
// it just touched.
func (e *Engine) SetGC(gc *GC) { e.gc = gc }

// SetWAL installs the write-ahead log commit publication appends to,
// for callers that open the WAL after the engine (the WAL header needs
// the pager's settled page size).
func (e *Engine) SetWAL(w WAL) { e.wal = w }

func New(cfg Config, w WAL, logger CommitLogger) *Engine {
	return &Engine{
		cfg:         cfg,
		active:      newActiveSet(),
		locks:       NewLockTable(),
		siread:      NewSIReadTable(),
		store:       NewStore(),
		wal:         w,
		logger:      logger,
		committedAt: map[TxnId]CommitSeq{},
		retained:    map[TxnId][]byte{},
	}
}

// SetRebaser installs the deterministic-rebase hook, the merge ladder's
// first strategy. Typically wired by the btree/pager layer, which is
// the only layer that knows how to replay an intent log against live
// table state.
func (e *Engine) SetRebaser(r Rebaser) { e.rebaser = r }

// Begin starts a transaction: allocate a TxnId, capture a snapshot
// (high-water mark + in-flight set excluding self), and register the
// transaction in the active set. With a coordinator attached, allocation
// routes through the shared region instead.
func (e *Engine) Begin() *Txn {
	if e.coord != nil {
		return e.beginCoordinated()
	}
	id := allocTxnID()
	// The high-water mark is the just-allocated id: anything at or below it
	// that is not in the in-flight set had already committed (or aborted
	// and published nothing) when this snapshot was captured.
	snap := Snapshot{
		HighWaterMark: id,
		inFlight:      e.active.snapshot(id),
	}
	e.active.add(id)
	return newTxn(id, snap)
}

// ReadPage resolves pageNo under txn's snapshot, checking the transaction's
// own write-set first (write-then-read coherence), then the version
// store. The later resolution tiers, WAL and main file, are the pager's
// job since this engine has no file handle.
// present reports whether a version was found at all in this engine.
func (e *Engine) ReadPage(t *Txn, pageNo uint32) (data []byte, present bool) {
	t.mu.Lock()
	if v, ok := t.writeSet[pageNo]; ok {
		t.readSet[pageNo] = struct{}{}
		t.mu.Unlock()
		return v.Data, true
	}
	t.readSet[pageNo] = struct{}{}
	t.mu.Unlock()

	e.siread.Record(pageNo, t.ID)
	if e.coord != nil {
		e.coord.RecordRead(pageNo, uint64(t.ID))
	}
	if v := e.store.Visible(pageNo, t.Snapshot); v != nil {
		return v.Data, true
	}
	return nil, false
}

// WritePage is the write path's eager page-lock acquisition: claim the
// lock, clone the currently-visible version, record it
// in the write-set and the SSI write-witness set (the write-set IS the
// write-witness set here, so no separate structure is needed).
func (e *Engine) WritePage(t *Txn, pageNo uint32, data []byte) error {
	if st := t.State(); st != Active {
		if t.abortReason != nil {
			return t.abortReason
		}
		return dberr.New(dberr.Internal, "mvcc: write on non-active txn %d (%s)", t.ID, st)
	}
	if e.coord != nil {
		if err := e.coord.TryLockPage(pageNo, uint64(t.ID)); err != nil {
			return err
		}
	}
	if err := e.locks.TryAcquire(pageNo, t.ID); err != nil {
		if e.coord != nil {
			e.coord.UnlockPage(pageNo, uint64(t.ID))
		}
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	var base []byte
	if v := e.store.Visible(pageNo, t.Snapshot); v != nil {
		base = v.Data
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Active {
		return dberr.New(dberr.Internal, "mvcc: write on non-active txn %d (%s)", t.ID, t.state)
	}
	if existing, ok := t.writeSet[pageNo]; ok {
		base = existing.Base
	}
	t.writeSet[pageNo] = &Version{PageNo: pageNo, CreatedBy: t.ID, Data: cp, Base: base}
	return nil
}

// Savepoint marks the current position in the intent log and write-set for
// a later RollbackTo.
type savepointMark struct {
	name       string
	intentLen  int
	writtenSet map[uint32]*Version // write-set entries as they stood at this mark
}

func (t *Txn) Savepoint(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	written := make(map[uint32]*Version, len(t.writeSet))
	for pn, v := range t.writeSet {
		written[pn] = v
	}
	t.savepoints = append(t.savepoints, savepointMark{
		name:       name,
		intentLen:  len(t.intentLog),
		writtenSet: written,
	})
}

// RollbackTo discards writes and intent-log entries recorded since name was
// marked. Pages whose only write within this transaction
// was after the mark have their lock released, since no earlier write by
// this transaction touched them.
func (e *Engine) RollbackTo(t *Txn, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return dberr.New(dberr.Internal, "mvcc: no such savepoint %q", name)
	}
	mark := t.savepoints[idx]
	t.intentLog = t.intentLog[:mark.intentLen]
	for pn := range t.writeSet {
		if v, ok := mark.writtenSet[pn]; ok {
			t.writeSet[pn] = v
		} else {
			delete(t.writeSet, pn)
			e.locks.Release(pn, t.ID)
			if e.coord != nil {
				e.coord.UnlockPage(pn, uint64(t.ID))
			}
		}
	}
	t.savepoints = t.savepoints[:idx]
	return nil
}

// Release pops the named savepoint without undoing anything.
func (t *Txn) Release(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].name == name {
			t.savepoints = append(t.savepoints[:i], t.savepoints[i+1:]...)
			return nil
		}
	}
	return dberr.New(dberr.Internal, "mvcc: no such savepoint %q", name)
}

// Rollback aborts t, releasing its locks and dropping it from the active
// set without publishing any version.
func (e *Engine) Rollback(t *Txn) {
	t.setState(Aborted)
	pages := t.WriteSetPages()
	e.locks.ReleaseAll(pages, t.ID)
	e.siread.ForgetAll(t.ReadSetPages(), t.ID)
	e.active.remove(t.ID)
	if e.coord != nil {
		for _, pn := range pages {
			e.coord.UnlockPage(pn, uint64(t.ID))
		}
		e.coord.ReleaseTxn(uint64(t.ID))
	}
}

// Commit runs SSI validation, first-committer-wins (with the optional
// merge ladder), and publication in order, aborting t at whichever step
// fails.
func (e *Engine) Commit(t *Txn) error {
	t.setState(Validating)

	if e.cfg.Serializable {
		if err := e.validateSSI(t); err != nil {
			e.Rollback(t)
			return err
		}
	}

	conflicted, err := e.validateFCW(t)
	if err != nil {
		e.Rollback(t)
		return err
	}
	if conflicted {
		if !e.cfg.EnableMerge || !e.runMergeLadder(t) {
			e.Rollback(t)
			return dberr.New(dberr.WriteConflict,
				"txn %d: page committed after snapshot taken", t.ID)
		}
	}

	return e.publish(t)
}

// publish appends t's write-set to the WAL, installs the new versions,
// and releases t's claims, in that order.
func (e *Engine) publish(t *Txn) error {
	pages := t.WriteSetPages()

	if e.wal != nil {
		for i, pn := range pages {
			v := t.writeSet[pn]
			commit := i == len(pages)-1
			if err := e.wal.Append(pn, uint64(t.ID), v.Data, commit, uint32(len(pages))); err != nil {
				e.Rollback(t)
				return err
			}
		}
		if err := e.wal.Sync(e.cfg.SyncMode); err != nil {
			e.Rollback(t)
			return err
		}
	}

	var seq CommitSeq
	if e.coord != nil {
		seq = CommitSeq(e.coord.AdvanceCommitSeq())
		atomic.StoreUint64(&e.commitSeq, uint64(seq))
	} else {
		seq = CommitSeq(atomic.AddUint64(&e.commitSeq, 1))
	}

	t.mu.Lock()
	for pn, v := range t.writeSet {
		v.CommitSeq = seq
		e.store.Publish(v)
		if e.gc != nil {
			e.gc.NotePageWritten(pn)
		}
	}
	e.retainIntents(t)
	t.mu.Unlock()

	e.committedMu.Lock()
	e.committedAt[t.ID] = seq
	e.committedMu.Unlock()

	e.locks.ReleaseAll(pages, t.ID)
	// t's SIREAD witnesses must survive its own commit so
	// a later-committing writer can still discover t as an incoming-edge
	// reader; they are only reclaimed once the GC horizon passes t's id
	// (GC.Sweep -> SIReadTable.ForgetBelow), not here.
	e.active.remove(t.ID)
	if e.coord != nil {
		for _, pn := range pages {
			e.coord.UnlockPage(pn, uint64(t.ID))
		}
		e.coord.ReleaseTxn(uint64(t.ID))
	}
	t.setState(Committed)

	if e.logger != nil {
		if err := e.logger.LogCommit(t.ID, seq, pages); err != nil {
			return err
		}
	}
	return nil
}

// GCHorizon computes the reclamation horizon: min(active_txn_ids), or one
// past the latest committed TxnId if none are open, so that every committed
// transaction then lies below it.
func (e *Engine) GCHorizon() TxnId {
	e.committedMu.RLock()
	latest := TxnId(0)
	for id := range e.committedAt {
		if id > latest {
			latest = id
		}
	}
	e.committedMu.RUnlock()
	return e.active.horizon(latest + 1)
}

// Store exposes the version store for the pager's read path and for GC.
func (e *Engine) Store() *Store { return e.store }

// CommitSeqOf returns the commit sequence a committed transaction
// published at, used by the pagecache's (PageNo, CommitSeq) key.
func (e *Engine) CommitSeqOf(id TxnId) (CommitSeq, bool) {
	e.committedMu.RLock()
	defer e.committedMu.RUnlock()
	seq, ok := e.committedAt[id]
	return seq, ok
}
