package mvcc

import (
	"sync/atomic"
)

// Coordination abstracts where TxnId allocation, the commit sequence, the
// active-transaction set, the page-lock table, and the SIREAD plane live.
// A single-process engine keeps them all in-process; when multiple
// processes attach the same database, a shm.Coordinator implements this
// interface over the shared-memory region and every attached engine
// routes through it.
type Coordination interface {
	AllocTxnID() (uint64, error)
	ReleaseTxn(txnID uint64)
	ActiveTxnIDs() []uint64
	ReclaimStaleLeases() []uint64

	CommitSeq() uint64
	AdvanceCommitSeq() uint64
	SetGCHorizon(h uint64)

	TryLockPage(pageNo uint32, txnID uint64) error
	UnlockPage(pageNo uint32, txnID uint64)
	RecordRead(pageNo uint32, txnID uint64)
	Readers(pageNo uint32) []uint64
}

// SetCoordinator attaches c; every transaction begun afterward allocates
// its id, snapshot, page locks, and read witnesses through it in addition
// to the engine's process-local tables (which stay authoritative for this
// process's own SSI validation and GC).
func (e *Engine) SetCoordinator(c Coordination) { e.coord = c }

// BeginShared is Begin for a coordinated engine: the id and snapshot come
// from the shared region, so peers in other processes see this transaction
// in their in-flight sets. Allocation fails with Busy when every slot is
// claimed by a live lease.
func (e *Engine) BeginShared() (*Txn, error) {
	id, err := e.coord.AllocTxnID()
	if err != nil {
		return nil, err
	}
	hwm := TxnId(id)
	inFlight := map[TxnId]struct{}{}
	for _, other := range e.coord.ActiveTxnIDs() {
		if TxnId(other) != TxnId(id) {
			inFlight[TxnId(other)] = struct{}{}
		}
	}
	snap := Snapshot{HighWaterMark: hwm, inFlight: inFlight}

	// Keep the process-local counters trailing the shared ones so local
	// reads (GCHorizon, CommitSeqOf bookkeeping) stay consistent.
	for {
		cur := atomic.LoadUint64(&nextTxnID)
		if cur >= id || atomic.CompareAndSwapUint64(&nextTxnID, cur, id) {
			break
		}
	}
	e.active.add(TxnId(id))
	return newTxn(TxnId(id), snap), nil
}

// beginCoordinated backs Begin when a coordinator is attached: retry once
// after reclaiming crashed peers' leases; if the slot table is still full,
// hand back an already-aborted transaction whose first operation reports
// the failure.
func (e *Engine) beginCoordinated() *Txn {
	t, err := e.BeginShared()
	if err == nil {
		return t
	}
	e.coord.ReclaimStaleLeases()
	t, err = e.BeginShared()
	if err == nil {
		return t
	}
	t = newTxn(0, Snapshot{})
	t.state = Aborted
	t.abortReason = err
	return t
}
