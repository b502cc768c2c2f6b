// Package shm implements the shared-memory coordinator: cross-process
// TxnId allocation, commit_seq, gc_horizon, and a page-lock table, all
// living at stable offsets in a region every attached process maps.
// Within a single process, Coordinator is a drop-in alternative to mvcc's
// process-local activeSet/LockTable so the same code path works attached
// or not; the shm-unavailable fallback is the caller choosing not to
// construct one.
package shm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leftmike/frankensqlite/dberr"
)

// Magic identifies a valid coordinator region.
const Magic = "FSQLSHM\x00"

const (
	HeaderVersion = 1

	maxTxnSlots = 256
)

// DefaultLeaseTimeout is 2x the mvcc package's DefaultGCInterval: long
// enough that a healthy peer never looks dead, short enough that crash
// cleanup is not delayed past the next couple of GC passes.
const DefaultLeaseTimeout = 2 * time.Second

// SlotState is a TxnSlot's lifecycle state, independent of (and coarser
// than) mvcc.State: shm only needs to know whether a slot is claimed.
type SlotState int32

const (
	SlotFree SlotState = iota
	SlotActive
	SlotStale
)

// TxnSlot is one process's claim on a transaction id, refreshed
// periodically by a lease so a crashed peer's slots can be reclaimed.
type TxnSlot struct {
	TxnID   uint64
	Owner   uuid.UUID
	LeaseNs int64 // atomic: UnixNano of last lease refresh
	State   int32 // atomic SlotState
}

func (s *TxnSlot) lease() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.LeaseNs))
}

func (s *TxnSlot) refresh(now time.Time) {
	atomic.StoreInt64(&s.LeaseNs, now.UnixNano())
}

// Coordinator is the in-process representation of the shared memory
// layout: a header (magic, version, next_txn_id, commit_seq,
// gc_horizon), a fixed TxnSlot array, and a page-lock table held as a Go
// map keyed by page number. A genuine multi-process deployment would mmap this struct's
// fields over a System V / POSIX shm segment; this implementation keeps
// the layout's semantics (atomics, lease timestamps, stable offsets as
// struct fields rather than byte offsets) without requiring cgo, keeping
// the package portable pure Go.
type Coordinator struct {
	owner uuid.UUID

	nextTxnID uint64 // atomic
	commitSeq uint64 // atomic
	gcHorizon uint64 // atomic

	leaseTimeout time.Duration

	mu    sync.Mutex
	slots [maxTxnSlots]TxnSlot

	lockMu sync.Mutex
	locks  map[uint32]lockEntry

	sireadMu sync.Mutex
	siread   map[uint32]map[uint64]struct{}
}

type lockEntry struct {
	owner uuid.UUID
	txnID uint64
}

// New creates a fresh, empty coordinator region for this process to
// attach to. leaseTimeout <= 0 uses DefaultLeaseTimeout.
func New(leaseTimeout time.Duration) *Coordinator {
	if leaseTimeout <= 0 {
		leaseTimeout = DefaultLeaseTimeout
	}
	return &Coordinator{
		owner:        uuid.New(),
		leaseTimeout: leaseTimeout,
		locks:        map[uint32]lockEntry{},
		siread:       map[uint32]map[uint64]struct{}{},
	}
}

// Owner is this attached process's lease token, distinguishing "my lease"
// from a stale lease left by a crashed process that happened to reuse the
// same pid.
func (c *Coordinator) Owner() uuid.UUID { return c.owner }

// AllocTxnID hands out the next TxnId and claims a slot for it, evicting
// the first slot with an expired lease if the table is full.
func (c *Coordinator) AllocTxnID() (uint64, error) {
	id := atomic.AddUint64(&c.nextTxnID, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for i := range c.slots {
		s := &c.slots[i]
		if SlotState(atomic.LoadInt32(&s.State)) == SlotFree {
			c.claimSlot(s, id, now)
			return id, nil
		}
	}
	for i := range c.slots {
		s := &c.slots[i]
		if now.Sub(s.lease()) > c.leaseTimeout {
			c.claimSlot(s, id, now)
			return id, nil
		}
	}
	return 0, dberr.New(dberr.Busy, "shm: no free transaction slots and no stale leases to reclaim")
}

func (c *Coordinator) claimSlot(s *TxnSlot, id uint64, now time.Time) {
	s.TxnID = id
	s.Owner = c.owner
	atomic.StoreInt32(&s.State, int32(SlotActive))
	s.refresh(now)
}

// RefreshLease renews the lease on txnID's slot, called periodically while
// a transaction is active so peers don't mistake it for a crashed one.
func (c *Coordinator) RefreshLease(txnID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.slots {
		s := &c.slots[i]
		if SlotState(atomic.LoadInt32(&s.State)) == SlotActive && s.TxnID == txnID {
			s.refresh(time.Now())
			return
		}
	}
}

// ReleaseTxn frees txnID's slot at commit or abort.
func (c *Coordinator) ReleaseTxn(txnID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.slots {
		s := &c.slots[i]
		if SlotState(atomic.LoadInt32(&s.State)) != SlotFree && s.TxnID == txnID {
			atomic.StoreInt32(&s.State, int32(SlotFree))
			s.TxnID = 0
		}
	}
}

// ActiveTxnIDs returns every txn id currently claimed by a non-stale slot,
// the cross-process analogue of mvcc's activeSet.snapshot.
func (c *Coordinator) ActiveTxnIDs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	ids := make([]uint64, 0, maxTxnSlots)
	for i := range c.slots {
		s := &c.slots[i]
		if SlotState(atomic.LoadInt32(&s.State)) == SlotActive && now.Sub(s.lease()) <= c.leaseTimeout {
			ids = append(ids, s.TxnID)
		}
	}
	return ids
}

// CommitSeq returns the current commit sequence counter.
func (c *Coordinator) CommitSeq() uint64 { return atomic.LoadUint64(&c.commitSeq) }

// AdvanceCommitSeq atomically advances and returns the new commit_seq.
func (c *Coordinator) AdvanceCommitSeq() uint64 {
	return atomic.AddUint64(&c.commitSeq, 1)
}

// GCHorizon returns the shared gc_horizon value.
func (c *Coordinator) GCHorizon() uint64 { return atomic.LoadUint64(&c.gcHorizon) }

// SetGCHorizon publishes a newly computed gc_horizon.
func (c *Coordinator) SetGCHorizon(h uint64) { atomic.StoreUint64(&c.gcHorizon, h) }

// TryLockPage implements the cross-process page-lock table: eager
// claim, no waiting, matching mvcc.LockTable's single-process semantics.
func (c *Coordinator) TryLockPage(pageNo uint32, txnID uint64) error {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	if e, ok := c.locks[pageNo]; ok && e.txnID != txnID {
		return dberr.New(dberr.Busy, "shm: page %d locked by another transaction", pageNo)
	}
	c.locks[pageNo] = lockEntry{owner: c.owner, txnID: txnID}
	return nil
}

// UnlockPage releases pageNo if txnID currently holds it.
func (c *Coordinator) UnlockPage(pageNo uint32, txnID uint64) {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	if e, ok := c.locks[pageNo]; ok && e.txnID == txnID {
		delete(c.locks, pageNo)
	}
}

// RecordRead adds txnID to pageNo's SIREAD readers, mirroring
// mvcc.SIReadTable.
func (c *Coordinator) RecordRead(pageNo uint32, txnID uint64) {
	c.sireadMu.Lock()
	defer c.sireadMu.Unlock()
	set, ok := c.siread[pageNo]
	if !ok {
		set = map[uint64]struct{}{}
		c.siread[pageNo] = set
	}
	set[txnID] = struct{}{}
}

// Readers returns the set of transaction ids recorded as having read
// pageNo.
func (c *Coordinator) Readers(pageNo uint32) []uint64 {
	c.sireadMu.Lock()
	defer c.sireadMu.Unlock()
	set := c.siread[pageNo]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ReclaimStaleLeases scans every slot and frees any whose lease has
// expired, returning the txn ids reclaimed on behalf of crashed peers.
func (c *Coordinator) ReclaimStaleLeases() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var reclaimed []uint64
	for i := range c.slots {
		s := &c.slots[i]
		if SlotState(atomic.LoadInt32(&s.State)) == SlotActive && now.Sub(s.lease()) > c.leaseTimeout {
			reclaimed = append(reclaimed, s.TxnID)
			atomic.StoreInt32(&s.State, int32(SlotFree))
			s.TxnID = 0
		}
	}
	return reclaimed
}
