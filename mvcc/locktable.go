package mvcc

import (
	"sync"

	"github.com/leftmike/frankensqlite/dberr"
)

// lockShards is the default shard count for the page-lock and SIREAD
// tables, each
// cache-line padded").
const lockShards = 64

type lockShard struct {
	mu    sync.Mutex
	owner map[uint32]TxnId
	_pad  [48]byte // cache-line pad, one per shard
}

// LockTable is the sharded PageNumber -> TxnId exclusive-writer claim
// map. Acquisition is eager and non-waiting: a conflicting claim fails
// fast with dberr.Busy rather than blocking, so no transaction ever waits
// while holding a lock and no wait cycle can form.
type LockTable struct {
	shards [lockShards]lockShard
}

func NewLockTable() *LockTable {
	lt := &LockTable{}
	for i := range lt.shards {
		lt.shards[i].owner = map[uint32]TxnId{}
	}
	return lt
}

func (lt *LockTable) shardFor(pageNo uint32) *lockShard {
	return &lt.shards[pageNo%lockShards]
}

// TryAcquire claims pageNo for txn: unheld -> txn succeeds; already held
// by txn is idempotent; held by another transaction fails with dberr.Busy
// immediately, no waiting.
func (lt *LockTable) TryAcquire(pageNo uint32, txn TxnId) error {
	s := lt.shardFor(pageNo)
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, held := s.owner[pageNo]; held {
		if owner == txn {
			return nil
		}
		return dberr.New(dberr.Busy, "page %d locked by txn %d", pageNo, owner)
	}
	s.owner[pageNo] = txn
	return nil
}

// Release drops txn's claim on pageNo, if any (idempotent).
func (lt *LockTable) Release(pageNo uint32, txn TxnId) {
	s := lt.shardFor(pageNo)
	s.mu.Lock()
	if s.owner[pageNo] == txn {
		delete(s.owner, pageNo)
	}
	s.mu.Unlock()
}

// ReleaseAll drops every lock txn holds among pages, used at commit/abort.
func (lt *LockTable) ReleaseAll(pages []uint32, txn TxnId) {
	for _, pn := range pages {
		lt.Release(pn, txn)
	}
}
