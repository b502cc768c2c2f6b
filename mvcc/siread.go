package mvcc

import "sync"

type sireadShard struct {
	mu      sync.Mutex
	readers map[uint32]map[TxnId]struct{}
}

// SIReadTable is the sharded PageNumber -> set<TxnId> map recording which
// active transactions have read a page, supporting SSI's
// incoming-edge discovery.
type SIReadTable struct {
	shards [lockShards]sireadShard
}

func NewSIReadTable() *SIReadTable {
	t := &SIReadTable{}
	for i := range t.shards {
		t.shards[i].readers = map[uint32]map[TxnId]struct{}{}
	}
	return t
}

func (t *SIReadTable) shardFor(pageNo uint32) *sireadShard {
	return &t.shards[pageNo%lockShards]
}

// Record publishes that txn has read pageNo, making the read discoverable
// by a future writer's SSI validation.
func (t *SIReadTable) Record(pageNo uint32, txn TxnId) {
	s := t.shardFor(pageNo)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.readers[pageNo]
	if !ok {
		set = map[TxnId]struct{}{}
		s.readers[pageNo] = set
	}
	set[txn] = struct{}{}
}

// Readers returns the set of transactions recorded as having read pageNo.
func (t *SIReadTable) Readers(pageNo uint32) []TxnId {
	s := t.shardFor(pageNo)
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.readers[pageNo]
	out := make([]TxnId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Forget removes txn's read witness for pageNo, used once no future
// committer could still form an edge through it (left to the GC pass; not
// required for correctness, only for bounded memory).
func (t *SIReadTable) Forget(pageNo uint32, txn TxnId) {
	s := t.shardFor(pageNo)
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.readers[pageNo]; ok {
		delete(set, txn)
		if len(set) == 0 {
			delete(s.readers, pageNo)
		}
	}
}

// ForgetAll removes every witness txn left behind across pages.
func (t *SIReadTable) ForgetAll(pages []uint32, txn TxnId) {
	for _, pn := range pages {
		t.Forget(pn, txn)
	}
}

// ForgetBelow drops every recorded witness whose TxnId is older than
// horizon: once no
// active transaction's snapshot predates horizon, a witness at or below it
// can no longer complete a dangerous structure with anything still
// validating, so it is safe to reclaim. Called from the GC sweep, not from
// a committing transaction's own publish path.
func (t *SIReadTable) ForgetBelow(horizon TxnId) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for pn, set := range s.readers {
			for id := range set {
				if id < horizon {
					delete(set, id)
				}
			}
			if len(set) == 0 {
				delete(s.readers, pn)
			}
		}
		s.mu.Unlock()
	}
}
