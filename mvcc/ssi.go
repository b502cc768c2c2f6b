package mvcc

import (
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/metrics"
)

// validateSSI implements Cahill's conservative rule: abort
// t if it has both an incoming and an outgoing rw-antidependency edge.
//
// Outgoing (t -> t”): t read page P and some already-committed t” wrote a
// newer version of P than t's snapshot could see.
//
// Incoming (t' -> t): some other active (or since-committed) transaction
// t' read a page t is about to write, before t's write is visible to it.
func (e *Engine) validateSSI(t *Txn) error {
	outgoing := e.hasOutgoingEdge(t)
	incoming := e.hasIncomingEdge(t)

	if outgoing && incoming {
		metrics.SSIAborts.Inc()
		return dberr.New(dberr.SsiWriteSkew, "txn %d: dangerous rw-antidependency structure", t.ID)
	}
	return nil
}

func (e *Engine) hasOutgoingEdge(t *Txn) bool {
	for _, pn := range t.ReadSetPages() {
		// Any version of P created by a transaction that committed after
		// t's snapshot was taken is an outgoing edge t -> that committer.
		if v := e.store.NewestInvisible(pn, t.Snapshot); v != nil {
			if v.CreatedBy != t.ID {
				if _, committed := e.CommitSeqOf(v.CreatedBy); committed {
					return true
				}
			}
		}
	}
	return false
}

func (e *Engine) hasIncomingEdge(t *Txn) bool {
	for _, pn := range t.WriteSetPages() {
		for _, reader := range e.siread.Readers(pn) {
			// Any other transaction with a live SIREAD witness on a page t
			// is about to write forms an incoming edge reader -> t: a
			// reader active at the time t writes, whose snapshot precedes
			// t's commit. The witness table only ever
			// holds readers that have neither rolled back nor aged past the
			// GC horizon, so a witness surviving to this check always
			// qualifies regardless of reader/writer commit order.
			if reader != t.ID {
				return true
			}
		}
	}
	return false
}
