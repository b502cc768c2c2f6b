package mvcc

import "github.com/leftmike/frankensqlite/metrics"

// Rebaser replays a transaction's intent log against the current committed
// state, succeeding iff B-tree invariants hold and no unique-constraint
// violation appears.
// The mvcc package has no B-tree of its own (that's package btree, layered
// above the pager which is layered above this engine), so the rebase step
// is a caller-supplied hook; a nil Rebaser simply skips straight to
// strategy 2.
type Rebaser interface {
	Rebase(ops []IntentOp) bool
}

// validateFCW is the first-committer-wins check: after SSI passes, verify no page in
// t's write-set has a committed version newer than t's snapshot. conflict
// reports whether such a version exists; the caller decides whether to try
// the merge ladder or abort outright.
func (e *Engine) validateFCW(t *Txn) (conflict bool, err error) {
	for _, pn := range t.WriteSetPages() {
		if v := e.store.NewestInvisible(pn, t.Snapshot); v != nil {
			if _, committed := e.CommitSeqOf(v.CreatedBy); committed {
				metrics.FCWConflicts.Inc()
				return true, nil
			}
		}
	}
	return false, nil
}

// runMergeLadder tries each conflict-resolution strategy in strict priority
// order, mutating t's pending write-set in place on success. It returns
// true iff some strategy resolved every conflicting page.
func (e *Engine) runMergeLadder(t *Txn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pn, pending := range t.writeSet {
		winner := e.store.NewestInvisible(pn, t.Snapshot)
		if winner == nil {
			continue // this page didn't actually conflict
		}
		if e.rebaser != nil && e.rebaser.Rebase(t.intentLog) {
			continue
		}
		if merged, ok := structuredPatch(pending.Base, pending.Data, winner.Data); ok {
			pending.Data = merged
			continue
		}
		if merged, ok := sparseXORDelta(pending.Base, pending.Data, winner.Data); ok {
			pending.Data = merged
			continue
		}
		return false
	}
	return true
}

// structuredPatch implements strategy 2: if both transactions modified
// disjoint fixed-size "cells" of the same page relative to their shared
// base, the merge is simply "take each cell from whichever side changed
// it". cellSize mirrors a B-tree cell-pointer granularity at a level this
// package doesn't otherwise model; 8 bytes is a stand-in slot width.
const mergeCellSize = 8

func structuredPatch(base, mine, theirs []byte) ([]byte, bool) {
	if base == nil || len(base) != len(mine) || len(base) != len(theirs) {
		return nil, false
	}
	out := make([]byte, len(base))
	copy(out, base)
	for off := 0; off < len(base); off += mergeCellSize {
		end := off + mergeCellSize
		if end > len(base) {
			end = len(base)
		}
		mineChanged := !bytesEqual(base[off:end], mine[off:end])
		theirsChanged := !bytesEqual(base[off:end], theirs[off:end])
		switch {
		case mineChanged && theirsChanged:
			return nil, false // same cell touched by both sides
		case mineChanged:
			copy(out[off:end], mine[off:end])
		case theirsChanged:
			copy(out[off:end], theirs[off:end])
		}
	}
	return out, true
}

// sparseXORDelta implements strategy 3: if the byte-level diffs of the two
// sides against their shared base are provably disjoint, XOR both deltas
// onto the base in GF(256) (equivalent to plain XOR for single-byte
// symbols; named for consistency with the wal package's GF(256) FEC use of
// the same field).
func sparseXORDelta(base, mine, theirs []byte) ([]byte, bool) {
	if base == nil || len(base) != len(mine) || len(base) != len(theirs) {
		return nil, false
	}
	out := make([]byte, len(base))
	for i := range base {
		md := mine[i] ^ base[i]
		td := theirs[i] ^ base[i]
		if md != 0 && td != 0 {
			return nil, false
		}
		out[i] = base[i] ^ md ^ td
	}
	return out, true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
