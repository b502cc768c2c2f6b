package btree

import "github.com/leftmike/frankensqlite/mvcc"

// Resolver maps an intent log's table name back to the open BTree it
// mutated, so IntentRebaser can replay the log against current committed
// state. Callers typically back this with a
// catalog lookup keyed by name.
type Resolver func(table string) (*BTree, bool)

// IntentRebaser implements mvcc.Rebaser by replaying a transaction's intent
// log, in order, against the committed B-trees named in each op. It
// succeeds only if every op replays cleanly; a single failure (unresolved
// table, or an underlying page operation error) aborts the whole replay,
// since a partial rebase would leave the tree in a state no transaction
// ever produced.
type IntentRebaser struct {
	resolve Resolver
}

// NewIntentRebaser wires resolve as the table-name lookup used during
// replay. Install the result on an engine with mvcc.Engine.SetRebaser.
func NewIntentRebaser(resolve Resolver) *IntentRebaser {
	return &IntentRebaser{resolve: resolve}
}

// Rebase implements mvcc.Rebaser.
func (r *IntentRebaser) Rebase(ops []mvcc.IntentOp) bool {
	for _, op := range ops {
		bt, ok := r.resolve(op.Table)
		if !ok {
			return false
		}
		if err := replayOne(bt, op); err != nil {
			return false
		}
	}
	return true
}

func replayOne(bt *BTree, op mvcc.IntentOp) error {
	if bt.isTable {
		rowid := DecodeRowidKey(op.Key)
		switch op.Kind {
		case mvcc.IntentInsert, mvcc.IntentUpdate:
			return bt.Insert(rowid, op.Value)
		case mvcc.IntentDelete:
			return bt.Delete(rowid)
		}
		return nil
	}
	switch op.Kind {
	case mvcc.IntentInsert, mvcc.IntentUpdate:
		return bt.IndexInsert(op.Key)
	case mvcc.IntentDelete:
		return bt.IndexDelete(op.Key)
	}
	return nil
}
