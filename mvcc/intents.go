package mvcc

import (
	"github.com/golang/snappy"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/util"
)

// Retained intent logs: a committed transaction's intent log
// is transferred to the engine at commit time and kept as evidence until
// the GC horizon passes its id. Retained logs are written once and rarely
// read, so they sit snappy-compressed until someone asks.

func encodeIntents(ops []IntentOp) []byte {
	buf := util.EncodeVarint(nil, uint64(len(ops)))
	for _, op := range ops {
		buf = util.EncodeVarint(buf, uint64(op.Kind))
		buf = util.EncodeVarint(buf, uint64(len(op.Table)))
		buf = append(buf, op.Table...)
		buf = util.EncodeVarint(buf, uint64(len(op.Key)))
		buf = append(buf, op.Key...)
		buf = util.EncodeVarint(buf, uint64(len(op.Value)))
		buf = append(buf, op.Value...)
	}
	return buf
}

func decodeIntents(buf []byte) ([]IntentOp, error) {
	short := func() error { return dberr.New(dberr.Corrupt, "mvcc: short retained intent log") }

	buf, n, ok := util.DecodeVarint(buf)
	if !ok {
		return nil, short()
	}
	takeBytes := func() ([]byte, bool) {
		var m uint64
		buf, m, ok = util.DecodeVarint(buf)
		if !ok || uint64(len(buf)) < m {
			return nil, false
		}
		b := append([]byte(nil), buf[:m]...)
		buf = buf[m:]
		return b, true
	}

	ops := make([]IntentOp, 0, n)
	for i := uint64(0); i < n; i++ {
		var kind uint64
		buf, kind, ok = util.DecodeVarint(buf)
		if !ok {
			return nil, short()
		}
		table, ok := takeBytes()
		if !ok {
			return nil, short()
		}
		key, ok := takeBytes()
		if !ok {
			return nil, short()
		}
		value, ok := takeBytes()
		if !ok {
			return nil, short()
		}
		if len(key) == 0 {
			key = nil
		}
		if len(value) == 0 {
			value = nil
		}
		ops = append(ops, IntentOp{Kind: IntentKind(kind), Table: string(table), Key: key, Value: value})
	}
	return ops, nil
}

// retainIntents compresses and stores t's intent log under its id. Caller
// holds t.mu.
func (e *Engine) retainIntents(t *Txn) {
	if len(t.intentLog) == 0 {
		return
	}
	compressed := snappy.Encode(nil, encodeIntents(t.intentLog))
	e.retainedMu.Lock()
	e.retained[t.ID] = compressed
	e.retainedMu.Unlock()
}

// RetainedIntents decompresses and returns the intent log a committed
// transaction left behind, if the GC horizon has not yet reclaimed it.
func (e *Engine) RetainedIntents(id TxnId) ([]IntentOp, bool, error) {
	e.retainedMu.Lock()
	compressed, ok := e.retained[id]
	e.retainedMu.Unlock()
	if !ok {
		return nil, false, nil
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Corrupt, err, "mvcc: retained intents for txn %d", id)
	}
	ops, err := decodeIntents(raw)
	if err != nil {
		return nil, false, err
	}
	return ops, true, nil
}

// dropRetainedBelow discards retained intent logs whose transaction id has
// fallen behind the GC horizon, called from the GC sweep.
func (e *Engine) dropRetainedBelow(horizon TxnId) {
	e.retainedMu.Lock()
	for id := range e.retained {
		if id < horizon {
			delete(e.retained, id)
		}
	}
	e.retainedMu.Unlock()
}
