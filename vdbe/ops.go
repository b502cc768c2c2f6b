package vdbe

import (
	"bytes"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/record"
	"github.com/leftmike/frankensqlite/sql"
)

// column reads and decodes the cursor's current row, returning column idx.
func (m *Machine) column(cursorNo, idx int) (sql.Value, error) {
	vc := m.curs[cursorNo]
	payload, err := vc.cur().Payload()
	if err != nil {
		return nil, err
	}
	vals, err := record.DecodeRecord(payload)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(vals) {
		return nil, dberr.New(dberr.Internal, "vdbe: column %d out of range (row has %d columns)", idx, len(vals))
	}
	return vals[idx], nil
}

// seek implements SeekGE/SeekGT/SeekLE/SeekLT. The btree layer only
// exposes a forward SeekGE primitive, so the GT/LE/LT variants are built
// on top of it: seek to the
// first entry >= the target, then adjust by at most one Next/Prev.
func (m *Machine) seek(inst Inst) error {
	vc := m.curs[inst.P1]
	keyReg := m.regs[inst.P3]

	if vc.isTable {
		rowid, ok := keyReg.(sql.Int64Value)
		if !ok {
			return dberr.New(dberr.Internal, "vdbe: seek register %d is not a rowid", inst.P3)
		}
		cur := vc.cur()
		if err := cur.SeekGE(int64(rowid)); err != nil {
			return err
		}
		switch inst.Op {
		case SeekGE:
			return nil
		case SeekGT:
			if cur.Valid() {
				cr, err := cur.Rowid()
				if err != nil {
					return err
				}
				if cr == int64(rowid) {
					return cur.Next()
				}
			}
			return nil
		case SeekLE:
			if !cur.Valid() {
				return cur.Last()
			}
			cr, err := cur.Rowid()
			if err != nil {
				return err
			}
			if cr > int64(rowid) {
				return cur.Prev()
			}
			return nil
		case SeekLT:
			if !cur.Valid() {
				return cur.Last()
			}
			return cur.Prev()
		}
		return dberr.New(dberr.Internal, "vdbe: bad seek opcode")
	}

	key, ok := keyReg.(sql.BytesValue)
	if !ok {
		return dberr.New(dberr.Internal, "vdbe: seek register %d is not an index key", inst.P3)
	}
	newCur, err := vc.bt.IndexSeekGE([]byte(key))
	if err != nil {
		return err
	}
	vc.btCur = newCur
	switch inst.Op {
	case SeekGE:
		return nil
	case SeekGT:
		if newCur.Valid() {
			pl, err := newCur.Payload()
			if err != nil {
				return err
			}
			if bytes.Equal(pl, []byte(key)) {
				return newCur.Next()
			}
		}
		return nil
	case SeekLE:
		if !newCur.Valid() {
			return newCur.Last()
		}
		pl, err := newCur.Payload()
		if err != nil {
			return err
		}
		if bytes.Compare(pl, []byte(key)) > 0 {
			return newCur.Prev()
		}
		return nil
	case SeekLT:
		if !newCur.Valid() {
			return newCur.Last()
		}
		return newCur.Prev()
	}
	return dberr.New(dberr.Internal, "vdbe: bad seek opcode")
}

// truthy implements the If/IfNot predicate: NULL and zero are false,
// everything else (including non-numeric values, per SQL's "non-zero or
// non-empty is true" convention for computed boolean registers) is true.
func truthy(v sql.Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case sql.BoolValue:
		return bool(v)
	case sql.Int64Value:
		return v != 0
	case sql.Float64Value:
		return v != 0
	default:
		return true
	}
}

// compareJump evaluates one of the Eq/Ne/Lt/Le/Gt/Ge instructions: a is
// the P3 register, b is the P1 register (so Lt reads "jump if p3 < p1").
// Per SQL three-valued logic, any comparison involving NULL is neither
// true nor false and never takes the jump.
func compareJump(op Opcode, a, b sql.Value) (bool, error) {
	if a == nil || b == nil {
		return false, nil
	}
	c, err := a.Compare(b)
	if err != nil {
		return false, dberr.Wrap(dberr.Internal, err, "vdbe: comparison")
	}
	switch op {
	case Eq:
		return c == 0, nil
	case Ne:
		return c != 0, nil
	case Lt:
		return c < 0, nil
	case Le:
		return c <= 0, nil
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	}
	return false, dberr.New(dberr.Internal, "vdbe: bad compare opcode %s", op)
}

// arith evaluates Add/Subtract/Multiply/Divide over register operands a
// (P1) and b (P3). NULL propagates. Division by zero yields NULL rather
// than an error, matching SQLite's runtime behavior.
func arith(op Opcode, a, b sql.Value) (sql.Value, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	af, aFloat, aOK := numericValue(a)
	bf, bFloat, bOK := numericValue(b)
	if !aOK || !bOK {
		return nil, dberr.New(dberr.Internal, "vdbe: arithmetic on non-numeric register")
	}

	if op == Divide {
		if bf == 0 {
			return nil, nil
		}
		return sql.Float64Value(af / bf), nil
	}

	if aFloat || bFloat {
		var r float64
		switch op {
		case Add:
			r = af + bf
		case Subtract:
			r = af - bf
		case Multiply:
			r = af * bf
		}
		return sql.Float64Value(r), nil
	}

	ai, bi := int64(af), int64(bf)
	var r int64
	switch op {
	case Add:
		r = ai + bi
	case Subtract:
		r = ai - bi
	case Multiply:
		r = ai * bi
	}
	return sql.Int64Value(r), nil
}

func numericValue(v sql.Value) (f float64, isFloat, ok bool) {
	switch v := v.(type) {
	case sql.Int64Value:
		return float64(v), false, true
	case sql.Float64Value:
		return float64(v), true, true
	}
	return 0, false, false
}
