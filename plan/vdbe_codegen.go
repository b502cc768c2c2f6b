package plan

import (
	"fmt"

	"github.com/leftmike/frankensqlite/sql"
	"github.com/leftmike/frankensqlite/vdbe"
)

// Param is a 1-based ?-style statement parameter standing in for a literal
// in a plan's row values. It lowers to a Variable instruction; the value
// arrives at step time via Statement.Bind rather than being baked into the
// program.
type Param int

func (p Param) String() string { return fmt.Sprintf("?%d", int(p)) }

// Compare on an unbound parameter is a planning error, not a runtime
// comparison; plans only carry Params where a literal slot is expected.
func (p Param) Compare(v2 sql.Value) (int, error) {
	return 0, fmt.Errorf("plan: comparing unbound parameter %s", p)
}

// ScanPlan is a resolved full-table-scan plan node: the planner/catalog
// layer has already picked a root page and a column list; CompileScan's
// only job is emitting bytecode that walks it.
type ScanPlan struct {
	Table   string
	Root    uint32
	NumCols int
}

// InsertPlan is a resolved row-literal insert: one or more fully-evaluated
// rows ready to be recorded and stored, with no further expression
// evaluation left to do at bytecode-generation time.
type InsertPlan struct {
	Table string
	Root  uint32
	Rows  [][]sql.Value
}

// CompileScan lowers a ScanPlan into a VDBE program that emits one
// ResultRow per table row, in rowid order: Rewind, then a Column/ResultRow/
// Next loop exactly like the hand-written scan programs in vdbe's own
// tests, generated instead of hand-assembled.
func CompileScan(p ScanPlan) *vdbe.Program {
	const cur = 0
	// Registers: 1 = rowid, 2..NumCols+1 = columns.
	firstCol := 2
	insts := []vdbe.Inst{
		{Op: vdbe.OpenRead, P1: cur, P2: int(p.Root), P4: &vdbe.CursorDef{IsTable: true, Name: p.Table}},
	}
	rewindAt := len(insts)
	insts = append(insts, vdbe.Inst{Op: vdbe.Rewind, P1: cur}) // P2 patched below
	loopStart := len(insts)
	insts = append(insts, vdbe.Inst{Op: vdbe.Rowid, P1: cur, P2: 1})
	for i := 0; i < p.NumCols; i++ {
		insts = append(insts, vdbe.Inst{Op: vdbe.Column, P1: cur, P2: i, P3: firstCol + i})
	}
	insts = append(insts, vdbe.Inst{Op: vdbe.ResultRow, P1: 1, P2: p.NumCols + 1})
	nextAt := len(insts)
	insts = append(insts, vdbe.Inst{Op: vdbe.Next, P1: cur, P2: loopStart})
	closeAt := len(insts)
	insts = append(insts, vdbe.Inst{Op: vdbe.Close, P1: cur}, vdbe.Inst{Op: vdbe.Halt})

	insts[rewindAt].P2 = closeAt
	insts[nextAt].P2 = loopStart

	return &vdbe.Program{Insts: insts, NumRegs: firstCol + p.NumCols, NumCurs: 1}
}

// CompileInsert lowers an InsertPlan into a VDBE program that assembles
// and inserts each row via MakeRecord/Insert, a straight-line sequence
// with no control flow beyond the trailing Halt.
func CompileInsert(p InsertPlan) *vdbe.Program {
	const cur = 0
	insts := []vdbe.Inst{
		{Op: vdbe.OpenWrite, P1: cur, P2: int(p.Root), P4: &vdbe.CursorDef{IsTable: true, Name: p.Table}},
	}
	for _, row := range p.Rows {
		rowidReg := 1
		recReg := 2
		firstValReg := 3
		rowid, cols := row[0], row[1:]
		insts = append(insts, literalInst(rowid, rowidReg))
		for i, v := range cols {
			insts = append(insts, literalInst(v, firstValReg+i))
		}
		insts = append(insts, vdbe.Inst{Op: vdbe.MakeRecord, P1: firstValReg, P2: len(cols), P3: recReg})
		insts = append(insts, vdbe.Inst{Op: vdbe.Insert, P1: cur, P2: recReg, P3: rowidReg})
	}
	insts = append(insts, vdbe.Inst{Op: vdbe.Close, P1: cur}, vdbe.Inst{Op: vdbe.Halt})

	maxCols := 0
	numParams := 0
	for _, row := range p.Rows {
		if n := len(row) - 1; n > maxCols {
			maxCols = n
		}
		for _, v := range row {
			if prm, ok := v.(Param); ok && int(prm) > numParams {
				numParams = int(prm)
			}
		}
	}
	return &vdbe.Program{Insts: insts, NumRegs: 3 + maxCols, NumCurs: 1, NumParams: numParams}
}

// literalInst emits the register-load instruction for a constant value,
// dispatching on its concrete sql.Value type the way the catalog-facing
// evaluator does elsewhere in this tree.
func literalInst(v sql.Value, reg int) vdbe.Inst {
	switch v := v.(type) {
	case nil:
		return vdbe.Inst{Op: vdbe.Null, P2: reg}
	case Param:
		return vdbe.Inst{Op: vdbe.Variable, P1: int(v), P2: reg}
	case sql.Int64Value:
		return vdbe.Inst{Op: vdbe.Integer, P1: int(v), P2: reg}
	case sql.Float64Value:
		return vdbe.Inst{Op: vdbe.Real, P2: reg, P4: float64(v)}
	case sql.StringValue:
		return vdbe.Inst{Op: vdbe.String, P2: reg, P4: string(v)}
	case sql.BytesValue:
		return vdbe.Inst{Op: vdbe.Blob, P2: reg, P4: []byte(v)}
	default:
		return vdbe.Inst{Op: vdbe.Null, P2: reg}
	}
}
