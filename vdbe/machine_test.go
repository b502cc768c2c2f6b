package vdbe

import (
	"context"
	"testing"

	"github.com/leftmike/frankensqlite/btree"
	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/sql"
	"github.com/leftmike/frankensqlite/vfs"
)

func openTestHandle(t *testing.T) *pager.Handle {
	t.Helper()
	fs := vfs.Memory()
	f, err := fs.Open("test.db", vfs.OpenFlags{Create: true, ReadWrite: true})
	if err != nil {
		t.Fatal(err)
	}
	engine := mvcc.New(mvcc.Config{Serializable: true}, nil, nil)
	p, err := pager.Open(f, nil, engine, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p.Begin(pager.ModeImmediate)
}

// insertProgram builds a program that inserts the given rows into a tiny
// two-column (id, name) table via MakeRecord/Insert, mirroring what
// plan/vdbe_codegen.go would emit for "INSERT INTO t VALUES (...)".
func insertProgram(root uint32, rows [][2]sql.Value) *Program {
	var insts []Inst
	insts = append(insts, Inst{Op: OpenWrite, P1: 0, P2: int(root), P4: &CursorDef{IsTable: true, Name: "t"}})
	for _, row := range rows {
		insts = append(insts,
			Inst{Op: Integer, P1: int(row[0].(sql.Int64Value)), P2: 1},
			Inst{Op: String, P2: 2, P4: string(row[1].(sql.StringValue))},
			Inst{Op: MakeRecord, P1: 1, P2: 2, P3: 3},
			Inst{Op: Copy, P1: 1, P2: 4},
			Inst{Op: Insert, P1: 0, P2: 3, P3: 4},
		)
	}
	insts = append(insts, Inst{Op: Close, P1: 0}, Inst{Op: Halt})
	return &Program{Insts: insts, NumRegs: 5, NumCurs: 1}
}

// scanProgram walks the table in rowid order and emits (rowid, col0, col1)
// as a ResultRow per visited cell.
func scanProgram(root uint32) *Program {
	insts := []Inst{
		{Op: OpenRead, P1: 0, P2: int(root), P4: &CursorDef{IsTable: true, Name: "t"}},
		{Op: Rewind, P1: 0, P2: 7}, // -> Close if empty
		{Op: Rowid, P1: 0, P2: 1},
		{Op: Column, P1: 0, P2: 0, P3: 2},
		{Op: Column, P1: 0, P2: 1, P3: 3},
		{Op: ResultRow, P1: 1, P2: 3},
		{Op: Next, P1: 0, P2: 2}, // -> loop back to Rowid
		{Op: Close, P1: 0},
		{Op: Halt},
	}
	return &Program{Insts: insts, NumRegs: 4, NumCurs: 1}
}

func TestInsertAndScanRoundTrip(t *testing.T) {
	h := openTestHandle(t)
	bt, err := btree.CreateTable(h, "t")
	if err != nil {
		t.Fatal(err)
	}

	rows := [][2]sql.Value{
		{sql.Int64Value(1), sql.StringValue("alice")},
		{sql.Int64Value(2), sql.StringValue("bob")},
		{sql.Int64Value(3), sql.StringValue("carol")},
	}
	m := New(h, insertProgram(bt.Root(), rows))
	if err := m.Run(context.Background(), nil); err != nil {
		t.Fatalf("insert program: %v", err)
	}

	var got [][2]sql.Value
	sm := New(h, scanProgram(bt.Root()))
	err = sm.Run(context.Background(), func(row []sql.Value) error {
		got = append(got, [2]sql.Value{row[1], row[2]})
		return nil
	})
	if err != nil {
		t.Fatalf("scan program: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}
	for i, row := range rows {
		if got[i][0].(sql.Int64Value) != row[0].(sql.Int64Value) {
			t.Fatalf("row %d: id = %v, want %v", i, got[i][0], row[0])
		}
		if got[i][1].(sql.StringValue) != row[1].(sql.StringValue) {
			t.Fatalf("row %d: name = %v, want %v", i, got[i][1], row[1])
		}
	}
}

func TestScanEmptyTableProducesNoRows(t *testing.T) {
	h := openTestHandle(t)
	bt, err := btree.CreateTable(h, "empty")
	if err != nil {
		t.Fatal(err)
	}
	var n int
	m := New(h, scanProgram(bt.Root()))
	err = m.Run(context.Background(), func(row []sql.Value) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d rows from an empty table, want 0", n)
	}
}

// deleteProgram deletes the row at the given rowid via SeekGE then Delete.
func deleteProgram(root uint32, rowid int64) *Program {
	insts := []Inst{
		{Op: OpenWrite, P1: 0, P2: int(root), P4: &CursorDef{IsTable: true, Name: "t"}},
		{Op: Integer, P1: int(rowid), P2: 1},
		{Op: SeekGE, P1: 0, P2: 4, P3: 1},
		{Op: Goto, P2: 5},
		{Op: Delete, P1: 0},
		{Op: Close, P1: 0},
		{Op: Halt},
	}
	return &Program{Insts: insts, NumRegs: 2, NumCurs: 1}
}

func TestDeleteRemovesRow(t *testing.T) {
	h := openTestHandle(t)
	bt, err := btree.CreateTable(h, "t")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][2]sql.Value{
		{sql.Int64Value(1), sql.StringValue("alice")},
		{sql.Int64Value(2), sql.StringValue("bob")},
	}
	m := New(h, insertProgram(bt.Root(), rows))
	if err := m.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	dm := New(h, deleteProgram(bt.Root(), 1))
	if err := dm.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	var ids []int64
	sm := New(h, scanProgram(bt.Root()))
	err = sm.Run(context.Background(), func(row []sql.Value) error {
		ids = append(ids, int64(row[0].(sql.Int64Value)))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("got ids %v, want [2]", ids)
	}
}

func TestArithmeticAndComparison(t *testing.T) {
	// r1 = 3, r2 = 4, r3 = r1+r2, jump to 6 if r3 > r1 else 7.
	insts := []Inst{
		{Op: Integer, P1: 3, P2: 1},
		{Op: Integer, P1: 4, P2: 2},
		{Op: Add, P1: 1, P2: 3, P3: 2},
		{Op: Gt, P1: 1, P3: 3, P2: 6},
		{Op: Integer, P1: 0, P2: 4}, // not taken
		{Op: Goto, P2: 7},
		{Op: Integer, P1: 1, P2: 4}, // taken
		{Op: ResultRow, P1: 4, P2: 1},
		{Op: Halt},
	}
	prog := &Program{Insts: insts, NumRegs: 5}
	m := New(nil, prog)
	var rows [][]sql.Value
	err := m.Run(context.Background(), func(row []sql.Value) error {
		cp := append([]sql.Value(nil), row...)
		rows = append(rows, cp)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][0].(sql.Int64Value) != 1 {
		t.Fatalf("got %v, want a single row [1]", rows)
	}
}

func TestDivideByZeroYieldsNull(t *testing.T) {
	insts := []Inst{
		{Op: Integer, P1: 10, P2: 1},
		{Op: Integer, P1: 0, P2: 2},
		{Op: Divide, P1: 1, P2: 3, P3: 2},
		{Op: ResultRow, P1: 3, P2: 1},
		{Op: Halt},
	}
	prog := &Program{Insts: insts, NumRegs: 4}
	m := New(nil, prog)
	var got []sql.Value
	err := m.Run(context.Background(), func(row []sql.Value) error {
		got = row
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != nil {
		t.Fatalf("got %v, want NULL", got[0])
	}
}

func TestNestedProgramFrameReturnsToCaller(t *testing.T) {
	sub := &Program{
		Insts: []Inst{
			{Op: Integer, P1: 99, P2: 1},
			{Op: ResultRow, P1: 1, P2: 1},
			{Op: Halt},
		},
		NumRegs: 2,
	}
	outer := &Program{
		Insts: []Inst{
			{Op: Program, P2: 2, P4: sub},
			{Op: Integer, P1: 1, P2: 1},
			{Op: ResultRow, P1: 1, P2: 1},
			{Op: Halt},
		},
		NumRegs: 2,
	}
	m := New(nil, outer)
	var got []int64
	err := m.Run(context.Background(), func(row []sql.Value) error {
		got = append(got, int64(row[0].(sql.Int64Value)))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 99 || got[1] != 1 {
		t.Fatalf("got %v, want [99 1] (subprogram row then caller row)", got)
	}
}

func TestInterruptedContextStopsMachine(t *testing.T) {
	// A single self-jumping Goto: the only way Step ever returns is via the
	// periodic ctx.Done() check, not by running off the end of the program.
	prog := &Program{Insts: []Inst{{Op: Goto, P2: 0}}, NumRegs: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(nil, prog)
	res, err := m.Step(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res != Interrupted {
		t.Fatalf("got %v, want Interrupted", res)
	}
}
