package vdbe

import "github.com/leftmike/frankensqlite/sql"

// CursorDef tells OpenRead/OpenWrite what kind of btree sits at the cursor's
// root page: a table tree keyed by rowid, or an index tree keyed by an
// arbitrary byte string. The codegen bridge fills this in from the
// catalog; the Machine never inspects schema itself.
type CursorDef struct {
	IsTable bool
	Name    string
}

// Inst is one instruction: an opcode plus the five SQLite-style operands.
// Not every opcode uses every operand; unused fields are zero.
type Inst struct {
	Op      Opcode
	P1, P2  int
	P3      int
	P4      interface{}
	P5      uint16
	Comment string
}

// Program is a prepared VDBE bytecode program: a flat
// instruction array plus the register file size the planner's codegen
// computed. Register 0 is reserved and never addressed by generated
// code.
type Program struct {
	Insts     []Inst
	NumRegs   int
	NumCurs   int
	NumParams int // count of ?-style parameters read by Variable
}

// Lit wraps a constant sql.Value. No opcode of Machine reads a Lit operand:
// Integer takes its constant in P1, and String, Real and Blob take P4 as a
// plain string, float64 and []byte.
type Lit struct {
	Value sql.Value
}
