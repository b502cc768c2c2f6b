// Package vdbe implements the register-based bytecode interpreter: a
// fetch-execute loop over instructions compiled by the SQL
// planner/codegen, driving btree cursors through a pager transaction
// handle. It does not parse or plan SQL; it only runs programs handed to
// it.
package vdbe

import (
	"context"

	"github.com/leftmike/frankensqlite/btree"
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/record"
	"github.com/leftmike/frankensqlite/sql"
)

// maxFrameDepth caps Program/Return nesting so a trigger-invokes-trigger
// cycle fails instead of recursing the host stack without bound.
const maxFrameDepth = 20

// cancelCheckInterval is how many opcodes the Machine executes between
// context.Context cancellation checks.
const cancelCheckInterval = 1024

// StepResult is the outcome of one call to Machine.Step.
type StepResult int

const (
	// Row means registers p1..p1+p2-1 of the most recent ResultRow are
	// available via Machine.Row.
	Row StepResult = iota
	// Done means the program ran to Halt with a success code.
	Done
	// Interrupted means the bound context was cancelled mid-program.
	Interrupted
)

// frame is a saved Program call site, restored when the nested program
// runs off its own end (there is no explicit Return from a Program frame;
// Gosub/Return are for intra-program subroutines and don't push a frame).
type frame struct {
	prog *Program
	pc   int
	regs []sql.Value
	curs []*vcursor
}

// Machine is one running instance of a Program: a register
// file, a cursor array, and a program counter, executing against a single
// pager transaction handle.
type Machine struct {
	h *pager.Handle

	prog *Program
	pc   int
	regs []sql.Value
	curs []*vcursor

	frames []frame

	params []sql.Value
	row    []sql.Value

	opCount int
	halted  bool
	haltErr error
}

// New creates a Machine bound to transaction handle h, ready to run prog.
func New(h *pager.Handle, prog *Program) *Machine {
	return &Machine{
		h:    h,
		prog: prog,
		regs: make([]sql.Value, prog.NumRegs),
		curs: make([]*vcursor, prog.NumCurs),
	}
}

// SetParams installs the bound parameter values Variable instructions read
// from, indexed 1-based by their P1 operand. Must be called before the
// first Step.
func (m *Machine) SetParams(params []sql.Value) {
	m.params = params
}

// Run drives the Machine to completion, invoking onRow for each ResultRow
// the program emits. It is a convenience wrapper over Step for callers
// that don't need a SQLite-style explicit step()/Done loop (e.g. internal
// callers like a CREATE TABLE side effect that runs a program purely for
// its mutations).
func (m *Machine) Run(ctx context.Context, onRow func([]sql.Value) error) error {
	for {
		res, err := m.Step(ctx)
		if err != nil {
			return err
		}
		switch res {
		case Row:
			if onRow != nil {
				if err := onRow(m.row); err != nil {
					return err
				}
			}
		case Done:
			return nil
		case Interrupted:
			return dberr.New(dberr.Internal, "vdbe: interrupted")
		}
	}
}

// Row returns the column values of the most recent ResultRow, valid until
// the next Step call.
func (m *Machine) Row() []sql.Value { return m.row }

// Step executes instructions until a ResultRow is produced, the program
// halts, or it is interrupted, matching the statement-level step()
// contract: step() -> {Row | Done | Error}.
func (m *Machine) Step(ctx context.Context) (StepResult, error) {
	if m.halted {
		if m.haltErr != nil {
			return Done, m.haltErr
		}
		return Done, nil
	}

	for {
		if ctx != nil {
			m.opCount++
			if m.opCount >= cancelCheckInterval {
				m.opCount = 0
				select {
				case <-ctx.Done():
					m.halted = true
					return Interrupted, nil
				default:
				}
			}
		}

		if m.pc >= len(m.prog.Insts) {
			if m.popFrame() {
				continue
			}
			m.halted = true
			return Done, nil
		}
		inst := m.prog.Insts[m.pc]

		advance := true
		switch inst.Op {
		case Halt:
			if inst.P1 != 0 {
				m.halted = true
				m.haltErr = dberr.New(dberr.Code(inst.P1), "vdbe: halted")
				return Done, m.haltErr
			}
			// A successful Halt inside a nested Program frame (trigger
			// invocation) ends that frame and resumes the
			// caller, mirroring how a real VDBE's frame chain only fully
			// halts the outermost program.
			if m.popFrame() {
				continue
			}
			m.halted = true
			return Done, nil

		case Goto:
			m.pc = inst.P2
			advance = false

		case Gosub:
			m.regs[inst.P1] = sql.Int64Value(m.pc + 1)
			m.pc = inst.P2
			advance = false

		case Return:
			target, ok := m.regs[inst.P1].(sql.Int64Value)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: Return register %d not a saved pc", inst.P1)
			}
			m.pc = int(target)
			advance = false

		case InitCoroutine:
			m.regs[inst.P1] = sql.Int64Value(inst.P2)
			// Falls through to the instruction after InitCoroutine; the
			// coroutine body starts only when first Yield'ed into.

		case Yield:
			target, ok := m.regs[inst.P1].(sql.Int64Value)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: Yield register %d not a saved pc", inst.P1)
			}
			m.regs[inst.P1] = sql.Int64Value(m.pc + 1)
			m.pc = int(target)
			advance = false

		case EndCoroutine:
			target, ok := m.regs[inst.P1].(sql.Int64Value)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: EndCoroutine register %d not a saved pc", inst.P1)
			}
			m.pc = int(target)
			advance = false

		case Program:
			sub, ok := inst.P4.(*Program)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: Program instruction missing *Program operand")
			}
			if len(m.frames) >= maxFrameDepth {
				return Done, dberr.New(dberr.Internal, "vdbe: nested frame depth exceeds %d", maxFrameDepth)
			}
			m.frames = append(m.frames, frame{prog: m.prog, pc: m.pc + 1, regs: m.regs, curs: m.curs})
			m.prog = sub
			m.regs = make([]sql.Value, sub.NumRegs)
			m.curs = make([]*vcursor, sub.NumCurs)
			m.pc = 0
			advance = false

		case If:
			if truthy(m.regs[inst.P1]) {
				m.pc = inst.P2
				advance = false
			}

		case IfNot:
			if !truthy(m.regs[inst.P1]) {
				m.pc = inst.P2
				advance = false
			}

		case Eq, Ne, Lt, Le, Gt, Ge:
			take, err := compareJump(inst.Op, m.regs[inst.P3], m.regs[inst.P1])
			if err != nil {
				return Done, err
			}
			if take {
				m.pc = inst.P2
				advance = false
			}

		case Null:
			m.regs[inst.P2] = nil

		case Variable:
			if inst.P1 < 1 || inst.P1 > len(m.params) {
				return Done, dberr.New(dberr.Internal, "vdbe: Variable %d out of range (%d bound)", inst.P1, len(m.params))
			}
			m.regs[inst.P2] = m.params[inst.P1-1]

		case Integer:
			m.regs[inst.P2] = sql.Int64Value(inst.P1)

		case String:
			m.regs[inst.P2] = sql.StringValue(inst.P4.(string))

		case Real:
			m.regs[inst.P2] = sql.Float64Value(inst.P4.(float64))

		case Blob:
			m.regs[inst.P2] = sql.BytesValue(inst.P4.([]byte))

		case Copy, SCopy:
			m.regs[inst.P2] = m.regs[inst.P1]

		case Add, Subtract, Multiply, Divide:
			v, err := arith(inst.Op, m.regs[inst.P1], m.regs[inst.P3])
			if err != nil {
				return Done, err
			}
			m.regs[inst.P2] = v

		case OpenRead, OpenWrite:
			def, _ := inst.P4.(*CursorDef)
			isTable := def == nil || def.IsTable
			name := ""
			if def != nil {
				name = def.Name
			}
			bt := btree.Open(m.h, uint32(inst.P2), isTable, name)
			m.curs[inst.P1] = &vcursor{bt: bt, isTable: isTable}

		case Close:
			m.curs[inst.P1] = nil

		case Rewind:
			vc := m.curs[inst.P1]
			if err := vc.cur().First(); err != nil {
				return Done, err
			}
			if !vc.valid() {
				m.pc = inst.P2
				advance = false
			}

		case Last:
			vc := m.curs[inst.P1]
			if err := vc.cur().Last(); err != nil {
				return Done, err
			}
			if !vc.valid() {
				m.pc = inst.P2
				advance = false
			}

		case Next:
			vc := m.curs[inst.P1]
			if err := vc.cur().Next(); err != nil {
				return Done, err
			}
			if vc.valid() {
				m.pc = inst.P2
				advance = false
			}

		case Prev:
			vc := m.curs[inst.P1]
			if err := vc.cur().Prev(); err != nil {
				return Done, err
			}
			if vc.valid() {
				m.pc = inst.P2
				advance = false
			}

		case SeekGE, SeekGT, SeekLE, SeekLT:
			if err := m.seek(inst); err != nil {
				return Done, err
			}
			if m.curs[inst.P1].valid() {
				m.pc = inst.P2
				advance = false
			}

		case Column:
			v, err := m.column(inst.P1, inst.P2)
			if err != nil {
				return Done, err
			}
			m.regs[inst.P3] = v

		case Rowid:
			vc := m.curs[inst.P1]
			rowid, err := vc.cur().Rowid()
			if err != nil {
				return Done, err
			}
			m.regs[inst.P2] = sql.Int64Value(rowid)

		case MakeRecord:
			vals := make([]sql.Value, inst.P2)
			copy(vals, m.regs[inst.P1:inst.P1+inst.P2])
			m.regs[inst.P3] = sql.BytesValue(record.MakeRecord(vals))

		case ResultRow:
			row := make([]sql.Value, inst.P2)
			copy(row, m.regs[inst.P1:inst.P1+inst.P2])
			m.row = row
			m.pc++
			return Row, nil

		case Insert:
			vc := m.curs[inst.P1]
			payload, ok := m.regs[inst.P2].(sql.BytesValue)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: Insert register %d not a record", inst.P2)
			}
			rowid, ok := m.regs[inst.P3].(sql.Int64Value)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: Insert register %d not a rowid", inst.P3)
			}
			if err := vc.bt.Insert(int64(rowid), []byte(payload)); err != nil {
				return Done, err
			}

		case Delete:
			vc := m.curs[inst.P1]
			rowid, err := vc.cur().Rowid()
			if err != nil {
				return Done, err
			}
			if err := vc.bt.Delete(rowid); err != nil {
				return Done, err
			}
			vc.btCur = nil

		case IdxInsert:
			vc := m.curs[inst.P1]
			key, ok := m.regs[inst.P2].(sql.BytesValue)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: IdxInsert register %d not a key", inst.P2)
			}
			if err := vc.bt.IndexInsert([]byte(key)); err != nil {
				return Done, err
			}

		case IdxDelete:
			vc := m.curs[inst.P1]
			key, ok := m.regs[inst.P2].(sql.BytesValue)
			if !ok {
				return Done, dberr.New(dberr.Internal, "vdbe: IdxDelete register %d not a key", inst.P2)
			}
			if err := vc.bt.IndexDelete([]byte(key)); err != nil {
				return Done, err
			}
			vc.btCur = nil

		case IdxRowid:
			vc := m.curs[inst.P1]
			payload, err := vc.cur().Payload()
			if err != nil {
				return Done, err
			}
			vals, err := record.DecodeRecord(payload)
			if err != nil {
				return Done, err
			}
			if len(vals) == 0 {
				return Done, dberr.New(dberr.Corrupt, "vdbe: index key has no trailing rowid")
			}
			m.regs[inst.P2] = vals[len(vals)-1]

		case Transaction:
			// The pager.Handle's transaction was already begun by the
			// caller that constructed the Machine (mirroring how a real
			// VDBE's Transaction opcode asks the pager to upgrade an
			// already-open handle's lock level); nothing to do here.

		default:
			return Done, dberr.New(dberr.Internal, "vdbe: unimplemented opcode %s", inst.Op)
		}

		if advance {
			m.pc++
		}

		if m.pc >= len(m.prog.Insts) {
			if m.popFrame() {
				continue
			}
			m.halted = true
			return Done, nil
		}
	}
}

// popFrame restores the caller's program, pc, registers and cursors from
// the top of the frame stack, reporting whether there was a frame to pop.
func (m *Machine) popFrame() bool {
	if len(m.frames) == 0 {
		return false
	}
	top := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	m.prog, m.pc, m.regs, m.curs = top.prog, top.pc, top.regs, top.curs
	return true
}
