package engine

import (
	"context"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/sql"
	"github.com/leftmike/frankensqlite/vdbe"
)

// StepResult is what one Statement.Step produced.
type StepResult int

const (
	// Row means the statement produced a row; read it with Column.
	Row StepResult = iota
	// Done means the statement ran to completion.
	Done
)

// Statement is a prepared program plus its bound parameters, stepped
// SQLite-style: Bind, then Step until Done, then Reset to run again or
// Finalize to release it. A write statement's implicit transaction commits
// when Step returns Done and rolls back if a step fails; after a failed
// step, further Steps return the same error until Reset or Finalize.
type Statement struct {
	db   *DB
	prog *vdbe.Program
	mode pager.Mode

	params []sql.Value
	h      *pager.Handle
	m      *vdbe.Machine
	row    []sql.Value

	err       error
	finalized bool
}

// Prepare wraps an already-compiled program as a steppable statement.
// mode is the lock level the statement's implicit transaction begins
// under when Step first runs.
func (db *DB) Prepare(prog *vdbe.Program, mode pager.Mode) *Statement {
	return &Statement{
		db:     db,
		prog:   prog,
		mode:   mode,
		params: make([]sql.Value, prog.NumParams),
	}
}

// Bind sets the i-th (1-based) parameter. Binding is only allowed before
// the first Step or after a Reset.
func (s *Statement) Bind(i int, v sql.Value) error {
	if s.finalized {
		return dberr.New(dberr.Internal, "statement: bind after finalize")
	}
	if s.m != nil {
		return dberr.New(dberr.Internal, "statement: bind while stepping; reset first")
	}
	if i < 1 || i > len(s.params) {
		return dberr.New(dberr.Internal, "statement: bind index %d out of range (%d parameters)", i, len(s.params))
	}
	s.params[i-1] = v
	return nil
}

// Step advances the statement: Row means Column can read the produced
// values; Done means the statement finished and its implicit transaction
// committed.
func (s *Statement) Step(ctx context.Context) (StepResult, error) {
	if s.finalized {
		return Done, dberr.New(dberr.Internal, "statement: step after finalize")
	}
	if s.err != nil {
		return Done, s.err
	}
	if s.m == nil {
		s.h = s.db.Begin(s.mode)
		s.m = vdbe.New(s.h, s.prog)
		s.m.SetParams(s.params)
	}

	res, err := s.m.Step(ctx)
	if err != nil {
		s.fail(err)
		return Done, err
	}
	switch res {
	case vdbe.Row:
		s.row = s.m.Row()
		return Row, nil
	case vdbe.Interrupted:
		err := dberr.New(dberr.Internal, "statement: interrupted")
		s.fail(err)
		return Done, err
	default:
		// A Done after the commit already happened (caller kept stepping a
		// finished statement) has nothing left to commit.
		if s.h != nil {
			h := s.h
			s.h = nil
			if err := h.Commit(); err != nil {
				s.fail(err)
				return Done, err
			}
		}
		return Done, nil
	}
}

func (s *Statement) fail(err error) {
	s.err = err
	if s.h != nil {
		s.h.Rollback()
		s.h = nil
	}
}

// Column returns the i-th value of the row the last Step produced.
func (s *Statement) Column(i int) sql.Value {
	if s.row == nil || i < 0 || i >= len(s.row) {
		return nil
	}
	return s.row[i]
}

// Reset rewinds the statement so it can be stepped again. Bindings are
// kept; a pending implicit transaction is rolled back; a recorded step
// error is cleared.
func (s *Statement) Reset() {
	if s.h != nil {
		s.h.Rollback()
		s.h = nil
	}
	s.m = nil
	s.row = nil
	s.err = nil
}

// Finalize releases the statement. Idempotent; a pending implicit
// transaction is rolled back.
func (s *Statement) Finalize() error {
	if s.finalized {
		return nil
	}
	s.Reset()
	s.finalized = true
	return nil
}
