// Package repl is the line-command shell over the storage engine, the
// interim stand-in for the SQL front end that compiles statements into
// VDBE programs. Commands mutate tables through the same plan/vdbe path a
// real planner would use.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/leftmike/frankensqlite/btree"
	"github.com/leftmike/frankensqlite/catalog"
	"github.com/leftmike/frankensqlite/engine"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/plan"
	"github.com/leftmike/frankensqlite/pragma"
	"github.com/leftmike/frankensqlite/sql"
	"github.com/leftmike/frankensqlite/vdbe"
)

// Session holds the shell's per-connection state: the open database and,
// for in-memory databases that have no catalog sidecar, a process-local
// schema map.
type Session struct {
	db    *engine.DB
	local map[string]catalog.Object
}

func NewSession(db *engine.DB) *Session {
	return &Session{db: db, local: map[string]catalog.Object{}}
}

func (ses *Session) lookup(name string) (catalog.Object, error) {
	if cat := ses.db.Catalog(); cat != nil {
		obj, found, err := cat.Get(name)
		if err != nil {
			return catalog.Object{}, err
		}
		if !found {
			return catalog.Object{}, fmt.Errorf("no such table %q", name)
		}
		return obj, nil
	}
	obj, ok := ses.local[name]
	if !ok {
		return catalog.Object{}, fmt.Errorf("no such table %q", name)
	}
	return obj, nil
}

func (ses *Session) store(obj catalog.Object) error {
	if cat := ses.db.Catalog(); cat != nil {
		return cat.Put(obj)
	}
	ses.local[obj.Name] = obj
	return nil
}

func (ses *Session) objects() ([]catalog.Object, error) {
	if cat := ses.db.Catalog(); cat != nil {
		return cat.List()
	}
	objs := make([]catalog.Object, 0, len(ses.local))
	for _, obj := range ses.local {
		objs = append(objs, obj)
	}
	return objs, nil
}

// Repl reads line commands from r until EOF, writing results and errors to
// w. Lines starting with # are comments.
func Repl(ses *Session, r io.Reader, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := Dispatch(ses, sc.Text(), w); err != nil {
			fmt.Fprintln(w, err)
		}
	}
}

// Dispatch runs one shell line.
func Dispatch(ses *Session, line string, w io.Writer) error {
	fields := splitFields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "create":
		return cmdCreate(ses, fields[1:])
	case "insert":
		return cmdInsert(ses, fields[1:])
	case "delete":
		return cmdDelete(ses, fields[1:])
	case "scan":
		return cmdScan(ses, fields[1:], w)
	case "tables":
		return cmdTables(ses, w)
	case "pragma":
		return cmdPragma(fields[1:], w)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func cmdCreate(ses *Session, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: create table [column[:type]...]")
	}
	cols := make([]sql.ColumnDef, 0, len(args)-1)
	for _, spec := range args[1:] {
		// "balance:real" declares a typed column; a bare name reads as
		// TEXT. The declared type only fixes the affinity applied on
		// store, as in SQLite.
		name, typ := spec, "TEXT"
		if i := strings.IndexByte(spec, ':'); i >= 0 {
			name, typ = spec[:i], strings.ToUpper(spec[i+1:])
		}
		cols = append(cols, sql.ColumnDef{Name: name, Type: typ})
	}
	h := ses.db.Begin(pager.ModeImmediate)
	bt, err := btree.CreateTable(h, args[0])
	if err != nil {
		h.Rollback()
		return err
	}
	if err := h.Commit(); err != nil {
		return err
	}
	return ses.store(catalog.Object{
		Name:    args[0],
		Root:    bt.Root(),
		IsTable: true,
		Columns: cols,
	})
}

func cmdInsert(ses *Session, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: insert table rowid value...")
	}
	obj, err := ses.lookup(args[0])
	if err != nil {
		return err
	}
	rowid, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("rowid: %w", err)
	}
	vals := make([]sql.Value, 0, len(args)-2)
	for _, a := range args[2:] {
		vals = append(vals, parseValue(a))
	}
	// On-store coercion: each value moves toward its column's affinity
	// before the row is encoded.
	vals = sql.ApplyAffinity(obj.Columns, vals)
	row := append([]sql.Value{sql.Int64Value(rowid)}, vals...)

	h := ses.db.Begin(pager.ModeImmediate)
	prog := plan.CompileInsert(plan.InsertPlan{
		Table: args[0],
		Root:  obj.Root,
		Rows:  [][]sql.Value{row},
	})
	if err := vdbe.New(h, prog).Run(context.Background(), nil); err != nil {
		h.Rollback()
		return err
	}
	return h.Commit()
}

func cmdDelete(ses *Session, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete table rowid")
	}
	obj, err := ses.lookup(args[0])
	if err != nil {
		return err
	}
	rowid, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("rowid: %w", err)
	}
	h := ses.db.Begin(pager.ModeImmediate)
	bt := btree.Open(h, obj.Root, true, args[0])
	if err := bt.Delete(rowid); err != nil {
		h.Rollback()
		return err
	}
	return h.Commit()
}

func cmdScan(ses *Session, args []string, w io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: scan table [numcols]")
	}
	obj, err := ses.lookup(args[0])
	if err != nil {
		return err
	}
	numCols := len(obj.Columns)
	if len(args) == 2 {
		numCols, err = strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("numcols: %w", err)
		}
	}
	if numCols < 1 {
		numCols = 1
	}

	h := ses.db.Begin(pager.ModeDeferred)
	defer h.Rollback()

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	header := make([]string, 0, numCols+1)
	header = append(header, "rowid")
	for i := 0; i < numCols; i++ {
		if i < len(obj.Columns) {
			header = append(header, obj.Columns[i].Name)
		} else {
			header = append(header, fmt.Sprintf("col%d", i+1))
		}
	}
	tw.SetHeader(header)

	prog := plan.CompileScan(plan.ScanPlan{Table: args[0], Root: obj.Root, NumCols: numCols})
	err = vdbe.New(h, prog).Run(context.Background(), func(row []sql.Value) error {
		out := make([]string, 0, len(row))
		for _, v := range row {
			if s, ok := v.(sql.StringValue); ok {
				out = append(out, string(s))
				continue
			}
			out = append(out, sql.Format(v))
		}
		tw.Append(out)
		return nil
	})
	if err != nil {
		return err
	}
	tw.Render()
	return nil
}

func cmdTables(ses *Session, w io.Writer) error {
	objs, err := ses.objects()
	if err != nil {
		return err
	}
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"name", "root", "kind"})
	for _, obj := range objs {
		kind := "table"
		if !obj.IsTable {
			kind = "index"
		}
		tw.Append([]string{obj.Name, strconv.FormatUint(uint64(obj.Root), 10), kind})
	}
	tw.Render()
	return nil
}

func cmdPragma(args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pragma name=value | pragma name")
	}
	stmt, err := pragma.Parse(args[0])
	if err != nil {
		return err
	}
	if stmt.Value == nil {
		val, ok := pragma.Get(stmt.Name)
		if !ok {
			return fmt.Errorf("unknown pragma %q", stmt.Name)
		}
		fmt.Fprintln(w, val)
		return nil
	}
	return pragma.Apply(args[0])
}

func splitFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return strings.Fields(line)
}

// parseValue turns a shell token into the sql.Value it most plausibly
// denotes: 'quoted' strings, null for the literal null, otherwise an
// integer, a float, or failing both, a bare string.
func parseValue(a string) sql.Value {
	if a == "null" {
		return nil
	}
	if len(a) >= 2 && a[0] == '\'' && a[len(a)-1] == '\'' {
		return sql.StringValue(a[1 : len(a)-1])
	}
	if n, err := strconv.ParseInt(a, 10, 64); err == nil {
		return sql.Int64Value(n)
	}
	if f, err := strconv.ParseFloat(a, 64); err == nil {
		return sql.Float64Value(f)
	}
	return sql.StringValue(a)
}
