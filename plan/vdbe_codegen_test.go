package plan

import (
	"context"
	"testing"

	"github.com/leftmike/frankensqlite/btree"
	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/sql"
	"github.com/leftmike/frankensqlite/vdbe"
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

func TestCompileInsertThenCompileScan(t *testing.T) {
	h := openTestHandle(t)
	bt, err := btree.CreateTable(h, "widgets")
	if err != nil {
		t.Fatal(err)
	}

	insertProg := CompileInsert(InsertPlan{
		Table: "widgets",
		Root:  bt.Root(),
		Rows: [][]sql.Value{
			{sql.Int64Value(1), sql.StringValue("sprocket"), sql.Int64Value(3)},
			{sql.Int64Value(2), sql.StringValue("cog"), sql.Int64Value(7)},
		},
	})
	if err := vdbe.New(h, insertProg).Run(context.Background(), nil); err != nil {
		t.Fatalf("insert program: %v", err)
	}

	scanProg := CompileScan(ScanPlan{Table: "widgets", Root: bt.Root(), NumCols: 2})
	type row struct {
		name  string
		count int64
	}
	var got []row
	err = vdbe.New(h, scanProg).Run(context.Background(), func(r []sql.Value) error {
		got = append(got, row{string(r[1].(sql.StringValue)), int64(r[2].(sql.Int64Value))})
		return nil
	})
	if err != nil {
		t.Fatalf("scan program: %v", err)
	}

	want := []row{{"sprocket", 3}, {"cog", 7}}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCompileScanEmptyTable(t *testing.T) {
	h := openTestHandle(t)
	bt, err := btree.CreateTable(h, "empty")
	if err != nil {
		t.Fatal(err)
	}
	prog := CompileScan(ScanPlan{Table: "empty", Root: bt.Root(), NumCols: 1})
	var n int
	err = vdbe.New(h, prog).Run(context.Background(), func(r []sql.Value) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d rows, want 0", n)
	}
}
