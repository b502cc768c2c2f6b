package engine

import (
	"context"
	"testing"

	"github.com/leftmike/frankensqlite/btree"
	"github.com/leftmike/frankensqlite/pager"
	"github.com/leftmike/frankensqlite/plan"
	"github.com/leftmike/frankensqlite/sql"
)

func TestStatementBindStepColumn(t *testing.T) {
	db, err := OpenMemory("stmt_test.db")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	h := db.Begin(pager.ModeImmediate)
	bt, err := btree.CreateTable(h, "widgets")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Commit(); err != nil {
		t.Fatal(err)
	}

	// INSERT INTO widgets VALUES (?1, ?2), stepped twice with different
	// bindings.
	ins := db.Prepare(plan.CompileInsert(plan.InsertPlan{
		Table: "widgets",
		Root:  bt.Root(),
		Rows:  [][]sql.Value{{plan.Param(1), plan.Param(2)}},
	}), pager.ModeImmediate)

	for i, name := range []string{"sprocket", "cog"} {
		if err := ins.Bind(1, sql.Int64Value(i+1)); err != nil {
			t.Fatal(err)
		}
		if err := ins.Bind(2, sql.StringValue(name)); err != nil {
			t.Fatal(err)
		}
		res, err := ins.Step(ctx)
		if err != nil {
			t.Fatalf("insert step %d: %v", i, err)
		}
		if res != Done {
			t.Fatalf("insert step %d: got %v, want Done", i, res)
		}
		ins.Reset()
	}
	if err := ins.Finalize(); err != nil {
		t.Fatal(err)
	}

	sel := db.Prepare(plan.CompileScan(plan.ScanPlan{
		Table: "widgets", Root: bt.Root(), NumCols: 1,
	}), pager.ModeDeferred)
	defer sel.Finalize()

	var names []string
	for {
		res, err := sel.Step(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if res == Done {
			break
		}
		names = append(names, string(sel.Column(1).(sql.StringValue)))
	}
	if len(names) != 2 || names[0] != "sprocket" || names[1] != "cog" {
		t.Fatalf("got %v, want [sprocket cog]", names)
	}
}

func TestStatementBindOutOfRange(t *testing.T) {
	db, err := OpenMemory("stmt_bind_test.db")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	st := db.Prepare(plan.CompileInsert(plan.InsertPlan{
		Table: "t", Root: 2,
		Rows: [][]sql.Value{{plan.Param(1), sql.StringValue("x")}},
	}), pager.ModeImmediate)
	defer st.Finalize()

	if err := st.Bind(2, sql.Int64Value(1)); err == nil {
		t.Fatal("binding parameter 2 of a 1-parameter statement should fail")
	}
	if err := st.Bind(0, sql.Int64Value(1)); err == nil {
		t.Fatal("binding parameter 0 should fail")
	}
}

func TestStatementStepAfterFinalize(t *testing.T) {
	db, err := OpenMemory("stmt_fin_test.db")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	st := db.Prepare(plan.CompileScan(plan.ScanPlan{Table: "t", Root: 2, NumCols: 1}), pager.ModeDeferred)
	if err := st.Finalize(); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Step(context.Background()); err == nil {
		t.Fatal("stepping a finalized statement should fail")
	}
}
