package catalog

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/leftmike/frankensqlite/sql"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "test.catalog"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCatalog(t)

	obj := Object{Name: "accounts", Root: 7, IsTable: true, Columns: []sql.ColumnDef{
		{Name: "id", Type: "INTEGER", NotNull: true},
		{Name: "balance", Type: "REAL"},
	}}
	if err := c.Put(obj); err != nil {
		t.Fatal(err)
	}

	got, found, err := c.Get("accounts")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("accounts not found")
	}
	if !reflect.DeepEqual(got, obj) {
		t.Fatalf("got %+v, want %+v", got, obj)
	}
}

func TestGetMissing(t *testing.T) {
	c := openTestCatalog(t)
	_, found, err := c.Get("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("found a table that was never created")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.catalog")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Object{Name: "t", Root: 3, IsTable: true, Columns: []sql.ColumnDef{{Name: "n", Type: "TEXT"}}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got, found, err := c.Get("t")
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Root != 3 {
		t.Fatalf("after reopen: found=%v root=%d", found, got.Root)
	}
}

func TestDeleteAndList(t *testing.T) {
	c := openTestCatalog(t)

	for _, obj := range []Object{
		{Name: "b", Root: 2, IsTable: true},
		{Name: "a", Root: 4, IsTable: true},
		{Name: "a_idx", Root: 5, IsTable: false, Columns: []sql.ColumnDef{{Name: "n", Type: "TEXT"}}},
	} {
		if err := c.Put(obj); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete("never-existed"); err != nil {
		t.Fatal(err)
	}

	objs, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	// bbolt cursors iterate in key order.
	if objs[0].Name != "a" || objs[1].Name != "a_idx" {
		t.Fatalf("got %q, %q", objs[0].Name, objs[1].Name)
	}
	if objs[1].IsTable {
		t.Fatal("a_idx should not be a table")
	}
}
