package sql

import "testing"

func TestAffinityOf(t *testing.T) {
	cases := []struct {
		declared string
		want     Affinity
	}{
		{"INTEGER", IntegerAffinity},
		{"int", IntegerAffinity},
		{"TINYINT", IntegerAffinity},
		{"BIGINT", IntegerAffinity},
		{"TEXT", TextAffinity},
		{"VARCHAR(80)", TextAffinity},
		{"CLOB", TextAffinity},
		{"BLOB", BlobAffinity},
		{"", BlobAffinity},
		{"REAL", RealAffinity},
		{"DOUBLE", RealAffinity},
		{"FLOAT", RealAffinity},
		{"NUMERIC", NumericAffinity},
		{"DECIMAL(10,5)", NumericAffinity},
		{"BOOLEAN", NumericAffinity},
		{"DATE", NumericAffinity},
	}
	for _, c := range cases {
		if got := AffinityOf(c.declared); got != c.want {
			t.Errorf("AffinityOf(%q) = %v, want %v", c.declared, got, c.want)
		}
	}
}

func TestApplyInteger(t *testing.T) {
	a := IntegerAffinity
	if got := a.Apply(StringValue("12")); got != Int64Value(12) {
		t.Errorf(`integer affinity on "12" = %v`, got)
	}
	if got := a.Apply(StringValue("12.5")); got != Float64Value(12.5) {
		t.Errorf(`integer affinity on "12.5" = %v, want lossless real`, got)
	}
	if got := a.Apply(StringValue("widget")); got != StringValue("widget") {
		t.Errorf(`integer affinity on "widget" = %v, want unchanged`, got)
	}
	if got := a.Apply(Float64Value(7)); got != Int64Value(7) {
		t.Errorf("integer affinity on 7.0 = %v, want integer 7", got)
	}
	if got := a.Apply(Float64Value(7.5)); got != Float64Value(7.5) {
		t.Errorf("integer affinity on 7.5 = %v, want unchanged", got)
	}
	if got := a.Apply(nil); got != nil {
		t.Errorf("integer affinity on NULL = %v, want NULL", got)
	}
}

func TestApplyText(t *testing.T) {
	a := TextAffinity
	if got := a.Apply(Int64Value(42)); got != StringValue("42") {
		t.Errorf("text affinity on 42 = %v", got)
	}
	if got := a.Apply(Float64Value(1.5)); got != StringValue("1.5") {
		t.Errorf("text affinity on 1.5 = %v", got)
	}
	if got := a.Apply(BytesValue("ok")); got != StringValue("ok") {
		t.Errorf("text affinity on utf8 blob = %v", got)
	}
	bad := BytesValue([]byte{0xff, 0xfe})
	if got := a.Apply(bad); Compare(got, bad) != 0 {
		t.Errorf("text affinity on non-utf8 blob = %v, want unchanged", got)
	}
}

func TestApplyRealAndBlob(t *testing.T) {
	if got := RealAffinity.Apply(Int64Value(3)); got != Float64Value(3) {
		t.Errorf("real affinity on 3 = %v", got)
	}
	if got := RealAffinity.Apply(StringValue("2.25")); got != Float64Value(2.25) {
		t.Errorf(`real affinity on "2.25" = %v`, got)
	}
	if got := BlobAffinity.Apply(StringValue("as-is")); got != StringValue("as-is") {
		t.Errorf("blob affinity must store as-is, got %v", got)
	}
}

func TestApplyAffinityRow(t *testing.T) {
	cols := []ColumnDef{
		{Name: "id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT"},
	}
	row := ApplyAffinity(cols, []Value{StringValue("7"), Int64Value(9), BoolValue(true)})
	if row[0] != Int64Value(7) {
		t.Errorf("col 0: %v", row[0])
	}
	if row[1] != StringValue("9") {
		t.Errorf("col 1: %v", row[1])
	}
	// The extra value beyond the schema is untouched.
	if row[2] != BoolValue(true) {
		t.Errorf("col 2: %v", row[2])
	}
}
