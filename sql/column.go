package sql

// ColumnDef is one column of a table's schema as the catalog records it:
// the name, the declared type text (which fixes the affinity), and the
// constraints the storage layer enforces itself.
type ColumnDef struct {
	Name    string
	Type    string // declared type, e.g. "INTEGER", "TEXT", "REAL"; "" reads as blob affinity
	NotNull bool
}

// Affinity derives the column's coercion rule from its declared type.
func (c ColumnDef) Affinity() Affinity {
	return AffinityOf(c.Type)
}

// ApplyAffinity coerces one row of values toward cols' affinities, the
// on-store conversion applied before a row is encoded into a record. Rows
// wider than the schema keep their extra values untouched; rows narrower
// coerce what they have.
func ApplyAffinity(cols []ColumnDef, row []Value) []Value {
	out := make([]Value, len(row))
	for i, v := range row {
		if i < len(cols) {
			out[i] = cols[i].Affinity().Apply(v)
		} else {
			out[i] = v
		}
	}
	return out
}
