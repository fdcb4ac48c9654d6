package cube

// Record is one input row keyed by column name. Dimension columns hold
// String or Int values, measure columns hold Int values. A column that is
// missing from the map is null.
type Record map[string]Value

// Get returns the column value, or Null{} if the column is absent.
func (r Record) Get(column string) Value {
	v, ok := r[column]
	if !ok || v == nil {
		return Null{}
	}
	return v
}

// Row is one aggregate row of an artifact.
//
// Values are in the artifact's Dimensions order (canonical sorted order).
// Measures are in the artifact's Measures order.
type Row struct {
	Values   []Value
	Measures []int64
	Count    int64
}

// Artifact is the full aggregate table for one subset of dimensions.
// Artifacts are read-only once built; consumers must not mutate them.
type Artifact struct {
	// Key is the canonical subset key (sorted names joined by "__").
	Key string

	// Dimensions are the subset's dimension names in canonical order.
	Dimensions []string

	// Measures are the declared measure names in catalog order.
	Measures []string

	// Rows are sorted ascending by Dimensions.
	Rows []Row

	// SnapshotHash identifies the input snapshot the artifact was built from.
	SnapshotHash string

	// ContentHash is ArtifactHash over key, dimensions, measures and rows.
	ContentHash string
}

// CountColumn is the implicit row-count column present in every artifact.
const CountColumn = "count"

// TotalCount returns the sum of row counts across the artifact.
func (a *Artifact) TotalCount() int64 {
	var n int64
	for _, r := range a.Rows {
		n += r.Count
	}
	return n
}

// RowObject flattens a row into a column map: dimensions, measures and
// the count column.
func (a *Artifact) RowObject(r Row) map[string]any {
	obj := make(map[string]any, len(a.Dimensions)+len(a.Measures)+1)
	for i, d := range a.Dimensions {
		obj[d] = r.Values[i]
	}
	for i, m := range a.Measures {
		obj[m] = r.Measures[i]
	}
	obj[CountColumn] = r.Count
	return obj
}
