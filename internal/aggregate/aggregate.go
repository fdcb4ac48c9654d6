// Package aggregate builds the grouped aggregate table for one subset.
//
// Aggregate is pure: the same subset, catalog and records always produce
// the same artifact, byte for byte.
package aggregate

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/subset"
)

// Stats are the data-quality counters of one aggregation. Dropped records
// are warnings, never failures.
type Stats struct {
	Input int64
	Kept  int64

	// DroppedNullDimension counts records excluded for a null subset
	// dimension, attributed to the first null dimension in canonical order.
	DroppedNullDimension map[string]int64

	// DroppedNullMeasure counts records excluded for a null measure.
	DroppedNullMeasure int64
}

// Dropped returns the total number of excluded records.
func (s Stats) Dropped() int64 {
	n := s.DroppedNullMeasure
	for _, c := range s.DroppedNullDimension {
		n += c
	}
	return n
}

type group struct {
	values   []cube.Value
	measures []int64
	count    int64
}

// Aggregate groups records by the subset's dimensions, summing every
// catalog measure and counting rows. Records with a null in any subset
// dimension or any measure are excluded from this subset only.
func Aggregate(sub subset.Subset, cat *catalog.Catalog, records []cube.Record) (*cube.Artifact, Stats) {
	dims := sub.Names()
	measures := cat.MeasureNames()

	stats := Stats{
		Input:                int64(len(records)),
		DroppedNullDimension: make(map[string]int64),
	}

	groups := make(map[string]*group)
	values := make([]cube.Value, len(dims))
	sums := make([]int64, len(measures))

records:
	for _, rec := range records {
		for i, d := range dims {
			v := rec.Get(d)
			if cube.IsNull(v) {
				stats.DroppedNullDimension[d]++
				continue records
			}
			values[i] = cube.Normalize(v)
		}
		for i, m := range measures {
			n, ok := rec.Get(m).(cube.Int)
			if !ok {
				stats.DroppedNullMeasure++
				continue records
			}
			sums[i] = int64(n)
		}

		k := groupKey(values)
		g, ok := groups[k]
		if !ok {
			g = &group{
				values:   slices.Clone(values),
				measures: make([]int64, len(measures)),
			}
			groups[k] = g
		}
		for i, n := range sums {
			g.measures[i] += n
		}
		g.count++
		stats.Kept++
	}

	rows := make([]cube.Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, cube.Row{Values: g.values, Measures: g.measures, Count: g.count})
	}
	slices.SortFunc(rows, compareRows)

	a := &cube.Artifact{
		Key:        sub.Key(),
		Dimensions: dims,
		Measures:   measures,
		Rows:       rows,
	}
	a.ContentHash = cube.MustArtifactHash(a)
	return a, stats
}

// groupKey encodes a value tuple so that distinct tuples never collide:
// String("1") and Int(1) get different tags.
func groupKey(values []cube.Value) string {
	var b strings.Builder
	for _, v := range values {
		switch val := v.(type) {
		case cube.Int:
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(int64(val), 10))
		case cube.String:
			b.WriteByte('s')
			b.WriteString(strconv.Itoa(len(val)))
			b.WriteByte(':')
			b.WriteString(string(val))
		}
		b.WriteByte(0)
	}
	return b.String()
}

func compareRows(a, b cube.Row) int {
	for i := range a.Values {
		if c := cube.Compare(a.Values[i], b.Values[i]); c != 0 {
			return c
		}
	}
	return 0
}
