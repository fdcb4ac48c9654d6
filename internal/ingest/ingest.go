// Package ingest reads input records for a catalog from CSV or YAML.
//
// It is a thin adapter: header names are normalized the way catalog names
// are, values are coerced to the dimension kind, and anything unparsable or
// outside the declared domain becomes null and is counted in a Report.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
)

// Report counts the data-quality warnings of one read.
type Report struct {
	Records       int64
	MalformedRows int64

	// Per-column counters.
	OutOfDomain    map[string]int64
	Unparsable     map[string]int64
	UnexpectedNull map[string]int64
}

func newReport() *Report {
	return &Report{
		OutOfDomain:    make(map[string]int64),
		Unparsable:     make(map[string]int64),
		UnexpectedNull: make(map[string]int64),
	}
}

// Warnings returns the total number of warnings.
func (r *Report) Warnings() int64 {
	n := r.MalformedRows
	for _, m := range []map[string]int64{r.OutOfDomain, r.Unparsable, r.UnexpectedNull} {
		for _, c := range m {
			n += c
		}
	}
	return n
}

// Warning returns the report as a DATA_QUALITY error, or nil when clean.
// It is informational and must not fail a run.
func (r *Report) Warning() *cube.Error {
	if r.Warnings() == 0 {
		return nil
	}
	details := map[string]string{
		"records": strconv.FormatInt(r.Records, 10),
	}
	if r.MalformedRows > 0 {
		details["malformed_rows"] = strconv.FormatInt(r.MalformedRows, 10)
	}
	add := func(prefix string, m map[string]int64) {
		for col, c := range m {
			details[prefix+"."+col] = strconv.FormatInt(c, 10)
		}
	}
	add("out_of_domain", r.OutOfDomain)
	add("unparsable", r.Unparsable)
	add("unexpected_null", r.UnexpectedNull)

	return &cube.Error{
		Code:    cube.ErrCodeDataQuality,
		Message: fmt.Sprintf("%d values nulled or rows skipped while reading input", r.Warnings()),
		Details: details,
	}
}

// ReadFile reads records from path, choosing the format by extension
// (.csv, .yaml, .yml).
func ReadFile(path string, cat *catalog.Catalog) ([]cube.Record, *Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f, cat)
	case ".yaml", ".yml":
		return ReadYAML(f, cat)
	default:
		return nil, nil, fmt.Errorf("unsupported records format %q (want .csv, .yaml or .yml)", filepath.Ext(path))
	}
}

// columnMap resolves raw column names onto catalog columns.
// Unknown columns map to "" and are ignored.
func columnMap(cat *catalog.Catalog, raw []string) ([]string, error) {
	known := make(map[string]bool)
	for _, c := range cat.Columns() {
		known[c] = true
	}

	mapped := make([]string, len(raw))
	found := make(map[string]string)
	for i, h := range raw {
		name := catalog.Normalize(strings.TrimSpace(h))
		if !known[name] {
			continue
		}
		if prev, ok := found[name]; ok {
			return nil, cube.NewConfigError("columns %q and %q both map to %q", prev, h, name)
		}
		found[name] = h
		mapped[i] = name
	}

	var missing []string
	for _, c := range cat.Columns() {
		if _, ok := found[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, cube.NewConfigError("input is missing catalog columns: %s", strings.Join(missing, ", "))
	}
	return mapped, nil
}

// converter turns raw cells into values and tallies warnings.
type converter struct {
	cat    *catalog.Catalog
	report *Report
}

// dimension coerces and domain-checks one dimension cell.
func (c *converter) dimension(name string, v cube.Value, parseErr error) cube.Value {
	d, _ := c.cat.Dimension(name)
	if parseErr != nil {
		c.report.Unparsable[name]++
		v = cube.Null{}
	}
	if cube.IsNull(v) {
		if !d.Nullable && parseErr == nil {
			c.report.UnexpectedNull[name]++
		}
		return cube.Null{}
	}
	if !c.cat.InDomain(name, v) {
		c.report.OutOfDomain[name]++
		return cube.Null{}
	}
	return v
}

// fromString converts a CSV cell for column name.
func (c *converter) fromString(name, raw string) cube.Value {
	if c.cat.IsMeasure(name) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return cube.Null{}
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.report.Unparsable[name]++
			return cube.Null{}
		}
		return cube.Int(n)
	}
	v, err := c.cat.Coerce(name, raw)
	return c.dimension(name, v, err)
}

// fromAny converts a decoded YAML scalar for column name.
func (c *converter) fromAny(name string, raw any) cube.Value {
	if s, ok := raw.(string); ok {
		return c.fromString(name, s)
	}

	v, err := cube.FromAny(raw)
	if c.cat.IsMeasure(name) {
		if err != nil {
			c.report.Unparsable[name]++
			return cube.Null{}
		}
		return v
	}

	if d, _ := c.cat.Dimension(name); err == nil && d.Kind == catalog.KindString {
		if n, ok := v.(cube.Int); ok {
			v = cube.String(strconv.FormatInt(int64(n), 10))
		}
	}
	return c.dimension(name, v, err)
}
