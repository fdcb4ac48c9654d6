package ingest

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
)

// ReadYAML reads records from a YAML sequence of mappings:
//
//	- borough: BRONX
//	  year: 2020
//	  killed: 1
//
// Keys are normalized like CSV headers. A missing key is null.
func ReadYAML(r io.Reader, cat *catalog.Catalog) ([]cube.Record, *Report, error) {
	var raw []map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, newReport(), nil
		}
		return nil, nil, fmt.Errorf("parse YAML records: %w", err)
	}
	return FromMaps(raw, cat)
}

// FromMaps converts already-decoded mappings, as ReadYAML does.
func FromMaps(raw []map[string]any, cat *catalog.Catalog) ([]cube.Record, *Report, error) {
	report := newReport()
	conv := &converter{cat: cat, report: report}

	records := make([]cube.Record, 0, len(raw))
	for _, row := range raw {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		columns, err := rowColumns(cat, keys)
		if err != nil {
			return nil, nil, err
		}

		rec := make(cube.Record, len(cat.Columns()))
		for i, k := range keys {
			if columns[i] == "" {
				continue
			}
			rec[columns[i]] = conv.fromAny(columns[i], row[k])
		}
		for _, c := range cat.Columns() {
			if _, ok := rec[c]; !ok {
				rec[c] = conv.fromAny(c, nil)
			}
		}
		records = append(records, rec)
	}

	report.Records = int64(len(records))
	return records, report, nil
}

// rowColumns maps one YAML mapping's keys. Unlike CSV headers, a mapping
// may omit columns; they read as null.
func rowColumns(cat *catalog.Catalog, keys []string) ([]string, error) {
	known := make(map[string]bool)
	for _, c := range cat.Columns() {
		known[c] = true
	}
	mapped := make([]string, len(keys))
	found := make(map[string]string)
	for i, k := range keys {
		name := catalog.Normalize(k)
		if !known[name] {
			continue
		}
		if prev, ok := found[name]; ok {
			return nil, cube.NewConfigError("keys %q and %q both map to %q", prev, k, name)
		}
		found[name] = k
		mapped[i] = name
	}
	return mapped, nil
}
