package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
)

// ReadCSV reads records from CSV with a header row. Empty cells are null.
// Rows the CSV reader rejects are skipped and counted as malformed.
func ReadCSV(r io.Reader, cat *catalog.Catalog) ([]cube.Record, *Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read CSV header: %w", err)
	}
	columns, err := columnMap(cat, header)
	if err != nil {
		return nil, nil, err
	}

	report := newReport()
	conv := &converter{cat: cat, report: report}

	var records []cube.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				report.MalformedRows++
				continue
			}
			return nil, nil, fmt.Errorf("read CSV: %w", err)
		}
		if len(row) != len(header) {
			report.MalformedRows++
			continue
		}

		rec := make(cube.Record, len(cat.Columns()))
		for i, cell := range row {
			if columns[i] == "" {
				continue
			}
			rec[columns[i]] = conv.fromString(columns[i], cell)
		}
		records = append(records, rec)
	}

	report.Records = int64(len(records))
	return records, report, nil
}
