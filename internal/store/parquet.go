package store

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/roach88/cubist/internal/cube"
)

// Parquet footer metadata keys.
const (
	metaFormat       = "cubist.format"
	metaKey          = "cubist.key"
	metaDimensions   = "cubist.dimensions"
	metaMeasures     = "cubist.measures"
	metaSnapshotHash = "cubist.snapshot_hash"
	metaContentHash  = "cubist.content_hash"

	parquetFormatVersion = "1"
)

// artifactRecord is one aggregate row in a Parquet artifact.
// The struct tags define the Parquet schema.
type artifactRecord struct {
	// Key repeats the subset key on every row so files stay self-describing
	// when concatenated by external tools.
	Key string `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`

	// Values is the canonical JSON array of dimension values.
	Values string `parquet:"name=values, type=BYTE_ARRAY, convertedtype=UTF8"`

	// Measures is the canonical JSON array of measure sums.
	Measures string `parquet:"name=measures, type=BYTE_ARRAY, convertedtype=UTF8"`

	Count int64 `parquet:"name=count, type=INT64"`
}

// EncodeParquet serializes an artifact to SNAPPY-compressed Parquet bytes.
func EncodeParquet(a *cube.Artifact) ([]byte, error) {
	dims, err := marshalStrings(a.Dimensions)
	if err != nil {
		return nil, err
	}
	measures, err := marshalStrings(a.Measures)
	if err != nil {
		return nil, err
	}

	fw := buffer.NewBufferFileFromBytes(nil)
	pw, err := writer.NewParquetWriter(fw, new(artifactRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range a.Rows {
		values, err := marshalValues(row.Values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		sums, err := marshalInts(row.Measures)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rec := &artifactRecord{Key: a.Key, Values: values, Measures: sums, Count: row.Count}
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	for _, kv := range [][2]string{
		{metaFormat, parquetFormatVersion},
		{metaKey, a.Key},
		{metaDimensions, dims},
		{metaMeasures, measures},
		{metaSnapshotHash, a.SnapshotHash},
		{metaContentHash, a.ContentHash},
	} {
		value := kv[1]
		pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: kv[0], Value: &value})
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return fw.Bytes(), nil
}

// DecodeParquet parses bytes written by EncodeParquet and verifies the
// content hash.
func DecodeParquet(data []byte) (*cube.Artifact, error) {
	fr := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(artifactRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	meta := make(map[string]string)
	for _, kv := range pr.Footer.KeyValueMetadata {
		if kv != nil && kv.Value != nil {
			meta[kv.Key] = *kv.Value
		}
	}
	if meta[metaFormat] != parquetFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format %q", meta[metaFormat])
	}

	a := &cube.Artifact{
		Key:          meta[metaKey],
		SnapshotHash: meta[metaSnapshotHash],
		ContentHash:  meta[metaContentHash],
	}
	if a.Dimensions, err = unmarshalStrings(meta[metaDimensions]); err != nil {
		return nil, err
	}
	if a.Measures, err = unmarshalStrings(meta[metaMeasures]); err != nil {
		return nil, err
	}

	n := int(pr.GetNumRows())
	a.Rows = make([]cube.Row, 0, n)
	if n > 0 {
		records := make([]artifactRecord, n)
		if err := pr.Read(&records); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		for i, rec := range records {
			if rec.Key != a.Key {
				return nil, fmt.Errorf("row %d: key %q does not match artifact %q", i, rec.Key, a.Key)
			}
			row := cube.Row{Count: rec.Count}
			if row.Values, err = unmarshalValues(rec.Values); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			if row.Measures, err = unmarshalInts(rec.Measures); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			a.Rows = append(a.Rows, row)
		}
	}

	if err := verify(a); err != nil {
		return nil, err
	}
	return a, nil
}
