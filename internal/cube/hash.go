package cube

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainArtifact = "cubist/artifact/v1"
	DomainSnapshot = "cubist/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalArtifact returns the canonical JSON of an artifact's content:
// key, dimensions, measures and flattened rows in stored order.
// Snapshot and content hashes are excluded, so two runs that produce the
// same rows produce the same bytes.
func CanonicalArtifact(a *Artifact) ([]byte, error) {
	rows := make([]any, len(a.Rows))
	for i, r := range a.Rows {
		if len(r.Values) != len(a.Dimensions) {
			return nil, fmt.Errorf("row %d: %d values for %d dimensions", i, len(r.Values), len(a.Dimensions))
		}
		if len(r.Measures) != len(a.Measures) {
			return nil, fmt.Errorf("row %d: %d measures for %d declared", i, len(r.Measures), len(a.Measures))
		}
		rows[i] = a.RowObject(r)
	}

	obj := map[string]any{
		"key":        a.Key,
		"dimensions": a.Dimensions,
		"measures":   a.Measures,
		"rows":       rows,
	}
	return MarshalCanonical(obj)
}

// ArtifactHash computes the content-addressed hash of an artifact.
// Stable across restarts and reruns given the same rows.
func ArtifactHash(a *Artifact) (string, error) {
	canonical, err := CanonicalArtifact(a)
	if err != nil {
		return "", fmt.Errorf("ArtifactHash: %w", err)
	}
	return hashWithDomain(DomainArtifact, canonical), nil
}

// SnapshotHash identifies an input snapshot over the given columns.
// Record order does not matter; duplicate records do. Null columns are
// omitted from each record's canonical form.
func SnapshotHash(records []Record, columns []string) (string, error) {
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		obj := make(map[string]any, len(columns))
		for _, c := range columns {
			if v := rec.Get(c); !IsNull(v) {
				obj[c] = v
			}
		}
		data, err := MarshalCanonical(obj)
		if err != nil {
			return "", fmt.Errorf("SnapshotHash: record %d: %w", i, err)
		}
		encoded[i] = data
	}
	slices.SortFunc(encoded, bytes.Compare)

	cols, err := MarshalCanonical(columns)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: %w", err)
	}
	payload := append(cols, '\n')
	payload = append(payload, bytes.Join(encoded, []byte{'\n'})...)
	return hashWithDomain(DomainSnapshot, payload), nil
}

// MustArtifactHash is like ArtifactHash but panics on error.
// Use only in tests or when the artifact is known to be well formed.
func MustArtifactHash(a *Artifact) string {
	h, err := ArtifactHash(a)
	if err != nil {
		panic(err)
	}
	return h
}
