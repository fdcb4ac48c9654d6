package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/cubist/internal/cube"
)

// marshalStrings converts a name list to canonical JSON TEXT for storage.
func marshalStrings(names []string) (string, error) {
	data, err := cube.MarshalCanonical(names)
	if err != nil {
		return "", fmt.Errorf("marshal names: %w", err)
	}
	return string(data), nil
}

// marshalValues converts a dimension tuple to canonical JSON TEXT.
func marshalValues(values []cube.Value) (string, error) {
	data, err := cube.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// marshalInts converts measure sums to canonical JSON TEXT.
func marshalInts(sums []int64) (string, error) {
	data, err := cube.MarshalCanonical(sums)
	if err != nil {
		return "", fmt.Errorf("marshal measures: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal names: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// unmarshalValues parses a canonical JSON array of scalars. Numbers go
// through json.Number so int64 values above 2^53 survive.
func unmarshalValues(data string) ([]cube.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	values := make([]cube.Value, len(raw))
	for i, r := range raw {
		v, err := cube.FromAny(r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal values[%d]: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func unmarshalInts(data string) ([]int64, error) {
	var sums []int64
	if err := json.Unmarshal([]byte(data), &sums); err != nil {
		return nil, fmt.Errorf("unmarshal measures: %w", err)
	}
	if sums == nil {
		sums = []int64{}
	}
	return sums, nil
}

// verify recomputes the content hash of a decoded artifact.
func verify(a *cube.Artifact) error {
	got, err := cube.ArtifactHash(a)
	if err != nil {
		return fmt.Errorf("verify %s: %w", a.Key, err)
	}
	if got != a.ContentHash {
		return fmt.Errorf("verify %s: content hash mismatch: stored %s, computed %s", a.Key, a.ContentHash, got)
	}
	return nil
}
