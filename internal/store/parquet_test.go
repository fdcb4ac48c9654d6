package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/cube"
)

func TestParquet_RoundTrip(t *testing.T) {
	a := createTestArtifact(3, 1, 4)

	data, err := EncodeParquet(a)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))

	got, err := DecodeParquet(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestParquet_LargeIntegers(t *testing.T) {
	a := &cube.Artifact{
		Key:        "collision_id",
		Dimensions: []string{"collision_id"},
		Measures:   []string{"killed"},
		Rows: []cube.Row{
			{Values: []cube.Value{cube.Int(math.MaxInt64)}, Measures: []int64{math.MinInt64 + 1}, Count: 1},
		},
	}
	a.ContentHash = cube.MustArtifactHash(a)

	data, err := EncodeParquet(a)
	require.NoError(t, err)
	got, err := DecodeParquet(data)
	require.NoError(t, err)
	assert.Equal(t, cube.Int(math.MaxInt64), got.Rows[0].Values[0])
	assert.Equal(t, int64(math.MinInt64+1), got.Rows[0].Measures[0])
}

func TestParquet_HashMismatch(t *testing.T) {
	a := createTestArtifact(1, 2)
	a.ContentHash = "not-the-hash"

	data, err := EncodeParquet(a)
	require.NoError(t, err)

	_, err = DecodeParquet(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content hash mismatch")
}

func TestParquet_Garbage(t *testing.T) {
	_, err := DecodeParquet([]byte("definitely not parquet"))
	require.Error(t, err)
}
